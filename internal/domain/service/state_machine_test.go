package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

func testLogger() *zap.Logger {
	logger, _ := zap.NewDevelopment()
	return logger
}

// fakeURLRepo is an in-memory repository.URLRepository used by domain/service
// tests — the cascade must be exercised against real collaborator fakes, not
// only the state machine in isolation, so the same fake backs the
// orchestrator and batch processor tests too.
type fakeURLRepo struct {
	mu   sync.Mutex
	urls map[string]*entity.URL
}

func newFakeURLRepo(urls ...*entity.URL) *fakeURLRepo {
	r := &fakeURLRepo{urls: make(map[string]*entity.URL)}
	for _, u := range urls {
		cp := *u
		r.urls[u.ID] = &cp
	}
	return r
}

func (r *fakeURLRepo) FindByID(ctx context.Context, id string) (*entity.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.urls[id]
	if !ok {
		return nil, entity.ErrURLNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *fakeURLRepo) FindAll(ctx context.Context, filter repository.URLFilter) ([]*entity.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.URL
	for _, u := range r.urls {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeURLRepo) Save(ctx context.Context, url *entity.URL) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *url
	r.urls[url.ID] = &cp
	return nil
}

func (r *fakeURLRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.urls, id)
	return nil
}

func (r *fakeURLRepo) WithRowLock(ctx context.Context, id string, fn func(ctx context.Context, url *entity.URL) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.urls[id]
	if !ok {
		return entity.ErrURLNotFound
	}
	cp := *u
	if err := fn(ctx, &cp); err != nil {
		return err
	}
	r.urls[id] = &cp
	return nil
}

func (r *fakeURLRepo) AppendProcessingAttempt(ctx context.Context, urlID string, status valueobject.ProcessingStatus, attempt entity.ProcessingAttempt) error {
	return r.WithRowLock(ctx, urlID, func(ctx context.Context, url *entity.URL) error {
		url.ProcessingHistory = append(url.ProcessingHistory, attempt)
		url.ProcessingStatus = status
		return nil
	})
}

func (r *fakeURLRepo) FindByStatus(ctx context.Context, statuses ...valueobject.ProcessingStatus) ([]*entity.URL, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	want := map[valueobject.ProcessingStatus]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	var out []*entity.URL
	for _, u := range r.urls {
		if want[u.ProcessingStatus] {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func TestValidateTransitionGraph(t *testing.T) {
	if err := ValidateTransitionGraph(); err != nil {
		t.Fatalf("transition graph should be valid: %v", err)
	}
}

func TestTransition_ValidPaths(t *testing.T) {
	tests := []struct {
		name string
		path []valueobject.ProcessingStatus
	}{
		{
			name: "not_started -> processing_zotero -> stored",
			path: []valueobject.ProcessingStatus{valueobject.StatusProcessingZotero, valueobject.StatusStored},
		},
		{
			name: "cascade to awaiting_metadata via content",
			path: []valueobject.ProcessingStatus{
				valueobject.StatusProcessingZotero, valueobject.StatusProcessingContent,
				valueobject.StatusAwaitingMetadata,
			},
		},
		{
			name: "full cascade to exhausted",
			path: []valueobject.ProcessingStatus{
				valueobject.StatusProcessingZotero, valueobject.StatusProcessingContent,
				valueobject.StatusProcessingLLM, valueobject.StatusExhausted,
			},
		},
		{
			name: "exhausted -> stored_custom via manual create",
			path: []valueobject.ProcessingStatus{
				valueobject.StatusProcessingZotero, valueobject.StatusProcessingContent,
				valueobject.StatusProcessingLLM, valueobject.StatusExhausted, valueobject.StatusStoredCustom,
			},
		},
		{
			name: "stored <-> stored_incomplete after edit",
			path: []valueobject.ProcessingStatus{
				valueobject.StatusProcessingZotero, valueobject.StatusStoredIncomplete, valueobject.StatusStored,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
			sm := NewStateMachine(repo, testLogger())
			from := valueobject.StatusNotStarted
			for _, to := range tt.path {
				if err := sm.Transition(context.Background(), "u1", from, to, TransitionOpts{}); err != nil {
					t.Fatalf("failed transition %s -> %s: %v", from, to, err)
				}
				from = to
			}
			got, _ := repo.FindByID(context.Background(), "u1")
			if got.ProcessingStatus != from {
				t.Errorf("expected final status %s, got %s", from, got.ProcessingStatus)
			}
		})
	}
}

func TestTransition_InvalidPaths(t *testing.T) {
	tests := []struct {
		name string
		from valueobject.ProcessingStatus
		to   valueobject.ProcessingStatus
	}{
		{"not_started -> stored (no edge)", valueobject.StatusNotStarted, valueobject.StatusStored},
		{"stored -> processing_zotero (terminal guard bypass forbidden)", valueobject.StatusStored, valueobject.StatusProcessingZotero},
		{"ignored -> stored", valueobject.StatusIgnored, valueobject.StatusStored},
		{"archived -> processing_zotero", valueobject.StatusArchived, valueobject.StatusProcessingZotero},
		{"no self-loop", valueobject.StatusNotStarted, valueobject.StatusNotStarted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := entity.NewURL("u1", "https://example.com/x")
			u.ProcessingStatus = tt.from
			repo := newFakeURLRepo(u)
			sm := NewStateMachine(repo, testLogger())
			if err := sm.Transition(context.Background(), "u1", tt.from, tt.to, TransitionOpts{}); err == nil {
				t.Errorf("expected error for %s -> %s, got nil", tt.from, tt.to)
			}
		})
	}
}

func TestTransition_WrongExpectedFrom(t *testing.T) {
	repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	sm := NewStateMachine(repo, testLogger())
	err := sm.Transition(context.Background(), "u1", valueobject.StatusProcessingZotero, valueobject.StatusStored, TransitionOpts{})
	if err == nil {
		t.Fatal("expected InvalidTransition error when expectedFrom does not match current status")
	}
}

func TestTransition_AppendsAttemptAndHistory(t *testing.T) {
	repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	sm := NewStateMachine(repo, testLogger())

	attempt := &entity.ProcessingAttempt{
		Stage:   entity.StageZoteroIdentifier,
		Method:  "doi",
		Success: true,
		ItemKey: "ABC123",
	}
	if err := sm.Transition(context.Background(), "u1", valueobject.StatusNotStarted, valueobject.StatusProcessingZotero, TransitionOpts{}); err != nil {
		t.Fatal(err)
	}
	if err := sm.Transition(context.Background(), "u1", valueobject.StatusProcessingZotero, valueobject.StatusStored, TransitionOpts{Attempt: attempt}); err != nil {
		t.Fatal(err)
	}

	got, _ := repo.FindByID(context.Background(), "u1")
	if got.ProcessingAttempts != 1 {
		t.Errorf("expected processingAttempts=1, got %d", got.ProcessingAttempts)
	}
	// two transition entries (not_started->processing_zotero, processing_zotero->stored)
	// plus one zotero_identifier attempt = 3 history entries.
	if len(got.ProcessingHistory) != 3 {
		t.Errorf("expected 3 history entries, got %d", len(got.ProcessingHistory))
	}
	if got.LastProcessingMethod == nil || *got.LastProcessingMethod != "doi" {
		t.Errorf("expected lastProcessingMethod=doi, got %v", got.LastProcessingMethod)
	}
}

func TestForceResetToNotStarted(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	u.ProcessingStatus = valueobject.StatusProcessingContent
	u.ProcessingAttempts = 2
	repo := newFakeURLRepo(u)
	sm := NewStateMachine(repo, testLogger())

	err := sm.ForceResetToNotStarted(context.Background(), "u1", TransitionOpts{
		Attempt: &entity.ProcessingAttempt{Stage: entity.StageManual, Method: "reset"},
	})
	if err != nil {
		t.Fatalf("reset should always succeed: %v", err)
	}

	got, _ := repo.FindByID(context.Background(), "u1")
	if got.ProcessingStatus != valueobject.StatusNotStarted {
		t.Errorf("expected not_started, got %s", got.ProcessingStatus)
	}
}

func TestOnEnterTerminalHook(t *testing.T) {
	repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	sm := NewStateMachine(repo, testLogger())

	var entered []valueobject.ProcessingStatus
	sm.OnEnterTerminal(func(urlID string, to valueobject.ProcessingStatus, snap entity.URL) {
		entered = append(entered, to)
	})

	_ = sm.Transition(context.Background(), "u1", valueobject.StatusNotStarted, valueobject.StatusProcessingZotero, TransitionOpts{})
	_ = sm.Transition(context.Background(), "u1", valueobject.StatusProcessingZotero, valueobject.StatusStored, TransitionOpts{})

	if len(entered) != 1 || entered[0] != valueobject.StatusStored {
		t.Errorf("expected one onEnterTerminal(stored) call, got %v", entered)
	}
}
