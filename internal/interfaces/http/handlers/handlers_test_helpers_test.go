package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() *zap.Logger { return zap.NewNop() }

// fakeURLRepo is a minimal in-memory repository.URLRepository for handler tests.
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
		if filter.Status != nil && u.ProcessingStatus != *filter.Status {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeURLRepo) FindByStatus(ctx context.Context, statuses ...valueobject.ProcessingStatus) ([]*entity.URL, error) {
	want := map[valueobject.ProcessingStatus]bool{}
	for _, s := range statuses {
		want[s] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.URL
	for _, u := range r.urls {
		if want[u.ProcessingStatus] {
			cp := *u
			out = append(out, &cp)
		}
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

// fakeLinkRepo is a minimal in-memory repository.LinkRepository for handler tests.
type fakeLinkRepo struct {
	mu    sync.Mutex
	links map[string]*entity.ZoteroItemLink
}

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{links: make(map[string]*entity.ZoteroItemLink)}
}

func (r *fakeLinkRepo) FindByID(ctx context.Context, id string) (*entity.ZoteroItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return nil, entity.ErrURLNotFound
	}
	return l, nil
}

func (r *fakeLinkRepo) FindByURLID(ctx context.Context, urlID string) ([]*entity.ZoteroItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ZoteroItemLink
	for _, l := range r.links {
		if l.URLID == urlID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) FindByItemKey(ctx context.Context, itemKey string) ([]*entity.ZoteroItemLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*entity.ZoteroItemLink
	for _, l := range r.links {
		if l.ItemKey == itemKey {
			out = append(out, l)
		}
	}
	return out, nil
}

func (r *fakeLinkRepo) Save(ctx context.Context, link *entity.ZoteroItemLink) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[link.ID] = link
	return nil
}

func (r *fakeLinkRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.links, id)
	return nil
}

// fakeZoteroClient is a minimal service.ZoteroClient for handler tests.
type fakeZoteroClient struct {
	processURLResult service.ZoteroProcessResult
	processURLErr    error
}

func (f *fakeZoteroClient) ProcessIdentifier(ctx context.Context, id valueobject.Identifier) (service.ZoteroProcessResult, error) {
	return f.processURLResult, f.processURLErr
}
func (f *fakeZoteroClient) ProcessURL(ctx context.Context, url string) (service.ZoteroProcessResult, error) {
	return f.processURLResult, f.processURLErr
}
func (f *fakeZoteroClient) CreateItem(ctx context.Context, payload service.ItemPayload) (service.ZoteroProcessResult, error) {
	return service.ZoteroProcessResult{}, nil
}
func (f *fakeZoteroClient) UpdateItem(ctx context.Context, itemKey string, partial map[string]interface{}) error {
	return nil
}
func (f *fakeZoteroClient) GetItem(ctx context.Context, itemKey string) (service.ZoteroItem, error) {
	return service.ZoteroItem{}, nil
}
func (f *fakeZoteroClient) DeleteItem(ctx context.Context, itemKey string) error { return nil }
func (f *fakeZoteroClient) ValidateCitation(ctx context.Context, itemKey string) (service.CitationValidation, error) {
	return service.CitationValidation{Valid: true}, nil
}

// fakeFetcher is a minimal service.ContentFetcher for handler tests.
type fakeFetcher struct {
	result service.FetchResult
	err    error
}

func (f *fakeFetcher) FetchAndExtract(ctx context.Context, url string) (service.FetchResult, error) {
	return f.result, f.err
}

// fakeLLM is a minimal service.LLMExtractor for handler tests.
type fakeLLM struct {
	result service.LLMExtraction
	err    error
}

func (f *fakeLLM) ExtractMetadata(ctx context.Context, contentRef string) (service.LLMExtraction, error) {
	return f.result, f.err
}

func testOrchestrator(urlRepo *fakeURLRepo) *service.Orchestrator {
	sm := service.NewStateMachine(urlRepo, testLogger())
	linkRepo := newFakeLinkRepo()
	zotero := &fakeZoteroClient{}
	lm := service.NewLinkManager(linkRepo, urlRepo, zotero, testLogger())
	cfg := service.DefaultOrchestratorConfig()
	cfg.MaxRetries = 1
	return service.NewOrchestrator(urlRepo, sm, lm, zotero, &fakeFetcher{}, &fakeLLM{}, cfg, nil, testLogger())
}

func testBatchProcessor(urlRepo *fakeURLRepo) *service.BatchProcessor {
	orch := testOrchestrator(urlRepo)
	lookup := func(ctx context.Context, urlID string) (valueobject.UserIntent, error) {
		u, err := urlRepo.FindByID(ctx, urlID)
		if err != nil {
			return "", err
		}
		return u.UserIntent, nil
	}
	return service.NewBatchProcessor(orch, lookup, time.Hour, time.Hour, testLogger())
}
