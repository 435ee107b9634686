package service

import (
	"context"
	"errors"
	"testing"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

type fakeFetcher struct {
	result FetchResult
	err    error
}

func (f *fakeFetcher) FetchAndExtract(ctx context.Context, url string) (FetchResult, error) {
	return f.result, f.err
}

type fakeLLM struct {
	result LLMExtraction
	err    error
}

func (f *fakeLLM) ExtractMetadata(ctx context.Context, contentRef string) (LLMExtraction, error) {
	return f.result, f.err
}

func newTestOrchestrator(urlRepo *fakeURLRepo, linkRepo *fakeLinkRepo, zotero *fakeZoteroClient, fetcher *fakeFetcher, llm *fakeLLM) *Orchestrator {
	sm := NewStateMachine(urlRepo, testLogger())
	lm := NewLinkManager(linkRepo, urlRepo, zotero, testLogger())
	cfg := DefaultOrchestratorConfig()
	cfg.MaxRetries = 1 // one attempt per stage: no real sleeps in test runs
	return NewOrchestrator(urlRepo, sm, lm, zotero, fetcher, llm, cfg, nil, testLogger())
}

// Scenario: a URL with a DOI resolves on the first Zotero attempt and its
// item already satisfies citation validation -> stored.
func TestProcess_HappyDOIPath(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://doi.org/10.1000/xyz"))
	linkRepo := newFakeLinkRepo()
	zotero := &fakeZoteroClient{
		processURLResult: ZoteroProcessResult{Success: true, ItemKey: "ABC123"},
		validation:       CitationValidation{Valid: true},
	}
	o := newTestOrchestrator(urlRepo, linkRepo, zotero, &fakeFetcher{}, &fakeLLM{})

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalStatus != valueobject.StatusStored {
		t.Errorf("expected stored, got %s", result.FinalStatus)
	}
	if result.ItemKey != "ABC123" {
		t.Errorf("expected item key ABC123, got %s", result.ItemKey)
	}
	links, _ := linkRepo.FindByURLID(context.Background(), "u1")
	if len(links) != 1 || !links[0].CreatedByTheodore {
		t.Error("expected one createdByTheodore link to be recorded")
	}
}

// Scenario: Zotero has nothing, content extraction finds two identifiers ->
// awaiting_selection for the user to disambiguate.
func TestProcess_CascadesToAwaitingSelection(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/paper"))
	zotero := &fakeZoteroClient{
		processURLResult: ZoteroProcessResult{Success: false},
	}
	fetcher := &fakeFetcher{result: FetchResult{
		Identifiers: []valueobject.Identifier{
			{Kind: valueobject.IdentifierDOI, Value: "10.1/a"},
			{Kind: valueobject.IdentifierISBN, Value: "978-1"},
		},
	}}
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), zotero, fetcher, &fakeLLM{})

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalStatus != valueobject.StatusAwaitingSelection {
		t.Errorf("expected awaiting_selection, got %s", result.FinalStatus)
	}
	if !result.Pending {
		t.Error("expected Pending=true")
	}
}

// Scenario: zotero and content both fail permanently, and the LLM provider
// is disabled -> exhausted, with every stage recorded in history.
func TestProcess_FullCascadeToExhausted(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	zotero := &fakeZoteroClient{processURLErr: errors.New("zotero api error: citationlinker unavailable")}
	fetcher := &fakeFetcher{err: errors.New("invalid html: could not parse document")}
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), zotero, fetcher, &fakeLLM{})
	o.cfg.LLMProvider = "disabled"

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalStatus != valueobject.StatusExhausted {
		t.Errorf("expected exhausted, got %s", result.FinalStatus)
	}

	got, _ := urlRepo.FindByID(context.Background(), "u1")
	if got.ProcessingStatus != valueobject.StatusExhausted {
		t.Errorf("persisted status should be exhausted, got %s", got.ProcessingStatus)
	}
	if len(got.ProcessingHistory) == 0 {
		t.Error("expected processing history to be recorded across the cascade")
	}
}

// withRetry must cap an unknown-category failure at 2 attempts (one retry)
// even when the orchestrator is configured for more (§4.3 "yes (once)").
func TestWithRetry_UnknownCategoryCapsAtTwoAttempts(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})
	o.cfg.MaxRetries = 3

	calls := 0
	err := o.withRetry(context.Background(), func() *ProcessingError {
		calls++
		return ClassifyError(errors.New("something odd happened"))
	})
	if err == nil || err.Category != valueobject.CategoryUnknown {
		t.Fatalf("expected an unknown-category error, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly 2 attempts for unknown category, got %d", calls)
	}
}

// Scenario: content extraction surfaces usable metadata directly ->
// awaiting_metadata, never reaching the LLM stage.
func TestProcess_ContentMetadataReachesAwaitingMetadata(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/article"))
	zotero := &fakeZoteroClient{processURLResult: ZoteroProcessResult{Success: false}}
	fetcher := &fakeFetcher{result: FetchResult{
		Metadata: map[string]interface{}{"title": "A Paper", "date": "2020"},
	}}
	llm := &fakeLLM{}
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), zotero, fetcher, llm)

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalStatus != valueobject.StatusAwaitingMetadata {
		t.Errorf("expected awaiting_metadata, got %s", result.FinalStatus)
	}
}

// Scenario: intent excludes automatic processing -> no cascade runs at all.
func TestProcess_SkipsWhenIntentExcludesAutoProcessing(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	u.UserIntent = valueobject.IntentIgnore
	urlRepo := newFakeURLRepo(u)
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Skipped {
		t.Error("expected Skipped=true")
	}
	got, _ := urlRepo.FindByID(context.Background(), "u1")
	if got.ProcessingStatus != valueobject.StatusNotStarted {
		t.Errorf("status should be untouched, got %s", got.ProcessingStatus)
	}
}

// Scenario: a URL already mid-cascade refuses a second concurrent Process call.
func TestProcess_RefusesConcurrentInFlight(t *testing.T) {
	urlRepo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/x"))
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	if !o.acquireInFlight("u1") {
		t.Fatal("first acquire should succeed")
	}
	defer o.releaseInFlight("u1")

	_, err := o.Process(context.Background(), "u1")
	if !errors.Is(err, entity.ErrURLInFlight) {
		t.Errorf("expected ErrURLInFlight, got %v", err)
	}
}

// Scenario: a not-startable status (e.g. already stored) refuses processing.
func TestProcess_RefusesNonStartableStatus(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	u.ProcessingStatus = valueobject.StatusStored
	urlRepo := newFakeURLRepo(u)
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	result, err := o.Process(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Refused {
		t.Error("expected Refused=true")
	}
}

func TestReset_AlwaysSucceedsFromAnyStatus(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	u.ProcessingStatus = valueobject.StatusProcessingContent
	u.ProcessingAttempts = 3
	urlRepo := newFakeURLRepo(u)
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	if err := o.Reset(context.Background(), "u1", false); err != nil {
		t.Fatal(err)
	}
	got, _ := urlRepo.FindByID(context.Background(), "u1")
	if got.ProcessingStatus != valueobject.StatusNotStarted {
		t.Errorf("expected not_started, got %s", got.ProcessingStatus)
	}
	if got.ProcessingAttempts != 0 {
		t.Errorf("expected processingAttempts reset to 0, got %d", got.ProcessingAttempts)
	}
}

// preserveHistory=true is the spec's documented default for reset(urlId)
// and must still zero processingAttempts/lastProcessingMethod (invariant 5)
// — it only governs whether this reset is tagged as history-preserving in
// its own metadata, never whether attempts/method get zeroed.
func TestReset_PreserveHistoryStillZeroesAttemptsAndMethod(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	u.ProcessingStatus = valueobject.StatusProcessingContent
	u.ProcessingAttempts = 2
	method := "content_extraction"
	u.LastProcessingMethod = &method
	urlRepo := newFakeURLRepo(u)
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	if err := o.Reset(context.Background(), "u1", true); err != nil {
		t.Fatal(err)
	}
	got, _ := urlRepo.FindByID(context.Background(), "u1")
	if got.ProcessingStatus != valueobject.StatusNotStarted {
		t.Errorf("expected not_started, got %s", got.ProcessingStatus)
	}
	if got.ProcessingAttempts != 0 {
		t.Errorf("expected processingAttempts reset to 0, got %d", got.ProcessingAttempts)
	}
	if got.LastProcessingMethod != nil {
		t.Errorf("expected lastProcessingMethod nil, got %v", *got.LastProcessingMethod)
	}
}

// manualCreate must be legal from any non-stored status per §4.4 ("always
// allowed except for stored*"), not only from exhausted.
func TestManualCreate_AllowedFromNotStarted(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/x")
	urlRepo := newFakeURLRepo(u)
	zotero := &fakeZoteroClient{createItemResult: ZoteroProcessResult{Success: true, ItemKey: "ABC123"}}
	o := newTestOrchestrator(urlRepo, newFakeLinkRepo(), zotero, &fakeFetcher{}, &fakeLLM{})

	result, err := o.ManualCreate(context.Background(), "u1", ItemPayload{})
	if err != nil {
		t.Fatal(err)
	}
	if result.FinalStatus != valueobject.StatusStoredCustom {
		t.Errorf("expected stored_custom, got %s", result.FinalStatus)
	}
}

func TestDeleteItemAndUnlink_RefusedWhenShared(t *testing.T) {
	u1 := entity.NewURL("u1", "https://example.com/a")
	u1.ProcessingStatus = valueobject.StatusStored
	urlRepo := newFakeURLRepo(u1)
	linkRepo := newFakeLinkRepo(
		&entity.ZoteroItemLink{ID: "l1", URLID: "u1", ItemKey: "SHARED", CreatedByTheodore: true},
		&entity.ZoteroItemLink{ID: "l2", URLID: "u2", ItemKey: "SHARED", CreatedByTheodore: true},
	)
	o := newTestOrchestrator(urlRepo, linkRepo, &fakeZoteroClient{}, &fakeFetcher{}, &fakeLLM{})

	if err := o.DeleteItemAndUnlink(context.Background(), "u1"); err == nil {
		t.Fatal("expected deletion to be refused")
	}
}
