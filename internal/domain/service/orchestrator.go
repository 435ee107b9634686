package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// OrchestratorConfig carries the §6.6 tunables the cascade consults.
// The orchestrator keeps the copy it was constructed with; a later
// hot-reload of infrastructure/config does not reach it.
type OrchestratorConfig struct {
	MaxRetries         int
	BackoffMax         time.Duration
	IdentifierPriority []valueobject.IdentifierKind
	LLMProvider        string // "local" | "remote" | "disabled"
	MaxLLMTokens       int64  // 0 = unlimited; shared across the orchestrator's lifetime
}

// DefaultOrchestratorConfig matches §6.6's defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRetries:         3,
		BackoffMax:         60 * time.Second,
		IdentifierPriority: valueobject.DefaultIdentifierPriority,
		LLMProvider:        "remote",
	}
}

// ProcessingResult is process()'s return value (§4.4) — never an error for
// expected collaborator failures, only for invariant violations or
// unavailable collaborators.
type ProcessingResult struct {
	FinalStatus     valueobject.ProcessingStatus
	ItemKey         string
	StagesAttempted []string
	Error           *ProcessingError
	Pending         bool // true when the result is an awaiting_* status, not a terminal one
	Skipped         bool // true when intent excluded automatic processing
	Refused         bool // true when the URL's current status is not startable
}

// Orchestrator is the heart of the system: process(urlId) -> ProcessingResult.
type Orchestrator struct {
	repo    repository.URLRepository
	sm      *StateMachine
	guards  *Guards
	links   *LinkManager
	zotero  ZoteroClient
	fetcher ContentFetcher
	llm     LLMExtractor
	cfg       OrchestratorConfig
	logger    *zap.Logger
	costGuard *CostGuard
	preview   func(map[string]interface{}) string

	inFlightMu sync.Mutex
	inFlight   map[string]struct{}
}

// NewOrchestrator wires the cascade on top of its collaborators. The cost
// guard it creates is shared across every Process call this orchestrator
// ever makes, so cfg.MaxLLMTokens bounds total LLM spend for the
// orchestrator's lifetime, not per-URL (mirroring a batch session's budget).
//
// preview renders extracted metadata into the citation-preview note stashed
// on an attempt's Metadata["preview_md"]; infrastructure/contentfetch
// supplies the real implementation, kept out of this package to preserve
// the domain layer's independence from infrastructure. A nil preview is a
// no-op.
func NewOrchestrator(repo repository.URLRepository, sm *StateMachine, links *LinkManager, zotero ZoteroClient, fetcher ContentFetcher, llm LLMExtractor, cfg OrchestratorConfig, preview func(map[string]interface{}) string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		repo:      repo,
		sm:        sm,
		guards:    NewGuards(),
		links:     links,
		zotero:    zotero,
		fetcher:   fetcher,
		llm:       llm,
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "orchestrator")),
		costGuard: NewCostGuard(cfg.MaxLLMTokens, 0, logger),
		preview:   preview,
		inFlight:  make(map[string]struct{}),
	}
}

func (o *Orchestrator) renderPreview(meta map[string]interface{}) string {
	if o.preview == nil {
		return ""
	}
	return o.preview(meta)
}

// Process runs the cascade for a single URL. At most one orchestrator task
// per urlId may run at a time — enforced by the in-memory in-flight set
// (§5), a cheap short-circuit in front of the state machine's own row lock.
func (o *Orchestrator) Process(ctx context.Context, urlID string) (*ProcessingResult, error) {
	if !o.acquireInFlight(urlID) {
		return nil, fmt.Errorf("%w: %s", entity.ErrURLInFlight, urlID)
	}
	defer o.releaseInFlight(urlID)

	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return nil, err
	}

	if url.UserIntent.SkipsAutoProcessing() {
		return &ProcessingResult{FinalStatus: url.ProcessingStatus, Skipped: true}, nil
	}
	if !url.ProcessingStatus.Startable() {
		return &ProcessingResult{FinalStatus: url.ProcessingStatus, Refused: true}, nil
	}

	startStatus := url.ProcessingStatus
	var stages []string

	// --- Stage 1: Zotero-direct ---
	if err := o.sm.Transition(ctx, urlID, startStatus, valueobject.StatusProcessingZotero, TransitionOpts{}); err != nil {
		return nil, err
	}
	stages = append(stages, "zotero")

	ok, itemKey, method, procErr := o.stageZotero(ctx, url.URL, nil)
	if ok {
		return o.finishZoteroSuccess(ctx, urlID, valueobject.StatusProcessingZotero, itemKey, method, stages)
	}
	attempt1 := stageAttempt(entity.StageZoteroIdentifier, method, false, procErr)
	if !procErr.Cascade() {
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingZotero, valueobject.StatusExhausted, TransitionOpts{Attempt: &attempt1}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, StagesAttempted: stages, Error: procErr}, nil
	}

	// --- Stage 2: Content-based ---
	if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingZotero, valueobject.StatusProcessingContent, TransitionOpts{Attempt: &attempt1}); err != nil {
		return nil, err
	}
	stages = append(stages, "content")

	fetched, contentErr := o.stageContent(ctx, url.URL)
	identifiers, metadata := fetched.Identifiers, fetched.Metadata

	if contentErr == nil && len(identifiers) >= 2 {
		attempt2 := stageAttempt(entity.StageContentExtract, "multi_identifier", true, nil)
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingContent, valueobject.StatusAwaitingSelection, TransitionOpts{Attempt: &attempt2}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusAwaitingSelection, StagesAttempted: stages, Pending: true}, nil
	}

	if contentErr == nil && len(identifiers) == 1 {
		// Promotion is a fresh attempt, per the resolved Open Question in §9:
		// it increments processingAttempts and appends a new history entry
		// rather than being treated as a continuation of stage 1.
		attempt2 := stageAttempt(entity.StageContentExtract, "single_identifier", true, nil)
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingContent, valueobject.StatusProcessingZotero, TransitionOpts{Attempt: &attempt2}); err != nil {
			return nil, err
		}
		stages = append(stages, "zotero_promoted")

		ok, itemKey, method, procErr := o.stageZotero(ctx, url.URL, &identifiers[0])
		if ok {
			return o.finishZoteroSuccess(ctx, urlID, valueobject.StatusProcessingZotero, itemKey, method, stages)
		}
		promotedAttempt := stageAttempt(entity.StageZoteroIdentifier, method, false, procErr)
		if !procErr.Cascade() {
			if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingZotero, valueobject.StatusExhausted, TransitionOpts{Attempt: &promotedAttempt}); err != nil {
				return nil, err
			}
			return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, StagesAttempted: stages, Error: procErr}, nil
		}
		// Cascades onward into LLM stage below, from processing_zotero. The
		// content fetch already ran above, so its ContentRef is reused rather
		// than fetching again.
		return o.cascadeToLLM(ctx, urlID, fetched.ContentRef, valueobject.StatusProcessingZotero, append(stages, "llm"), &promotedAttempt)
	}

	if contentErr == nil && len(metadata) > 0 {
		score := ScoreMetadata(metadata)
		attempt2 := stageAttempt(entity.StageContentExtract, "metadata", true, nil)
		attempt2.Metadata = map[string]interface{}{"quality_score": score, "auto_promote": AutoPromotes(score), "fields": metadata, "preview_md": o.renderPreview(metadata)}
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingContent, valueobject.StatusAwaitingMetadata, TransitionOpts{Attempt: &attempt2}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusAwaitingMetadata, StagesAttempted: stages, Pending: true}, nil
	}

	attempt2 := stageAttempt(entity.StageContentExtract, "", false, contentErr)
	if contentErr != nil && !contentErr.Cascade() {
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingContent, valueobject.StatusExhausted, TransitionOpts{Attempt: &attempt2}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, StagesAttempted: stages, Error: contentErr}, nil
	}

	// --- Stage 3: LLM ---
	return o.cascadeToLLM(ctx, urlID, fetched.ContentRef, valueobject.StatusProcessingContent, append(stages, "llm"), &attempt2)
}

// cascadeToLLM runs stage 3 from fromStatus (processing_content, or
// processing_zotero on the promotion path), having already appended the
// triggering stage's attempt record as prevAttempt. contentRef is the
// already-fetched content reference from stage_content — stage_llm never
// fetches on its own.
func (o *Orchestrator) cascadeToLLM(ctx context.Context, urlID, contentRef string, fromStatus valueobject.ProcessingStatus, stages []string, prevAttempt *entity.ProcessingAttempt) (*ProcessingResult, error) {
	if o.cfg.LLMProvider == "disabled" {
		if err := o.sm.Transition(ctx, urlID, fromStatus, valueobject.StatusExhausted, TransitionOpts{Attempt: prevAttempt}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, StagesAttempted: stages,
			Error: &ProcessingError{Category: valueobject.CategoryPermanent, Message: "no llm provider configured"}}, nil
	}

	if err := o.sm.Transition(ctx, urlID, fromStatus, valueobject.StatusProcessingLLM, TransitionOpts{Attempt: prevAttempt}); err != nil {
		return nil, err
	}

	metadata, llmErr := o.stageLLM(ctx, contentRef)
	if llmErr != nil {
		attempt := stageAttempt(entity.StageLLM, "", false, llmErr)
		if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingLLM, valueobject.StatusExhausted, TransitionOpts{Attempt: &attempt}); err != nil {
			return nil, err
		}
		return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, StagesAttempted: stages, Error: llmErr}, nil
	}

	score := ScoreMetadata(metadata)
	attempt := stageAttempt(entity.StageLLM, "llm_extract", true, nil)
	attempt.Metadata = map[string]interface{}{"quality_score": score, "auto_promote": AutoPromotes(score), "fields": metadata, "preview_md": o.renderPreview(metadata)}
	if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingLLM, valueobject.StatusAwaitingMetadata, TransitionOpts{Attempt: &attempt}); err != nil {
		return nil, err
	}
	return &ProcessingResult{FinalStatus: valueobject.StatusAwaitingMetadata, StagesAttempted: stages, Pending: true}, nil
}

// finishZoteroSuccess validates the created/reused item's citation and
// transitions to stored or stored_incomplete accordingly (§4.4).
func (o *Orchestrator) finishZoteroSuccess(ctx context.Context, urlID string, from valueobject.ProcessingStatus, itemKey, method string, stages []string) (*ProcessingResult, error) {
	validation, err := o.zotero.ValidateCitation(ctx, itemKey)
	if err != nil {
		return nil, fmt.Errorf("validate citation: %w", err)
	}

	if _, err := o.links.Record(ctx, urlID, itemKey, true); err != nil {
		return nil, fmt.Errorf("record link: %w", err)
	}

	finalStatus := valueobject.StatusStoredIncomplete
	if validation.Valid {
		finalStatus = valueobject.StatusStored
	}

	attempt := entity.ProcessingAttempt{
		Stage:   entity.StageZoteroIdentifier,
		Method:  method,
		Success: true,
		ItemKey: itemKey,
	}
	if method == "url" {
		attempt.Stage = entity.StageZoteroURL
	}
	if err := o.sm.Transition(ctx, urlID, from, finalStatus, TransitionOpts{Attempt: &attempt}); err != nil {
		return nil, err
	}

	return &ProcessingResult{FinalStatus: finalStatus, ItemKey: itemKey, StagesAttempted: stages}, nil
}

// --- Stage implementations ---

func (o *Orchestrator) stageZotero(ctx context.Context, rawURL string, override *valueobject.Identifier) (ok bool, itemKey, method string, procErr *ProcessingError) {
	var result ZoteroProcessResult
	method = "url"
	if override != nil {
		method = string(override.Kind)
	}

	retryErr := o.withRetry(ctx, func() *ProcessingError {
		var zerr error
		if override != nil {
			result, zerr = o.zotero.ProcessIdentifier(ctx, *override)
		} else {
			result, zerr = o.zotero.ProcessURL(ctx, rawURL)
		}
		if zerr != nil {
			return ClassifyError(zerr)
		}
		if !result.Success {
			return &ProcessingError{Category: valueobject.CategoryZoteroAPI, Message: "zotero did not produce an item"}
		}
		return nil
	})
	if retryErr != nil {
		return false, "", method, retryErr
	}
	return true, result.ItemKey, method, nil
}

func (o *Orchestrator) stageContent(ctx context.Context, rawURL string) (result FetchResult, procErr *ProcessingError) {
	retryErr := o.withRetry(ctx, func() *ProcessingError {
		var ferr error
		result, ferr = o.fetcher.FetchAndExtract(ctx, rawURL)
		if ferr != nil {
			return ClassifyError(ferr)
		}
		return nil
	})
	if retryErr != nil {
		return FetchResult{}, retryErr
	}
	result.Identifiers = prioritiseIdentifiers(result.Identifiers, o.cfg.IdentifierPriority)
	return result, nil
}

func (o *Orchestrator) stageLLM(ctx context.Context, contentRef string) (map[string]interface{}, *ProcessingError) {
	if err := o.costGuard.CheckBudget(); err != nil {
		return nil, &ProcessingError{Category: valueobject.CategoryPermanent, Message: err.Error(), Cause: err}
	}

	var extraction LLMExtraction
	retryErr := o.withRetry(ctx, func() *ProcessingError {
		var lerr error
		extraction, lerr = o.llm.ExtractMetadata(ctx, contentRef)
		if lerr != nil {
			return ClassifyError(lerr)
		}
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	if err := o.costGuard.AddTokens(int64(extraction.TokensUsed)); err != nil {
		o.logger.Warn("llm token budget exhausted", zap.Int("tokens_used", extraction.TokensUsed))
		return nil, &ProcessingError{Category: valueobject.CategoryPermanent, Message: err.Error(), Cause: err}
	}
	return extraction.Metadata, nil
}

// withRetry retries a collaborator call up to cfg.MaxRetries times with the
// classified category's exponential backoff, stopping early on a
// non-retryable category (§4.4's "Failure semantics").
func (o *Orchestrator) withRetry(ctx context.Context, do func() *ProcessingError) *ProcessingError {
	maxRetries := o.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var last *ProcessingError
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := do()
		if err == nil {
			return nil
		}
		last = err
		// unknown pins its own cap at 2 attempts ("yes (once)", §4.3)
		// regardless of the configured MaxRetries other categories get.
		limit := maxRetries
		if override := err.Category.MaxAttempts(); override > 0 && override < limit {
			limit = override
		}
		if !err.Retryable() || attempt >= limit {
			return last
		}
		delay := Backoff(err.Category, attempt, o.cfg.BackoffMax)
		select {
		case <-ctx.Done():
			return ClassifyError(ctx.Err())
		case <-time.After(delay):
		}
	}
	return last
}

func (o *Orchestrator) acquireInFlight(urlID string) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if _, busy := o.inFlight[urlID]; busy {
		return false
	}
	o.inFlight[urlID] = struct{}{}
	return true
}

func (o *Orchestrator) releaseInFlight(urlID string) {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	delete(o.inFlight, urlID)
}

func stageAttempt(stage entity.Stage, method string, success bool, procErr *ProcessingError) entity.ProcessingAttempt {
	a := entity.ProcessingAttempt{Stage: stage, Method: method, Success: success}
	if procErr != nil {
		a.ErrorCategory = procErr.Category
		a.ErrorMessage = procErr.Message
	}
	return a
}

func prioritiseIdentifiers(found []valueobject.Identifier, priority []valueobject.IdentifierKind) []valueobject.Identifier {
	if len(priority) == 0 {
		priority = valueobject.DefaultIdentifierPriority
	}
	rank := make(map[valueobject.IdentifierKind]int, len(priority))
	for i, k := range priority {
		rank[k] = i
	}
	out := make([]valueobject.Identifier, len(found))
	copy(out, found)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rank[out[j].Kind] < rank[out[j-1].Kind]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
