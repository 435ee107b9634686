package entity

import (
	"time"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// Stage identifies what kind of work a ProcessingAttempt records: one
// attempt at extraction via a specific method, or a pure transition/manual
// bookkeeping event.
type Stage string

const (
	StageZoteroIdentifier Stage = "zotero_identifier"
	StageZoteroURL        Stage = "zotero_url"
	StageContentExtract   Stage = "content_extraction"
	StageLLM              Stage = "llm"
	StageManual           Stage = "manual"
	StageTransition       Stage = "transition"
)

// TransitionRecord captures the from/to pair of a status change, embedded in
// a ProcessingAttempt with Stage == StageTransition.
type TransitionRecord struct {
	From valueobject.ProcessingStatus `json:"from"`
	To   valueobject.ProcessingStatus `json:"to"`
}

// ProcessingAttempt is one append-only record per stage invocation or
// transition event. processingHistory is never mutated or deleted except by
// reset (which may truncate or append a reset marker — see StateMachine).
type ProcessingAttempt struct {
	Timestamp     time.Time                   `json:"timestamp"`
	Stage         Stage                       `json:"stage"`
	Method        string                      `json:"method"`
	Success       bool                        `json:"success"`
	ItemKey       string                      `json:"itemKey,omitempty"`
	DurationMs    int64                       `json:"durationMs,omitempty"`
	ErrorCategory valueobject.ErrorCategory   `json:"errorCategory,omitempty"`
	ErrorMessage  string                      `json:"errorMessage,omitempty"`
	Transition    *TransitionRecord           `json:"transition,omitempty"`
	Metadata      map[string]interface{}      `json:"metadata,omitempty"`
}
