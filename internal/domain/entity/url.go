package entity

import (
	"time"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// URL is the core entity: a raw web URL tracked through the cascade to a
// bibliographic record. processingStatus is the sole responsibility of the
// state machine (service.StateMachine); everything else here is plain data.
type URL struct {
	ID                   string                          `json:"id"`
	URL                  string                          `json:"url"`
	ProcessingStatus     valueobject.ProcessingStatus     `json:"processingStatus"`
	UserIntent           valueobject.UserIntent           `json:"userIntent"`
	ProcessingAttempts   int                              `json:"processingAttempts"`
	ProcessingHistory    []ProcessingAttempt              `json:"processingHistory"`
	LastProcessingMethod *string                          `json:"lastProcessingMethod"`
	LinkedItemCount      int                              `json:"linkedItemCount"`
	CreatedAt            time.Time                        `json:"createdAt"`
	UpdatedAt            time.Time                        `json:"updatedAt"`
}

// NewURL constructs a URL in its initial not_started state — invariant 5
// holds by construction (zero attempts, nil method).
func NewURL(id, rawURL string) *URL {
	now := time.Now()
	return &URL{
		ID:                id,
		URL:               rawURL,
		ProcessingStatus:  valueobject.StatusNotStarted,
		UserIntent:        valueobject.IntentAuto,
		ProcessingHistory: nil,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// CountableAttempt reports whether a stage counts toward the denormalised
// processingAttempts counter (invariant 2): everything except transition
// bookkeeping and manual/reset markers.
func (a ProcessingAttempt) CountableAttempt() bool {
	return a.Stage != StageTransition && !(a.Stage == StageManual && a.Method == "reset")
}

// RecomputeAttemptCount derives ProcessingAttempts from ProcessingHistory —
// used by tests and the reset path to re-assert invariant 2.
func (u *URL) RecomputeAttemptCount() int {
	n := 0
	for _, a := range u.ProcessingHistory {
		if a.CountableAttempt() {
			n++
		}
	}
	return n
}
