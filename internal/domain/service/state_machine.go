package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// transitionTable defines the allowed ProcessingStatus transitions.
// Key = from status, value = set of allowed target statuses.
//
// The spec's §4.1 prose groups enumerate 47 edges; the table below implements
// every edge named in those groups plus edges the prose never separately
// lists but the cascade algorithm (§4.4) requires: processing_content ->
// processing_zotero (the single-identifier promotion), processing_zotero ->
// processing_llm (a promoted identifier's own cascade, skipping content since
// it already ran), and exhausted -> each processing_* status (retrying an
// exhausted url re-enters the cascade directly rather than bouncing through
// not_started first). It also adds a `-> stored_custom` edge from every
// non-stored status: §4.4's manualCreate is gated on guards.CanManuallyCreate,
// documented as "always allowed except for stored*", so every status that
// guard allows needs a matching table edge — the prose's transition groups
// only spelled out exhausted -> stored_custom, which left manualCreate
// failing with ErrIllegalTransition from any other non-stored status despite
// passing its own guard. No self-loops exist for any status.
var transitionTable = map[valueobject.ProcessingStatus]map[valueobject.ProcessingStatus]bool{
	valueobject.StatusNotStarted: {
		valueobject.StatusProcessingZotero:  true,
		valueobject.StatusProcessingContent: true,
		valueobject.StatusProcessingLLM:     true,
		valueobject.StatusIgnored:           true,
		valueobject.StatusArchived:          true,
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusProcessingZotero: {
		valueobject.StatusStored:            true,
		valueobject.StatusStoredIncomplete:  true,
		valueobject.StatusProcessingContent: true,
		valueobject.StatusProcessingLLM:      true, // promoted-identifier cascade (content already ran)
		valueobject.StatusExhausted:         true,
		valueobject.StatusAwaitingSelection: true,
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusProcessingContent: {
		valueobject.StatusAwaitingSelection: true,
		valueobject.StatusAwaitingMetadata:  true,
		valueobject.StatusProcessingLLM:     true,
		valueobject.StatusExhausted:         true,
		valueobject.StatusProcessingZotero:  true, // single-identifier promotion
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusProcessingLLM: {
		valueobject.StatusAwaitingMetadata: true,
		valueobject.StatusExhausted:        true,
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusAwaitingSelection: {
		valueobject.StatusProcessingZotero: true,
		valueobject.StatusExhausted:        true,
		valueobject.StatusNotStarted:       true,
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusAwaitingMetadata: {
		valueobject.StatusStored:           true,
		valueobject.StatusStoredIncomplete: true,
		valueobject.StatusExhausted:        true,
		valueobject.StatusNotStarted:       true,
		valueobject.StatusStoredCustom:      true, // manualCreate (§4.4)
	},
	valueobject.StatusExhausted: {
		valueobject.StatusNotStarted:        true,
		valueobject.StatusStoredCustom:      true,
		valueobject.StatusIgnored:           true,
		valueobject.StatusArchived:          true,
		valueobject.StatusProcessingZotero:  true, // retrying an exhausted url is a startable state (§4.4)
		valueobject.StatusProcessingContent: true,
		valueobject.StatusProcessingLLM:     true,
	},
	valueobject.StatusStored: {
		valueobject.StatusStoredIncomplete: true,
		valueobject.StatusNotStarted:       true,
		valueobject.StatusArchived:         true,
	},
	valueobject.StatusStoredIncomplete: {
		valueobject.StatusStored:     true,
		valueobject.StatusNotStarted: true,
		valueobject.StatusArchived:   true,
	},
	valueobject.StatusStoredCustom: {
		valueobject.StatusNotStarted: true,
		valueobject.StatusArchived:   true,
	},
	valueobject.StatusIgnored: {
		valueobject.StatusNotStarted:  true,
		valueobject.StatusArchived:    true,
		valueobject.StatusStoredCustom: true, // manualCreate (§4.4)
	},
	valueobject.StatusArchived: {
		valueobject.StatusNotStarted:  true,
		valueobject.StatusIgnored:     true,
		valueobject.StatusStoredCustom: true, // manualCreate (§4.4)
	},
}

// TransitionOpts carries the optional stage attempt and extra transition
// metadata accompanying a call to StateMachine.Transition.
type TransitionOpts struct {
	// Attempt, if non-nil, is appended to history alongside the transition
	// record itself (e.g. the zotero_identifier or content_extraction
	// result that triggered this transition). Its Stage/Success/etc. fields
	// are used verbatim; Timestamp is set if zero.
	Attempt *entity.ProcessingAttempt
	// Metadata is attached to the transition entry (not the stage attempt).
	Metadata map[string]interface{}
}

// TransitionHook is called after a transition commits. Hooks are advisory
// and must never call back into Transition/ForceResetToNotStarted.
type TransitionHook func(urlID string, from, to valueobject.ProcessingStatus, snap entity.URL)

// StateMachine is the single writer for URL.ProcessingStatus. All mutation
// goes through Transition or ForceResetToNotStarted, both of which take the
// exclusive per-row lock via repository.URLRepository.WithRowLock.
type StateMachine struct {
	repo   repository.URLRepository
	logger *zap.Logger

	onEnterTerminal []func(urlID string, to valueobject.ProcessingStatus, snap entity.URL)
	onLeaveProc     []func(urlID string, from valueobject.ProcessingStatus, snap entity.URL)
	onReset         []func(urlID string, from valueobject.ProcessingStatus, snap entity.URL)
}

// NewStateMachine wires a state machine on top of a URL repository.
func NewStateMachine(repo repository.URLRepository, logger *zap.Logger) *StateMachine {
	return &StateMachine{repo: repo, logger: logger.With(zap.String("component", "state_machine"))}
}

// OnEnterTerminal registers a hook fired when to is one of the six terminal
// statuses.
func (sm *StateMachine) OnEnterTerminal(fn func(urlID string, to valueobject.ProcessingStatus, snap entity.URL)) {
	sm.onEnterTerminal = append(sm.onEnterTerminal, fn)
}

// OnLeaveProcessing registers a hook fired when from was a transient status.
func (sm *StateMachine) OnLeaveProcessing(fn func(urlID string, from valueobject.ProcessingStatus, snap entity.URL)) {
	sm.onLeaveProc = append(sm.onLeaveProc, fn)
}

// OnReset registers a hook fired when a URL returns to not_started from a
// non-not_started status.
func (sm *StateMachine) OnReset(fn func(urlID string, from valueobject.ProcessingStatus, snap entity.URL)) {
	sm.onReset = append(sm.onReset, fn)
}

// Transition moves urlID from expectedFrom to to. Fails with
// entity.ErrInvalidTransition if the URL's current status does not match
// expectedFrom, or entity.ErrIllegalTransition if (from,to) is not a table
// edge. On success it appends opts.Attempt (if given) and a transition
// record to history, increments ProcessingAttempts per §4.1's rule, and
// fires side-effect hooks after the write commits.
func (sm *StateMachine) Transition(ctx context.Context, urlID string, expectedFrom, to valueobject.ProcessingStatus, opts TransitionOpts) error {
	var snap entity.URL
	var from valueobject.ProcessingStatus

	err := sm.repo.WithRowLock(ctx, urlID, func(ctx context.Context, url *entity.URL) error {
		from = url.ProcessingStatus
		if from != expectedFrom {
			return fmt.Errorf("%w: url %s at %s, expected %s", entity.ErrInvalidTransition, urlID, from, expectedFrom)
		}
		if !transitionTable[from][to] {
			return fmt.Errorf("%w: %s -> %s", entity.ErrIllegalTransition, from, to)
		}
		sm.applyTransition(url, from, to, opts)
		snap = *url
		return nil
	})
	if err != nil {
		sm.logger.Debug("transition rejected",
			zap.String("url_id", urlID), zap.String("from", string(expectedFrom)),
			zap.String("to", string(to)), zap.Error(err))
		return err
	}

	sm.logger.Debug("transition committed",
		zap.String("url_id", urlID), zap.String("from", string(from)), zap.String("to", string(to)))
	sm.fireHooks(urlID, from, to, snap)
	return nil
}

// ForceResetToNotStarted is the universal escape hatch used by reset (§4.4)
// and the startup orphan sweep (§7): it bypasses the transition table for
// the specific processing_* -> not_started edge that the table otherwise
// forbids, because a stuck transient state must always be recoverable.
// Every other (from, not_started) pair is already a legal table edge and
// this method works for those too, so reset never needs to consult the
// table at all — guards.canReset is always true by design.
func (sm *StateMachine) ForceResetToNotStarted(ctx context.Context, urlID string, opts TransitionOpts) error {
	var snap entity.URL
	var from valueobject.ProcessingStatus

	err := sm.repo.WithRowLock(ctx, urlID, func(ctx context.Context, url *entity.URL) error {
		from = url.ProcessingStatus
		sm.applyTransition(url, from, valueobject.StatusNotStarted, opts)
		snap = *url
		return nil
	})
	if err != nil {
		return err
	}
	sm.fireHooks(urlID, from, valueobject.StatusNotStarted, snap)
	return nil
}

// applyTransition performs the in-memory mutation shared by Transition and
// ForceResetToNotStarted: append the optional stage attempt, append the
// transition record, bump ProcessingAttempts, update status/timestamps.
func (sm *StateMachine) applyTransition(url *entity.URL, from, to valueobject.ProcessingStatus, opts TransitionOpts) {
	now := time.Now()

	if opts.Attempt != nil {
		a := *opts.Attempt
		if a.Timestamp.IsZero() {
			a.Timestamp = now
		}
		url.ProcessingHistory = append(url.ProcessingHistory, a)
		if a.CountableAttempt() {
			url.ProcessingAttempts++
		}
		if a.Method != "" {
			m := a.Method
			url.LastProcessingMethod = &m
		}
	}

	url.ProcessingHistory = append(url.ProcessingHistory, entity.ProcessingAttempt{
		Timestamp:  now,
		Stage:      entity.StageTransition,
		Success:    true,
		Transition: &entity.TransitionRecord{From: from, To: to},
		Metadata:   opts.Metadata,
	})

	url.ProcessingStatus = to
	url.UpdatedAt = now

	// Invariant 5: not_started always carries processingAttempts=0 and a
	// nil lastProcessingMethod, regardless of which edge got here (reset,
	// orphan sweep, unignore, unarchive, ...) or what opts.Attempt set above.
	if to == valueobject.StatusNotStarted {
		url.ProcessingAttempts = 0
		url.LastProcessingMethod = nil
	}
}

func (sm *StateMachine) fireHooks(urlID string, from, to valueobject.ProcessingStatus, snap entity.URL) {
	if to.Terminal() {
		for _, fn := range sm.onEnterTerminal {
			fn(urlID, to, snap)
		}
	}
	if from.Transient() {
		for _, fn := range sm.onLeaveProc {
			fn(urlID, from, snap)
		}
	}
	if to == valueobject.StatusNotStarted && from != valueobject.StatusNotStarted {
		for _, fn := range sm.onReset {
			fn(urlID, from, snap)
		}
	}
}

// ValidateTransitionGraph checks the static invariants §4.1 demands at
// startup: every non-terminal status is reachable from not_started, every
// terminal status is reachable, and no status is an orphan (unreachable and
// unable to reach anything). Aborts startup by returning an error.
func ValidateTransitionGraph() error {
	reachable := map[valueobject.ProcessingStatus]bool{valueobject.StatusNotStarted: true}
	queue := []valueobject.ProcessingStatus{valueobject.StatusNotStarted}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for to := range transitionTable[cur] {
			if !reachable[to] {
				reachable[to] = true
				queue = append(queue, to)
			}
		}
	}

	var unreachable []valueobject.ProcessingStatus
	for _, s := range valueobject.AllStatuses {
		if !reachable[s] {
			unreachable = append(unreachable, s)
		}
	}
	if len(unreachable) > 0 {
		return fmt.Errorf("validateTransitionGraph: unreachable statuses from not_started: %v", unreachable)
	}

	for _, s := range valueobject.AllStatuses {
		_, hasOutgoing := transitionTable[s]
		if !s.Terminal() && (!hasOutgoing || len(transitionTable[s]) == 0) {
			return fmt.Errorf("validateTransitionGraph: non-terminal status %s has no outgoing edges (orphan)", s)
		}
	}

	return nil
}
