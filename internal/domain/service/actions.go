package service

import (
	"context"
	"fmt"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// The operations below are the §6.5 orchestrator-facing surface beyond
// Process itself: the user-driven branches of the cascade that do not run
// automatically. Each checks its guard first and returns the guard's denial
// reason verbatim rather than a generic error, so the interface layer can
// surface it without re-deriving why.

// SetIntent records the user's declared intent. Purely advisory — it does
// not itself transition ProcessingStatus.
func (o *Orchestrator) SetIntent(ctx context.Context, urlID string, intent valueobject.UserIntent) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	if g := o.guards.CanSetIntent(url, intent); !g.Allowed {
		return fmt.Errorf("set intent: %s", g.Reason)
	}
	url.UserIntent = intent
	return o.repo.Save(ctx, url)
}

// SelectIdentifier resolves awaiting_selection by retrying stage_zotero with
// the user's chosen identifier. Mirrors the single-identifier promotion path
// in Process, but the trigger is a user action instead of the cascade.
func (o *Orchestrator) SelectIdentifier(ctx context.Context, urlID string, chosen valueobject.Identifier) (*ProcessingResult, error) {
	if !o.acquireInFlight(urlID) {
		return nil, fmt.Errorf("%w: %s", entity.ErrURLInFlight, urlID)
	}
	defer o.releaseInFlight(urlID)

	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return nil, err
	}
	if g := o.guards.CanSelectIdentifier(url); !g.Allowed {
		return nil, fmt.Errorf("select identifier: %s", g.Reason)
	}

	if err := o.sm.Transition(ctx, urlID, valueobject.StatusAwaitingSelection, valueobject.StatusProcessingZotero, TransitionOpts{}); err != nil {
		return nil, err
	}

	ok, itemKey, method, procErr := o.stageZotero(ctx, url.URL, &chosen)
	if ok {
		return o.finishZoteroSuccess(ctx, urlID, valueobject.StatusProcessingZotero, itemKey, method, []string{"zotero_selected"})
	}
	attempt := stageAttempt(entity.StageZoteroIdentifier, method, false, procErr)
	if err := o.sm.Transition(ctx, urlID, valueobject.StatusProcessingZotero, valueobject.StatusExhausted, TransitionOpts{Attempt: &attempt}); err != nil {
		return nil, err
	}
	return &ProcessingResult{FinalStatus: valueobject.StatusExhausted, Error: procErr}, nil
}

// ApproveMetadata commits the extracted metadata as a new Zotero item and
// resolves awaiting_metadata to stored/stored_incomplete (§4.4).
func (o *Orchestrator) ApproveMetadata(ctx context.Context, urlID string, payload ItemPayload) (*ProcessingResult, error) {
	if !o.acquireInFlight(urlID) {
		return nil, fmt.Errorf("%w: %s", entity.ErrURLInFlight, urlID)
	}
	defer o.releaseInFlight(urlID)

	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return nil, err
	}
	if g := o.guards.CanApproveMetadata(url); !g.Allowed {
		return nil, fmt.Errorf("approve metadata: %s", g.Reason)
	}

	result, err := o.zotero.CreateItem(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}

	validation, err := o.zotero.ValidateCitation(ctx, result.ItemKey)
	if err != nil {
		return nil, fmt.Errorf("validate citation: %w", err)
	}
	if _, err := o.links.Record(ctx, urlID, result.ItemKey, true); err != nil {
		return nil, fmt.Errorf("record link: %w", err)
	}

	finalStatus := valueobject.StatusStoredIncomplete
	if validation.Valid {
		finalStatus = valueobject.StatusStored
	}
	attempt := entity.ProcessingAttempt{Stage: entity.StageManual, Method: "approve_metadata", Success: true, ItemKey: result.ItemKey}
	if err := o.sm.Transition(ctx, urlID, valueobject.StatusAwaitingMetadata, finalStatus, TransitionOpts{Attempt: &attempt}); err != nil {
		return nil, err
	}
	return &ProcessingResult{FinalStatus: finalStatus, ItemKey: result.ItemKey}, nil
}

// RejectMetadata discards the extracted metadata without storing anything,
// moving the URL to exhausted.
func (o *Orchestrator) RejectMetadata(ctx context.Context, urlID string) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	if g := o.guards.CanRejectMetadata(url); !g.Allowed {
		return fmt.Errorf("reject metadata: %s", g.Reason)
	}
	attempt := entity.ProcessingAttempt{Stage: entity.StageManual, Method: "reject_metadata", Success: false}
	return o.sm.Transition(ctx, urlID, valueobject.StatusAwaitingMetadata, valueobject.StatusExhausted, TransitionOpts{Attempt: &attempt})
}

// ManualCreate lets a user bypass the cascade entirely and hand-author a
// citation from any non-stored URL (not_started, any processing_* stage,
// awaiting_*, exhausted, ignored, or archived), landing in stored_custom.
// createdByTheodore is false on the resulting link, since the content came
// from the user, not an automatic method (§4.6).
func (o *Orchestrator) ManualCreate(ctx context.Context, urlID string, payload ItemPayload) (*ProcessingResult, error) {
	if !o.acquireInFlight(urlID) {
		return nil, fmt.Errorf("%w: %s", entity.ErrURLInFlight, urlID)
	}
	defer o.releaseInFlight(urlID)

	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return nil, err
	}
	if g := o.guards.CanManuallyCreate(url); !g.Allowed {
		return nil, fmt.Errorf("manual create: %s", g.Reason)
	}

	result, err := o.zotero.CreateItem(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("create item: %w", err)
	}
	if _, err := o.links.Record(ctx, urlID, result.ItemKey, false); err != nil {
		return nil, fmt.Errorf("record link: %w", err)
	}

	attempt := entity.ProcessingAttempt{Stage: entity.StageManual, Method: "manual_create", Success: true, ItemKey: result.ItemKey}
	if err := o.sm.Transition(ctx, urlID, url.ProcessingStatus, valueobject.StatusStoredCustom, TransitionOpts{Attempt: &attempt}); err != nil {
		return nil, err
	}
	return &ProcessingResult{FinalStatus: valueobject.StatusStoredCustom, ItemKey: result.ItemKey}, nil
}

// Reset is the universal escape hatch (§4.4, §8 invariant 8): always legal,
// regardless of current status. processingAttempts and lastProcessingMethod
// are zeroed unconditionally by the state machine's not_started handling
// (invariant 5) — preserveHistory controls nothing about that; the
// append-only processingHistory itself is never truncated either way, only
// whether this reset is tagged as such in its metadata.
func (o *Orchestrator) Reset(ctx context.Context, urlID string, preserveHistory bool) error {
	attempt := entity.ProcessingAttempt{Stage: entity.StageManual, Method: "reset", Success: true,
		Metadata: map[string]interface{}{"preserve_history": preserveHistory}}
	return o.sm.ForceResetToNotStarted(ctx, urlID, TransitionOpts{Attempt: &attempt})
}

// Unlink delegates to LinkManager after confirming the guard.
func (o *Orchestrator) Unlink(ctx context.Context, urlID string) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	if g := o.guards.CanUnlink(url); !g.Allowed {
		return fmt.Errorf("unlink: %s", g.Reason)
	}
	return o.links.Unlink(ctx, urlID)
}

// DeleteItemAndUnlink delegates straight to LinkManager, which owns the
// CanDeleteZoteroItem check itself.
func (o *Orchestrator) DeleteItemAndUnlink(ctx context.Context, urlID string) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	return o.links.DeleteItemAndUnlink(ctx, url)
}

// SetArchived / SetIgnored toggle the two standalone terminal intents,
// independent of the processing cascade.
func (o *Orchestrator) SetArchived(ctx context.Context, urlID string, archived bool) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	if archived {
		if g := o.guards.CanArchive(url); !g.Allowed {
			return fmt.Errorf("archive: %s", g.Reason)
		}
		return o.sm.Transition(ctx, urlID, url.ProcessingStatus, valueobject.StatusArchived, TransitionOpts{})
	}
	if g := o.guards.CanUnarchive(url); !g.Allowed {
		return fmt.Errorf("unarchive: %s", g.Reason)
	}
	return o.sm.Transition(ctx, urlID, url.ProcessingStatus, valueobject.StatusNotStarted, TransitionOpts{})
}

func (o *Orchestrator) SetIgnored(ctx context.Context, urlID string, ignored bool) error {
	url, err := o.repo.FindByID(ctx, urlID)
	if err != nil {
		return err
	}
	if ignored {
		if g := o.guards.CanIgnore(url); !g.Allowed {
			return fmt.Errorf("ignore: %s", g.Reason)
		}
		// §8's ignore/unignore round-trip property requires the pre-ignore
		// status to be recoverable from history; the transition table only
		// admits ignored -> not_started, so we record it in metadata for
		// traceability even though unignore always lands on not_started.
		meta := map[string]interface{}{"pre_ignore_status": string(url.ProcessingStatus)}
		return o.sm.Transition(ctx, urlID, url.ProcessingStatus, valueobject.StatusIgnored, TransitionOpts{Metadata: meta})
	}
	if g := o.guards.CanUnignore(url); !g.Allowed {
		return fmt.Errorf("unignore: %s", g.Reason)
	}
	return o.sm.Transition(ctx, urlID, url.ProcessingStatus, valueobject.StatusNotStarted, TransitionOpts{})
}
