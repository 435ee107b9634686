package service

import (
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// GuardResult is the return shape of every canX predicate: allowed plus an
// optional human-readable reason for the UI to surface when denied.
type GuardResult struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() GuardResult              { return GuardResult{Allowed: true} }
func deny(reason string) GuardResult  { return GuardResult{Allowed: false, Reason: reason} }

// Guards are read-only, per-action predicates. They are the only component
// allowed to reason about the ZoteroItemLink relation for safety — the
// orchestrator and link manager consult these rather than re-deriving the
// logic.
type Guards struct{}

// NewGuards constructs the (stateless) guard set.
func NewGuards() *Guards { return &Guards{} }

// CanDeleteZoteroItem is the system's strongest safety invariant: deletion
// is allowed only if the link was created by this system, has not been
// externally modified, and no other URL shares the same itemKey.
func (Guards) CanDeleteZoteroItem(url *entity.URL, link *entity.ZoteroItemLink, allLinksForItem []*entity.ZoteroItemLink) GuardResult {
	if link == nil {
		return deny("no link for this url")
	}
	if !link.CreatedByTheodore {
		return deny("item was not created by this system")
	}
	if link.UserModifiedInZotero {
		return deny("item has been modified in zotero since it was stored")
	}
	for _, other := range allLinksForItem {
		if other.URLID != url.ID && other.ItemKey == link.ItemKey {
			return deny("shared")
		}
	}
	return allow()
}

// CanUnlink allows removing the link row (not the Zotero item) for any
// stored-family URL.
func (Guards) CanUnlink(url *entity.URL) GuardResult {
	if url.ProcessingStatus.Stored() {
		return allow()
	}
	return deny("url is not in a stored state")
}

// CanProcessWithZotero gates orchestrator start: only not_started/exhausted
// URLs whose intent doesn't forbid automatic processing.
func (Guards) CanProcessWithZotero(url *entity.URL) GuardResult {
	if url.UserIntent == valueobject.IntentIgnore || url.UserIntent == valueobject.IntentArchive {
		return deny("user intent excludes automatic processing")
	}
	if !url.ProcessingStatus.Startable() {
		return deny("url is not in a startable status")
	}
	return allow()
}

// CanReset is always true — reset is the universal escape hatch (§4.4, §8
// invariant 8).
func (Guards) CanReset(url *entity.URL) GuardResult {
	return allow()
}

// CanManuallyCreate is allowed for any URL that isn't already stored via an
// automatic or manual path.
func (Guards) CanManuallyCreate(url *entity.URL) GuardResult {
	if url.ProcessingStatus.Stored() {
		return deny("url is already stored")
	}
	return allow()
}

// CanSetIntent allows any known intent value in any status — intent is
// purely advisory; unknown values are denied.
func (Guards) CanSetIntent(url *entity.URL, intent valueobject.UserIntent) GuardResult {
	if !intent.Valid() {
		return deny("unknown intent value")
	}
	return allow()
}

// CanSelectIdentifier is allowed only from awaiting_selection.
func (Guards) CanSelectIdentifier(url *entity.URL) GuardResult {
	if url.ProcessingStatus != valueobject.StatusAwaitingSelection {
		return deny("url is not awaiting identifier selection")
	}
	return allow()
}

// CanApproveMetadata / CanRejectMetadata are allowed only from awaiting_metadata.
func (Guards) CanApproveMetadata(url *entity.URL) GuardResult {
	if url.ProcessingStatus != valueobject.StatusAwaitingMetadata {
		return deny("url is not awaiting metadata approval")
	}
	return allow()
}

func (Guards) CanRejectMetadata(url *entity.URL) GuardResult {
	if url.ProcessingStatus != valueobject.StatusAwaitingMetadata {
		return deny("url is not awaiting metadata approval")
	}
	return allow()
}

// CanIgnore / CanUnignore / CanArchive / CanUnarchive gate the four
// intent-driven terminal transitions.
func (Guards) CanIgnore(url *entity.URL) GuardResult {
	if url.ProcessingStatus == valueobject.StatusIgnored {
		return deny("already ignored")
	}
	return allow()
}

func (Guards) CanUnignore(url *entity.URL) GuardResult {
	if url.ProcessingStatus != valueobject.StatusIgnored {
		return deny("url is not ignored")
	}
	return allow()
}

func (Guards) CanArchive(url *entity.URL) GuardResult {
	if url.ProcessingStatus == valueobject.StatusArchived {
		return deny("already archived")
	}
	return allow()
}

func (Guards) CanUnarchive(url *entity.URL) GuardResult {
	if url.ProcessingStatus != valueobject.StatusArchived {
		return deny("url is not archived")
	}
	return allow()
}

// CanEditCitation is allowed for stored/stored_incomplete URLs — the edit
// itself may move the status between the two (§4.1's stored <-> stored_incomplete edge).
func (Guards) CanEditCitation(url *entity.URL) GuardResult {
	if !url.ProcessingStatus.Stored() {
		return deny("url has no stored citation to edit")
	}
	return allow()
}

// Action identifies one of the operations getAvailableActions can rank.
type Action string

const (
	ActionProcess          Action = "process"
	ActionReset            Action = "reset"
	ActionManualCreate     Action = "manual_create"
	ActionSetIntent        Action = "set_intent"
	ActionSelectIdentifier Action = "select_identifier"
	ActionApproveMetadata  Action = "approve_metadata"
	ActionRejectMetadata   Action = "reject_metadata"
	ActionIgnore           Action = "ignore"
	ActionUnignore         Action = "unignore"
	ActionArchive          Action = "archive"
	ActionUnarchive        Action = "unarchive"
	ActionUnlink           Action = "unlink"
	ActionDeleteItem       Action = "delete_item"
	ActionEditCitation     Action = "edit_citation"
)

// GetAvailableActions returns the ranked list of actions the UI may offer
// for url, given its current links. Order follows the likely operator
// workflow: primary action first, destructive actions last.
func (g Guards) GetAvailableActions(url *entity.URL, links []*entity.ZoteroItemLink, allLinksForItem []*entity.ZoteroItemLink) []Action {
	var out []Action
	if g.CanProcessWithZotero(url).Allowed {
		out = append(out, ActionProcess)
	}
	if g.CanSelectIdentifier(url).Allowed {
		out = append(out, ActionSelectIdentifier)
	}
	if g.CanApproveMetadata(url).Allowed {
		out = append(out, ActionApproveMetadata, ActionRejectMetadata)
	}
	if g.CanManuallyCreate(url).Allowed {
		out = append(out, ActionManualCreate)
	}
	if g.CanEditCitation(url).Allowed {
		out = append(out, ActionEditCitation)
	}
	out = append(out, ActionSetIntent)
	if g.CanIgnore(url).Allowed {
		out = append(out, ActionIgnore)
	}
	if g.CanUnignore(url).Allowed {
		out = append(out, ActionUnignore)
	}
	if g.CanArchive(url).Allowed {
		out = append(out, ActionArchive)
	}
	if g.CanUnarchive(url).Allowed {
		out = append(out, ActionUnarchive)
	}
	if g.CanUnlink(url).Allowed {
		out = append(out, ActionUnlink)
		var link *entity.ZoteroItemLink
		if len(links) > 0 {
			link = links[0]
		}
		if g.CanDeleteZoteroItem(url, link, allLinksForItem).Allowed {
			out = append(out, ActionDeleteItem)
		}
	}
	out = append(out, ActionReset) // always last: universal escape hatch
	return out
}
