package valueobject

// ProcessingStatus is the primary discriminant of a URL's lifecycle. The set
// is closed — twelve values — so the transition table in service.StateMachine
// can be exhaustively validated at startup.
type ProcessingStatus string

const (
	StatusNotStarted        ProcessingStatus = "not_started"
	StatusProcessingZotero  ProcessingStatus = "processing_zotero"
	StatusProcessingContent ProcessingStatus = "processing_content"
	StatusProcessingLLM     ProcessingStatus = "processing_llm"
	StatusAwaitingSelection ProcessingStatus = "awaiting_selection"
	StatusAwaitingMetadata  ProcessingStatus = "awaiting_metadata"
	StatusStored            ProcessingStatus = "stored"
	StatusStoredIncomplete  ProcessingStatus = "stored_incomplete"
	StatusStoredCustom      ProcessingStatus = "stored_custom"
	StatusExhausted         ProcessingStatus = "exhausted"
	StatusIgnored           ProcessingStatus = "ignored"
	StatusArchived          ProcessingStatus = "archived"
)

// AllStatuses enumerates every valid ProcessingStatus, in the order they
// appear in the data model. Used by validateTransitionGraph for reachability
// checks and by persistence layers for CHECK-constraint generation.
var AllStatuses = []ProcessingStatus{
	StatusNotStarted,
	StatusProcessingZotero,
	StatusProcessingContent,
	StatusProcessingLLM,
	StatusAwaitingSelection,
	StatusAwaitingMetadata,
	StatusStored,
	StatusStoredIncomplete,
	StatusStoredCustom,
	StatusExhausted,
	StatusIgnored,
	StatusArchived,
}

// Valid reports whether s is one of the twelve enumerated statuses.
func (s ProcessingStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Transient reports whether s is one of the three in-flight processing_*
// states — a URL in one of these is owned by an orchestrator task.
func (s ProcessingStatus) Transient() bool {
	switch s {
	case StatusProcessingZotero, StatusProcessingContent, StatusProcessingLLM:
		return true
	}
	return false
}

// Terminal reports whether no further automatic processing occurs from s.
// Manual actions (reset, unlink, intent changes) remain available.
func (s ProcessingStatus) Terminal() bool {
	switch s {
	case StatusStored, StatusStoredIncomplete, StatusStoredCustom,
		StatusExhausted, StatusIgnored, StatusArchived:
		return true
	}
	return false
}

// Stored reports whether s is one of the three stored-family statuses —
// invariant 4/5 ties this family to linkedItemCount >= 1.
func (s ProcessingStatus) Stored() bool {
	switch s {
	case StatusStored, StatusStoredIncomplete, StatusStoredCustom:
		return true
	}
	return false
}

// Startable reports whether an orchestrator task may begin processing a URL
// currently at s (used as the orchestrator's refused-vs-started gate).
func (s ProcessingStatus) Startable() bool {
	switch s {
	case StatusNotStarted, StatusExhausted:
		return true
	}
	return false
}
