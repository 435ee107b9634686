package entity

import "errors"

var (
	// URL errors
	ErrInvalidURLID = errors.New("invalid url id")
	ErrInvalidURL   = errors.New("invalid url string")
	ErrURLNotFound  = errors.New("url not found")
	ErrURLInFlight  = errors.New("url already has an in-flight orchestrator task")

	// ZoteroItemLink errors
	ErrInvalidLinkID      = errors.New("invalid link id")
	ErrLinkNotFound       = errors.New("zotero item link not found")
	ErrLinkShared         = errors.New("item key is referenced by more than one url")
	ErrZoteroItemNotFound = errors.New("zotero item not found")

	// State machine errors
	ErrInvalidTransition = errors.New("current status does not match expected from-status")
	ErrIllegalTransition = errors.New("transition is not present in the transition table")

	// Batch session errors
	ErrSessionNotFound   = errors.New("batch session not found")
	ErrSessionNotRunning = errors.New("batch session is not running")
)
