package valueobject

import "time"

// ErrorCategory is one of the nine closed failure categories the error
// classifier assigns to every collaborator failure (fetch, Zotero, LLM,
// parsing). Classification is pattern-based and deterministic — see
// service.ClassifyError.
type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryHTTPServer ErrorCategory = "http_server" // 5xx
	CategoryRateLimit  ErrorCategory = "rate_limit"  // 429
	CategoryZoteroAPI  ErrorCategory = "zotero_api"
	CategoryHTTPClient ErrorCategory = "http_client" // 4xx except 429
	CategoryParsing    ErrorCategory = "parsing"
	CategoryValidation ErrorCategory = "validation"
	CategoryPermanent  ErrorCategory = "permanent"
	CategoryUnknown    ErrorCategory = "unknown"
)

// categoryPolicy is the static retry/cascade policy table from spec §4.3.
// maxAttempts, when non-zero, overrides the orchestrator's configured
// MaxRetries for this category alone — §4.3 calls out unknown as "yes
// (once)", a single retry regardless of how many retries other categories
// get.
type categoryPolicy struct {
	retryable   bool
	baseDelay   time.Duration
	cascade     bool
	maxAttempts int
}

var policies = map[ErrorCategory]categoryPolicy{
	CategoryNetwork:    {retryable: true, baseDelay: 2 * time.Second, cascade: true},
	CategoryHTTPServer: {retryable: true, baseDelay: 5 * time.Second, cascade: true},
	CategoryRateLimit:  {retryable: true, baseDelay: 10 * time.Second, cascade: false},
	CategoryZoteroAPI:  {retryable: true, baseDelay: 3 * time.Second, cascade: true},
	CategoryHTTPClient: {retryable: false, cascade: true},
	CategoryParsing:    {retryable: false, cascade: true},
	CategoryValidation: {retryable: false, cascade: false},
	CategoryPermanent:  {retryable: false, cascade: true},
	CategoryUnknown:    {retryable: true, baseDelay: 1 * time.Second, cascade: true, maxAttempts: 2},
}

// Retryable reports whether a failure of this category should be retried
// in-place before the stage gives up.
func (c ErrorCategory) Retryable() bool {
	return policies[c].retryable
}

// Cascade reports whether a non-retryable (or retry-exhausted) failure of
// this category should fall through to the next stage, as opposed to
// stopping the cascade outright (validation) or waiting on the same stage
// (rate_limit).
func (c ErrorCategory) Cascade() bool {
	return policies[c].cascade
}

// BaseDelay returns the first-attempt backoff delay for this category.
func (c ErrorCategory) BaseDelay() time.Duration {
	return policies[c].baseDelay
}

// MaxAttempts returns this category's attempt cap override, or 0 if it
// defers to the caller's configured MaxRetries (the common case — only
// unknown pins its own cap per §4.3).
func (c ErrorCategory) MaxAttempts() int {
	return policies[c].maxAttempts
}

// BackoffMax is the hard cap on computed backoff delay (§4.3, §6.6 backoffMaxMs).
// The actual min(base*2^(n-1), cap) computation lives in service.Backoff,
// built on cenkalti/backoff/v4 rather than duplicated here.
const BackoffMax = 60 * time.Second
