package service

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// ProcessingError is the single typed error shape that crosses the core
// boundary (§7): every collaborator failure is classified into one of the
// nine categories before the orchestrator or batch processor ever sees it.
type ProcessingError struct {
	Category valueobject.ErrorCategory
	Message  string
	Cause    error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return string(e.Category) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Category) + ": " + e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// Retryable reports whether this category should be retried in-place before
// the stage gives up.
func (e *ProcessingError) Retryable() bool { return e.Category.Retryable() }

// Cascade reports whether a final failure of this category should fall
// through to the next cascade stage.
func (e *ProcessingError) Cascade() bool { return e.Category.Cascade() }

// networkSubstrings / httpClientSubstrings / etc. are the pattern-matching
// substring lists used when no typed *ProcessingError or HTTP status is
// available: the error string is lowercased and checked against
// category-specific substrings.
var (
	validationSubstrings = []string{"validation failed", "invalid citation", "rejected: semantic"}
	parsingSubstrings    = []string{"parse error", "malformed", "unexpected token", "invalid json", "invalid html"}
	zoteroAPISubstrings  = []string{"zotero", "citationlinker", "connector/saveitems"}
	networkSubstrings    = []string{"connection refused", "no such host", "timeout", "eof", "network is unreachable", "i/o timeout", "context deadline exceeded"}
	permanentSubstrings  = []string{"unsupported", "not implemented", "permanently"}
)

// ClassifyError classifies a raw error from a collaborator (fetch, Zotero,
// LLM, parsing) into a *ProcessingError. Deterministic and side-effect-free:
// checks for an already-typed error first, then an HTTP status code, then
// pattern-matches the lowercased message.
func ClassifyError(err error) *ProcessingError {
	if err == nil {
		return nil
	}

	var existing *ProcessingError
	if errors.As(err, &existing) {
		return existing
	}

	msg := strings.ToLower(err.Error())

	if code := extractStatusCode(msg); code != 0 {
		switch {
		case code == http.StatusTooManyRequests:
			return &ProcessingError{Category: valueobject.CategoryRateLimit, Message: "rate limited", Cause: err}
		case code >= 500:
			return &ProcessingError{Category: valueobject.CategoryHTTPServer, Message: "server error", Cause: err}
		case code >= 400:
			return &ProcessingError{Category: valueobject.CategoryHTTPClient, Message: "client error", Cause: err}
		}
	}

	switch {
	case containsAny(msg, validationSubstrings):
		return &ProcessingError{Category: valueobject.CategoryValidation, Message: "content failed validation", Cause: err}
	case containsAny(msg, zoteroAPISubstrings):
		return &ProcessingError{Category: valueobject.CategoryZoteroAPI, Message: "zotero api error", Cause: err}
	case containsAny(msg, parsingSubstrings):
		return &ProcessingError{Category: valueobject.CategoryParsing, Message: "failed to parse content", Cause: err}
	case containsAny(msg, networkSubstrings):
		return &ProcessingError{Category: valueobject.CategoryNetwork, Message: "network error", Cause: err}
	case containsAny(msg, permanentSubstrings):
		return &ProcessingError{Category: valueobject.CategoryPermanent, Message: "permanent failure", Cause: err}
	}

	return &ProcessingError{Category: valueobject.CategoryUnknown, Message: "unclassified error", Cause: err}
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}

// extractStatusCode scans a lowercased error message for a known HTTP status
// code.
func extractStatusCode(msg string) int {
	for _, code := range []int{400, 401, 403, 404, 409, 412, 422, 429, 500, 502, 503, 504} {
		if strings.Contains(msg, strconv.Itoa(code)) {
			return code
		}
	}
	return 0
}

// Backoff computes the delay before retry attempt n (1-indexed) of a
// failure in category c, capped at cap (default 60s, §6.6 backoffMaxMs).
// Implemented with cenkalti/backoff's ExponentialBackOff rather than a
// hand-rolled loop, configured so that attempt n's delay is exactly
// base*2^(n-1) before the cap — Multiplier 2, no randomization, since the
// spec's formula is deterministic.
func Backoff(category valueobject.ErrorCategory, attempt int, cap time.Duration) time.Duration {
	base := category.BaseDelay()
	if base <= 0 {
		return 0
	}
	if cap <= 0 {
		cap = valueobject.BackoffMax
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = cap
	b.MaxElapsedTime = 0
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	if d == backoff.Stop || d > cap {
		return cap
	}
	return d
}
