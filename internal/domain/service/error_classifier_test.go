package service

import (
	"errors"
	"testing"
	"time"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want valueobject.ErrorCategory
	}{
		{"429 status", errors.New("request failed: 429 too many requests"), valueobject.CategoryRateLimit},
		{"500 status", errors.New("server returned 500 internal error"), valueobject.CategoryHTTPServer},
		{"404 status", errors.New("got 404 not found"), valueobject.CategoryHTTPClient},
		{"network timeout", errors.New("dial tcp: i/o timeout"), valueobject.CategoryNetwork},
		{"connection refused", errors.New("connection refused"), valueobject.CategoryNetwork},
		{"parse failure", errors.New("parse error: unexpected token <"), valueobject.CategoryParsing},
		{"validation failure", errors.New("validation failed: missing title"), valueobject.CategoryValidation},
		{"zotero error", errors.New("zotero citationlinker returned an error"), valueobject.CategoryZoteroAPI},
		{"unrecognised", errors.New("something odd happened"), valueobject.CategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyError(tt.err)
			if got.Category != tt.want {
				t.Errorf("ClassifyError(%q) = %s, want %s", tt.err, got.Category, tt.want)
			}
		})
	}
}

func TestClassifyError_PreservesAlreadyTyped(t *testing.T) {
	orig := &ProcessingError{Category: valueobject.CategoryPermanent, Message: "custom"}
	got := ClassifyError(orig)
	if got != orig {
		t.Error("ClassifyError should return an already-typed *ProcessingError unchanged")
	}
}

func TestBackoff_CapsAtSixtySeconds(t *testing.T) {
	d := Backoff(valueobject.CategoryNetwork, 10, 0)
	if d > valueobject.BackoffMax {
		t.Errorf("backoff exceeded cap: %v", d)
	}
	if d != valueobject.BackoffMax {
		t.Errorf("expected backoff to saturate at cap after 10 attempts, got %v", d)
	}
}

func TestBackoff_Doubles(t *testing.T) {
	d1 := Backoff(valueobject.CategoryNetwork, 1, 60*time.Second)
	d2 := Backoff(valueobject.CategoryNetwork, 2, 60*time.Second)
	if d1 != 2*time.Second {
		t.Errorf("attempt 1: expected base delay 2s, got %v", d1)
	}
	if d2 != 4*time.Second {
		t.Errorf("attempt 2: expected doubled delay 4s, got %v", d2)
	}
}

func TestBackoff_ValidationNeverRetries(t *testing.T) {
	if valueobject.CategoryValidation.Retryable() {
		t.Error("validation category must not be retryable")
	}
	if valueobject.CategoryValidation.Cascade() {
		t.Error("validation category must not cascade")
	}
}

func TestBackoff_RateLimitRetriesWithoutCascade(t *testing.T) {
	if !valueobject.CategoryRateLimit.Retryable() {
		t.Error("rate_limit must be retryable")
	}
	if valueobject.CategoryRateLimit.Cascade() {
		t.Error("rate_limit must not cascade — it waits on the same stage")
	}
}

func TestUnknown_RetriesOnceOnly(t *testing.T) {
	if !valueobject.CategoryUnknown.Retryable() {
		t.Error("unknown must be retryable")
	}
	if got := valueobject.CategoryUnknown.MaxAttempts(); got != 2 {
		t.Errorf("unknown should cap at 2 attempts (one retry), got %d", got)
	}
	if got := valueobject.CategoryNetwork.MaxAttempts(); got != 0 {
		t.Errorf("network should defer to the caller's configured MaxRetries, got override %d", got)
	}
}
