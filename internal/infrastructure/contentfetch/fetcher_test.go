package contentfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func testFetcher(cfg Config) *Fetcher {
	return New(cfg, zap.NewNop())
}

func TestFetchAndExtract_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta name="citation_title" content="Fetched Title"></head><body>DOI 10.1/abc</body></html>`))
	}))
	defer srv.Close()

	f := testFetcher(Config{})
	result, err := f.FetchAndExtract(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Metadata["title"] != "Fetched Title" {
		t.Fatalf("expected extracted title, got %v", result.Metadata["title"])
	}
	if result.IsPdf {
		t.Fatalf("expected IsPdf=false for an html response")
	}
	if result.ContentHash == "" || result.ContentRef == "" {
		t.Fatalf("expected content hash/ref to be stamped")
	}
}

func TestFetchAndExtract_CachesRepeatedRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><body>no identifiers</body></html>`))
	}))
	defer srv.Close()

	f := testFetcher(Config{})
	ctx := context.Background()
	if _, err := f.FetchAndExtract(ctx, srv.URL); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if _, err := f.FetchAndExtract(ctx, srv.URL); err != nil {
		t.Fatalf("second fetch: %v", err)
	}

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Fatalf("expected exactly one network hit (second served from cache), got %d", got)
	}
}

func TestFetchAndExtract_PropagatesServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := testFetcher(Config{})
	if _, err := f.FetchAndExtract(context.Background(), srv.URL); err == nil {
		t.Fatal("expected an error for a 5xx response")
	}
}

func TestWaitForDomainSlot_EnforcesPerDomainInterval(t *testing.T) {
	f := testFetcher(Config{PerDomainInterval: 50 * time.Millisecond})
	ctx := context.Background()

	start := time.Now()
	if err := f.waitForDomainSlot(ctx, "http://example.com/a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.waitForDomainSlot(ctx, "http://example.com/b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("expected the second call to the same host to wait out the interval, elapsed=%s", elapsed)
	}
}
