// Package contentfetch implements the §6.3 ContentFetcher collaborator:
// cache-first HTTP retrieval plus meta-tag / JSON-LD / OpenGraph / regex
// identifier extraction for HTML, and a PDF-specific extractor for PDFs.
package contentfetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
)

// Config tunes the fetcher's transport and per-domain politeness.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	MaxBodyBytes      int64
	PerDomainInterval time.Duration // minimum gap between requests to the same host (§5 rate limiting)
}

// Fetcher is the bluemonday+x/net/html-backed implementation of
// service.ContentFetcher. An in-memory content cache keys on URL so repeated
// fetches of the same URL within a session skip the network (§6.3
// "cache-first").
type Fetcher struct {
	http      *http.Client
	sanitizer *bluemonday.Policy
	cfg       Config
	logger    *zap.Logger

	cacheMu sync.RWMutex
	cache   map[string]service.FetchResult

	limiterMu sync.Mutex
	lastHit   map[string]time.Time
}

// New wires a fetcher with sane defaults for timeout/body-size/rate limit.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "citationcore-fetcher/1.0"
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 10 << 20 // 10MiB
	}
	if cfg.PerDomainInterval == 0 {
		cfg.PerDomainInterval = 500 * time.Millisecond
	}

	return &Fetcher{
		http:      &http.Client{Timeout: cfg.Timeout},
		sanitizer: bluemonday.UGCPolicy().AllowAttrs("name", "property", "content").OnElements("meta"),
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "content_fetcher")),
		cache:     make(map[string]service.FetchResult),
		lastHit:   make(map[string]time.Time),
	}
}

var _ service.ContentFetcher = (*Fetcher)(nil)

// FetchAndExtract downloads url (or reuses a cached result), then dispatches
// to the PDF or HTML extractor based on content type.
func (f *Fetcher) FetchAndExtract(ctx context.Context, target string) (service.FetchResult, error) {
	if cached, ok := f.cacheGet(target); ok {
		return cached, nil
	}

	if err := f.waitForDomainSlot(ctx, target); err != nil {
		return service.FetchResult{}, err
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return service.FetchResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := f.http.Do(req)
	if err != nil {
		return service.FetchResult{}, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return service.FetchResult{}, fmt.Errorf("fetch url: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		return service.FetchResult{}, fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	isPDF := strings.Contains(contentType, "application/pdf") || strings.HasSuffix(strings.ToLower(target), ".pdf")

	var result service.FetchResult
	if isPDF {
		result, err = extractPDF(body)
	} else {
		result, err = f.extractHTML(body)
	}
	if err != nil {
		return service.FetchResult{}, err
	}

	result.ContentHash = hashContent(body)
	result.ContentRef = fmt.Sprintf("contentfetch://%s", result.ContentHash)
	result.IsPdf = isPDF
	result.FetchDurationMs = time.Since(start).Milliseconds()

	f.cachePut(target, result)
	return result, nil
}

func (f *Fetcher) extractHTML(body []byte) (service.FetchResult, error) {
	clean := f.sanitizer.SanitizeBytes(body)
	ids, meta := extractFromHTML(clean)
	return service.FetchResult{Identifiers: ids, Metadata: meta}, nil
}

func (f *Fetcher) cacheGet(key string) (service.FetchResult, bool) {
	f.cacheMu.RLock()
	defer f.cacheMu.RUnlock()
	v, ok := f.cache[key]
	return v, ok
}

func (f *Fetcher) cachePut(key string, v service.FetchResult) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	f.cache[key] = v
}

// waitForDomainSlot blocks until cfg.PerDomainInterval has elapsed since the
// last request to target's host, implementing the per-domain politeness
// §5 assigns to the ContentFetcher (not the core).
func (f *Fetcher) waitForDomainSlot(ctx context.Context, target string) error {
	host := hostOf(target)

	f.limiterMu.Lock()
	last, seen := f.lastHit[host]
	wait := time.Duration(0)
	if seen {
		if elapsed := time.Since(last); elapsed < f.cfg.PerDomainInterval {
			wait = f.cfg.PerDomainInterval - elapsed
		}
	}
	f.lastHit[host] = time.Now().Add(wait)
	f.limiterMu.Unlock()

	if wait <= 0 {
		return nil
	}
	select {
	case <-time.After(wait):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func hostOf(target string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	return u.Hostname()
}

func hashContent(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
