package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
)

func newBatchTestRouter(bp *service.BatchProcessor) *gin.Engine {
	h := NewBatchHandler(bp, testLogger())
	r := gin.New()
	batches := r.Group("/api/v1/batches")
	batches.POST("", h.Start)
	batches.GET("/:id", h.Get)
	batches.POST("/:id/pause", h.Pause)
	batches.POST("/:id/resume", h.Resume)
	batches.POST("/:id/cancel", h.Cancel)
	return r
}

func TestBatchHandler_StartReturnsSessionIDImmediately(t *testing.T) {
	repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/a"))
	bp := testBatchProcessor(repo)
	r := newBatchTestRouter(bp)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(`{"urlIds":["u1"]}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	var out struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out.SessionID == "" {
		t.Fatal("expected a non-empty session id")
	}
}

func TestBatchHandler_GetUnknownSessionReturns404(t *testing.T) {
	bp := testBatchProcessor(newFakeURLRepo())
	r := newBatchTestRouter(bp)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestBatchHandler_GetReturnsSnapshotEventuallyCompleted(t *testing.T) {
	repo := newFakeURLRepo(entity.NewURL("u1", "https://example.com/a"))
	bp := testBatchProcessor(repo)
	r := newBatchTestRouter(bp)

	start := httptest.NewRequest(http.MethodPost, "/api/v1/batches", strings.NewReader(`{"urlIds":["u1"]}`))
	start.Header.Set("Content-Type", "application/json")
	sw := httptest.NewRecorder()
	r.ServeHTTP(sw, start)

	var started struct {
		SessionID string `json:"sessionId"`
	}
	json.Unmarshal(sw.Body.Bytes(), &started)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/batches/"+started.SessionID, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		var snap service.BatchSnapshot
		json.Unmarshal(w.Body.Bytes(), &snap)
		if snap.Status == service.BatchCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected batch session to reach completed within the deadline")
}

func TestBatchHandler_PauseUnknownSessionReturns404(t *testing.T) {
	bp := testBatchProcessor(newFakeURLRepo())
	r := newBatchTestRouter(bp)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/batches/does-not-exist/pause", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
