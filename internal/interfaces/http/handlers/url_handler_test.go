package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

func newURLTestRouter(repo *fakeURLRepo) *gin.Engine {
	orch := testOrchestrator(repo)
	h := NewURLHandler(repo, orch, testLogger())

	r := gin.New()
	urls := r.Group("/api/v1/urls")
	urls.POST("", h.Create)
	urls.GET("", h.List)
	urls.GET("/:id", h.Get)
	urls.POST("/:id/process", h.Process)
	urls.POST("/:id/reset", h.Reset)
	urls.POST("/:id/unlink", h.Unlink)
	return r
}

func TestURLHandler_Create(t *testing.T) {
	repo := newFakeURLRepo()
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls", strings.NewReader(`{"url":"https://example.com/a"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var created entity.URL
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if created.ProcessingStatus != valueobject.StatusNotStarted {
		t.Errorf("expected a new url to start not_started, got %s", created.ProcessingStatus)
	}
}

func TestURLHandler_Create_RejectsMissingURL(t *testing.T) {
	repo := newFakeURLRepo()
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing url field, got %d", w.Code)
	}
}

func TestURLHandler_Get_NotFound(t *testing.T) {
	repo := newFakeURLRepo()
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/urls/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestURLHandler_List_FiltersByStatus(t *testing.T) {
	u1 := entity.NewURL("u1", "https://example.com/a")
	u2 := entity.NewURL("u2", "https://example.com/b")
	u2.ProcessingStatus = valueobject.StatusStored
	repo := newFakeURLRepo(u1, u2)
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/urls?status=stored", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var out struct {
		URLs []*entity.URL `json:"urls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out.URLs) != 1 || out.URLs[0].ID != "u2" {
		t.Fatalf("expected only the stored url to be returned, got %+v", out.URLs)
	}
}

func TestURLHandler_Process_HappyPath(t *testing.T) {
	u := entity.NewURL("u1", "https://doi.org/10.1000/xyz")
	repo := newFakeURLRepo(u)
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls/u1/process", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestURLHandler_Reset_UnknownURLReturns404(t *testing.T) {
	repo := newFakeURLRepo()
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls/missing/reset", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown url, got %d: %s", w.Code, w.Body.String())
	}
}

func TestURLHandler_Unlink_DeniedByGuardReturns422(t *testing.T) {
	u := entity.NewURL("u1", "https://example.com/a")
	repo := newFakeURLRepo(u)
	r := newURLTestRouter(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/urls/u1/unlink", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for a url not in a stored state, got %d: %s", w.Code, w.Body.String())
	}
}
