package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// URLHandler exposes §6.5's orchestrator-facing surface over HTTP.
type URLHandler struct {
	repo repository.URLRepository
	orch *service.Orchestrator
	log  *zap.Logger
}

// NewURLHandler wires a URLHandler.
func NewURLHandler(repo repository.URLRepository, orch *service.Orchestrator, logger *zap.Logger) *URLHandler {
	return &URLHandler{repo: repo, orch: orch, log: logger.With(zap.String("component", "url_handler"))}
}

// CreateURLRequest submits a new URL for tracking.
type CreateURLRequest struct {
	URL string `json:"url" binding:"required"`
}

// Create registers a new tracked URL in not_started.
func (h *URLHandler) Create(c *gin.Context) {
	var req CreateURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u := entity.NewURL(uuid.NewString(), req.URL)
	if err := h.repo.Save(c.Request.Context(), u); err != nil {
		h.log.Error("create url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create url"})
		return
	}
	c.JSON(http.StatusCreated, u)
}

// List returns tracked URLs, optionally filtered by ?status=.
func (h *URLHandler) List(c *gin.Context) {
	var filter repository.URLFilter
	if s := c.Query("status"); s != "" {
		status := valueobject.ProcessingStatus(s)
		filter.Status = &status
	}

	urls, err := h.repo.FindAll(c.Request.Context(), filter)
	if err != nil {
		h.log.Error("list urls", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list urls"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"urls": urls})
}

// Get returns a single tracked URL.
func (h *URLHandler) Get(c *gin.Context) {
	u, err := h.repo.FindByID(c.Request.Context(), c.Param("id"))
	if h.handleNotFound(c, err) {
		return
	}
	c.JSON(http.StatusOK, u)
}

// Process runs the cascade once for the given URL (the synchronous, single-URL
// entry point; batch.start is the bulk equivalent).
func (h *URLHandler) Process(c *gin.Context) {
	result, err := h.orch.Process(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, entity.ErrURLInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("process url", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process url"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// SetIntentRequest changes a URL's userIntent.
type SetIntentRequest struct {
	Intent valueobject.UserIntent `json:"intent" binding:"required"`
}

// SetIntent updates the URL's declared intent.
func (h *URLHandler) SetIntent(c *gin.Context) {
	var req SetIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.orch.SetIntent(c.Request.Context(), c.Param("id"), req.Intent); err != nil {
		h.handleActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SelectIdentifierRequest carries the user's chosen identifier from awaiting_selection.
type SelectIdentifierRequest struct {
	Kind  valueobject.IdentifierKind `json:"kind" binding:"required"`
	Value string                     `json:"value" binding:"required"`
}

// SelectIdentifier resumes the cascade with a user-chosen identifier.
func (h *URLHandler) SelectIdentifier(c *gin.Context) {
	var req SelectIdentifierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.orch.SelectIdentifier(c.Request.Context(), c.Param("id"), valueobject.Identifier{Kind: req.Kind, Value: req.Value})
	if err != nil {
		h.handleActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ApproveMetadataRequest is the item payload to materialise on approval.
type ApproveMetadataRequest struct {
	ItemType    string                 `json:"itemType"`
	Title       string                 `json:"title"`
	Authors     []string               `json:"authors"`
	Date        string                 `json:"date"`
	Publication string                 `json:"publication"`
	Publisher   string                 `json:"publisher"`
	URL         string                 `json:"url"`
	Extra       map[string]interface{} `json:"extra"`
}

// ApproveMetadata accepts awaiting_metadata's extracted fields as a new Zotero item.
func (h *URLHandler) ApproveMetadata(c *gin.Context) {
	var req ApproveMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := service.ItemPayload{
		ItemType: req.ItemType, Title: req.Title, Authors: req.Authors,
		Date: req.Date, Publication: req.Publication, Publisher: req.Publisher,
		URL: req.URL, Extra: req.Extra,
	}
	result, err := h.orch.ApproveMetadata(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		h.handleActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RejectMetadata discards awaiting_metadata's extraction.
func (h *URLHandler) RejectMetadata(c *gin.Context) {
	if err := h.orch.RejectMetadata(c.Request.Context(), c.Param("id")); err != nil {
		h.handleActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ManualCreate is the §4.4 manual-creation branch, bypassing the cascade entirely.
func (h *URLHandler) ManualCreate(c *gin.Context) {
	var req ApproveMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := service.ItemPayload{
		ItemType: req.ItemType, Title: req.Title, Authors: req.Authors,
		Date: req.Date, Publication: req.Publication, Publisher: req.Publisher,
		URL: req.URL, Extra: req.Extra,
	}
	result, err := h.orch.ManualCreate(c.Request.Context(), c.Param("id"), payload)
	if err != nil {
		h.handleActionError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ResetRequest controls whether history is preserved across a reset.
type ResetRequest struct {
	PreserveHistory bool `json:"preserveHistory"`
}

// Reset is the universal stuck-state escape hatch (§4.4).
func (h *URLHandler) Reset(c *gin.Context) {
	req := ResetRequest{PreserveHistory: true}
	_ = c.ShouldBindJSON(&req)
	if err := h.orch.Reset(c.Request.Context(), c.Param("id"), req.PreserveHistory); err != nil {
		h.handleActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Unlink removes the Zotero item association without deleting the item.
func (h *URLHandler) Unlink(c *gin.Context) {
	if err := h.orch.Unlink(c.Request.Context(), c.Param("id")); err != nil {
		h.handleActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteItemAndUnlink deletes the linked Zotero item and removes the association.
func (h *URLHandler) DeleteItemAndUnlink(c *gin.Context) {
	if err := h.orch.DeleteItemAndUnlink(c.Request.Context(), c.Param("id")); err != nil {
		h.handleActionError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *URLHandler) handleNotFound(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entity.ErrURLNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "url not found"})
		return true
	}
	h.log.Error("url lookup", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	return true
}

func (h *URLHandler) handleActionError(c *gin.Context, err error) {
	if errors.Is(err, entity.ErrURLNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "url not found"})
		return
	}
	if errors.Is(err, entity.ErrURLInFlight) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	// Guard denials and other expected refusals surface as 422, not 500 —
	// they're a normal outcome of the state machine's rules, not a bug.
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
}
