package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
)

// BatchHandler exposes the §4.5 BatchProcessor lifecycle over HTTP.
type BatchHandler struct {
	batch *service.BatchProcessor
	log   *zap.Logger
}

// NewBatchHandler wires a BatchHandler.
func NewBatchHandler(batch *service.BatchProcessor, logger *zap.Logger) *BatchHandler {
	return &BatchHandler{batch: batch, log: logger.With(zap.String("component", "batch_handler"))}
}

// StartBatchRequest carries the set of URLs and concurrency options.
type StartBatchRequest struct {
	URLIDs        []string `json:"urlIds" binding:"required"`
	Concurrency   int      `json:"concurrency"`
	RespectIntent bool     `json:"respectIntent"`
}

// Start kicks off a non-blocking batch session and returns its id immediately.
func (h *BatchHandler) Start(c *gin.Context) {
	var req StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := service.DefaultBatchOptions()
	if req.Concurrency > 0 {
		opts.Concurrency = req.Concurrency
	}
	opts.RespectIntent = req.RespectIntent

	sessionID := h.batch.Start(req.URLIDs, opts)
	c.JSON(http.StatusAccepted, gin.H{"sessionId": sessionID})
}

// Get returns a copy-on-read snapshot of a batch session's progress.
func (h *BatchHandler) Get(c *gin.Context) {
	snap, err := h.batch.Get(c.Param("id"))
	if h.handleSessionError(c, err) {
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Pause parks a running session before its next URL.
func (h *BatchHandler) Pause(c *gin.Context) {
	if err := h.batch.Pause(c.Param("id")); h.handleSessionError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Resume releases a paused session.
func (h *BatchHandler) Resume(c *gin.Context) {
	if err := h.batch.Resume(c.Param("id")); h.handleSessionError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

// Cancel soft-cancels a session; in-flight URLs observe ctx.Done() and stop
// at their next suspension point rather than being killed.
func (h *BatchHandler) Cancel(c *gin.Context) {
	if err := h.batch.Cancel(c.Param("id")); h.handleSessionError(c, err) {
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *BatchHandler) handleSessionError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, entity.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch session not found"})
		return true
	}
	h.log.Error("batch operation", zap.Error(err))
	c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	return true
}
