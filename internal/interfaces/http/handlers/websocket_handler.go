package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/pkg/safego"
)

var batchStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const batchStreamPollInterval = 500 * time.Millisecond

// WebSocketHandler streams BatchSession progress over a websocket connection,
// additive to the polling-based Get endpoint.
type WebSocketHandler struct {
	batch *service.BatchProcessor
	log   *zap.Logger
}

// NewWebSocketHandler wires a WebSocketHandler.
func NewWebSocketHandler(batch *service.BatchProcessor, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{batch: batch, log: logger.With(zap.String("component", "batch_ws_handler"))}
}

// StreamProgress upgrades the connection and pushes a BatchSnapshot every
// poll interval until the session reaches a terminal status or the client
// disconnects. The BatchSession itself has no subscriber model — this
// handler polls Get() rather than being pushed to, keeping the domain layer
// free of any websocket awareness.
func (h *WebSocketHandler) StreamProgress(c *gin.Context) {
	sessionID := c.Param("id")

	if _, err := h.batch.Get(sessionID); err != nil {
		if errors.Is(err, entity.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	conn, err := batchStreamUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("upgrade batch stream", zap.Error(err))
		return
	}
	defer conn.Close()

	// Drain client-initiated reads (close frames, pings) on their own
	// goroutine so we notice a disconnect while the write loop sleeps.
	closed := make(chan struct{})
	safego.Go(h.log, "batch-stream-reader", func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ticker := time.NewTicker(batchStreamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			snap, err := h.batch.Get(sessionID)
			if err != nil {
				return
			}

			data, _ := json.Marshal(snap)
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

			if snap.Status == service.BatchCompleted || snap.Status == service.BatchCancelled {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "batch finished"))
				return
			}
		}
	}
}
