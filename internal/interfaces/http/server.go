package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/interfaces/http/handlers"
)

// Server is the gin-backed REST/websocket surface over §6.5's operations.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config configures the listener and gin mode.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// NewServer wires every handler onto a fresh gin engine.
func NewServer(cfg Config, repo repository.URLRepository, orch *service.Orchestrator, batch *service.BatchProcessor, logger *zap.Logger) *Server {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	urlHandler := handlers.NewURLHandler(repo, orch, logger)
	batchHandler := handlers.NewBatchHandler(batch, logger)
	wsHandler := handlers.NewWebSocketHandler(batch, logger)

	setupRoutes(router, urlHandler, batchHandler, wsHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		server: &http.Server{Addr: addr, Handler: router},
		logger: logger,
	}
}

// Start runs the listener in the background.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting http server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping http server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(router *gin.Engine, urlHandler *handlers.URLHandler, batchHandler *handlers.BatchHandler, wsHandler *handlers.WebSocketHandler) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().Unix()})
	})

	v1 := router.Group("/api/v1")
	{
		urls := v1.Group("/urls")
		{
			urls.POST("", urlHandler.Create)
			urls.GET("", urlHandler.List)
			urls.GET("/:id", urlHandler.Get)
			urls.POST("/:id/process", urlHandler.Process)
			urls.POST("/:id/intent", urlHandler.SetIntent)
			urls.POST("/:id/select-identifier", urlHandler.SelectIdentifier)
			urls.POST("/:id/approve-metadata", urlHandler.ApproveMetadata)
			urls.POST("/:id/reject-metadata", urlHandler.RejectMetadata)
			urls.POST("/:id/manual-create", urlHandler.ManualCreate)
			urls.POST("/:id/reset", urlHandler.Reset)
			urls.POST("/:id/unlink", urlHandler.Unlink)
			urls.DELETE("/:id/item", urlHandler.DeleteItemAndUnlink)
		}

		batches := v1.Group("/batches")
		{
			batches.POST("", batchHandler.Start)
			batches.GET("/:id", batchHandler.Get)
			batches.POST("/:id/pause", batchHandler.Pause)
			batches.POST("/:id/resume", batchHandler.Resume)
			batches.POST("/:id/cancel", batchHandler.Cancel)
			batches.GET("/:id/stream", wsHandler.StreamProgress)
		}
	}
}

func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
