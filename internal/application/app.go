package application

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/entity"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/config"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/contentfetch"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/llmextract"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/persistence"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/zotero"
	httpServer "github.com/hortensia-labs/theodore-popyto-sub001/internal/interfaces/http"
)

// circuitFailureThreshold/circuitRecoveryTimeout tune both collaborator
// breakers. Neither collaborator's own retry/backoff behavior changes — the
// breaker only stops calling out at all once a run of failures crosses the
// threshold.
const (
	circuitFailureThreshold = 5
	circuitRecoveryTimeout  = 30 * time.Second
)

// App is the processing core's dependency-injection container: it wires
// config, persistence, the domain cascade, and the infrastructure
// collaborators the cascade drives, then exposes Start/Stop for main.
type App struct {
	config *config.Config
	logger *zap.Logger
	db     *gorm.DB

	urlRepo  repository.URLRepository
	linkRepo repository.LinkRepository

	stateMachine *service.StateMachine
	linkManager  *service.LinkManager
	orchestrator *service.Orchestrator
	batch        *service.BatchProcessor

	watcher *config.Watcher

	httpServer *httpServer.Server
}

// NewApp wires every layer and runs the §4.1/§7 startup sequence
// (transition-graph validation, then the orphan sweep) before returning.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := config.Bootstrap(logger); err != nil {
		logger.Warn("bootstrap failed (non-fatal)", zap.Error(err))
	}

	app := &App{config: cfg, logger: logger}

	if err := service.ValidateTransitionGraph(); err != nil {
		return nil, fmt.Errorf("transition graph invalid, aborting startup: %w", err)
	}

	if err := app.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}
	if err := app.initDomainServices(); err != nil {
		return nil, fmt.Errorf("failed to init domain services: %w", err)
	}
	if err := app.initInterfaces(); err != nil {
		return nil, fmt.Errorf("failed to init interfaces: %w", err)
	}

	if err := app.runOrphanSweep(context.Background()); err != nil {
		logger.Warn("orphan sweep failed (non-fatal)", zap.Error(err))
	}

	return app, nil
}

func (app *App) initRepositories() error {
	app.logger.Info("initializing repositories")

	db, err := persistence.NewDBConnection(&app.config.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.db = db
	app.urlRepo = persistence.NewGormURLRepository(db)
	app.linkRepo = persistence.NewGormLinkRepository(db)
	return nil
}

func (app *App) initDomainServices() error {
	app.logger.Info("initializing domain services")

	app.watcher = config.NewWatcher(configFilePath(), app.config.Core, app.logger)
	if err := app.watcher.Start(); err != nil {
		app.logger.Warn("config watcher failed to start, hot-reload disabled", zap.Error(err))
	}

	app.stateMachine = service.NewStateMachine(app.urlRepo, app.logger)

	zoteroClient := zotero.New(zotero.Config{
		BaseURL:              app.config.Zotero.BaseURL,
		APIKey:               app.config.Zotero.APIKey,
		Timeout:              15 * time.Second,
		MaxConcurrentPreview: app.config.Zotero.MaxConcurrentPreview,
	}, app.logger)
	guardedZotero := service.NewCircuitBreakingZoteroClient(
		zoteroClient, service.NewCircuitBreaker(circuitFailureThreshold, circuitRecoveryTimeout))

	fetcher := contentfetch.New(contentfetch.Config{
		Timeout:           20 * time.Second,
		UserAgent:         "citationcore/1.0 (+https://github.com/hortensia-labs/theodore-popyto-sub001)",
		MaxBodyBytes:      10 << 20,
		PerDomainInterval: 500 * time.Millisecond,
	}, app.logger)

	llmExtractor := llmextract.New(llmextract.Config{
		Provider: app.config.LLM.Provider,
		BaseURL:  app.config.LLM.BaseURL,
		APIKey:   app.config.LLM.APIKey,
		Model:    app.config.LLM.Model,
		Timeout:  app.config.LLM.Timeout,
	}, app.logger)
	guardedLLM := service.NewCircuitBreakingLLMExtractor(
		llmExtractor, service.NewCircuitBreaker(circuitFailureThreshold, circuitRecoveryTimeout))

	app.linkManager = service.NewLinkManager(app.linkRepo, app.urlRepo, guardedZotero, app.logger)

	core := app.watcher.Core()
	orchCfg := service.OrchestratorConfig{
		MaxRetries:         core.MaxRetries,
		BackoffMax:         core.BackoffMax(),
		IdentifierPriority: core.IdentifierKinds(),
		LLMProvider:        core.LLMProvider,
		MaxLLMTokens:       app.config.LLM.MaxTokens,
	}
	app.orchestrator = service.NewOrchestrator(
		app.urlRepo, app.stateMachine, app.linkManager, guardedZotero, fetcher, guardedLLM,
		orchCfg, contentfetch.RenderPreviewNote, app.logger)

	app.batch = service.NewBatchProcessor(
		app.orchestrator, app.lookupIntent, core.SessionRetention(), core.SessionSweepInterval(), app.logger)

	return nil
}

func (app *App) initInterfaces() error {
	app.logger.Info("initializing interfaces")
	app.httpServer = httpServer.NewServer(httpServer.Config{
		Host: app.config.Server.Host,
		Port: app.config.Server.Port,
		Mode: "release",
	}, app.urlRepo, app.orchestrator, app.batch, app.logger)
	return nil
}

// lookupIntent satisfies the batch processor's urlIntentLookup without
// handing it the full URLRepository surface.
func (app *App) lookupIntent(ctx context.Context, urlID string) (valueobject.UserIntent, error) {
	u, err := app.urlRepo.FindByID(ctx, urlID)
	if err != nil {
		return "", err
	}
	return u.UserIntent, nil
}

// runOrphanSweep implements §7's startup recovery: any URL left mid-cascade
// by a previous process's unclean exit is forced back to not_started with a
// reset attempt tagged reason=orphan-sweep, so it re-enters the cascade from
// scratch on its next Process call rather than staying stuck forever.
func (app *App) runOrphanSweep(ctx context.Context) error {
	orphans, err := app.urlRepo.FindByStatus(ctx,
		valueobject.StatusProcessingZotero, valueobject.StatusProcessingContent, valueobject.StatusProcessingLLM)
	if err != nil {
		return fmt.Errorf("find orphaned urls: %w", err)
	}

	for _, u := range orphans {
		attempt := entity.ProcessingAttempt{
			Stage: entity.StageManual, Method: "reset", Success: true,
			Metadata: map[string]interface{}{"reason": "orphan-sweep", "stuck_at": string(u.ProcessingStatus)},
		}
		if err := app.stateMachine.ForceResetToNotStarted(ctx, u.ID, service.TransitionOpts{Attempt: &attempt}); err != nil {
			app.logger.Error("orphan sweep failed for url", zap.String("url_id", u.ID), zap.Error(err))
			continue
		}
		app.logger.Warn("orphan sweep reset stuck url",
			zap.String("url_id", u.ID), zap.String("stuck_at", string(u.ProcessingStatus)))
	}

	if len(orphans) > 0 {
		app.logger.Info("orphan sweep complete", zap.Int("reset_count", len(orphans)))
	}
	return nil
}

// Start brings up the HTTP/websocket surface (the batch session sweeper is
// already running, started by NewBatchProcessor).
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("starting application")

	if err := app.httpServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start http server: %w", err)
	}

	app.logger.Info("application started successfully")
	return nil
}

// Stop gracefully tears down the HTTP surface, config watcher, and database.
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("stopping application")

	if app.watcher != nil {
		app.watcher.Stop()
	}

	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("failed to stop http server", zap.Error(err))
	}

	if app.db != nil {
		if sqlDB, err := app.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				app.logger.Error("failed to close database connection", zap.Error(err))
			}
		}
	}

	app.logger.Info("application stopped successfully")
	return nil
}

// Logger returns the application's zap logger (used by cmd/citationcore's
// non-server subcommands that still want consistent log formatting).
func (app *App) Logger() *zap.Logger { return app.logger }

// AppConfig returns the loaded configuration.
func (app *App) AppConfig() *config.Config { return app.config }

// Orchestrator exposes the cascade for the cmd/citationcore process subcommand.
func (app *App) Orchestrator() *service.Orchestrator { return app.orchestrator }

// BatchProcessor exposes batch session control for the cmd/citationcore batch subcommand.
func (app *App) BatchProcessor() *service.BatchProcessor { return app.batch }

// URLRepository exposes read access for subcommands that list/inspect URLs directly.
func (app *App) URLRepository() repository.URLRepository { return app.urlRepo }

func configFilePath() string {
	return "config.yaml"
}
