package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/application"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/repository"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/config"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/logger"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, database connectivity, and collaborator wiring",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Println("[ok] config loaded")

	log, err := logger.NewLogger(logger.Config{Level: "warn", Format: "console", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("database/wiring check failed: %w", err)
	}
	fmt.Println("[ok] database connected and migrated")

	if cfg.Zotero.BaseURL == "" {
		fmt.Println("[warn] zotero.base_url not configured")
	} else {
		fmt.Printf("[ok] zotero base url: %s (max %d concurrent preview requests)\n", cfg.Zotero.BaseURL, cfg.Zotero.MaxConcurrentPreview)
	}

	switch cfg.LLM.Provider {
	case "disabled":
		fmt.Println("[warn] llm extraction disabled — urls whose content stage yields no usable metadata will exhaust without an llm pass")
	default:
		if cfg.LLM.BaseURL == "" || cfg.LLM.Model == "" {
			fmt.Println("[warn] llm.base_url or llm.model not configured")
		} else {
			fmt.Printf("[ok] llm provider %q, model %q\n", cfg.LLM.Provider, cfg.LLM.Model)
		}
	}

	printStatusBreakdown(context.Background(), app.URLRepository())
	return nil
}

func printStatusBreakdown(ctx context.Context, repo repository.URLRepository) {
	for _, status := range valueobject.AllStatuses {
		urls, err := repo.FindAll(ctx, repository.URLFilter{Status: &status})
		if err != nil {
			fmt.Printf("[warn] could not count status %s: %v\n", status, err)
			continue
		}
		if len(urls) > 0 {
			fmt.Printf("  %s: %d\n", status, len(urls))
		}
	}
}
