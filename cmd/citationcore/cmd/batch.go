package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/application"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/service"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/config"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/logger"
)

var (
	batchConcurrency   int
	batchRespectIntent bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <url-id> [url-id...]",
	Short: "Start a batch session over the given URLs and print progress until it finishes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runBatch,
}

func init() {
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 5, "max URLs processed in parallel")
	batchCmd.Flags().BoolVar(&batchRespectIntent, "respect-intent", true, "skip urls whose userIntent is ignore, archive or manual_only")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.NewLogger(logger.Config{Level: cfg.Log.Level, Format: "console", OutputPath: "stdout"})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	app, err := application.NewApp(cfg, log)
	if err != nil {
		return fmt.Errorf("init application: %w", err)
	}

	opts := service.DefaultBatchOptions()
	opts.Concurrency = batchConcurrency
	opts.RespectIntent = batchRespectIntent

	sessionID := app.BatchProcessor().Start(args, opts)
	fmt.Printf("batch session %s started over %d urls\n", sessionID, len(args))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		snap, err := app.BatchProcessor().Get(sessionID)
		if err != nil {
			return fmt.Errorf("get batch session: %w", err)
		}

		out, _ := json.Marshal(snap)
		fmt.Println(string(out))

		if snap.Status == service.BatchCompleted || snap.Status == service.BatchCancelled {
			return nil
		}
	}
	return nil
}
