package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/application"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/config"
	"github.com/hortensia-labs/theodore-popyto-sub001/internal/infrastructure/logger"
)

var processCmd = &cobra.Command{
	Use:   "process <url-id>",
	Short: "Run the cascade once for a single tracked URL and print the result",
	Args:  cobra.ExactArgs(1),
	RunE:  runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
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

	result, err := app.Orchestrator().Process(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("process url %s: %w", args[0], err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	return nil
}
