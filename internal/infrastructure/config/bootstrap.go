package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name.
const AppName = "citationcore"

// HomeDir returns the user's citation-core configuration home: ~/.citationcore
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.citationcore directory exists with a default
// config.yaml. Called once at startup; safe to call repeatedly — it only
// creates what's missing and never overwrites an existing config.yaml.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	for _, dir := range []string{root, filepath.Join(root, "logs")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(root, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		logger.Debug("config home OK", zap.String("home", root))
		return nil
	}

	if err := os.WriteFile(configPath, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	logger.Info("citation-core bootstrap complete", zap.String("home", root))
	return nil
}

const defaultConfigYAML = `# citation-core configuration — auto-generated on first launch
# Docs: §6.6 of the processing-core design.

server:
  host: 0.0.0.0
  port: 8080

database:
  type: sqlite          # sqlite | postgres
  dsn: citationcore.db

log:
  level: info           # debug | info | warn | error
  format: json           # json | console

# Core cascade tunables — hot-reloaded by infrastructure/config's watcher.
core:
  concurrency: 5                   # batch processor pool size, 1-20
  poll_interval_ms: 500
  max_retries: 3
  backoff_max_ms: 60000
  llm_provider: remote             # local | remote | disabled
  identifier_priority: [doi, pmid, arxiv, isbn]
  session_retention_ms: 600000
  session_sweep_interval_ms: 60000

zotero:
  base_url: "http://127.0.0.1:23119"
  api_key: ""
  max_concurrent_preview: 3

llm:
  provider: remote
  base_url: ""
  api_key: ""
  model: ""
  timeout: 30s
  max_tokens: 0         # 0 = unlimited
`
