package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/hortensia-labs/theodore-popyto-sub001/internal/domain/valueobject"
)

// Config is the root application configuration, loaded by Load and kept
// live by Watcher (fsnotify-backed hot reload of the Core sub-config).
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Core     CoreConfig     `mapstructure:"core"`
	Zotero   ZoteroConfig   `mapstructure:"zotero"`
	LLM      LLMConfig      `mapstructure:"llm"`
}

// ServerConfig configures the HTTP/websocket surface (interfaces/http).
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig selects and connects the persistence backend.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, console
}

// CoreConfig enumerates §6.6's tunables. Watcher reloads it into an
// atomically-swapped snapshot; the orchestrator and batch processor take
// their values from that snapshot once, when the App is built, and do not
// see later reloads.
type CoreConfig struct {
	Concurrency            int      `mapstructure:"concurrency"`
	PollIntervalMs         int      `mapstructure:"poll_interval_ms"`
	MaxRetries             int      `mapstructure:"max_retries"`
	BackoffMaxMs           int      `mapstructure:"backoff_max_ms"`
	LLMProvider            string   `mapstructure:"llm_provider"` // local | remote | disabled
	IdentifierPriority     []string `mapstructure:"identifier_priority"`
	SessionRetentionMs     int      `mapstructure:"session_retention_ms"`
	SessionSweepIntervalMs int      `mapstructure:"session_sweep_interval_ms"`
}

// BackoffMax and SessionRetention/SessionSweepInterval as time.Duration.
func (c CoreConfig) BackoffMax() time.Duration { return time.Duration(c.BackoffMaxMs) * time.Millisecond }
func (c CoreConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}
func (c CoreConfig) SessionRetention() time.Duration {
	return time.Duration(c.SessionRetentionMs) * time.Millisecond
}
func (c CoreConfig) SessionSweepInterval() time.Duration {
	return time.Duration(c.SessionSweepIntervalMs) * time.Millisecond
}

// IdentifierKinds converts the configured string priority list into
// valueobject.IdentifierKind, skipping unrecognized entries.
func (c CoreConfig) IdentifierKinds() []valueobject.IdentifierKind {
	out := make([]valueobject.IdentifierKind, 0, len(c.IdentifierPriority))
	for _, s := range c.IdentifierPriority {
		switch kind := valueobject.IdentifierKind(s); kind {
		case valueobject.IdentifierDOI, valueobject.IdentifierPMID, valueobject.IdentifierArXiv, valueobject.IdentifierISBN:
			out = append(out, kind)
		}
	}
	return out
}

// ZoteroConfig configures the §6.2 Zotero Local/Connector API client.
type ZoteroConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	MaxConcurrentPreview int `mapstructure:"max_concurrent_preview"` // Zotero's own 3-in-flight limitation (§5)
}

// LLMConfig configures the §6.4 LLM extractor collaborator.
type LLMConfig struct {
	Provider   string        `mapstructure:"provider"` // local | remote | disabled
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxTokens  int64         `mapstructure:"max_tokens"` // cumulative budget over the orchestrator's lifetime, §guardrails CostGuard
}

// Load reads configuration in layered order (lowest to
// highest priority): built-in defaults → ~/.citationcore/config.yaml →
// ./config.yaml (project-local override) → CITATIONCORE_* environment
// variables.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	globalDir := filepath.Join(os.Getenv("HOME"), ".citationcore")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read global config: %w", err)
		}
	}

	localPath := "config.yaml"
	if _, err := os.Stat(localPath); err == nil {
		v2 := viper.New()
		v2.SetConfigFile(localPath)
		if err := v2.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(v2.AllSettings()); err != nil {
				return nil, fmt.Errorf("merge local config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CITATIONCORE")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults seeds every §6.6 default plus the ambient server/db/log/zotero/llm defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "citationcore.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("core.concurrency", 5)
	v.SetDefault("core.poll_interval_ms", 500)
	v.SetDefault("core.max_retries", 3)
	v.SetDefault("core.backoff_max_ms", 60000)
	v.SetDefault("core.llm_provider", "remote")
	v.SetDefault("core.identifier_priority", []string{"doi", "pmid", "arxiv", "isbn"})
	v.SetDefault("core.session_retention_ms", 600000)
	v.SetDefault("core.session_sweep_interval_ms", 60000)

	v.SetDefault("zotero.base_url", "http://127.0.0.1:23119")
	v.SetDefault("zotero.max_concurrent_preview", 3)

	v.SetDefault("llm.provider", "remote")
	v.SetDefault("llm.timeout", "30s")
	v.SetDefault("llm.max_tokens", 0)
}
