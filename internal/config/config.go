// Package config loads the runtime configuration from YAML with environment
// variable expansion.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Strand.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Search     SearchConfig     `yaml:"search"`
	LLM        LLMConfig        `yaml:"llm"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Vision     VisionConfig     `yaml:"vision"`
	Agent      AgentConfig      `yaml:"agent"`
	Personas   PersonasConfig   `yaml:"personas"`
	Web        WebConfig        `yaml:"web"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CheckpointConfig selects the conversation checkpoint backend.
type CheckpointConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// Durable marks the deployment as requiring durable checkpoints. When
	// false (standalone/test mode), a sqlite open failure downgrades to the
	// memory backend with a logged warning instead of aborting startup.
	Durable bool `yaml:"durable"`
	// Retention prunes checkpoints older than this on startup; zero keeps
	// everything.
	Retention time.Duration `yaml:"retention"`
}

// SearchConfig selects the knowledge-base search backend.
type SearchConfig struct {
	// Backend is "postgres" or "disabled".
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn"`
}

type LLMConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

type TranscriptConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// VisionConfig selects the image description backend, an OpenAI-compatible
// vision endpoint (a local Ollama server or a hosted model).
type VisionConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type AgentConfig struct {
	MaxCycles       int           `yaml:"max_cycles"`
	ToolParallelism int           `yaml:"tool_parallelism"`
	ToolTimeout     time.Duration `yaml:"tool_timeout"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	MaxTokens       int           `yaml:"max_tokens"`
}

type PersonasConfig struct {
	// Dir holds additional persona bundle YAML files; built-ins always load.
	Dir string `yaml:"dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Load reads and parses the configuration file. Environment variables in the
// file (${VAR} syntax) are expanded before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the standalone configuration: memory checkpoints, search
// disabled, web front end on localhost.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Checkpoint.Backend == "" {
		cfg.Checkpoint.Backend = "memory"
	}
	if cfg.Checkpoint.Path == "" {
		cfg.Checkpoint.Path = "strand.db"
	}
	if cfg.Search.Backend == "" {
		cfg.Search.Backend = "disabled"
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "anthropic"
	}
	if cfg.Transcript.Timeout == 0 {
		cfg.Transcript.Timeout = 30 * time.Second
	}
	if cfg.Vision.Model == "" {
		cfg.Vision.Model = "llava"
	}
	if cfg.Agent.MaxCycles == 0 {
		cfg.Agent.MaxCycles = 8
	}
	if cfg.Agent.ToolParallelism == 0 {
		cfg.Agent.ToolParallelism = 4
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = 30 * time.Second
	}
	if cfg.Agent.ProviderTimeout == 0 {
		cfg.Agent.ProviderTimeout = 60 * time.Second
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "127.0.0.1:9090"
	}
}

// Validate rejects combinations the runtime cannot start with.
func (c *Config) Validate() error {
	switch c.Checkpoint.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("config: unknown checkpoint backend %q", c.Checkpoint.Backend)
	}
	switch c.Search.Backend {
	case "postgres", "disabled":
	default:
		return fmt.Errorf("config: unknown search backend %q", c.Search.Backend)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.Search.Backend == "postgres" && c.Search.DSN == "" {
		return fmt.Errorf("config: postgres search backend requires a dsn")
	}
	if c.Checkpoint.Backend == "memory" && c.Checkpoint.Durable {
		return fmt.Errorf("config: durable mode requires the sqlite checkpoint backend")
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("config: telegram requires a bot_token")
	}
	if c.Vision.Enabled && c.Vision.BaseURL == "" {
		return fmt.Errorf("config: vision requires a base_url")
	}
	return nil
}
