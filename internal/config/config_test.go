package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "strand.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "web:\n  enabled: true\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Checkpoint.Backend != "memory" {
		t.Fatalf("checkpoint backend = %q", cfg.Checkpoint.Backend)
	}
	if cfg.Agent.MaxCycles != 8 || cfg.Agent.ProviderTimeout != 60*time.Second {
		t.Fatalf("agent defaults = %+v", cfg.Agent)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("logging format = %q", cfg.Logging.Format)
	}
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("STRAND_TEST_TOKEN", "tok-123")
	cfg, err := Load(writeConfig(t, "telegram:\n  enabled: true\n  bot_token: ${STRAND_TEST_TOKEN}\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "tok-123" {
		t.Fatalf("bot token = %q", cfg.Telegram.BotToken)
	}
}

func TestValidateRejectsBadCombinations(t *testing.T) {
	cases := []string{
		"checkpoint:\n  backend: redis\n",
		"search:\n  backend: elastic\n",
		"llm:\n  provider: bard\n",
		"search:\n  backend: postgres\n",
		"checkpoint:\n  backend: memory\n  durable: true\n",
		"telegram:\n  enabled: true\n",
	}
	for _, c := range cases {
		if _, err := Load(writeConfig(t, c)); err == nil {
			t.Errorf("Load(%q): expected validation error", c)
		}
	}
}
