package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envSource(m map[string]string) source {
	return source{env: func(k string) string { return m[k] }}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envSource(map[string]string{"LLM_BASE_URL": "http://llm.local/v1/"}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.AIMoveDelay != 500*time.Millisecond {
		t.Fatalf("unexpected delay %v", cfg.AIMoveDelay)
	}
	if cfg.LLMBaseURL != "http://llm.local/v1" {
		t.Fatalf("trailing slash not trimmed: %q", cfg.LLMBaseURL)
	}
	if !cfg.LocalFallback {
		t.Fatalf("local fallback should default to true")
	}
}

func TestLoadRequiresProviderSettings(t *testing.T) {
	if _, err := load(envSource(nil)); err == nil {
		t.Fatalf("expected LLM_BASE_URL error")
	}
	if _, err := load(envSource(map[string]string{"PROVIDER_MODE": "engine"})); err == nil {
		t.Fatalf("expected STOCKFISH_PATH error")
	}
	if _, err := load(envSource(map[string]string{"PROVIDER_MODE": "oracle"})); err == nil {
		t.Fatalf("expected unknown mode error")
	}
	cfg, err := load(envSource(map[string]string{"PROVIDER_MODE": "random"}))
	if err != nil {
		t.Fatalf("random mode: %v", err)
	}
	if cfg.ProviderMode != ProviderModeRandom {
		t.Fatalf("unexpected mode %q", cfg.ProviderMode)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	cfg, err := load(envSource(map[string]string{
		"PROVIDER_MODE":            "random",
		"AI_MOVE_DELAY_MS":         "0",
		"DEFAULT_HUMAN_SIDE":       "Black",
		"LOCAL_FALLBACK":           "false",
		"SESSION_IDLE_TTL_MINUTES": "5",
		"LLM_MAX_RETRIES":          "not-a-number",
	}))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AIMoveDelay != 0 {
		t.Fatalf("delay override ignored: %v", cfg.AIMoveDelay)
	}
	if cfg.DefaultHumanSide != "black" {
		t.Fatalf("side not normalised: %q", cfg.DefaultHumanSide)
	}
	if cfg.LocalFallback {
		t.Fatalf("local fallback override ignored")
	}
	if cfg.SessionIdleTTL != 5*time.Minute {
		t.Fatalf("unexpected idle ttl %v", cfg.SessionIdleTTL)
	}
	if cfg.LLMMaxRetries != 2 {
		t.Fatalf("invalid number should keep default, got %d", cfg.LLMMaxRetries)
	}
}

func TestLoadReadsConfigFileBeneathEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chess.yaml")
	body := "provider_mode: random\nhttp_addr: \":9090\"\ndefault_difficulty: advanced\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CHESS_CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":7070" {
		t.Fatalf("env should win over file, got %q", cfg.HTTPAddr)
	}
	if cfg.DefaultDifficulty != "advanced" {
		t.Fatalf("file value not applied: %q", cfg.DefaultDifficulty)
	}
	if cfg.ProviderMode != ProviderModeRandom {
		t.Fatalf("file provider mode not applied: %q", cfg.ProviderMode)
	}
}
