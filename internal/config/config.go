package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderModeLLM    = "llm"
	ProviderModeEngine = "engine"
	ProviderModeRandom = "random"
)

type AppConfig struct {
	HTTPAddr string

	AIMoveDelay      time.Duration
	AIRequestTimeout time.Duration

	DefaultDifficulty string
	DefaultHumanSide  string

	ProviderMode  string
	LocalFallback bool

	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeout    time.Duration
	LLMMaxRetries int

	StockfishPath string

	RedisURL         string
	ProviderCacheTTL time.Duration

	DatabaseURL string

	SessionIdleTTL time.Duration
	MessagesDir    string
}

// Load reads configuration from the environment. When CHESS_CONFIG_FILE names a file,
// its values act as defaults beneath the environment.
func Load() (*AppConfig, error) {
	src, err := newSource(strings.TrimSpace(os.Getenv("CHESS_CONFIG_FILE")))
	if err != nil {
		return nil, err
	}
	return load(src)
}

func load(src source) (*AppConfig, error) {
	cfg := &AppConfig{
		HTTPAddr:          ":8080",
		AIMoveDelay:       500 * time.Millisecond,
		AIRequestTimeout:  30 * time.Second,
		DefaultDifficulty: "intermediate",
		DefaultHumanSide:  "white",
		ProviderMode:      ProviderModeLLM,
		LocalFallback:     true,
		LLMModel:          "gpt-4o-mini",
		LLMTimeout:        20 * time.Second,
		LLMMaxRetries:     2,
		ProviderCacheTTL:  10 * time.Minute,
		SessionIdleTTL:    60 * time.Minute,
	}

	if v := src.get("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := src.get("AI_MOVE_DELAY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.AIMoveDelay = time.Duration(n) * time.Millisecond
		}
	}
	if v := src.get("AI_REQUEST_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIRequestTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := src.get("DEFAULT_DIFFICULTY"); v != "" {
		cfg.DefaultDifficulty = strings.ToLower(v)
	}
	if v := src.get("DEFAULT_HUMAN_SIDE"); v != "" {
		cfg.DefaultHumanSide = strings.ToLower(v)
	}

	if v := src.get("PROVIDER_MODE"); v != "" {
		cfg.ProviderMode = strings.ToLower(v)
	}
	if v := src.get("LOCAL_FALLBACK"); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			cfg.LocalFallback = b
		}
	}

	// LLM
	cfg.LLMBaseURL = strings.TrimRight(src.get("LLM_BASE_URL"), "/")
	cfg.LLMAPIKey = src.get("LLM_API_KEY")
	if v := src.get("LLM_MODEL"); v != "" {
		cfg.LLMModel = v
	}
	if v := src.get("LLM_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LLMTimeout = time.Duration(n) * time.Millisecond
		}
	}
	if v := src.get("LLM_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.LLMMaxRetries = n
		}
	}

	cfg.StockfishPath = src.get("STOCKFISH_PATH")

	cfg.RedisURL = src.get("REDIS_URL")
	if v := src.get("PROVIDER_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.ProviderCacheTTL = time.Duration(n) * time.Second
		}
	}
	cfg.DatabaseURL = src.get("DATABASE_URL")

	if v := src.get("SESSION_IDLE_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.SessionIdleTTL = time.Duration(n) * time.Minute
		}
	}
	cfg.MessagesDir = src.get("MESSAGES_DIR")

	switch cfg.ProviderMode {
	case ProviderModeLLM:
		if cfg.LLMBaseURL == "" {
			return nil, errors.New("LLM_BASE_URL is required")
		}
	case ProviderModeEngine:
		if cfg.StockfishPath == "" {
			return nil, errors.New("STOCKFISH_PATH is required")
		}
	case ProviderModeRandom:
	default:
		return nil, fmt.Errorf("unknown PROVIDER_MODE %q", cfg.ProviderMode)
	}
	switch cfg.DefaultHumanSide {
	case "white", "black":
	default:
		return nil, fmt.Errorf("unknown DEFAULT_HUMAN_SIDE %q", cfg.DefaultHumanSide)
	}

	return cfg, nil
}

// source resolves a key from the environment first, then from the optional config file.
type source struct {
	env  func(string) string
	file *viper.Viper
}

func newSource(path string) (source, error) {
	src := source{env: os.Getenv}
	if path == "" {
		return src, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return source{}, fmt.Errorf("read config file %s: %w", path, err)
	}
	src.file = v
	return src, nil
}

func (s source) get(key string) string {
	if s.env != nil {
		if v := strings.TrimSpace(s.env(key)); v != "" {
			return v
		}
	}
	if s.file != nil {
		return strings.TrimSpace(s.file.GetString(strings.ToLower(key)))
	}
	return ""
}
