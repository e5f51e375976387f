// Package config loads runtime settings from the environment, with an
// optional .env file for local development. Values already exported in the
// environment always win over the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates every runtime knob. Plain values, loaded once at
// startup; nothing hot-reloads.
type Config struct {
	// Backend conversation API.
	AuthToken  string
	BackendURL string

	// HTTP server.
	Host string
	Port int

	// Submission and polling bounds.
	SubmitTimeout  time.Duration // explicit wait for the conversation redirect
	PollInterval   time.Duration // backend poll tick
	PollCeiling    time.Duration // absolute completion wait ceiling
	NetworkRetries int           // transient retry budget

	// Request shaping.
	SystemPromptMode string // delete | merge | merge_post_user_instructions | merge_post_meta | keep

	// Browser.
	ChromeBinary string
	ProfileDir   string
	DebugPort    int
	Headless     bool
	TypingMode   string // normal | fast | paste
	KeyDelayMin  time.Duration
	KeyDelayMax  time.Duration

	ModelsPath string
	EnableBell bool
	LogLevel   slog.Level
}

// Load reads the .env file (if present) and assembles the configuration.
func Load() (*Config, error) {
	_ = godotenv.Load() // absent file is fine

	cfg := &Config{
		AuthToken:        os.Getenv("OPENAI_AUTH_TOKEN"),
		BackendURL:       envString("CHATGPT_BACKEND_URL", "https://chatgpt.com"),
		Host:             envString("CHAT_SERVICE_HOST", "0.0.0.0"),
		Port:             envInt("CHAT_SERVICE_PORT", 8000),
		SubmitTimeout:    envDuration("EXPLICIT_WAIT_TIMEOUT", 15*time.Second),
		PollInterval:     envDuration("POLL_INTERVAL", time.Second),
		PollCeiling:      envDuration("POLL_CEILING", 2*time.Hour),
		NetworkRetries:   envInt("NETWORK_ERROR_RETRIES", 3),
		SystemPromptMode: strings.ToLower(envString("SYSTEM_PROMPT_MODE", "delete")),
		ChromeBinary:     os.Getenv("CHROME_BINARY"),
		ProfileDir:       envString("CHROME_PROFILE_DIR", "chromedata"),
		DebugPort:        envInt("CHROME_DEBUG_PORT", 0),
		Headless:         envBool("HEADLESS_CHROME", false),
		TypingMode:       strings.ToLower(envString("TYPING_MODE", "normal")),
		KeyDelayMin:      envDuration("HUMAN_KEY_DELAY_MIN", 80*time.Millisecond),
		KeyDelayMax:      envDuration("HUMAN_KEY_DELAY_MAX", 300*time.Millisecond),
		ModelsPath:       envString("MODELS_PATH", "assets/fallback_models.json"),
		EnableBell:       envBool("ENABLE_RINGTONES", true),
		LogLevel:         envLevel("LOG_LEVEL", slog.LevelInfo),
	}

	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("OPENAI_AUTH_TOKEN environment variable must be set")
	}
	if cfg.NetworkRetries < 0 {
		cfg.NetworkRetries = 0
	}
	if cfg.KeyDelayMax < cfg.KeyDelayMin {
		cfg.KeyDelayMax = cfg.KeyDelayMin
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

// envDuration accepts Go duration syntax ("90s", "2h") or a bare number,
// which is read as seconds for compatibility with older deployments.
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}

func envLevel(key string, def slog.Level) slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return def
	}
}
