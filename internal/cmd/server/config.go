// Package server parses the game server's configuration and runs the
// service: LLM adapter, save store, telemetry, engine, and HTTP transport.
package server

import (
	"flag"
	"time"

	entrypoint "github.com/ravenmoor/deepspire/internal/platform/cmd"
)

// Config holds the game server configuration. Environment variables are the
// source of defaults; flags override.
type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	LLMProvider        string        `env:"LLM_PROVIDER" envDefault:"openai"`
	LLMModel           string        `env:"LLM_MODEL"`
	LLMBaseURL         string        `env:"LLM_BASE_URL"`
	OpenAIAPIKey       string        `env:"OPENAI_API_KEY"`
	OpenRouterAPIKey   string        `env:"OPENROUTER_API_KEY"`
	GeminiAPIKey       string        `env:"GEMINI_API_KEY"`
	LLMTimeout         time.Duration `env:"LLM_TIMEOUT" envDefault:"30s"`
	LLMMaxOutputTokens int           `env:"LLM_MAX_OUTPUT_TOKENS" envDefault:"1024"`
	MaxConcurrentLLM   int64         `env:"MAX_CONCURRENT_LLM_REQUESTS" envDefault:"4"`
	UseProxy           bool          `env:"USE_PROXY"`
	ProxyURL           string        `env:"PROXY_URL"`
	ShowLLMDebug       bool          `env:"SHOW_LLM_DEBUG"`

	AutoSaveInterval      time.Duration `env:"AUTO_SAVE_INTERVAL" envDefault:"1m"`
	GameSessionTimeout    time.Duration `env:"GAME_SESSION_TIMEOUT" envDefault:"30m"`
	MaxActiveGamesPerUser int           `env:"MAX_ACTIVE_GAMES_PER_USER" envDefault:"3"`

	SaveRoot        string `env:"SAVE_ROOT"`
	TelemetryDBPath string `env:"TELEMETRY_DB_PATH"`
	DebugMode       bool   `env:"DEBUG_MODE"`
}

// APIKey returns the key matching the configured provider.
func (c Config) APIKey() string {
	switch c.LLMProvider {
	case "openrouter":
		return c.OpenRouterAPIKey
	case "gemini":
		return c.GeminiAPIKey
	default:
		return c.OpenAIAPIKey
	}
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "The HTTP listen address")
	fs.StringVar(&cfg.LLMProvider, "llm-provider", cfg.LLMProvider, "The LLM provider (openai, openrouter, gemini)")
	fs.StringVar(&cfg.LLMModel, "llm-model", cfg.LLMModel, "The model name (provider default when empty)")
	fs.StringVar(&cfg.SaveRoot, "save-root", cfg.SaveRoot, "The save file root directory (XDG data home when empty)")
	fs.StringVar(&cfg.TelemetryDBPath, "telemetry-db", cfg.TelemetryDBPath, "The telemetry SQLite path (telemetry off when empty)")
	fs.BoolVar(&cfg.DebugMode, "debug", cfg.DebugMode, "Allow anonymous users and verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
