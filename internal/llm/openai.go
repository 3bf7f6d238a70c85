package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Providers reachable through the OpenAI-compatible chat API.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
)

// Known OpenAI-compatible base URLs.
const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	geminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta/openai/"
)

// ProviderConfig selects and authenticates the upstream model provider.
type ProviderConfig struct {
	Provider string
	APIKey   string
	BaseURL  string // overrides the provider default when set
	Model    string
	UseProxy bool
	ProxyURL string
}

// ChatCompleter is the slice of the OpenAI client the adapter consumes.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// NewClient builds an OpenAI-compatible client for the configured provider.
func NewClient(cfg ProviderConfig) (*openai.Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm provider %q requires an api key", cfg.Provider)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	switch cfg.Provider {
	case ProviderOpenAI, "":
	case ProviderOpenRouter:
		clientCfg.BaseURL = openRouterBaseURL
	case ProviderGemini:
		clientCfg.BaseURL = geminiBaseURL
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.UseProxy && cfg.ProxyURL != "" {
		proxy, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy url: %w", err)
		}
		clientCfg.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxy)},
			Timeout:   2 * time.Minute,
		}
	}
	return openai.NewClientWithConfig(clientCfg), nil
}

// DefaultModelFor returns a sensible default model per provider.
func DefaultModelFor(provider string) string {
	switch provider {
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOpenRouter:
		return "openai/gpt-4o-mini"
	default:
		return openai.GPT4oMini
	}
}
