package llm

import (
	"fmt"
	"time"

	"github.com/tutorhub/tutor-hub/config"
)

// Config holds provider selection and credentials.
type Config struct {
	// "anthropic", "openai", "gemini" or "mock"
	Provider string
	// Friendly name or raw model ID. Empty picks the provider default.
	Model string

	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string

	// Upper bound for a single call.
	Timeout time.Duration

	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Default model names per provider.
const (
	defaultAnthropicModel = "claude-haiku"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultGeminiModel    = "gemini-flash"
)

// ConfigFrom maps application settings onto provider settings.
func ConfigFrom(c config.LLMConfig) Config {
	return Config{
		Provider:         c.Provider,
		Model:            c.Model,
		AnthropicAPIKey:  c.AnthropicAPIKey,
		OpenAIAPIKey:     c.OpenAIAPIKey,
		OpenAIBaseURL:    c.OpenAIBaseURL,
		GeminiAPIKey:     c.GeminiAPIKey,
		Timeout:          c.Timeout,
		BreakerThreshold: c.CircuitBreakerThreshold,
		BreakerTimeout:   c.CircuitBreakerTimeout,
	}
}

func (c Config) modelOr(def string) string {
	if c.Model != "" {
		return c.Model
	}
	return def
}

// Validate checks that the selected provider has its API key.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("anthropic API key is required")
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("openai API key is required")
		}
	case "gemini":
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("gemini API key is required")
		}
	case "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	return nil
}

// resolveModel maps a friendly model name to a provider model ID.
// Unknown names are used as-is.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
