package llm

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// Config selects a provider. Provider is one of "anthropic", "openai",
// "gemini", "openrouter", "mock", or empty to disable generation.
type Config struct {
	Provider   string           `mapstructure:"provider"`
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Gemini     GeminiConfig     `mapstructure:"gemini"`
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
	Retry      RetryConfig      `mapstructure:"retry"`

	// Timeout bounds one Generate call including retries.
	Timeout time.Duration `mapstructure:"timeout"`
}

type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// RetryConfig is exponential backoff with jitter.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	InitialWait time.Duration `mapstructure:"initial_wait"`
	MaxWait     time.Duration `mapstructure:"max_wait"`
	Multiplier  float64       `mapstructure:"multiplier"`
}

// DefaultConfig has generation disabled and the default models filled in.
func DefaultConfig() Config {
	return Config{
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "google/gemini-2.0-flash-001"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 60 * time.Second,
	}
}

// Enabled reports whether a provider is selected.
func (c Config) Enabled() bool {
	return c.Provider != "" && c.Provider != "none"
}

// FillKeysFromEnv copies the vendors' conventional API key variables into
// any provider section that has no key yet.
func (c *Config) FillKeysFromEnv() {
	fill := func(dst *string, env string) {
		if *dst == "" {
			*dst = os.Getenv(env)
		}
	}
	fill(&c.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	fill(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&c.Gemini.APIKey, "GEMINI_API_KEY")
	fill(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
}

// Validate checks that the selected provider has a key and the retry
// settings are usable.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case "", "none", "mock":
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			errs = append(errs, errors.New("llm.anthropic.api_key is required for the anthropic provider"))
		}
	case "openai":
		if c.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("llm.openai.api_key is required for the openai provider"))
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("llm.gemini.api_key is required for the gemini provider"))
		}
	case "openrouter":
		if c.OpenRouter.APIKey == "" {
			errs = append(errs, errors.New("llm.openrouter.api_key is required for the openrouter provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown llm provider %q", c.Provider))
	}
	if c.Enabled() && c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("llm.retry.max_attempts must be at least 1"))
	}
	return errors.Join(errs...)
}
