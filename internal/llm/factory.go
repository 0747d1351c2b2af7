package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abhisek/masterypath/internal/store"
)

// Deps are the optional collaborators of the provider middleware.
type Deps struct {
	Log      *zap.Logger
	Events   store.EventRepo
	Observer Observer
}

// NewProvider builds the configured provider wrapped as
// caller -> retry -> instrumentation -> vendor SDK, so every attempt is
// recorded. It returns (nil, nil) when generation is disabled.
func NewProvider(ctx context.Context, cfg Config, deps Deps) (Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = NewStubProvider()
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initialize %s provider: %w", cfg.Provider, err)
	}

	instrumented := Instrument(base, cfg.Provider, deps.Log, deps.Events, deps.Observer)
	retried := WithRetry(instrumented, cfg.Retry, deps.Log)
	if cfg.Timeout > 0 {
		return &timeboxed{inner: retried, timeout: cfg.Timeout}, nil
	}
	return retried, nil
}

// timeboxed bounds each Generate call, retries included.
type timeboxed struct {
	inner   Provider
	timeout time.Duration
}

func (t *timeboxed) Generate(ctx context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.inner.Generate(ctx, req)
}

func (t *timeboxed) ModelID() string { return t.inner.ModelID() }
