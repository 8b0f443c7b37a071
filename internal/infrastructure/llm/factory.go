package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tutorhub/tutor-hub/pkg/circuitbreaker"
)

// NewProvider creates the configured provider wrapped with the guard
// (caller → guard → base).
func NewProvider(ctx context.Context, cfg Config, log *slog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	var base Provider
	var err error
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg)
	case "openai":
		base, err = NewOpenAIProvider(cfg)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg)
	case "mock":
		base = NewEchoProvider()
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	breaker := circuitbreaker.New("model-backend",
		circuitbreaker.WithFailureThreshold(cfg.BreakerThreshold),
		circuitbreaker.WithSuccessThreshold(1),
		circuitbreaker.WithTimeout(cfg.BreakerTimeout),
		circuitbreaker.WithIsFailure(IsBreakerFailure),
		circuitbreaker.WithOnStateChange(func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		}),
	)

	return WithGuard(base, breaker, cfg.Timeout, log), nil
}
