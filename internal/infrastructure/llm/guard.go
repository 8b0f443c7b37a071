package llm

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/tutorhub/tutor-hub/pkg/circuitbreaker"
)

// GuardedProvider bounds every call with a timeout and a circuit breaker and
// logs the outcome. Calls are never retried: a failed reply surfaces to the
// student immediately.
type GuardedProvider struct {
	inner   Provider
	breaker *circuitbreaker.CircuitBreaker
	timeout time.Duration
	log     *slog.Logger
}

// WithGuard wraps p. A nil breaker disables breaking; a zero timeout leaves
// the caller's deadline alone.
func WithGuard(p Provider, breaker *circuitbreaker.CircuitBreaker, timeout time.Duration, log *slog.Logger) *GuardedProvider {
	if log == nil {
		log = slog.Default()
	}
	return &GuardedProvider{inner: p, breaker: breaker, timeout: timeout, log: log}
}

func (g *GuardedProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	var resp *Response
	call := func(ctx context.Context) error {
		var err error
		resp, err = g.inner.Generate(ctx, req)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(ctx, call)
	} else {
		err = call(ctx)
	}
	err = normalizeError(err)

	attrs := []any{
		slog.String("purpose", PurposeFrom(ctx)),
		slog.String("model", g.inner.ModelID()),
		slog.Duration("latency", time.Since(start)),
	}
	if err != nil {
		g.log.Warn("model call failed", append(attrs, slog.String("error", err.Error()))...)
		return nil, err
	}
	g.log.Debug("model call",
		append(attrs,
			slog.Int("input_tokens", resp.Usage.InputTokens),
			slog.Int("output_tokens", resp.Usage.OutputTokens),
			slog.String("stop", resp.StopReason),
		)...)
	return resp, nil
}

func (g *GuardedProvider) ModelID() string { return g.inner.ModelID() }

// IsOpen reports whether the breaker is currently rejecting calls.
func (g *GuardedProvider) IsOpen() bool {
	return g.breaker != nil && g.breaker.IsOpen()
}

// normalizeError maps breaker rejections and deadlines onto provider errors.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	if IsUnavailable(err) || IsInvalidResponse(err) {
		return err
	}
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen),
		errors.Is(err, circuitbreaker.ErrTooManyRequests),
		errors.Is(err, context.DeadlineExceeded):
		return &ErrProviderUnavailable{Err: err}
	}
	return err
}

// IsBreakerFailure decides which errors trip the breaker: outages and
// timeouts count, malformed output and caller cancellation do not.
func IsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var truncated *ErrMaxTokensExceeded
	return !IsInvalidResponse(err) && !errors.As(err, &truncated) && !errors.Is(err, ErrEmptyReply)
}
