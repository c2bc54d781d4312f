package resilience

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Guard wraps calls to one provider with a rate limit, a circuit breaker,
// and retries. Every attempt passes through the limiter and the breaker.
type Guard struct {
	Name    string
	Limiter *rate.Limiter
	Breaker *CircuitBreaker
	Retry   RetryConfig
}

// NewGuard builds a guard for provider. rps <= 0 disables rate limiting.
func NewGuard(provider string, breakers *ProviderBreakers, retry RetryConfig, rps float64, burst int) *Guard {
	g := &Guard{Name: provider, Breaker: breakers.Get(provider), Retry: retry}
	if retry.OnRetry == nil {
		g.Retry.OnRetry = RetryLogger(provider)
	}
	if rps > 0 {
		g.Limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
	return g
}

// Call runs fn under g. Open circuits are not retried.
func Call[T any](ctx context.Context, g *Guard, fn func(ctx context.Context) (T, error)) (T, error) {
	retry := g.Retry
	base := retry.ShouldRetry
	if base == nil {
		base = IsTransient
	}
	retry.ShouldRetry = func(err error) bool {
		return !eris.Is(err, ErrCircuitOpen) && base(err)
	}

	return DoVal(ctx, retry, func(ctx context.Context) (T, error) {
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				var zero T
				return zero, eris.Wrapf(err, "%s: rate limit wait", g.Name)
			}
		}
		if g.Breaker == nil {
			return fn(ctx)
		}
		return ExecuteVal(ctx, g.Breaker, fn)
	})
}
