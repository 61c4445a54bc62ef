package providers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := 200 * time.Millisecond << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// withRetry runs call up to maxRetries+1 times while the error stays retryable.
// A Retry-After hint from the backend replaces the exponential delay.
func withRetry[T any](ctx context.Context, maxRetries int, call func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		v, err := call()
		if err == nil {
			return v, nil
		}
		lastErr = err
		if attempt == maxRetries || !Retryable(err) {
			break
		}
		delay := retryDelay(attempt)
		var se *statusError
		if errors.As(err, &se) && se.RetryAfter > 0 {
			delay = se.RetryAfter
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, ctx.Err()
		case <-t.C:
		}
	}
	return zero, lastErr
}

type rateLimitedProvider struct {
	next    EmbeddingProvider
	limiter *rate.Limiter
}

// WithRateLimit caps calls into p at rps requests per second.
func WithRateLimit(p EmbeddingProvider, rps float64) EmbeddingProvider {
	if rps <= 0 {
		return p
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &rateLimitedProvider{next: p, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *rateLimitedProvider) Embed(ctx context.Context, req EmbedRequest) ([][]float32, ProviderInfo, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, ProviderInfo{}, wrapFailure("rate limiter", err)
	}
	return r.next.Embed(ctx, req)
}
