// Package searchprovider defines the uniform SearchProvider adapter
// (spec section 4.5) over external shopping-search engines, plus a
// retrying, caching, rate-limited decorator any concrete provider can
// be wrapped in.
//
// The retry loop is grounded directly on
// stadam23-Eve-flipper/internal/esi/client.go's GetJSON/PostJSON shape:
// classify the HTTP status as retryable or fatal, sleep with exponential
// backoff between attempts, and wait on the rate limiter only right
// before each live call — never during the backoff sleep. The
// per-provider limit is grounded on evalaf/eval/runner.go's rate.Limiter
// construction; it limits how fast calls start, not how many are in
// flight at once.
package searchprovider

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/clarus-labs/repricer/internal/cache"
	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/rank"
)

// ErrProviderDown is returned (never panicked) when a provider exhausts
// all retries; the pipeline treats this as "continue to fallback", never
// as a fatal error.
var ErrProviderDown = errors.New("searchprovider: provider down")

// Provider is the uniform interface every concrete shopping-search
// adapter implements.
type Provider interface {
	// Search performs one raw call for query, optionally constrained to
	// priceBand (nil means unconstrained). It returns offers exactly as
	// the backing engine provided them — no trust filtering here.
	Search(ctx context.Context, query string, priceBand *rank.Band) ([]model.Offer, error)
}

// RetryConfig controls the backoff policy wrapping a Provider.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      time.Duration
	// AttemptTimeout is the per-attempt call timeout at attempt 1; it
	// grows linearly with the attempt index up to MaxAttemptTimeout.
	AttemptTimeout    time.Duration
	MaxAttemptTimeout time.Duration
}

// DefaultRetryConfig matches the spec's stated defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	BaseDelay:         500 * time.Millisecond,
	MaxDelay:          5 * time.Second,
	Jitter:            250 * time.Millisecond,
	AttemptTimeout:    5 * time.Second,
	MaxAttemptTimeout: 15 * time.Second,
}

// RetryableError wraps an error with whether it should be retried; a
// Provider implementation may return this to give the decorator a
// precise signal instead of relying solely on HTTP status inspection.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryableStatus classifies an HTTP status code as retryable (5xx,
// and 429) vs fatal (other 4xx), per spec section 4.5.
func IsRetryableStatus(status int) bool {
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// Decorated wraps a Provider with retry/backoff, a per-provider
// concurrency limiter, and a (query,priceBand) TTL+LRU cache.
type Decorated struct {
	inner   Provider
	retry   RetryConfig
	limiter *rate.Limiter
	cache   *cache.Cache[[]model.Offer]
}

// Decorate builds a Decorated provider. maxConcurrent (default 8) sets a
// rate limiter on calls into inner: up to maxConcurrent calls may start
// at once, then further calls start at maxConcurrent per second,
// mirroring evalaf/eval/runner.go's rate.NewLimiter construction. The
// number of calls in flight at the same time is not capped.
func Decorate(inner Provider, retry RetryConfig, maxConcurrent int, c *cache.Cache[[]model.Offer]) *Decorated {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Decorated{
		inner:   inner,
		retry:   retry,
		limiter: rate.NewLimiter(rate.Limit(maxConcurrent), maxConcurrent),
		cache:   c,
	}
}

// Search performs a cached, retried, rate-limited search. On total
// failure (all attempts exhausted) it returns an empty slice and
// ErrProviderDown — never a fatal error — matching the spec's "On total
// failure: empty list + signal provider_down" contract.
func (d *Decorated) Search(ctx context.Context, query string, priceBand *rank.Band) ([]model.Offer, error) {
	key := cacheKey(query, priceBand)
	if d.cache != nil {
		if v, ok := d.cache.Get(key); ok {
			return v, nil
		}
	}

	offers, err := d.searchWithRetry(ctx, query, priceBand)
	if err != nil {
		return nil, err
	}

	if d.cache != nil {
		d.cache.Set(key, offers)
	}
	return offers, nil
}

func (d *Decorated) searchWithRetry(ctx context.Context, query string, priceBand *rank.Band) ([]model.Offer, error) {
	maxAttempts := d.retry.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			wait := backoffDelay(d.retry, attempt)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout(d.retry, attempt))
		offers, err := d.inner.Search(attemptCtx, query, priceBand)
		cancel()

		if err == nil {
			return offers, nil
		}
		lastErr = err

		var re *RetryableError
		if errors.As(err, &re) && !re.Retryable {
			return nil, err
		}
		if !isRetryable(err) {
			return nil, err
		}
	}

	_ = lastErr
	return nil, ErrProviderDown
}

func isRetryable(err error) bool {
	var re *RetryableError
	if errors.As(err, &re) {
		return re.Retryable
	}
	// Context cancellation is not retryable. Timeouts, context deadline
	// exceeded, and anything else surfaced without explicit
	// classification are treated as retryable, since the spec's default
	// posture is "never fail the item" and exhausting retries degrades
	// to ErrProviderDown regardless.
	return !errors.Is(err, context.Canceled)
}

func backoffDelay(cfg RetryConfig, attempt int) time.Duration {
	delay := cfg.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(cfg.Jitter)))
	}
	return delay
}

func attemptTimeout(cfg RetryConfig, attempt int) time.Duration {
	base := cfg.AttemptTimeout
	if base <= 0 {
		base = 5 * time.Second
	}
	timeout := base + time.Duration(attempt)*base
	max := cfg.MaxAttemptTimeout
	if max <= 0 {
		max = 15 * time.Second
	}
	if timeout > max {
		timeout = max
	}
	return timeout
}

func cacheKey(query string, band *rank.Band) string {
	if band == nil {
		return cache.NormalizeKey(query, "")
	}
	return cache.NormalizeKey(query, priceBandKey(band))
}

func priceBandKey(band *rank.Band) string {
	return formatFloat(band.Lo) + ".." + formatFloat(band.Hi)
}

func formatFloat(f float64) string {
	// Formats f as a whole number of cents (12.5 -> "1250"), rounded
	// half up, without pulling in fmt/strconv at the call site.
	cents := int64(f*100 + 0.5)
	return itoa(cents)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
