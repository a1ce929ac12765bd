package searchprovider

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/clarus-labs/repricer/internal/cache"
	"github.com/clarus-labs/repricer/internal/model"
	"github.com/clarus-labs/repricer/internal/rank"
)

type fakeProvider struct {
	calls   int32
	fail    int32 // number of leading calls that fail
	err     error
	offers  []model.Offer
}

func (f *fakeProvider) Search(ctx context.Context, query string, priceBand *rank.Band) ([]model.Offer, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.fail {
		return nil, f.err
	}
	return f.offers, nil
}

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BaseDelay:         time.Millisecond,
		MaxDelay:          5 * time.Millisecond,
		Jitter:            time.Millisecond,
		AttemptTimeout:    time.Second,
		MaxAttemptTimeout: time.Second,
	}
}

func TestIsRetryableStatus(t *testing.T) {
	cases := map[int]bool{
		200: false,
		404: false,
		429: true,
		500: true,
		503: true,
	}
	for status, want := range cases {
		if got := IsRetryableStatus(status); got != want {
			t.Errorf("IsRetryableStatus(%d) = %v, want %v", status, got, want)
		}
	}
}

func TestDecoratedSucceedsAfterTransientFailures(t *testing.T) {
	offers := []model.Offer{{Price: 10, Source: "walmart.com"}}
	fp := &fakeProvider{fail: 2, err: &RetryableError{Err: errors.New("503"), Retryable: true}, offers: offers}
	d := Decorate(fp, fastRetryConfig(), 8, nil)

	got, err := d.Search(context.Background(), "drill", nil)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != 1 || got[0].Price != 10 {
		t.Errorf("Search() = %+v, want offers", got)
	}
	if fp.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", fp.calls)
	}
}

func TestDecoratedReturnsProviderDownAfterExhaustingRetries(t *testing.T) {
	fp := &fakeProvider{fail: 10, err: &RetryableError{Err: errors.New("503"), Retryable: true}}
	d := Decorate(fp, fastRetryConfig(), 8, nil)

	_, err := d.Search(context.Background(), "drill", nil)
	if !errors.Is(err, ErrProviderDown) {
		t.Fatalf("Search() error = %v, want ErrProviderDown", err)
	}
	if fp.calls != 3 {
		t.Errorf("expected exactly MaxAttempts=3 calls, got %d", fp.calls)
	}
}

func TestDecoratedDoesNotRetryFatalError(t *testing.T) {
	fp := &fakeProvider{fail: 10, err: &RetryableError{Err: errors.New("400 bad request"), Retryable: false}}
	d := Decorate(fp, fastRetryConfig(), 8, nil)

	_, err := d.Search(context.Background(), "drill", nil)
	if err == nil || errors.Is(err, ErrProviderDown) {
		t.Fatalf("Search() error = %v, want a non-retryable fatal error", err)
	}
	if fp.calls != 1 {
		t.Errorf("expected exactly 1 call for a fatal error, got %d", fp.calls)
	}
}

func TestDecoratedCachesResults(t *testing.T) {
	offers := []model.Offer{{Price: 20, Source: "target.com"}}
	fp := &fakeProvider{offers: offers}
	c := cache.New[[]model.Offer](time.Minute, 10)
	d := Decorate(fp, fastRetryConfig(), 8, c)

	if _, err := d.Search(context.Background(), "lamp", nil); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if _, err := d.Search(context.Background(), "lamp", nil); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if fp.calls != 1 {
		t.Errorf("expected the second Search to be served from cache, got %d inner calls", fp.calls)
	}
}

func TestBackoffDelayRespectsCap(t *testing.T) {
	cfg := RetryConfig{BaseDelay: time.Second, MaxDelay: 2 * time.Second, Jitter: 0}
	if d := backoffDelay(cfg, 1); d != time.Second {
		t.Errorf("backoffDelay(attempt=1) = %v, want 1s", d)
	}
	if d := backoffDelay(cfg, 5); d != 2*time.Second {
		t.Errorf("backoffDelay(attempt=5) = %v, want capped at 2s", d)
	}
}

func TestAttemptTimeoutGrowsAndCaps(t *testing.T) {
	cfg := RetryConfig{AttemptTimeout: time.Second, MaxAttemptTimeout: 3 * time.Second}
	if got := attemptTimeout(cfg, 0); got != time.Second {
		t.Errorf("attemptTimeout(0) = %v, want 1s", got)
	}
	if got := attemptTimeout(cfg, 1); got != 2*time.Second {
		t.Errorf("attemptTimeout(1) = %v, want 2s", got)
	}
	if got := attemptTimeout(cfg, 10); got != 3*time.Second {
		t.Errorf("attemptTimeout(10) = %v, want capped at 3s", got)
	}
}

func TestCacheKeyDiffersByPriceBand(t *testing.T) {
	a := cacheKey("drill", nil)
	b := cacheKey("drill", &rank.Band{Lo: 10, Hi: 20})
	if a == b {
		t.Error("expected cache keys to differ when a price band is present")
	}
}
