// Package schedule implements the bounded worker pool that fans a job's
// rows out across the pricing pipeline (spec section 4.10): batch sizing
// by job volume, an adaptive inter-batch throttle on repeated failure,
// progress reporting, and cooperative cancellation.
//
// The semaphore+WaitGroup+mutex-protected-indexed-results shape is
// grounded directly on evalaf/eval/runner.go's runParallel.
package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Progress is emitted after every completed item.
type Progress struct {
	Processed int
	Total     int
	Elapsed   time.Duration
}

// Plan describes the batch size and concurrency to use for a given job
// volume, per the spec's batch-size-by-volume table.
type Plan struct {
	BatchSize   int
	Concurrency int
}

// PlanFor returns the Plan for a job of n items.
func PlanFor(n int) Plan {
	switch {
	case n <= 20:
		if n < 1 {
			n = 1
		}
		return Plan{BatchSize: n, Concurrency: 1}
	case n <= 100:
		return Plan{BatchSize: 1, Concurrency: 15}
	default:
		return Plan{BatchSize: 2, Concurrency: 10}
	}
}

const (
	minDelay = 100 * time.Millisecond
	maxDelay = 2 * time.Second
)

// throttle is the adaptive inter-batch delay: a run of consecutive
// failures multiplies the delay by 1.5 (capped at maxDelay); a success
// decays it by 0.8 (floored at minDelay).
type throttle struct {
	mu    sync.Mutex
	delay time.Duration
}

func newThrottle() *throttle {
	return &throttle{delay: minDelay}
}

func (t *throttle) onResult(failed bool) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if failed {
		t.delay = time.Duration(float64(t.delay) * 1.5)
		if t.delay > maxDelay {
			t.delay = maxDelay
		}
	} else {
		t.delay = time.Duration(float64(t.delay) * 0.8)
		if t.delay < minDelay {
			t.delay = minDelay
		}
	}
	return t.delay
}

func (t *throttle) current() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.delay
}

// Work is one unit of schedulable work: process the item at index i and
// report whether it failed (for throttle purposes). A "failure" here
// means the item fell through to a worse tier than expected, e.g. a
// provider_down signal — never a fatal error, since the pipeline itself
// never returns one.
type Work func(ctx context.Context, index int) (failed bool)

// Run executes fn for every index in [0,n) using the Plan appropriate to
// n, honoring ctx cancellation cooperatively: in-flight items are allowed
// to complete, but no new batch starts once ctx is done. onProgress, if
// non-nil, is called after each completed item.
//
// Concurrency is bounded by plan.Concurrency, not plan.BatchSize: every
// item in the job is dispatched as its own goroutine, gated only by a
// semaphore sized to plan.Concurrency, so up to that many items run in
// parallel at once regardless of batch boundaries. The batch boundary is
// used to sample the adaptive throttle and to pace dispatch: after each
// batch is dispatched, the next batch waits the current throttle delay
// (never less than minDelay, 100ms), so a job of many small batches is
// paced by that delay as well as by plan.Concurrency.
func Run(ctx context.Context, n int, fn Work, onProgress func(Progress)) {
	if n <= 0 {
		return
	}
	plan := PlanFor(n)
	sem := make(chan struct{}, plan.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	processed := 0
	start := time.Now()
	th := newThrottle()

	report := func() {
		mu.Lock()
		processed++
		p := Progress{Processed: processed, Total: n, Elapsed: time.Since(start)}
		mu.Unlock()
		if onProgress != nil {
			onProgress(p)
		}
	}

	for batchStart := 0; batchStart < n; batchStart += plan.BatchSize {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		default:
		}

		batchEnd := batchStart + plan.BatchSize
		if batchEnd > n {
			batchEnd = n
		}

		var batchWG sync.WaitGroup
		var batchFailed int32
		for i := batchStart; i < batchEnd; i++ {
			sem <- struct{}{}
			wg.Add(1)
			batchWG.Add(1)
			go func(idx int) {
				defer wg.Done()
				defer batchWG.Done()
				defer func() { <-sem }()
				if fn(ctx, idx) {
					atomic.AddInt32(&batchFailed, 1)
				}
				report()
			}(i)
		}

		// Sample the throttle from this batch's outcome once it
		// finishes, without blocking dispatch of the next batch on it.
		go func(bwg *sync.WaitGroup, bf *int32) {
			bwg.Wait()
			th.onResult(atomic.LoadInt32(bf) > 0)
		}(&batchWG, &batchFailed)

		if ctx.Err() != nil {
			wg.Wait()
			return
		}

		delay := th.current()
		if batchEnd < n {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				wg.Wait()
				return
			}
		}
	}

	wg.Wait()
}
