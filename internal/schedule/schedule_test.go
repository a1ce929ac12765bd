package schedule

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPlanFor(t *testing.T) {
	cases := []struct {
		n    int
		want Plan
	}{
		{1, Plan{BatchSize: 1, Concurrency: 1}},
		{20, Plan{BatchSize: 20, Concurrency: 1}},
		{21, Plan{BatchSize: 1, Concurrency: 15}},
		{100, Plan{BatchSize: 1, Concurrency: 15}},
		{101, Plan{BatchSize: 2, Concurrency: 10}},
		{5000, Plan{BatchSize: 2, Concurrency: 10}},
	}
	for _, c := range cases {
		if got := PlanFor(c.n); got != c.want {
			t.Errorf("PlanFor(%d) = %+v, want %+v", c.n, got, c.want)
		}
	}
}

func TestThrottleBacksOffAndDecays(t *testing.T) {
	th := newThrottle()
	if th.current() != minDelay {
		t.Fatalf("initial delay = %v, want %v", th.current(), minDelay)
	}
	d := th.onResult(true)
	if d <= minDelay {
		t.Errorf("expected delay to grow after failure, got %v", d)
	}
	for i := 0; i < 50; i++ {
		th.onResult(true)
	}
	if th.current() > maxDelay {
		t.Errorf("delay exceeded cap: %v > %v", th.current(), maxDelay)
	}
	for i := 0; i < 50; i++ {
		th.onResult(false)
	}
	if th.current() < minDelay {
		t.Errorf("delay went below floor: %v < %v", th.current(), minDelay)
	}
}

func TestRunProcessesAllItems(t *testing.T) {
	const n = 30
	var count int32
	var seen sync.Map
	Run(context.Background(), n, func(ctx context.Context, idx int) bool {
		atomic.AddInt32(&count, 1)
		seen.Store(idx, true)
		return false
	}, nil)

	if int(count) != n {
		t.Fatalf("processed %d items, want %d", count, n)
	}
	for i := 0; i < n; i++ {
		if _, ok := seen.Load(i); !ok {
			t.Errorf("index %d was never processed", i)
		}
	}
}

func TestRunReportsProgress(t *testing.T) {
	const n = 10
	var calls int32
	var lastProcessed int32
	Run(context.Background(), n, func(ctx context.Context, idx int) bool {
		return false
	}, func(p Progress) {
		atomic.AddInt32(&calls, 1)
		atomic.StoreInt32(&lastProcessed, int32(p.Processed))
		if p.Total != n {
			t.Errorf("Progress.Total = %d, want %d", p.Total, n)
		}
	})
	if int(calls) != n {
		t.Errorf("onProgress called %d times, want %d", calls, n)
	}
	if int(lastProcessed) != n {
		t.Errorf("final Progress.Processed = %d, want %d", lastProcessed, n)
	}
}

func TestRunStopsStartingNewBatchesOnCancellation(t *testing.T) {
	const n = 200
	ctx, cancel := context.WithCancel(context.Background())
	var processed int32

	Run(ctx, n, func(ctx context.Context, idx int) bool {
		c := atomic.AddInt32(&processed, 1)
		if c == 1 {
			cancel()
		}
		time.Sleep(time.Millisecond)
		return false
	}, nil)

	if processed >= n {
		t.Errorf("expected cancellation to stop processing before all %d items completed, got %d", n, processed)
	}
}

func TestRunAchievesConcurrencyAboveBatchSize(t *testing.T) {
	// n=50 falls in the <=100 tier: batch size 1, concurrency 15. Each
	// batch after the first waits at least minDelay (100ms) before it is
	// dispatched, so dispatch alone takes about 49*100ms=4.9s. If Run only
	// ever had BatchSize goroutines in flight, 50 items each sleeping
	// 400ms would take 50*400ms=20s; with items overlapping (about four
	// in flight at a time) it finishes in about 5.3s, under half that.
	const n = 50
	const work = 400 * time.Millisecond

	var inFlight int32
	var maxInFlight int32
	start := time.Now()
	Run(context.Background(), n, func(ctx context.Context, idx int) bool {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if cur <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, cur) {
				break
			}
		}
		time.Sleep(work)
		atomic.AddInt32(&inFlight, -1)
		return false
	}, nil)
	elapsed := time.Since(start)

	if maxInFlight <= 2 {
		t.Errorf("max observed concurrency = %d, want well above the batch size of 1", maxInFlight)
	}
	if elapsed > n*work/2 {
		t.Errorf("elapsed = %v, want well under the fully-sequential bound of %v", elapsed, n*work)
	}
}

func TestRunNoItems(t *testing.T) {
	called := false
	Run(context.Background(), 0, func(ctx context.Context, idx int) bool {
		called = true
		return false
	}, nil)
	if called {
		t.Error("expected fn never to be called for n=0")
	}
}
