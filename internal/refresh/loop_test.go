package refresh_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/davidcole1340/rovabot/internal/observe"
	"github.com/davidcole1340/rovabot/internal/onair"
	"github.com/davidcole1340/rovabot/internal/refresh"
	"github.com/davidcole1340/rovabot/internal/resilience"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// fakeClock hands every After call to the test through sleeps so the test
// decides when the loop wakes up.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps chan sleep
}

type sleep struct {
	d    time.Duration
	wake chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		sleeps: make(chan sleep, 16),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	c.sleeps <- sleep{d: d, wake: ch}
	return ch
}

// waitSleep blocks until the loop starts sleeping and returns that sleep.
func (c *fakeClock) waitSleep(t *testing.T) sleep {
	t.Helper()
	select {
	case s := <-c.sleeps:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("loop never went to sleep")
		return sleep{}
	}
}

// scriptedFetcher returns results in order; the last one repeats.
type scriptedFetcher struct {
	mu      sync.Mutex
	results []func(ctx context.Context) (*onair.Snapshot, error)
	calls   atomic.Int32
}

func (f *scriptedFetcher) FetchOnAir(ctx context.Context) (*onair.Snapshot, error) {
	n := int(f.calls.Add(1)) - 1
	f.mu.Lock()
	if n >= len(f.results) {
		n = len(f.results) - 1
	}
	fn := f.results[n]
	f.mu.Unlock()
	return fn(ctx)
}

func snapshotOf(stationID, title string) func(context.Context) (*onair.Snapshot, error) {
	return func(context.Context) (*onair.Snapshot, error) {
		return onair.NewSnapshot([]onair.Record{
			{StationID: stationID, NowPlaying: &onair.Track{Title: title}},
		}, time.Now()), nil
	}
}

func failWith(err error) func(context.Context) (*onair.Snapshot, error) {
	return func(context.Context) (*onair.Snapshot, error) { return nil, err }
}

func newTestMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func startLoop(t *testing.T, l *refresh.Loop) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(stop)
	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			t.Fatal("Run did not return after cancel")
			return nil
		}
	}
}

func TestLoop_FirstFetchPopulatesCache(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cache := onair.NewCache()
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){snapshotOf("abc", "Song A")}}
	l := refresh.New(f, cache, refresh.WithClock(clk), refresh.WithMetrics(newTestMetrics(t)))

	stop := startLoop(t, l)

	s := clk.waitSleep(t)
	if s.d != refresh.DefaultInterval {
		t.Errorf("sleep = %v, want %v", s.d, refresh.DefaultInterval)
	}

	rec, ok := cache.FindByStationID("abc")
	if !ok || rec.NowPlaying == nil || rec.NowPlaying.Title != "Song A" {
		t.Fatalf("FindByStationID(abc) = %+v, %v; want Song A", rec, ok)
	}
	if _, ok := l.LastSuccess(); !ok {
		t.Error("LastSuccess not set after a successful cycle")
	}

	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestLoop_FailureKeepsStaleSnapshot(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cache := onair.NewCache()
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){
		snapshotOf("abc", "Song A"),
		failWith(errors.New("503 from upstream")),
	}}
	l := refresh.New(f, cache, refresh.WithClock(clk), refresh.WithInterval(time.Minute), refresh.WithMetrics(newTestMetrics(t)))

	stop := startLoop(t, l)

	first := clk.waitSleep(t)
	before := cache.Get()
	okAt, _ := l.LastSuccess()

	clk.Advance(time.Minute)
	first.wake <- clk.Now()
	clk.waitSleep(t)

	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls = %d, want 2", got)
	}
	if cache.Get() != before {
		t.Error("failed fetch replaced the snapshot")
	}
	rec, _ := cache.FindByStationID("abc")
	if rec.NowPlaying.Title != "Song A" {
		t.Errorf("stale title = %q, want Song A", rec.NowPlaying.Title)
	}
	if at, _ := l.LastSuccess(); !at.Equal(okAt) {
		t.Errorf("LastSuccess moved on failure: %v -> %v", okAt, at)
	}

	_ = stop()
}

func TestLoop_WaitsForWakeBeforeNextFetch(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){snapshotOf("a", "x")}}
	l := refresh.New(f, onair.NewCache(), refresh.WithClock(clk), refresh.WithMetrics(newTestMetrics(t)))

	stop := startLoop(t, l)

	s := clk.waitSleep(t)
	time.Sleep(20 * time.Millisecond)
	if got := f.calls.Load(); got != 1 {
		t.Fatalf("fetch calls before wake = %d, want 1", got)
	}
	s.wake <- clk.Now()
	clk.waitSleep(t)
	if got := f.calls.Load(); got != 2 {
		t.Fatalf("fetch calls after wake = %d, want 2", got)
	}

	_ = stop()
}

func TestLoop_CancelDuringFetch(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){
		func(ctx context.Context) (*onair.Snapshot, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	l := refresh.New(f, onair.NewCache(), refresh.WithClock(newFakeClock()), refresh.WithFetchTimeout(time.Hour), refresh.WithMetrics(newTestMetrics(t)))

	stop := startLoop(t, l)
	<-started
	if err := stop(); !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}
}

func TestLoop_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){snapshotOf("a", "x")}}
	l := refresh.New(f, onair.NewCache(), refresh.WithMetrics(newTestMetrics(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run = %v, want context.Canceled", err)
	}
	if f.calls.Load() != 0 {
		t.Error("fetched after cancellation")
	}
}

func TestRunOnce_Timeout(t *testing.T) {
	t.Parallel()

	cache := onair.NewCache()
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){
		func(ctx context.Context) (*onair.Snapshot, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}}
	l := refresh.New(f, cache, refresh.WithFetchTimeout(20*time.Millisecond), refresh.WithMetrics(newTestMetrics(t)))

	err := l.RunOnce(context.Background())
	if !errors.Is(err, refresh.ErrFetchFailed) {
		t.Fatalf("err = %v, want ErrFetchFailed", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want wrapped DeadlineExceeded", err)
	}
	if cache.Get().Len() != 0 {
		t.Error("cache changed after timeout")
	}
}

func TestRunOnce_NilSnapshotIsFailure(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){
		func(context.Context) (*onair.Snapshot, error) { return nil, nil },
	}}
	l := refresh.New(f, onair.NewCache(), refresh.WithMetrics(newTestMetrics(t)))
	if err := l.RunOnce(context.Background()); !errors.Is(err, refresh.ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}

func TestRunOnce_BreakerSkipsAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	clk := newFakeClock()
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "onair",
		MaxFailures:  2,
		ResetTimeout: 5 * time.Minute,
		Now:          clk.Now,
	})
	f := &scriptedFetcher{results: []func(context.Context) (*onair.Snapshot, error){
		failWith(errors.New("boom")),
		failWith(errors.New("boom")),
		snapshotOf("abc", "Back"),
	}}
	cache := onair.NewCache()
	l := refresh.New(f, cache, refresh.WithBreaker(cb), refresh.WithClock(clk), refresh.WithMetrics(newTestMetrics(t)))
	ctx := context.Background()

	for i := range 2 {
		if err := l.RunOnce(ctx); !errors.Is(err, refresh.ErrFetchFailed) {
			t.Fatalf("cycle %d: err = %v, want ErrFetchFailed", i, err)
		}
	}
	if err := l.RunOnce(ctx); !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if got := f.calls.Load(); got != 2 {
		t.Errorf("fetch calls while open = %d, want 2", got)
	}

	clk.Advance(5 * time.Minute)
	if err := l.RunOnce(ctx); err != nil {
		t.Fatalf("probe after reset timeout: %v", err)
	}
	if _, ok := cache.FindByStationID("abc"); !ok {
		t.Error("successful probe did not replace the snapshot")
	}
	if cb.State() != resilience.StateClosed {
		t.Errorf("breaker state = %v, want closed", cb.State())
	}
}
