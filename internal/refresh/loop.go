// Package refresh keeps the on-air cache current.
//
// A [Loop] is the cache's only writer. It fetches immediately when started,
// then sleeps for the configured interval measured from the end of each
// cycle, so fetches never overlap. A failed fetch leaves the previous
// snapshot in place.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/davidcole1340/rovabot/internal/observe"
	"github.com/davidcole1340/rovabot/internal/onair"
	"github.com/davidcole1340/rovabot/internal/resilience"
)

// Defaults used when the corresponding option is not supplied.
const (
	DefaultInterval     = 60 * time.Second
	DefaultFetchTimeout = 10 * time.Second
)

// ErrFetchFailed wraps every fetch failure: network errors, non-2xx answers,
// malformed payloads and timeouts.
var ErrFetchFailed = errors.New("refresh: fetch failed")

// Fetcher downloads a complete on-air snapshot.
type Fetcher interface {
	FetchOnAir(ctx context.Context) (*onair.Snapshot, error)
}

// Clock abstracts the timer the loop sleeps on.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Loop periodically replaces the contents of an [onair.Cache].
type Loop struct {
	fetcher  Fetcher
	cache    *onair.Cache
	interval time.Duration
	timeout  time.Duration
	clock    Clock
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics

	// lastSuccess holds the UnixNano of the last successful replace, 0 if none.
	lastSuccess atomic.Int64
}

// Option configures a [Loop].
type Option func(*Loop)

// WithInterval sets the delay between the end of one cycle and the start of
// the next.
func WithInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.interval = d
		}
	}
}

// WithFetchTimeout bounds each fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.timeout = d
		}
	}
}

// WithClock replaces the wall clock. Tests use it to drive the loop without
// real timers.
func WithClock(c Clock) Option {
	return func(l *Loop) { l.clock = c }
}

// WithBreaker routes every fetch through cb. While cb is open, cycles are
// skipped and the cache keeps its current snapshot.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(l *Loop) { l.breaker = cb }
}

// WithMetrics records refresh outcomes on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Loop) { l.metrics = m }
}

// New returns a loop that fetches with f and publishes into cache.
func New(f Fetcher, cache *onair.Cache, opts ...Option) *Loop {
	l := &Loop{
		fetcher:  f,
		cache:    cache,
		interval: DefaultInterval,
		timeout:  DefaultFetchTimeout,
		clock:    realClock{},
	}
	for _, o := range opts {
		o(l)
	}
	if l.metrics == nil {
		l.metrics = observe.DefaultMetrics()
	}
	return l
}

// Run refreshes until ctx is cancelled and then returns ctx.Err(). Individual
// cycle failures are logged, never returned.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("refresh loop started", "interval", l.interval, "fetch_timeout", l.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := l.RunOnce(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, resilience.ErrCircuitOpen) {
				slog.Debug("refresh skipped, circuit open")
			} else {
				slog.Warn("refresh fetch failed", "error", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(l.interval):
		}
	}
}

// RunOnce performs a single cycle. On success the cache is replaced and nil is
// returned. A failed fetch returns an error wrapping [ErrFetchFailed]; a cycle
// skipped by an open breaker returns [resilience.ErrCircuitOpen]. In both
// cases the cache is untouched.
func (l *Loop) RunOnce(ctx context.Context) (err error) {
	ctx, span := observe.StartSpan(ctx, "refresh.cycle")
	defer func() { observe.EndSpan(span, err) }()

	start := l.clock.Now()
	var snap *onair.Snapshot
	fetch := func() error {
		fctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()
		s, ferr := l.fetcher.FetchOnAir(fctx)
		if ferr != nil {
			return ferr
		}
		if s == nil {
			return errors.New("fetcher returned no snapshot")
		}
		snap = s
		return nil
	}

	if l.breaker != nil {
		err = l.breaker.Execute(fetch)
	} else {
		err = fetch()
	}
	elapsed := l.clock.Now().Sub(start)

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		l.metrics.RecordRefresh(ctx, observe.StatusSkipped, 0)
		return err
	case err != nil:
		l.metrics.RecordRefresh(ctx, observe.StatusError, elapsed)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	l.cache.Replace(snap)
	l.lastSuccess.Store(l.clock.Now().UnixNano())
	l.metrics.RecordRefresh(ctx, observe.StatusOK, elapsed)
	l.metrics.OnAirStations.Record(ctx, int64(snap.Len()))
	observe.Logger(ctx).Debug("on-air snapshot replaced", "stations", snap.Len(), "duration", elapsed)
	return nil
}

// LastSuccess reports when the cache was last replaced. The boolean is false
// until the first successful cycle.
func (l *Loop) LastSuccess() (time.Time, bool) {
	ns := l.lastSuccess.Load()
	if ns == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}

// Interval returns the configured delay between cycles.
func (l *Loop) Interval() time.Duration {
	return l.interval
}
