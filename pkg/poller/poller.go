// Package poller copies a shared region into a private buffer on a fixed
// cadence and hands each copy to a sink.
//
// A Poller is single-threaded: Tick, Poll and Run must not be called
// concurrently. LastPoll and Polls may be read from any goroutine.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/srediag/vecshm/api"
	"github.com/srediag/vecshm/internal/logging"
	"github.com/srediag/vecshm/pkg/vector"
)

// ErrSink wraps failures returned by the sink.
var ErrSink = errors.New("sink delivery failed")

// Poller owns the consumer buffer. The buffer is replaced as a whole: a
// failed copy leaves the previous contents untouched.
type Poller struct {
	src     api.Source
	sink    api.Sink
	cadence *Cadence
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	current []vector.Record
	staging []vector.Record

	lastPoll atomic.Int64
	polls    atomic.Uint64
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the cadence interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) { p.cadence = NewCadence(d) }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// WithClock replaces time.Now for LastPoll bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// New returns a poller reading src into a buffer of src.Count() records. A
// nil sink discards copies.
func New(src api.Source, sink api.Sink, opts ...Option) *Poller {
	p := &Poller{
		src:     src,
		sink:    sink,
		cadence: NewCadence(DefaultInterval),
		now:     time.Now,
		current: make([]vector.Record, src.Count()),
		staging: make([]vector.Record, src.Count()),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	p.logger = logging.Or(p.logger, "poller")
	return p
}

// Tick advances the cadence by elapsed and polls if it fired. It reports
// whether a poll was attempted.
func (p *Poller) Tick(ctx context.Context, elapsed time.Duration) (bool, error) {
	p.metrics.Ticks.Inc()
	if !p.cadence.Advance(elapsed) {
		return false, nil
	}
	return true, p.Poll(ctx)
}

// Poll copies the region and delivers it regardless of the cadence.
func (p *Poller) Poll(ctx context.Context) error {
	start := time.Now()
	if err := p.src.Snapshot(ctx, p.staging); err != nil {
		p.metrics.Failures.WithLabelValues(reasonSnapshot).Inc()
		return fmt.Errorf("snapshot: %w", err)
	}
	p.current, p.staging = p.staging, p.current
	p.metrics.CopyDuration.Observe(time.Since(start).Seconds())

	now := p.now()
	p.lastPoll.Store(now.UnixNano())
	p.polls.Add(1)
	p.metrics.LastPoll.Set(float64(now.UnixNano()) / float64(time.Second))

	if p.sink == nil {
		p.metrics.Polls.Inc()
		return nil
	}
	if err := p.sink.Deliver(ctx, p.current); err != nil {
		p.metrics.Failures.WithLabelValues(reasonSink).Inc()
		return fmt.Errorf("%w: %w", ErrSink, err)
	}
	p.metrics.Polls.Inc()
	return nil
}

// Buffer returns the consumer buffer as of the last successful copy. It is
// only valid until the next Tick or Poll.
func (p *Poller) Buffer() []vector.Record {
	return p.current
}

// Cadence exposes the accumulator.
func (p *Poller) Cadence() *Cadence {
	return p.cadence
}

// LastPoll returns the time of the last successful copy, or the zero time.
func (p *Poller) LastPoll() time.Time {
	ns := p.lastPoll.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Polls returns the number of successful copies.
func (p *Poller) Polls() uint64 {
	return p.polls.Load()
}

// Run drives Tick from a frame ticker until ctx is done. Poll errors are
// logged and do not stop the loop.
func (p *Poller) Run(ctx context.Context, frame time.Duration) error {
	return Drive(ctx, frame, func(ctx context.Context, elapsed time.Duration) error {
		if _, err := p.Tick(ctx, elapsed); err != nil {
			p.logger.Warn("poll failed", zap.Error(err))
		}
		return nil
	})
}

// Drive is a tick source: it calls tick once per frame with the time elapsed
// since the previous call. It returns ctx.Err() on cancellation or the first
// error from tick.
func Drive(ctx context.Context, frame time.Duration, tick func(context.Context, time.Duration) error) error {
	if frame <= 0 {
		frame = DefaultInterval
	}
	t := time.NewTicker(frame)
	defer t.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			elapsed := now.Sub(last)
			last = now
			if err := tick(ctx, elapsed); err != nil {
				return err
			}
		}
	}
}
