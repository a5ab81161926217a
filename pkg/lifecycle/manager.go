// Package lifecycle owns a consumer channel from open to close: it launches
// the producer, opens and maps the region, drives the poller, and releases
// everything exactly once whichever way the channel ends.
//
// A channel ends by an explicit Close, by its Manager becoming unreachable,
// or by CloseAll at process exit. All three run the same release.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/api"
	"github.com/srediag/vecshm/internal/logging"
	"github.com/srediag/vecshm/pkg/health"
	"github.com/srediag/vecshm/pkg/poller"
	"github.com/srediag/vecshm/pkg/process"
	"github.com/srediag/vecshm/pkg/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

var (
	// ErrClosed is returned by Start on a closed channel and by Live once
	// the channel is closed.
	ErrClosed = errors.New("channel closed")
	// ErrNotReady is returned by Ready while the region is not mapped.
	ErrNotReady = errors.New("channel not mapped")
)

// DefaultOpenRetryMaxElapsed bounds open retries when MaxElapsed is zero.
const DefaultOpenRetryMaxElapsed = 5 * time.Second

// RetryOptions controls retrying Open while the region does not exist.
// Close cancels a retry in flight.
type RetryOptions struct {
	Enabled         bool
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// Options configures a Manager.
type Options struct {
	// Region is passed to shm.Open. Its Logger, Meter and Tracer are used
	// as given.
	Region    shm.OpenOptions
	OpenRetry RetryOptions
	// Producer, when set, is launched best-effort before the region is
	// opened and stopped on close.
	Producer  *process.Options
	StopGrace time.Duration

	Sink api.Sink
	// Seed is written into the region once after mapping. It requires
	// Region.Mode ReadWrite and exactly Count records.
	Seed         []vector.Record
	PollInterval time.Duration
	// StaleAfter makes Ready fail when no copy landed within the window.
	// Zero only requires the region to be mapped.
	StaleAfter time.Duration
	Metrics    *poller.Metrics

	Audit  api.Audit
	Logger *zap.Logger
}

// Manager is the owner handle of a channel. Dropping the last reference to
// a Manager without closing it releases the channel on a later GC cycle.
type Manager struct {
	*channel
	cleanup runtime.Cleanup
}

var _ api.Channel = (*Manager)(nil)
var _ api.Health = (*Manager)(nil)

// channel is everything the release path needs. It never points back at
// its Manager, so the Manager can become unreachable while the registry
// still holds the channel.
type channel struct {
	id     string
	opts   Options
	logger *zap.Logger
	audit  api.Audit

	// closeRequested and cancelOpen let close interrupt an open without
	// waiting for mu.
	closeRequested atomic.Bool
	cancelOpen     atomic.Pointer[context.CancelFunc]

	// mu serializes transitions. Tick does not take it.
	mu       sync.Mutex
	state    atomic.Int32
	started  bool
	startErr error

	region   *shm.Region
	producer *process.Process
	poller   atomic.Pointer[poller.Poller]
}

// New returns a Manager in state Uninitialized. Nothing is opened until
// Start.
func New(opts Options) *Manager {
	aud := opts.Audit
	if aud == nil {
		aud = api.NopAudit{}
	}
	c := &channel{
		id:     fmt.Sprintf("%s#%d", opts.Region.Name, nextID.Add(1)),
		opts:   opts,
		logger: logging.Or(opts.Logger, "lifecycle"),
		audit:  aud,
	}
	m := &Manager{channel: c}
	m.cleanup = runtime.AddCleanup(m, func(c *channel) { c.close(reasonFinalized) }, c)
	return m
}

// Start launches the producer, opens and maps the region and builds the
// poller. It runs once: later calls return the first result. On failure
// every partially acquired resource is released and the channel is Closed.
func (m *Manager) Start(ctx context.Context) error {
	return m.channel.start(ctx)
}

// Close releases the channel. It is safe to call any number of times and
// from any goroutine; release failures are logged, not returned. A Close
// during Start cancels the open and Start returns ErrClosed.
func (m *Manager) Close() error {
	m.cleanup.Stop()
	m.channel.close(reasonExplicit)
	return nil
}

// Tick advances the poll cadence by elapsed. It is a no-op unless the
// channel is Mapped. Tick must not be called concurrently with itself.
func (m *Manager) Tick(ctx context.Context, elapsed time.Duration) error {
	return m.channel.tick(ctx, elapsed)
}

// Run drives Tick from a frame ticker until ctx is done or the channel is
// closed. Poll errors are logged.
func (m *Manager) Run(ctx context.Context, frame time.Duration) error {
	return poller.Drive(ctx, frame, func(ctx context.Context, elapsed time.Duration) error {
		if err := m.channel.tick(ctx, elapsed); err != nil {
			m.logger.Warn("poll failed", zap.String("channel", m.id), zap.Error(err))
		}
		if m.State() == Closed {
			return ErrClosed
		}
		return nil
	})
}

// ID identifies the channel in the process registry.
func (c *channel) ID() string { return c.id }

// State returns the current state.
func (c *channel) State() State { return State(c.state.Load()) }

// Poller returns the channel's poller, or nil before the region is mapped.
func (c *channel) Poller() *poller.Poller { return c.poller.Load() }

// Buffer returns the consumer buffer of the last successful copy.
func (c *channel) Buffer() []vector.Record {
	if p := c.poller.Load(); p != nil {
		return p.Buffer()
	}
	return nil
}

// Producer returns the producer handle, or nil when none is configured.
func (c *channel) Producer() *process.Process {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.producer
}

// Live fails once the channel is closed.
func (c *channel) Live() error {
	if c.State() == Closed {
		return ErrClosed
	}
	return nil
}

// Ready fails unless the region is mapped and, with StaleAfter set, a copy
// landed recently.
func (c *channel) Ready() error {
	if s := c.State(); s != Mapped {
		return fmt.Errorf("%w: %s", ErrNotReady, s)
	}
	if c.opts.StaleAfter > 0 {
		return health.Freshness(c.poller.Load().LastPoll, c.opts.StaleAfter)()
	}
	return nil
}

func (c *channel) start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return c.startErr
	}
	c.started = true

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.cancelOpen.Store(&cancel)
	if c.closeRequested.Load() {
		cancel()
	}

	if !c.state.CompareAndSwap(int32(Uninitialized), int32(Opening)) {
		c.startErr = ErrClosed
		return c.startErr
	}
	registry.Set(c.id, c)
	c.record(eventOpening, map[string]interface{}{
		"region": c.opts.Region.Name,
		"mode":   c.opts.Region.Mode.String(),
	})

	c.startProducer(ctx)

	if err := c.open(ctx); err != nil {
		if c.closeRequested.Load() {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		c.startErr = err
		c.fail(err)
		return err
	}

	c.poller.Store(poller.New(c.region, c.opts.Sink,
		poller.WithInterval(c.opts.PollInterval),
		poller.WithMetrics(c.opts.Metrics),
		poller.WithLogger(c.opts.Logger),
	))
	c.state.Store(int32(Mapped))
	c.record(eventMapped, map[string]interface{}{
		"region":  c.region.Name(),
		"records": c.region.Count(),
		"layout":  c.region.Schema().Layout.String(),
	})
	return nil
}

// startProducer is best-effort: a producer that fails to launch is logged
// and the region is opened anyway.
func (c *channel) startProducer(ctx context.Context) {
	if c.opts.Producer == nil {
		return
	}
	popts := *c.opts.Producer
	if popts.Logger == nil {
		popts.Logger = c.opts.Logger
	}
	c.producer = process.New(popts)
	if err := c.producer.Start(ctx); err != nil {
		c.logger.Warn("producer start failed", zap.String("path", c.producer.Path()), zap.Error(err))
		c.record(eventProducerFailed, map[string]interface{}{"path": c.producer.Path(), "error": err.Error()})
	}
}

func (c *channel) open(ctx context.Context) error {
	region, err := c.openRegion(ctx)
	if err != nil {
		return err
	}
	if c.opts.Seed != nil {
		if err := region.Write(ctx, c.opts.Seed); err != nil {
			if cerr := region.Close(); cerr != nil {
				c.logger.Warn("region close failed", zap.Error(cerr))
			}
			return fmt.Errorf("seed region %s: %w", region.Name(), err)
		}
	}
	c.region = region
	return nil
}

func (c *channel) openRegion(ctx context.Context) (*shm.Region, error) {
	if !c.opts.OpenRetry.Enabled {
		return shm.Open(ctx, c.opts.Region)
	}

	b := backoff.NewExponentialBackOff()
	if c.opts.OpenRetry.InitialInterval > 0 {
		b.InitialInterval = c.opts.OpenRetry.InitialInterval
	}
	if c.opts.OpenRetry.MaxInterval > 0 {
		b.MaxInterval = c.opts.OpenRetry.MaxInterval
	}
	b.MaxElapsedTime = c.opts.OpenRetry.MaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = DefaultOpenRetryMaxElapsed
	}

	var region *shm.Region
	op := func() error {
		r, err := shm.Open(ctx, c.opts.Region)
		if err != nil {
			if errors.Is(err, shm.ErrNotFound) {
				return err
			}
			return backoff.Permanent(err)
		}
		region = r
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("region not there yet", zap.String("region", c.opts.Region.Name), zap.Duration("retry_in", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, err
	}
	return region, nil
}

// fail moves an Opening channel straight to Closed.
func (c *channel) fail(err error) {
	c.logger.Error("channel open failed", zap.String("region", c.opts.Region.Name), zap.Error(err))
	c.record(eventOpenFailed, map[string]interface{}{"error": err.Error()})
	c.release()
	c.state.Store(int32(Closed))
	c.record(eventClosed, map[string]interface{}{"reason": reasonOpenFailed})
	registry.Remove(c.id)
}

func (c *channel) close(reason string) {
	c.closeRequested.Store(true)
	if cancel := c.cancelOpen.Load(); cancel != nil {
		(*cancel)()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.State() {
	case Uninitialized:
		c.state.Store(int32(Closed))
		return
	case Closing, Closed:
		return
	}
	c.state.Store(int32(Closing))
	c.record(eventClosing, map[string]interface{}{"reason": reason})
	c.release()
	c.state.Store(int32(Closed))
	c.record(eventClosed, map[string]interface{}{"reason": reason})
	registry.Remove(c.id)
}

// release unmaps and closes the region, then stops the producer. Both are
// idempotent, so release may run more than once.
func (c *channel) release() {
	if c.region != nil {
		if err := c.region.Close(); err != nil {
			c.logger.Warn("region close failed", zap.String("region", c.region.Name()), zap.Error(err))
		}
	}
	if c.producer != nil {
		if err := c.producer.Stop(c.opts.StopGrace); err != nil {
			c.logger.Warn("producer stop failed", zap.Error(err))
		}
	}
}

func (c *channel) tick(ctx context.Context, elapsed time.Duration) error {
	if c.State() != Mapped {
		return nil
	}
	_, err := c.poller.Load().Tick(ctx, elapsed)
	if err != nil && c.State() != Mapped {
		// lost a race with close
		return nil
	}
	return err
}

func (c *channel) record(event string, details map[string]interface{}) {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["channel"] = c.id
	if err := c.audit.LogEvent(event, details); err != nil {
		c.logger.Debug("audit event dropped", zap.String("event", event), zap.Error(err))
	}
}
