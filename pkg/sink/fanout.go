package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/api"
	"github.com/srediag/vecshm/internal/logging"
	"github.com/srediag/vecshm/pkg/vector"
)

// Fanout delivers each snapshot to several sinks in parallel on a bounded
// worker pool. The sinks share the snapshot slice and must not modify it.
type Fanout struct {
	pool  *ants.Pool
	sinks []api.Sink
}

// NewFanout returns a fanout over sinks using at most workers goroutines.
// A non-positive workers uses one per sink.
func NewFanout(workers int, sinks ...api.Sink) (*Fanout, error) {
	if workers <= 0 {
		workers = max(len(sinks), 1)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("fanout pool: %w", err)
	}
	return &Fanout{pool: pool, sinks: sinks}, nil
}

// Deliver runs every sink and waits for all of them. Failures are joined.
func (f *Fanout) Deliver(ctx context.Context, records []vector.Record) error {
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		wg.Add(1)
		err := f.pool.Submit(func() {
			defer wg.Done()
			errs[i] = s.Deliver(ctx, records)
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("submit: %w", err)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close releases the worker pool.
func (f *Fanout) Close() {
	f.pool.Release()
}

// Log returns a sink that logs a summary of every n-th snapshot at Debug.
func Log(logger *zap.Logger, every uint64) api.Sink {
	if every == 0 {
		every = 1
	}
	logger = logging.Or(logger, "sink")
	var n uint64
	return api.SinkFunc(func(_ context.Context, records []vector.Record) error {
		n++
		if n%every != 0 || len(records) == 0 {
			return nil
		}
		first := records[0]
		logger.Debug("snapshot",
			zap.Uint64("seq", n),
			zap.Int("records", len(records)),
			zap.Float32("x0", first.X),
			zap.Float32("y0", first.Y),
			zap.Float32("z0", first.Z))
		return nil
	})
}
