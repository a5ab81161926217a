package shm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
	internalshm "github.com/srediag/vecshm/internal/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

const instrumentationName = "github.com/srediag/vecshm/pkg/shm"

// DefaultTornReadRetries is used when OpenOptions.TornReadRetries is zero.
const DefaultTornReadRetries = 3

// Region is a consumer's mapped view of a named region.
type Region struct {
	view
	name   string
	mode   AccessMode
	handle *internalshm.Handle
	region *internalshm.MappedRegion
	logger *zap.Logger

	metricer  metric.Meter
	tracer    trace.Tracer
	snapshots metric.Int64Counter
	tornReads metric.Int64Counter
	copyTime  metric.Float64Histogram

	// mu guards the mapping against Close while a copy is running.
	mu     sync.RWMutex
	closed bool
}

// OpenOptions defines how a region is opened.
type OpenOptions struct {
	// Name is the identifier for the shared memory region.
	Name string
	// Schema must match the producer's schema exactly.
	Schema vector.Schema
	// Mode is ReadOnly unless the consumer needs to seed the region.
	Mode AccessMode
	// TornReadRetries bounds retries of a sequenced read. Negative disables
	// retries.
	TornReadRetries int

	Meter  metric.Meter
	Tracer trace.Tracer
	Logger *zap.Logger
}

// Open resolves and maps an existing region. It fails with ErrNotFound when
// the producer has not created it yet, ErrPermissionDenied on a mode
// mismatch, and ErrMapFailed when the mapping cannot be established. A
// failed Open holds no resources.
func Open(ctx context.Context, opts OpenOptions) (r *Region, err error) {
	if err := opts.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	meter, tracer := opts.Meter, opts.Tracer
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	logger := logging.Or(opts.Logger, "shm")

	_, span := tracer.Start(ctx, "vecshm.Region.Open")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	h, err := internalshm.Open(opts.Name, opts.Mode)
	if err != nil {
		return nil, err
	}
	m, err := h.Map(opts.Schema.Size(), internalshm.ProtectionFor(opts.Mode))
	if err != nil {
		if cerr := h.Close(); cerr != nil {
			logger.Warn("close handle after failed map", zap.String("region", opts.Name), zap.Error(cerr))
		}
		return nil, err
	}
	if err := opts.Schema.CheckHeader(m.Bytes()); err != nil {
		if uerr := m.Unmap(); uerr != nil {
			logger.Warn("unmap after header mismatch", zap.String("region", opts.Name), zap.Error(uerr))
		}
		if cerr := h.Close(); cerr != nil {
			logger.Warn("close handle after header mismatch", zap.String("region", opts.Name), zap.Error(cerr))
		}
		return nil, &Error{Op: "open", Name: opts.Name, Kind: ErrMapFailed, Err: err}
	}

	retries := opts.TornReadRetries
	switch {
	case retries == 0:
		retries = DefaultTornReadRetries
	case retries < 0:
		retries = 0
	}
	r = &Region{
		view:     view{schema: opts.Schema, retries: retries},
		name:     h.Name(),
		mode:     opts.Mode,
		handle:   h,
		region:   m,
		logger:   logger,
		metricer: meter,
		tracer:   tracer,
	}
	r.initInstruments()
	logger.Info("region mapped",
		zap.String("region", r.name),
		zap.Stringer("mode", opts.Mode),
		zap.Stringer("layout", opts.Schema.Layout),
		zap.Int("records", opts.Schema.Count),
		zap.Int("bytes", opts.Schema.Size()))
	return r, nil
}

func (r *Region) initInstruments() {
	var err error
	if r.snapshots, err = r.metricer.Int64Counter("vecshm.region.snapshots",
		metric.WithDescription("Completed full-array copies out of the region.")); err != nil {
		r.snapshots = metricnoop.Int64Counter{}
	}
	if r.tornReads, err = r.metricer.Int64Counter("vecshm.region.torn_reads",
		metric.WithDescription("Sequenced read attempts that overlapped a producer write.")); err != nil {
		r.tornReads = metricnoop.Int64Counter{}
	}
	if r.copyTime, err = r.metricer.Float64Histogram("vecshm.region.copy.duration",
		metric.WithDescription("Time spent copying the region."), metric.WithUnit("s")); err != nil {
		r.copyTime = metricnoop.Float64Histogram{}
	}
}

// Name returns the normalized region name.
func (r *Region) Name() string { return r.name }

// Schema returns the schema the region was opened with.
func (r *Region) Schema() vector.Schema { return r.schema }

// Count returns the number of records in the region.
func (r *Region) Count() int { return r.schema.Count }

// Mode returns the access mode.
func (r *Region) Mode() AccessMode { return r.mode }

// Sequence returns the producer's sequence word; always 0 for raw layouts.
func (r *Region) Sequence() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return 0
	}
	return r.sequence(r.region.Bytes())
}

// Snapshot copies all records into dst, which must hold exactly Count
// records. Record i of the region lands in dst[i]. On error the content of
// dst is unspecified.
func (r *Region) Snapshot(ctx context.Context, dst []vector.Record) (err error) {
	ctx, span := r.tracer.Start(ctx, "vecshm.Region.Snapshot")
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return &Error{Op: "snapshot", Name: r.name, Kind: ErrAlreadyClosed}
	}
	start := time.Now()
	attempts, err := r.read(ctx, r.region.Bytes(), dst)
	if attempts > 1 {
		r.tornReads.Add(ctx, int64(attempts-1))
	}
	if err != nil {
		return err
	}
	r.copyTime.Record(ctx, time.Since(start).Seconds())
	r.snapshots.Add(ctx, 1)
	return nil
}

// Write stores src into the region. It needs a ReadWrite region and is
// meant for seeding before the producer starts updating.
func (r *Region) Write(ctx context.Context, src []vector.Record) error {
	_, span := r.tracer.Start(ctx, "vecshm.Region.Write")
	defer span.End()

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return &Error{Op: "write", Name: r.name, Kind: ErrAlreadyClosed}
	}
	if !r.region.Writable() {
		return ErrReadOnly
	}
	return r.write(r.region.Bytes(), src)
}

// Close unmaps the region and closes its handle. Only the first call does
// anything; later calls return nil. Both releases are attempted even if the
// first fails.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	uerr := r.region.Unmap()
	cerr := r.handle.Close()
	if err := errors.Join(uerr, cerr); err != nil {
		return err
	}
	r.logger.Info("region closed", zap.String("region", r.name))
	return nil
}

// Closed reports whether Close has been called.
func (r *Region) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}
