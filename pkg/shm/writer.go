package shm

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
	internalshm "github.com/srediag/vecshm/internal/shm"
	"github.com/srediag/vecshm/pkg/vector"
)

// DefaultPerm matches the permission bits of the reference producer.
const DefaultPerm = 0o666

// Writer is the single producer of a region. It creates the region, owns
// its name, and unlinks it on Close unless told to keep it.
type Writer struct {
	view
	name        string
	keepOnClose bool
	handle      *internalshm.Handle
	region      *internalshm.MappedRegion
	logger      *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// CreateOptions defines how a region is created.
type CreateOptions struct {
	Name   string
	Schema vector.Schema
	// Perm defaults to DefaultPerm.
	Perm uint32
	// Replace unlinks a stale region with the same name first.
	Replace bool
	// KeepOnClose leaves the name in place after Close.
	KeepOnClose bool
	Logger      *zap.Logger
}

// Create makes, sizes and maps a new region filled with zero records.
func Create(ctx context.Context, opts CreateOptions) (*Writer, error) {
	if err := opts.Schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := logging.Or(opts.Logger, "shm.writer")
	perm := opts.Perm
	if perm == 0 {
		perm = DefaultPerm
	}
	if opts.Replace {
		if err := internalshm.Unlink(opts.Name); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	h, err := internalshm.Create(opts.Name, int64(opts.Schema.Size()), perm)
	if err != nil {
		return nil, err
	}
	m, err := h.Map(opts.Schema.Size(), internalshm.ProtRead|internalshm.ProtWrite)
	if err != nil {
		_ = h.Close()
		_ = internalshm.Unlink(opts.Name)
		return nil, err
	}
	opts.Schema.WriteHeader(m.Bytes())

	w := &Writer{
		view:        view{schema: opts.Schema},
		name:        h.Name(),
		keepOnClose: opts.KeepOnClose,
		handle:      h,
		region:      m,
		logger:      logger,
	}
	logger.Info("region created",
		zap.String("region", w.name),
		zap.Stringer("layout", opts.Schema.Layout),
		zap.Int("records", opts.Schema.Count),
		zap.Int("bytes", opts.Schema.Size()))
	return w, nil
}

// Name returns the normalized region name.
func (w *Writer) Name() string { return w.name }

// Count returns the number of records in the region.
func (w *Writer) Count() int { return w.schema.Count }

// Write replaces every record of the region with src.
func (w *Writer) Write(src []vector.Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return &Error{Op: "write", Name: w.name, Kind: ErrAlreadyClosed}
	}
	return w.write(w.region.Bytes(), src)
}

// Grow grows every non-zero-sum record in place by amount and returns how
// many changed. Records that sum to zero are left untouched, so a consumer
// seeding the region concurrently is not overwritten.
func (w *Writer) Grow(amount float32) (int, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0, &Error{Op: "grow", Name: w.name, Kind: ErrAlreadyClosed}
	}
	return w.grow(w.region.Bytes(), amount), nil
}

// Snapshot reads the current records back. Writers are the only mutator,
// so the copy is never torn.
func (w *Writer) Snapshot(dst []vector.Record) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return &Error{Op: "snapshot", Name: w.name, Kind: ErrAlreadyClosed}
	}
	if len(dst) != w.schema.Count {
		return ErrBufferSize
	}
	vector.DecodeAll(dst, w.schema.Data(w.region.Bytes()))
	return nil
}

// Sequence returns the current sequence word; always 0 for raw layouts.
func (w *Writer) Sequence() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return 0
	}
	return w.sequence(w.region.Bytes())
}

// Close unmaps and closes the region and, unless KeepOnClose was set,
// unlinks its name. Later calls return nil.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	errs := []error{w.region.Unmap(), w.handle.Close()}
	if !w.keepOnClose {
		if err := internalshm.Unlink(w.name); err != nil && !errors.Is(err, ErrNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Unlink removes a region name. Existing mappings stay valid.
func Unlink(name string) error {
	return internalshm.Unlink(name)
}
