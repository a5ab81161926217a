// Package api defines public API contracts for vecshm.
package api

import (
	"context"

	"github.com/srediag/vecshm/pkg/vector"
)

// Sink receives every freshly copied record array. The slice is owned by
// the caller and only valid for the duration of Deliver.
type Sink interface {
	Deliver(ctx context.Context, records []vector.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, records []vector.Record) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, records []vector.Record) error {
	return f(ctx, records)
}

// Source produces full-array snapshots of a region.
type Source interface {
	Count() int
	Snapshot(ctx context.Context, dst []vector.Record) error
}
