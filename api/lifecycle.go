// Package api defines public API contracts for vecshm.
package api

import (
	"context"
	"time"
)

// Channel is a consumer-side vecshm channel driven by an external tick.
type Channel interface {
	// Start opens the channel once. Later calls are no-ops.
	Start(ctx context.Context) error
	// Tick advances the poll cadence by elapsed and copies at most once.
	Tick(ctx context.Context, elapsed time.Duration) error
	// Close releases everything. Safe to call any number of times.
	Close() error
}
