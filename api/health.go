// Package api defines public API contracts for vecshm.
package api

// Health reports channel liveness and readiness.
type Health interface {
	// Live fails when the channel is in an unrecoverable state.
	Live() error
	// Ready fails until the region is mapped and polls are landing.
	Ready() error
}
