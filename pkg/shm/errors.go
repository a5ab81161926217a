package shm

import (
	"errors"

	internalshm "github.com/srediag/vecshm/internal/shm"
)

// Error taxonomy. Every failure from Open, Create and Close matches exactly
// one of these with errors.Is.
var (
	ErrNotFound         = internalshm.ErrNotFound
	ErrPermissionDenied = internalshm.ErrPermissionDenied
	ErrMapFailed        = internalshm.ErrMapFailed
	ErrSystem           = internalshm.ErrSystem
	ErrAlreadyClosed    = internalshm.ErrAlreadyClosed
)

var (
	// ErrTornRead means a sequenced read kept overlapping producer writes.
	ErrTornRead = errors.New("torn read: region changed during copy")
	// ErrBufferSize means the destination does not hold exactly Count records.
	ErrBufferSize = errors.New("buffer length does not match element count")
	// ErrReadOnly means a write was attempted through a read-only mapping.
	ErrReadOnly = errors.New("region is mapped read-only")
)

// Error describes a failed region operation.
type Error = internalshm.Error

// AccessMode is the mode a region is opened with.
type AccessMode = internalshm.AccessMode

const (
	ReadOnly  = internalshm.ReadOnly
	ReadWrite = internalshm.ReadWrite
)

// KindOf returns the taxonomy sentinel carried by err, or nil.
func KindOf(err error) error {
	return internalshm.KindOf(err)
}
