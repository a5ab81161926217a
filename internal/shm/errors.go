package shm

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error carries exactly one of these as its Kind.
var (
	ErrNotFound         = errors.New("shared region not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrMapFailed        = errors.New("mapping failed")
	ErrSystem           = errors.New("system error")
	ErrAlreadyClosed    = errors.New("already closed")
)

// ErrUnsupported is reported as a SystemError cause on platforms without
// named shared regions.
var ErrUnsupported = errors.New("named shared regions are not supported on this platform")

// Error describes a failed shared region operation.
type Error struct {
	Op   string
	Name string
	Kind error
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("shm %s %q: %v", e.Op, e.Name, e.Kind)
	}
	return fmt.Sprintf("shm %s %q: %v: %v", e.Op, e.Name, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the underlying OS error to errors.Is.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(op, name string, kind, err error) *Error {
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}

// KindOf returns the taxonomy sentinel of err, or nil if err did not come
// from this package.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

var (
	errInvalidName = errors.New("invalid region name")
	errInvalidSize = errors.New("invalid region size")
	errNoSpace     = errors.New("not enough free space for region")
)

func errRegionTooSmall(size int64, length int) error {
	return fmt.Errorf("region is %d bytes, mapping needs %d", size, length)
}
