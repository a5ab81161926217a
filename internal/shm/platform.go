// Package shm contains the platform layer for named shared regions: opening,
// creating, mapping and releasing them.
package shm

import (
	"strings"
	"sync"
)

// AccessMode is the mode a region handle is opened with.
type AccessMode int

const (
	ReadOnly AccessMode = iota
	ReadWrite
)

func (m AccessMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return "unknown"
	}
}

// Protection is the page protection of a mapping.
type Protection int

const (
	ProtRead Protection = 1 << iota
	ProtWrite
)

// ProtectionFor returns the widest protection a handle opened with mode may map.
func ProtectionFor(mode AccessMode) Protection {
	if mode == ReadWrite {
		return ProtRead | ProtWrite
	}
	return ProtRead
}

// Handle is an open named shared-memory object.
type Handle struct {
	mu     sync.Mutex
	fd     int
	name   string
	mode   AccessMode
	closed bool
}

// MappedRegion is a process-local view of a shared region. Bytes is valid
// until Unmap.
type MappedRegion struct {
	mu   sync.Mutex
	data []byte
	prot Protection
}

func normalizeName(name string) (string, bool) {
	n := strings.TrimPrefix(name, "/")
	if n == "" || strings.ContainsRune(n, '/') || n == "." || n == ".." {
		return "", false
	}
	return n, true
}

// Open resolves an existing named region. It never creates one.
func Open(name string, mode AccessMode) (*Handle, error) {
	n, ok := normalizeName(name)
	if !ok {
		return nil, newError("open", name, ErrSystem, errInvalidName)
	}
	fd, err := sysOpen(n, mode)
	if err != nil {
		return nil, newError("open", name, classify(err), err)
	}
	return &Handle{fd: fd, name: n, mode: mode}, nil
}

// Create makes a new region of size bytes with the given permission bits and
// returns a read-write handle to it. An existing region with the same name
// is an error; callers replacing a stale region Unlink it first.
func Create(name string, size int64, perm uint32) (*Handle, error) {
	n, ok := normalizeName(name)
	if !ok {
		return nil, newError("create", name, ErrSystem, errInvalidName)
	}
	if size <= 0 {
		return nil, newError("create", name, ErrSystem, errInvalidSize)
	}
	if !canCreateOnDevShm(uint64(size), n) {
		return nil, newError("create", name, ErrSystem, errNoSpace)
	}
	fd, err := sysCreate(n, size, perm)
	if err != nil {
		return nil, newError("create", name, classify(err), err)
	}
	return &Handle{fd: fd, name: n, mode: ReadWrite}, nil
}

// Unlink removes the region name. Existing mappings stay valid.
func Unlink(name string) error {
	n, ok := normalizeName(name)
	if !ok {
		return newError("unlink", name, ErrSystem, errInvalidName)
	}
	if err := sysUnlink(n); err != nil {
		return newError("unlink", name, classify(err), err)
	}
	return nil
}

// Name returns the normalized region name.
func (h *Handle) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

// Mode returns the access mode the handle was opened with, or ReadOnly for
// a nil handle.
func (h *Handle) Mode() AccessMode {
	if h == nil {
		return ReadOnly
	}
	return h.mode
}

// Size returns the current byte size of the region.
func (h *Handle) Size() (int64, error) {
	if h == nil {
		return 0, newError("stat", "", ErrSystem, ErrAlreadyClosed)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, newError("stat", h.name, ErrSystem, ErrAlreadyClosed)
	}
	size, err := sysSize(h.fd)
	if err != nil {
		return 0, newError("stat", h.name, ErrSystem, err)
	}
	return size, nil
}

// Map maps the first length bytes of the region. Lengths that are not
// positive or exceed the region size fail with ErrMapFailed.
func (h *Handle) Map(length int, prot Protection) (*MappedRegion, error) {
	if h == nil {
		return nil, newError("map", "", ErrMapFailed, ErrAlreadyClosed)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, newError("map", h.name, ErrMapFailed, ErrAlreadyClosed)
	}
	if length <= 0 {
		return nil, newError("map", h.name, ErrMapFailed, errInvalidSize)
	}
	size, err := sysSize(h.fd)
	if err != nil {
		return nil, newError("map", h.name, ErrSystem, err)
	}
	if size < int64(length) {
		return nil, newError("map", h.name, ErrMapFailed, errRegionTooSmall(size, length))
	}
	data, err := sysMmap(h.fd, length, prot)
	if err != nil {
		return nil, newError("map", h.name, ErrMapFailed, err)
	}
	return &MappedRegion{data: data, prot: prot}, nil
}

// Close releases the handle. It is safe on a nil handle and after a
// previous Close.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	if err := sysClose(h.fd); err != nil {
		return newError("close", h.name, ErrSystem, err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (h *Handle) Closed() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Bytes returns the mapped memory, or nil once unmapped.
func (r *MappedRegion) Bytes() []byte {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data
}

// Len returns the mapped length, or 0 once unmapped.
func (r *MappedRegion) Len() int {
	return len(r.Bytes())
}

// Writable reports whether the mapping allows stores.
func (r *MappedRegion) Writable() bool {
	return r != nil && r.prot&ProtWrite != 0
}

// Mapped reports whether the view is still mapped.
func (r *MappedRegion) Mapped() bool {
	return r.Bytes() != nil
}

// Unmap releases the view. It is safe on a nil region and after a previous
// Unmap; the view is considered gone even if the syscall fails.
func (r *MappedRegion) Unmap() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	if err := sysMunmap(data); err != nil {
		return newError("unmap", "", ErrSystem, err)
	}
	return nil
}
