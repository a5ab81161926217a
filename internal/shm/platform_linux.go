//go:build linux

package shm

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"golang.org/x/sys/unix"
)

// Dir is where named regions live. glibc's shm_open resolves names here.
var Dir = "/dev/shm"

func regionPath(name string) string {
	return filepath.Join(Dir, name)
}

func sysOpen(name string, mode AccessMode) (int, error) {
	flags := unix.O_RDONLY
	if mode == ReadWrite {
		flags = unix.O_RDWR
	}
	return unix.Open(regionPath(name), flags|unix.O_CLOEXEC|unix.O_NOFOLLOW, 0)
}

func sysCreate(name string, size int64, perm uint32) (int, error) {
	path := regionPath(name)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_EXCL|unix.O_CLOEXEC|unix.O_NOFOLLOW, perm)
	if err != nil {
		return -1, err
	}
	// umask applies to open(2); the region must carry perm exactly.
	if err := unix.Fchmod(fd, perm); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return -1, err
	}
	if err := unix.Ftruncate(fd, size); err != nil {
		_ = unix.Close(fd)
		_ = unix.Unlink(path)
		return -1, err
	}
	return fd, nil
}

func sysUnlink(name string) error {
	return unix.Unlink(regionPath(name))
}

func sysSize(fd int) (int64, error) {
	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return 0, err
	}
	return st.Size, nil
}

func sysMmap(fd, length int, prot Protection) ([]byte, error) {
	p := unix.PROT_READ
	if prot&ProtWrite != 0 {
		p |= unix.PROT_WRITE
	}
	return unix.Mmap(fd, 0, length, p, unix.MAP_SHARED)
}

func sysMunmap(data []byte) error {
	return unix.Munmap(data)
}

func sysClose(fd int) error {
	return unix.Close(fd)
}

func classify(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT):
		return ErrNotFound
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM), errors.Is(err, unix.EROFS):
		return ErrPermissionDenied
	default:
		return ErrSystem
	}
}

// canCreateOnDevShm reports whether a region of size bytes fits in the
// tmpfs backing Dir. Paths outside /dev/shm are not checked.
func canCreateOnDevShm(size uint64, name string) bool {
	if !strings.HasPrefix(regionPath(name), "/dev/shm") {
		return true
	}
	stat, err := disk.Usage("/dev/shm")
	if err != nil {
		return true
	}
	return stat.Free >= size
}
