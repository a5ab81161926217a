//go:build !linux

package shm

func sysOpen(string, AccessMode) (int, error) { return -1, ErrUnsupported }
func sysCreate(string, int64, uint32) (int, error) { return -1, ErrUnsupported }
func sysUnlink(string) error { return ErrUnsupported }
func sysSize(int) (int64, error) { return 0, ErrUnsupported }
func sysMmap(int, int, Protection) ([]byte, error) { return nil, ErrUnsupported }
func sysMunmap([]byte) error { return ErrUnsupported }
func sysClose(int) error { return ErrUnsupported }
func classify(error) error { return ErrSystem }
func canCreateOnDevShm(uint64, string) bool { return true }
