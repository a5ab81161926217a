//go:build linux

package shm

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"os"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sys/unix"
)

type PlatformTestSuite struct {
	suite.Suite
	name string
}

func (s *PlatformTestSuite) SetupTest() {
	s.name = fmt.Sprintf("vecshm_internal_%d_%d", os.Getpid(), rand.Int63())
}

func (s *PlatformTestSuite) TearDownTest() {
	_ = Unlink(s.name)
}

func (s *PlatformTestSuite) TestOpenMissingRegion() {
	h, err := Open(s.name, ReadOnly)
	s.Require().Nil(h)
	s.Require().ErrorIs(err, ErrNotFound)
	s.Require().ErrorIs(err, unix.ENOENT)
	s.Require().Equal(ErrNotFound, KindOf(err))
}

func (s *PlatformTestSuite) TestCreateOpenMapUnmapTwice() {
	producer, err := Create(s.name, 4096, 0o600)
	s.Require().NoError(err)
	defer producer.Close()

	h, err := Open("/"+s.name, ReadOnly)
	s.Require().NoError(err)
	s.Require().Equal(s.name, h.Name())
	s.Require().Equal(ReadOnly, h.Mode())

	size, err := h.Size()
	s.Require().NoError(err)
	s.Require().EqualValues(4096, size)

	r, err := h.Map(4096, ProtRead)
	s.Require().NoError(err)
	s.Require().Equal(4096, r.Len())
	s.Require().False(r.Writable())
	s.Require().True(r.Mapped())

	s.Require().NoError(r.Unmap())
	s.Require().NoError(r.Unmap())
	s.Require().False(r.Mapped())
	s.Require().Nil(r.Bytes())

	s.Require().NoError(h.Close())
	s.Require().NoError(h.Close())
	s.Require().True(h.Closed())
}

func (s *PlatformTestSuite) TestSharedWritesAreVisible() {
	producer, err := Create(s.name, 64, 0o600)
	s.Require().NoError(err)
	defer producer.Close()
	w, err := producer.Map(64, ProtRead|ProtWrite)
	s.Require().NoError(err)
	defer w.Unmap()

	h, err := Open(s.name, ReadOnly)
	s.Require().NoError(err)
	defer h.Close()
	r, err := h.Map(64, ProtRead)
	s.Require().NoError(err)
	defer r.Unmap()

	AtomicStoreUint64(WordAt(w.Bytes(), 8), 42)
	s.Require().EqualValues(42, AtomicLoadUint64(WordAt(r.Bytes(), 8)))
	s.Require().True(AtomicCompareAndSwapUint64(WordAt(w.Bytes(), 8), 42, 43))
	s.Require().False(AtomicCompareAndSwapUint64(WordAt(w.Bytes(), 8), 42, 44))
	s.Require().EqualValues(43, AtomicLoadUint64(WordAt(r.Bytes(), 8)))
}

func (s *PlatformTestSuite) TestMapInvalidLength() {
	producer, err := Create(s.name, 128, 0o600)
	s.Require().NoError(err)
	defer producer.Close()

	h, err := Open(s.name, ReadOnly)
	s.Require().NoError(err)

	_, err = h.Map(0, ProtRead)
	s.Require().ErrorIs(err, ErrMapFailed)
	_, err = h.Map(-1, ProtRead)
	s.Require().ErrorIs(err, ErrMapFailed)
	_, err = h.Map(129, ProtRead)
	s.Require().ErrorIs(err, ErrMapFailed)

	s.Require().NoError(h.Close())
	_, err = h.Map(128, ProtRead)
	s.Require().ErrorIs(err, ErrMapFailed)
	s.Require().ErrorIs(err, ErrAlreadyClosed)
}

func (s *PlatformTestSuite) TestWritableMapOfReadOnlyHandle() {
	producer, err := Create(s.name, 128, 0o600)
	s.Require().NoError(err)
	defer producer.Close()

	h, err := Open(s.name, ReadOnly)
	s.Require().NoError(err)
	defer h.Close()

	_, err = h.Map(128, ProtRead|ProtWrite)
	s.Require().ErrorIs(err, ErrMapFailed)
	s.Require().ErrorIs(err, unix.EACCES)
}

func (s *PlatformTestSuite) TestOpenReadWriteWithoutPermission() {
	if os.Geteuid() == 0 {
		s.T().Skip("root bypasses file permission checks")
	}
	producer, err := Create(s.name, 128, 0o400)
	s.Require().NoError(err)
	defer producer.Close()

	_, err = Open(s.name, ReadWrite)
	s.Require().ErrorIs(err, ErrPermissionDenied)
}

func (s *PlatformTestSuite) TestCreateExistingAndPermissions() {
	h, err := Create(s.name, 128, 0o640)
	s.Require().NoError(err)
	defer h.Close()

	var st unix.Stat_t
	s.Require().NoError(unix.Stat(regionPath(s.name), &st))
	s.Require().EqualValues(0o640, st.Mode&0o777)

	_, err = Create(s.name, 128, 0o640)
	s.Require().Error(err)
	s.Require().ErrorIs(err, unix.EEXIST)
	s.Require().ErrorIs(err, ErrSystem)
}

func (s *PlatformTestSuite) TestInvalidArguments() {
	_, err := Open("", ReadOnly)
	s.Require().ErrorIs(err, ErrSystem)
	_, err = Open("a/b", ReadOnly)
	s.Require().ErrorIs(err, ErrSystem)
	_, err = Create(s.name, 0, 0o600)
	s.Require().ErrorIs(err, ErrSystem)
	err = Unlink(s.name)
	s.Require().ErrorIs(err, ErrNotFound)
}

func (s *PlatformTestSuite) TestNilReceivers() {
	var h *Handle
	var r *MappedRegion
	s.Require().NoError(h.Close())
	s.Require().True(h.Closed())
	s.Require().Empty(h.Name())
	s.Require().Equal(ReadOnly, h.Mode())
	s.Require().NoError(r.Unmap())
	s.Require().Equal(0, r.Len())
	_, err := h.Map(16, ProtRead)
	s.Require().ErrorIs(err, ErrMapFailed)
}

func (s *PlatformTestSuite) TestCanCreateOnDevShm() {
	stat, err := disk.Usage("/dev/shm")
	if err != nil {
		s.T().Skipf("no /dev/shm: %v", err)
	}
	s.Require().False(canCreateOnDevShm(math.MaxUint64, "xxx"))
	s.Require().True(canCreateOnDevShm(1, "yyy"))
	s.Require().False(canCreateOnDevShm(stat.Total+1, "zzz"))
}

func (s *PlatformTestSuite) TestErrorMessage() {
	err := newError("open", "x", ErrNotFound, unix.ENOENT)
	s.Require().Contains(err.Error(), "open")
	s.Require().Contains(err.Error(), "not found")
	s.Require().Nil(KindOf(errors.New("other")))
	s.Require().Equal("read-only", ReadOnly.String())
	s.Require().Equal("read-write", ReadWrite.String())
	s.Require().Equal(ProtRead|ProtWrite, ProtectionFor(ReadWrite))
	s.Require().Equal(ProtRead, ProtectionFor(ReadOnly))
}

func TestPlatformTestSuite(t *testing.T) {
	if _, err := os.Stat(Dir); err != nil {
		t.Skipf("%s unavailable: %v", Dir, err)
	}
	suite.Run(t, new(PlatformTestSuite))
}
