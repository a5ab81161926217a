package audit

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/api"
)

var _ api.Audit = (*Journal)(nil)

type JournalTestSuite struct {
	suite.Suite
	j *Journal
}

func (s *JournalTestSuite) SetupTest() {
	s.j = NewJournal(3, zap.NewNop())
}

func (s *JournalTestSuite) TearDownTest() {
	s.j.Close()
}

func (s *JournalTestSuite) TestOrderAndEviction() {
	for _, name := range []string{"opening", "mapped", "closing", "closed"} {
		s.Require().NoError(s.j.LogEvent(name, nil))
	}
	s.Equal([]string{"mapped", "closing", "closed"}, s.j.Names())
	s.EqualValues(1, s.j.Dropped())
	s.Equal(3, s.j.Len())
	// reading does not consume
	s.Equal(3, len(s.j.Events()))
}

func (s *JournalTestSuite) TestDetailsAreCopied() {
	details := map[string]interface{}{"region": "SharedMemory"}
	s.Require().NoError(s.j.LogEvent("opening", details))
	details["region"] = "changed"

	events := s.j.Events()
	s.Require().Len(events, 1)
	s.Equal("SharedMemory", events[0].Details["region"])
	s.False(events[0].Time.IsZero())
}

func (s *JournalTestSuite) TestClose() {
	s.Require().NoError(s.j.LogEvent("opening", nil))
	s.j.Close()
	s.j.Close()
	s.ErrorIs(s.j.LogEvent("closed", nil), ErrClosed)
	s.Nil(s.j.Events())
}

func (s *JournalTestSuite) TestConcurrentWriters() {
	j := NewJournal(0, zap.NewNop())
	defer j.Close()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				_ = j.LogEvent("tick", map[string]interface{}{"k": k})
				_ = j.Events()
			}
		}()
	}
	wg.Wait()
	s.Equal(DefaultCapacity, j.Len())
	s.EqualValues(800-DefaultCapacity, j.Dropped())
}

func TestJournalTestSuite(t *testing.T) {
	suite.Run(t, new(JournalTestSuite))
}
