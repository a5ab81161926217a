// Package audit keeps a bounded in-memory journal of channel lifecycle
// events.
package audit

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/Workiva/go-datastructures/queue"
	"go.uber.org/zap"

	"github.com/srediag/vecshm/internal/logging"
)

// DefaultCapacity is used when NewJournal is given a non-positive capacity.
const DefaultCapacity = 256

// ErrClosed is returned by LogEvent after Close.
var ErrClosed = errors.New("audit journal closed")

// Event is one journal entry.
type Event struct {
	Time    time.Time
	Name    string
	Details map[string]interface{}
}

// Journal retains the most recent events up to its capacity, dropping the
// oldest first. It is safe for concurrent use.
type Journal struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int64
	dropped  uint64
	logger   *zap.Logger
	now      func() time.Time
}

// NewJournal returns an empty journal. Events are also logged at Info on
// logger, or the package logger when nil.
func NewJournal(capacity int, logger *zap.Logger) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{
		q:        queue.New(int64(capacity)),
		capacity: int64(capacity),
		logger:   logging.Or(logger, "audit"),
		now:      time.Now,
	}
}

// LogEvent records event with a copy of details.
func (j *Journal) LogEvent(event string, details map[string]interface{}) error {
	e := Event{Time: j.now(), Name: event, Details: maps.Clone(details)}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.q.Disposed() {
		return ErrClosed
	}
	for j.q.Len() >= j.capacity {
		if _, err := j.q.Get(1); err != nil {
			return fmt.Errorf("evict: %w", err)
		}
		j.dropped++
	}
	if err := j.q.Put(e); err != nil {
		return fmt.Errorf("append: %w", err)
	}

	fields := make([]zap.Field, 0, len(details)+1)
	fields = append(fields, zap.String("event", event))
	for k, v := range details {
		fields = append(fields, zap.Any(k, v))
	}
	j.logger.Info("audit", fields...)
	return nil
}

// Events returns the retained events, oldest first.
func (j *Journal) Events() []Event {
	j.mu.Lock()
	defer j.mu.Unlock()
	n := j.q.Len()
	if n == 0 || j.q.Disposed() {
		return nil
	}
	items, err := j.q.Get(n)
	if err != nil {
		return nil
	}
	out := make([]Event, 0, len(items))
	for _, it := range items {
		e := it.(Event)
		out = append(out, e)
		_ = j.q.Put(e)
	}
	return out
}

// Names returns the retained event names, oldest first.
func (j *Journal) Names() []string {
	events := j.Events()
	names := make([]string, len(events))
	for i, e := range events {
		names[i] = e.Name
	}
	return names
}

// Len returns the number of retained events.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return int(j.q.Len())
}

// Dropped returns the number of events evicted to stay within capacity.
func (j *Journal) Dropped() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close discards the journal. It is safe to call more than once.
func (j *Journal) Close() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.q.Disposed() {
		j.q.Dispose()
	}
}
