package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/scopelabs/daqpipe/internal/daqerr"
)

// OverflowFunc mirrors ingress.OverflowFunc: invoked synchronously,
// before Push returns ErrOverflow, must not re-enter the store and must
// not block.
type OverflowFunc func()

// Store is the bounded, ordered, mutex-guarded collection of Events
// (I1, I6, P5). Insertion order equals creation order equals
// event-index order.
type Store struct {
	log *slog.Logger

	mu        sync.Mutex
	events    []*Event
	maxEvents int
	overflow  OverflowFunc
}

// NewStore constructs a Store with the given capacity.
func NewStore(log *slog.Logger, maxEvents int) *Store {
	return &Store{log: log, maxEvents: maxEvents}
}

// SetOverflowCallback installs or replaces the overflow callback.
func (s *Store) SetOverflowCallback(fn OverflowFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overflow = fn
}

// Push appends a new event. It fails with ErrOverflow when the store is
// already at capacity, firing the overflow callback first.
func (s *Store) Push(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) >= s.maxEvents {
		if s.overflow != nil {
			s.overflow()
		}
		s.log.Warn("event store overflow", "max_events", s.maxEvents)
		return fmt.Errorf("push: store at capacity %d: %w", s.maxEvents, daqerr.ErrOverflow)
	}

	s.events = append(s.events, e)
	return nil
}

// Latest returns the most recently pushed event.
func (s *Store) Latest() (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return nil, fmt.Errorf("latest: %w", daqerr.ErrOutOfRange)
	}
	return s.events[len(s.events)-1], nil
}

// At returns the event at index i.
func (s *Store) At(i int) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.events) {
		return nil, fmt.Errorf("at(%d): %w", i, daqerr.ErrOutOfRange)
	}
	return s.events[i], nil
}

// Len returns the number of events currently stored.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// EventsAfterTimestamp binary-searches from seedIndex (or 0 if out of
// range) for the first event with a creation timestamp >= ts, relying
// on I1's monotonicity, and returns every event from there to the end.
func (s *Store) EventsAfterTimestamp(ts time.Time, seedIndex int) ([]*Event, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := seedIndex
	if start < 0 || start > len(s.events) {
		start = 0
	}

	idx := start + sort.Search(len(s.events)-start, func(k int) bool {
		return !s.events[start+k].CreationTimestamp().Before(ts)
	})

	if idx >= len(s.events) {
		return nil, idx
	}
	out := make([]*Event, len(s.events)-idx)
	copy(out, s.events[idx:])
	return out, idx
}

// EventsFromIndex returns a linear slice of events starting at i.
func (s *Store) EventsFromIndex(i int) []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.events) {
		return nil
	}
	out := make([]*Event, len(s.events)-i)
	copy(out, s.events[i:])
	return out
}

// RemoveBeforeTimestamp drops every event with creation timestamp < ts,
// using the same binary search as EventsAfterTimestamp, and returns the
// count dropped.
func (s *Store) RemoveBeforeTimestamp(ts time.Time, seedIndex int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := seedIndex
	if start < 0 || start > len(s.events) {
		start = 0
	}
	idx := start + sort.Search(len(s.events)-start, func(k int) bool {
		return !s.events[start+k].CreationTimestamp().Before(ts)
	})
	s.events = s.events[idx:]
	return idx
}

// RemoveBeforeIndex drops the first i events and returns i.
func (s *Store) RemoveBeforeIndex(i int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 {
		i = 0
	}
	if i > len(s.events) {
		i = len(s.events)
	}
	s.events = s.events[i:]
	return i
}

// SetMaxEvents updates the store's capacity. If the new limit is
// smaller than the current length, the oldest excess events are
// dropped and a warning logged.
func (s *Store) SetMaxEvents(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxEvents = n
	if len(s.events) > n {
		dropped := len(s.events) - n
		s.events = s.events[dropped:]
		s.log.Warn("event store shrunk below current length, dropping oldest events",
			"dropped", dropped, "new_max_events", n)
	}
}

// Clear drops every stored event.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}
