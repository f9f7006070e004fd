package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a store.
type Option func(*options)

type options struct {
	clock clockwork.Clock
	live  prometheus.Gauge
}

// WithClock replaces the wall clock used for entry ages.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLiveGauge reports the number of stored sessions to g.
func WithLiveGauge(g prometheus.Gauge) Option {
	return func(o *options) { o.live = g }
}

func buildOptions(opts []Option) options {
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryStore keeps at most maxEntries sessions for at most maxAge. When full,
// the least recently written session is evicted.
type MemoryStore struct {
	mu         sync.RWMutex
	entries    map[string]Entry
	maxEntries int
	maxAge     time.Duration
	opts       options
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(maxEntries int, maxAge time.Duration, opts ...Option) *MemoryStore {
	return &MemoryStore{
		entries:    make(map[string]Entry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		opts:       buildOptions(opts),
	}
}

func (s *MemoryStore) Put(_ context.Context, e Entry) error {
	if !ValidID(e.ID) {
		return fmt.Errorf("put session: invalid id %q", e.ID)
	}
	e.UpdatedAt = s.opts.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[e.ID] = e
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		for _, id := range s.oldestFirst()[:len(s.entries)-s.maxEntries] {
			delete(s.entries, id)
		}
	}
	s.report()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e.UpdatedAt) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.entries, id)
	s.report()
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if s.expired(e.UpdatedAt) {
			delete(s.entries, id)
			removed++
		}
	}
	s.report()
	return removed, nil
}

// Len returns the number of stored sessions, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) expired(updated time.Time) bool {
	return s.maxAge > 0 && s.opts.clock.Since(updated) > s.maxAge
}

// oldestFirst must be called with the lock held.
func (s *MemoryStore) oldestFirst() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := s.entries[ids[i]].UpdatedAt, s.entries[ids[j]].UpdatedAt
		if a.Equal(b) {
			return ids[i] < ids[j]
		}
		return a.Before(b)
	})
	return ids
}

func (s *MemoryStore) report() {
	if s.opts.live != nil {
		s.opts.live.Set(float64(len(s.entries)))
	}
}
