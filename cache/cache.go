// ABOUTME: Shared keyed query cache with TTL-based staleness windows
// ABOUTME: Tracks a fetch generation per key so superseded fetches never commit

package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder receives cache events. The metrics collector satisfies it; a nil
// recorder disables instrumentation.
type Recorder interface {
	CacheHit()
	CacheMiss()
	CacheExpired()
}

// entry holds the last committed value for a key plus the in-flight fetch
// bookkeeping used to arbitrate between overlapping fetches.
type entry struct {
	value    interface{}
	hasValue bool
	storedAt time.Time
	ttl      time.Duration

	generation uint64 // most recently issued fetch generation for this key
	inFlight   bool
	cancel     context.CancelFunc
}

func (e *entry) fresh(now time.Time) bool {
	return e.hasValue && now.Sub(e.storedAt) < e.ttl
}

// Store is the process-wide query cache. Any number of query engines may read
// a key; for each key only the most recently begun fetch can commit a value,
// which is what keeps a slow stale response from clobbering a newer one.
type Store struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration
	nextGen    atomic.Uint64
	recorder   Recorder
	done       chan struct{}
	closeOnce  sync.Once
}

// New creates a store whose entries default to the given TTL. A background
// janitor sweeps expired values until Close is called.
func New(defaultTTL time.Duration) *Store {
	s := &Store{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
		done:       make(chan struct{}),
	}
	go s.startCleanup()
	return s
}

// Instrument attaches a recorder for hit/miss/expired events.
func (s *Store) Instrument(r Recorder) {
	s.mu.Lock()
	s.recorder = r
	s.mu.Unlock()
}

// Get returns the value for key while it is inside its staleness window.
// An expired entry is treated as absent: the value is dropped and the caller
// must fetch fresh.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !e.hasValue {
		s.record(func(r Recorder) { r.CacheMiss() })
		slog.Debug("Cache miss", "key", key)
		return nil, false
	}

	if !e.fresh(time.Now()) {
		s.dropValueLocked(key, e)
		s.record(func(r Recorder) { r.CacheExpired() })
		slog.Debug("Cache expired", "key", key)
		return nil, false
	}

	s.record(func(r Recorder) { r.CacheHit() })
	slog.Debug("Cache hit", "key", key)
	return e.value, true
}

// Age returns how long ago the key's value was stored, when one is present.
func (s *Store) Age(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.hasValue {
		return time.Since(e.storedAt), true
	}
	return 0, false
}

// Set stores a value under the default TTL.
func (s *Store) Set(key string, value interface{}) {
	s.SetWithTTL(key, value, s.defaultTTL)
}

// SetWithTTL stores a value with a custom staleness window.
func (s *Store) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	s.mu.Lock()
	e := s.ensureLocked(key)
	e.value = value
	e.hasValue = true
	e.storedAt = time.Now()
	e.ttl = ttl
	s.mu.Unlock()
	slog.Debug("Cache set", "key", key, "ttl", ttl)
}

// Begin registers a new fetch for key. Any prior in-flight fetch for the key
// is cancelled and its eventual result becomes uncommittable. The returned
// context must be used for the fetch I/O; the returned generation must be
// passed back to Commit or Finish.
func (s *Store) Begin(ctx context.Context, key string) (context.Context, uint64) {
	gen := s.nextGen.Add(1)
	fetchCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	e := s.ensureLocked(key)
	if e.inFlight && e.cancel != nil {
		e.cancel()
	}
	e.generation = gen
	e.inFlight = true
	e.cancel = cancel
	s.mu.Unlock()

	return fetchCtx, gen
}

// Commit stores a fetched value if gen is still the key's current generation.
// Returns false when the fetch has been superseded; the caller must then
// discard the result without touching its own state.
func (s *Store) Commit(key string, gen uint64, value interface{}, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.generation != gen {
		slog.Debug("Cache commit discarded", "key", key, "generation", gen)
		return false
	}

	e.value = value
	e.hasValue = true
	e.storedAt = time.Now()
	e.ttl = ttl
	s.settleLocked(e)
	return true
}

// Finish ends a fetch without storing a value (error or swallowed result).
// It reports whether gen was still current, so callers can distinguish a
// real failure from a superseded one.
func (s *Store) Finish(key string, gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.generation != gen {
		return false
	}
	s.settleLocked(e)
	return true
}

// AbortGen cancels the fetch identified by gen when it is still the key's
// current one, burning the generation so its resolution can never commit. A
// stale gen is a no-op: a newer fetch owns the key and must not be disturbed.
func (s *Store) AbortGen(key string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.generation != gen {
		return
	}
	e.generation = s.nextGen.Add(1)
	s.settleLocked(e)
}

// Clear drops the cached value for key. In-flight bookkeeping survives: a
// fetch already underway may still commit.
func (s *Store) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.dropValueLocked(key, e)
	}
}

// ClearAll drops every cached value.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		s.dropValueLocked(key, e)
	}
}

// Close stops the janitor. Outstanding fetches keep their contexts.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Store) ensureLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	return e
}

// settleLocked marks the key's fetch as no longer in flight and releases the
// fetch context.
func (s *Store) settleLocked(e *entry) {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.inFlight = false
}

// dropValueLocked removes the value; the whole entry goes away only when no
// fetch references its generation.
func (s *Store) dropValueLocked(key string, e *entry) {
	e.value = nil
	e.hasValue = false
	if !e.inFlight {
		delete(s.entries, key)
	}
}

func (s *Store) record(fn func(Recorder)) {
	if s.recorder != nil {
		fn(s.recorder)
	}
}

func (s *Store) startCleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			now := time.Now()
			s.mu.Lock()
			for key, e := range s.entries {
				if e.hasValue && !e.fresh(now) {
					s.dropValueLocked(key, e)
				}
			}
			s.mu.Unlock()
		}
	}
}
