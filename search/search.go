// ABOUTME: Debounced, length-gated search on top of the query engine
// ABOUTME: Each settled term becomes its own cache key; short terms reset instead of fetching

package search

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lmmcdev/compliance-frontend-sub001/cache"
	"github.com/lmmcdev/compliance-frontend-sub001/query"
)

const (
	// DefaultMinLength is the shortest term that triggers a search.
	DefaultMinLength = 2

	// DefaultDebounce is the settle window between keystrokes.
	DefaultDebounce = 300 * time.Millisecond
)

// Options configure a Search. KeyPrefix, Fetch, and Store are required.
type Options[T any] struct {
	// KeyPrefix namespaces this search's cache keys; the settled term is
	// appended, so each term caches independently.
	KeyPrefix string

	// Fetch runs the search for a settled term.
	Fetch func(ctx context.Context, term string) (T, error)

	// Store is the shared query cache.
	Store *cache.Store

	// TTL overrides the store default for search results.
	TTL time.Duration

	// MinLength gates fetching; terms shorter than this reset the result
	// instead. Zero means DefaultMinLength.
	MinLength int

	// Debounce is the quiet period after the last keystroke before the
	// term settles. Zero means DefaultDebounce.
	Debounce time.Duration

	// OnChange observes every state transition.
	OnChange func(State[T])
}

// State is the observable search state. RawQuery tracks keystrokes
// immediately; DebouncedQuery is the last settled term; HasSearched latches
// on the first real search so the UI can tell "no results" from "not yet
// searched".
type State[T any] struct {
	RawQuery       string
	DebouncedQuery string
	HasSearched    bool
	Result         query.Snapshot[T]
}

// Search debounces keystrokes into query engine retargets. All methods are
// safe for concurrent use.
type Search[T any] struct {
	opts      Options[T]
	minLength int
	debounce  time.Duration
	engine    *query.Engine[T]

	mu          sync.Mutex
	raw         string
	debounced   string
	hasSearched bool
	timer       *time.Timer
	seq         uint64 // arm sequence; stale timer fires are ignored
	keys        map[string]struct{}
	closed      bool
}

// New validates options and builds a search. Panics on missing KeyPrefix,
// Fetch, or Store.
func New[T any](opts Options[T]) *Search[T] {
	if opts.KeyPrefix == "" {
		panic("search: Options.KeyPrefix is required")
	}
	if opts.Fetch == nil {
		panic("search: Options.Fetch is required")
	}
	if opts.Store == nil {
		panic("search: Options.Store is required")
	}

	s := &Search[T]{
		opts:      opts,
		minLength: opts.MinLength,
		debounce:  opts.Debounce,
		keys:      make(map[string]struct{}),
	}
	if s.minLength <= 0 {
		s.minLength = DefaultMinLength
	}
	if s.debounce <= 0 {
		s.debounce = DefaultDebounce
	}

	// The engine starts disabled under a placeholder key; the first settled
	// term enables and retargets it.
	s.engine = query.NewEngine(query.Options[T]{
		Key:      opts.KeyPrefix,
		Store:    opts.Store,
		TTL:      opts.TTL,
		Disabled: true,
		Fetch: func(ctx context.Context) (T, error) {
			return opts.Fetch(ctx, "")
		},
		OnChange: func(query.Snapshot[T]) { s.publishCurrent() },
	})

	return s
}

// SetQuery records a keystroke and re-arms the debounce timer. Nothing is
// fetched until the term survives the quiet period.
func (s *Search[T]) SetQuery(raw string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.raw = raw
	s.seq++
	seq := s.seq
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.settle(seq, raw) })
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)
}

// settle runs when the debounce window closes. A term that meets the length
// gate retargets the engine at its own cache key; a shorter one resets the
// result without any network traffic.
func (s *Search[T]) settle(seq uint64, term string) {
	s.mu.Lock()
	if s.closed || seq != s.seq {
		s.mu.Unlock()
		return
	}
	s.debounced = term

	run := utf8.RuneCountInString(term) >= s.minLength
	var key string
	if run {
		s.hasSearched = true
		key = s.opts.KeyPrefix + "?q=" + term
		s.keys[key] = struct{}{}
	}
	state := s.stateLocked()
	s.mu.Unlock()

	s.publish(state)

	// The engine is driven outside s.mu (Retarget notifies back through
	// OnChange, which re-enters via publishCurrent). A newer keystroke may
	// have re-armed the debounce while the lock was down, so re-check before
	// touching the engine: a stale settle must not retarget or reset it.
	s.mu.Lock()
	stale := s.closed || seq != s.seq
	s.mu.Unlock()
	if stale {
		return
	}

	if run {
		s.engine.SetEnabled(true)
		s.engine.Retarget(key, func(ctx context.Context) (T, error) {
			return s.opts.Fetch(ctx, term)
		})
		return
	}
	s.engine.Reset()
}

// State returns the current search state.
func (s *Search[T]) State() State[T] {
	s.mu.Lock()
	state := s.stateLocked()
	s.mu.Unlock()
	return state
}

// Clear stops any pending settle, forgets the query and the has-searched
// latch, resets the engine, and drops this search's cached results.
func (s *Search[T]) Clear() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.raw = ""
	s.debounced = ""
	s.hasSearched = false
	keys := s.keys
	s.keys = make(map[string]struct{})
	s.mu.Unlock()

	for key := range keys {
		s.opts.Store.Clear(key)
	}
	s.engine.Reset()
}

// Close stops the timer and shuts the engine down.
func (s *Search[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.seq++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.engine.Close()
}

func (s *Search[T]) stateLocked() State[T] {
	return State[T]{
		RawQuery:       s.raw,
		DebouncedQuery: s.debounced,
		HasSearched:    s.hasSearched,
		Result:         s.engine.Snapshot(),
	}
}

func (s *Search[T]) publishCurrent() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	state := s.stateLocked()
	s.mu.Unlock()
	s.publish(state)
}

func (s *Search[T]) publish(state State[T]) {
	if s.opts.OnChange != nil {
		s.opts.OnChange(state)
	}
}
