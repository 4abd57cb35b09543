// ABOUTME: Query engine: cache-first data fetching with staleness, polling, and supersede rules
// ABOUTME: A fetch that loses its generation is discarded without touching state or callbacks

package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
	"github.com/lmmcdev/compliance-frontend-sub001/cache"
)

// Snapshot is the observable state of one query. Loading is true only while
// fetching with no data yet; a refetch over existing data sets Refreshing
// instead, so the UI keeps showing the stale value during background updates.
type Snapshot[T any] struct {
	Data          *T
	Loading       bool
	Refreshing    bool
	Err           *apierror.Error
	LastFetchedAt time.Time
}

// Options configure an Engine. Key, Fetch, and Store are required.
type Options[T any] struct {
	// Key identifies the query in the shared cache. Engines with equal keys
	// share cached values and supersede each other's fetches.
	Key string

	// Fetch loads the value. The context is cancelled when the fetch is
	// superseded or the engine shuts down.
	Fetch func(ctx context.Context) (T, error)

	// Store is the shared query cache.
	Store *cache.Store

	// TTL overrides the store's default staleness window for this query.
	TTL time.Duration

	// Disabled constructs the engine paused: Start and polling do nothing
	// until SetEnabled(true).
	Disabled bool

	// PollInterval, when positive, refetches on a ticker while the engine
	// is started and enabled.
	PollInterval time.Duration

	// OnSuccess fires once per winning fetch. Cache adoption does not count:
	// no fetch resolved.
	OnSuccess func(T)

	// OnError fires once per winning failed fetch. Cancelled results never
	// reach it.
	OnError func(*apierror.Error)

	// OnChange observes every snapshot transition. It may be invoked from
	// multiple goroutines and must not block.
	OnChange func(Snapshot[T])
}

// Engine runs one logical query against the shared cache. All methods are
// safe for concurrent use.
type Engine[T any] struct {
	opts Options[T]

	mu        sync.Mutex
	key       string
	fetch     func(ctx context.Context) (T, error)
	snap      Snapshot[T]
	enabled   bool
	started   bool
	closed    bool
	epoch     uint64 // bumped by Reset/Retarget/disable/Close to orphan in-flight work
	activeGen uint64 // latest cache generation this engine issued
	pollStop  chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc
}

// NewEngine validates options and builds an engine. Panics on a nil Fetch or
// Store or an empty Key (catches wiring errors at startup).
func NewEngine[T any](opts Options[T]) *Engine[T] {
	if opts.Key == "" {
		panic("query: Options.Key is required")
	}
	if opts.Fetch == nil {
		panic("query: Options.Fetch is required")
	}
	if opts.Store == nil {
		panic("query: Options.Store is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine[T]{
		opts:    opts,
		key:     opts.Key,
		fetch:   opts.Fetch,
		enabled: !opts.Disabled,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Key returns the engine's current cache key.
func (e *Engine[T]) Key() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.key
}

// Snapshot returns the current state. Data is shared; callers must not
// mutate through it.
func (e *Engine[T]) Snapshot() Snapshot[T] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Start brings the query live: a fresh cached value is adopted without any
// fetch; otherwise one fetch runs to completion before Start returns.
// Polling begins here when configured.
func (e *Engine[T]) Start() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.started = true
	poll := e.opts.PollInterval > 0 && e.enabled
	e.mu.Unlock()

	if poll {
		e.startPolling()
	}
	e.load(false)
}

// Refetch bypasses cache reuse and fetches now. The result still commits to
// the cache. Over existing data this is a background refresh: Loading stays
// false and Refreshing goes true for its duration.
func (e *Engine[T]) Refetch() {
	e.load(true)
}

// Reset returns the engine to its zero state without issuing a request. The
// engine's in-flight fetch, if any, is cancelled and its result discarded.
// Shared cache entries are untouched; other engines keep their data.
func (e *Engine[T]) Reset() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.epoch++
	key, gen := e.key, e.activeGen
	e.snap = Snapshot[T]{}
	snap := e.snap
	e.mu.Unlock()

	e.opts.Store.AbortGen(key, gen)
	e.notify(snap)
}

// Retarget swaps the query's identity: new key, optionally a new fetch.
// State zeroes immediately, the old in-flight fetch is orphaned, and the
// engine then behaves like Start under the new key (cache adoption included).
func (e *Engine[T]) Retarget(key string, fetch func(ctx context.Context) (T, error)) {
	if key == "" {
		panic("query: Retarget key is required")
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.epoch++
	oldKey, gen := e.key, e.activeGen
	e.key = key
	if fetch != nil {
		e.fetch = fetch
	}
	e.snap = Snapshot[T]{}
	snap := e.snap
	e.mu.Unlock()

	e.opts.Store.AbortGen(oldKey, gen)
	e.notify(snap)
	e.load(false)
}

// SetEnabled pauses or resumes the engine. Disabling cancels in-flight work
// and stops polling; re-enabling a started engine behaves like Start.
func (e *Engine[T]) SetEnabled(enabled bool) {
	e.mu.Lock()
	if e.closed || e.enabled == enabled {
		e.mu.Unlock()
		return
	}
	e.enabled = enabled
	key, gen := e.key, e.activeGen
	started := e.started
	if !enabled {
		e.epoch++
	}
	e.mu.Unlock()

	if !enabled {
		e.stopPolling()
		e.opts.Store.AbortGen(key, gen)
		return
	}
	if started {
		if e.opts.PollInterval > 0 {
			e.startPolling()
		}
		e.load(false)
	}
}

// Close shuts the engine down: polling stops, in-flight work is cancelled,
// and every method becomes a no-op.
func (e *Engine[T]) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.epoch++
	key, gen := e.key, e.activeGen
	e.mu.Unlock()

	e.stopPolling()
	e.cancel()
	e.opts.Store.AbortGen(key, gen)
}

// load runs one fetch cycle in the calling goroutine. The generation issued
// at Begin decides whether the resolution may touch state: a fetch that has
// been superseded, reset, or retargeted finishes silently.
func (e *Engine[T]) load(bypassCache bool) {
	e.mu.Lock()
	if e.closed || !e.enabled {
		e.mu.Unlock()
		return
	}
	key := e.key

	if !bypassCache {
		if v, ok := e.opts.Store.Get(key); ok {
			if data, ok := v.(T); ok {
				snap := Snapshot[T]{Data: &data, LastFetchedAt: time.Now()}
				if age, ok := e.opts.Store.Age(key); ok {
					snap.LastFetchedAt = time.Now().Add(-age)
				}
				e.snap = snap
				e.mu.Unlock()
				e.notify(snap)
				return
			}
		}
	}

	fetch := e.fetch
	epoch := e.epoch
	if e.snap.Data == nil {
		e.snap.Loading = true
	} else {
		e.snap.Refreshing = true
	}
	e.snap.Err = nil
	progress := e.snap

	ctx, gen := e.opts.Store.Begin(e.baseCtx, key)
	if gen > e.activeGen {
		e.activeGen = gen
	}
	e.mu.Unlock()
	e.notify(progress)

	value, err := fetch(ctx)

	if err != nil {
		stillCurrent := e.opts.Store.Finish(key, gen)
		aerr := classify(err)
		if !stillCurrent || aerr.Kind == apierror.KindCancelled {
			return
		}

		e.mu.Lock()
		if e.closed || e.epoch != epoch {
			e.mu.Unlock()
			return
		}
		e.snap.Loading = false
		e.snap.Refreshing = false
		e.snap.Err = aerr
		snap := e.snap
		e.mu.Unlock()

		e.notify(snap)
		if e.opts.OnError != nil {
			e.opts.OnError(aerr)
		}
		return
	}

	if !e.opts.Store.Commit(key, gen, value, e.opts.TTL) {
		return
	}

	e.mu.Lock()
	if e.closed || e.epoch != epoch {
		e.mu.Unlock()
		return
	}
	e.snap = Snapshot[T]{Data: &value, LastFetchedAt: time.Now()}
	snap := e.snap
	e.mu.Unlock()

	e.notify(snap)
	if e.opts.OnSuccess != nil {
		e.opts.OnSuccess(value)
	}
}

func (e *Engine[T]) startPolling() {
	e.mu.Lock()
	if e.pollStop != nil || e.closed {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.pollStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(e.opts.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.load(true)
			}
		}
	}()
}

func (e *Engine[T]) stopPolling() {
	e.mu.Lock()
	stop := e.pollStop
	e.pollStop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

func (e *Engine[T]) notify(snap Snapshot[T]) {
	if e.opts.OnChange != nil {
		e.opts.OnChange(snap)
	}
}

// classify coerces a fetch error into the taxonomy. Client errors already
// carry a kind; anything else goes through transport classification.
func classify(err error) *apierror.Error {
	var aerr *apierror.Error
	if errors.As(err, &aerr) {
		return aerr
	}
	return apierror.FromTransport(err)
}
