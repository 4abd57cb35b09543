// ABOUTME: Mutation engine: imperative writes with supersede-previous semantics
// ABOUTME: Errors are both stored for the UI and returned to the caller

package query

import (
	"context"
	"sync"

	"github.com/lmmcdev/compliance-frontend-sub001/apierror"
)

// MutationSnapshot is the observable state of a mutation value.
type MutationSnapshot[Out any] struct {
	Data    *Out
	Loading bool
	Err     *apierror.Error
}

// MutationOptions configure a Mutation. Do is required.
type MutationOptions[In, Out any] struct {
	// Do performs the write. The context is cancelled when a newer Mutate
	// call supersedes this one or the mutation closes.
	Do func(ctx context.Context, in In) (Out, error)

	// OnSuccess fires once per winning call.
	OnSuccess func(Out)

	// OnError fires once per winning failed call. Cancelled outcomes are
	// silent.
	OnError func(*apierror.Error)

	// OnSettled fires after every Mutate call resolves, superseded ones
	// included. Cache invalidation and refetch triggers belong here.
	OnSettled func()

	// OnChange observes snapshot transitions.
	OnChange func(MutationSnapshot[Out])
}

// Mutation runs imperative writes. A new Mutate call cancels the previous
// in-flight one from the same value; only the newest call may update state.
type Mutation[In, Out any] struct {
	opts MutationOptions[In, Out]

	mu     sync.Mutex
	snap   MutationSnapshot[Out]
	gen    uint64
	cancel context.CancelFunc
	closed bool
}

// NewMutation validates options and builds a mutation. Panics on a nil Do.
func NewMutation[In, Out any](opts MutationOptions[In, Out]) *Mutation[In, Out] {
	if opts.Do == nil {
		panic("query: MutationOptions.Do is required")
	}
	return &Mutation[In, Out]{opts: opts}
}

// Snapshot returns the current state.
func (m *Mutation[In, Out]) Snapshot() MutationSnapshot[Out] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Mutate performs the write and blocks until it resolves. The error is both
// returned and stored in the snapshot, so imperative call sites and state
// observers see the same outcome. A call superseded by a newer one resolves
// with a Cancelled error and leaves state to the winner.
func (m *Mutation[In, Out]) Mutate(ctx context.Context, in In) (Out, error) {
	var zero Out

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return zero, apierror.New(apierror.KindCancelled, "mutation closed")
	}
	m.gen++
	gen := m.gen
	if m.cancel != nil {
		m.cancel()
	}
	callCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.snap.Loading = true
	m.snap.Err = nil
	progress := m.snap
	m.mu.Unlock()

	m.notify(progress)

	out, err := m.opts.Do(callCtx, in)
	cancel()

	m.mu.Lock()
	current := gen == m.gen && !m.closed
	if current {
		m.cancel = nil
	}

	if !current {
		m.mu.Unlock()
		m.settle()
		if err != nil {
			return zero, classify(err)
		}
		return out, apierror.New(apierror.KindCancelled, "superseded by a newer mutation")
	}

	if err != nil {
		aerr := classify(err)
		if aerr.Kind == apierror.KindCancelled {
			// Caller-initiated cancellation: back to idle, nothing to report.
			m.snap.Loading = false
			snap := m.snap
			m.mu.Unlock()
			m.notify(snap)
			m.settle()
			return zero, aerr
		}

		m.snap.Loading = false
		m.snap.Err = aerr
		snap := m.snap
		m.mu.Unlock()

		m.notify(snap)
		if m.opts.OnError != nil {
			m.opts.OnError(aerr)
		}
		m.settle()
		return zero, aerr
	}

	m.snap = MutationSnapshot[Out]{Data: &out}
	snap := m.snap
	m.mu.Unlock()

	m.notify(snap)
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(out)
	}
	m.settle()
	return out, nil
}

// Reset clears the snapshot without cancelling in-flight work.
func (m *Mutation[In, Out]) Reset() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.gen++ // orphan any in-flight call's state update
	m.snap = MutationSnapshot[Out]{}
	snap := m.snap
	m.mu.Unlock()
	m.notify(snap)
}

// Close cancels in-flight work and makes further Mutate calls fail fast.
func (m *Mutation[In, Out]) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Mutation[In, Out]) notify(snap MutationSnapshot[Out]) {
	if m.opts.OnChange != nil {
		m.opts.OnChange(snap)
	}
}

func (m *Mutation[In, Out]) settle() {
	if m.opts.OnSettled != nil {
		m.opts.OnSettled()
	}
}
