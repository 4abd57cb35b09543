// ABOUTME: Keep-latest mailbox between data-layer callbacks and a running program
// ABOUTME: Push never blocks; a slow consumer sees only the newest state

package tui

// Feed hands state transitions from data-layer callbacks to the program.
// Callbacks fire on engine goroutines and must never block, so Push drops
// the pending item in favor of the newest one when the program lags behind.
type Feed[T any] struct {
	ch chan T
}

// NewFeed builds an empty feed.
func NewFeed[T any]() *Feed[T] {
	return &Feed[T]{ch: make(chan T, 1)}
}

// Push replaces any pending item with v without blocking.
func (f *Feed[T]) Push(v T) {
	for {
		select {
		case f.ch <- v:
			return
		default:
		}
		select {
		case <-f.ch:
		default:
		}
	}
}

// Recv blocks until an item is pending and takes it.
func (f *Feed[T]) Recv() T {
	return <-f.ch
}
