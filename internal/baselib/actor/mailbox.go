package actor

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
)

// envelope wraps a message with the promise (nil for Tell) and the caller's
// context, so the actor can honor request-scoped deadlines on Ask.
type envelope[M Message, R any] struct {
	message   M
	promise   Promise[R]
	callerCtx context.Context
}

// mailbox is the channel-backed serial message queue of an actor. Sends may
// happen concurrently from many goroutines; Receive runs on the actor's
// single process loop.
type mailbox[M Message, R any] struct {
	ch chan envelope[M, R]

	// closed is flipped exactly once by Close; reads are lock-free.
	closed atomic.Bool

	// mu guards against sending on a closed channel: Close takes the
	// write lock, senders hold read locks for the duration of the send.
	mu sync.RWMutex

	closeOnce sync.Once

	// actorCtx governs the owner actor's lifetime.
	actorCtx context.Context
}

// newMailbox creates a buffered mailbox bound to the actor's context.
func newMailbox[M Message, R any](actorCtx context.Context,
	capacity int) *mailbox[M, R] {

	if capacity <= 0 {
		capacity = 1
	}

	return &mailbox[M, R]{
		ch:       make(chan envelope[M, R], capacity),
		actorCtx: actorCtx,
	}
}

// send blocks until the envelope is accepted, the caller's context is
// cancelled, or the actor terminates. It reports whether the envelope was
// enqueued.
func (m *mailbox[M, R]) send(ctx context.Context, env envelope[M, R]) bool {
	// Fast-path rejection when either context is already done.
	if ctx.Err() != nil || m.actorCtx.Err() != nil {
		return false
	}

	// The read lock is held for the whole send so Close (write lock)
	// cannot close the channel underneath us.
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed.Load() {
		return false
	}

	select {
	case m.ch <- env:
		return true

	case <-ctx.Done():
		return false

	case <-m.actorCtx.Done():
		return false
	}
}

// receive yields envelopes as they arrive, stopping when the context is
// cancelled or the mailbox is closed.
func (m *mailbox[M, R]) receive(ctx context.Context) iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		for {
			// Checked up front so shutdown is deterministic and
			// does not race a ready channel in the select below.
			if ctx.Err() != nil {
				return
			}

			select {
			case env, ok := <-m.ch:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}

			case <-ctx.Done():
				return
			}
		}
	}
}

// close prevents further sends. Safe to call multiple times.
func (m *mailbox[M, R]) close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()

		log.DebugS(m.actorCtx, "Mailbox closing",
			"remaining_messages", len(m.ch))

		m.closed.Store(true)
		close(m.ch)
	})
}

// drain yields whatever envelopes remain after close, without blocking.
func (m *mailbox[M, R]) drain() iter.Seq[envelope[M, R]] {
	return func(yield func(envelope[M, R]) bool) {
		if !m.closed.Load() {
			return
		}

		for {
			select {
			case env, ok := <-m.ch:
				if !ok {
					return
				}
				if !yield(env) {
					return
				}

			default:
				return
			}
		}
	}
}
