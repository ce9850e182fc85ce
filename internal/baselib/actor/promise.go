package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// promise is the single implementation of both Promise and Future. The
// result is published by closing the done channel, so any number of
// consumers can Await concurrently.
type promise[T any] struct {
	done chan struct{}
	once sync.Once

	// result is written exactly once, before done is closed.
	result fn.Result[T]
}

// NewPromise creates an unfulfilled promise.
func NewPromise[T any]() Promise[T] {
	return &promise[T]{
		done: make(chan struct{}),
	}
}

// Complete attempts to set the result, returning true if this call won.
func (p *promise[T]) Complete(result fn.Result[T]) bool {
	won := false
	p.once.Do(func() {
		p.result = result
		close(p.done)
		won = true
	})

	return won
}

// Future returns the consumer view of this promise.
func (p *promise[T]) Future() Future[T] {
	return p
}

// Await blocks until the result is available or the context is cancelled.
func (p *promise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// OnComplete invokes cb with the result once available, or with the
// context's error if it is cancelled first.
func (p *promise[T]) OnComplete(ctx context.Context, cb func(fn.Result[T])) {
	go func() {
		select {
		case <-p.done:
			cb(p.result)

		case <-ctx.Done():
			cb(fn.Err[T](ctx.Err()))
		}
	}()
}
