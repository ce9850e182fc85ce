// Package actor implements the minimal actor runtime used to model the two
// execution contexts of the reminder engine. Each context is a behavior with
// a serial mailbox: handlers inside one context never run concurrently with
// each other, and contexts share no memory. All coordination happens through
// typed messages, either fire-and-forget (Tell) or with a future-based reply
// (Ask).
package actor

import (
	"context"
	"fmt"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrActorTerminated indicates that an operation failed because the target
// actor was terminated or is shutting down.
var ErrActorTerminated = fmt.Errorf("actor terminated")

// BaseMessage can be embedded in message types defined outside this package
// to satisfy the Message interface's unexported marker method.
type BaseMessage struct{}

// messageMarker implements the sealed marker for the Message interface.
func (BaseMessage) messageMarker() {}

// Message is the sealed interface all actor messages implement, either by
// embedding BaseMessage or by living in this package.
type Message interface {
	// messageMarker seals the interface.
	messageMarker()

	// MessageType returns the type name of the message, used for logging
	// and dead-letter accounting.
	MessageType() string
}

// Future is the consumer half of an asynchronous result. Await blocks until
// the result is set or the context is cancelled.
type Future[T any] interface {
	// Await blocks until the result is available or the context is
	// cancelled, then returns it.
	Await(ctx context.Context) fn.Result[T]

	// OnComplete registers a function invoked once the result is ready.
	// If the context is cancelled first, the callback receives the
	// context's error.
	OnComplete(ctx context.Context, cb func(fn.Result[T]))
}

// Promise is the producer half of a Future. Complete may be called from any
// goroutine; only the first call wins.
type Promise[T any] interface {
	// Future returns the Future associated with this promise.
	Future() Future[T]

	// Complete attempts to set the result. It returns true if this call
	// was the one that set it.
	Complete(result fn.Result[T]) bool
}

// TellOnlyRef is a reference to an actor that only supports fire-and-forget
// sends. The engine hands these out where reply channels must not exist;
// the cross-context protocol is strictly one-directional.
type TellOnlyRef[M Message] interface {
	// ID returns the actor's identifier.
	ID() string

	// Tell sends a message without waiting for a response. If the actor
	// has terminated or the context is cancelled before the message is
	// enqueued, the message is dropped (or dead-lettered).
	Tell(ctx context.Context, msg M)
}

// ActorRef adds request-response (Ask) on top of TellOnlyRef.
type ActorRef[M Message, R any] interface {
	TellOnlyRef[M]

	// Ask sends a message and returns a Future for the response.
	Ask(ctx context.Context, msg M) Future[R]
}

// Behavior is the message-processing logic of an actor. Receive runs on the
// actor's single goroutine; the context cancels when the actor shuts down or
// (for Ask) when the caller's deadline expires.
type Behavior[M Message, R any] interface {
	Receive(ctx context.Context, msg M) fn.Result[R]
}

// Stoppable is an optional interface behaviors implement to release
// external resources during actor shutdown.
type Stoppable interface {
	// OnStop runs after the message loop exits, with a deadline for
	// cleanup.
	OnStop(ctx context.Context) error
}

// FunctionBehavior adapts a plain function to the Behavior interface.
type FunctionBehavior[M Message, R any] struct {
	fn func(ctx context.Context, msg M) fn.Result[R]
}

// NewFunctionBehavior wraps fn as a Behavior.
func NewFunctionBehavior[M Message, R any](
	f func(ctx context.Context, msg M) fn.Result[R],
) *FunctionBehavior[M, R] {
	return &FunctionBehavior[M, R]{fn: f}
}

// Receive implements Behavior by invoking the wrapped function.
func (b *FunctionBehavior[M, R]) Receive(ctx context.Context,
	msg M) fn.Result[R] {

	return b.fn(ctx, msg)
}
