package actor

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultCleanupTimeout bounds how long a Stoppable behavior may take in
// OnStop during shutdown.
const DefaultCleanupTimeout = 5 * time.Second

// Config holds the parameters for creating an Actor.
type Config[M Message, R any] struct {
	// ID is the unique identifier for the actor.
	ID string

	// Behavior processes the actor's messages.
	Behavior Behavior[M, R]

	// DeadLetters, if non-nil, receives messages that could not be
	// delivered or were drained during shutdown.
	DeadLetters TellOnlyRef[Message]

	// MailboxSize is the buffer capacity of the mailbox.
	MailboxSize int

	// Wg, when non-nil, tracks the actor goroutine for deterministic
	// shutdown: Add(1) on Start, Done() when the loop exits.
	Wg *sync.WaitGroup

	// CleanupTimeout overrides DefaultCleanupTimeout for OnStop.
	CleanupTimeout fn.Option[time.Duration]
}

// Actor runs a Behavior on its own goroutine, processing mailbox messages
// strictly one at a time. This serial loop is what gives each execution
// context its single-threaded semantics.
type Actor[M Message, R any] struct {
	id       string
	behavior Behavior[M, R]
	mbox     *mailbox[M, R]

	ctx    context.Context
	cancel context.CancelFunc

	dlo TellOnlyRef[Message]
	wg  *sync.WaitGroup

	cleanupTimeout time.Duration

	startOnce sync.Once
	stopOnce  sync.Once

	ref *refImpl[M, R]
}

// New creates an actor without starting its process loop; call Start.
func New[M Message, R any](cfg Config[M, R]) *Actor[M, R] {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor[M, R]{
		id:             cfg.ID,
		behavior:       cfg.Behavior,
		mbox:           newMailbox[M, R](ctx, cfg.MailboxSize),
		ctx:            ctx,
		cancel:         cancel,
		dlo:            cfg.DeadLetters,
		wg:             cfg.Wg,
		cleanupTimeout: cfg.CleanupTimeout.UnwrapOr(DefaultCleanupTimeout),
	}
	a.ref = &refImpl[M, R]{actor: a}

	return a
}

// Start launches the message processing goroutine. Repeated calls are no-ops.
func (a *Actor[M, R]) Start() {
	a.startOnce.Do(func() {
		log.DebugS(a.ctx, "Starting actor", "actor_id", a.id)

		if a.wg != nil {
			a.wg.Add(1)
		}
		go a.process()
	})
}

// Stop signals the actor to terminate. The loop exits once it observes the
// cancellation, then drains leftover messages to the dead-letter sink.
func (a *Actor[M, R]) Stop() {
	a.stopOnce.Do(func() {
		a.cancel()
	})
}

// Ref returns the actor's full reference (Tell and Ask).
func (a *Actor[M, R]) Ref() ActorRef[M, R] {
	return a.ref
}

// TellRef returns a send-only reference, for callers that must not be able
// to open a reply channel.
func (a *Actor[M, R]) TellRef() TellOnlyRef[M] {
	return a.ref
}

// process is the actor's event loop. The deferred Done keeps shutdown
// deterministic even if the behavior panics.
func (a *Actor[M, R]) process() {
	if a.wg != nil {
		defer a.wg.Done()
	}

	for env := range a.mbox.receive(a.ctx) {
		// Ask handlers observe both the actor's lifetime and the
		// caller's deadline. Tell handlers only observe the actor's
		// lifetime: once enqueued, a fire-and-forget message is not
		// cancellable by its sender.
		var (
			processCtx context.Context
			cancel     context.CancelFunc
		)
		if env.promise != nil {
			processCtx, cancel = mergeContexts(a.ctx, env.callerCtx)
		} else {
			processCtx, cancel = a.ctx, func() {}
		}

		log.TraceS(processCtx, "Actor processing message",
			"actor_id", a.id,
			"msg_type", env.message.MessageType(),
			"is_ask", env.promise != nil)

		result := a.behavior.Receive(processCtx, env.message)
		cancel()

		if env.promise != nil {
			env.promise.Complete(result)
		}
	}

	// The context is cancelled: refuse new sends, then hand leftovers to
	// the dead-letter sink and fail their promises.
	a.mbox.close()

	drained := 0
	for env := range a.mbox.drain() {
		drained++

		if a.dlo != nil {
			a.dlo.Tell(context.Background(), env.message)
		}
		if env.promise != nil {
			env.promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	if stoppable, ok := a.behavior.(Stoppable); ok {
		cleanupCtx, cancel := context.WithTimeout(
			context.Background(), a.cleanupTimeout,
		)
		defer cancel()

		if err := stoppable.OnStop(cleanupCtx); err != nil {
			log.WarnS(a.ctx, "Actor cleanup error during shutdown",
				err, "actor_id", a.id)
		}
	}

	log.DebugS(a.ctx, "Actor terminated",
		"actor_id", a.id,
		"drained_messages", drained)
}

// refImpl implements ActorRef by enqueuing envelopes into the actor's
// mailbox.
type refImpl[M Message, R any] struct {
	actor *Actor[M, R]
}

// ID returns the actor's identifier.
func (r *refImpl[M, R]) ID() string {
	return r.actor.id
}

// Tell sends msg without waiting for a response. If the send fails because
// the actor terminated, the message is routed to the dead-letter sink; if
// the caller's own context was cancelled, it is dropped silently.
func (r *refImpl[M, R]) Tell(ctx context.Context, msg M) {
	env := envelope[M, R]{
		message:   msg,
		promise:   nil,
		callerCtx: ctx,
	}
	if r.actor.mbox.send(ctx, env) {
		return
	}

	if ctx.Err() == nil || r.actor.ctx.Err() != nil {
		log.DebugS(ctx, "Tell failed, routing to dead letters",
			"actor_id", r.actor.id,
			"msg_type", msg.MessageType())

		if r.actor.dlo != nil {
			r.actor.dlo.Tell(context.Background(), msg)
		}
	}
}

// Ask sends msg and returns a Future for the behavior's response.
func (r *refImpl[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	promise := NewPromise[R]()

	if r.actor.ctx.Err() != nil {
		promise.Complete(fn.Err[R](ErrActorTerminated))
		return promise.Future()
	}

	env := envelope[M, R]{
		message:   msg,
		promise:   promise,
		callerCtx: ctx,
	}
	if !r.actor.mbox.send(ctx, env) {
		// Actor termination takes precedence over caller
		// cancellation when reporting the failure.
		switch {
		case r.actor.ctx.Err() != nil:
			promise.Complete(fn.Err[R](ErrActorTerminated))

		case ctx.Err() != nil:
			promise.Complete(fn.Err[R](ctx.Err()))

		default:
			promise.Complete(fn.Err[R](ErrActorTerminated))
		}
	}

	return promise.Future()
}

// mergeContexts returns a context that cancels when either parent does,
// honoring the earliest deadline of the two. The watcher goroutine exits as
// soon as any cancellation is observed.
func mergeContexts(ctx1, ctx2 context.Context) (context.Context,
	context.CancelFunc) {

	deadline1, has1 := ctx1.Deadline()
	deadline2, has2 := ctx2.Deadline()

	baseCtx := ctx1
	if has2 && (!has1 || deadline2.Before(deadline1)) {
		baseCtx = ctx2
	}

	merged, cancel := context.WithCancel(baseCtx)

	go func() {
		select {
		case <-ctx1.Done():
			cancel()
		case <-ctx2.Done():
			cancel()
		case <-merged.Done():
		}
	}()

	return merged, cancel
}
