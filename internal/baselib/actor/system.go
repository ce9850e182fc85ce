package actor

import (
	"context"
	"errors"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// stoppable is the internal view the system keeps of its actors.
type stoppable interface {
	Stop()
}

// SystemConfig holds system-wide parameters.
type SystemConfig struct {
	// MailboxCapacity is the default mailbox buffer size for actors
	// spawned through the system.
	MailboxCapacity int
}

// DefaultConfig returns the default system configuration.
func DefaultConfig() SystemConfig {
	return SystemConfig{
		MailboxCapacity: 100,
	}
}

// System owns a set of actors and coordinates their shutdown. It also hosts
// the dead-letter actor that absorbs undeliverable messages, which is how
// the engine models "fire-and-forget with no observable failure".
type System struct {
	actors map[string]stoppable

	deadLetters *Actor[Message, any]

	config SystemConfig

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	actorWg sync.WaitGroup
}

// NewSystem creates a system with the default configuration.
func NewSystem() *System {
	return NewSystemWithConfig(DefaultConfig())
}

// NewSystemWithConfig creates a system with custom configuration.
func NewSystemWithConfig(config SystemConfig) *System {
	ctx, cancel := context.WithCancel(context.Background())

	s := &System{
		actors: make(map[string]stoppable),
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	// The dead-letter actor logs and swallows anything it receives. Its
	// own dead-letter ref is nil to avoid loops.
	dloBehavior := NewFunctionBehavior(
		func(ctx context.Context, msg Message) fn.Result[any] {
			log.DebugS(ctx, "Dead letter",
				"msg_type", msg.MessageType())

			return fn.Err[any](errors.New(
				"message undeliverable: " + msg.MessageType(),
			))
		},
	)

	s.deadLetters = New(Config[Message, any]{
		ID:          "dead-letters",
		Behavior:    dloBehavior,
		MailboxSize: config.MailboxCapacity,
		Wg:          &s.actorWg,
	})
	s.deadLetters.Start()
	s.actors[s.deadLetters.id] = s.deadLetters

	return s
}

// DeadLetters returns the send-only reference to the dead-letter actor.
func (s *System) DeadLetters() TellOnlyRef[Message] {
	return s.deadLetters.TellRef()
}

// Spawn creates, starts, and registers an actor with the system. If the
// system is already shutting down, the returned ref is to a stopped actor so
// callers fail with ErrActorTerminated instead of panicking on nil.
func Spawn[M Message, R any](s *System, id string,
	behavior Behavior[M, R]) ActorRef[M, R] {

	if s.ctx.Err() != nil {
		stopped := New(Config[M, R]{ID: id})
		stopped.Stop()
		return stopped.Ref()
	}

	a := New(Config[M, R]{
		ID:          id,
		Behavior:    behavior,
		DeadLetters: s.deadLetters.TellRef(),
		MailboxSize: s.config.MailboxCapacity,
		Wg:          &s.actorWg,
	})
	a.Start()

	s.mu.Lock()
	s.actors[id] = a
	s.mu.Unlock()

	log.DebugS(s.ctx, "Actor registered with system", "actor_id", id)

	return a.Ref()
}

// StopActor stops and removes a single actor by ID, reporting whether it was
// found.
func (s *System) StopActor(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actors[id]
	if !ok {
		return false
	}

	a.Stop()
	delete(s.actors, id)

	return true
}

// Shutdown stops all actors and waits for their goroutines to exit or the
// context to expire. Cancelling the system context first closes the Spawn
// window, so no actor can be added after the WaitGroup snapshot.
func (s *System) Shutdown(ctx context.Context) error {
	s.cancel()

	var toStop []stoppable
	s.mu.RLock()
	for _, a := range s.actors {
		toStop = append(toStop, a)
	}
	s.mu.RUnlock()

	log.InfoS(ctx, "Actor system shutting down",
		"num_actors", len(toStop))

	for _, a := range toStop {
		a.Stop()
	}

	s.mu.Lock()
	s.actors = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.actorWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.InfoS(ctx, "Actor system shutdown completed")
		return nil

	case <-ctx.Done():
		log.ErrorS(ctx, "Actor system shutdown incomplete, "+
			"some actors may have leaked", ctx.Err())

		return ctx.Err()
	}
}
