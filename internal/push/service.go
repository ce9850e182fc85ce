package push

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// Service exposes the transport as a platform.PushService. Subscribing
// starts the transport and announces a client-generated token; the service
// routes wakes for that token back over the same connection.
type Service struct {
	transport *Transport

	mu  sync.Mutex
	sub fn.Option[platform.Subscription]
}

// NewService creates a Service over the transport.
func NewService(transport *Transport) *Service {
	return &Service{
		transport: transport,
		sub:       fn.None[platform.Subscription](),
	}
}

// Subscribe implements platform.PushService. Subscribing twice returns the
// existing subscription.
func (s *Service) Subscribe(
	ctx context.Context) (platform.Subscription, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub.IsSome() {
		return s.sub.UnsafeFromSome(), nil
	}

	s.transport.Start()

	sub := platform.Subscription{
		Endpoint:  s.transport.cfg.URL,
		Token:     uuid.NewString(),
		CreatedAt: time.Now().UnixMilli(),
	}

	err := s.transport.Send(Message{
		Type:  TypeSubscribe,
		Token: sub.Token,
	})
	if err != nil {
		return platform.Subscription{},
			fmt.Errorf("announce subscription: %w", err)
	}

	s.sub = fn.Some(sub)

	return sub, nil
}

// Current implements platform.PushService.
func (s *Service) Current(
	_ context.Context) (fn.Option[platform.Subscription], error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sub, nil
}

// Unsubscribe implements platform.PushService.
func (s *Service) Unsubscribe(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub.IsNone() {
		return nil
	}
	sub := s.sub.UnsafeFromSome()

	err := s.transport.Send(Message{
		Type:  TypeUnsubscribe,
		Token: sub.Token,
	})
	if err != nil {
		log.Warnf("Unsubscribe frame not sent: %v", err)
	}

	s.sub = fn.None[platform.Subscription]()

	return nil
}

var _ platform.PushService = (*Service)(nil)
