package platform

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
)

// SupportLevel is how complete notification delivery is under the selected
// strategy.
type SupportLevel string

const (
	// SupportFull means reminders fire even with the app fully closed.
	SupportFull SupportLevel = "full"

	// SupportPartial means reminders fire while the app is open or
	// recently backgrounded, surfaced to the user as partial support.
	SupportPartial SupportLevel = "partial"

	// SupportUnsupported means no delivery capability is available.
	SupportUnsupported SupportLevel = "unsupported"
)

// Registration is the outcome of a successful strategy registration.
type Registration struct {
	// Strategy is the name of the strategy that won.
	Strategy string `json:"strategy"`

	// Level is the delivery completeness the strategy provides.
	Level SupportLevel `json:"level"`
}

// RegistrationStrategy is one concrete approach to obtaining notification
// delivery capability. Strategies are ranked; the selector walks the list
// and the first one that registers wins.
type RegistrationStrategy interface {
	// Name identifies the strategy in logs and recovery state.
	Name() string

	// TryRegister attempts a fresh registration. ErrUnsupportedPlatform
	// and ErrRegistrationFailed cascade to the next strategy; success
	// returns the support level achieved.
	TryRegister(ctx context.Context) (SupportLevel, error)

	// Restore re-establishes a prior registration after a process
	// restart, without prompting the user.
	Restore(ctx context.Context) (SupportLevel, error)

	// Teardown releases the registration.
	Teardown(ctx context.Context) error
}

// keyActiveRegistration is the recovery-state key holding the winning
// registration.
const keyActiveRegistration = "active-registration"

// Selector walks a ranked strategy list and persists the winner so restarts
// restore it without prompting.
type Selector struct {
	perm       PermissionAPI
	strategies []RegistrationStrategy
	kv         *db.KVStore
}

// NewSelector creates a Selector over the ranked strategies.
func NewSelector(perm PermissionAPI, kv *db.KVStore,
	strategies ...RegistrationStrategy) *Selector {

	return &Selector{
		perm:       perm,
		strategies: strategies,
		kv:         kv,
	}
}

// Select picks the delivery strategy. Permission is checked first: a denied
// permission short-circuits the whole chain to unsupported, since no
// strategy can present anything. Strategy failures cascade down the ranking;
// success is persisted for restore.
func (s *Selector) Select(ctx context.Context) (Registration, error) {
	state, err := s.perm.Request(ctx)
	if err != nil {
		return Registration{Level: SupportUnsupported},
			fmt.Errorf("request permission: %w", err)
	}
	if state != PermissionGranted {
		log.InfoS(ctx, "Notification permission not granted",
			"state", state)

		return Registration{Level: SupportUnsupported},
			ErrPermissionDenied
	}

	for _, strat := range s.strategies {
		level, err := strat.TryRegister(ctx)
		switch {
		case err == nil:
			reg := Registration{
				Strategy: strat.Name(),
				Level:    level,
			}
			s.persist(ctx, reg)

			log.InfoS(ctx, "Registration strategy selected",
				"strategy", reg.Strategy, "level", level)

			return reg, nil

		case errors.Is(err, ErrUnsupportedPlatform),
			errors.Is(err, ErrRegistrationFailed):

			log.DebugS(ctx, "Strategy unavailable, cascading",
				"strategy", strat.Name(), "err", err)

		default:
			return Registration{Level: SupportUnsupported},
				fmt.Errorf("strategy %s: %w",
					strat.Name(), err)
		}
	}

	return Registration{Level: SupportUnsupported},
		ErrUnsupportedPlatform
}

// Restore re-establishes the persisted registration after a restart. When no
// registration was persisted, or the persisted strategy can no longer
// restore, it falls back to a fresh Select.
func (s *Selector) Restore(ctx context.Context) (Registration, error) {
	var prev Registration
	err := s.kv.Get(ctx, db.NSStrategy, keyActiveRegistration, &prev)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return s.Select(ctx)

	case err != nil:
		return Registration{Level: SupportUnsupported},
			fmt.Errorf("load registration state: %w", err)
	}

	for _, strat := range s.strategies {
		if strat.Name() != prev.Strategy {
			continue
		}

		level, err := strat.Restore(ctx)
		if err == nil {
			log.InfoS(ctx, "Registration restored",
				"strategy", prev.Strategy, "level", level)

			return Registration{
				Strategy: prev.Strategy,
				Level:    level,
			}, nil
		}

		log.WarnS(ctx, "Persisted strategy failed to restore, "+
			"reselecting", err, "strategy", prev.Strategy)

		break
	}

	return s.Select(ctx)
}

// Teardown releases the persisted registration, if any.
func (s *Selector) Teardown(ctx context.Context) error {
	var prev Registration
	err := s.kv.Get(ctx, db.NSStrategy, keyActiveRegistration, &prev)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load registration state: %w", err)
	}

	for _, strat := range s.strategies {
		if strat.Name() != prev.Strategy {
			continue
		}

		if err := strat.Teardown(ctx); err != nil {
			return fmt.Errorf("teardown %s: %w",
				prev.Strategy, err)
		}

		break
	}

	return s.kv.Delete(ctx, db.NSStrategy, keyActiveRegistration)
}

func (s *Selector) persist(ctx context.Context, reg Registration) {
	err := s.kv.Put(ctx, db.NSStrategy, keyActiveRegistration, reg)
	if err != nil {
		log.WarnS(ctx, "Failed to persist registration state", err,
			"strategy", reg.Strategy)
	}
}
