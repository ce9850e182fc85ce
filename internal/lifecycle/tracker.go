package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
)

// ContextState is the execution context's synchronized state. Persisted on
// every transition and forwarded to the background context so presentation
// can be tailored there without device access.
type ContextState struct {
	// InBackground is true in every state but active.
	InBackground bool `json:"inBackground"`

	// LastActivityEpochMs is the time of the last transition.
	LastActivityEpochMs int64 `json:"lastActivityEpochMs"`

	// Platform is the detected device class.
	Platform platform.Platform `json:"platform"`

	// NotificationsEnabled mirrors the current permission state.
	NotificationsEnabled bool `json:"notificationsEnabled"`
}

// KeyForegroundState is the context-state key for the foreground context.
const KeyForegroundState = "foreground"

// TrackerConfig wires the tracker's collaborators.
type TrackerConfig struct {
	// KV is the durable store for ContextState.
	KV *db.KVStore

	// Platform is the detected device class, carried in every state.
	Platform platform.Platform

	// NotificationsEnabled reports the current permission state at
	// transition time.
	NotificationsEnabled func() bool

	// OnStateChange forwards the new state to the background context.
	// Fire and forget.
	OnStateChange func(ctx context.Context, state ContextState)

	// OnForcedCheck runs the wide-window pending check when the context
	// enters hiding and may never tick again.
	OnForcedCheck func(ctx context.Context)
}

// Tracker applies lifecycle events to the FSM and performs the per-transition
// side effects: persist, forward, and the hiding-triggered forced check.
type Tracker struct {
	cfg TrackerConfig
	fsm *FSM
}

// NewTracker creates a tracker starting in the active state.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{
		cfg: cfg,
		fsm: NewFSM(),
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	return t.fsm.State()
}

// History returns the recorded transitions.
func (t *Tracker) History() []Transition {
	return t.fsm.History()
}

// Handle applies one lifecycle event. Redundant events are silently
// absorbed; state changes persist and forward the new ContextState.
func (t *Tracker) Handle(ctx context.Context, event Event) error {
	state, changed, err := t.fsm.ProcessEvent(event)
	if err != nil {
		return fmt.Errorf("lifecycle event %s: %w", event.Name(), err)
	}
	if !changed {
		return nil
	}

	log.DebugS(ctx, "Lifecycle transition",
		"event", event.Name(), "state", state)

	cs := ContextState{
		InBackground:        state != StateActive,
		LastActivityEpochMs: time.Now().UnixMilli(),
		Platform:            t.cfg.Platform,
	}
	if t.cfg.NotificationsEnabled != nil {
		cs.NotificationsEnabled = t.cfg.NotificationsEnabled()
	}

	if t.cfg.KV != nil {
		err := t.cfg.KV.Put(
			ctx, db.NSContextState, KeyForegroundState, cs,
		)
		if err != nil {
			log.WarnS(ctx, "Failed to persist context state", err)
		}
	}

	if t.cfg.OnStateChange != nil {
		t.cfg.OnStateChange(ctx, cs)
	}

	// Once hiding, the foreground tick may never run again. Sweep
	// everything due soon while there is still a chance.
	if state == StateHiding && t.cfg.OnForcedCheck != nil {
		log.InfoS(ctx, "Entering hiding state, running forced "+
			"wide-window check")

		t.cfg.OnForcedCheck(ctx)
	}

	return nil
}
