// Package lifecycle tracks the foreground context's visibility state. The
// state machine consumes platform lifecycle events and drives persistence,
// cross-context forwarding, and the forced pre-eviction check.
package lifecycle

import (
	"fmt"
	"sync"
	"time"
)

// State is a visibility lifecycle state.
type State string

const (
	// StateActive means the window is visible and focused.
	StateActive State = "active"

	// StateBackground means the window is hidden or blurred but alive.
	StateBackground State = "background"

	// StateHiding means the platform signalled the page may be evicted.
	// The last chance to run a wide pending check.
	StateHiding State = "hiding"

	// StateClosing means the page is being torn down for good.
	StateClosing State = "closing"
)

// Event triggers state transitions.
type Event interface {
	lifecycleEventMarker()

	// Name identifies the event in logs and transition history.
	Name() string
}

// Lifecycle event types, mirroring the platform's visibility signals.
type (
	// VisibilityHiddenEvent fires when the document becomes hidden.
	VisibilityHiddenEvent struct{}

	// VisibilityVisibleEvent fires when the document becomes visible.
	VisibilityVisibleEvent struct{}

	// FocusEvent fires when the window gains focus.
	FocusEvent struct{}

	// BlurEvent fires when the window loses focus.
	BlurEvent struct{}

	// PageHideEvent fires when the page is about to be hidden, possibly
	// for eviction. The most restricted platform uses this as the
	// last-chance hook.
	PageHideEvent struct{}

	// PageShowEvent fires when a page is shown again. Restored is true
	// when the page came back from the platform's cache rather than a
	// fresh load.
	PageShowEvent struct {
		Restored bool
	}

	// BeforeUnloadEvent fires when the page is being torn down.
	BeforeUnloadEvent struct{}
)

func (VisibilityHiddenEvent) lifecycleEventMarker()  {}
func (VisibilityVisibleEvent) lifecycleEventMarker() {}
func (FocusEvent) lifecycleEventMarker()             {}
func (BlurEvent) lifecycleEventMarker()              {}
func (PageHideEvent) lifecycleEventMarker()          {}
func (PageShowEvent) lifecycleEventMarker()          {}
func (BeforeUnloadEvent) lifecycleEventMarker()      {}

func (VisibilityHiddenEvent) Name() string  { return "visibility_hidden" }
func (VisibilityVisibleEvent) Name() string { return "visibility_visible" }
func (FocusEvent) Name() string             { return "focus" }
func (BlurEvent) Name() string              { return "blur" }
func (PageHideEvent) Name() string          { return "page_hide" }
func (PageShowEvent) Name() string          { return "page_show" }
func (BeforeUnloadEvent) Name() string      { return "before_unload" }

// Transition is one recorded state change.
type Transition struct {
	From  State
	To    State
	Event string
	At    time.Time
}

// FSM is the lifecycle state machine. Redundant events, such as a visible
// signal while already active, are no-ops because platform event streams
// repeat themselves; impossible events are errors.
type FSM struct {
	mu          sync.RWMutex
	state       State
	transitions []Transition
}

// NewFSM creates an FSM starting in the active state.
func NewFSM() *FSM {
	return &FSM{state: StateActive}
}

// State returns the current state.
func (f *FSM) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.state
}

// ProcessEvent applies an event and returns the resulting state. The boolean
// reports whether the state actually changed.
func (f *FSM) ProcessEvent(event Event) (State, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateClosing {
		return f.state, false, fmt.Errorf(
			"event %s after close", event.Name(),
		)
	}

	old := f.state
	next := old

	switch e := event.(type) {
	case VisibilityHiddenEvent, BlurEvent:
		if old == StateActive {
			next = StateBackground
		}

	case VisibilityVisibleEvent, FocusEvent:
		if old == StateBackground {
			next = StateActive
		}

	case PageHideEvent:
		next = StateHiding

	case PageShowEvent:
		// A restored page resumes; a fresh load replaces this
		// process entirely, so a non-restored show is a no-op here.
		if old == StateHiding && e.Restored {
			next = StateActive
		}

	case BeforeUnloadEvent:
		next = StateClosing

	default:
		return old, false, fmt.Errorf(
			"unknown lifecycle event %T", event,
		)
	}

	if next == old {
		return old, false, nil
	}

	f.state = next
	f.transitions = append(f.transitions, Transition{
		From:  old,
		To:    next,
		Event: event.Name(),
		At:    time.Now(),
	})

	return next, true, nil
}

// History returns a copy of the recorded transitions.
func (f *FSM) History() []Transition {
	f.mu.RLock()
	defer f.mu.RUnlock()

	history := make([]Transition, len(f.transitions))
	copy(history, f.transitions)

	return history
}
