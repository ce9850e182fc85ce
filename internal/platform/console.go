package platform

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// StaticPermission is a PermissionAPI with a fixed initial state. Used by
// the simulator daemon and tests.
type StaticPermission struct {
	mu    sync.Mutex
	state PermissionState

	// GrantOnRequest makes Request resolve a default state to granted,
	// modeling a user who accepts the prompt.
	GrantOnRequest bool
}

// NewStaticPermission creates a StaticPermission in the given state.
func NewStaticPermission(state PermissionState,
	grantOnRequest bool) *StaticPermission {

	return &StaticPermission{
		state:          state,
		GrantOnRequest: grantOnRequest,
	}
}

// State implements PermissionAPI.
func (s *StaticPermission) State(_ context.Context) (PermissionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state, nil
}

// Request implements PermissionAPI.
func (s *StaticPermission) Request(
	_ context.Context) (PermissionState, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == PermissionDefault && s.GrantOnRequest {
		s.state = PermissionGranted
	}

	return s.state, nil
}

// ConsolePresenter presents notifications as lines on a writer.
type ConsolePresenter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsolePresenter creates a presenter writing to w.
func NewConsolePresenter(w io.Writer) *ConsolePresenter {
	return &ConsolePresenter{w: w}
}

// Present implements Presenter.
func (c *ConsolePresenter) Present(_ context.Context, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cue := ""
	if !n.Silent {
		cue = " \a"
	}

	_, err := fmt.Fprintf(c.w, "[%s] NOTIFY %s: %s%s\n",
		time.Now().Format(time.TimeOnly), n.Title, n.Body, cue)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPresentationFailed, err)
	}

	return nil
}

// ConsoleCue plays the audible cue as a terminal bell.
type ConsoleCue struct {
	w io.Writer
}

// NewConsoleCue creates a cue writing to w.
func NewConsoleCue(w io.Writer) *ConsoleCue {
	return &ConsoleCue{w: w}
}

// Play implements AudibleCue.
func (c *ConsoleCue) Play(_ context.Context) error {
	_, err := fmt.Fprint(c.w, "\a")
	return err
}

// TickerWaker is a PeriodicWaker backed by an in-process ticker. It stands
// in for the platform scheduler in the simulator daemon.
type TickerWaker struct {
	mu     sync.Mutex
	ticker *time.Ticker
	done   chan struct{}
}

// Supported implements PeriodicWaker.
func (t *TickerWaker) Supported() bool { return true }

// Register implements PeriodicWaker.
func (t *TickerWaker) Register(_ context.Context, interval time.Duration,
	wake func()) error {

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	t.ticker = time.NewTicker(interval)
	t.done = make(chan struct{})

	go func(ticker *time.Ticker, done chan struct{}) {
		for {
			select {
			case <-ticker.C:
				if wake != nil {
					wake()
				}

			case <-done:
				return
			}
		}
	}(t.ticker, t.done)

	return nil
}

// Unregister implements PeriodicWaker.
func (t *TickerWaker) Unregister(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()

	return nil
}

func (t *TickerWaker) stopLocked() {
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.done)
		t.ticker = nil
	}
}

// AlwaysOnline is a Connectivity that never goes offline.
type AlwaysOnline struct{}

// Online implements Connectivity.
func (AlwaysOnline) Online() bool { return true }

// OnOnline implements Connectivity. The callback never fires because the
// state never transitions.
func (AlwaysOnline) OnOnline(func()) {}

var (
	_ PermissionAPI = (*StaticPermission)(nil)
	_ Presenter     = (*ConsolePresenter)(nil)
	_ AudibleCue    = (*ConsoleCue)(nil)
	_ PeriodicWaker = (*TickerWaker)(nil)
	_ Connectivity  = AlwaysOnline{}
)
