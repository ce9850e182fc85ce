package lifecycle

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/stretchr/testify/require"
)

// TestTransitions walks the documented transition table.
func TestTransitions(t *testing.T) {
	t.Parallel()

	fsm := NewFSM()
	require.Equal(t, StateActive, fsm.State())

	// Active -> Background on hidden, back on visible.
	state, changed, err := fsm.ProcessEvent(VisibilityHiddenEvent{})
	require.NoError(t, err)
	require.True(t, changed)
	require.Equal(t, StateBackground, state)

	// Redundant hidden while already backgrounded is absorbed.
	state, changed, err = fsm.ProcessEvent(VisibilityHiddenEvent{})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, StateBackground, state)

	state, _, err = fsm.ProcessEvent(FocusEvent{})
	require.NoError(t, err)
	require.Equal(t, StateActive, state)

	// Page hide enters hiding from either live state.
	state, _, err = fsm.ProcessEvent(PageHideEvent{})
	require.NoError(t, err)
	require.Equal(t, StateHiding, state)

	// A non-restored show does not resume.
	state, changed, err = fsm.ProcessEvent(PageShowEvent{Restored: false})
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, StateHiding, state)

	state, _, err = fsm.ProcessEvent(PageShowEvent{Restored: true})
	require.NoError(t, err)
	require.Equal(t, StateActive, state)

	// Closing is terminal.
	state, _, err = fsm.ProcessEvent(BeforeUnloadEvent{})
	require.NoError(t, err)
	require.Equal(t, StateClosing, state)

	_, _, err = fsm.ProcessEvent(FocusEvent{})
	require.Error(t, err)

	history := fsm.History()
	require.Len(t, history, 5)
	require.Equal(t, "page_hide", history[2].Event)
}

// TestTrackerSideEffects asserts a transition persists the context state,
// forwards it, and that entering hiding runs the forced check.
func TestTrackerSideEffects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "lifecycle.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	kv := db.NewKVStore(store)

	var (
		forwarded    []ContextState
		forcedChecks int
	)
	tracker := NewTracker(TrackerConfig{
		KV:                   kv,
		Platform:             platform.RestrictedMobile,
		NotificationsEnabled: func() bool { return true },
		OnStateChange: func(_ context.Context, cs ContextState) {
			forwarded = append(forwarded, cs)
		},
		OnForcedCheck: func(context.Context) {
			forcedChecks++
		},
	})

	require.NoError(t, tracker.Handle(ctx, VisibilityHiddenEvent{}))
	require.Equal(t, StateBackground, tracker.State())
	require.Len(t, forwarded, 1)
	require.True(t, forwarded[0].InBackground)
	require.Zero(t, forcedChecks)

	// A redundant event produces no side effects.
	require.NoError(t, tracker.Handle(ctx, BlurEvent{}))
	require.Len(t, forwarded, 1)

	require.NoError(t, tracker.Handle(ctx, PageHideEvent{}))
	require.Equal(t, 1, forcedChecks)

	var persisted ContextState
	require.NoError(t, kv.Get(
		ctx, db.NSContextState, KeyForegroundState, &persisted,
	))
	require.True(t, persisted.InBackground)
	require.Equal(t, platform.RestrictedMobile, persisted.Platform)
	require.True(t, persisted.NotificationsEnabled)
}
