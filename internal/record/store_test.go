package record

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// newTestSQLStore opens a fresh on-disk database in a temp dir and returns a
// SQLStore over it.
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return NewSQLStore(store)
}

// TestSQLStoreDedupWindow asserts that only records inside the trailing
// window count as recent.
func TestSQLStoreDedupWindow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestSQLStore(t)
	now := time.Now()

	// A record outside the window is invisible to the dedup check.
	err := store.RecordFired(ctx, "task-1", now.Add(-10*time.Minute))
	require.NoError(t, err)

	fired, err := store.WasFiredRecently(
		ctx, "task-1", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.False(t, fired)

	// A fresh record makes the task recently fired.
	require.NoError(t, store.RecordFired(ctx, "task-1", now))

	fired, err = store.WasFiredRecently(
		ctx, "task-1", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.True(t, fired)

	// Other tasks are unaffected.
	fired, err = store.WasFiredRecently(
		ctx, "task-2", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.False(t, fired)
}

// TestDedupWindowUsesCallerClock pins the scheduler clock far from the wall
// clock and asserts the dedup check follows the caller's now, so a frozen
// test clock and the record store can never disagree about recency.
func TestDedupWindowUsesCallerClock(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Date(2030, 3, 15, 9, 0, 0, 0, time.UTC)

	for name, store := range map[string]Store{
		"sql":    newTestSQLStore(t),
		"memory": NewMemoryStore(),
	} {
		require.NoError(t, store.RecordFired(ctx, "task-1", now))

		fired, err := store.WasFiredRecently(
			ctx, "task-1", now.Add(time.Minute),
			DefaultDedupWindow,
		)
		require.NoError(t, err, name)
		require.True(t, fired, name)

		fired, err = store.WasFiredRecently(
			ctx, "task-1", now.Add(10*time.Minute),
			DefaultDedupWindow,
		)
		require.NoError(t, err, name)
		require.False(t, fired, name)
	}
}

// TestSQLStorePrune asserts that pruning removes only records older than the
// retention duration.
func TestSQLStorePrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestSQLStore(t)
	now := time.Now()

	err := store.RecordFired(ctx, "old", now.Add(-48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.RecordFired(ctx, "fresh", now))

	pruned, err := store.PruneOlderThan(ctx, DefaultRetention)
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)

	fired, err := store.WasFiredRecently(
		ctx, "fresh", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.True(t, fired)
}

// TestMemoryStorePrune exercises the in-memory store's prune path, including
// full removal of a task's history.
func TestMemoryStorePrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	err := store.RecordFired(ctx, "task-1", now.Add(-2*time.Hour))
	require.NoError(t, err)
	require.NoError(t, store.RecordFired(ctx, "task-1", now))
	err = store.RecordFired(ctx, "task-2", now.Add(-2*time.Hour))
	require.NoError(t, err)

	pruned, err := store.PruneOlderThan(ctx, time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, pruned)

	fired, err := store.WasFiredRecently(
		ctx, "task-1", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.True(t, fired)

	fired, err = store.WasFiredRecently(ctx, "task-2", now, time.Hour*24)
	require.NoError(t, err)
	require.False(t, fired)
}

// failingStore is a Store whose durable backend is permanently down.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (f *failingStore) RecordFired(context.Context, string,
	time.Time) error {

	return errStoreDown
}

func (f *failingStore) WasFiredRecently(context.Context, string, time.Time,
	time.Duration) (bool, error) {

	return false, errStoreDown
}

func (f *failingStore) PruneOlderThan(context.Context,
	time.Duration) (int64, error) {

	return 0, errStoreDown
}

// TestMirroredStoreDegrades asserts that a dead durable store never surfaces
// errors to the scheduler: the in-memory mirror keeps dedup working for the
// current process.
func TestMirroredStoreDegrades(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMirroredStore(&failingStore{})
	now := time.Now()

	require.NoError(t, store.RecordFired(ctx, "task-1", now))

	fired, err := store.WasFiredRecently(
		ctx, "task-1", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.True(t, fired)

	// A miss in the mirror falls through to the durable store, whose
	// failure degrades to "not fired" rather than an error.
	fired, err = store.WasFiredRecently(
		ctx, "task-2", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.False(t, fired)

	pruned, err := store.PruneOlderThan(ctx, DefaultRetention)
	require.NoError(t, err)
	require.Zero(t, pruned)
}

// TestMirroredStoreReadsDurable asserts that records written by another
// process (present only in the durable store) are visible through the
// mirror's fall-through path.
func TestMirroredStoreReadsDurable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()
	durable := NewMemoryStore()
	require.NoError(t, durable.RecordFired(ctx, "task-1", now))

	store := NewMirroredStore(durable)

	fired, err := store.WasFiredRecently(
		ctx, "task-1", now, DefaultDedupWindow,
	)
	require.NoError(t, err)
	require.True(t, fired)
}

// TestDedupGuardProperty checks the at-most-once invariant: for an arbitrary
// interleaving of delivery attempts inside a single dedup window, the
// check-then-record guard lets exactly one attempt per task through.
func TestDedupGuardProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		store := NewMemoryStore()
		now := time.Now()

		taskIDs := rapid.SliceOfN(
			rapid.SampledFrom([]string{
				"task-a", "task-b", "task-c", "task-d",
			}),
			1, 50,
		).Draw(rt, "attempts")

		delivered := make(map[string]int)
		for _, taskID := range taskIDs {
			fired, err := store.WasFiredRecently(
				ctx, taskID, now, DefaultDedupWindow,
			)
			require.NoError(rt, err)
			if fired {
				continue
			}

			delivered[taskID]++
			err = store.RecordFired(ctx, taskID, now)
			require.NoError(rt, err)
		}

		seen := make(map[string]struct{})
		for _, taskID := range taskIDs {
			seen[taskID] = struct{}{}
		}

		require.Len(rt, delivered, len(seen))
		for taskID := range seen {
			require.Equal(rt, 1, delivered[taskID])
		}
	})
}
