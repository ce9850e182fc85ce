package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestStore opens a migrated store in a temp directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

// TestKVRoundTrip verifies Put/Get across namespaces.
func TestKVRoundTrip(t *testing.T) {
	kv := NewKVStore(newTestStore(t))
	ctx := context.Background()

	type snapshot struct {
		Version int    `json:"version"`
		Name    string `json:"name"`
	}

	in := snapshot{Version: 3, Name: "policy"}
	require.NoError(t, kv.Put(ctx, NSSettings, KeySettingsConfig, in))

	var out snapshot
	require.NoError(t, kv.Get(ctx, NSSettings, KeySettingsConfig, &out))
	require.Equal(t, in, out)

	// The same key in a different namespace is a different entry.
	var missing snapshot
	err := kv.Get(ctx, NSTasks, KeySettingsConfig, &missing)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

// TestKVPutOverwrites verifies the upsert semantics.
func TestKVPutOverwrites(t *testing.T) {
	kv := NewKVStore(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, NSTasks, KeyPendingTasks, []string{"a"}))
	require.NoError(t, kv.Put(ctx, NSTasks, KeyPendingTasks, []string{"b"}))

	var out []string
	require.NoError(t, kv.Get(ctx, NSTasks, KeyPendingTasks, &out))
	require.Equal(t, []string{"b"}, out)
}

// TestKVDeleteIdempotent verifies deleting a missing key succeeds.
func TestKVDeleteIdempotent(t *testing.T) {
	kv := NewKVStore(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, NSNotifications, "notification-1", 1))
	require.NoError(t, kv.Delete(ctx, NSNotifications, "notification-1"))
	require.NoError(t, kv.Delete(ctx, NSNotifications, "notification-1"))

	var out int
	err := kv.Get(ctx, NSNotifications, "notification-1", &out)
	require.ErrorIs(t, err, ErrKeyNotFound)
}

// TestKVKeysAndPrune verifies listing and retention pruning.
func TestKVKeysAndPrune(t *testing.T) {
	kv := NewKVStore(newTestStore(t))
	ctx := context.Background()

	require.NoError(t, kv.Put(ctx, NSNotifications, "notification-a", 1))
	require.NoError(t, kv.Put(ctx, NSNotifications, "notification-b", 2))

	keys, err := kv.Keys(ctx, NSNotifications)
	require.NoError(t, err)
	require.Equal(t, []string{"notification-a", "notification-b"}, keys)

	// Entries were written just now; pruning with a cutoff in the past
	// removes nothing, a cutoff in the future removes everything.
	pruned, err := kv.PruneOlderThan(
		ctx, NSNotifications, time.Now().Add(-time.Hour),
	)
	require.NoError(t, err)
	require.Zero(t, pruned)

	pruned, err = kv.PruneOlderThan(
		ctx, NSNotifications, time.Now().Add(time.Hour),
	)
	require.NoError(t, err)
	require.EqualValues(t, 2, pruned)

	keys, err = kv.Keys(ctx, NSNotifications)
	require.NoError(t, err)
	require.Empty(t, keys)
}
