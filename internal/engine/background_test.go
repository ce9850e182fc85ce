package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
	"github.com/stretchr/testify/require"
)

func newTestKV(t *testing.T) *db.KVStore {
	t.Helper()

	store, err := db.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return db.NewKVStore(store)
}

// receive runs one message through the behavior and fails the test on a
// handler error.
func receive(t *testing.T, b *Background, msg BackgroundMsg) {
	t.Helper()

	_, err := b.Receive(context.Background(), msg).Unpack()
	require.NoError(t, err)
}

// grantPermission primes the behavior with granted permission and desktop
// signals.
func grantPermission(t *testing.T, b *Background) {
	t.Helper()

	receive(t, b, RegisterNotificationState{
		baseMessage:       stamped(),
		Signals:           platform.Signals{UserAgent: "X11; Linux"},
		PermissionGranted: true,
	})
}

func pendingAt(id string, notifyAt time.Time) task.Pending {
	return task.Pending{
		ID:         id,
		Title:      "task " + id,
		NotifyTime: notifyAt.UnixMilli(),
	}
}

// TestBackgroundSyncReplaceAndRestore asserts the cache is replaced
// wholesale, persisted, and restored by a fresh behavior.
func TestBackgroundSyncReplaceAndRestore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newTestKV(t)

	cfg := BackgroundConfig{
		KV:        kv,
		Records:   record.NewMemoryStore(),
		Presenter: &capturePresenter{},
	}

	b, err := NewBackground(ctx, cfg)
	require.NoError(t, err)
	require.Empty(t, b.Pending())

	now := time.Now()
	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("t1", now.Add(time.Hour)),
			pendingAt("t2", now.Add(2*time.Hour)),
		},
	})
	require.Len(t, b.Pending(), 2)

	// A later snapshot replaces, never merges.
	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("t3", now.Add(time.Hour)),
		},
	})
	require.Len(t, b.Pending(), 1)
	require.Equal(t, "t3", b.Pending()[0].ID)

	// A restarted context restores the persisted cache.
	restored, err := NewBackground(ctx, cfg)
	require.NoError(t, err)
	require.Len(t, restored.Pending(), 1)
	require.Equal(t, "t3", restored.Pending()[0].ID)
}

// TestBackgroundCheckFiresDueEntries asserts a due entry fires once, is
// removed from the cache, and does not refire.
func TestBackgroundCheckFiresDueEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	presenter := &capturePresenter{}

	b, err := NewBackground(ctx, BackgroundConfig{
		KV:        newTestKV(t),
		Records:   record.NewMemoryStore(),
		Presenter: presenter,
	})
	require.NoError(t, err)
	grantPermission(t, b)

	now := time.Now()
	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("due", now.Add(-time.Minute)),
			pendingAt("later", now.Add(time.Hour)),
		},
	})

	receive(t, b, CheckPendingTasks{baseMessage: stamped()})
	require.Equal(t, 1, presenter.count())
	require.Equal(t, "due", presenter.notes[0].TaskID)

	// Fired entry left the cache; the future one stays.
	require.Len(t, b.Pending(), 1)
	require.Equal(t, "later", b.Pending()[0].ID)

	receive(t, b, CheckPendingTasks{baseMessage: stamped()})
	require.Equal(t, 1, presenter.count())
}

// TestBackgroundClosingCheck asserts the page-hide path fires entries due
// within the closing window ahead of their instant.
func TestBackgroundClosingCheck(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	presenter := &capturePresenter{}

	b, err := NewBackground(ctx, BackgroundConfig{
		KV:        newTestKV(t),
		Records:   record.NewMemoryStore(),
		Presenter: presenter,
	})
	require.NoError(t, err)
	grantPermission(t, b)

	now := time.Now()
	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("soon", now.Add(25*time.Minute)),
			pendingAt("far", now.Add(2*time.Hour)),
		},
	})

	// A normal check keeps both.
	receive(t, b, CheckPendingTasks{baseMessage: stamped()})
	require.Zero(t, presenter.count())

	// The pre-eviction signal sweeps the 25 minute entry.
	receive(t, b, PageHide{baseMessage: stamped()})
	require.Equal(t, 1, presenter.count())
	require.Equal(t, "soon", presenter.notes[0].TaskID)
	require.Len(t, b.Pending(), 1)
}

// TestBackgroundStaleEntriesDropped asserts entries long past their instant
// are dropped without presenting.
func TestBackgroundStaleEntriesDropped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	presenter := &capturePresenter{}

	b, err := NewBackground(ctx, BackgroundConfig{
		KV:        newTestKV(t),
		Records:   record.NewMemoryStore(),
		Presenter: presenter,
	})
	require.NoError(t, err)
	grantPermission(t, b)

	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("stale", time.Now().Add(-time.Hour)),
		},
	})

	receive(t, b, CheckPendingTasks{baseMessage: stamped()})
	require.Zero(t, presenter.count())
	require.Empty(t, b.Pending())
}

// TestBackgroundPermissionGate asserts checks and test notifications are
// no-ops without granted permission.
func TestBackgroundPermissionGate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	presenter := &capturePresenter{}

	b, err := NewBackground(ctx, BackgroundConfig{
		KV:        newTestKV(t),
		Records:   record.NewMemoryStore(),
		Presenter: presenter,
	})
	require.NoError(t, err)

	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("due", time.Now().Add(-time.Minute)),
		},
	})

	receive(t, b, CheckPendingTasks{baseMessage: stamped()})
	receive(t, b, TestNotification{baseMessage: stamped()})
	require.Zero(t, presenter.count())

	// Granting permission unblocks both paths.
	grantPermission(t, b)

	receive(t, b, TestNotification{
		baseMessage: stamped(),
		Title:       "ping",
	})
	require.Equal(t, 1, presenter.count())
	require.Equal(t, "ping", presenter.notes[0].Title)
}

// TestBackgroundClickRouting asserts clicks reach the routing hook.
func TestBackgroundClickRouting(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	var clicked []string
	b, err := NewBackground(ctx, BackgroundConfig{
		Records:   record.NewMemoryStore(),
		Presenter: &capturePresenter{},
		OnClick: func(_ context.Context, taskID string) {
			clicked = append(clicked, taskID)
		},
	})
	require.NoError(t, err)

	receive(t, b, NotificationClicked{
		baseMessage: stamped(),
		TaskID:      "t9",
	})
	require.Equal(t, []string{"t9"}, clicked)
}

// TestBackgroundNotifyStateRestored asserts a behavior started without a
// live foreground inherits the last persisted notification state, so a wake
// delivered before any foreground message still presents due entries.
func TestBackgroundNotifyStateRestored(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	presenter := &capturePresenter{}

	cfg := BackgroundConfig{
		KV:        newTestKV(t),
		Records:   record.NewMemoryStore(),
		Presenter: presenter,
	}

	b, err := NewBackground(ctx, cfg)
	require.NoError(t, err)
	grantPermission(t, b)

	now := time.Now()
	receive(t, b, SyncRequest{
		baseMessage: stamped(),
		Tasks: []task.Pending{
			pendingAt("t1", now.Add(-time.Minute)),
		},
	})

	// A fresh behavior over the same store: no RegisterNotificationState
	// has arrived, yet the restored grant lets the first wake fire.
	restored, err := NewBackground(ctx, cfg)
	require.NoError(t, err)
	require.True(t, restored.permissionGranted)
	require.Len(t, restored.Pending(), 1)

	receive(t, restored, CheckPendingTasks{baseMessage: stamped()})
	require.Equal(t, 1, presenter.count())
}
