package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/lifecycle"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/push"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
	"github.com/stretchr/testify/require"
)

// mutableTasks is a task provider whose list can change between calls.
type mutableTasks struct {
	mu    sync.Mutex
	tasks []task.Task
}

func (m *mutableTasks) ListTasks(context.Context) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]task.Task, len(m.tasks))
	copy(out, m.tasks)

	return out, nil
}

func (m *mutableTasks) set(tasks ...task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = tasks
}

// TestEngineDegradesToLocal boots the full engine without any push service
// and asserts it lands on the local strategy at partial support instead of
// failing, with both contexts live.
func TestEngineDegradesToLocal(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	kv := db.NewKVStore(store)

	presenter := &capturePresenter{}
	pol := policy.NewStore(kv)

	eng, err := New(ctx, Config{
		KV:         kv,
		Records:    record.NewMirroredStore(record.NewSQLStore(store)),
		Tasks:      staticTasks(),
		Policy:     pol,
		Permission: platform.NewStaticPermission(platform.PermissionGranted, false),
		Presenter:  presenter,
		Signals:    platform.Signals{UserAgent: "X11; Linux x86_64"},
		Scheduler:  DefaultSchedulerConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, eng.Stop(ctx))
	})

	status := eng.Status(ctx)
	require.Equal(t, platform.StrategyLocal, status.Strategy)
	require.Equal(t, platform.SupportPartial, status.Level)
	require.Equal(t, platform.PermissionGranted, status.Permission)
	require.True(t, status.SchedulerRunning)
	require.Equal(t, lifecycle.StateActive, status.Lifecycle)

	// The test-notification path presents through the background
	// context, which Start primed with granted permission.
	eng.TestNotification(ctx, "ping", "pong")
	require.Eventually(t, func() bool {
		return presenter.count() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, "ping", presenter.notes[0].Title)

	// Lifecycle events route through the tracker and persist state.
	require.NoError(t, eng.HandleLifecycle(
		ctx, lifecycle.VisibilityHiddenEvent{},
	))
	require.Equal(t, lifecycle.StateBackground,
		eng.Status(ctx).Lifecycle)

	var cs lifecycle.ContextState
	require.NoError(t, kv.Get(
		ctx, db.NSContextState, lifecycle.KeyForegroundState, &cs,
	))
	require.True(t, cs.InBackground)
}

// TestEngineDeniedPermissionStartsUnsupported asserts scenario C: a denied
// permission yields unsupported status, no crash, and silent checks.
func TestEngineDeniedPermissionStartsUnsupported(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "denied.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	kv := db.NewKVStore(store)

	presenter := &capturePresenter{}
	eng, err := New(ctx, Config{
		KV:         kv,
		Records:    record.NewMemoryStore(),
		Tasks:      staticTasks(),
		Policy:     policy.NewStore(kv),
		Permission: platform.NewStaticPermission(platform.PermissionDenied, false),
		Presenter:  presenter,
		Signals:    platform.Signals{UserAgent: "X11; Linux x86_64"},
		Scheduler:  DefaultSchedulerConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, eng.Stop(ctx))
	})

	status := eng.Status(ctx)
	require.Equal(t, platform.SupportUnsupported, status.Level)
	require.Equal(t, platform.PermissionDenied, status.Permission)

	// Checks stay silent.
	eng.TestNotification(ctx, "ping", "pong")
	eng.OnOnline(ctx)
	time.Sleep(50 * time.Millisecond)
	require.Zero(t, presenter.count())
}

// TestEnginePushFramesDriveDelivery asserts inbound push frames reach the
// background context: a wake frame triggers a pending check and a sync frame
// rebuilds the snapshot. The entry is past its fire instant, so only the
// background path can deliver it.
func TestEnginePushFramesDriveDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "push.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	kv := db.NewKVStore(store)

	// Default lead is 30 minutes, so a task due in 29 puts the fire
	// instant about a minute in the past: outside the foreground
	// tolerance window, inside the background staleness bound.
	now := time.Now()
	tasks := &mutableTasks{}
	tasks.set(taskDueAt("w1", now.Add(29*time.Minute)))

	presenter := &capturePresenter{}
	frames := make(chan push.Message, 4)

	eng, err := New(ctx, Config{
		KV:         kv,
		Records:    record.NewMirroredStore(record.NewSQLStore(store)),
		Tasks:      tasks,
		Policy:     policy.NewStore(kv),
		Permission: platform.NewStaticPermission(platform.PermissionGranted, false),
		Presenter:  presenter,
		PushFrames: frames,
		Signals:    platform.Signals{UserAgent: "X11; Linux x86_64"},
		Scheduler:  DefaultSchedulerConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, eng.Stop(ctx))
	})

	// A wake frame sweeps the cache Start primed.
	frames <- push.Message{Type: push.TypeWake}
	require.Eventually(t, func() bool {
		return presenter.count() == 1
	}, 5*time.Second, 10*time.Millisecond)

	// A sync frame picks up a task added after startup; the next wake
	// delivers it.
	tasks.set(
		taskDueAt("w1", now.Add(29*time.Minute)),
		taskDueAt("w2", now.Add(28*time.Minute)),
	)
	frames <- push.Message{Type: push.TypeSync}
	frames <- push.Message{Type: push.TypeWake}

	require.Eventually(t, func() bool {
		return presenter.count() == 2
	}, 5*time.Second, 10*time.Millisecond)
}

// TestEngineReentrySnapshotConverges asserts that returning to the
// foreground pushes a fresh snapshot, so the background cache picks up task
// changes made while the app was hidden.
func TestEngineReentrySnapshotConverges(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	store, err := db.Open(filepath.Join(t.TempDir(), "reentry.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	kv := db.NewKVStore(store)

	now := time.Now()
	tasks := &mutableTasks{}
	tasks.set(taskDueAt("t1", now.Add(24*time.Hour)))

	eng, err := New(ctx, Config{
		KV:         kv,
		Records:    record.NewMemoryStore(),
		Tasks:      tasks,
		Policy:     policy.NewStore(kv),
		Permission: platform.NewStaticPermission(platform.PermissionGranted, false),
		Presenter:  &capturePresenter{},
		Signals:    platform.Signals{UserAgent: "X11; Linux x86_64"},
		Scheduler:  DefaultSchedulerConfig(),
	})
	require.NoError(t, err)

	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		require.NoError(t, eng.Stop(ctx))
	})

	require.NoError(t, eng.HandleLifecycle(
		ctx, lifecycle.VisibilityHiddenEvent{},
	))

	// The task list changes while hidden.
	tasks.set(taskDueAt("t2", now.Add(24*time.Hour)))

	require.NoError(t, eng.HandleLifecycle(
		ctx, lifecycle.VisibilityVisibleEvent{},
	))

	require.Eventually(t, func() bool {
		var pending []task.Pending
		err := kv.Get(ctx, db.NSTasks, db.KeyPendingTasks, &pending)
		if err != nil {
			return false
		}

		return len(pending) == 1 && pending[0].ID == "t2"
	}, 5*time.Second, 10*time.Millisecond)
}
