package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/baselib/actor"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/lifecycle"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/push"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
)

// backgroundActorID is the background context's actor id.
const backgroundActorID = "background-context"

// Config assembles the engine's collaborators. Everything optional is
// documented as such; the rest must be set.
type Config struct {
	// KV is the shared durable key/value store.
	KV *db.KVStore

	// Records is the delivery-record store. Wrap the durable store in
	// record.NewMirroredStore so store failures degrade instead of
	// crashing.
	Records record.Store

	// Tasks supplies the task list.
	Tasks task.Provider

	// Policy is the settings store.
	Policy *policy.Store

	// Permission gates all delivery.
	Permission platform.PermissionAPI

	// Presenter shows notifications.
	Presenter platform.Presenter

	// Cue plays the reminder sound. Optional.
	Cue platform.AudibleCue

	// Push is the push subscription service. Optional; without it only
	// the local strategy can register.
	Push platform.PushService

	// PushFrames delivers inbound frames from the push transport.
	// Optional; when set, wake frames trigger a background pending
	// check and sync frames a fresh task snapshot.
	PushFrames <-chan push.Message

	// Waker is the platform's periodic background waker. Optional.
	Waker platform.PeriodicWaker

	// Connectivity triggers out-of-band re-checks on reconnect.
	// Optional.
	Connectivity platform.Connectivity

	// Signals are the device signals observed at startup.
	Signals platform.Signals

	// Scheduler carries the timing knobs; its collaborator fields are
	// filled in by the engine.
	Scheduler SchedulerConfig

	// SoftWakeInterval is the software fallback cadence for background
	// checks. Defaults to DefaultSoftWakeInterval.
	SoftWakeInterval time.Duration

	// Retention is how long delivery and diagnostics records are kept.
	// Defaults to record.DefaultRetention.
	Retention time.Duration

	// OnClick routes notification clicks. Optional.
	OnClick func(ctx context.Context, taskID string)
}

// Status is the engine's externally visible condition, for a settings
// surface.
type Status struct {
	// Strategy is the active registration strategy name, empty when
	// unsupported.
	Strategy string

	// Level is the delivery support level.
	Level platform.SupportLevel

	// Permission is the current permission state.
	Permission platform.PermissionState

	// Lifecycle is the foreground context's lifecycle state.
	Lifecycle lifecycle.State

	// SchedulerRunning reports whether the foreground tick loop is
	// active.
	SchedulerRunning bool

	// LastCheck is when the last foreground check cycle ran.
	LastCheck time.Time
}

// Engine owns both execution contexts and the strategy registration. One
// Engine per process.
type Engine struct {
	cfg     Config
	profile platform.DeviceProfile

	system     *actor.System
	background actor.ActorRef[BackgroundMsg, Ack]
	scheduler  *Scheduler
	selector   *platform.Selector
	tracker    *lifecycle.Tracker

	mu           sync.Mutex
	registration platform.Registration

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New assembles the engine. The background context is spawned immediately so
// its cache restore happens before any messages flow.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.SoftWakeInterval <= 0 {
		cfg.SoftWakeInterval = DefaultSoftWakeInterval
	}
	if cfg.Retention <= 0 {
		cfg.Retention = record.DefaultRetention
	}

	profile := platform.Detect(cfg.Signals)

	system := actor.NewSystem()

	behavior, err := NewBackground(ctx, BackgroundConfig{
		KV:            cfg.KV,
		Records:       cfg.Records,
		Policy:        cfg.Policy,
		Presenter:     cfg.Presenter,
		DedupWindow:   cfg.Scheduler.DedupWindow,
		ClosingWindow: cfg.Scheduler.ClosingWindow,
		Staleness:     cfg.SoftWakeInterval,
		OnClick:       cfg.OnClick,
	})
	if err != nil {
		return nil, fmt.Errorf("background context: %w", err)
	}

	background := actor.Spawn[BackgroundMsg, Ack](
		system, backgroundActorID, behavior,
	)

	schedCfg := cfg.Scheduler
	schedCfg.Tasks = cfg.Tasks
	schedCfg.Policy = cfg.Policy
	schedCfg.Permission = cfg.Permission
	schedCfg.Presenter = cfg.Presenter
	schedCfg.Cue = cfg.Cue
	schedCfg.Records = cfg.Records
	schedCfg.KV = cfg.KV
	schedCfg.Background = background
	scheduler := NewScheduler(schedCfg)

	// Platform wake-ups land as a pending-task check on the background
	// context.
	wake := func() {
		background.Tell(ctx, CheckPendingTasks{
			baseMessage: stamped(),
		})
	}

	selector := platform.NewSelector(
		cfg.Permission, cfg.KV,
		platform.NewNativePushStrategy(profile, cfg.Push, cfg.KV),
		platform.NewWebPushStrategy(profile, cfg.Push, cfg.KV),
		platform.NewLocalStrategy(cfg.Waker, cfg.SoftWakeInterval, wake),
	)

	e := &Engine{
		cfg:        cfg,
		profile:    profile,
		system:     system,
		background: background,
		scheduler:  scheduler,
		selector:   selector,
		quit:       make(chan struct{}),
	}

	e.tracker = lifecycle.NewTracker(lifecycle.TrackerConfig{
		KV:                   cfg.KV,
		Platform:             profile.Platform,
		NotificationsEnabled: e.permissionGranted,
		OnStateChange:        e.forwardState,
		OnForcedCheck:        e.forcedCheck,
	})

	return e, nil
}

// Start registers a delivery strategy, primes the background context and
// launches the foreground scheduler. A denied permission does not fail
// Start: the engine runs with unsupported status and every check is a no-op
// until permission changes.
func (e *Engine) Start(ctx context.Context) error {
	reg, err := e.selector.Restore(ctx)
	switch {
	case err == nil:

	case errors.Is(err, platform.ErrPermissionDenied),
		errors.Is(err, platform.ErrUnsupportedPlatform):

		log.WarnS(ctx, "No delivery strategy available", err)

	default:
		return fmt.Errorf("select strategy: %w", err)
	}

	e.mu.Lock()
	e.registration = reg
	e.mu.Unlock()

	// Prime the background context: device signals, settings, snapshot.
	e.background.Tell(ctx, RegisterNotificationState{
		baseMessage:       stamped(),
		Signals:           e.cfg.Signals,
		PermissionGranted: e.permissionGranted(),
	})

	if snap, err := e.cfg.Policy.Load(ctx); err == nil {
		e.background.Tell(ctx, UpdateSettings{
			baseMessage: stamped(),
			Snapshot:    snap,
		})
	}

	if err := e.scheduler.PushSnapshot(ctx); err != nil {
		log.WarnS(ctx, "Initial snapshot push failed", err)
	}

	// Settings changes propagate to the background context and rebuild
	// the snapshot, since a new lead time moves every fire instant.
	e.cfg.Policy.OnChange(func(snap policy.Snapshot) {
		e.background.Tell(ctx, UpdateSettings{
			baseMessage: stamped(),
			Snapshot:    snap,
		})

		if err := e.scheduler.PushSnapshot(ctx); err != nil {
			log.WarnS(ctx, "Snapshot push failed", err)
		}
	})

	if e.cfg.Connectivity != nil {
		e.cfg.Connectivity.OnOnline(func() {
			e.OnOnline(ctx)
		})
	}

	e.scheduler.Start(ctx)

	e.wg.Add(1)
	go e.softWakeLoop(ctx)

	if e.cfg.PushFrames != nil {
		e.wg.Add(1)
		go e.pushWakeLoop(ctx)
	}

	log.InfoS(ctx, "Delivery engine started",
		"platform", e.profile.Platform,
		"strategy", reg.Strategy,
		"level", reg.Level)

	return nil
}

// Stop shuts the engine down: scheduler first, then the background context,
// draining its mailbox. The strategy registration is left in place for the
// next start.
func (e *Engine) Stop(ctx context.Context) error {
	e.stopOnce.Do(func() {
		close(e.quit)
	})

	e.scheduler.Stop()
	e.wg.Wait()

	return e.system.Shutdown(ctx)
}

// HandleLifecycle feeds one platform lifecycle event through the tracker.
func (e *Engine) HandleLifecycle(ctx context.Context,
	event lifecycle.Event) error {

	err := e.tracker.Handle(ctx, event)
	if err != nil {
		return err
	}

	// Re-entering the foreground re-checks immediately, since the tick
	// may have been throttled while hidden, and pushes a fresh snapshot
	// so the background cache catches up on task changes it missed.
	switch event.(type) {
	case lifecycle.VisibilityVisibleEvent, lifecycle.FocusEvent:
		if e.tracker.State() == lifecycle.StateActive {
			if err := e.scheduler.CheckNow(ctx); err != nil {
				log.ErrorS(ctx, "Re-entry check failed", err)
			}

			if err := e.scheduler.PushSnapshot(ctx); err != nil {
				log.WarnS(ctx, "Re-entry snapshot failed",
					err)
			}
		}
	}

	return nil
}

// OnOnline runs the connectivity-restored re-check in both contexts.
func (e *Engine) OnOnline(ctx context.Context) {
	if err := e.scheduler.CheckNow(ctx); err != nil {
		log.ErrorS(ctx, "Online re-check failed", err)
	}

	e.background.Tell(ctx, CheckPendingTasks{baseMessage: stamped()})
}

// SyncTasks pushes a fresh task snapshot to the background context.
func (e *Engine) SyncTasks(ctx context.Context) error {
	return e.scheduler.PushSnapshot(ctx)
}

// SaveSettings validates and persists a new policy. Propagation to the
// background context happens through the store's change hook.
func (e *Engine) SaveSettings(ctx context.Context, p policy.Policy) error {
	_, err := e.cfg.Policy.Save(ctx, p)
	return err
}

// TestNotification requests an immediate notification that bypasses
// scheduling but not the permission gate.
func (e *Engine) TestNotification(ctx context.Context, title, body string) {
	e.background.Tell(ctx, TestNotification{
		baseMessage: stamped(),
		Title:       title,
		Body:        body,
	})
}

// Click reports a notification click for routing.
func (e *Engine) Click(ctx context.Context, taskID string) {
	e.background.Tell(ctx, NotificationClicked{
		baseMessage: stamped(),
		TaskID:      taskID,
	})
}

// Status reports the engine's current condition.
func (e *Engine) Status(ctx context.Context) Status {
	e.mu.Lock()
	reg := e.registration
	e.mu.Unlock()

	perm := platform.PermissionDefault
	if state, err := e.cfg.Permission.State(ctx); err == nil {
		perm = state
	}

	return Status{
		Strategy:         reg.Strategy,
		Level:            reg.Level,
		Permission:       perm,
		Lifecycle:        e.tracker.State(),
		SchedulerRunning: e.scheduler.Running(),
		LastCheck:        e.scheduler.LastCheck(),
	}
}

// permissionGranted reports whether notification permission is granted,
// for the tracker and the background primer.
func (e *Engine) permissionGranted() bool {
	state, err := e.cfg.Permission.State(context.Background())
	return err == nil && state == platform.PermissionGranted
}

// forwardState maps a lifecycle change onto the cross-context protocol.
func (e *Engine) forwardState(ctx context.Context,
	cs lifecycle.ContextState) {

	switch e.tracker.State() {
	case lifecycle.StateHiding, lifecycle.StateClosing:
		e.background.Tell(ctx, PageHide{
			baseMessage: stamped(),
			State:       cs,
		})

	case lifecycle.StateActive:
		e.background.Tell(ctx, AppForeground{
			baseMessage: stamped(),
			State:       cs,
		})

	default:
		e.background.Tell(ctx, AppBackground{
			baseMessage: stamped(),
			State:       cs,
		})
	}
}

// forcedCheck is the hiding-triggered wide sweep: both contexts check, since
// either may be the one that survives eviction.
func (e *Engine) forcedCheck(ctx context.Context) {
	if err := e.scheduler.CheckClosing(ctx); err != nil {
		log.ErrorS(ctx, "Forced closing check failed", err)
	}

	e.background.Tell(ctx, CheckPendingTasks{
		baseMessage: stamped(),
		IsClosing:   true,
	})
}

// pushWakeLoop consumes inbound push frames: a wake frame nudges the
// background context's pending check, a sync frame rebuilds the snapshot so
// the cache converges on the server's view of the task list.
func (e *Engine) pushWakeLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case msg, ok := <-e.cfg.PushFrames:
			if !ok {
				return
			}

			switch msg.Type {
			case push.TypeWake:
				log.DebugS(ctx, "Push wake received",
					"task_id", msg.TaskID)

				e.background.Tell(ctx, CheckPendingTasks{
					baseMessage: stamped(),
				})

			case push.TypeSync:
				err := e.scheduler.PushSnapshot(ctx)
				if err != nil {
					log.WarnS(ctx, "Push-triggered "+
						"snapshot failed", err)
				}

			default:
				log.DebugS(ctx, "Ignoring push frame",
					"type", msg.Type)
			}

		case <-e.quit:
			return

		case <-ctx.Done():
			return
		}
	}
}

// softWakeLoop is the software fallback waker: it nudges the background
// context on a coarse cadence and runs the retention sweep.
func (e *Engine) softWakeLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SoftWakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.background.Tell(ctx, CheckPendingTasks{
				baseMessage: stamped(),
			})

			e.prune(ctx)

		case <-e.quit:
			return

		case <-ctx.Done():
			return
		}
	}
}

// prune runs the retention sweep over delivery records and notification
// diagnostics.
func (e *Engine) prune(ctx context.Context) {
	pruned, err := e.cfg.Records.PruneOlderThan(ctx, e.cfg.Retention)
	if err != nil {
		log.WarnS(ctx, "Delivery record prune failed", err)
	} else if pruned > 0 {
		log.DebugS(ctx, "Pruned delivery records", "count", pruned)
	}

	if e.cfg.KV == nil {
		return
	}

	cutoff := time.Now().Add(-e.cfg.Retention)
	_, err = e.cfg.KV.PruneOlderThan(ctx, db.NSNotifications, cutoff)
	if err != nil {
		log.WarnS(ctx, "Diagnostics prune failed", err)
	}
}
