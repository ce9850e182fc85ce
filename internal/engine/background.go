package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/lifecycle"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// DefaultSoftWakeInterval is the software fallback cadence for background
// checks when the platform's periodic waker is unavailable or unreliable.
const DefaultSoftWakeInterval = 15 * time.Minute

// keyNotifyState is the db.NSContextState entry holding the notification
// state the background context last saw.
const keyNotifyState = "background-notify"

// notifyState is the durable snapshot of the background context's gate
// state: the detected platform and the last known permission grant. It lets
// a background context woken without a live foreground deliver instead of
// no-opping until one appears.
type notifyState struct {
	Platform platform.Platform `json:"platform"`
	Granted  bool              `json:"granted"`
}

// BackgroundConfig holds the background behavior's collaborators.
type BackgroundConfig struct {
	// KV persists the pending-task cache across restarts.
	KV *db.KVStore

	// Records is the delivery-record store shared with the foreground
	// context.
	Records record.Store

	// Policy applies forwarded settings snapshots.
	Policy *policy.Store

	// Presenter shows notifications from this context.
	Presenter platform.Presenter

	// DedupWindow is the minimum spacing between notifications per task.
	DedupWindow time.Duration

	// ClosingWindow is the widened eligibility window for forced checks.
	ClosingWindow time.Duration

	// Staleness bounds how long past its fire instant a pending entry is
	// still worth presenting. Entries older than this are dropped
	// silently. Defaults to DefaultSoftWakeInterval so a reminder missed
	// between two wake-ups still fires on the next one.
	Staleness time.Duration

	// OnClick routes notification clicks, such as focusing the app at
	// the task view. Optional.
	OnClick func(ctx context.Context, taskID string)

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// Background is the background execution context's behavior: it owns the
// pending-task cache and presents reminders while no foreground context is
// alive. It runs on a single actor goroutine, so its state needs no locks.
type Background struct {
	cfg BackgroundConfig

	pending []task.Pending

	foreground        lifecycle.ContextState
	profile           platform.DeviceProfile
	permissionGranted bool
}

// NewBackground creates the background behavior and restores the pending
// cache from the durable store. A missing cache is an empty one.
func NewBackground(ctx context.Context,
	cfg BackgroundConfig) (*Background, error) {

	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = record.DefaultDedupWindow
	}
	if cfg.ClosingWindow <= 0 {
		cfg.ClosingWindow = task.DefaultClosingWindow
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultSoftWakeInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	b := &Background{cfg: cfg}

	if cfg.KV != nil {
		var cached []task.Pending
		err := cfg.KV.Get(ctx, db.NSTasks, db.KeyPendingTasks, &cached)
		switch {
		case err == nil:
			b.pending = cached
			log.InfoS(ctx, "Pending-task cache restored",
				"entries", len(cached))

		case !errors.Is(err, db.ErrKeyNotFound):
			return nil, fmt.Errorf("restore pending cache: %w",
				err)
		}

		var ns notifyState
		err = cfg.KV.Get(ctx, db.NSContextState, keyNotifyState, &ns)
		switch {
		case err == nil:
			b.profile.Platform = ns.Platform
			b.permissionGranted = ns.Granted
			log.DebugS(ctx, "Notification state restored",
				"platform", ns.Platform,
				"granted", ns.Granted)

		case !errors.Is(err, db.ErrKeyNotFound):
			return nil, fmt.Errorf("restore notify state: %w",
				err)
		}
	}

	return b, nil
}

// Pending returns a copy of the cached pending entries.
func (b *Background) Pending() []task.Pending {
	out := make([]task.Pending, len(b.pending))
	copy(out, b.pending)

	return out
}

// Receive implements actor.Behavior by dispatching to type-specific
// handlers. Handler failures are logged, never returned: the protocol is
// fire-and-forget, so there is no caller to surface them to.
func (b *Background) Receive(ctx context.Context,
	msg BackgroundMsg) fn.Result[Ack] {

	switch m := msg.(type) {
	case SyncRequest:
		b.handleSync(ctx, m)

	case CheckPendingTasks:
		b.checkPending(ctx, m.IsClosing)

	case AppForeground:
		b.foreground = m.State

	case AppBackground:
		b.foreground = m.State

	case PageHide:
		b.foreground = m.State
		b.checkPending(ctx, true)

	case UpdateSettings:
		b.handleUpdateSettings(ctx, m)

	case RegisterNotificationState:
		b.handleRegisterState(ctx, m)

	case TestNotification:
		b.handleTestNotification(ctx, m)

	case NotificationClicked:
		if b.cfg.OnClick != nil {
			b.cfg.OnClick(ctx, m.TaskID)
		}

	default:
		return fn.Err[Ack](fmt.Errorf(
			"unknown message type: %T", msg,
		))
	}

	return fn.Ok(Ack{})
}

// handleSync replaces the cache wholesale and persists it. Receiving the
// same snapshot twice converges on the same state.
func (b *Background) handleSync(ctx context.Context, msg SyncRequest) {
	b.pending = msg.Tasks
	b.persistPending(ctx)

	log.DebugS(ctx, "Pending-task cache replaced",
		"entries", len(msg.Tasks))
}

// checkPending sweeps the cache: presents everything due, drops entries too
// stale to matter, keeps the rest. The closing variant also fires entries
// due within the closing window, ahead of their instant.
func (b *Background) checkPending(ctx context.Context, closing bool) {
	if len(b.pending) == 0 {
		return
	}
	if !b.permissionGranted {
		log.DebugS(ctx, "Skipping pending check without permission")
		return
	}

	now := b.cfg.Clock()
	keep := b.pending[:0]

	for _, p := range b.pending {
		notifyAt := time.UnixMilli(p.NotifyTime)
		overdue := now.Sub(notifyAt)

		switch {
		// Too stale to be useful, drop it.
		case overdue > b.cfg.Staleness:

		// Due now, or recently enough to still matter.
		case overdue >= 0:
			b.fire(ctx, p, now)

		// Ahead of its instant but inside the closing window
		// during a forced sweep.
		case closing && task.EligibleClosing(
			now, notifyAt, b.cfg.ClosingWindow,
		):

			b.fire(ctx, p, now)

		default:
			keep = append(keep, p)
		}
	}

	if len(keep) != len(b.pending) {
		b.pending = keep
		b.persistPending(ctx)
	} else {
		b.pending = keep
	}
}

// fire presents one cached reminder if the dedup invariant allows it.
func (b *Background) fire(ctx context.Context, p task.Pending,
	now time.Time) {

	fired, err := b.cfg.Records.WasFiredRecently(
		ctx, p.ID, now, b.cfg.DedupWindow,
	)
	if err != nil {
		log.ErrorS(ctx, "Dedup check failed", err, "task_id", p.ID)
		return
	}
	if fired {
		return
	}

	// Stay silent while a visible foreground context could also alert,
	// so the user never hears the same reminder twice.
	silent := !b.foreground.InBackground

	n := pendingNotification(p, silent)
	if err := b.cfg.Presenter.Present(ctx, n); err != nil {
		log.ErrorS(ctx, "Failed to present reminder", err,
			"task_id", p.ID)

		return
	}

	if err := b.cfg.Records.RecordFired(ctx, p.ID, now); err != nil {
		log.ErrorS(ctx, "Failed to record delivery", err,
			"task_id", p.ID)
	}

	recordDiagnostics(ctx, b.cfg.KV, n, "background")

	log.InfoS(ctx, "Reminder delivered from background",
		"task_id", p.ID, "title", p.Title)
}

func (b *Background) handleUpdateSettings(ctx context.Context,
	msg UpdateSettings) {

	if b.cfg.Policy == nil {
		return
	}

	applied, err := b.cfg.Policy.ApplySnapshot(ctx, msg.Snapshot)
	if err != nil {
		log.ErrorS(ctx, "Failed to apply settings snapshot", err)
		return
	}

	if applied {
		log.DebugS(ctx, "Settings snapshot applied",
			"version", msg.Snapshot.Version)
	}
}

func (b *Background) handleRegisterState(ctx context.Context,
	msg RegisterNotificationState) {

	b.profile = platform.Detect(msg.Signals)
	b.permissionGranted = msg.PermissionGranted

	if b.cfg.KV != nil {
		err := b.cfg.KV.Put(ctx, db.NSContextState, keyNotifyState,
			notifyState{
				Platform: b.profile.Platform,
				Granted:  b.permissionGranted,
			},
		)
		if err != nil {
			log.WarnS(ctx, "Failed to persist notify state", err)
		}
	}

	log.DebugS(ctx, "Notification state registered",
		"platform", b.profile.Platform,
		"granted", msg.PermissionGranted)
}

func (b *Background) handleTestNotification(ctx context.Context,
	msg TestNotification) {

	if !b.permissionGranted {
		log.InfoS(ctx, "Test notification suppressed, no permission")
		return
	}

	n := platform.Notification{
		ID:    newNotificationID(),
		Title: msg.Title,
		Body:  msg.Body,
		Tag:   "test-notification",
	}
	if n.Title == "" {
		n.Title = "Test notification"
	}

	if err := b.cfg.Presenter.Present(ctx, n); err != nil {
		log.ErrorS(ctx, "Failed to present test notification", err)
		return
	}

	recordDiagnostics(ctx, b.cfg.KV, n, "background")
}

func (b *Background) persistPending(ctx context.Context) {
	if b.cfg.KV == nil {
		return
	}

	err := b.cfg.KV.Put(ctx, db.NSTasks, db.KeyPendingTasks, b.pending)
	if err != nil {
		log.WarnS(ctx, "Failed to persist pending cache", err)
	}
}
