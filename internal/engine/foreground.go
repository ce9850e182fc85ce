package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/baselib/actor"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
)

// DefaultTickInterval is the foreground polling cadence.
const DefaultTickInterval = time.Second

// SchedulerConfig holds the foreground scheduler's collaborators and timing
// knobs. The timing constants are empirical, exposed as fields so they can
// be tuned against the target platform's timer granularity.
type SchedulerConfig struct {
	// Interval is the polling tick period.
	Interval time.Duration

	// MinTolerance and ToleranceRatio parameterize the eligibility
	// window, max(MinTolerance, ToleranceRatio*lead).
	MinTolerance   time.Duration
	ToleranceRatio float64

	// DedupWindow is the minimum spacing between two notifications for
	// the same task.
	DedupWindow time.Duration

	// ClosingWindow is the widened window for forced pre-eviction
	// checks.
	ClosingWindow time.Duration

	// Tasks supplies the task list, queried fresh every cycle.
	Tasks task.Provider

	// Policy supplies the notification policy, read fresh every cycle.
	Policy policy.Provider

	// Permission gates every cycle.
	Permission platform.PermissionAPI

	// Presenter shows notifications.
	Presenter platform.Presenter

	// Cue plays the audible cue when the policy asks for sound.
	Cue platform.AudibleCue

	// Records is the delivery-record store enforcing at-most-once.
	Records record.Store

	// KV receives per-notification diagnostics records. Optional.
	KV *db.KVStore

	// Background receives opportunistic task snapshots. Optional.
	Background actor.TellOnlyRef[BackgroundMsg]

	// Location resolves task-local dates. Defaults to time.Local.
	Location *time.Location

	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultSchedulerConfig returns the scheduler defaults; callers fill in the
// collaborators.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:       DefaultTickInterval,
		MinTolerance:   task.DefaultMinTolerance,
		ToleranceRatio: task.DefaultToleranceRatio,
		DedupWindow:    record.DefaultDedupWindow,
		ClosingWindow:  task.DefaultClosingWindow,
	}
}

// Scheduler is the foreground polling scheduler. It owns the tick source
// explicitly: Start always tears down any prior instance first, so at most
// one tick loop exists per process.
type Scheduler struct {
	cfg SchedulerConfig

	mu        sync.Mutex
	quit      chan struct{}
	wg        sync.WaitGroup
	lastCheck time.Time
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultTickInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	return &Scheduler{cfg: cfg}
}

// Start launches the tick loop. Idempotent: a running instance is stopped
// first, so double starts leave exactly one active ticker.
func (s *Scheduler) Start(ctx context.Context) {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	quit := make(chan struct{})
	s.quit = quit

	s.wg.Add(1)
	go s.tickLoop(ctx, quit)

	log.InfoS(ctx, "Foreground scheduler started",
		"interval", s.cfg.Interval)
}

// Stop halts the tick loop. Safe to call on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.quit == nil {
		s.mu.Unlock()
		return
	}

	close(s.quit)
	s.quit = nil
	s.mu.Unlock()

	s.wg.Wait()
}

// Running reports whether a tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.quit != nil
}

// LastCheck returns when the last check cycle ran.
func (s *Scheduler) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastCheck
}

func (s *Scheduler) tickLoop(ctx context.Context, quit chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.CheckNow(ctx); err != nil {
				log.ErrorS(ctx, "Check cycle failed", err)
			}

		case <-quit:
			return

		case <-ctx.Done():
			return
		}
	}
}

// CheckNow runs one check cycle with the normal tolerance window. Also the
// entry point for the out-of-band triggers: visibility regained, focus
// regained, connectivity restored.
func (s *Scheduler) CheckNow(ctx context.Context) error {
	return s.check(ctx, false)
}

// CheckClosing runs one forced cycle with the widened closing window, for
// the pre-eviction path.
func (s *Scheduler) CheckClosing(ctx context.Context) error {
	return s.check(ctx, true)
}

// check is one full pass: policy gate, permission gate, then per-task
// eligibility, dedup and presentation.
func (s *Scheduler) check(ctx context.Context, closing bool) error {
	s.mu.Lock()
	s.lastCheck = s.cfg.Clock()
	s.mu.Unlock()

	pol, err := s.cfg.Policy.Current(ctx)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}
	if !pol.Enabled {
		return nil
	}

	state, err := s.cfg.Permission.State(ctx)
	if err != nil {
		return fmt.Errorf("read permission: %w", err)
	}
	if state != platform.PermissionGranted {
		return nil
	}

	tasks, err := s.cfg.Tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	now := s.cfg.Clock()
	lead := pol.Lead.Duration()
	tol := task.Tolerance(lead, s.cfg.MinTolerance, s.cfg.ToleranceRatio)

	for _, tk := range tasks {
		if !tk.Notifiable() {
			continue
		}

		due, err := tk.DueAt(s.cfg.Location)
		if err != nil {
			log.DebugS(ctx, "Skipping unparseable task",
				"task_id", tk.ID, "err", err)

			continue
		}

		fireAt := task.FireAt(due, lead)

		eligible := task.Eligible(now, fireAt, tol)
		if closing {
			eligible = eligible || task.EligibleClosing(
				now, fireAt, s.cfg.ClosingWindow,
			)
		}
		if !eligible {
			continue
		}

		if err := s.fire(ctx, tk, pol, now); err != nil {
			log.ErrorS(ctx, "Failed to deliver reminder", err,
				"task_id", tk.ID)
		}
	}

	return nil
}

// fire presents one reminder if the dedup invariant allows it.
func (s *Scheduler) fire(ctx context.Context, tk task.Task, pol policy.Policy,
	now time.Time) error {

	fired, err := s.cfg.Records.WasFiredRecently(
		ctx, tk.ID, now, s.cfg.DedupWindow,
	)
	if err != nil {
		return fmt.Errorf("dedup check: %w", err)
	}
	if fired {
		return nil
	}

	n := newReminderNotification(tk, pol)

	if err := s.cfg.Presenter.Present(ctx, n); err != nil {
		return fmt.Errorf("present: %w", err)
	}

	if pol.WithSound && s.cfg.Cue != nil {
		if err := s.cfg.Cue.Play(ctx); err != nil {
			log.DebugS(ctx, "Audible cue failed",
				"task_id", tk.ID, "err", err)
		}
	}

	if err := s.cfg.Records.RecordFired(ctx, tk.ID, now); err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}

	recordDiagnostics(ctx, s.cfg.KV, n, "foreground")

	log.InfoS(ctx, "Reminder delivered",
		"task_id", tk.ID, "title", tk.Title)

	return nil
}

// PushSnapshot builds a pending snapshot from the current task list and
// forwards it to the background context. Fire and forget.
func (s *Scheduler) PushSnapshot(ctx context.Context) error {
	if s.cfg.Background == nil {
		return nil
	}

	pol, err := s.cfg.Policy.Current(ctx)
	if err != nil {
		return fmt.Errorf("read policy: %w", err)
	}

	tasks, err := s.cfg.Tasks.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	lead := pol.Lead.Duration()
	pending := make([]task.Pending, 0, len(tasks))
	for _, tk := range tasks {
		if !tk.Notifiable() {
			continue
		}

		p, err := task.NewPending(tk, lead, s.cfg.Location)
		if err != nil {
			continue
		}

		pending = append(pending, p)
	}

	s.cfg.Background.Tell(ctx, SyncRequest{
		baseMessage: stamped(),
		Tasks:       pending,
	})

	return nil
}
