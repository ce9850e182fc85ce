// reminderd runs the notification delivery engine in-process with console
// presentation primitives: a simulator for exercising the scheduler, the
// background context and the strategy chain against a real database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/baselib/actor"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/build"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/engine"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/lifecycle"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/push"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/record"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

func main() {
	var (
		dbPath = flag.String("db", db.DefaultDBPath(),
			"Path to SQLite database")
		tasksPath = flag.String("tasks", "",
			"JSON file with the task list (required)")
		pushURL = flag.String("push", "",
			"Push service websocket URL (empty to disable push)")
		userAgent = flag.String("user-agent",
			"Mozilla/5.0 (X11; Linux x86_64)",
			"User agent for platform detection")
		debug = flag.Bool("debug", false, "Enable debug logging")
	)
	flag.Parse()

	if *tasksPath == "" {
		fmt.Fprintln(os.Stderr, "reminderd: -tasks is required")
		os.Exit(1)
	}

	if err := run(*dbPath, *tasksPath, *pushURL, *userAgent,
		*debug); err != nil {

		fmt.Fprintf(os.Stderr, "reminderd: %v\n", err)
		os.Exit(1)
	}
}

func run(dbPath, tasksPath, pushURL, userAgent string, debug bool) error {
	root := build.NewRootHandler(os.Stdout)
	if debug {
		build.SetLogLevels(root, btclog.LevelDebug)
	} else {
		build.SetLogLevels(root, btclog.LevelInfo)
	}

	actor.UseLogger(build.NewSubLogger(root, build.SubACTR))
	db.UseLogger(build.NewSubLogger(root, build.SubDB))
	record.UseLogger(build.NewSubLogger(root, build.SubRCRD))
	policy.UseLogger(build.NewSubLogger(root, build.SubPLCY))
	platform.UseLogger(build.NewSubLogger(root, build.SubPLAT))
	push.UseLogger(build.NewSubLogger(root, build.SubPUSH))
	lifecycle.UseLogger(build.NewSubLogger(root, build.SubLFCY))
	engine.UseLogger(build.NewSubLogger(root, build.SubRMDR))

	log := build.NewSubLogger(root, build.SubRMDR)

	store, err := db.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	kv := db.NewKVStore(store)

	tasks, err := loadTasks(tasksPath)
	if err != nil {
		return err
	}
	log.Infof("Loaded %d tasks from %s", len(tasks), tasksPath)

	var (
		pushSvc    platform.PushService
		pushFrames <-chan push.Message
	)
	if pushURL != "" {
		transport := push.NewTransport(push.DefaultConfig(pushURL))
		defer transport.Stop()

		pushSvc = push.NewService(transport)
		pushFrames = transport.Messages()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, engine.Config{
		KV:      kv,
		Records: record.NewMirroredStore(record.NewSQLStore(store)),
		Tasks: task.ProviderFunc(
			func(context.Context) ([]task.Task, error) {
				return tasks, nil
			},
		),
		Policy: policy.NewStore(kv),
		Permission: platform.NewStaticPermission(
			platform.PermissionDefault, true,
		),
		Presenter:  platform.NewConsolePresenter(os.Stdout),
		Cue:        platform.NewConsoleCue(os.Stdout),
		Push:       pushSvc,
		PushFrames: pushFrames,
		Waker:      &platform.TickerWaker{},
		Signals:    platform.Signals{UserAgent: userAgent},
		Scheduler:  engine.DefaultSchedulerConfig(),
		OnClick: func(_ context.Context, taskID string) {
			log.Infof("Notification clicked, opening /task/%s",
				taskID)
		},
	})
	if err != nil {
		return fmt.Errorf("assemble engine: %w", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	status := eng.Status(ctx)
	log.Infof("Engine running: strategy=%s level=%s permission=%s",
		status.Strategy, status.Level, status.Permission)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go console(ctx, eng, log)

	<-sigCh
	log.Infof("Shutting down")

	// The closing sweep runs before teardown, mirroring the page
	// lifecycle on a real device.
	if err := eng.HandleLifecycle(ctx, lifecycle.PageHideEvent{}); err != nil {
		log.Warnf("Closing sweep failed: %v", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(), 10*time.Second,
	)
	defer shutdownCancel()

	return eng.Stop(shutdownCtx)
}

// loadTasks reads the task list from a JSON file.
func loadTasks(path string) ([]task.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks: %w", err)
	}

	var tasks []task.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parse tasks: %w", err)
	}

	return tasks, nil
}

// console reads simulator commands from stdin: lifecycle events, sync, test
// notifications and status.
func console(ctx context.Context, eng *engine.Engine,
	log btclogv2.Logger) {

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch {
		case line == "hide":
			err = eng.HandleLifecycle(
				ctx, lifecycle.VisibilityHiddenEvent{},
			)

		case line == "show":
			err = eng.HandleLifecycle(
				ctx, lifecycle.VisibilityVisibleEvent{},
			)

		case line == "pagehide":
			err = eng.HandleLifecycle(
				ctx, lifecycle.PageHideEvent{},
			)

		case line == "sync":
			err = eng.SyncTasks(ctx)

		case line == "test":
			eng.TestNotification(ctx, "Test notification",
				"Delivery path check")

		case line == "status":
			s := eng.Status(ctx)
			log.Infof("strategy=%s level=%s permission=%s "+
				"lifecycle=%s running=%v lastCheck=%s",
				s.Strategy, s.Level, s.Permission,
				s.Lifecycle, s.SchedulerRunning,
				s.LastCheck.Format(time.TimeOnly))

		case strings.HasPrefix(line, "click "):
			eng.Click(ctx, strings.TrimPrefix(line, "click "))

		case line == "":

		default:
			log.Warnf("Unknown command %q", line)
		}

		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warnf("Command %q failed: %v", line, err)
		}
	}
}
