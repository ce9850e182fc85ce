// Package engine wires the foreground polling scheduler and the background
// pending-task context into the notification delivery engine. The two
// contexts communicate only through the typed, fire-and-forget protocol
// defined here; every handler is idempotent because delivery of any single
// message is not guaranteed.
package engine

import (
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/baselib/actor"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/lifecycle"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
)

// BackgroundMsg is the sealed interface for messages sent to the background
// context.
type BackgroundMsg interface {
	actor.Message
	isBackgroundMsg()
}

// Ack is the empty response type of the background behavior. The protocol is
// one-directional; nothing ever waits on it.
type Ack struct{}

// baseMessage stamps every protocol message with the sender's clock, for
// log correlation across contexts.
type baseMessage struct {
	actor.BaseMessage

	// SentAt is the sender's clock in epoch milliseconds.
	SentAt int64
}

func stamped() baseMessage {
	return baseMessage{SentAt: time.Now().UnixMilli()}
}

// AppForeground announces that the foreground context became active again.
type AppForeground struct {
	baseMessage

	State lifecycle.ContextState
}

// AppBackground announces that the foreground context was hidden or blurred.
type AppBackground struct {
	baseMessage

	State lifecycle.ContextState
}

// PageHide announces the pre-eviction signal. The receiver runs a forced
// wide-window pending check.
type PageHide struct {
	baseMessage

	State lifecycle.ContextState
}

// CheckPendingTasks asks the background context to sweep its pending-task
// cache now.
type CheckPendingTasks struct {
	baseMessage

	// IsClosing widens the eligibility window to the closing threshold.
	IsClosing bool
}

// SyncRequest replaces the background context's pending-task cache with a
// fresh snapshot. Replacement is wholesale, never a merge, so a stale cache
// cannot resurrect deleted tasks.
type SyncRequest struct {
	baseMessage

	Tasks []task.Pending
}

// UpdateSettings forwards a new policy snapshot. Stale versions are ignored
// by the receiver.
type UpdateSettings struct {
	baseMessage

	Snapshot policy.Snapshot
}

// RegisterNotificationState forwards fresh device signals and the permission
// state, since the background context cannot introspect the device itself.
type RegisterNotificationState struct {
	baseMessage

	Signals           platform.Signals
	PermissionGranted bool
}

// TestNotification asks for an immediate notification that bypasses
// scheduling but not the permission gate.
type TestNotification struct {
	baseMessage

	Title string
	Body  string
}

// NotificationClicked reports a click on a presented notification, for
// routing to the task view.
type NotificationClicked struct {
	baseMessage

	TaskID string
}

func (AppForeground) isBackgroundMsg()             {}
func (AppBackground) isBackgroundMsg()             {}
func (PageHide) isBackgroundMsg()                  {}
func (CheckPendingTasks) isBackgroundMsg()         {}
func (SyncRequest) isBackgroundMsg()               {}
func (UpdateSettings) isBackgroundMsg()            {}
func (RegisterNotificationState) isBackgroundMsg() {}
func (TestNotification) isBackgroundMsg()          {}
func (NotificationClicked) isBackgroundMsg()       {}

// MessageType implements actor.Message with the wire-level protocol names.
func (AppForeground) MessageType() string     { return "APP_FOREGROUND" }
func (AppBackground) MessageType() string     { return "APP_BACKGROUND" }
func (PageHide) MessageType() string          { return "PAGE_HIDE" }
func (CheckPendingTasks) MessageType() string { return "CHECK_PENDING_TASKS" }
func (SyncRequest) MessageType() string       { return "SYNC_REQUEST" }
func (UpdateSettings) MessageType() string    { return "UPDATE_SETTINGS" }

// MessageType implements actor.Message.
func (RegisterNotificationState) MessageType() string {
	return "REGISTER_NOTIFICATION_STATE"
}

// MessageType implements actor.Message.
func (TestNotification) MessageType() string { return "TEST_NOTIFICATION" }

// MessageType implements actor.Message.
func (NotificationClicked) MessageType() string {
	return "NOTIFICATION_CLICKED"
}
