package engine

import (
	"context"
	"time"

	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/db"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/platform"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/policy"
	"github.com/MarioPais590/organizador-de-tarefas-sub000/internal/task"
	"github.com/google/uuid"
)

// defaultReminderBody is shown when a task has no description.
const defaultReminderBody = "Task reminder"

// newNotificationID mints the per-presentation identifier.
func newNotificationID() string {
	return uuid.NewString()
}

// newReminderNotification builds the notification for one task reminder.
// The tag collapses repeats for the same task into a single visible
// notification.
func newReminderNotification(tk task.Task,
	pol policy.Policy) platform.Notification {

	body := tk.Description
	if body == "" {
		body = defaultReminderBody
	}

	return platform.Notification{
		ID:       uuid.NewString(),
		TaskID:   tk.ID,
		Title:    tk.Title,
		Body:     body,
		Tag:      "task-" + tk.ID,
		Silent:   !pol.WithSound,
		ClickURL: "/task/" + tk.ID,
	}
}

// pendingNotification builds the notification for a cached pending entry in
// the background context.
func pendingNotification(p task.Pending, silent bool) platform.Notification {
	body := p.Description
	if body == "" {
		body = defaultReminderBody
	}

	return platform.Notification{
		ID:       uuid.NewString(),
		TaskID:   p.ID,
		Title:    p.Title,
		Body:     body,
		Tag:      "task-" + p.ID,
		Silent:   silent,
		ClickURL: "/task/" + p.ID,
	}
}

// diagRecord is the per-notification diagnostics entry, pruned on the same
// retention sweep as delivery records.
type diagRecord struct {
	TaskID  string `json:"taskId"`
	Context string `json:"context"`
	Title   string `json:"title"`
	FiredAt int64  `json:"firedAt"`
}

// recordDiagnostics writes the notification-<id> diagnostics entry. Best
// effort; diagnostics never block delivery.
func recordDiagnostics(ctx context.Context, kv *db.KVStore,
	n platform.Notification, source string) {

	if kv == nil {
		return
	}

	err := kv.Put(ctx, db.NSNotifications, "notification-"+n.ID,
		diagRecord{
			TaskID:  n.TaskID,
			Context: source,
			Title:   n.Title,
			FiredAt: time.Now().UnixMilli(),
		},
	)
	if err != nil {
		log.DebugS(ctx, "Failed to write notification diagnostics",
			"id", n.ID, "err", err)
	}
}
