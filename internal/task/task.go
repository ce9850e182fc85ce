// Package task defines the read-only task model the delivery engine consumes
// and the fire-time arithmetic derived from it. Tasks are owned by an
// external collaborator; the engine never mutates them.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// DateLayout is the calendar-date encoding of ScheduledDate.
	DateLayout = "2006-01-02"

	// TimeLayout is the time-of-day encoding of ScheduledTime.
	TimeLayout = "15:04"

	// timeLayoutSeconds is accepted on input for callers that include
	// seconds.
	timeLayoutSeconds = "15:04:05"
)

// Task is a single schedulable item. The shape mirrors the upstream task
// collaborator's JSON payload, so unknown fields round-trip through Raw
// snapshots untouched.
type Task struct {
	// ID is the stable unique identifier.
	ID string `json:"id"`

	// Title is the user-visible task title.
	Title string `json:"title"`

	// Description is an optional longer body.
	Description string `json:"description,omitempty"`

	// ScheduledDate is the calendar date, in DateLayout.
	ScheduledDate string `json:"scheduledDate"`

	// ScheduledTime is the optional time of day, in TimeLayout. Empty
	// means all day, which schedules at midnight.
	ScheduledTime string `json:"scheduledTime,omitempty"`

	// Completed marks the task done. Completed tasks never fire.
	Completed bool `json:"completed"`

	// NotifyEnabled is the per-task opt-out. A nil pointer means the
	// field was absent from the payload and is treated as true for
	// backward compatibility.
	NotifyEnabled *bool `json:"notifyEnabled,omitempty"`
}

// Notifiable reports whether the task is a candidate for reminders at all:
// not completed and not explicitly opted out.
func (t *Task) Notifiable() bool {
	if t.Completed {
		return false
	}

	return t.NotifyEnabled == nil || *t.NotifyEnabled
}

// DueAt resolves the task's scheduled moment in the given location. A
// missing time of day defaults to midnight. An unparseable date is an error;
// the scheduler skips such tasks.
func (t *Task) DueAt(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}

	day, err := time.ParseInLocation(DateLayout, t.ScheduledDate, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("task %s: bad scheduled "+
			"date %q: %w", t.ID, t.ScheduledDate, err)
	}

	if t.ScheduledTime == "" {
		return day, nil
	}

	tod, err := time.ParseInLocation(TimeLayout, t.ScheduledTime, loc)
	if err != nil {
		tod, err = time.ParseInLocation(
			timeLayoutSeconds, t.ScheduledTime, loc,
		)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("task %s: bad scheduled "+
			"time %q: %w", t.ID, t.ScheduledTime, err)
	}

	return time.Date(
		day.Year(), day.Month(), day.Day(),
		tod.Hour(), tod.Minute(), tod.Second(), 0, loc,
	), nil
}

// Provider supplies the current task list. The foreground context queries it
// on every check cycle; implementations must be cheap to call once per tick.
type Provider interface {
	// ListTasks returns all known tasks, completed or not.
	ListTasks(ctx context.Context) ([]Task, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) ([]Task, error)

// ListTasks implements Provider.
func (f ProviderFunc) ListTasks(ctx context.Context) ([]Task, error) {
	return f(ctx)
}

// Pending is the background context's denormalized snapshot of one task still
// awaiting a reminder. It exists because the background context cannot query
// the task provider directly.
type Pending struct {
	// ID is the task id.
	ID string `json:"id"`

	// Title is the notification title.
	Title string `json:"title"`

	// Description is the notification body.
	Description string `json:"description,omitempty"`

	// NotifyTime is the reminder instant in epoch milliseconds,
	// scheduled moment minus lead time.
	NotifyTime int64 `json:"notifyTime"`

	// Raw is the original task payload, carried so a future foreground
	// context can reconstruct the task without a provider round trip.
	Raw json.RawMessage `json:"raw,omitempty"`
}

// NewPending builds the snapshot entry for a notifiable task. It returns an
// error for tasks with unparseable dates, which callers skip.
func NewPending(t Task, lead time.Duration,
	loc *time.Location) (Pending, error) {

	due, err := t.DueAt(loc)
	if err != nil {
		return Pending{}, err
	}

	raw, err := json.Marshal(t)
	if err != nil {
		return Pending{}, fmt.Errorf("task %s: encode: %w", t.ID, err)
	}

	return Pending{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		NotifyTime:  due.Add(-lead).UnixMilli(),
		Raw:         raw,
	}, nil
}
