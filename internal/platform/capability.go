package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// PermissionState is the user's notification permission.
type PermissionState string

const (
	// PermissionDefault means the user has not been asked yet.
	PermissionDefault PermissionState = "default"

	// PermissionGranted means notifications may be presented.
	PermissionGranted PermissionState = "granted"

	// PermissionDenied means the user refused. The engine never asks
	// again; only user action in system settings can change this.
	PermissionDenied PermissionState = "denied"
)

// PermissionAPI exposes the platform's notification permission.
type PermissionAPI interface {
	// State returns the current permission without prompting.
	State(ctx context.Context) (PermissionState, error)

	// Request prompts the user if the state is default. It returns the
	// resulting state; a denied state is a state, not an error.
	Request(ctx context.Context) (PermissionState, error)
}

// Notification is one system notification to present.
type Notification struct {
	// ID uniquely identifies this presentation, used for the
	// diagnostics record.
	ID string

	// TaskID is the task the reminder belongs to. Empty for test
	// notifications.
	TaskID string

	// Title is the notification headline.
	Title string

	// Body is the notification body text.
	Body string

	// Tag collapses repeated notifications with the same tag into one.
	Tag string

	// Silent suppresses the audible cue regardless of policy.
	Silent bool

	// ClickURL is where a click should navigate, such as /task/<id>.
	ClickURL string
}

// Presenter shows system notifications.
type Presenter interface {
	// Present shows the notification. A failure maps to
	// ErrPresentationFailed.
	Present(ctx context.Context, n Notification) error
}

// FallbackPresenter tries the primary presenter and falls back to the
// alternate when presentation fails. The restricted platforms need this
// because the foreground presentation API and the background one fail in
// different states.
type FallbackPresenter struct {
	Primary   Presenter
	Alternate Presenter
}

// Present implements Presenter.
func (f *FallbackPresenter) Present(ctx context.Context,
	n Notification) error {

	err := f.Primary.Present(ctx, n)
	if err == nil {
		return nil
	}

	log.DebugS(ctx, "Primary presenter failed, trying alternate",
		"id", n.ID, "err", err)

	if altErr := f.Alternate.Present(ctx, n); altErr != nil {
		return fmt.Errorf("%w: primary %v, alternate %v",
			ErrPresentationFailed, err, altErr)
	}

	return nil
}

// AudibleCue plays the reminder sound when the policy asks for one.
type AudibleCue interface {
	// Play plays the cue. Failures are logged, never fatal.
	Play(ctx context.Context) error
}

// Subscription is an established push subscription handle.
type Subscription struct {
	// Endpoint is the transport endpoint messages are delivered
	// through.
	Endpoint string `json:"endpoint"`

	// Token authenticates the subscription with the push service.
	Token string `json:"token"`

	// CreatedAt is the subscription time in epoch milliseconds.
	CreatedAt int64 `json:"createdAt"`
}

// PushService establishes and tears down push subscriptions.
type PushService interface {
	// Subscribe establishes a new subscription, prompting if needed.
	Subscribe(ctx context.Context) (Subscription, error)

	// Current returns the existing subscription, if any, without side
	// effects.
	Current(ctx context.Context) (fn.Option[Subscription], error)

	// Unsubscribe tears down the current subscription. A no-op when
	// none exists.
	Unsubscribe(ctx context.Context) error
}

// PeriodicWaker schedules platform-managed background wake-ups. The platform
// controls the actual cadence; the interval is a request, not a guarantee.
type PeriodicWaker interface {
	// Supported reports whether the platform offers periodic wake-ups
	// at all.
	Supported() bool

	// Register asks for wake-ups at roughly the given interval. The
	// wake callback runs on every platform wake-up and drives the
	// pending-task check.
	Register(ctx context.Context, interval time.Duration,
		wake func()) error

	// Unregister cancels the wake-up request.
	Unregister(ctx context.Context) error
}

// Connectivity reports network reachability. Regaining connectivity triggers
// an out-of-band pending check because timers may have been suspended while
// offline.
type Connectivity interface {
	// Online reports current reachability.
	Online() bool

	// OnOnline registers a callback for offline-to-online transitions.
	OnOnline(cb func())
}
