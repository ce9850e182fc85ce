package platform

import "errors"

// The delivery failure taxonomy. Every failure surfaced out of the platform
// layer maps to one of these so callers can branch on semantics instead of
// message text.
var (
	// ErrPermissionDenied means the user denied notification permission.
	// Not retryable without user action.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrUnsupportedPlatform means the capability does not exist on this
	// device or OS version. Triggers strategy fallback.
	ErrUnsupportedPlatform = errors.New("platform unsupported")

	// ErrRegistrationFailed means a strategy failed transiently while
	// registering. Retryable.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrPresentationFailed means the notification could not be shown.
	// Callers fall back to an alternate presentation path.
	ErrPresentationFailed = errors.New("presentation failed")

	// ErrStoreUnavailable means the durable store cannot be reached.
	// Callers degrade to a less durable store rather than crash.
	ErrStoreUnavailable = errors.New("durable store unavailable")

	// ErrDeliveryUnknown means a cross-context message may or may not
	// have arrived. Senders treat this as normal, since the protocol is
	// fire-and-forget and handlers are idempotent.
	ErrDeliveryUnknown = errors.New("message delivery unknown")
)
