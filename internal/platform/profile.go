// Package platform classifies the device, defines the capability primitives
// notification delivery is built on, and selects a registration strategy
// from a ranked list.
package platform

import (
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// Platform is the coarse device class. It drives strategy selection and
// presentation tweaks.
type Platform string

const (
	// RestrictedMobile is the locked-down mobile class: background
	// execution is aggressively evicted and native push is gated on an
	// OS version threshold.
	RestrictedMobile Platform = "restrictedMobile"

	// OpenMobile is the permissive mobile class with standard push
	// support.
	OpenMobile Platform = "openMobile"

	// Desktop is everything else.
	Desktop Platform = "desktop"
)

// NativePushMinOSVersion is the minimum restricted-mobile OS version with
// native push subscription support.
const NativePushMinOSVersion = 16.4

// Signals are the raw environment observations a profile is derived from.
// Only the foreground context can gather them; it forwards them to the
// background context, which cannot introspect the device.
type Signals struct {
	// UserAgent is the environment's user-agent string.
	UserAgent string

	// TouchPoints is the number of touch contact points, zero on
	// non-touch devices.
	TouchPoints int

	// Standalone reports whether the app runs installed standalone
	// rather than inside a browsing session.
	Standalone bool

	// OSVersion is the parsed OS version when it could be extracted.
	// Absence means the version predates reliable reporting, which is
	// old enough to rule out native push.
	OSVersion fn.Option[float64]
}

// DeviceProfile is the derived device classification. It is computed per
// context startup and recomputed when fresh Signals arrive.
type DeviceProfile struct {
	// Platform is the coarse device class.
	Platform Platform

	// InstalledStandalone mirrors Signals.Standalone.
	InstalledStandalone bool

	// OSVersion carries the restricted-mobile OS version when known.
	OSVersion fn.Option[float64]
}

// Detect derives the device profile from environment signals. Restricted
// mobile is matched first, including tablets that masquerade as desktop but
// expose touch points.
func Detect(sig Signals) DeviceProfile {
	ua := strings.ToLower(sig.UserAgent)

	var p Platform
	switch {
	case strings.Contains(ua, "iphone"),
		strings.Contains(ua, "ipad"),
		strings.Contains(ua, "ipod"),
		strings.Contains(ua, "macintosh") && sig.TouchPoints > 1:

		p = RestrictedMobile

	case strings.Contains(ua, "android"):
		p = OpenMobile

	default:
		p = Desktop
	}

	return DeviceProfile{
		Platform:            p,
		InstalledStandalone: sig.Standalone,
		OSVersion:           sig.OSVersion,
	}
}

// SupportsNativePush reports whether the native push subscription path is
// viable on this profile. On restricted mobile it requires both a new enough
// OS and a standalone install; elsewhere it is always available.
func (d DeviceProfile) SupportsNativePush() bool {
	if d.Platform != RestrictedMobile {
		return true
	}

	if !d.InstalledStandalone {
		return false
	}

	return d.OSVersion.UnwrapOr(0) >= NativePushMinOSVersion
}
