// Package policy holds the user's notification settings and their durable
// persistence. The scheduler reads the policy fresh on every check cycle so
// a settings change takes effect on the next tick without a restart.
package policy

import (
	"context"
	"fmt"
	"time"
)

// Unit is the lead-time unit.
type Unit string

const (
	// UnitMinutes expresses the lead time in minutes.
	UnitMinutes Unit = "minutes"

	// UnitHours expresses the lead time in hours.
	UnitHours Unit = "hours"
)

// Lead-time value bounds per unit. The settings surface enforces these on
// input; Validate re-checks them on load so a corrupted record cannot
// produce a degenerate schedule.
const (
	MaxLeadMinutes = 60
	MaxLeadHours   = 24
)

// LeadTime is how far in advance of a task's scheduled moment a reminder
// fires.
type LeadTime struct {
	// Value is the magnitude, at least 1.
	Value int `json:"value"`

	// Unit scales Value.
	Unit Unit `json:"unit"`
}

// Duration converts the lead time to a single duration. All scheduling math
// works in durations; the value/unit pair exists only at the settings
// boundary.
func (l LeadTime) Duration() time.Duration {
	switch l.Unit {
	case UnitHours:
		return time.Duration(l.Value) * time.Hour
	default:
		return time.Duration(l.Value) * time.Minute
	}
}

// Validate checks the value against the unit's bounds.
func (l LeadTime) Validate() error {
	switch l.Unit {
	case UnitMinutes:
		if l.Value < 1 || l.Value > MaxLeadMinutes {
			return fmt.Errorf("lead time %d minutes out of "+
				"range [1, %d]", l.Value, MaxLeadMinutes)
		}

	case UnitHours:
		if l.Value < 1 || l.Value > MaxLeadHours {
			return fmt.Errorf("lead time %d hours out of "+
				"range [1, %d]", l.Value, MaxLeadHours)
		}

	default:
		return fmt.Errorf("unknown lead time unit %q", l.Unit)
	}

	return nil
}

// Policy is the global notification policy.
type Policy struct {
	// Enabled is the global kill switch. When false the scheduler ticks
	// are no-ops.
	Enabled bool `json:"enabled"`

	// WithSound plays an audible cue alongside the notification.
	WithSound bool `json:"withSound"`

	// Lead is how far ahead of the scheduled moment reminders fire.
	Lead LeadTime `json:"leadTime"`
}

// DefaultPolicy returns the policy used before the user has ever touched
// settings.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:   true,
		WithSound: true,
		Lead:      LeadTime{Value: 30, Unit: UnitMinutes},
	}
}

// Provider supplies the current policy. The scheduler calls it once per
// tick and never caches the result across ticks.
type Provider interface {
	// Current returns the latest policy.
	Current(ctx context.Context) (Policy, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Policy, error)

// Current implements Provider.
func (f ProviderFunc) Current(ctx context.Context) (Policy, error) {
	return f(ctx)
}
