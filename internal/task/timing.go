package task

import "time"

const (
	// DefaultMinTolerance is the floor of the eligibility window. A
	// 1-second tick needs at least this much slack to never straddle a
	// fire instant.
	DefaultMinTolerance = 500 * time.Millisecond

	// DefaultToleranceRatio widens the window proportionally to the lead
	// time so long leads absorb timer throttling.
	DefaultToleranceRatio = 0.05

	// DefaultClosingWindow is the wide eligibility window used for the
	// forced check when the foreground context is about to be evicted.
	DefaultClosingWindow = 30 * time.Minute
)

// Tolerance computes the eligibility window for a lead time as
// max(minTolerance, ratio*lead). Both knobs are configurable because the
// constants are empirical, tuned to the platform's timer granularity.
func Tolerance(lead, minTolerance time.Duration, ratio float64) time.Duration {
	tol := time.Duration(float64(lead) * ratio)
	if tol < minTolerance {
		return minTolerance
	}

	return tol
}

// FireAt returns the instant a reminder should be presented for a task due
// at the given moment.
func FireAt(due time.Time, lead time.Duration) time.Time {
	return due.Add(-lead)
}

// Eligible reports whether a reminder should fire now. The fire instant must
// still be ahead of now (never remind after the fact) and within the
// tolerance window.
func Eligible(now, fireAt time.Time, tolerance time.Duration) bool {
	delta := fireAt.Sub(now)

	return delta > 0 && delta <= tolerance
}

// EligibleClosing reports whether a reminder should fire during the forced
// pre-eviction check: anything due to fire within the closing window counts,
// not just the exact lead-time instant.
func EligibleClosing(now, fireAt time.Time, window time.Duration) bool {
	delta := fireAt.Sub(now)

	return delta > 0 && delta <= window
}
