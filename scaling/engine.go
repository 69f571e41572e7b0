package scaling

import (
	"math"
	"time"
)

// Decision is the outcome of evaluating a policy against the current capacity.
type Decision int

const (
	Applied Decision = iota
	SkippedOutOfBounds
	SkippedNoChange
	SkippedCooldown
)

func (d Decision) String() string {
	switch d {
	case Applied:
		return "applied"
	case SkippedOutOfBounds:
		return "skipped_out_of_bounds"
	case SkippedNoChange:
		return "skipped_no_change"
	case SkippedCooldown:
		return "skipped_cooldown"
	}
	return "unknown"
}

// Event describes one scaling evaluation triggered by an alarm.
type Event struct {
	AlarmName        string
	ServiceName      string
	CurrentCapacity  int
	ProposedCapacity int
	Decision         Decision

	// CooldownRemaining is set when Decision is SkippedCooldown.
	CooldownRemaining time.Duration
}

// ClampIncrement raises the magnitude of a fractional non-zero increment to one
// in the direction of its sign. Values with magnitude >= 1 and zero are returned
// unchanged, so applying it more than once has no further effect.
func ClampIncrement(increment float64) float64 {
	switch {
	case increment > 0 && increment < 1:
		return 1
	case increment < 0 && increment > -1:
		return -1
	}
	return increment
}

// ProposeCapacity computes the step-scaled capacity for current, bounded by the policy.
func ProposeCapacity(p Policy, current int) int {
	increment := ClampIncrement(float64(current) * float64(p.ScalePercent) / 100)
	// Bounded in float64 so a huge increment cannot overflow the int conversion.
	proposed := math.Round(float64(current) + increment)
	if proposed > float64(p.MaxTasks) {
		return p.MaxTasks
	}
	if proposed < float64(p.MinTasks) {
		return p.MinTasks
	}
	return int(proposed)
}

// Decide evaluates the policy for an alarm. lastScaling is the time of the
// previous successful scaling for alarmName, or the zero time when there is none.
func Decide(p Policy, alarmName string, current int, lastScaling, now time.Time) Event {
	e := Event{
		AlarmName:        alarmName,
		ServiceName:      p.ServiceName,
		CurrentCapacity:  current,
		ProposedCapacity: ProposeCapacity(p, current),
	}

	elapsed := now.Sub(lastScaling)
	switch {
	case e.ProposedCapacity < p.MinTasks || e.ProposedCapacity > p.MaxTasks:
		e.Decision = SkippedOutOfBounds
	case e.ProposedCapacity == current:
		e.Decision = SkippedNoChange
	case !lastScaling.IsZero() && elapsed.Seconds() < float64(p.CooldownSeconds):
		e.Decision = SkippedCooldown
		e.CooldownRemaining = time.Duration((float64(p.CooldownSeconds) - elapsed.Seconds()) * float64(time.Second))
	default:
		e.Decision = Applied
	}
	return e
}
