package playback

import (
	"math"
	"time"
)

// Speed bounds, in time units per second.
const (
	MinSpeed     = 0.25
	MaxSpeed     = 4.0
	DefaultSpeed = 2.0
)

// ClampSpeed forces s into [MinSpeed, MaxSpeed]. Out-of-range values are
// clamped, never rejected.
func ClampSpeed(s float64) float64 {
	switch {
	case math.IsNaN(s):
		return DefaultSpeed
	case s < MinSpeed:
		return MinSpeed
	case s > MaxSpeed:
		return MaxSpeed
	default:
		return s
	}
}

// ResolveSpeed picks the effective speed for a session: an active group
// override wins, then a non-zero session speed, then DefaultSpeed. Zero
// (and NaN) means "defer", never a zero-length interval.
func ResolveSpeed(session float64, override *SpeedOverride) float64 {
	if v, ok := override.Get(); ok {
		return ClampSpeed(v)
	}
	if session == 0 || math.IsNaN(session) {
		return DefaultSpeed
	}
	return ClampSpeed(session)
}

// Interval converts a speed into the tick period (1000/speed ms).
func Interval(speed float64) time.Duration {
	return time.Duration(float64(time.Second) / ClampSpeed(speed))
}

// SpeedOverride is the group speed shared by a Group and its engines.
// The zero value is inactive. Owned by the event loop like everything else.
type SpeedOverride struct {
	value  float64
	active bool
}

// Set activates the override with a clamped value.
func (o *SpeedOverride) Set(v float64) {
	o.value = ClampSpeed(v)
	o.active = true
}

// Clear deactivates the override.
func (o *SpeedOverride) Clear() {
	o.value, o.active = 0, false
}

// Get returns the override and whether it is active. Safe on nil.
func (o *SpeedOverride) Get() (float64, bool) {
	if o == nil || !o.active {
		return 0, false
	}
	return o.value, true
}
