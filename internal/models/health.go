package models

import "time"

// HealthState is the binary availability signal owned by the health
// monitor. It has exactly one writer; everything else reads it through
// the monitor's accessors.
type HealthState int

const (
	HealthUnknown HealthState = iota
	HealthAvailable
	HealthUnavailable
)

func (s HealthState) String() string {
	switch s {
	case HealthAvailable:
		return "available"
	case HealthUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// HealthTransition is emitted only on an actual state change.
type HealthTransition struct {
	From HealthState
	To   HealthState
	At   time.Time
}

// Recovered reports whether this transition should trigger a queue drain.
func (t HealthTransition) Recovered() bool {
	return t.To == HealthAvailable && t.From != HealthAvailable
}
