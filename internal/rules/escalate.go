package rules

import (
	"time"

	"mailtriage/internal/model"
)

// Default age thresholds for tier promotion.
const (
	DefaultYoungThreshold = 24 * time.Hour
	DefaultOldThreshold   = 72 * time.Hour
)

// Escalator promotes a classified result's tier based on message age.
// Promotion only ever moves the tier upward (toward 1); tier 1 is a fixed
// point, and applying the escalator twice with the same age is a no-op
// beyond the first application.
type Escalator struct {
	// Young is the age below which nothing escalates.
	Young time.Duration
	// Old is the age at which everything below tier 1 escalates to tier 1,
	// time-sensitive or not.
	Old time.Duration
}

// NewEscalator returns an escalator with the given thresholds; zero values
// fall back to the 24h/72h defaults.
func NewEscalator(young, old time.Duration) *Escalator {
	if young <= 0 {
		young = DefaultYoungThreshold
	}
	if old <= 0 {
		old = DefaultOldThreshold
	}
	return &Escalator{Young: young, Old: old}
}

// Escalate returns the result with its tier promoted according to age.
//
//	age < Young:          unchanged
//	Young <= age < Old:   tiers 3 and 4 promote to 2, time-sensitive only
//	age >= Old:           tiers 2..4 promote to 1 unconditionally
func (e *Escalator) Escalate(res Result, age time.Duration) Result {
	if res.Tier <= model.TierCritical {
		return res
	}
	switch {
	case age >= e.Old:
		res.Tier = model.TierCritical
	case age >= e.Young:
		if res.TimeSensitive && res.Tier >= model.TierDelegate {
			res.Tier = model.TierImportant
		}
	}
	return res
}
