package rules

import (
	"testing"
	"time"

	"mailtriage/internal/model"
)

func TestEscalate_Thresholds(t *testing.T) {
	e := NewEscalator(0, 0)

	cases := []struct {
		name          string
		tier          int
		timeSensitive bool
		age           time.Duration
		want          int
	}{
		{"fresh tier4 unchanged", 4, true, 2 * time.Hour, 4},
		{"fresh tier2 unchanged", 2, true, 23 * time.Hour, 2},
		{"aged tier4 time-sensitive promotes to 2", 4, true, 30 * time.Hour, 2},
		{"aged tier3 time-sensitive promotes to 2", 3, true, 30 * time.Hour, 2},
		{"aged tier4 not time-sensitive unchanged", 4, false, 30 * time.Hour, 4},
		{"aged tier2 unchanged below old threshold", 2, true, 30 * time.Hour, 2},
		{"old tier4 promotes to 1 unconditionally", 4, false, 80 * time.Hour, 1},
		{"old tier3 promotes to 1", 3, false, 80 * time.Hour, 1},
		{"old tier2 promotes to 1", 2, false, 72 * time.Hour, 1},
		{"tier1 fixed point regardless of age", 1, true, 500 * time.Hour, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Result{Tier: tc.tier, TimeSensitive: tc.timeSensitive}
			got := e.Escalate(res, tc.age)
			if got.Tier != tc.want {
				t.Errorf("Escalate(tier=%d, ts=%v, age=%v) tier = %d, want %d",
					tc.tier, tc.timeSensitive, tc.age, got.Tier, tc.want)
			}
		})
	}
}

func TestEscalate_Monotonic(t *testing.T) {
	e := NewEscalator(0, 0)
	ages := []time.Duration{0, 12 * time.Hour, 30 * time.Hour, 80 * time.Hour}

	for tier := model.MinTier; tier <= model.MaxTier; tier++ {
		for _, ts := range []bool{false, true} {
			for _, age := range ages {
				res := Result{Tier: tier, TimeSensitive: ts}
				got := e.Escalate(res, age)
				if got.Tier > tier {
					t.Errorf("tier increased numerically: %d -> %d (age %v)", tier, got.Tier, age)
				}
				if !model.ValidTier(got.Tier) {
					t.Errorf("escalated tier %d out of range", got.Tier)
				}
			}
		}
	}
}

func TestEscalate_Idempotent(t *testing.T) {
	e := NewEscalator(0, 0)
	ages := []time.Duration{0, 30 * time.Hour, 80 * time.Hour}

	for tier := model.MinTier; tier <= model.MaxTier; tier++ {
		for _, ts := range []bool{false, true} {
			for _, age := range ages {
				res := Result{Tier: tier, TimeSensitive: ts}
				once := e.Escalate(res, age)
				twice := e.Escalate(once, age)
				if once != twice {
					t.Errorf("not idempotent for tier=%d ts=%v age=%v: %+v vs %+v",
						tier, ts, age, once, twice)
				}
			}
		}
	}
}

func TestEscalate_OnlyTierChanges(t *testing.T) {
	e := NewEscalator(0, 0)
	res := Result{Label: "Shopping", Tier: 4, TimeSensitive: true, RulePriority: 10}
	got := e.Escalate(res, 80*time.Hour)
	if got.Label != res.Label || got.RulePriority != res.RulePriority || got.TimeSensitive != res.TimeSensitive {
		t.Errorf("escalation changed non-tier fields: %+v", got)
	}
}

func TestEscalate_CustomThresholds(t *testing.T) {
	e := NewEscalator(1*time.Hour, 4*time.Hour)
	res := Result{Tier: 4, TimeSensitive: true}

	if got := e.Escalate(res, 30*time.Minute); got.Tier != 4 {
		t.Errorf("tier = %d, want 4 below young threshold", got.Tier)
	}
	if got := e.Escalate(res, 2*time.Hour); got.Tier != 2 {
		t.Errorf("tier = %d, want 2 between thresholds", got.Tier)
	}
	if got := e.Escalate(res, 5*time.Hour); got.Tier != 1 {
		t.Errorf("tier = %d, want 1 past old threshold", got.Tier)
	}
}

func TestMessageAge_NormalizesZones(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	received := time.Date(2025, 6, 1, 17, 0, 0, 0, loc) // 12:00 UTC
	now := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	msg := &model.EmailMessage{ReceivedAt: received}
	if age := msg.Age(now); age != 24*time.Hour {
		t.Errorf("age = %v, want 24h", age)
	}
}
