package model

import "fmt"

// Tier is one of four fixed urgency levels. 1 is the most urgent.
// Tiers are a closed, total order; they are never created at runtime.
const (
	TierCritical  = 1
	TierImportant = 2
	TierDelegate  = 3
	TierReference = 4

	MinTier = TierCritical
	MaxTier = TierReference
)

// TierConfig describes how messages of a tier are routed: whether they
// stay in the inbox, whether they are starred, the destination folder
// suffix, and the display color for providers with color categories.
type TierConfig struct {
	Tier        int    `yaml:"tier"`
	Name        string `yaml:"name"`
	KeepInInbox bool   `yaml:"keep_in_inbox"`
	Star        bool   `yaml:"star"`
	Folder      string `yaml:"folder"`
	Color       string `yaml:"color"`
}

// DefaultTiers returns the fixed four-tier table. Config may override
// routing attributes per tier but never add or remove tiers.
func DefaultTiers() map[int]TierConfig {
	return map[int]TierConfig{
		TierCritical:  {Tier: 1, Name: "Critical", KeepInInbox: true, Star: true, Folder: "", Color: "red"},
		TierImportant: {Tier: 2, Name: "Important", KeepInInbox: true, Star: false, Folder: "", Color: "orange"},
		TierDelegate:  {Tier: 3, Name: "Delegate", KeepInInbox: false, Star: false, Folder: "Triage/Delegate", Color: "yellow"},
		TierReference: {Tier: 4, Name: "Reference", KeepInInbox: false, Star: false, Folder: "Triage/Reference", Color: "gray"},
	}
}

// ValidTier reports whether t is within the fixed 1..4 range.
func ValidTier(t int) bool {
	return t >= MinTier && t <= MaxTier
}

// CheckTier returns an error naming the offending value when t is outside
// the fixed range.
func CheckTier(t int) error {
	if !ValidTier(t) {
		return fmt.Errorf("tier %d out of range [%d..%d]", t, MinTier, MaxTier)
	}
	return nil
}
