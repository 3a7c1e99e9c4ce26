package rules

import (
	"fmt"
	"regexp"

	"mailtriage/internal/model"
)

// VIPDef is the raw form of a VIP sender entry as it appears in
// configuration, keyed by a human-readable name.
type VIPDef struct {
	Pattern       string `yaml:"pattern"`
	Tier          int    `yaml:"tier"`
	Star          bool   `yaml:"star"`
	LabelOverride string `yaml:"label_override"`
	Note          string `yaml:"note"`
}

// VIPEntry is a compiled sender override. A matching sender always gets
// the entry's tier and star; the label is forced only when LabelOverride
// is set, otherwise normal rule evaluation still picks the label.
type VIPEntry struct {
	Key           string
	Tier          int
	Star          bool
	LabelOverride string
	Note          string
	pattern       *regexp.Regexp
}

// NamedVIPDef pairs a VIP definition with its configuration key, in the
// order the configuration declared it.
type NamedVIPDef struct {
	Name string
	Def  VIPDef
}

// Registry is an immutable set of VIP entries, checked before rule
// evaluation. Entries are kept in declaration order; the first match
// wins, so overlapping patterns resolve the same way on every run.
type Registry struct {
	entries []*VIPEntry
}

// NewRegistry compiles VIP definitions in the given order. Invalid
// patterns, tiers or duplicate names fail here, at load time.
func NewRegistry(defs []NamedVIPDef) (*Registry, error) {
	reg := &Registry{}
	seen := make(map[string]bool, len(defs))
	for _, nd := range defs {
		if seen[nd.Name] {
			return nil, fmt.Errorf("duplicate vip entry %q", nd.Name)
		}
		seen[nd.Name] = true
		entry, err := compileVIP(nd.Name, nd.Def)
		if err != nil {
			return nil, err
		}
		reg.entries = append(reg.entries, entry)
	}
	return reg, nil
}

func compileVIP(key string, def VIPDef) (*VIPEntry, error) {
	if def.Pattern == "" {
		return nil, fmt.Errorf("vip %q has no pattern", key)
	}
	tier := def.Tier
	if tier == 0 {
		tier = model.TierCritical
	}
	if err := model.CheckTier(tier); err != nil {
		return nil, fmt.Errorf("vip %q: %w", key, err)
	}
	re, err := regexp.Compile("(?i)" + def.Pattern)
	if err != nil {
		return nil, fmt.Errorf("vip %q: invalid pattern %q: %w", key, def.Pattern, err)
	}
	return &VIPEntry{
		Key:           key,
		Tier:          tier,
		Star:          def.Star,
		LabelOverride: def.LabelOverride,
		Note:          def.Note,
		pattern:       re,
	}, nil
}

// Match returns the first entry whose pattern matches the sender, or nil.
func (r *Registry) Match(sender string) *VIPEntry {
	if r == nil {
		return nil
	}
	for _, e := range r.entries {
		if e.pattern.MatchString(sender) {
			return e
		}
	}
	return nil
}

// Len returns the number of entries in the registry.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
