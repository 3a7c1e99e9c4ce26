package rules

import (
	"fmt"
	"regexp"
	"sort"

	"mailtriage/internal/model"
)

// CatchAllPriority is the priority reserved for the catch-all rule. No
// configured rule may use it for anything else.
const CatchAllPriority = 999

// RuleDef is the raw, uncompiled form of a category rule as it appears in
// configuration. Patterns are case-insensitive regular expressions matched
// against the combined sender+subject text.
type RuleDef struct {
	Label         string   `yaml:"label"`
	Patterns      []string `yaml:"patterns"`
	Priority      int      `yaml:"priority"`
	Tier          int      `yaml:"tier"`
	TimeSensitive bool     `yaml:"time_sensitive"`
}

// Rule is a compiled category rule. Immutable after table construction.
type Rule struct {
	Label         string
	Priority      int
	Tier          int
	TimeSensitive bool
	patterns      []*regexp.Regexp
}

// Matches reports whether any of the rule's patterns matches text.
func (r *Rule) Matches(text string) bool {
	for _, p := range r.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Table is an ordered, immutable set of compiled rules. Rules are kept in
// ascending priority order with declaration order breaking ties, so lookup
// is a single first-match scan.
type Table struct {
	rules    []*Rule
	catchAll *Rule
}

// NewTable compiles and validates rule definitions. All pattern syntax
// errors, duplicate labels and catch-all violations surface here, at load
// time, never per message.
func NewTable(defs []RuleDef) (*Table, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("rule table is empty")
	}

	seen := make(map[string]int, len(defs))
	rules := make([]*Rule, 0, len(defs))
	for _, def := range defs {
		if def.Label == "" {
			return nil, fmt.Errorf("rule with empty label")
		}
		if prev, ok := seen[def.Label]; ok {
			// The same label may appear once; a duplicate is a config error
			// because the two priorities would conflict.
			return nil, fmt.Errorf("duplicate rule label %q (priorities %d and %d)", def.Label, prev, def.Priority)
		}
		seen[def.Label] = def.Priority
		if err := model.CheckTier(def.Tier); err != nil {
			return nil, fmt.Errorf("rule %q: %w", def.Label, err)
		}
		if len(def.Patterns) == 0 {
			return nil, fmt.Errorf("rule %q has no patterns", def.Label)
		}

		r := &Rule{
			Label:         def.Label,
			Priority:      def.Priority,
			Tier:          def.Tier,
			TimeSensitive: def.TimeSensitive,
		}
		for _, pat := range def.Patterns {
			re, err := regexp.Compile("(?i)" + pat)
			if err != nil {
				return nil, fmt.Errorf("rule %q: invalid pattern %q: %w", def.Label, pat, err)
			}
			r.patterns = append(r.patterns, re)
		}
		rules = append(rules, r)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return rules[i].Priority < rules[j].Priority
	})

	t := &Table{rules: rules}
	if err := t.validateCatchAll(); err != nil {
		return nil, err
	}
	return t, nil
}

// validateCatchAll enforces that exactly one rule always matches and that
// it carries the strictly largest priority in the table.
func (t *Table) validateCatchAll() error {
	// A rule that matches the bare separator matches every comparison
	// string, since every comparison string contains the separator.
	var all []*Rule
	for _, r := range t.rules {
		if r.Matches(comparisonText("", "")) {
			all = append(all, r)
		}
	}
	switch len(all) {
	case 0:
		return fmt.Errorf("rule table has no catch-all rule")
	case 1:
	default:
		labels := make([]string, len(all))
		for i, r := range all {
			labels[i] = r.Label
		}
		return fmt.Errorf("rule table has multiple catch-all rules: %v", labels)
	}

	catchAll := all[0]
	for _, r := range t.rules {
		if r != catchAll && r.Priority >= catchAll.Priority {
			return fmt.Errorf("rule %q has priority %d >= catch-all %q (%d)",
				r.Label, r.Priority, catchAll.Label, catchAll.Priority)
		}
	}
	t.catchAll = catchAll
	return nil
}

// Match returns the first rule, in ascending priority order, with at least
// one pattern matching text. The catch-all guarantees a non-nil result.
func (t *Table) Match(text string) *Rule {
	for _, r := range t.rules {
		if r.Matches(text) {
			return r
		}
	}
	// Unreachable once validateCatchAll has passed; kept as a hard
	// fallback so Match never returns nil.
	return t.catchAll
}

// CatchAll returns the table's catch-all rule.
func (t *Table) CatchAll() *Rule { return t.catchAll }

// Len returns the number of rules in the table.
func (t *Table) Len() int { return len(t.rules) }

// Labels returns all rule labels in evaluation order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.rules))
	for i, r := range t.rules {
		out[i] = r.Label
	}
	return out
}

// MergeDefs overlays custom definitions onto base ones: a custom def with
// an existing label replaces it in place, a new label is appended.
func MergeDefs(base, custom []RuleDef) []RuleDef {
	if len(custom) == 0 {
		return base
	}
	merged := make([]RuleDef, len(base))
	copy(merged, base)
	index := make(map[string]int, len(merged))
	for i, d := range merged {
		index[d.Label] = i
	}
	for _, d := range custom {
		if i, ok := index[d.Label]; ok {
			merged[i] = d
		} else {
			index[d.Label] = len(merged)
			merged = append(merged, d)
		}
	}
	return merged
}
