package rules

import "strings"

// comparisonSeparator joins sender and subject into one comparison string.
// A newline can never occur inside a header value, so patterns cannot
// accidentally match across the field boundary.
const comparisonSeparator = "\n"

func comparisonText(sender, subject string) string {
	return strings.ToLower(sender) + comparisonSeparator + strings.ToLower(subject)
}

// Result is the outcome of classifying one message. It is derived fresh
// per message and never persisted.
type Result struct {
	Label         string
	Tier          int
	TimeSensitive bool
	IsVIP         bool
	Star          bool
	VIPNote       string
	// RulePriority is the matching rule's priority, kept for diagnostics.
	RulePriority int
}

// Classifier maps a message to a category result using an immutable rule
// table and VIP registry. Classify is a pure function of its inputs: the
// same (sender, subject) always yields the same result.
type Classifier struct {
	table *Table
	vips  *Registry
}

// NewClassifier builds a classifier over a validated table and registry.
// The registry may be nil when no VIP entries are configured.
func NewClassifier(table *Table, vips *Registry) *Classifier {
	return &Classifier{table: table, vips: vips}
}

// Classify returns the category result for a message. Rule evaluation is
// first-match-wins in ascending priority order, falling through to the
// catch-all; a VIP match then takes precedence for tier, star and note,
// and for the label only when the entry sets an override. Empty sender or
// subject is fine.
func (c *Classifier) Classify(sender, subject string) Result {
	rule := c.table.Match(comparisonText(sender, subject))
	res := Result{
		Label:         rule.Label,
		Tier:          rule.Tier,
		TimeSensitive: rule.TimeSensitive,
		RulePriority:  rule.Priority,
	}

	if vip := c.vips.Match(sender); vip != nil {
		res.IsVIP = true
		res.Tier = vip.Tier
		res.Star = vip.Star
		res.VIPNote = vip.Note
		if vip.LabelOverride != "" {
			res.Label = vip.LabelOverride
		}
	}
	return res
}

// IsVIPSender reports whether the sender matches any VIP entry, without
// running full classification.
func (c *Classifier) IsVIPSender(sender string) bool {
	return c.vips.Match(sender) != nil
}
