package rules

import (
	"testing"

	"mailtriage/internal/model"
)

func newTestClassifier(t *testing.T, vipDefs []NamedVIPDef) *Classifier {
	t.Helper()
	table, err := NewTable(DefaultRules())
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	var vips *Registry
	if vipDefs != nil {
		vips, err = NewRegistry(vipDefs)
		if err != nil {
			t.Fatalf("NewRegistry failed: %v", err)
		}
	}
	return NewClassifier(table, vips)
}

func TestClassify_BankingStatement(t *testing.T) {
	c := newTestClassifier(t, nil)

	res := c.Classify("alerts@chase.com", "Your statement is ready")
	if res.Label != "Finance/Banking" {
		t.Errorf("label = %q, want Finance/Banking", res.Label)
	}
	if res.Tier != model.TierCritical {
		t.Errorf("tier = %d, want 1", res.Tier)
	}
	if !res.TimeSensitive {
		t.Error("expected time_sensitive result")
	}
	if res.IsVIP {
		t.Error("unexpected VIP flag")
	}
}

func TestClassify_CatchAllCoverage(t *testing.T) {
	c := newTestClassifier(t, nil)

	cases := []struct{ sender, subject string }{
		{"", ""},
		{"nobody@nowhere.zz", "zzzzzz"},
		{"x", ""},
		{"", "y"},
	}
	for _, tc := range cases {
		res := c.Classify(tc.sender, tc.subject)
		if res.Label != "Misc/Other" {
			t.Errorf("Classify(%q, %q) label = %q, want Misc/Other", tc.sender, tc.subject, res.Label)
		}
		if res.Tier != model.TierReference {
			t.Errorf("Classify(%q, %q) tier = %d, want 4", tc.sender, tc.subject, res.Tier)
		}
		if res.TimeSensitive {
			t.Errorf("Classify(%q, %q) unexpectedly time-sensitive", tc.sender, tc.subject)
		}
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := newTestClassifier(t, nil)

	first := c.Classify("notifications@github.com", "PR review requested")
	for i := 0; i < 10; i++ {
		got := c.Classify("notifications@github.com", "PR review requested")
		if got != first {
			t.Fatalf("iteration %d: result %+v differs from first %+v", i, got, first)
		}
	}
}

func TestClassify_FirstMatchWinsByPriority(t *testing.T) {
	// Both rules match; the lower priority number must win even though it
	// is declared second.
	defs := []RuleDef{
		{Label: "Later", Patterns: []string{`acme`}, Priority: 5, Tier: 3},
		{Label: "Winner", Patterns: []string{`acme`}, Priority: 2, Tier: 2},
		{Label: "Misc/Other", Patterns: []string{`.*`}, Priority: CatchAllPriority, Tier: 4},
	}
	table, err := NewTable(defs)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	c := NewClassifier(table, nil)

	res := c.Classify("billing@acme.com", "hello")
	if res.Label != "Winner" {
		t.Errorf("label = %q, want Winner", res.Label)
	}
	if res.RulePriority != 2 {
		t.Errorf("rule priority = %d, want 2", res.RulePriority)
	}
}

func TestClassify_PriorityTieBrokenByTableOrder(t *testing.T) {
	defs := []RuleDef{
		{Label: "First", Patterns: []string{`acme`}, Priority: 5, Tier: 3},
		{Label: "Second", Patterns: []string{`acme`}, Priority: 5, Tier: 2},
		{Label: "Misc/Other", Patterns: []string{`.*`}, Priority: CatchAllPriority, Tier: 4},
	}
	table, err := NewTable(defs)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	c := NewClassifier(table, nil)

	if res := c.Classify("x@acme.com", ""); res.Label != "First" {
		t.Errorf("label = %q, want First (declaration order breaks ties)", res.Label)
	}
}

func TestClassify_VIPPrecedence(t *testing.T) {
	c := newTestClassifier(t, []NamedVIPDef{
		{Name: "ceo", Def: VIPDef{Pattern: `ceo@company\.com`, Tier: 1, Star: true, Note: "CEO"}},
	})

	// Subject unrelated to any configured rule: label comes from normal
	// classification (catch-all), urgency from the VIP entry.
	res := c.Classify("ceo@company.com", "lunch?")
	if !res.IsVIP {
		t.Fatal("expected VIP result")
	}
	if res.Tier != model.TierCritical {
		t.Errorf("tier = %d, want 1", res.Tier)
	}
	if !res.Star {
		t.Error("expected starred result")
	}
	if res.Label != "Misc/Other" {
		t.Errorf("label = %q, want Misc/Other (no override set)", res.Label)
	}
	if res.VIPNote != "CEO" {
		t.Errorf("note = %q, want CEO", res.VIPNote)
	}

	// VIP urgency beats the rule-assigned tier even when a rule matches.
	res = c.Classify("ceo@company.com", "Your Netflix newsletter, unsubscribe here")
	if res.Tier != model.TierCritical || !res.Star {
		t.Errorf("tier/star = %d/%v, want 1/true", res.Tier, res.Star)
	}
	if res.Label == "Misc/Other" {
		t.Errorf("label = %q, expected rule-evaluated label", res.Label)
	}
}

func TestClassify_VIPLabelOverride(t *testing.T) {
	c := newTestClassifier(t, []NamedVIPDef{
		{Name: "client", Def: VIPDef{Pattern: `.*@bigclient\.com`, Tier: 1, Star: true, LabelOverride: "Personal"}},
	})

	res := c.Classify("anyone@bigclient.com", "Your statement is ready")
	if res.Label != "Personal" {
		t.Errorf("label = %q, want Personal (override set)", res.Label)
	}
	if !res.IsVIP || res.Tier != model.TierCritical {
		t.Errorf("vip/tier = %v/%d, want true/1", res.IsVIP, res.Tier)
	}
}

func TestRegistry_OverlappingPatternsResolveByDeclarationOrder(t *testing.T) {
	defs := []NamedVIPDef{
		{Name: "boss", Def: VIPDef{Pattern: `boss@corp\.com`, Tier: 1, Star: true}},
		{Name: "corp", Def: VIPDef{Pattern: `@corp\.com`, Tier: 2}},
	}

	// Both patterns match the same sender; the earlier entry must win on
	// every rebuild of the registry.
	for i := 0; i < 200; i++ {
		reg, err := NewRegistry(defs)
		if err != nil {
			t.Fatalf("NewRegistry failed: %v", err)
		}
		e := reg.Match("boss@corp.com")
		if e == nil {
			t.Fatal("expected a VIP match")
		}
		if e.Key != "boss" || e.Tier != model.TierCritical {
			t.Fatalf("iteration %d matched %q tier %d, want boss tier 1", i, e.Key, e.Tier)
		}
	}

	// Reversing the declaration flips the winner.
	reversed := []NamedVIPDef{defs[1], defs[0]}
	reg, err := NewRegistry(reversed)
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	if e := reg.Match("boss@corp.com"); e == nil || e.Key != "corp" {
		t.Errorf("reversed order matched %v, want corp first", e)
	}
}

func TestNewRegistry_DuplicateNameRejected(t *testing.T) {
	_, err := NewRegistry([]NamedVIPDef{
		{Name: "boss", Def: VIPDef{Pattern: `a@b\.com`}},
		{Name: "boss", Def: VIPDef{Pattern: `c@d\.com`}},
	})
	if err == nil {
		t.Fatal("expected an error for a duplicate vip name")
	}
}

func TestIsVIPSender(t *testing.T) {
	c := newTestClassifier(t, []NamedVIPDef{
		{Name: "ceo", Def: VIPDef{Pattern: `ceo@company\.com`, Tier: 1, Star: true}},
	})

	if !c.IsVIPSender("CEO@Company.com") {
		t.Error("expected case-insensitive VIP match")
	}
	if c.IsVIPSender("intern@company.com") {
		t.Error("unexpected VIP match")
	}
}

func TestNewTable_InvalidPatternFailsAtLoad(t *testing.T) {
	defs := []RuleDef{
		{Label: "Broken", Patterns: []string{`([unclosed`}, Priority: 1, Tier: 2},
		{Label: "Misc/Other", Patterns: []string{`.*`}, Priority: CatchAllPriority, Tier: 4},
	}
	if _, err := NewTable(defs); err == nil {
		t.Fatal("expected pattern compile error at table construction")
	}
}

func TestNewTable_DuplicateLabelRejected(t *testing.T) {
	defs := []RuleDef{
		{Label: "Dup", Patterns: []string{`a`}, Priority: 1, Tier: 2},
		{Label: "Dup", Patterns: []string{`b`}, Priority: 3, Tier: 2},
		{Label: "Misc/Other", Patterns: []string{`.*`}, Priority: CatchAllPriority, Tier: 4},
	}
	if _, err := NewTable(defs); err == nil {
		t.Fatal("expected duplicate label error")
	}
}

func TestNewTable_MissingCatchAllRejected(t *testing.T) {
	defs := []RuleDef{
		{Label: "Only", Patterns: []string{`acme`}, Priority: 1, Tier: 2},
	}
	if _, err := NewTable(defs); err == nil {
		t.Fatal("expected missing catch-all error")
	}
}

func TestNewTable_MultipleCatchAllsRejected(t *testing.T) {
	defs := []RuleDef{
		{Label: "All1", Patterns: []string{`.*`}, Priority: 998, Tier: 4},
		{Label: "All2", Patterns: []string{`.*`}, Priority: CatchAllPriority, Tier: 4},
	}
	if _, err := NewTable(defs); err == nil {
		t.Fatal("expected multiple catch-all error")
	}
}

func TestMergeDefs_OverrideAndAppend(t *testing.T) {
	base := DefaultRules()
	custom := []RuleDef{
		{Label: "Finance/Banking", Patterns: []string{`mybank`}, Priority: 7, Tier: 1, TimeSensitive: true},
		{Label: "Custom/New", Patterns: []string{`widget`}, Priority: 6, Tier: 2},
	}
	merged := MergeDefs(base, custom)
	if len(merged) != len(base)+1 {
		t.Fatalf("merged len = %d, want %d", len(merged), len(base)+1)
	}

	table, err := NewTable(merged)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	c := NewClassifier(table, nil)
	if res := c.Classify("noreply@mybank.com", ""); res.Label != "Finance/Banking" {
		t.Errorf("label = %q, want overridden Finance/Banking", res.Label)
	}
	if res := c.Classify("sales@widget.io", ""); res.Label != "Custom/New" {
		t.Errorf("label = %q, want Custom/New", res.Label)
	}
	// The replaced pattern list no longer matches.
	if res := c.Classify("alerts@chase.com", "statement"); res.Label == "Finance/Banking" {
		t.Errorf("label = %q, old patterns should be gone", res.Label)
	}
}
