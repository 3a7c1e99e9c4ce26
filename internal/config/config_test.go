package config

import (
	"os"
	"path/filepath"
	"testing"

	"mailtriage/internal/model"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("batch size = %d, want 100", cfg.BatchSize)
	}
	if cfg.DefaultProvider != "gmail" {
		t.Errorf("default provider = %q, want gmail", cfg.DefaultProvider)
	}
	if cfg.State.Backend != "file" {
		t.Errorf("state backend = %q, want file", cfg.State.Backend)
	}
}

func TestLoad_FileThenEnvPrecedence(t *testing.T) {
	path := writeConfig(t, `
default_provider: imap
batch_size: 25
imap:
  host: mail.example.com
  port: 993
  user: from-file@example.com
`)
	t.Setenv("IMAP_USER", "from-env@example.com")
	t.Setenv("TRIAGE_BATCH_SIZE", "50")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultProvider != "imap" {
		t.Errorf("default provider = %q, want imap", cfg.DefaultProvider)
	}
	if cfg.IMAP.Host != "mail.example.com" {
		t.Errorf("imap host = %q, want mail.example.com", cfg.IMAP.Host)
	}
	if cfg.IMAP.User != "from-env@example.com" {
		t.Errorf("imap user = %q, env must override file", cfg.IMAP.User)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("batch size = %d, env must override file", cfg.BatchSize)
	}
}

func TestLoad_InvalidBatchSizeRejected(t *testing.T) {
	path := writeConfig(t, "batch_size: -5\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for negative batch size")
	}
}

func TestBuildTable_CustomRulesMergedAndValidated(t *testing.T) {
	path := writeConfig(t, `
custom_rules:
  - label: "Clients/Acme"
    patterns: ["acme"]
    priority: 5
    tier: 2
    time_sensitive: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	table, err := cfg.BuildTable()
	if err != nil {
		t.Fatalf("BuildTable failed: %v", err)
	}
	found := false
	for _, label := range table.Labels() {
		if label == "Clients/Acme" {
			found = true
		}
	}
	if !found {
		t.Error("custom rule missing from built table")
	}
}

func TestBuildTable_InvalidPatternIsFatal(t *testing.T) {
	path := writeConfig(t, `
custom_rules:
  - label: "Bad"
    patterns: ["([unclosed"]
    priority: 5
    tier: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := cfg.BuildTable(); err == nil {
		t.Fatal("expected fatal config error for invalid pattern")
	}
}

func TestBuildRegistry_FromYAML(t *testing.T) {
	path := writeConfig(t, `
vip_senders:
  ceo:
    pattern: 'ceo@company\.com'
    tier: 1
    star: true
    note: "CEO"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	reg, err := cfg.BuildRegistry()
	if err != nil {
		t.Fatalf("BuildRegistry failed: %v", err)
	}
	if reg.Len() != 1 {
		t.Errorf("registry len = %d, want 1", reg.Len())
	}
	if reg.Match("ceo@company.com") == nil {
		t.Error("expected VIP match")
	}
}

func TestBuildRegistry_PreservesDeclarationOrder(t *testing.T) {
	path := writeConfig(t, `
vip_senders:
  boss:
    pattern: 'boss@corp\.com'
    tier: 1
  corp:
    pattern: '@corp\.com'
    tier: 2
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(cfg.VIPSenders) != 2 || cfg.VIPSenders[0].Name != "boss" || cfg.VIPSenders[1].Name != "corp" {
		t.Fatalf("decoded order = %+v, want file order", cfg.VIPSenders)
	}

	// Both patterns match; the file's first entry wins every time the
	// config is re-read.
	for i := 0; i < 50; i++ {
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		reg, err := cfg.BuildRegistry()
		if err != nil {
			t.Fatalf("BuildRegistry failed: %v", err)
		}
		e := reg.Match("boss@corp.com")
		if e == nil || e.Key != "boss" || e.Tier != 1 {
			t.Fatalf("iteration %d matched %+v, want boss tier 1", i, e)
		}
	}
}

func TestBuildTiers_OverlayKeepsFixedSet(t *testing.T) {
	path := writeConfig(t, `
tiers:
  3:
    keep_in_inbox: true
    star: false
    folder: "Custom/Delegate"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tiers := cfg.BuildTiers()
	if len(tiers) != 4 {
		t.Fatalf("tier count = %d, tiers are a fixed set of 4", len(tiers))
	}
	if !tiers[model.TierDelegate].KeepInInbox {
		t.Error("tier 3 override not applied")
	}
	if tiers[model.TierDelegate].Folder != "Custom/Delegate" {
		t.Errorf("tier 3 folder = %q", tiers[model.TierDelegate].Folder)
	}
	if tiers[model.TierCritical].Name != "Critical" {
		t.Error("untouched tier lost its defaults")
	}
}

func TestBuildTiers_PartialOverrideKeepsBooleanDefaults(t *testing.T) {
	path := writeConfig(t, `
tiers:
  1:
    folder: "Urgent"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	tiers := cfg.BuildTiers()

	// Tier 1 defaults to keep-in-inbox and star; a folder-only override
	// must not silently turn either off.
	tc := tiers[model.TierCritical]
	if tc.Folder != "Urgent" {
		t.Errorf("tier 1 folder = %q, want Urgent", tc.Folder)
	}
	if !tc.KeepInInbox {
		t.Error("folder-only override cleared keep_in_inbox")
	}
	if !tc.Star {
		t.Error("folder-only override cleared star")
	}

	// An explicit false still wins over the default.
	path = writeConfig(t, `
tiers:
  1:
    star: false
`)
	cfg, err = Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BuildTiers()[model.TierCritical].Star {
		t.Error("explicit star: false was ignored")
	}
}

func TestLoad_OutOfRangeTierRejected(t *testing.T) {
	path := writeConfig(t, `
tiers:
  7:
    star: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for tier outside 1..4")
	}
}
