package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"mailtriage/internal/model"
	"mailtriage/internal/rules"
	"mailtriage/pkg/db"
	"mailtriage/pkg/redisclient"
)

// GmailConfig holds Gmail provider settings.
type GmailConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DefaultQuery string `yaml:"default_query"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
}

// IMAPConfig holds IMAP provider settings.
type IMAPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Mailbox       string `yaml:"mailbox"`
	ArchiveFolder string `yaml:"archive_folder"`
	StartTLS      bool   `yaml:"starttls"`
}

// OutlookConfig holds Outlook (Microsoft Graph) provider settings.
type OutlookConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AccessToken string `yaml:"access_token"`
	BaseURL     string `yaml:"base_url"`
}

// StateConfig selects the checkpoint backend.
type StateConfig struct {
	// Backend is "file" or "postgres".
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// MQConfig holds the event publisher settings; empty URL disables it.
type MQConfig struct {
	URL string `yaml:"url"`
}

// MetricsConfig holds the optional Prometheus listener address.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// EscalationConfig overrides the age thresholds for tier promotion.
type EscalationConfig struct {
	YoungHours int `yaml:"young_hours"`
	OldHours   int `yaml:"old_hours"`
}

// Config is the full configuration surface consumed by the triage core
// and the provider adapters. Loaded once at startup; immutable afterward.
type Config struct {
	DefaultProvider string `yaml:"default_provider"`
	BatchSize       int    `yaml:"batch_size"`
	DryRun          bool   `yaml:"dry_run"`
	Verbose         bool   `yaml:"verbose"`

	Gmail   GmailConfig   `yaml:"gmail"`
	IMAP    IMAPConfig    `yaml:"imap"`
	Outlook OutlookConfig `yaml:"outlook"`

	State      StateConfig        `yaml:"state"`
	DB         db.Config          `yaml:"db"`
	Redis      redisclient.Config `yaml:"redis"`
	MQ         MQConfig           `yaml:"mq"`
	Metrics    MetricsConfig      `yaml:"metrics"`
	Escalation EscalationConfig   `yaml:"escalation"`

	CustomRules []rules.RuleDef      `yaml:"custom_rules"`
	VIPSenders  VIPDefs              `yaml:"vip_senders"`
	Tiers       map[int]TierOverride `yaml:"tiers"`
}

// VIPDefs is the ordered form of the vip_senders mapping. YAML mappings
// decode into Go maps with randomized iteration order, so entries are
// decoded node by node to keep the file's declaration order; when two
// patterns match the same sender the earlier entry must win on every run.
type VIPDefs []rules.NamedVIPDef

func (v *VIPDefs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("vip_senders must be a mapping")
	}
	*v = (*v)[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		var def rules.VIPDef
		if err := node.Content[i+1].Decode(&def); err != nil {
			return fmt.Errorf("vip_senders entry %q: %w", node.Content[i].Value, err)
		}
		*v = append(*v, rules.NamedVIPDef{Name: node.Content[i].Value, Def: def})
	}
	return nil
}

// TierOverride adjusts routing attributes of one fixed tier. The
// booleans are pointers so an omitted field keeps the tier's default
// instead of forcing it to false.
type TierOverride struct {
	Name        string `yaml:"name"`
	KeepInInbox *bool  `yaml:"keep_in_inbox"`
	Star        *bool  `yaml:"star"`
	Folder      string `yaml:"folder"`
	Color       string `yaml:"color"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		DefaultProvider: "gmail",
		BatchSize:       100,
		Gmail:           GmailConfig{Enabled: true, DefaultQuery: "has:nouserlabels"},
		IMAP:            IMAPConfig{Host: "imap.gmail.com", Port: 993, Mailbox: "INBOX"},
		Outlook:         OutlookConfig{BaseURL: "https://graph.microsoft.com/v1.0"},
		State:           StateConfig{Backend: "file", Dir: defaultStateDir()},
	}
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.mailtriage"
	}
	return ".mailtriage"
}

// Load reads the YAML file (when path is non-empty and the file exists)
// over the defaults, then applies environment overrides. All rule, VIP and
// tier validation errors surface here so a bad config never starts a run.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to open %s: %w", path, err)
			}
		} else {
			defer f.Close()
			decoder := yaml.NewDecoder(f)
			if err := decoder.Decode(cfg); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", path, err)
			}
		}
	}

	overrideFromEnv(cfg)

	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("batch_size must be positive, got %d", cfg.BatchSize)
	}
	for tier := range cfg.Tiers {
		if err := model.CheckTier(tier); err != nil {
			return nil, fmt.Errorf("tiers: %w", err)
		}
	}
	return cfg, nil
}

func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("TRIAGE_PROVIDER"); v != "" {
		cfg.DefaultProvider = v
	}
	if v := os.Getenv("TRIAGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BatchSize = n
		}
	}
	if v := os.Getenv("TRIAGE_DRY_RUN"); v != "" {
		cfg.DryRun = v == "1" || v == "true" || v == "yes"
	}
	if v := os.Getenv("TRIAGE_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}

	// IMAP credentials commonly come from the environment.
	if v := os.Getenv("IMAP_HOST"); v != "" {
		cfg.IMAP.Host = v
	}
	if v := os.Getenv("IMAP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IMAP.Port = n
		}
	}
	if v := os.Getenv("IMAP_USER"); v != "" {
		cfg.IMAP.User = v
	}
	if v := os.Getenv("IMAP_PASS"); v != "" {
		cfg.IMAP.Password = v
	}

	if v := os.Getenv("GMAIL_CLIENT_ID"); v != "" {
		cfg.Gmail.ClientID = v
	}
	if v := os.Getenv("GMAIL_CLIENT_SECRET"); v != "" {
		cfg.Gmail.ClientSecret = v
	}
	if v := os.Getenv("GMAIL_ACCESS_TOKEN"); v != "" {
		cfg.Gmail.AccessToken = v
	}
	if v := os.Getenv("GMAIL_REFRESH_TOKEN"); v != "" {
		cfg.Gmail.RefreshToken = v
	}
	if v := os.Getenv("OUTLOOK_ACCESS_TOKEN"); v != "" {
		cfg.Outlook.AccessToken = v
	}

	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DB.Port = n
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DB.Name = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("MQ_URL"); v != "" {
		cfg.MQ.URL = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
}

// BuildTable merges custom rules over the defaults and compiles the
// result. Pattern and catch-all violations are fatal config errors.
func (c *Config) BuildTable() (*rules.Table, error) {
	defs := rules.MergeDefs(rules.DefaultRules(), c.CustomRules)
	table, err := rules.NewTable(defs)
	if err != nil {
		return nil, fmt.Errorf("invalid rule configuration: %w", err)
	}
	return table, nil
}

// BuildRegistry compiles the configured VIP senders in declaration order.
func (c *Config) BuildRegistry() (*rules.Registry, error) {
	reg, err := rules.NewRegistry(c.VIPSenders)
	if err != nil {
		return nil, fmt.Errorf("invalid vip configuration: %w", err)
	}
	return reg, nil
}

// BuildTiers overlays configured tier routing attributes on the fixed
// four-tier table. Tiers are never added or removed, and only fields the
// override actually sets replace the defaults.
func (c *Config) BuildTiers() map[int]model.TierConfig {
	tiers := model.DefaultTiers()
	for tier, override := range c.Tiers {
		base := tiers[tier]
		if override.KeepInInbox != nil {
			base.KeepInInbox = *override.KeepInInbox
		}
		if override.Star != nil {
			base.Star = *override.Star
		}
		if override.Folder != "" {
			base.Folder = override.Folder
		}
		if override.Color != "" {
			base.Color = override.Color
		}
		if override.Name != "" {
			base.Name = override.Name
		}
		tiers[tier] = base
	}
	return tiers
}

// BuildEscalator returns the escalator with configured thresholds.
func (c *Config) BuildEscalator() *rules.Escalator {
	return rules.NewEscalator(
		time.Duration(c.Escalation.YoungHours)*time.Hour,
		time.Duration(c.Escalation.OldHours)*time.Hour,
	)
}
