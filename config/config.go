// Package config resolves runtime configuration from a YAML file or
// command-line flags.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved runtime configuration of the trigger engine.
type Config struct {
	// TriggersPath is the YAML file of trigger rows, re-read every cycle.
	TriggersPath string
	// StatePath is the JSON trigger-state ledger.
	StatePath string
	// CachePath is the disk tier of the quote cache; empty disables it.
	CachePath string
	// EventsDir is the WAL directory for the notification journal.
	EventsDir string
	// WebhookURL receives notification events; empty disables delivery.
	WebhookURL string

	PollInterval   time.Duration
	Lookback       time.Duration
	PriceFreshness time.Duration

	DryRun bool
	Once   bool
}

type configYaml struct {
	TriggersPath   string        `yaml:"triggers_path"`
	StatePath      string        `yaml:"state_path"`
	CachePath      string        `yaml:"cache_path,omitempty"`
	EventsDir      string        `yaml:"events_dir,omitempty"`
	WebhookURL     string        `yaml:"webhook_url,omitempty"`
	PollInterval   time.Duration `yaml:"poll_interval,omitempty"`
	Lookback       time.Duration `yaml:"closed_orders_lookback,omitempty"`
	PriceFreshness time.Duration `yaml:"price_freshness,omitempty"`
}

const (
	defaultTriggersPath = "triggers.yaml"
	defaultStatePath    = "state/triggers.json"
	defaultCachePath    = "state/quotes.json"
	defaultEventsDir    = "./wal/events"
	defaultInterval     = 30 * time.Second
	defaultLookback     = 24 * time.Hour
	defaultFreshness    = 15 * time.Second
)

// Get resolves configuration: --config points at a YAML file, otherwise
// individual flags apply. The dry-run, once and interval flags always win
// over YAML values.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	triggers := flag.String("triggers", defaultTriggersPath, "path to trigger rows yaml")
	state := flag.String("state", defaultStatePath, "path to trigger state json")
	interval := flag.Duration("interval", defaultInterval, "polling interval of the trigger loop")
	lookback := flag.Duration("lookback", defaultLookback, "closed-orders lookback window")
	dryRun := flag.Bool("dry-run", false, "evaluate triggers without submitting orders")
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	cfg := Config{
		TriggersPath:   *triggers,
		StatePath:      *state,
		CachePath:      defaultCachePath,
		EventsDir:      defaultEventsDir,
		PollInterval:   *interval,
		Lookback:       *lookback,
		PriceFreshness: defaultFreshness,
		DryRun:         *dryRun,
		Once:           *once,
	}

	if *configPath != "" {
		if err := cfg.applyYaml(*configPath); err != nil {
			return Config{}, err
		}
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("polling interval must be positive, got %s", cfg.PollInterval)
	}
	if cfg.TriggersPath == "" {
		return Config{}, fmt.Errorf("triggers path is required")
	}
	return cfg, nil
}

func (c *Config) applyYaml(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var y configYaml
	if err := yaml.Unmarshal(payload, &y); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	if y.TriggersPath != "" {
		c.TriggersPath = y.TriggersPath
	}
	if y.StatePath != "" {
		c.StatePath = y.StatePath
	}
	if y.CachePath != "" {
		c.CachePath = y.CachePath
	}
	if y.EventsDir != "" {
		c.EventsDir = y.EventsDir
	}
	if y.WebhookURL != "" {
		c.WebhookURL = y.WebhookURL
	}
	if y.PollInterval > 0 {
		c.PollInterval = y.PollInterval
	}
	if y.Lookback > 0 {
		c.Lookback = y.Lookback
	}
	if y.PriceFreshness > 0 {
		c.PriceFreshness = y.PriceFreshness
	}
	return nil
}
