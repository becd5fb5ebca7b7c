package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/reminders"
	"github.com/ziadkadry99/lifeos-notify/internal/retry"
	"github.com/ziadkadry99/lifeos-notify/internal/scheduler"
	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "notifyd.yml"

// EnvPrefix marks environment overrides. A double underscore separates
// nesting levels: NOTIFYD_SCHEDULER__INTERVAL=10s sets scheduler.interval.
const EnvPrefix = "NOTIFYD_"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Path: "data/notifyd.db"},
		Log:      LogConfig{Level: "info", Format: "console"},
		Scheduler: SchedulerConfig{
			Config:           scheduler.DefaultConfig(),
			AdapterTimeout:   delivery.DefaultTimeout,
			DefaultMaxSnooze: 3,
		},
		Retry: retry.DefaultConfig(),
		Reminders: RemindersConfig{
			Interval:     time.Minute,
			CronLookback: reminders.DefaultCronLookback,
		},
		Redis: RedisConfig{
			LockPrefix:    "notifyd:lock:",
			EventsChannel: "notifyd:events",
		},
		Categories: delivery.Categories{},
	}
}

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides (NOTIFYD_*).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Start from defaults.
	cfg := DefaultConfig()

	// Load YAML file if it exists.
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

// envKey maps NOTIFYD_CHANNELS__PUSH__URL to channels.push.url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

var validLogFormats = map[string]bool{
	"console": true,
	"json":    true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Log.Level != "" && !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be one of debug, info, warn, error", c.Log.Level)
	}
	if c.Log.Format != "" && !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log.format %q: must be console or json", c.Log.Format)
	}

	if c.Scheduler.Interval < 0 || c.Scheduler.LeaseTTL < 0 || c.Scheduler.AdapterTimeout < 0 {
		return fmt.Errorf("scheduler durations must be non-negative")
	}
	if c.Scheduler.Concurrency < 0 || c.Scheduler.BatchSize < 0 {
		return fmt.Errorf("scheduler.concurrency and scheduler.batch_size must be non-negative")
	}
	if c.Scheduler.DefaultMaxSnooze < 0 {
		return fmt.Errorf("scheduler.default_max_snooze must be non-negative")
	}
	if c.Scheduler.LeaseTTL > 0 && c.Scheduler.AdapterTimeout > 0 && c.Scheduler.LeaseTTL <= c.Scheduler.AdapterTimeout {
		return fmt.Errorf("scheduler.lease_ttl (%s) must exceed scheduler.adapter_timeout (%s)",
			c.Scheduler.LeaseTTL, c.Scheduler.AdapterTimeout)
	}

	r := c.Retry
	if r.BaseDelay < 0 || r.MaxDelay < 0 || r.UrgentBaseDelay < 0 {
		return fmt.Errorf("retry delays must be non-negative")
	}
	if r.MaxAttempts < 0 || r.UrgentMaxAttempts < 0 || r.RateLimitMultiplier < 0 {
		return fmt.Errorf("retry counts must be non-negative")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("retry.base_delay (%s) exceeds retry.max_delay (%s)", r.BaseDelay, r.MaxDelay)
	}

	if c.Reminders.Interval < 0 || c.Reminders.CronLookback < 0 {
		return fmt.Errorf("reminders durations must be non-negative")
	}
	lookback := c.Reminders.CronLookback
	if lookback == 0 {
		lookback = reminders.DefaultCronLookback
	}
	// A pass that runs less often than the lookback misses cron activations.
	if c.Reminders.Interval > lookback {
		return fmt.Errorf("reminders.interval (%s) must not exceed reminders.cron_lookback (%s)",
			c.Reminders.Interval, lookback)
	}

	for name, rl := range map[string]RateLimit{
		"push":  c.Channels.Push.RateLimit,
		"email": c.Channels.Email.RateLimit,
		"sms":   c.Channels.SMS.RateLimit,
	} {
		if rl.PerSecond < 0 || rl.Burst < 0 {
			return fmt.Errorf("channels.%s.rate_limit must be non-negative", name)
		}
	}
	if c.Channels.Email.Host != "" && c.Channels.Email.From == "" {
		return fmt.Errorf("channels.email.from is required when channels.email.host is set")
	}

	return nil
}
