package config

import (
	"time"

	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/delivery/channels"
	"github.com/ziadkadry99/lifeos-notify/internal/retry"
	"github.com/ziadkadry99/lifeos-notify/internal/scheduler"
)

// Config is the top-level notifyd configuration, corresponding to notifyd.yml.
type Config struct {
	Server     ServerConfig        `yaml:"server" koanf:"server"`
	Database   DatabaseConfig      `yaml:"database" koanf:"database"`
	Log        LogConfig           `yaml:"log" koanf:"log"`
	Scheduler  SchedulerConfig     `yaml:"scheduler" koanf:"scheduler"`
	Retry      retry.Config        `yaml:"retry" koanf:"retry"`
	Reminders  RemindersConfig     `yaml:"reminders" koanf:"reminders"`
	Channels   ChannelsConfig      `yaml:"channels" koanf:"channels"`
	Redis      RedisConfig         `yaml:"redis" koanf:"redis"`
	Categories delivery.Categories `yaml:"categories" koanf:"categories"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port         int  `yaml:"port" koanf:"port"`
	CORSAllowAll bool `yaml:"cors_allow_all" koanf:"cors_allow_all"`
}

// DatabaseConfig points at the sqlite file.
type DatabaseConfig struct {
	Path string `yaml:"path" koanf:"path"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"`
}

// SchedulerConfig extends the scheduler's own settings with delivery knobs
// applied when wiring the dispatcher and the API.
type SchedulerConfig struct {
	scheduler.Config `yaml:",inline" koanf:",squash"`
	AdapterTimeout   time.Duration `yaml:"adapter_timeout" koanf:"adapter_timeout"`
	DefaultMaxSnooze int           `yaml:"default_max_snooze" koanf:"default_max_snooze"`
}

// RemindersConfig controls the reminder generator loop.
type RemindersConfig struct {
	Interval     time.Duration `yaml:"interval" koanf:"interval"`
	CronLookback time.Duration `yaml:"cron_lookback" koanf:"cron_lookback"`
}

// ChannelsConfig configures each delivery adapter. A channel without a
// gateway configured falls back to the log adapter.
type ChannelsConfig struct {
	Push  PushChannel  `yaml:"push" koanf:"push"`
	Email EmailChannel `yaml:"email" koanf:"email"`
	SMS   SMSChannel   `yaml:"sms" koanf:"sms"`
}

// RateLimit caps an adapter's send rate. Zero disables limiting.
type RateLimit struct {
	PerSecond float64 `yaml:"per_second" koanf:"per_second"`
	Burst     int     `yaml:"burst" koanf:"burst"`
}

type PushChannel struct {
	channels.PushConfig `yaml:",inline" koanf:",squash"`
	RateLimit           RateLimit `yaml:"rate_limit" koanf:"rate_limit"`
}

type EmailChannel struct {
	channels.EmailConfig `yaml:",inline" koanf:",squash"`
	RateLimit            RateLimit `yaml:"rate_limit" koanf:"rate_limit"`
}

type SMSChannel struct {
	channels.SMSConfig `yaml:",inline" koanf:",squash"`
	RateLimit          RateLimit `yaml:"rate_limit" koanf:"rate_limit"`
}

// RedisConfig enables the distributed tick lock and event publishing.
// An empty URL keeps both in-process.
type RedisConfig struct {
	URL           string `yaml:"url" koanf:"url"`
	LockPrefix    string `yaml:"lock_prefix" koanf:"lock_prefix"`
	EventsChannel string `yaml:"events_channel" koanf:"events_channel"`
}
