package cmd

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/lifeos-notify/internal/config"
	"github.com/ziadkadry99/lifeos-notify/internal/db"
	"github.com/ziadkadry99/lifeos-notify/internal/delivery"
	"github.com/ziadkadry99/lifeos-notify/internal/delivery/channels"
	"github.com/ziadkadry99/lifeos-notify/internal/engagement"
	"github.com/ziadkadry99/lifeos-notify/internal/events"
	"github.com/ziadkadry99/lifeos-notify/internal/lock"
	"github.com/ziadkadry99/lifeos-notify/internal/logger"
	"github.com/ziadkadry99/lifeos-notify/internal/metrics"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
	"github.com/ziadkadry99/lifeos-notify/internal/pushtokens"
	"github.com/ziadkadry99/lifeos-notify/internal/reminders"
	"github.com/ziadkadry99/lifeos-notify/internal/retry"
	"github.com/ziadkadry99/lifeos-notify/internal/scheduler"
	"github.com/ziadkadry99/lifeos-notify/internal/snooze"
)

// app holds every wired component of notifyd.
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	database *db.DB
	registry *prometheus.Registry
	redis    *redis.Client

	hub    *events.Hub
	events events.Publisher

	notifications *notifications.Store
	engagement    *engagement.Store
	preferences   *preferences.Store
	tokens        *pushtokens.Store
	reminders     *reminders.Store

	scheduler *scheduler.Scheduler
	generator *reminders.Generator
	snooze    *snooze.Manager
	runner    *scheduler.Runner
}

// loadConfig reads and validates the config file, applying --verbose.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{
		cfg:      cfg,
		log:      logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(a.registry)

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a.database = database

	var locker lock.Locker = lock.NewLocal()
	a.hub = events.NewHub(a.log.With("component", "events"))
	a.events = a.hub
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			database.Close()
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		a.redis = redis.NewClient(opts)
		locker = lock.NewRedis(a.redis, cfg.Redis.LockPrefix)
		a.events = events.NewRedisPublisher(a.redis, cfg.Redis.EventsChannel)
	}

	a.notifications = notifications.NewStore(database)
	a.engagement = engagement.NewStore(database)
	a.preferences = preferences.NewStore(database)
	a.tokens = pushtokens.NewStore(database)
	a.reminders = reminders.NewStore(database, a.notifications)

	dispatcher := delivery.NewDispatcher(delivery.StandardRoutes(a.adapters(), a.tokens), a.tokens,
		delivery.WithTimeout(cfg.Scheduler.AdapterTimeout),
		delivery.WithCategories(cfg.Categories),
		delivery.WithLogger(a.log.With("component", "delivery")),
		delivery.WithMetrics(m),
	)

	a.scheduler = scheduler.New(a.notifications, a.preferences, dispatcher, retry.New(cfg.Retry), cfg.Scheduler.Config,
		scheduler.WithLogger(a.log.With("component", "scheduler")),
		scheduler.WithMetrics(m),
		scheduler.WithEvents(a.events),
	)
	a.generator = reminders.NewGenerator(a.reminders,
		reminders.Evaluator{CronLookback: cfg.Reminders.CronLookback},
		a.log.With("component", "reminders"), m, a.events)
	a.snooze = snooze.NewManager(a.notifications, nil)
	a.runner = scheduler.NewRunner(a.scheduler, a.generator, locker, cfg.Reminders.Interval, a.log.With("component", "runner"))

	return a, nil
}

// adapters builds one adapter per channel. Channels without a gateway
// log their payloads instead.
func (a *app) adapters() map[notifications.Channel]delivery.ChannelAdapter {
	ch := a.cfg.Channels
	log := a.log.With("component", "channels")

	out := make(map[notifications.Channel]delivery.ChannelAdapter, 3)

	var push delivery.ChannelAdapter = channels.NewLog(string(notifications.ChannelPush), log)
	if ch.Push.URL != "" {
		push = channels.NewPush(ch.Push.PushConfig)
	}
	out[notifications.ChannelPush] = limited(push, ch.Push.RateLimit)

	var email delivery.ChannelAdapter = channels.NewLog(string(notifications.ChannelEmail), log)
	if ch.Email.Host != "" {
		email = channels.NewEmail(ch.Email.EmailConfig)
	}
	out[notifications.ChannelEmail] = limited(email, ch.Email.RateLimit)

	var sms delivery.ChannelAdapter = channels.NewLog(string(notifications.ChannelSMS), log)
	if ch.SMS.URL != "" {
		sms = channels.NewSMS(ch.SMS.SMSConfig)
	}
	out[notifications.ChannelSMS] = limited(sms, ch.SMS.RateLimit)

	return out
}

func limited(next delivery.ChannelAdapter, rl config.RateLimit) delivery.ChannelAdapter {
	if rl.PerSecond <= 0 {
		return next
	}
	return channels.NewRateLimit(next, rl.PerSecond, rl.Burst)
}

// relayEvents forwards events from Redis into the local websocket hub so
// that clients on every replica see every event.
func (a *app) relayEvents(ctx context.Context) {
	pub, ok := a.events.(*events.RedisPublisher)
	if !ok {
		return
	}
	stream, err := pub.Subscribe(ctx)
	if err != nil {
		a.log.Error(err, "subscribing to redis events")
		return
	}
	for e := range stream {
		a.hub.Publish(ctx, e)
	}
}

func (a *app) Close() error {
	if a.redis != nil {
		a.redis.Close()
	}
	return a.database.Close()
}
