package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/lifeos-notify/internal/engagement"
	"github.com/ziadkadry99/lifeos-notify/internal/events"
	"github.com/ziadkadry99/lifeos-notify/internal/notifications"
	"github.com/ziadkadry99/lifeos-notify/internal/preferences"
	"github.com/ziadkadry99/lifeos-notify/internal/pushtokens"
	"github.com/ziadkadry99/lifeos-notify/internal/reminders"
	"github.com/ziadkadry99/lifeos-notify/internal/scheduler"
	"github.com/ziadkadry99/lifeos-notify/internal/server"
)

var (
	serverPort int
	noLoop     bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the notifyd API and scheduler loop",
	Long: `Starts the REST API, the websocket event stream and the background loop
that generates reminders and dispatches due notifications.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serverPort != 0 {
			cfg.Server.Port = serverPort
		}

		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(server.Config{
			Port:     cfg.Server.Port,
			AllowAll: cfg.Server.CORSAllowAll,
		}, a.database, a.registry, a.log.With("component", "http"))

		registerAllRoutes(srv.Router(), a)

		// Graceful shutdown.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if !noLoop {
			g.Go(func() error { return a.runner.Run(ctx) })
		}
		go a.relayEvents(ctx)

		a.log.Info("notifyd starting",
			"version", Version,
			"port", cfg.Server.Port,
			"database", cfg.Database.Path,
			"redis", cfg.Redis.URL != "",
		)
		return g.Wait()
	},
}

// registerAllRoutes wires up every API surface.
func registerAllRoutes(r chi.Router, a *app) {
	notifications.RegisterRoutes(r, a.notifications, notifications.RouteConfig{
		Lifecycle:        a.snooze,
		Events:           a.events,
		Log:              a.log.With("component", "api"),
		DefaultMaxSnooze: a.cfg.Scheduler.DefaultMaxSnooze,
		Subroutes:        []func(chi.Router){engagement.Routes(a.engagement)},
	})
	preferences.RegisterRoutes(r, a.preferences)
	pushtokens.RegisterRoutes(r, a.tokens)
	reminders.RegisterRoutes(r, a.reminders, a.generator)
	scheduler.RegisterRoutes(r, a.scheduler)
	events.RegisterRoutes(r, a.hub)
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "override server.port")
	serverCmd.Flags().BoolVar(&noLoop, "no-loop", false, "serve the API without the scheduler loop")
	rootCmd.AddCommand(serverCmd)
}
