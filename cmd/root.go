package cmd

import (
	"github.com/spf13/cobra"
	"github.com/ziadkadry99/lifeos-notify/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "notifyd",
	Short: "Notification scheduling and delivery engine",
	Long: `notifyd schedules notifications, materializes recurring reminders and
delivers them over push, email and SMS while honoring user preferences,
quiet hours, snoozes and retry limits.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
