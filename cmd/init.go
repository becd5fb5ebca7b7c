package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/ziadkadry99/lifeos-notify/internal/config"
	"gopkg.in/yaml.v3"
)

var (
	initInteractive bool
	initForce       bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage notifyd configuration",
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a notifyd configuration file",
	Long: `Writes the default configuration to the --config path. With --interactive
a wizard asks for the listener, database, gateways and Redis first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfgFile); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
		}
		if initInteractive {
			_, err := config.RunWizard(cfgFile)
			return err
		}
		if err := config.DefaultConfig().Save(cfgFile); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %s\n", cfgFile)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	initCmd.Flags().BoolVarP(&initInteractive, "interactive", "i", false, "run the configuration wizard")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(initCmd, showCmd)
	rootCmd.AddCommand(configCmd)
}
