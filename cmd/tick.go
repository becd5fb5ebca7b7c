package cmd

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler pass and print its summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.scheduler.Tick(context.Background())
		if err != nil {
			return err
		}
		return printJSON(sum)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Materialize due reminders once and print the summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := a.generator.Generate(context.Background())
		if err != nil {
			return err
		}
		return printJSON(sum)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(tickCmd, generateCmd)
}
