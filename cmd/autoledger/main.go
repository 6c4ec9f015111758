package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"autoledger/internal/app"
	"autoledger/internal/classify"
	"autoledger/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "autoledger",
	Short: "Turn banking notifications into spreadsheet ledger rows",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion server with scheduled drains",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Serve(ctx)
	},
}

var drainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Deliver all pending and failed transactions, then exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		a, err := app.New(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Engine.DrainPending(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("drained: %d succeeded, %d failed", result.Succeeded, result.Failed)
		if result.Message != "" {
			fmt.Printf(" (%s)", result.Message)
		}
		fmt.Println()
		if result.Failed > 0 {
			os.Exit(1)
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configured spreadsheet target is reachable",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := newLogger()
		a, err := app.New(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer a.Close()

		if !a.Config.SinkConfigured() {
			fmt.Println("no spreadsheet configured; transactions will queue as PENDING")
			return nil
		}
		title, err := a.Sheets.ValidateTarget(cmd.Context(), a.Config.SpreadsheetID)
		if err != nil {
			return fmt.Errorf("spreadsheet %s unreachable: %w", a.Config.SpreadsheetID, err)
		}
		fmt.Printf("ok: %q (%s)\n", title, a.Sheets.Target())
		return nil
	},
}

var parseCmd = &cobra.Command{
	Use:   "parse <source-id> <text>",
	Short: "Dry-run the classifier against a notification text",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		classifier := classify.New(newLogger())
		classifier.Update(cfg.Ruleset())

		sourceID, text := args[0], args[1]
		if !classifier.IsFinancialSource(sourceID) {
			fmt.Printf("source %s is not financial; event would be ignored\n", sourceID)
			return nil
		}
		txn, ok := classifier.Parse("", text, sourceID)
		if !ok {
			fmt.Println("no transaction detected")
			return nil
		}
		out, err := json.MarshalIndent(txn, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func newLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "autoledger",
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(drainCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(parseCmd)
}

func main() {
	// Populate the environment from a local .env when present.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
