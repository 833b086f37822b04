//-------------------------------------------------------------------------
//
// pgEdge Star Schema Loader
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package cli implements the command-line interface for pgedge-starload.
package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pgEdge/pgedge-starload/internal/config"
	"github.com/pgEdge/pgedge-starload/internal/feeds"
	"github.com/pgEdge/pgedge-starload/internal/logging"
	"github.com/pgEdge/pgedge-starload/pkg/version"
)

var (
	// Global flags
	cfgFile    string
	envFile    string
	connection string
	logLevel   string
	logFormat  string

	// Global config
	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:   "pgedge-starload",
		Short: "Star schema loader for regional sales feeds",
		Long: `pgedge-starload unions the curated regional sales tables of a
PostgreSQL warehouse into one sales stream, upserts the region, product,
promotion code, customer, payment and date dimensions, and appends the
sales fact rows that reference them.

Every pass is idempotent: dimension rows are inserted only for natural
keys not already present, and orders already in the fact table are
skipped.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./pgedge-starload.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env",
		"file of environment variables to load before reading config")
	rootCmd.PersistentFlags().StringVar(&connection, "connection", "",
		"PostgreSQL connection string")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"log format (console, json)")

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
}

func initConfig() error {
	if err := config.LoadEnv(envFile); err != nil {
		return err
	}

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Override with CLI flags
	if connection != "" {
		cfg.Connection = connection
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	// Reinitialize logger with config
	logging.Init(logging.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	feeds.Load(cfg.Sources)
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(version.Info())
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured regional sales feeds",
	Long: `List the regional sales tables that are unioned into the sales
stream on every run. Feeds are configured under 'sources' in the config
file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateSources(); err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTABLE\tCOUNTRY\tREGION\tCURRENCY\tUSD RATE")
		for _, f := range feeds.All() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%g\n",
				f.Name, f.Table, f.Country, f.Region, f.Currency, f.USDRate)
		}
		return w.Flush()
	},
}
