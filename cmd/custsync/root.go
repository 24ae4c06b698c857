package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"custsync/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile    string
	logLevel      string
	noColor       bool
	upstreamURL   string
	databaseURL   string
	storageDriver string
	outputDir     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "custsync",
	Short: "Resumable ingestion of paginated upstream collections",
	Long: `custsync pulls customer-style records from a cursor-paginated upstream API
into a local cache, one page at a time, checkpointing after every page.

Features:
  - Resume failed or interrupted jobs from the last committed cursor
  - One active job per collection, across processes with the redis lock
  - Deterministic CSV materialization of the cached records
  - HTTP control surface with Prometheus metrics
  - Upstream tokens in the system keychain or an encrypted file`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || os.Getenv("NO_COLOR") != "" {
			ui.SetNoColor(true)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./custsync.yaml or $HOME/.config/custsync/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&upstreamURL, "upstream-url", "", "upstream API base URL")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "storage DSN (sqlite path or postgres URL)")
	rootCmd.PersistentFlags().StringVar(&storageDriver, "storage-driver", "", "storage driver (sqlite, postgres)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "directory for materialized artifacts")

	rootCmd.SetVersionTemplate(`custsync {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// globalFlags collects the persistent flags in the shape config.Load merges
func globalFlags() map[string]interface{} {
	return map[string]interface{}{
		"upstream-url":   upstreamURL,
		"database-url":   databaseURL,
		"storage-driver": storageDriver,
		"output":         outputDir,
		"log-level":      logLevel,
	}
}
