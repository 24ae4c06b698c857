package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"custsync/pkg/auth"
	"custsync/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage custsync configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (CUSTSYNC_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'custsync.yaml'
unless a different path is specified with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the effective configuration after merging every source.

Secrets such as the upstream token and the storage DSN are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# custsync configuration file
#
# Every option can also be set through CUSTSYNC_* environment variables,
# for example CUSTSYNC_UPSTREAM_URL or CUSTSYNC_DATABASE_URL.

upstream:
  # Base URL of the paginated API (required)
  base_url: "https://api.example.com/v1"
  # Bearer token; prefer 'custsync auth login' to keep it out of this file
  token: ""
  timeout: 30s
  user_agent: "custsync/1.0"
  # Outbound request cap including retries; 0 disables it
  requests_per_minute: 0

# Collections that may be ingested; path defaults to the name
collections:
  - name: customers
  - name: customer_archive
    path: customers/archived

paging:
  page_size: 250
  # Pause between consecutive page requests
  page_delay: 500ms
  # Stop a run after this many pages; 0 means unlimited
  max_pages: 0

retry:
  max_attempts: 3
  base_delay: 1s
  max_delay: 30s

storage:
  # sqlite or postgres
  driver: sqlite
  dsn: "custsync.db"

lock:
  # memory for a single process, redis to share leases across processes
  backend: memory
  redis_addr: "localhost:6379"
  redis_db: 0
  ttl: 30s

runner:
  workers: 4
  queue_size: 16

output:
  directory: "./exports"

server:
  addr: ":8080"

logging:
  # debug, info, warn, error
  level: info
  # console or json
  format: console
  # Optional log file; empty logs to stderr
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = "custsync.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set upstream.base_url and the collections you want to sync")
	fmt.Println("2. Run 'custsync auth login' to store the API token")
	fmt.Println("3. Run 'custsync config validate' to check the configuration")
	fmt.Println("4. Start a sync with 'custsync start <collection>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	display := *cfg
	if display.Upstream.Token != "" {
		display.Upstream.Token = auth.MaskToken(display.Upstream.Token)
	}
	if display.Storage.Driver == "postgres" && display.Storage.DSN != "" {
		display.Storage.DSN = auth.MaskToken(display.Storage.DSN)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Println(ui.Magenta("Current Configuration"))
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (CUSTSYNC_*)")
	fmt.Println("3. .env and $HOME/.custsync.env")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (default locations)")
	}
	fmt.Println("5. Default values")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var warnings []string
	if len(cfg.Collections) == 0 {
		warnings = append(warnings, "no collections configured; every job request will be rejected")
	}
	if cfg.Upstream.Token == "" {
		if _, err := auth.NewManager().Retrieve(auth.HostKey(cfg.Upstream.BaseURL)); err != nil {
			warnings = append(warnings, "no upstream token in config, environment, keychain or token file")
		}
	}
	if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
		return fmt.Errorf("cannot create output directory: %w", err)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Upstream: %s\n", cfg.Upstream.BaseURL)
	fmt.Printf("  Collections: %d\n", len(cfg.Collections))
	fmt.Printf("  Storage: %s\n", cfg.Storage.Driver)
	fmt.Printf("  Lock backend: %s\n", cfg.Lock.Backend)
	fmt.Printf("  Page size: %d, delay %s\n", cfg.Paging.PageSize, cfg.Paging.PageDelay)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}
