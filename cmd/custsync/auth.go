package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"custsync/pkg/auth"
	"custsync/pkg/ui"
)

var authHost string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage upstream API tokens",
	Long: `Manage the bearer token used against the upstream API.

Tokens are stored per upstream host in the system keychain. Hosts without a
keychain fall back to an encrypted file in the custsync config directory;
set ` + auth.PassphraseEnvVar + ` to choose its passphrase. A token set in the
config file or ` + auth.TokenEnvVar + ` takes precedence.`,
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an upstream API token",
	Example: `  # Token for the configured upstream
  custsync auth login

  # Token for a specific host
  custsync auth login --host api.example.com`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored upstream API token",
	Args:  cobra.NoArgs,
	RunE:  runLogout,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which token would be used",
	Args:  cobra.NoArgs,
	RunE:  runAuthStatus,
}

func init() {
	authCmd.PersistentFlags().StringVar(&authHost, "host", "", "upstream host (default is the configured upstream base URL)")
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(authStatusCmd)
}

// resolveHost picks the token host from --host or the configured base URL
func resolveHost() (string, error) {
	if authHost != "" {
		return auth.HostKey(authHost), nil
	}
	cfg, err := loadConfig(nil)
	if err != nil {
		return "", fmt.Errorf("%w (or pass --host)", err)
	}
	return auth.HostKey(cfg.Upstream.BaseURL), nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	host, err := resolveHost()
	if err != nil {
		return err
	}
	manager := auth.NewManager()
	auth.ShowLoginGuide(os.Stdout, host)

	if existing, _ := manager.Retrieve(host); existing != nil {
		fmt.Printf("A token for %s already exists (%s). Replace it? (y/N): ", host, auth.MaskToken(existing.Value))
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
			return nil
		}
	}

	fmt.Print("API token: ")
	value, err := readPassword()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read token: %w", err)
	}

	if err := manager.Store(&auth.Token{Host: host, Value: value}); err != nil {
		return err
	}
	ui.PrintSuccess("Token stored for " + host)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	host, err := resolveHost()
	if err != nil {
		return err
	}
	if err := auth.NewManager().Delete(host); err != nil {
		return err
	}
	ui.PrintSuccess("Token removed for " + host)
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	host, err := resolveHost()
	if err != nil {
		return err
	}
	ui.PrintInfo("Host", host)

	if cfg, err := loadConfig(nil); err == nil && cfg.Upstream.Token != "" {
		ui.PrintInfo("Token", auth.MaskToken(cfg.Upstream.Token)+" (config)")
		return nil
	}

	token, err := auth.NewManager().Retrieve(host)
	if errors.Is(err, auth.ErrTokenNotFound) {
		ui.PrintWarning("No token stored; run 'custsync auth login'")
		return nil
	}
	if err != nil {
		return err
	}
	ui.PrintInfo("Token", auth.MaskToken(token.Value))
	if !token.LastModified.IsZero() {
		ui.PrintInfo("Stored", token.LastModified.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// readPassword reads a line without echo when stdin is a terminal
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		bytePassword, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(bytePassword)), nil
	}

	reader := bufio.NewReader(os.Stdin)
	password, err := reader.ReadString('\n')
	if err != nil && password == "" {
		return "", err
	}
	return strings.TrimSpace(password), nil
}
