package auth

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// Token is an upstream API token stored for one upstream host
type Token struct {
	Host         string    `json:"host"`
	Value        string    `json:"value"`
	LastModified time.Time `json:"last_modified"`
}

// TokenStore is the interface for storing and retrieving tokens
type TokenStore interface {
	Store(token *Token) error
	// Retrieve returns ErrTokenNotFound when host has no token
	Retrieve(host string) (*Token, error)
	Delete(host string) error
}

// Manager looks tokens up across stores in order
type Manager struct {
	stores []TokenStore
}

// NewManager uses the system keychain when available, then an encrypted
// file in the config directory, then the environment
func NewManager() *Manager {
	var stores []TokenStore
	if keyringStore, err := NewKeyringStore(); err == nil {
		stores = append(stores, keyringStore)
	}
	if dir, err := ConfigDir(); err == nil {
		if fileStore, err := NewEncryptedFileStore(filepath.Join(dir, "tokens.enc")); err == nil {
			stores = append(stores, fileStore)
		}
	}
	stores = append(stores, NewEnvironmentStore())
	return &Manager{stores: stores}
}

// ConfigDir returns the per-user directory for custsync state
func ConfigDir() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support", "custsync"), nil
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "custsync"), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "custsync"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "custsync"), nil
	}
}

// NewManagerWithStores creates a manager over the given stores
func NewManagerWithStores(stores ...TokenStore) *Manager {
	return &Manager{stores: stores}
}

// Store saves the token in the first store that accepts it
func (m *Manager) Store(token *Token) error {
	if token == nil || token.Host == "" {
		return errors.New("host is required")
	}
	if strings.TrimSpace(token.Value) == "" {
		return errors.New("token is required")
	}
	token.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		err := store.Store(token)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return fmt.Errorf("failed to store token: %w", lastErr)
	}
	return ErrStoreUnavailable
}

// Retrieve gets the token from the first store that has it
func (m *Manager) Retrieve(host string) (*Token, error) {
	for _, store := range m.stores {
		if token, err := store.Retrieve(host); err == nil && token != nil {
			return token, nil
		}
	}
	return nil, fmt.Errorf("%w for host %s", ErrTokenNotFound, host)
}

// Resolve returns configured if set, otherwise the stored token for baseURL's host
func (m *Manager) Resolve(configured, baseURL string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	token, err := m.Retrieve(HostKey(baseURL))
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

// Delete removes the host's token from every store that holds it
func (m *Manager) Delete(host string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(host); err == nil {
			deleted = true
		} else if !errors.Is(err, ErrStoreUnavailable) {
			lastErr = err
		}
	}

	if deleted {
		return nil
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete token: %w", lastErr)
	}
	return fmt.Errorf("%w for host %s", ErrTokenNotFound, host)
}

// HostKey returns the key tokens are stored under for an upstream base URL
func HostKey(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSpace(baseURL)
	}
	return u.Host
}

// MaskToken masks all but the first 4 and last 4 characters of a token
func MaskToken(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

var (
	ErrTokenNotFound    = errors.New("token not found")
	ErrInvalidToken     = errors.New("invalid token")
	ErrStoreUnavailable = errors.New("token store unavailable")
)
