package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const (
	keyringService = "custsync"
	keyringPrefix  = "token_"
)

// KeyringStore implements TokenStore using the system keychain
type KeyringStore struct{}

// NewKeyringStore fails when no keychain is reachable
func NewKeyringStore() (*KeyringStore, error) {
	testKey := "test_availability"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return nil, fmt.Errorf("keyring not available: %w", err)
	}
	_ = keyring.Delete(keyringService, testKey)

	return &KeyringStore{}, nil
}

func (k *KeyringStore) Store(token *Token) error {
	if token == nil || token.Host == "" {
		return ErrInvalidToken
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}
	if err := keyring.Set(keyringService, keyringPrefix+token.Host, string(data)); err != nil {
		return fmt.Errorf("failed to store in keyring: %w", err)
	}
	return nil
}

func (k *KeyringStore) Retrieve(host string) (*Token, error) {
	if host == "" {
		return nil, ErrInvalidToken
	}

	data, err := keyring.Get(keyringService, keyringPrefix+host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to retrieve from keyring: %w", err)
	}

	var token Token
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (k *KeyringStore) Delete(host string) error {
	if host == "" {
		return ErrInvalidToken
	}

	err := keyring.Delete(keyringService, keyringPrefix+host)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrTokenNotFound
		}
		return fmt.Errorf("failed to delete from keyring: %w", err)
	}
	return nil
}
