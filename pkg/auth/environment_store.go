package auth

import (
	"os"
	"time"
)

// TokenEnvVar holds a token that applies to any host
const TokenEnvVar = "CUSTSYNC_UPSTREAM_TOKEN"

// EnvironmentStore is a read-only TokenStore over TokenEnvVar
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(token *Token) error {
	return ErrStoreUnavailable
}

func (e *EnvironmentStore) Retrieve(host string) (*Token, error) {
	value := os.Getenv(TokenEnvVar)
	if value == "" {
		return nil, ErrTokenNotFound
	}
	return &Token{Host: host, Value: value, LastModified: time.Now()}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(host string) error {
	return ErrStoreUnavailable
}
