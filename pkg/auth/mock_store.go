package auth

import "sync"

// MockStore is an in-memory TokenStore for tests
type MockStore struct {
	tokens map[string]*Token
	mu     sync.RWMutex

	// Error injection
	StoreError    error
	RetrieveError error
	DeleteError   error
}

func NewMockStore() *MockStore {
	return &MockStore{tokens: make(map[string]*Token)}
}

func (m *MockStore) Store(token *Token) error {
	if m.StoreError != nil {
		return m.StoreError
	}
	if token == nil || token.Host == "" {
		return ErrInvalidToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *token
	m.tokens[token.Host] = &cp
	return nil
}

func (m *MockStore) Retrieve(host string) (*Token, error) {
	if m.RetrieveError != nil {
		return nil, m.RetrieveError
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.tokens[host]
	if !ok {
		return nil, ErrTokenNotFound
	}
	cp := *token
	return &cp, nil
}

func (m *MockStore) Delete(host string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[host]; !ok {
		return ErrTokenNotFound
	}
	delete(m.tokens, host)
	return nil
}

// Count returns the number of stored tokens
func (m *MockStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
