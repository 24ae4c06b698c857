// Package lock provides per-collection leases so at most one job runs
// against a collection at a time.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrLocked is returned by Acquire when another holder owns the key
var ErrLocked = errors.New("lock: already held")

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases by key
type Locker interface {
	// Acquire takes the lease without waiting; ErrLocked when it is held
	Acquire(ctx context.Context, key string) (Lease, error)
}

// MemoryLocker is an in-process Locker
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]string)}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	token := uuid.NewString()
	m.held[key] = token
	return &memoryLease{locker: m, key: key, token: token}, nil
}

// Held reports whether key is currently leased
func (m *MemoryLocker) Held(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[key]
	return ok
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
	once   sync.Once
}

func (l *memoryLease) Key() string { return l.key }

func (l *memoryLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.locker.mu.Lock()
		defer l.locker.mu.Unlock()
		if l.locker.held[l.key] == l.token {
			delete(l.locker.held, l.key)
		}
	})
	return nil
}
