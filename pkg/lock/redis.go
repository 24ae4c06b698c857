package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"custsync/pkg/logger"
)

const keyPrefix = "custsync:lock:"

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisLocker shares leases across processes through Redis. A lease
// expires after ttl unless its holder keeps refreshing it, so a crashed
// holder frees the collection on its own.
type RedisLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger logger.Logger
}

func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, log logger.Logger) *RedisLocker {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, ttl: ttl, logger: log.WithField("component", "lock")}
}

func (r *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, keyPrefix+key, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	lease := &redisLease{
		locker: r,
		key:    key,
		token:  token,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go lease.keepAlive()
	return lease, nil
}

type redisLease struct {
	locker *RedisLocker
	key    string
	token  string
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	err    error
}

func (l *redisLease) Key() string { return l.key }

func (l *redisLease) keepAlive() {
	defer close(l.done)

	ticker := time.NewTicker(l.locker.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.locker.ttl/3)
			n, err := refreshScript.Run(ctx, l.locker.client,
				[]string{keyPrefix + l.key}, l.token, l.locker.ttl.Milliseconds()).Int()
			cancel()

			if err != nil {
				l.locker.logger.WithError(err).WarnWithFields("Lease refresh failed", map[string]interface{}{
					"key": l.key,
				})
				continue
			}
			if n == 0 {
				l.locker.logger.WarnWithFields("Lease lost", map[string]interface{}{
					"key": l.key,
				})
				return
			}
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		close(l.stop)
		<-l.done

		if err := releaseScript.Run(ctx, l.locker.client, []string{keyPrefix + l.key}, l.token).Err(); err != nil {
			l.err = fmt.Errorf("lock: release %s: %w", l.key, err)
		}
	})
	return l.err
}
