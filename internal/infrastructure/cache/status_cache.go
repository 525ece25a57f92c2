package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"bastion-server/internal/domain/billing"
	"bastion-server/internal/infrastructure/logger"
)

const localStatusEntries = 10000

type localEntry struct {
	status    billing.Status
	expiresAt time.Time
}

// StatusCache keeps billing status lookups in redis when configured and in a process local LRU
// otherwise.
type StatusCache struct {
	redis *RedisCache
	local *lru.Cache
	log   zerolog.Logger
	now   func() time.Time
}

var _ billing.StatusCache = (*StatusCache)(nil)

// NewStatusCache returns a cache backed by redis, or by a local LRU when redis is nil.
func NewStatusCache(redis *RedisCache) *StatusCache {
	local, _ := lru.New(localStatusEntries)
	return &StatusCache{
		redis: redis,
		local: local,
		log:   logger.Component("billing-status-cache"),
		now:   time.Now,
	}
}

func statusKey(userID string) string {
	return "billing:status:" + userID
}

func (c *StatusCache) Get(ctx context.Context, userID string) (*billing.Status, bool) {
	if c.redis != nil {
		raw, err := c.redis.Get(ctx, statusKey(userID))
		if err != nil {
			if err != ErrCacheMiss {
				c.log.Warn().Err(err).Msg("status cache read failed")
			}
			return nil, false
		}
		var status billing.Status
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			return nil, false
		}
		return &status, true
	}

	value, ok := c.local.Get(userID)
	if !ok {
		return nil, false
	}
	entry := value.(localEntry)
	if c.now().After(entry.expiresAt) {
		c.local.Remove(userID)
		return nil, false
	}
	status := entry.status
	return &status, true
}

func (c *StatusCache) Set(ctx context.Context, userID string, status billing.Status, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if c.redis != nil {
		raw, err := json.Marshal(status)
		if err != nil {
			return
		}
		if err := c.redis.Set(ctx, statusKey(userID), string(raw), ttl); err != nil {
			c.log.Warn().Err(err).Msg("status cache write failed")
		}
		return
	}
	c.local.Add(userID, localEntry{status: status, expiresAt: c.now().Add(ttl)})
}

func (c *StatusCache) Delete(ctx context.Context, userID string) {
	if c.redis != nil {
		if err := c.redis.Delete(ctx, statusKey(userID)); err != nil {
			c.log.Warn().Err(err).Msg("status cache invalidation failed")
		}
		return
	}
	c.local.Remove(userID)
}

// KeyedLocker serialises work per key inside one process. It backs billing provisioning when
// redis is not configured.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	ch   chan struct{}
	refs int
}

var _ billing.Locker = (*KeyedLocker)(nil)

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: map[string]*keyedLock{}}
}

func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &keyedLock{ch: make(chan struct{}, 1)}
		l.locks[key] = lock
	}
	lock.refs++
	l.mu.Unlock()

	select {
	case lock.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, lock)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.ch
			l.release(key, lock)
		})
	}, nil
}

func (l *KeyedLocker) release(key string, lock *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, key)
	}
}

// NewBillingLocker prefers the distributed redis lock.
func NewBillingLocker(redis *RedisCache) billing.Locker {
	if redis != nil {
		return redis
	}
	return NewKeyedLocker()
}
