// Package locker provides a best-effort distributed lock used to serialize
// booking confirmations for the same slot. Correctness does not depend on it:
// the unique partial index on appointments is the hard guarantee.
package locker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotOwner = errors.New("lock not owned by this client")

type Locker interface {
	// TryLock attempts to acquire the key. It returns acquired=false without
	// error when the key is already held.
	TryLock(ctx context.Context, key string, ttl time.Duration) (acquired bool, token string, err error)
	Unlock(ctx context.Context, key, token string) error
}

type RedisLocker struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	token := uuid.NewString()
	acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, "", err
	}
	if !acquired {
		return false, "", nil
	}
	return true, token, nil
}

func (l *RedisLocker) Unlock(ctx context.Context, key, token string) error {
	stored, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if stored != token {
		return ErrNotOwner
	}
	return l.client.Del(ctx, key).Err()
}

// LocalLocker is the in-process fallback when redis is not configured. It
// serializes confirms within a single instance only.
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]localEntry)}
}

func (l *LocalLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return false, "", nil
	}
	token := uuid.NewString()
	l.held[key] = localEntry{token: token, expires: now.Add(ttl)}
	return true, token, nil
}

func (l *LocalLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok {
		return nil
	}
	if entry.token != token {
		return ErrNotOwner
	}
	delete(l.held, key)
	return nil
}
