package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// ErrLockTimeout is returned when another upload holds the lock for longer than the
// configured wait.
var ErrLockTimeout = errors.New("another catalog upload is in progress")

// UploadLock serializes catalog uploads per backend.
type UploadLock interface {
	// Acquire blocks until the lock named name is held or wait elapses.
	Acquire(ctx context.Context, name string, wait time.Duration) (release func(), err error)
}

// LocalUploadLock is an in-process lock, enough for a single replica.
type LocalUploadLock struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewLocalUploadLock() *LocalUploadLock {
	return &LocalUploadLock{slots: make(map[string]chan struct{})}
}

func (l *LocalUploadLock) slot(name string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[name]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[name] = ch
	}
	return ch
}

func (l *LocalUploadLock) Acquire(ctx context.Context, name string, wait time.Duration) (func(), error) {
	ch := l.slot(name)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

const (
	uploadLockPrefix = "catalog:upload-lock:"
	uploadLockTTL    = 5 * time.Minute
	lockPollInterval = 100 * time.Millisecond
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisUploadLock is a SET NX lock shared by every replica using the same Redis.
type RedisUploadLock struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisUploadLock(rdb *redis.Client) *RedisUploadLock {
	return &RedisUploadLock{redis: rdb, ttl: uploadLockTTL}
}

// UploadLockKey returns the Redis key guarding uploads to backend name.
func UploadLockKey(name string) string {
	return uploadLockPrefix + name
}

func (l *RedisUploadLock) Acquire(ctx context.Context, name string, wait time.Duration) (func(), error) {
	token, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("generate lock token: %w", err)
	}
	key := UploadLockKey(name)
	deadline := time.Now().Add(wait)

	for {
		ok, err := l.redis.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire upload lock: %w", err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.redis, []string{key}, token).Err(); err != nil && err != redis.Nil {
					zap.L().Warn("Failed to release upload lock", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}
