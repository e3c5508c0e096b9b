package cache

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eynsfordcq/aws-s3-file-segregation/internal/config"
)

const (
	runLockKeyPrefix  = "segregation:lock:"
	defaultRunLockTTL = time.Hour
)

var (
	// ErrRunLocked means another run holds the lock for the same source.
	ErrRunLocked = errors.New("run already in progress")
	// ErrLockLost means the lease expired or was taken over before release.
	ErrLockLost = errors.New("run lock lost before release")
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release gives a lease back.
type Release func(ctx context.Context) error

// RunLock serialises runs over the same source prefix across processes.
type RunLock interface {
	// Acquire returns ErrRunLocked when the key is already held.
	Acquire(ctx context.Context, key string) (Release, error)
	Close() error
}

type redisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

type noopRunLock struct{}

// NewRunLock returns a redis backed lock, or a no-op lock when disabled.
func NewRunLock(cfg config.LockConfig) (RunLock, error) {
	if !cfg.Enabled {
		return NewNoopRunLock(), nil
	}

	client, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}

	return &redisRunLock{client: client, ttl: ttl}, nil
}

func NewNoopRunLock() RunLock {
	return &noopRunLock{}
}

func (l *redisRunLock) Acquire(ctx context.Context, key string) (Release, error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	redisKey := runLockKeyPrefix + key
	ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if !ok {
		return nil, ErrRunLocked
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int()
		if err != nil {
			return fmt.Errorf("redis release failed: %w", err)
		}
		if n == 0 {
			return ErrLockLost
		}
		return nil
	}, nil
}

func (l *redisRunLock) Close() error {
	return l.client.Close()
}

func (l *noopRunLock) Acquire(ctx context.Context, key string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

func (l *noopRunLock) Close() error {
	return nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
