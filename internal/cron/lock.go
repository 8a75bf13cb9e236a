package cron

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lokrise/checkout/pkg/instance"
)

const defaultLockTTL = 14 * time.Minute

// Lock coordinates exclusive cron runs across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
}

// RedisLock implements Lock with SET NX and an owner token. Release is a compare-and-delete
// so an expired lock taken over by another replica is left alone.
type RedisLock struct {
	client lockStore
	key    string
	ttl    time.Duration
	owner  string
}

// NewRedisLock falls back to a 14 minute TTL when ttl is not positive.
func NewRedisLock(client lockStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case client == nil:
		return nil, errors.New("cron lock: redis client required")
	case key == "":
		return nil, errors.New("cron lock: key required")
	}
	return &RedisLock{client: client, key: key, ttl: cmp.Or(max(ttl, 0), defaultLockTTL)}, nil
}

// Acquire takes the lock under a fresh owner token; false means another replica holds it.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := fmt.Sprintf("%s:%s", instance.ID(), uuid.NewString())
	acquired, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	switch {
	case err != nil:
		return false, fmt.Errorf("cron lock %s: %w", l.key, err)
	case acquired:
		l.owner = token
	}
	return acquired, nil
}

// Release is a no-op unless this lock acquired the key. It survives ctx cancellation.
func (l *RedisLock) Release(ctx context.Context) error {
	token := l.owner
	if token == "" {
		return nil
	}
	l.owner = ""
	if _, err := l.client.ReleaseIfOwner(context.WithoutCancel(ctx), l.key, token); err != nil {
		return fmt.Errorf("release cron lock %s: %w", l.key, err)
	}
	return nil
}
