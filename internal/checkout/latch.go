package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lokrise/checkout/pkg/db/models"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
)

const defaultLatchTTL = 60 * time.Second

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, owner string) (bool, error)
	CheckoutLockKey(sessionID string) string
}

// orderLatch makes order creation run at most once per session. Concurrent callers in
// this process share one execution; callers on other instances lose the Redis lock.
type orderLatch struct {
	group singleflight.Group
	locks lockStore
	ttl   time.Duration
	logg  *logger.Logger
}

func newOrderLatch(locks lockStore, ttl time.Duration, logg *logger.Logger) *orderLatch {
	if ttl <= 0 {
		ttl = defaultLatchTTL
	}
	return &orderLatch{locks: locks, ttl: ttl, logg: logg}
}

func errLatchHeld() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "orders are already being created for this checkout").
		WithRetryable(true)
}

func (l *orderLatch) do(ctx context.Context, sessionID uuid.UUID, fn func() (*models.CheckoutSession, error)) (*models.CheckoutSession, error) {
	key := sessionID.String()
	v, err, _ := l.group.Do(key, func() (any, error) {
		owner := uuid.NewString()
		lockKey := l.locks.CheckoutLockKey(key)
		acquired, err := l.locks.SetNX(ctx, lockKey, owner, l.ttl)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire order creation lock")
		}
		if !acquired {
			return nil, errLatchHeld()
		}
		defer func() {
			if _, err := l.locks.ReleaseIfOwner(context.WithoutCancel(ctx), lockKey, owner); err != nil {
				l.logg.Error(ctx, "checkout.latch.release_failed", err)
			}
		}()
		return fn()
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CheckoutSession), nil
}
