package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/redis"
)

type fakeExpirer struct {
	cutoff  time.Time
	limit   int
	expired int
	err     error
}

func (f *fakeExpirer) ExpireBefore(_ context.Context, cutoff time.Time, limit int) (int, error) {
	f.cutoff = cutoff
	f.limit = limit
	return f.expired, f.err
}

func TestAbandonedCheckoutJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)
	expirer := &fakeExpirer{expired: 3}
	jobIface, err := NewAbandonedCheckoutJob(AbandonedCheckoutJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Expirer: expirer,
		After:   6 * time.Hour,
	})
	if err != nil {
		t.Fatalf("NewAbandonedCheckoutJob: %v", err)
	}
	job := jobIface.(*abandonedCheckoutJob)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-6 * time.Hour); !expirer.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, expirer.cutoff)
	}
	if expirer.limit != defaultAbandonBatch {
		t.Fatalf("expected batch %d, got %d", defaultAbandonBatch, expirer.limit)
	}
}

func TestAbandonedCheckoutJobReturnsExpiryErrors(t *testing.T) {
	jobIface, err := NewAbandonedCheckoutJob(AbandonedCheckoutJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "test"}),
		Expirer: &fakeExpirer{expired: 1, err: errors.New("cancel failed")},
	})
	if err != nil {
		t.Fatalf("NewAbandonedCheckoutJob: %v", err)
	}
	if err := jobIface.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestRedisLockIsExclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewWithClient(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	key := client.CronLockKey("abandoned_checkout")

	first, err := NewRedisLock(client, key, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(client, key, time.Minute)
	ctx := context.Background()

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, err := second.Acquire(ctx); err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if !mr.Exists(key) {
		t.Fatal("non-owner release removed the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, err := second.Acquire(ctx); err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}
