package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
)

const (
	abandonedCheckoutJobName = "abandoned-checkout"
	defaultAbandonAfter      = 24 * time.Hour
	defaultAbandonBatch      = 100
)

type checkoutExpirer interface {
	ExpireBefore(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type AbandonedCheckoutJobParams struct {
	Logger    *logger.Logger
	Expirer   checkoutExpirer
	Metrics   *metrics.CronJobMetrics
	After     time.Duration
	BatchSize int
}

// NewAbandonedCheckoutJob builds the job that expires checkouts left unsettled for longer
// than After and cancels their unpaid orders.
func NewAbandonedCheckoutJob(params AbandonedCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("checkout expirer required")
	}
	after := params.After
	if after <= 0 {
		after = defaultAbandonAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAbandonBatch
	}
	return &abandonedCheckoutJob{
		logg:    params.Logger,
		expirer: params.Expirer,
		metrics: params.Metrics,
		after:   after,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type abandonedCheckoutJob struct {
	logg    *logger.Logger
	expirer checkoutExpirer
	metrics *metrics.CronJobMetrics
	after   time.Duration
	batch   int
	now     func() time.Time
}

func (j *abandonedCheckoutJob) Name() string { return abandonedCheckoutJobName }

func (j *abandonedCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.after)
	expired, err := j.expirer.ExpireBefore(ctx, cutoff, j.batch)
	j.metrics.AddProcessed(j.Name(), expired)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"expired": expired,
	})
	if err != nil {
		return fmt.Errorf("abandoned checkout expiry: %w", err)
	}
	j.logg.Info(logCtx, "abandoned checkout expiry complete")
	return nil
}
