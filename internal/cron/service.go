package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
)

const (
	defaultInterval = 15 * time.Minute
	// jobShare bounds a single job to a fraction of the interval so one slow job
	// cannot keep the lock past the next tick.
	jobShare = 2
)

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	Now      func() time.Time
}

// Service runs the registered jobs once per interval on whichever replica holds the lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}
	svc := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		now:      params.Now,
	}
	if svc.registry == nil {
		svc.registry = NewRegistry()
	}
	if svc.interval <= 0 {
		svc.interval = defaultInterval
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	return svc, nil
}

// Run executes a cycle immediately and then on every tick until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle.failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// runCycle returns the combined error of every failed job. A failing job does not
// stop the ones after it.
func (s *Service) runCycle(ctx context.Context) (err error) {
	locked, lockErr := s.lock.Acquire(ctx)
	if lockErr != nil {
		return fmt.Errorf("acquire cron lock: %w", lockErr)
	}
	if !locked {
		s.logg.Info(ctx, "cron.cycle.skipped_lock_held")
		return nil
	}
	defer func() {
		err = multierr.Append(err, s.lock.Release(ctx))
	}()

	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx, cancel := context.WithTimeout(ctx, s.interval/jobShare)
	defer cancel()
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"job": name, "event": "cron.job"})

	started := s.now()
	runErr := job.Run(jobCtx)
	elapsed := s.now().Sub(started)
	s.metrics.ObserveDuration(name, elapsed)

	logCtx := s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if runErr != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(logCtx, "cron.job.failed", runErr)
		return fmt.Errorf("job %s: %w", name, runErr)
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(logCtx, "cron.job.completed")
	return nil
}
