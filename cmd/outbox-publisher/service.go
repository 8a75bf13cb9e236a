package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, nextAttemptAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
	Now              func() time.Time
}

// Service drains outbox_events to Pub/Sub. Rows are claimed inside one transaction
// per batch, so a crash before commit leaves them for the next poll.
type Service struct {
	logg     *logger.Logger
	db       dbClient
	repo     outboxRepository
	pubsub   pubSubClient
	registry registryResolver
	dlq      dlqRepository
	metrics  *metrics.OutboxMetrics
	now      func() time.Time

	newPublisher publisherFactory
	pubMu        sync.Mutex
	publishers   map[string]publisher

	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.DLQRepository == nil:
		return nil, errors.New("dlq repository is required")
	}

	s := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		pubsub:       params.PubSub,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		now:          params.Now,
		newPublisher: params.PublisherFactory,
		publishers:   map[string]publisher{},
		batchSize:    orDefault(params.Config.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:  orDefault(params.Config.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if s.pollInterval <= 0 {
		s.pollInterval = defaultPollInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newPublisher == nil {
		s.newPublisher = func(topic string) publisher {
			return newGCPPublisher(params.PubSub.Publisher(topic))
		}
	}
	return s, nil
}

func orDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run polls until ctx is done. Empty polls sleep the interval; batch errors back off.
func (s *Service) Run(ctx context.Context) error {
	defer s.stopPublishers()

	for name, ping := range map[string]func(context.Context) error{"database": s.db.Ping, "pubsub": s.pubsub.Ping} {
		if err := ping(ctx); err != nil {
			s.logg.Error(ctx, name+" ping failed", err)
			return fmt.Errorf("%s ping: %w", name, err)
		}
	}

	wait := s.pollInterval
	for {
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch.failed", err)
			wait = nextBackoff(wait, s.pollInterval)
		case processed:
			wait = s.pollInterval
			if ctx.Err() == nil {
				continue
			}
		default:
			wait = s.pollInterval
		}
		if err := sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// publisherFor reuses one publisher per topic for the life of the service.
func (s *Service) publisherFor(topic string) publisher {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	if p, ok := s.publishers[topic]; ok {
		return p
	}
	p := s.newPublisher(topic)
	if p != nil {
		s.publishers[topic] = p
	}
	return p
}

func (s *Service) stopPublishers() {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	for topic, p := range s.publishers {
		if stopper, ok := p.(interface{ Stop() }); ok {
			stopper.Stop()
		}
		delete(s.publishers, topic)
	}
}
