package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
	"github.com/lokrise/checkout/pkg/outbox/registry"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestProcessBatchReschedulesFailureAndPublishesRest(t *testing.T) {
	repo := &fakeRepo{events: []models.OutboxEvent{
		settledEvent(t, "event-one", 0),
		settledEvent(t, "event-two", 0),
	}}
	pub := &fakePublisher{results: []publishResult{
		fakePublishResult{err: errors.New("transient")},
		fakePublishResult{},
	}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: settledResolved()}, &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.True(t, processed)
	assert.Equal(t, []uuid.UUID{repo.events[0].ID}, repo.failed)
	assert.Equal(t, []uuid.UUID{repo.events[1].ID}, repo.published)
	require.Len(t, repo.retryAt, 1)
	assert.True(t, repo.retryAt[0].Equal(fixedNow.Add(baseRetryDelay)), "retry at %s", repo.retryAt[0])
}

func TestProcessBatchSetsMessageAttributes(t *testing.T) {
	event := settledEvent(t, "attrs", 0)
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}}}
	service := newTestService(t, &fakeRepo{events: []models.OutboxEvent{event}}, pub, &fakeRegistry{resolved: settledResolved()}, &fakeDLQRepo{}, nil)

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.messages, 1)

	msg := pub.messages[0]
	assert.Equal(t, string(enums.EventCheckoutSettled), msg.Attributes["event_type"])
	assert.Equal(t, event.AggregateID, msg.Attributes["aggregate_id"])
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.True(t, bytes.Equal(msg.Data, event.Payload), "message data should be the stored envelope")
}

func TestProcessBatchDeadLetters(t *testing.T) {
	tests := []struct {
		name     string
		attempts int
		cfg      *config.OutboxConfig
		resolver func(t *testing.T) registryResolver
		eventFn  func(*models.OutboxEvent)
		results  []publishResult
		reason   enums.OutboxDLQErrorReason
	}{
		{
			name: "non-retryable resolve error",
			resolver: func(*testing.T) registryResolver {
				return &fakeRegistry{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
			},
			reason: enums.OutboxDLQReasonNonRetryable,
		},
		{
			name: "unknown event type keeps registry reason",
			resolver: func(t *testing.T) registryResolver {
				reg, err := registry.NewEventRegistry(config.PubSubConfig{CheckoutTopic: "checkout", OrdersTopic: "orders"})
				require.NoError(t, err)
				return reg
			},
			eventFn: func(e *models.OutboxEvent) { e.EventType = "checkout.renamed" },
			reason:  enums.OutboxDLQReasonUnknownEvent,
		},
		{
			name:     "max attempts reached",
			attempts: 1,
			cfg:      &config.OutboxConfig{BatchSize: 1, PollIntervalMS: 100, MaxAttempts: 2},
			resolver: func(*testing.T) registryResolver { return &fakeRegistry{resolved: settledResolved()} },
			results:  []publishResult{fakePublishResult{err: errors.New("transient")}},
			reason:   enums.OutboxDLQReasonMaxAttempts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := settledEvent(t, "dead", tt.attempts)
			if tt.eventFn != nil {
				tt.eventFn(&event)
			}
			repo := &fakeRepo{events: []models.OutboxEvent{event}}
			dlq := &fakeDLQRepo{}
			service := newTestService(t, repo, &fakePublisher{results: tt.results}, tt.resolver(t), dlq, tt.cfg)

			processed, err := service.processBatch(context.Background())
			require.NoError(t, err)
			assert.True(t, processed)

			require.Len(t, dlq.entries, 1)
			entry := dlq.entries[0]
			assert.Equal(t, event.ID, entry.EventID)
			assert.Equal(t, tt.reason, entry.ErrorReason)
			assert.True(t, bytes.Equal(entry.Payload, event.Payload))
			require.NotNil(t, entry.ErrorMessage)
			assert.Equal(t, []uuid.UUID{event.ID}, repo.terminal)
			assert.Empty(t, repo.failed, "dead-lettered rows are not rescheduled")
		})
	}
}

func TestPublishersAreReusedPerTopicAndStopped(t *testing.T) {
	var built int
	pub := &fakePublisher{results: []publishResult{fakePublishResult{}, fakePublishResult{}}}
	repo := &fakeRepo{events: []models.OutboxEvent{settledEvent(t, "a", 0), settledEvent(t, "b", 0)}}
	service := newTestService(t, repo, pub, &fakeRegistry{resolved: settledResolved()}, &fakeDLQRepo{}, nil)
	service.newPublisher = func(string) publisher {
		built++
		return pub
	}

	_, err := service.processBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, built)
	assert.Len(t, repo.published, 2)

	service.stopPublishers()
	assert.True(t, pub.stopped)
	assert.Empty(t, service.publishers)
}

func TestRetryDelayDoublesAndCaps(t *testing.T) {
	assert.Equal(t, baseRetryDelay, retryDelay(1))
	assert.Equal(t, 2*baseRetryDelay, retryDelay(2))
	assert.Equal(t, 4*baseRetryDelay, retryDelay(3))
	assert.Equal(t, maxRetryDelay, retryDelay(50))
}

func TestNextBackoffCapsPollWait(t *testing.T) {
	base := 100 * time.Millisecond
	assert.Equal(t, 2*base, nextBackoff(0, base))
	assert.Equal(t, maxPollBackoff, nextBackoff(maxPollBackoff, base))
}

func newTestService(t *testing.T, repo outboxRepository, pub publisher, resolver registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) *Service {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	service, err := NewService(ServiceParams{
		Config:           &config.Config{Outbox: outboxCfg},
		Logger:           logg,
		DB:               &fakeDB{},
		PubSub:           &fakePubSubClient{},
		Repository:       repo,
		Registry:         resolver,
		PublisherFactory: func(_ string) publisher { return pub },
		DLQRepository:    dlq,
		Now:              func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return service
}

func settledEvent(tb testing.TB, eventID string, attempts int) models.OutboxEvent {
	tb.Helper()
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventCheckoutSettled,
		AggregateType: enums.AggregateCheckoutSession,
		AggregateID:   uuid.NewString(),
		Payload:       mustEnvelopePayload(tb, eventID),
		AttemptCount:  attempts,
	}
}

func settledResolved() *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			Topic:         "checkout-topic",
			AggregateType: enums.AggregateCheckoutSession,
		},
		Envelope: outbox.PayloadEnvelope{
			EventID:    uuid.NewString(),
			OccurredAt: fixedNow,
		},
		Payload: &payloads.CheckoutSettledEvent{},
	}
}

func mustEnvelopePayload(tb testing.TB, eventID string) json.RawMessage {
	tb.Helper()
	env := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: fixedNow,
		Data:       json.RawMessage(`{"sessionId":"s-1"}`),
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return payload
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	retryAt   []time.Time
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, nextAttemptAt time.Time) error {
	f.failed = append(f.failed, id)
	f.retryAt = append(f.retryAt, nextAttemptAt)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type fakePubSubClient struct{}

func (f *fakePubSubClient) Ping(context.Context) error {
	return nil
}

func (f *fakePubSubClient) Publisher(name string) *gcppubsub.Publisher {
	return nil
}

type fakePublisher struct {
	results  []publishResult
	messages []*gcppubsub.Message
	stopped  bool
}

func (f *fakePublisher) Stop() { f.stopped = true }

func (f *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	if len(f.results) == 0 {
		return nil
	}
	result := f.results[0]
	f.results = f.results[1:]
	return result
}

type fakePublishResult struct {
	err error
}

func (f fakePublishResult) Get(context.Context) (string, error) {
	return "", f.err
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.resolved == nil {
		return nil, f.err
	}
	resolved := *f.resolved
	resolved.Descriptor.AggregateType = event.AggregateType
	resolved.Envelope.EventID = event.ID.String()
	return &resolved, f.err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
