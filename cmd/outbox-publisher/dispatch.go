package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/outbox/registry"
)

// outcome is what happened to one row and decides how it is marked.
type outcome struct {
	published bool
	retryable error
	terminal  error
	reason    enums.OutboxDLQErrorReason
	topic     string
	eventID   string
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.settle(ctx, tx, event, s.dispatch(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch resolves and publishes one row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{terminal: err, reason: terminalReason(err)}
	}
	out := outcome{topic: resolved.Descriptor.Topic, eventID: resolved.Envelope.EventID}

	pub := s.publisherFor(out.topic)
	if pub == nil {
		out.terminal = fmt.Errorf("no publisher for topic %s", out.topic)
		out.reason = enums.OutboxDLQReasonNonRetryable
		return out
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, message(event, out.eventID))
	if result == nil {
		out.terminal = fmt.Errorf("publisher for %s returned no result", out.topic)
		out.reason = enums.OutboxDLQReasonNonRetryable
		return out
	}
	if _, err := result.Get(publishCtx); err != nil {
		var nonRetry registry.NonRetryableError
		if errors.As(err, &nonRetry) {
			out.terminal, out.reason = err, terminalReason(err)
			return out
		}
		if event.AttemptCount+1 >= s.maxAttempts {
			out.terminal = fmt.Errorf("max publish attempts reached: %w", err)
			out.reason = enums.OutboxDLQReasonMaxAttempts
			return out
		}
		out.retryable = err
		return out
	}
	out.published = true
	return out
}

func message(event models.OutboxEvent, eventID string) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       eventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID,
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}

// settle records the outcome on the row inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	eventType := string(event.EventType)
	logCtx := s.logg.WithFields(ctx, s.eventFields(event, out))

	switch {
	case out.published:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.Published(eventType)
		s.logg.Info(logCtx, "outbox.event.published")
		return nil

	case out.retryable != nil:
		retryAt := s.now().Add(retryDelay(event.AttemptCount + 1))
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"error":           out.retryable.Error(),
			"next_attempt_at": retryAt.UTC().Format(time.RFC3339),
		})
		s.logg.Warn(logCtx, "outbox.event.retry_scheduled")
		s.metrics.Failed(eventType)
		if err := s.repo.MarkFailedTx(tx, event.ID, out.retryable, retryAt); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil

	default:
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"error":        out.terminal.Error(),
			"error_reason": out.reason,
		})
		s.logg.Warn(logCtx, "outbox.event.dead_lettered")
		msg := out.terminal.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      s.now().UTC(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.MarkTerminalTx(tx, event.ID, out.terminal, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.DeadLettered(eventType, string(out.reason))
		return nil
	}
}

// terminalReason keeps the registry's classification, e.g. unknown_event.
func terminalReason(err error) enums.OutboxDLQErrorReason {
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) && nonRetry.Reason != "" {
		return nonRetry.Reason
	}
	return enums.OutboxDLQReasonNonRetryable
}

func (s *Service) eventFields(event models.OutboxEvent, out outcome) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID,
		"attempt_count":  event.AttemptCount,
	}
	if out.eventID != "" {
		fields["event_id"] = out.eventID
	}
	if out.topic != "" {
		fields["topic"] = out.topic
	}
	return fields
}
