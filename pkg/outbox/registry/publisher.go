package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, topic and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          strings.TrimSpace(topic),
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes checkout events to the checkout topic and order events to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	checkoutTopic, ordersTopic := strings.TrimSpace(cfg.CheckoutTopic), strings.TrimSpace(cfg.OrdersTopic)
	switch {
	case checkoutTopic == "":
		return nil, errors.New("checkout topic is required")
	case ordersTopic == "":
		return nil, errors.New("orders topic is required")
	}

	session := enums.AggregateCheckoutSession
	descriptors := []EventDescriptor{
		describe[payloads.CheckoutOrdersCreatedEvent](enums.EventCheckoutOrdersCreated, session, checkoutTopic),
		describe[payloads.CheckoutSettledEvent](enums.EventCheckoutSettled, session, checkoutTopic),
		describe[payloads.CheckoutPaymentFailedEvent](enums.EventCheckoutPaymentFailed, session, checkoutTopic),
		describe[payloads.CheckoutExpiredEvent](enums.EventCheckoutExpired, session, checkoutTopic),
		describe[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder, ordersTopic),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the typed payload.
// Every failure is non-retryable: a malformed row stays malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, unknownEvent(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if err := checkRow(desc, event); err != nil {
		return nil, NewNonRetryableError(err)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("payload missing for %s", event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}

func checkRow(desc EventDescriptor, event models.OutboxEvent) error {
	if desc.AggregateType != event.AggregateType {
		return fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	}
	if strings.TrimSpace(event.AggregateID) == "" {
		return errors.New("missing aggregate_id")
	}
	return nil
}
