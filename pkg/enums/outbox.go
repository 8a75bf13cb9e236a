package enums

import "slices"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateCheckoutSession OutboxAggregateType = "checkout_session"
	AggregateOrder           OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateCheckoutSession,
	AggregateOrder,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventCheckoutOrdersCreated OutboxEventType = "checkout.orders_created"
	EventCheckoutSettled       OutboxEventType = "checkout.settled"
	EventCheckoutPaymentFailed OutboxEventType = "checkout.payment_failed"
	EventCheckoutExpired       OutboxEventType = "checkout.expired"
	EventOrderStatusChanged    OutboxEventType = "order.status_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventCheckoutOrdersCreated,
	EventCheckoutSettled,
	EventCheckoutPaymentFailed,
	EventCheckoutExpired,
	EventOrderStatusChanged,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse(validOutboxEventTypes, value, "event type")
}
