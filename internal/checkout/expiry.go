package checkout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
)

const abandonNote = "checkout abandoned"

type orderCanceller interface {
	CancelOrder(ctx context.Context, orderID, note string) bool
}

type ExpirerParams struct {
	Tx         txRunner
	Repository Repository
	Orders     orderCanceller
	Outbox     outboxPublisher
	Metrics    *metrics.CheckoutMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// Expirer closes sessions that were never settled and cancels their unpaid orders.
type Expirer struct {
	tx      txRunner
	repo    Repository
	orders  orderCanceller
	outbox  outboxPublisher
	metrics *metrics.CheckoutMetrics
	logg    *logger.Logger
	now     func() time.Time
}

func NewExpirer(params ExpirerParams) (*Expirer, error) {
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order canceller required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Expirer{
		tx:      params.Tx,
		repo:    params.Repository,
		orders:  params.Orders,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    logg,
		now:     now,
	}, nil
}

// ExpireBefore expires up to limit sessions created before cutoff and reports how many
// it expired. The session is moved to expired before its orders are cancelled, so a
// payment can no longer start on it.
func (e *Expirer) ExpireBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	sessions, err := e.repo.FindAbandoned(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("find abandoned sessions: %w", err)
	}
	var (
		expired int
		errs    error
	)
	for i := range sessions {
		ok, err := e.expire(ctx, &sessions[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("session %s: %w", sessions[i].ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	return expired, errs
}

func (e *Expirer) expire(ctx context.Context, session *models.CheckoutSession) (bool, error) {
	from := session.State
	moved, err := e.repo.TransitionState(ctx, session.ID, expirableStates, enums.CheckoutStateExpired, nil)
	if err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}
	e.metrics.Transition(from.String(), enums.CheckoutStateExpired.String())

	event := payloads.CheckoutExpiredEvent{
		SessionID:       session.ID.String(),
		UserID:          session.UserID,
		CancelledOrders: []string{},
		ExpiredAt:       e.now().UTC(),
	}
	for _, due := range unpaidOrders(session) {
		if e.orders.CancelOrder(ctx, due.OrderID, abandonNote) {
			event.CancelledOrders = append(event.CancelledOrders, due.OrderID)
		} else {
			event.FailedCancels = append(event.FailedCancels, due.OrderID)
		}
	}

	logCtx := e.logg.WithFields(e.logg.WithSessionID(ctx, session.ID.String()), map[string]any{
		"from":           from,
		"cancelled":      len(event.CancelledOrders),
		"failed_cancels": len(event.FailedCancels),
	})
	err = e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCheckoutExpired,
			AggregateType: enums.AggregateCheckoutSession,
			AggregateID:   session.ID.String(),
			Data:          event,
		})
	})
	if err != nil {
		e.logg.Error(logCtx, "checkout.expire.emit_failed", err)
		return true, err
	}
	e.logg.Info(logCtx, "checkout.expired")
	return true, nil
}
