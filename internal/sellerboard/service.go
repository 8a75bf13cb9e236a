package sellerboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/lokrise/checkout/pkg/db/models"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/marketplace"
	"github.com/lokrise/checkout/pkg/metrics"
	"github.com/lokrise/checkout/pkg/outbox"
	"github.com/lokrise/checkout/pkg/outbox/payloads"
	"github.com/lokrise/checkout/pkg/pagination"
)

type Backend interface {
	GetOrder(ctx context.Context, orderID string) (*marketplace.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, req marketplace.UpdateStatusRequest) (*marketplace.Order, error)
	ListSellerOrders(ctx context.Context, q marketplace.SellerOrdersQuery) (*marketplace.SellerOrdersPage, error)
	SellerStats(ctx context.Context) (*marketplace.SellerStats, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Query filters the seller listing. Every field is delegated to the backend.
type Query struct {
	Status    enums.OrderStatus
	Search    string
	StartDate string
	EndDate   string
	Sort      enums.SellerOrderSort
	Page      int
	Limit     int
}

// Actor is the seller acting on the board.
type Actor struct {
	UserID string
	Role   enums.UserRole
}

// Service is the seller-side order status board.
type Service interface {
	List(ctx context.Context, actor Actor, q Query) (*Page, error)
	Stats(ctx context.Context, actor Actor) (*StatsReport, error)
	Accept(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error)
	Reject(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error)
	Ship(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error)
	Deliver(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error)
	Cancel(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error)
	Refund(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error)
}

type ServiceParams struct {
	Repository Repository
	Tx         txRunner
	Backend    Backend
	Outbox     outboxPublisher
	Metrics    *metrics.BoardMetrics
	Logger     *logger.Logger
	Now        func() time.Time
	// StaleAfter is how long a mutation may stay pending before it no longer blocks the
	// order or shows in listings.
	StaleAfter time.Duration
}

const defaultStaleAfter = 10 * time.Minute

type service struct {
	repo       Repository
	tx         txRunner
	backend    Backend
	outbox     outboxPublisher
	metrics    *metrics.BoardMetrics
	logg       *logger.Logger
	now        func() time.Time
	staleAfter time.Duration
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("status mutation repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Backend == nil {
		return nil, fmt.Errorf("marketplace backend required")
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
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &service{
		repo:       params.Repository,
		tx:         params.Tx,
		backend:    params.Backend,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       logg,
		now:        now,
		staleAfter: staleAfter,
	}, nil
}

func (s *service) staleBefore() time.Time {
	return s.now().UTC().Add(-s.staleAfter)
}

func (s *service) List(ctx context.Context, actor Actor, q Query) (*Page, error) {
	if err := requireSeller(actor); err != nil {
		return nil, err
	}
	if q.Status != "" && !q.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if q.Sort == "" {
		q.Sort = enums.SellerOrderSortDateDesc
	}
	if !q.Sort.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid sort")
	}
	bounds := pagination.Params{Page: q.Page, Limit: q.Limit}.Normalize()
	q.Page, q.Limit = bounds.Page, bounds.Limit

	page, err := s.backend.ListSellerOrders(ctx, marketplace.SellerOrdersQuery{
		Status:    q.Status,
		Search:    strings.TrimSpace(q.Search),
		StartDate: q.StartDate,
		EndDate:   q.EndDate,
		Sort:      q.Sort,
		Page:      q.Page,
		Limit:     q.Limit,
	})
	if err != nil {
		return nil, err
	}
	s.checkHistory(ctx, page.Orders...)

	ids := make([]string, 0, len(page.Orders))
	for _, o := range page.Orders {
		ids = append(ids, o.ID)
	}
	pending, err := s.repo.PendingForOrders(ctx, ids, s.staleBefore())
	if err != nil {
		return nil, err
	}
	return &Page{
		Orders:      overlay(page.Orders, pending),
		TotalPages:  page.TotalPages,
		TotalOrders: page.TotalOrders,
		PageStats:   pageStats(page.Orders),
	}, nil
}

// Stats returns the backend aggregate. An unfiltered listing is loaded alongside it and,
// when it fits in a single page, compared against the aggregate.
func (s *service) Stats(ctx context.Context, actor Actor) (*StatsReport, error) {
	if err := requireSeller(actor); err != nil {
		return nil, err
	}

	var (
		stats   *marketplace.SellerStats
		listing *marketplace.SellerOrdersPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.backend.SellerStats(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		listing, err = s.backend.ListSellerOrders(gctx, marketplace.SellerOrdersQuery{
			Sort:  enums.SellerOrderSortDateDesc,
			Page:  1,
			Limit: pagination.MaxLimit,
		})
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "sellerboard.stats.listing_failed")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &StatsReport{Stats: backendStats(stats)}
	if listing == nil || listing.TotalPages > 1 {
		return report, nil
	}
	page := pageStats(listing.Orders)
	report.PageStats = &page
	report.Divergent = diverges(page, report.Stats)
	if report.Divergent {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"seller_id":     actor.UserID,
			"page_total":    page.Total,
			"backend_total": report.Stats.Total,
		}), "sellerboard.stats.divergent")
	}
	return report, nil
}

func (s *service) Accept(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusConfirmed, "", enums.OrderStatusPending)
}

// Reject declines a pending order. Cancelling an accepted order goes through Cancel.
func (s *service) Reject(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusCancelled, reason, enums.OrderStatusPending)
}

func (s *service) Ship(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusShipped, "", "")
}

func (s *service) Deliver(ctx context.Context, actor Actor, orderID string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusDelivered, "", "")
}

func (s *service) Cancel(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusCancelled, reason, "")
}

func (s *service) Refund(ctx context.Context, actor Actor, orderID, reason string) (*BoardOrder, error) {
	return s.transition(ctx, actor, orderID, enums.OrderStatusRefunded, reason, "")
}

// transition validates a seller move against the freshly read status, records a pending
// mutation, calls the backend and resolves the mutation with the outcome. A non-empty
// onlyFrom narrows the table to moves out of that status.
func (s *service) transition(ctx context.Context, actor Actor, orderID string, to enums.OrderStatus, reason string, onlyFrom enums.OrderStatus) (*BoardOrder, error) {
	if err := requireSeller(actor); err != nil {
		return nil, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	reason = strings.TrimSpace(reason)
	if reasonRequired(to) && reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a reason is required").
			WithDetails(map[string]any{"status": to})
	}

	current, err := s.backend.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actor.Role != enums.UserRoleAdmin && (current.Seller.ID == "" || current.Seller.ID != actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	s.checkHistory(ctx, *current)
	if !CanTransition(current.Status, to) || (onlyFrom != "" && current.Status != onlyFrom) {
		return nil, illegalTransition(current.Status, to)
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID,
		"from":     current.Status,
		"to":       to,
	})
	mutation := &models.StatusMutation{
		OrderID:    orderID,
		SellerID:   actor.UserID,
		FromStatus: current.Status,
		ToStatus:   to,
		Note:       reason,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.CreatePending(ctx, mutation, s.staleBefore()); err != nil {
		return nil, err
	}

	updated, callErr := s.backend.UpdateOrderStatus(ctx, orderID, marketplace.UpdateStatusRequest{
		Status:      to,
		Description: reason,
	})
	resolvedAt := s.now().UTC()
	resolveCtx := context.WithoutCancel(ctx)
	if callErr != nil {
		msg := callErr.Error()
		if err := s.repo.Resolve(resolveCtx, mutation.ID, enums.StatusMutationRolledBack, &msg, resolvedAt); err != nil {
			s.logg.Error(logCtx, "sellerboard.mutation.rollback_failed", err)
		}
		s.metrics.Mutation(to.String(), "rolled_back")
		s.logg.Warn(logCtx, "sellerboard.mutation.rolled_back")
		return nil, callErr
	}

	err = s.tx.WithTx(resolveCtx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Resolve(resolveCtx, mutation.ID, enums.StatusMutationApplied, nil, resolvedAt); err != nil {
			return err
		}
		return s.outbox.Emit(resolveCtx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    orderID,
				SellerID:   actor.UserID,
				MutationID: mutation.ID.String(),
				From:       current.Status,
				To:         to,
				Note:       reason,
			},
		})
	})
	if err != nil {
		// The backend already applied the change; only the local record lags.
		s.logg.Error(logCtx, "sellerboard.mutation.apply_record_failed", err)
	}
	s.metrics.Mutation(to.String(), "applied")
	s.logg.Info(logCtx, "sellerboard.mutation.applied")

	if updated == nil || updated.ID == "" {
		if updated, err = s.backend.GetOrder(ctx, orderID); err != nil {
			return nil, err
		}
	}
	s.checkHistory(ctx, *updated)
	board := withOverlay(*updated, models.StatusMutation{})
	return &board, nil
}

func (s *service) checkHistory(ctx context.Context, orders ...marketplace.Order) {
	for _, o := range orders {
		if historyConsistent(o) {
			continue
		}
		s.metrics.HistoryDrift()
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"order_id": o.ID,
			"status":   o.Status,
			"entries":  len(o.StatusHistory),
		}), "sellerboard.history.drift")
	}
}

func requireSeller(actor Actor) error {
	if strings.TrimSpace(actor.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if actor.Role != enums.UserRoleSeller && actor.Role != enums.UserRoleAdmin {
		return pkgerrors.New(pkgerrors.CodeForbidden, "seller role required")
	}
	return nil
}
