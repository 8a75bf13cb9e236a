package sellerorders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lokrise/checkout/api/middleware"
	"github.com/lokrise/checkout/internal/sellerboard"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/marketplace"
)

type stubBoard struct {
	err    error
	actor  sellerboard.Actor
	query  sellerboard.Query
	call   string
	order  string
	reason string
	page   *sellerboard.Page
}

func (s *stubBoard) List(_ context.Context, actor sellerboard.Actor, q sellerboard.Query) (*sellerboard.Page, error) {
	s.call, s.actor, s.query = "list", actor, q
	return s.page, s.err
}

func (s *stubBoard) Stats(_ context.Context, actor sellerboard.Actor) (*sellerboard.StatsReport, error) {
	s.call, s.actor = "stats", actor
	return &sellerboard.StatsReport{}, s.err
}

func (s *stubBoard) move(name string, actor sellerboard.Actor, orderID, reason string) (*sellerboard.BoardOrder, error) {
	s.call, s.actor, s.order, s.reason = name, actor, orderID, reason
	return &sellerboard.BoardOrder{Order: marketplace.Order{ID: orderID}}, s.err
}

func (s *stubBoard) Accept(_ context.Context, actor sellerboard.Actor, orderID string) (*sellerboard.BoardOrder, error) {
	return s.move("accept", actor, orderID, "")
}

func (s *stubBoard) Reject(_ context.Context, actor sellerboard.Actor, orderID, reason string) (*sellerboard.BoardOrder, error) {
	return s.move("reject", actor, orderID, reason)
}

func (s *stubBoard) Ship(_ context.Context, actor sellerboard.Actor, orderID string) (*sellerboard.BoardOrder, error) {
	return s.move("ship", actor, orderID, "")
}

func (s *stubBoard) Deliver(_ context.Context, actor sellerboard.Actor, orderID string) (*sellerboard.BoardOrder, error) {
	return s.move("deliver", actor, orderID, "")
}

func (s *stubBoard) Cancel(_ context.Context, actor sellerboard.Actor, orderID, reason string) (*sellerboard.BoardOrder, error) {
	return s.move("cancel", actor, orderID, reason)
}

func (s *stubBoard) Refund(_ context.Context, actor sellerboard.Actor, orderID, reason string) (*sellerboard.BoardOrder, error) {
	return s.move("refund", actor, orderID, reason)
}

func newRouter(svc sellerboard.Service) http.Handler {
	r := chi.NewRouter()
	r.Get("/orders", OrderList(svc, nil))
	r.Get("/orders/stats", OrderStats(svc, nil))
	r.Post("/orders/{orderId}/accept", OrderAccept(svc, nil))
	r.Post("/orders/{orderId}/reject", OrderReject(svc, nil))
	r.Post("/orders/{orderId}/ship", OrderShip(svc, nil))
	r.Post("/orders/{orderId}/deliver", OrderDeliver(svc, nil))
	r.Post("/orders/{orderId}/cancel", OrderCancel(svc, nil))
	r.Post("/orders/{orderId}/refund", OrderRefund(svc, nil))
	return r
}

func serve(svc sellerboard.Service, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	ctx := middleware.WithUserID(req.Context(), "seller-1")
	ctx = middleware.WithRole(ctx, string(enums.UserRoleSeller))
	resp := httptest.NewRecorder()
	newRouter(svc).ServeHTTP(resp, req.WithContext(ctx))
	return resp
}

func TestOrderListForwardsFiltersAndWritesMeta(t *testing.T) {
	svc := &stubBoard{page: &sellerboard.Page{Orders: []sellerboard.BoardOrder{}, TotalPages: 3, TotalOrders: 25}}
	resp := serve(svc, http.MethodGet, "/orders?status=pending&search=+lamp+&sort=amount_desc&page=2&limit=10&startDate=2026-01-01", "")

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, enums.OrderStatusPending, svc.query.Status)
	assert.Equal(t, "lamp", svc.query.Search)
	assert.Equal(t, enums.SellerOrderSortAmountDesc, svc.query.Sort)
	assert.Equal(t, "2026-01-01", svc.query.StartDate)
	assert.Equal(t, 2, svc.query.Page)
	assert.Equal(t, sellerboard.Actor{UserID: "seller-1", Role: enums.UserRoleSeller}, svc.actor)

	var envelope struct {
		Meta struct {
			Page       int  `json:"page"`
			TotalPages int  `json:"totalPages"`
			TotalItems int  `json:"totalItems"`
			HasNext    bool `json:"hasNext"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &envelope))
	assert.Equal(t, 2, envelope.Meta.Page)
	assert.Equal(t, 25, envelope.Meta.TotalItems)
	assert.True(t, envelope.Meta.HasNext)
}

func TestOrderListRejectsBadLimit(t *testing.T) {
	svc := &stubBoard{}
	resp := serve(svc, http.MethodGet, "/orders?limit=1000", "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.call)
}

func TestOrderListRejectsMalformedDate(t *testing.T) {
	svc := &stubBoard{}
	resp := serve(svc, http.MethodGet, "/orders?endDate=last-week", "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, svc.call)
}

func TestOrderMovesUsePathOrder(t *testing.T) {
	for _, name := range []string{"accept", "ship", "deliver"} {
		svc := &stubBoard{}
		resp := serve(svc, http.MethodPost, "/orders/o-7/"+name, "")
		require.Equal(t, http.StatusOK, resp.Code, name)
		assert.Equal(t, name, svc.call)
		assert.Equal(t, "o-7", svc.order)
	}
}

func TestOrderReasonedMovesSanitizeReason(t *testing.T) {
	for _, name := range []string{"reject", "cancel", "refund"} {
		svc := &stubBoard{}
		resp := serve(svc, http.MethodPost, "/orders/o-7/"+name, `{"reason":"  out of stock  "}`)
		require.Equal(t, http.StatusOK, resp.Code, name)
		assert.Equal(t, name, svc.call)
		assert.Equal(t, "out of stock", svc.reason)
	}
}

func TestOrderMoveMapsStateConflict(t *testing.T) {
	svc := &stubBoard{err: pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot move from delivered to shipped")}
	resp := serve(svc, http.MethodPost, "/orders/o-7/ship", "")

	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
}

func TestOrderStatsUsesActor(t *testing.T) {
	svc := &stubBoard{}
	resp := serve(svc, http.MethodGet, "/orders/stats", "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "stats", svc.call)
	assert.Equal(t, "seller-1", svc.actor.UserID)
}
