package sellerorders

import (
	"context"
	"net/http"

	"github.com/lokrise/checkout/api/middleware"
	"github.com/lokrise/checkout/api/responses"
	"github.com/lokrise/checkout/api/validators"
	"github.com/lokrise/checkout/internal/sellerboard"
	"github.com/lokrise/checkout/pkg/enums"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/pagination"
)

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// OrderList returns one page of the seller's orders with pending moves overlaid.
func OrderList(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		q, params, err := parseQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), actorFromRequest(r), q)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessMeta(w, page, pagination.NewMeta(params, page.TotalPages, page.TotalOrders))
	}
}

func OrderStats(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		report, err := svc.Stats(r.Context(), actorFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

type simpleMove func(ctx context.Context, actor sellerboard.Actor, orderID string) (*sellerboard.BoardOrder, error)

type reasonedMove func(ctx context.Context, actor sellerboard.Actor, orderID, reason string) (*sellerboard.BoardOrder, error)

func moveHandler(svc sellerboard.Service, logg *logger.Logger, pick func(sellerboard.Service) simpleMove) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		orderID, err := validators.PathString(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := pick(svc)(r.Context(), actorFromRequest(r), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func reasonHandler(svc sellerboard.Service, logg *logger.Logger, pick func(sellerboard.Service) reasonedMove) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		orderID, err := validators.PathString(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload reasonRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := validators.ReasonText.Clean(payload.Reason)
		order, err := pick(svc)(r.Context(), actorFromRequest(r), orderID, reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderAccept confirms a pending order.
func OrderAccept(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return moveHandler(svc, logg, func(s sellerboard.Service) simpleMove { return s.Accept })
}

// OrderReject declines a pending order; the body must carry a reason.
func OrderReject(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonHandler(svc, logg, func(s sellerboard.Service) reasonedMove { return s.Reject })
}

func OrderShip(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return moveHandler(svc, logg, func(s sellerboard.Service) simpleMove { return s.Ship })
}

func OrderDeliver(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return moveHandler(svc, logg, func(s sellerboard.Service) simpleMove { return s.Deliver })
}

func OrderCancel(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonHandler(svc, logg, func(s sellerboard.Service) reasonedMove { return s.Cancel })
}

func OrderRefund(svc sellerboard.Service, logg *logger.Logger) http.HandlerFunc {
	return reasonHandler(svc, logg, func(s sellerboard.Service) reasonedMove { return s.Refund })
}

func parseQuery(r *http.Request) (sellerboard.Query, pagination.Params, error) {
	params, err := validators.QueryPage(r)
	if err != nil {
		return sellerboard.Query{}, pagination.Params{}, err
	}
	startDate, err := validators.QueryDate(r, "startDate")
	if err != nil {
		return sellerboard.Query{}, pagination.Params{}, err
	}
	endDate, err := validators.QueryDate(r, "endDate")
	if err != nil {
		return sellerboard.Query{}, pagination.Params{}, err
	}

	q := sellerboard.Query{
		Status:    enums.OrderStatus(validators.QueryText(r, "status", validators.EnumText)),
		Search:    validators.QueryText(r, "search", validators.SearchText),
		StartDate: startDate,
		EndDate:   endDate,
		Sort:      enums.SellerOrderSort(validators.QueryText(r, "sort", validators.EnumText)),
		Page:      params.Page,
		Limit:     params.Limit,
	}
	return q, params, nil
}

func actorFromRequest(r *http.Request) sellerboard.Actor {
	return sellerboard.Actor{
		UserID: middleware.UserIDFromContext(r.Context()),
		Role:   enums.UserRole(middleware.RoleFromContext(r.Context())),
	}
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "seller order service unavailable")
}
