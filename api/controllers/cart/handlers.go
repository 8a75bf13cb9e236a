package cart

import (
	"net/http"

	"github.com/lokrise/checkout/api/middleware"
	"github.com/lokrise/checkout/api/responses"
	"github.com/lokrise/checkout/api/validators"
	cartsvc "github.com/lokrise/checkout/internal/cart"
	pkgerrors "github.com/lokrise/checkout/pkg/errors"
	"github.com/lokrise/checkout/pkg/logger"
)

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,max=128"`
	Quantity  int    `json:"quantity" validate:"min=1,max=99"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=99"`
}

// View is the cart payload: the lines and their totals.
type View struct {
	Items  []cartsvc.Line `json:"items"`
	Totals cartsvc.Totals `json:"totals"`
}

func newView(lines []cartsvc.Line) View {
	if lines == nil {
		lines = []cartsvc.Line{}
	}
	return View{Items: lines, Totals: cartsvc.ComputeTotals(lines)}
}

// CartFetch returns the caller's cart, guest or account.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		lines, err := svc.Lines(r.Context(), ownerFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newView(lines))
	}
}

// CartAddItem adds a product, merging with an existing line.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		var payload addItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.Add(r.Context(), ownerFromRequest(r), payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newView(lines))
	}
}

// CartUpdateItem sets a line quantity; zero removes the line.
func CartUpdateItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.SetQuantity(r.Context(), ownerFromRequest(r), productID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newView(lines))
	}
}

func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		productID, err := validators.PathString(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := svc.Remove(r.Context(), ownerFromRequest(r), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newView(lines))
	}
}

func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		if err := svc.Clear(r.Context(), ownerFromRequest(r)); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newView(nil))
	}
}

func CartTotals(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		totals, err := svc.Totals(r.Context(), ownerFromRequest(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, totals)
	}
}

// CartMigrate moves the guest cart named by X-Guest-Token into the caller's account.
func CartMigrate(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		result, err := svc.MigrateGuest(r.Context(),
			middleware.UserIDFromContext(r.Context()),
			middleware.GuestTokenFromContext(r.Context()),
		)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func ownerFromRequest(r *http.Request) cartsvc.Owner {
	return cartsvc.Owner{
		UserID:     middleware.UserIDFromContext(r.Context()),
		GuestToken: middleware.GuestTokenFromContext(r.Context()),
	}
}
