package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lokrise/checkout/api/controllers"
	cartcontrollers "github.com/lokrise/checkout/api/controllers/cart"
	checkoutcontrollers "github.com/lokrise/checkout/api/controllers/checkout"
	sellercontrollers "github.com/lokrise/checkout/api/controllers/sellerorders"
	wishlistcontrollers "github.com/lokrise/checkout/api/controllers/wishlist"
	"github.com/lokrise/checkout/api/middleware"
	"github.com/lokrise/checkout/internal/cart"
	checkoutsvc "github.com/lokrise/checkout/internal/checkout"
	"github.com/lokrise/checkout/internal/sellerboard"
	"github.com/lokrise/checkout/internal/wishlist"
	"github.com/lokrise/checkout/pkg/config"
	"github.com/lokrise/checkout/pkg/enums"
	"github.com/lokrise/checkout/pkg/logger"
	"github.com/lokrise/checkout/pkg/metrics"
	pkgredis "github.com/lokrise/checkout/pkg/redis"
)

// KeyStore is the Redis surface the HTTP layer needs for idempotency and rate limits.
type KeyStore interface {
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
}

// Services are the domain services behind the HTTP surface. A nil service answers
// its routes with an internal error.
type Services struct {
	Cart     cart.Service
	Wishlist wishlist.Service
	Checkout checkoutsvc.Service
	Board    sellerboard.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	keys KeyStore,
	registry *prometheus.Registry,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	paymentLimit := middleware.RateLimit(middleware.PaymentRateLimitPolicy(cfg.RateLimit), keys, logg)
	photoLimits := checkoutcontrollers.PhotoLimits{
		MaxPhotos:     cfg.Checkout.MaxBarterPhotos,
		MaxPhotoBytes: cfg.Checkout.MaxBarterPhotoBytes,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})
	if registry != nil {
		r.Handle("/metrics", metrics.Handler(registry))
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.With(middleware.Auth(cfg.JWT, logg), middleware.GuestToken(logg)).
			Post("/migrate", cartcontrollers.CartMigrate(svc.Cart, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Use(middleware.GuestToken(logg))
			r.Get("/", cartcontrollers.CartFetch(svc.Cart, logg))
			r.Delete("/", cartcontrollers.CartClear(svc.Cart, logg))
			r.Get("/totals", cartcontrollers.CartTotals(svc.Cart, logg))
			r.Post("/items", cartcontrollers.CartAddItem(svc.Cart, logg))
			r.Put("/items/{productId}", cartcontrollers.CartUpdateItem(svc.Cart, logg))
			r.Delete("/items/{productId}", cartcontrollers.CartRemoveItem(svc.Cart, logg))
		})
	})

	r.Route("/api/v1/wishlist", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/", wishlistcontrollers.WishlistFetch(svc.Wishlist, logg))
		r.Post("/", wishlistcontrollers.WishlistAdd(svc.Wishlist, logg))
		r.Delete("/{productId}", wishlistcontrollers.WishlistRemove(svc.Wishlist, logg))
		r.Post("/{productId}/move-to-cart", wishlistcontrollers.WishlistMoveToCart(svc.Wishlist, logg))
	})

	r.Route("/api/v1/checkout/sessions", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(keys, logg))

		r.Post("/", checkoutcontrollers.SessionStart(svc.Checkout, logg))
		r.Route("/{sessionId}", func(r chi.Router) {
			r.Get("/", checkoutcontrollers.SessionFetch(svc.Checkout, logg))
			r.Post("/method", checkoutcontrollers.SessionChooseMethod(svc.Checkout, logg))
			r.Post("/orders", checkoutcontrollers.SessionCreateOrders(svc.Checkout, logg))
			r.Get("/confirmation", checkoutcontrollers.SessionConfirmation(svc.Checkout, logg))

			r.With(paymentLimit).Post("/card", checkoutcontrollers.PayCard(svc.Checkout, logg))
			r.With(paymentLimit).Post("/cod", checkoutcontrollers.PayCOD(svc.Checkout, logg))
			r.Post("/upi", checkoutcontrollers.UPIInitiate(svc.Checkout, logg))
			r.Put("/upi/amount", checkoutcontrollers.UPIEnterAmount(svc.Checkout, logg))
			r.With(paymentLimit).Post("/upi/verify", checkoutcontrollers.UPIVerify(svc.Checkout, logg))

			r.Route("/barter", func(r chi.Router) {
				r.Get("/", checkoutcontrollers.BarterFetch(svc.Checkout, logg))
				r.Post("/start", checkoutcontrollers.BarterStart(svc.Checkout, logg))
				r.Put("/item", checkoutcontrollers.BarterSetItem(svc.Checkout, logg))
				r.Post("/review", checkoutcontrollers.BarterReview(svc.Checkout, logg))
				r.Post("/edit", checkoutcontrollers.BarterEdit(svc.Checkout, logg))
				r.Put("/top-up", checkoutcontrollers.BarterSetTopUp(svc.Checkout, logg))
				r.Put("/exchange", checkoutcontrollers.BarterSetExchange(svc.Checkout, logg))
				r.With(paymentLimit).Post("/submit", checkoutcontrollers.BarterSubmit(svc.Checkout, photoLimits, logg))
			})
		})
	})

	r.Route("/api/v1/seller/orders", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleSeller, enums.UserRoleAdmin))
		r.Use(middleware.Idempotency(keys, logg))

		r.Get("/", sellercontrollers.OrderList(svc.Board, logg))
		r.Get("/stats", sellercontrollers.OrderStats(svc.Board, logg))
		r.Post("/{orderId}/accept", sellercontrollers.OrderAccept(svc.Board, logg))
		r.Post("/{orderId}/reject", sellercontrollers.OrderReject(svc.Board, logg))
		r.Post("/{orderId}/ship", sellercontrollers.OrderShip(svc.Board, logg))
		r.Post("/{orderId}/deliver", sellercontrollers.OrderDeliver(svc.Board, logg))
		r.Post("/{orderId}/cancel", sellercontrollers.OrderCancel(svc.Board, logg))
		r.Post("/{orderId}/refund", sellercontrollers.OrderRefund(svc.Board, logg))
	})

	return otelhttp.NewHandler(r, "lokrise.http",
		otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
			return req.Method + " " + req.URL.Path
		}),
	)
}
