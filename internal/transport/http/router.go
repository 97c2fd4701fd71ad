package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const defaultRequestTimeout = 60 * time.Second

// Payments bundles the payment service operations the router exposes.
type Payments interface {
	PaymentInitiator
	PaymentRefunder
	GatewayCallbacks
}

type Deps struct {
	Carts     CartService
	Checkout  CheckoutService
	Orders    OrderService
	Ledger    LedgerService
	Payments  Payments
	HeldSales HeldSaleService

	Auth           *Authenticator
	WebhookLimiter *GatewayLimiter
	CORSOrigins    []string
	// RequestTimeout bounds API handlers; it must exceed the gateway timeout.
	RequestTimeout time.Duration
	Ready          func(ctx context.Context) error

	Logger   *zap.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

func NewRouter(d Deps) http.Handler {
	if d.Auth == nil {
		d.Auth = NewAuthenticator("")
	}
	if d.WebhookLimiter == nil {
		d.WebhookLimiter = NewGatewayLimiter(20, 40)
	}
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(CORS(d.CORSOrigins))
	r.NotFound(NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", HealthHandler)
	r.Get("/ready", ReadinessHandler(d.Ready))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Timeout(d.RequestTimeout))

		r.Get("/payments/{gateway}/callback", HandlePaymentCallback(d.Payments))
		r.With(d.WebhookLimiter.Middleware).Post("/webhooks/{gateway}", HandleWebhook(d.Payments))

		r.Route("/shops/{shopID}", func(r chi.Router) {
			r.Use(d.Auth.Middleware)

			r.Get("/payment-methods", HandlePaymentMethods(d.Checkout))

			r.Group(func(r chi.Router) {
				r.Use(RequireOwner)

				r.Get("/cart", HandleGetCart(d.Carts))
				r.Delete("/cart", HandleClearCart(d.Carts))
				r.Post("/cart/items", HandleAddCartItem(d.Carts))
				r.Patch("/cart/items/{itemID}", HandleUpdateCartItem(d.Carts))
				r.Delete("/cart/items/{itemID}", HandleRemoveCartItem(d.Carts))
				r.Post("/cart/merge", HandleMergeCart(d.Carts))

				r.Post("/checkout", HandleCheckout(d.Checkout))

				r.Get("/orders/{orderID}", HandleGetOrder(d.Orders))
				r.Post("/orders/{orderID}/cancel", HandleCancelOrder(d.Orders))
				r.Get("/orders/{orderID}/balance", HandleOrderBalance(d.Orders, d.Ledger))
				r.Post("/orders/{orderID}/payments/retry", HandleRetryPayment(d.Orders, d.Payments))
			})

			r.Group(func(r chi.Router) {
				r.Use(RequireStaff)

				r.Post("/orders/{orderID}/payments", HandleRecordPayment(d.Ledger))
				r.Post("/payments/{paymentID}/refund", HandleRefundPayment(d.Payments))

				r.Post("/held-sales", HandleHoldSale(d.HeldSales))
				r.Get("/held-sales", HandleListHeldSales(d.HeldSales))
				r.Post("/held-sales/{heldSaleID}/retrieve", HandleRetrieveHeldSale(d.HeldSales))
				r.Delete("/held-sales/{heldSaleID}", HandleDiscardHeldSale(d.HeldSales))
			})
		})
	})

	return r
}
