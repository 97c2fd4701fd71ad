package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
)

// CheckoutService is the minimal interface needed for checkout and payment method listing.
type CheckoutService interface {
	Checkout(ctx context.Context, in app.CheckoutInput) (app.CheckoutResult, error)
	PaymentMethods(ctx context.Context, scope domain.Scope) ([]app.PaymentMethod, error)
}

type paymentMethodResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

func HandlePaymentMethods(svc CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		methods, err := svc.PaymentMethods(r.Context(), scopeOf(r))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]paymentMethodResponse, 0, len(methods))
		for _, m := range methods {
			resp = append(resp, paymentMethodResponse{ID: m.ID, DisplayName: m.DisplayName})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type checkoutRequest struct {
	CartID          string          `json:"cart_id"`
	ShippingAddress domain.Address  `json:"shipping_address"`
	BillingAddress  *domain.Address `json:"billing_address"`
	PaymentMethod   string          `json:"payment_method"`
	CustomerEmail   string          `json:"customer_email"`
	Notes           string          `json:"notes"`
	CallbackURL     string          `json:"callback_url"`
}

type checkoutResponse struct {
	Order        orderResponse        `json:"order"`
	Payment      *paymentInitResponse `json:"payment,omitempty"`
	PaymentError *errorResponse       `json:"payment_error,omitempty"`
}

// HandleCheckout commits the owner's cart. A replay with a used Idempotency-Key
// answers 200 with the original order instead of 201.
func HandleCheckout(svc CheckoutService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.PaymentMethod == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "payment_method is required")
			return
		}

		in := app.CheckoutInput{
			Scope:           scopeOf(r),
			Owner:           principalFrom(r.Context()).Owner,
			CartID:          req.CartID,
			ShippingAddress: req.ShippingAddress,
			PaymentMethod:   req.PaymentMethod,
			CustomerEmail:   req.CustomerEmail,
			Notes:           req.Notes,
			IdempotencyKey:  strings.TrimSpace(r.Header.Get("Idempotency-Key")),
			CallbackURL:     req.CallbackURL,
		}
		if req.BillingAddress != nil {
			in.BillingAddress = *req.BillingAddress
		}

		res, err := svc.Checkout(r.Context(), in)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := checkoutResponse{Order: newOrderResponse(res.Order)}
		if res.Payment != nil {
			p := newPaymentInitResponse(*res.Payment)
			resp.Payment = &p
		}
		if res.PaymentError != nil {
			// The order stands; the client retries payment separately.
			_, body, _ := classify(res.PaymentError)
			resp.PaymentError = &body
		}

		status := http.StatusCreated
		if !res.Created {
			status = http.StatusOK
		}
		writeJSON(w, status, resp)
	}
}
