package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// GatewayCallbacks is the minimal interface needed for provider-facing endpoints.
type GatewayCallbacks interface {
	VerifyPayment(ctx context.Context, gatewayID, reference string) (app.VerifyPaymentResult, error)
	HandleWebhook(ctx context.Context, gatewayID string, req gateway.WebhookRequest) error
}

type verifyResponse struct {
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	Status        string          `json:"status"`
	Applied       bool            `json:"applied"`
	PaymentStatus string          `json:"payment_status"`
	Outstanding   decimal.Decimal `json:"outstanding"`
}

// Providers name the reference differently on their return redirects.
var callbackReferenceParams = []string{"reference", "trxref", "tx_ref"}

// HandlePaymentCallback verifies a payment when the customer returns from a hosted
// payment page.
func HandlePaymentCallback(svc GatewayCallbacks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var reference string
		for _, name := range callbackReferenceParams {
			if reference = r.URL.Query().Get(name); reference != "" {
				break
			}
		}
		if reference == "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, "reference is required")
			return
		}

		res, err := svc.VerifyPayment(r.Context(), chi.URLParam(r, "gateway"), reference)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, verifyResponse{
			OrderID:       res.Order.ID,
			OrderNumber:   res.Order.OrderNumber,
			Status:        string(res.Status),
			Applied:       res.Applied,
			PaymentStatus: string(res.Balance.Status),
			Outstanding:   res.Balance.Outstanding,
		})
	}
}

// HandleWebhook passes the raw delivery to the payment service. The body is read
// unparsed since signatures cover the exact bytes.
func HandleWebhook(svc GatewayCallbacks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}

		err = svc.HandleWebhook(r.Context(), chi.URLParam(r, "gateway"), gateway.WebhookRequest{
			Header: r.Header.Clone(),
			Body:   body,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
