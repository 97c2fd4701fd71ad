package http

import (
	"context"
	"net/http"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// OrderService is the minimal interface needed to read and cancel orders.
type OrderService interface {
	GetOrder(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error)
	CancelOrder(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error)
}

// LedgerService is the minimal interface needed for manual payments and balances.
type LedgerService interface {
	RecordPayment(ctx context.Context, in app.RecordPaymentInput) (app.LedgerResult, error)
	Balance(ctx context.Context, scope domain.Scope, orderID string) (domain.OrderBalance, error)
	Payments(ctx context.Context, scope domain.Scope, orderID string) ([]domain.OrderPayment, error)
}

// PaymentInitiator starts (or restarts) a gateway payment for an order.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, in app.InitiatePaymentInput) (app.InitiatePaymentResult, error)
}

type PaymentRefunder interface {
	RefundPayment(ctx context.Context, in app.RefundPaymentInput) (app.LedgerResult, error)
}

// orderViewer is the owner key used for order access. Staff see every order of the
// shop, which the order service expresses as the zero key.
func orderViewer(r *http.Request) domain.OwnerKey {
	p := principalFrom(r.Context())
	if p.Staff {
		return domain.OwnerKey{}
	}
	return p.Owner
}

func HandleGetOrder(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), scopeOf(r), orderViewer(r), chi.URLParam(r, "orderID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

// HandleCancelOrder cancels an unpaid pending order and releases its stock.
func HandleCancelOrder(svc OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.CancelOrder(r.Context(), scopeOf(r), orderViewer(r), chi.URLParam(r, "orderID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newOrderResponse(order))
	}
}

type orderBalanceResponse struct {
	Balance balanceResponse       `json:"balance"`
	Entries []ledgerEntryResponse `json:"entries"`
}

// HandleOrderBalance returns the balance derived from the order's payment ledger.
func HandleOrderBalance(orders OrderService, ledger LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		scope := scopeOf(r)
		order, err := orders.GetOrder(r.Context(), scope, orderViewer(r), chi.URLParam(r, "orderID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		balance, err := ledger.Balance(r.Context(), scope, order.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		entries, err := ledger.Payments(r.Context(), scope, order.ID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		resp := orderBalanceResponse{Balance: newBalanceResponse(balance), Entries: make([]ledgerEntryResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, newLedgerEntryResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

type retryPaymentRequest struct {
	Gateway     string `json:"gateway"`
	CallbackURL string `json:"callback_url"`
}

// HandleRetryPayment opens a new gateway attempt for the outstanding balance.
func HandleRetryPayment(orders OrderService, payments PaymentInitiator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req retryPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		scope := scopeOf(r)
		order, err := orders.GetOrder(r.Context(), scope, orderViewer(r), chi.URLParam(r, "orderID"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		res, err := payments.InitiatePayment(r.Context(), app.InitiatePaymentInput{
			Scope:       scope,
			OrderID:     order.ID,
			Gateway:     req.Gateway,
			CallbackURL: req.CallbackURL,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newPaymentInitResponse(res))
	}
}

type recordPaymentRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Method    string          `json:"method"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

// HandleRecordPayment appends a manual payment such as cash or a bank transfer.
func HandleRecordPayment(svc LedgerService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req recordPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.RecordPayment(r.Context(), app.RecordPaymentInput{
			Scope:     scopeOf(r),
			OrderID:   chi.URLParam(r, "orderID"),
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: req.Reference,
			Notes:     req.Notes,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newLedgerResultResponse(res))
	}
}

type refundRequest struct {
	// Amount is optional; omitted refunds whatever is still refundable.
	Amount decimal.NullDecimal `json:"amount"`
	Reason string              `json:"reason"`
}

func HandleRefundPayment(svc PaymentRefunder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.RefundPayment(r.Context(), app.RefundPaymentInput{
			Scope:     scopeOf(r),
			PaymentID: chi.URLParam(r, "paymentID"),
			Amount:    req.Amount,
			Reason:    req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newLedgerResultResponse(res))
	}
}
