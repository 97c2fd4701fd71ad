package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/logging"
	"go.uber.org/zap"
)

const (
	codeMethodNotAllowed        = "method_not_allowed"
	codeNotFound                = "not_found"
	codeInvalidRequestBody      = "invalid_request_body"
	codeMissingRequiredField    = "missing_required_field"
	codeInvalidID               = "invalid_id"
	codeInvalidQuantity         = "invalid_quantity"
	codeInvalidConfiguration    = "invalid_configuration"
	codeInvalidAmount           = "invalid_amount"
	codeInvalidReference        = "invalid_reference"
	codeCartInvalid             = "cart_invalid"
	codeShopNotFound            = "shop_not_found"
	codeSellableNotFound        = "sellable_not_found"
	codeCartItemNotFound        = "cart_item_not_found"
	codeOrderNotFound           = "order_not_found"
	codePaymentNotFound         = "payment_not_found"
	codeHeldSaleNotFound        = "held_sale_not_found"
	codeSellableUnavailable     = "sellable_unavailable"
	codeInsufficientStock       = "insufficient_stock"
	codeIdempotencyConflict     = "idempotency_conflict"
	codeOverpaymentNotAllowed   = "overpayment_not_allowed"
	codeRefundExceedsPayment    = "refund_exceeds_payment"
	codeNotRefundable           = "not_refundable"
	codeOrderAlreadyPaid        = "order_already_paid"
	codeOrderNotCancellable     = "order_not_cancellable"
	codeOrderCancelled          = "order_cancelled"
	codePaymentInProgress       = "payment_in_progress"
	codeUnknownGateway          = "unknown_gateway"
	codeGatewayUnavailable      = "gateway_unavailable"
	codeCurrencyNotSupported    = "currency_not_supported"
	codeGatewayRequestFailed    = "gateway_request_failed"
	codeGatewayRejected         = "gateway_rejected"
	codeRefundNotSupported      = "refund_not_supported"
	codeWebhookNotSupported     = "webhook_not_supported"
	codeWebhookSignatureInvalid = "webhook_signature_invalid"
	codeWebhookPayloadInvalid   = "webhook_payload_invalid"
	codeDuplicateEvent          = "duplicate_event"
	codeHeldSaleExpired         = "held_sale_expired"
	codeHeldSaleClosed          = "held_sale_closed"
	codeTenantRequired          = "tenant_required"
	codeUnauthorized            = "unauthorized"
	codeForbidden               = "forbidden"
	codeRateLimited             = "rate_limited"
	codeInternalError           = "internal_error"
)

type errorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeErrorDetails(w, status, code, msg, nil)
}

func writeErrorDetails(w http.ResponseWriter, status int, code, msg string, details map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error:   msg,
		Code:    code,
		Details: details,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

type errorMapping struct {
	target error
	status int
	code   string
	// opaque errors answer with the sentinel text only; the wrapped detail may
	// carry provider responses.
	opaque bool
}

// More specific sentinels come first: the not-found family all wrap ErrNotFound.
var errorMappings = []errorMapping{
	{target: domain.ErrInvalidID, status: http.StatusBadRequest, code: codeInvalidID},
	{target: domain.ErrInvalidReference, status: http.StatusBadRequest, code: codeInvalidReference},
	{target: domain.ErrInvalidOwner, status: http.StatusUnauthorized, code: codeUnauthorized},
	{target: domain.ErrInvalidQuantity, status: http.StatusUnprocessableEntity, code: codeInvalidQuantity},
	{target: domain.ErrInvalidConfiguration, status: http.StatusUnprocessableEntity, code: codeInvalidConfiguration},
	{target: domain.ErrInvalidAmount, status: http.StatusUnprocessableEntity, code: codeInvalidAmount},
	{target: domain.ErrCartInvalid, status: http.StatusUnprocessableEntity, code: codeCartInvalid},
	{target: domain.ErrRefundExceedsPayment, status: http.StatusUnprocessableEntity, code: codeRefundExceedsPayment},
	{target: domain.ErrNotRefundable, status: http.StatusUnprocessableEntity, code: codeNotRefundable},

	{target: domain.ErrShopNotFound, status: http.StatusNotFound, code: codeShopNotFound},
	{target: domain.ErrSellableNotFound, status: http.StatusNotFound, code: codeSellableNotFound},
	{target: domain.ErrCartItemNotFound, status: http.StatusNotFound, code: codeCartItemNotFound},
	{target: domain.ErrOrderNotFound, status: http.StatusNotFound, code: codeOrderNotFound},
	{target: domain.ErrPaymentNotFound, status: http.StatusNotFound, code: codePaymentNotFound},
	{target: domain.ErrHeldSaleNotFound, status: http.StatusNotFound, code: codeHeldSaleNotFound},
	{target: domain.ErrNotFound, status: http.StatusNotFound, code: codeNotFound},
	{target: domain.ErrUnknownGateway, status: http.StatusNotFound, code: codeUnknownGateway},

	{target: domain.ErrUnavailable, status: http.StatusConflict, code: codeSellableUnavailable},
	{target: domain.ErrInsufficientStock, status: http.StatusConflict, code: codeInsufficientStock},
	{target: domain.ErrIdempotencyConflict, status: http.StatusConflict, code: codeIdempotencyConflict},
	{target: domain.ErrOverpaymentNotAllowed, status: http.StatusConflict, code: codeOverpaymentNotAllowed},
	{target: domain.ErrOrderAlreadyPaid, status: http.StatusConflict, code: codeOrderAlreadyPaid},
	{target: domain.ErrOrderNotCancellable, status: http.StatusConflict, code: codeOrderNotCancellable},
	{target: domain.ErrOrderCancelled, status: http.StatusConflict, code: codeOrderCancelled},
	{target: domain.ErrPaymentInProgress, status: http.StatusConflict, code: codePaymentInProgress},
	{target: domain.ErrGatewayUnavailable, status: http.StatusConflict, code: codeGatewayUnavailable},
	{target: domain.ErrCurrencyNotSupported, status: http.StatusConflict, code: codeCurrencyNotSupported},
	{target: domain.ErrRefundNotSupported, status: http.StatusConflict, code: codeRefundNotSupported},
	{target: domain.ErrDuplicateWebhookEvent, status: http.StatusConflict, code: codeDuplicateEvent},
	{target: domain.ErrHeldSaleExpired, status: http.StatusConflict, code: codeHeldSaleExpired},
	{target: domain.ErrHeldSaleClosed, status: http.StatusConflict, code: codeHeldSaleClosed},

	{target: domain.ErrWebhookSignatureInvalid, status: http.StatusUnauthorized, code: codeWebhookSignatureInvalid, opaque: true},
	{target: domain.ErrWebhookNotSupported, status: http.StatusBadRequest, code: codeWebhookNotSupported},
	{target: domain.ErrWebhookPayloadInvalid, status: http.StatusBadRequest, code: codeWebhookPayloadInvalid, opaque: true},
	{target: domain.ErrGatewayRequestFailed, status: http.StatusBadGateway, code: codeGatewayRequestFailed, opaque: true},
	{target: domain.ErrGatewayRejected, status: http.StatusBadGateway, code: codeGatewayRejected, opaque: true},
}

// classify resolves the status and body for an application error. ok is false for
// errors that have no public mapping.
func classify(err error) (status int, body errorResponse, ok bool) {
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		return http.StatusConflict, errorResponse{
			Error:   stock.Error(),
			Code:    codeInsufficientStock,
			Details: map[string]string{"sku": stock.SKU},
		}, true
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := err.Error()
		if m.opaque {
			msg = m.target.Error()
		}
		return m.status, errorResponse{Error: msg, Code: m.code}, true
	}
	return http.StatusInternalServerError, errorResponse{Error: "internal error", Code: codeInternalError}, false
}

// writeServiceError maps an application error to its HTTP status and stable code.
// Anything unmapped is logged and answered with a bare 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, body, ok := classify(err)
	logger := logging.FromContext(r.Context(), nil)
	switch {
	case !ok:
		logger.Error("request failed", zap.Error(err))
	case status >= http.StatusInternalServerError:
		logger.Warn("upstream failure", zap.Error(err))
	}
	writeErrorDetails(w, status, body.Code, body.Error, body.Details)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a strict JSON body. An empty body decodes to the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}
