package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrShopNotFound      = fmt.Errorf("shop %w", ErrNotFound)
	ErrSellableNotFound  = fmt.Errorf("sellable %w", ErrNotFound)
	ErrPackagingNotFound = fmt.Errorf("packaging type %w", ErrNotFound)
	ErrAddonNotFound     = fmt.Errorf("add-on %w", ErrNotFound)
	ErrCartItemNotFound  = fmt.Errorf("cart item %w", ErrNotFound)
	ErrOrderNotFound     = fmt.Errorf("order %w", ErrNotFound)
	ErrPaymentNotFound   = fmt.Errorf("payment %w", ErrNotFound)
	ErrHeldSaleNotFound  = fmt.Errorf("held sale %w", ErrNotFound)

	ErrInvalidID            = errors.New("invalid id")
	ErrInvalidQuantity      = errors.New("invalid quantity")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidOwner         = errors.New("invalid owner key")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrIdempotencyConflict  = errors.New("idempotency key already used")

	ErrUnavailable       = errors.New("sellable unavailable")
	ErrCartInvalid       = errors.New("cart invalid")
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrOverpaymentNotAllowed = errors.New("overpayment not allowed")
	ErrRefundExceedsPayment  = errors.New("refund exceeds refundable amount")
	ErrNotRefundable         = errors.New("entry is not refundable")
	ErrOrderAlreadyPaid      = errors.New("order already paid")
	ErrOrderNotCancellable   = errors.New("order cannot be cancelled")
	ErrOrderCancelled        = errors.New("order is cancelled")
	ErrPaymentInProgress     = errors.New("payment initiation already in progress")

	ErrUnknownGateway          = errors.New("unknown payment gateway")
	ErrGatewayUnavailable      = errors.New("payment gateway unavailable")
	ErrCurrencyNotSupported    = errors.New("currency not supported by gateway")
	ErrGatewayRequestFailed    = errors.New("payment gateway request failed")
	ErrGatewayRejected         = errors.New("payment gateway rejected request")
	ErrRefundNotSupported      = errors.New("gateway does not support refunds")
	ErrWebhookNotSupported     = errors.New("gateway does not send webhooks")
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")
	ErrDuplicateWebhookEvent   = errors.New("duplicate webhook event")
	ErrWebhookPayloadInvalid   = errors.New("webhook payload invalid")
	ErrInvalidReference        = errors.New("invalid payment reference")

	ErrHeldSaleExpired = errors.New("held sale expired")
	ErrHeldSaleClosed  = errors.New("held sale already closed")
)

// InsufficientStockError names the SKU that could not be reserved.
type InsufficientStockError struct {
	SKU       string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d", e.SKU, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// CartInvalid wraps ErrCartInvalid with a user-facing reason.
func CartInvalid(reason string) error {
	return fmt.Errorf("%w: %s", ErrCartInvalid, reason)
}
