package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentKind string

const (
	PaymentKindPayment PaymentKind = "payment"
	PaymentKindRefund  PaymentKind = "refund"
)

type PaymentSource string

const (
	PaymentSourceManual  PaymentSource = "manual"
	PaymentSourceGateway PaymentSource = "gateway"
)

// OrderPayment is one append-only ledger entry. Refunds carry a negative Amount
// and point at the payment they reverse through RefundOf.
type OrderPayment struct {
	ID               string
	TenantID         string
	ShopID           string
	OrderID          string
	Kind             PaymentKind
	Source           PaymentSource
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Method           string
	Reference        string
	GatewayReference string
	RefundOf         string
	Notes            string
	CreatedAt        time.Time
}

// OrderBalance is derived from the ledger, never stored.
type OrderBalance struct {
	OrderID     string
	Currency    string
	Total       decimal.Decimal
	Paid        decimal.Decimal
	Refunded    decimal.Decimal
	Outstanding decimal.Decimal
	Status      PaymentStatus
}

// ComputeBalance sums ledger entries against the order total.
func ComputeBalance(order Order, entries []OrderPayment) OrderBalance {
	paid := decimal.Zero
	refunded := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case PaymentKindPayment:
			paid = paid.Add(e.Amount)
		case PaymentKindRefund:
			refunded = refunded.Sub(e.Amount)
		}
	}
	net := paid.Sub(refunded)

	status := PaymentStatusPending
	switch {
	case net.GreaterThanOrEqual(order.TotalAmount) && net.IsPositive():
		status = PaymentStatusPaid
	case net.IsPositive():
		status = PaymentStatusPartiallyPaid
	case refunded.IsPositive():
		status = PaymentStatusRefunded
	}

	return OrderBalance{
		OrderID:     order.ID,
		Currency:    order.Currency,
		Total:       order.TotalAmount,
		Paid:        net,
		Refunded:    refunded,
		Outstanding: order.TotalAmount.Sub(net),
		Status:      status,
	}
}

type AttemptStatus string

const (
	AttemptInitiated AttemptStatus = "initiated"
	AttemptFailed    AttemptStatus = "failed"
	AttemptSucceeded AttemptStatus = "succeeded"
)

// PaymentAttempt is one call to a gateway's initialize step. Its Reference is what
// the provider echoes back on callbacks and webhooks.
type PaymentAttempt struct {
	ID            string
	TenantID      string
	ShopID        string
	OrderID       string
	Gateway       string
	Reference     string
	Status        AttemptStatus
	RedirectURL   string
	InlineToken   string
	FailureReason string
	CreatedAt     time.Time
}
