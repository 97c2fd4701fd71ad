package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
)

// Gateway is the uniform contract over payment backends. Implementations must be
// safe for concurrent use.
type Gateway interface {
	Identifier() string
	DisplayName() string
	// IsAvailable reports whether the gateway is configured well enough to take payments.
	IsAvailable() bool
	// SupportedCurrencies returns ISO codes; an empty list accepts any currency.
	SupportedCurrencies() []string
	InitializePayment(ctx context.Context, order Order, opts InitializeOptions) (InitializeResult, error)
	VerifyPayment(ctx context.Context, reference string) (VerifyResult, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
	// ValidateWebhook checks the provider signature. It must not have side effects.
	ValidateWebhook(req WebhookRequest) bool
	ParseWebhook(req WebhookRequest) (WebhookEvent, error)
}

// Order is the slice of an order a gateway needs to open a payment.
type Order struct {
	ID            string
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
}

type InitializeOptions struct {
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// InitializeResult carries either a RedirectURL (hosted page) or an InlineToken
// plus PublicKey (embedded widget). Cash flows return neither.
type InitializeResult struct {
	Reference   string
	RedirectURL string
	InlineToken string
	PublicKey   string
}

type PaymentStatus string

const (
	StatusSuccess PaymentStatus = "success"
	StatusPending PaymentStatus = "pending"
	StatusFailed  PaymentStatus = "failed"
)

type VerifyResult struct {
	Status           PaymentStatus
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Currency         string
	GatewayReference string
}

type RefundRequest struct {
	Reference        string
	GatewayReference string
	// Amount is optional; a zero value refunds the full payment.
	Amount   decimal.NullDecimal
	Currency string
	Reason   string
}

type RefundStatus string

const (
	RefundProcessed RefundStatus = "processed"
	RefundPending   RefundStatus = "pending"
	RefundManual    RefundStatus = "manual"
)

type RefundResult struct {
	Status           RefundStatus
	GatewayReference string
}

// WebhookRequest is the raw delivery. Body must be the exact bytes received since
// signatures are computed over them.
type WebhookRequest struct {
	Header http.Header
	Body   []byte
}

type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventIgnored          EventType = "ignored"
)

// WebhookEvent is a provider payload normalized to what the ledger needs.
type WebhookEvent struct {
	Type             EventType
	ProviderEvent    string
	OrderReference   string
	AmountReceived   decimal.Decimal
	Fee              decimal.Decimal
	Currency         string
	GatewayReference string
}

// Supports reports whether gw accepts currency.
func Supports(gw Gateway, currency string) bool {
	supported := gw.SupportedCurrencies()
	if len(supported) == 0 {
		return true
	}
	for _, c := range supported {
		if strings.EqualFold(c, currency) {
			return true
		}
	}
	return false
}
