package gateway

import (
	"context"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
)

const CODID = "cod"

// CashOnDelivery collects at the door. Payments are recorded manually through the
// ledger once the rider hands the cash in.
type CashOnDelivery struct {
	enabled bool
}

func NewCashOnDelivery(enabled bool) *CashOnDelivery {
	return &CashOnDelivery{enabled: enabled}
}

func (c *CashOnDelivery) Identifier() string            { return CODID }
func (c *CashOnDelivery) DisplayName() string           { return "Cash on delivery" }
func (c *CashOnDelivery) IsAvailable() bool             { return c.enabled }
func (c *CashOnDelivery) SupportedCurrencies() []string { return nil }

func (c *CashOnDelivery) InitializePayment(_ context.Context, _ Order, opts InitializeOptions) (InitializeResult, error) {
	return InitializeResult{Reference: opts.Reference}, nil
}

func (c *CashOnDelivery) VerifyPayment(context.Context, string) (VerifyResult, error) {
	return VerifyResult{Status: StatusPending}, nil
}

func (c *CashOnDelivery) Refund(context.Context, RefundRequest) (RefundResult, error) {
	return RefundResult{Status: RefundManual}, nil
}

func (c *CashOnDelivery) ValidateWebhook(WebhookRequest) bool {
	return false
}

func (c *CashOnDelivery) ParseWebhook(WebhookRequest) (WebhookEvent, error) {
	return WebhookEvent{}, domain.ErrWebhookNotSupported
}

var _ Gateway = (*CashOnDelivery)(nil)
