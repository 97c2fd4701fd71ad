package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	CryptoID          = "crypto"
	cryptoDefaultBase = "https://api.nowpayments.io/v1"
	cryptoSignature   = "X-Nowpayments-Sig"
)

// Crypto settles on-chain through a hosted invoice. Prices are quoted in fiat major
// units and the processor converts to the coin the customer picks.
type Crypto struct {
	creds   Credentials
	baseURL string
	client  *client
}

func NewCrypto(creds Credentials, opts ClientOptions) *Crypto {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		base = cryptoDefaultBase
	}
	return &Crypto{creds: creds, baseURL: base, client: newClient(CryptoID, opts)}
}

func (c *Crypto) Identifier() string  { return CryptoID }
func (c *Crypto) DisplayName() string { return "Cryptocurrency" }

func (c *Crypto) IsAvailable() bool {
	return c.creds.SecretKey != "" && c.creds.WebhookSecret != ""
}

func (c *Crypto) SupportedCurrencies() []string {
	return []string{"USD", "EUR", "GBP"}
}

type cryptoPayment struct {
	PaymentID     json.Number     `json:"payment_id"`
	PaymentStatus string          `json:"payment_status"`
	OrderID       string          `json:"order_id"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
}

func (c *Crypto) headers() http.Header {
	h := http.Header{}
	h.Set("X-Api-Key", c.creds.SecretKey)
	return h
}

func (c *Crypto) InitializePayment(ctx context.Context, order Order, opts InitializeOptions) (InitializeResult, error) {
	req := map[string]any{
		"price_amount":      order.Amount,
		"price_currency":    strings.ToLower(order.Currency),
		"order_id":          opts.Reference,
		"order_description": "Order " + order.OrderNumber,
		"ipn_callback_url":  opts.Metadata["webhook_url"],
		"success_url":       opts.CallbackURL,
		"cancel_url":        opts.CallbackURL,
	}
	var resp struct {
		ID         json.Number `json:"id"`
		InvoiceURL string      `json:"invoice_url"`
	}
	if err := c.client.doJSON(ctx, "initialize", http.MethodPost, c.baseURL+"/invoice", c.headers(), req, &resp); err != nil {
		return InitializeResult{}, err
	}
	if resp.InvoiceURL == "" {
		return InitializeResult{}, fmt.Errorf("%w: crypto invoice without url", domain.ErrGatewayRejected)
	}
	return InitializeResult{Reference: opts.Reference, RedirectURL: resp.InvoiceURL}, nil
}

func (c *Crypto) VerifyPayment(ctx context.Context, reference string) (VerifyResult, error) {
	var resp struct {
		Data []cryptoPayment `json:"data"`
	}
	endpoint := c.baseURL + "/payment/?order_id=" + url.QueryEscape(reference)
	if err := c.client.doJSON(ctx, "verify", http.MethodGet, endpoint, c.headers(), nil, &resp); err != nil {
		return VerifyResult{}, err
	}

	result := VerifyResult{Status: StatusPending}
	for _, p := range resp.Data {
		if p.OrderID != reference {
			continue
		}
		result = VerifyResult{
			Status:           cryptoStatus(p.PaymentStatus),
			Amount:           p.PriceAmount,
			Currency:         strings.ToUpper(p.PriceCurrency),
			GatewayReference: p.PaymentID.String(),
		}
		if result.Status == StatusSuccess {
			break
		}
	}
	return result, nil
}

// Refund is not offered: on-chain transfers are returned manually by the merchant.
func (c *Crypto) Refund(context.Context, RefundRequest) (RefundResult, error) {
	return RefundResult{}, domain.ErrRefundNotSupported
}

// ValidateWebhook checks the HMAC-SHA512 of the key-sorted JSON body, keyed with
// the IPN secret.
func (c *Crypto) ValidateWebhook(req WebhookRequest) bool {
	sig := req.Header.Get(cryptoSignature)
	if sig == "" || c.creds.WebhookSecret == "" {
		return false
	}
	canonical, err := canonicalJSON(req.Body)
	if err != nil {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.creds.WebhookSecret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

func (c *Crypto) ParseWebhook(req WebhookRequest) (WebhookEvent, error) {
	var p cryptoPayment
	if err := json.Unmarshal(req.Body, &p); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode crypto webhook: %w", err)
	}
	event := WebhookEvent{
		Type:             EventIgnored,
		ProviderEvent:    p.PaymentStatus,
		OrderReference:   p.OrderID,
		AmountReceived:   p.PriceAmount,
		Currency:         strings.ToUpper(p.PriceCurrency),
		GatewayReference: p.PaymentID.String(),
	}
	switch cryptoStatus(p.PaymentStatus) {
	case StatusSuccess:
		event.Type = EventPaymentSucceeded
	case StatusFailed:
		event.Type = EventPaymentFailed
	}
	return event, nil
}

func cryptoStatus(s string) PaymentStatus {
	switch s {
	case "finished":
		return StatusSuccess
	case "failed", "expired", "refunded":
		return StatusFailed
	default:
		return StatusPending
	}
}

// canonicalJSON re-encodes body with object keys sorted and no HTML escaping.
func canonicalJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var _ Gateway = (*Crypto)(nil)
