package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
)

const (
	PaystackID          = "paystack"
	paystackDefaultBase = "https://api.paystack.co"
	paystackSignature   = "X-Paystack-Signature"
)

// Credentials is the per-gateway configuration read at startup.
type Credentials struct {
	SecretKey     string
	PublicKey     string
	WebhookSecret string
	BaseURL       string
}

// Paystack is a hosted-redirect gateway: initialize returns an authorization URL
// the customer is sent to.
type Paystack struct {
	creds   Credentials
	baseURL string
	client  *client
}

func NewPaystack(creds Credentials, opts ClientOptions) *Paystack {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		base = paystackDefaultBase
	}
	return &Paystack{creds: creds, baseURL: base, client: newClient(PaystackID, opts)}
}

func (p *Paystack) Identifier() string  { return PaystackID }
func (p *Paystack) DisplayName() string { return "Paystack" }
func (p *Paystack) IsAvailable() bool   { return p.creds.SecretKey != "" }

func (p *Paystack) SupportedCurrencies() []string {
	return []string{"NGN", "GHS", "KES", "ZAR", "USD"}
}

type paystackEnvelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type paystackTransaction struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Fees      int64  `json:"fees"`
	Currency  string `json:"currency"`
}

func (p *Paystack) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+p.creds.SecretKey)
	return h
}

func (p *Paystack) InitializePayment(ctx context.Context, order Order, opts InitializeOptions) (InitializeResult, error) {
	req := map[string]any{
		"email":        order.CustomerEmail,
		"amount":       ToSmallestUnit(order.Amount, order.Currency),
		"currency":     strings.ToUpper(order.Currency),
		"reference":    opts.Reference,
		"callback_url": opts.CallbackURL,
		"metadata": map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"extra":        opts.Metadata,
		},
	}
	var resp paystackEnvelope[struct {
		AuthorizationURL string `json:"authorization_url"`
		AccessCode       string `json:"access_code"`
		Reference        string `json:"reference"`
	}]
	if err := p.client.doJSON(ctx, "initialize", http.MethodPost, p.baseURL+"/transaction/initialize", p.headers(), req, &resp); err != nil {
		return InitializeResult{}, err
	}
	if !resp.Status || resp.Data.AuthorizationURL == "" {
		return InitializeResult{}, fmt.Errorf("%w: paystack initialize: %s", domain.ErrGatewayRejected, resp.Message)
	}
	return InitializeResult{
		Reference:   opts.Reference,
		RedirectURL: resp.Data.AuthorizationURL,
		PublicKey:   p.creds.PublicKey,
	}, nil
}

func (p *Paystack) VerifyPayment(ctx context.Context, reference string) (VerifyResult, error) {
	var resp paystackEnvelope[paystackTransaction]
	endpoint := p.baseURL + "/transaction/verify/" + url.PathEscape(reference)
	if err := p.client.doJSON(ctx, "verify", http.MethodGet, endpoint, p.headers(), nil, &resp); err != nil {
		return VerifyResult{}, err
	}
	tx := resp.Data
	return VerifyResult{
		Status:           paystackStatus(tx.Status),
		Amount:           FromSmallestUnit(tx.Amount, tx.Currency),
		Fee:              FromSmallestUnit(tx.Fees, tx.Currency),
		Currency:         tx.Currency,
		GatewayReference: strconv.FormatInt(tx.ID, 10),
	}, nil
}

func (p *Paystack) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	body := map[string]any{"transaction": req.Reference}
	if req.Amount.Valid {
		body["amount"] = ToSmallestUnit(req.Amount.Decimal, req.Currency)
	}
	if req.Reason != "" {
		body["merchant_note"] = req.Reason
	}
	var resp paystackEnvelope[struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}]
	if err := p.client.doJSON(ctx, "refund", http.MethodPost, p.baseURL+"/refund", p.headers(), body, &resp); err != nil {
		return RefundResult{}, err
	}
	if !resp.Status {
		return RefundResult{}, fmt.Errorf("%w: paystack refund: %s", domain.ErrGatewayRejected, resp.Message)
	}
	status := RefundPending
	if resp.Data.Status == "processed" {
		status = RefundProcessed
	}
	return RefundResult{Status: status, GatewayReference: strconv.FormatInt(resp.Data.ID, 10)}, nil
}

// ValidateWebhook checks X-Paystack-Signature, the hex HMAC-SHA512 of the body
// keyed with the secret key.
func (p *Paystack) ValidateWebhook(req WebhookRequest) bool {
	sig := req.Header.Get(paystackSignature)
	if sig == "" || p.creds.SecretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.creds.SecretKey))
	mac.Write(req.Body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(sig)))
}

func (p *Paystack) ParseWebhook(req WebhookRequest) (WebhookEvent, error) {
	var payload struct {
		Event string              `json:"event"`
		Data  paystackTransaction `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode paystack webhook: %w", err)
	}

	event := WebhookEvent{
		Type:             EventIgnored,
		ProviderEvent:    payload.Event,
		OrderReference:   payload.Data.Reference,
		AmountReceived:   FromSmallestUnit(payload.Data.Amount, payload.Data.Currency),
		Fee:              FromSmallestUnit(payload.Data.Fees, payload.Data.Currency),
		Currency:         payload.Data.Currency,
		GatewayReference: strconv.FormatInt(payload.Data.ID, 10),
	}
	switch payload.Event {
	case "charge.success":
		event.Type = EventPaymentSucceeded
	case "charge.failed":
		event.Type = EventPaymentFailed
	}
	return event, nil
}

func paystackStatus(s string) PaymentStatus {
	switch s {
	case "success":
		return StatusSuccess
	case "failed", "abandoned", "reversed":
		return StatusFailed
	default:
		return StatusPending
	}
}

var _ Gateway = (*Paystack)(nil)

