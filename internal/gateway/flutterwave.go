package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	FlutterwaveID          = "flutterwave"
	flutterwaveDefaultBase = "https://api.flutterwave.com/v3"
	flutterwaveHashHeader  = "Verif-Hash"
)

// Flutterwave is an inline-widget gateway: the storefront opens the provider's
// widget with the public key and the reference returned by InitializePayment.
// Its API expresses amounts in major units.
type Flutterwave struct {
	creds   Credentials
	baseURL string
	client  *client
}

func NewFlutterwave(creds Credentials, opts ClientOptions) *Flutterwave {
	base := strings.TrimRight(creds.BaseURL, "/")
	if base == "" {
		base = flutterwaveDefaultBase
	}
	return &Flutterwave{creds: creds, baseURL: base, client: newClient(FlutterwaveID, opts)}
}

func (f *Flutterwave) Identifier() string  { return FlutterwaveID }
func (f *Flutterwave) DisplayName() string { return "Flutterwave" }

func (f *Flutterwave) IsAvailable() bool {
	return f.creds.SecretKey != "" && f.creds.PublicKey != ""
}

func (f *Flutterwave) SupportedCurrencies() []string {
	return []string{"NGN", "GHS", "KES", "UGX", "ZAR", "XAF", "XOF", "USD", "EUR", "GBP"}
}

type flutterwaveTransaction struct {
	ID       int64               `json:"id"`
	TxRef    string              `json:"tx_ref"`
	Status   string              `json:"status"`
	Amount   decimal.Decimal     `json:"amount"`
	AppFee   decimal.NullDecimal `json:"app_fee"`
	Currency string              `json:"currency"`
}

func (f *Flutterwave) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+f.creds.SecretKey)
	return h
}

// InitializePayment needs no provider call; the widget creates the charge.
func (f *Flutterwave) InitializePayment(_ context.Context, order Order, opts InitializeOptions) (InitializeResult, error) {
	if opts.Reference == "" {
		return InitializeResult{}, domain.ErrInvalidReference
	}
	return InitializeResult{
		Reference:   opts.Reference,
		InlineToken: opts.Reference,
		PublicKey:   f.creds.PublicKey,
	}, nil
}

func (f *Flutterwave) VerifyPayment(ctx context.Context, reference string) (VerifyResult, error) {
	var resp struct {
		Status  string                 `json:"status"`
		Message string                 `json:"message"`
		Data    flutterwaveTransaction `json:"data"`
	}
	endpoint := f.baseURL + "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	if err := f.client.doJSON(ctx, "verify", http.MethodGet, endpoint, f.headers(), nil, &resp); err != nil {
		return VerifyResult{}, err
	}
	if resp.Status != "success" {
		return VerifyResult{}, fmt.Errorf("%w: flutterwave verify: %s", domain.ErrGatewayRejected, resp.Message)
	}
	tx := resp.Data
	return VerifyResult{
		Status:           flutterwaveStatus(tx.Status),
		Amount:           tx.Amount,
		Fee:              decimalOrZero(tx.AppFee),
		Currency:         tx.Currency,
		GatewayReference: strconv.FormatInt(tx.ID, 10),
	}, nil
}

// Refund needs the provider transaction id, which is the ledger's gateway reference.
func (f *Flutterwave) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	if req.GatewayReference == "" {
		return RefundResult{}, domain.ErrInvalidReference
	}
	body := map[string]any{}
	if req.Amount.Valid {
		body["amount"] = req.Amount.Decimal
	}
	if req.Reason != "" {
		body["comments"] = req.Reason
	}
	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ID     int64  `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}
	endpoint := f.baseURL + "/transactions/" + url.PathEscape(req.GatewayReference) + "/refund"
	if err := f.client.doJSON(ctx, "refund", http.MethodPost, endpoint, f.headers(), body, &resp); err != nil {
		return RefundResult{}, err
	}
	if resp.Status != "success" {
		return RefundResult{}, fmt.Errorf("%w: flutterwave refund: %s", domain.ErrGatewayRejected, resp.Message)
	}
	status := RefundPending
	if resp.Data.Status == "completed" {
		status = RefundProcessed
	}
	return RefundResult{Status: status, GatewayReference: strconv.FormatInt(resp.Data.ID, 10)}, nil
}

// ValidateWebhook compares the Verif-Hash header with the configured secret hash.
func (f *Flutterwave) ValidateWebhook(req WebhookRequest) bool {
	got := req.Header.Get(flutterwaveHashHeader)
	if got == "" || f.creds.WebhookSecret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(f.creds.WebhookSecret)) == 1
}

func (f *Flutterwave) ParseWebhook(req WebhookRequest) (WebhookEvent, error) {
	var payload struct {
		Event string                 `json:"event"`
		Data  flutterwaveTransaction `json:"data"`
	}
	if err := json.Unmarshal(req.Body, &payload); err != nil {
		return WebhookEvent{}, fmt.Errorf("decode flutterwave webhook: %w", err)
	}

	event := WebhookEvent{
		Type:             EventIgnored,
		ProviderEvent:    payload.Event,
		OrderReference:   payload.Data.TxRef,
		AmountReceived:   payload.Data.Amount,
		Fee:              decimalOrZero(payload.Data.AppFee),
		Currency:         payload.Data.Currency,
		GatewayReference: strconv.FormatInt(payload.Data.ID, 10),
	}
	if payload.Event == "charge.completed" {
		switch flutterwaveStatus(payload.Data.Status) {
		case StatusSuccess:
			event.Type = EventPaymentSucceeded
		case StatusFailed:
			event.Type = EventPaymentFailed
		}
	}
	return event, nil
}

func flutterwaveStatus(s string) PaymentStatus {
	switch s {
	case "successful":
		return StatusSuccess
	case "failed", "cancelled":
		return StatusFailed
	default:
		return StatusPending
	}
}

func decimalOrZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

var _ Gateway = (*Flutterwave)(nil)
