package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	t.Parallel()

	guest := map[string]string{headerTenant: testTenant, headerCartSession: "sess-1"}
	customer := map[string]string{headerTenant: testTenant, "Authorization": "Bearer " + signToken(t, "customer-1", "", testTenant)}
	staff := map[string]string{headerTenant: testTenant, "Authorization": "Bearer " + signToken(t, "cashier-1", RoleStaff, "")}
	withHeader := func(base map[string]string, k, v string) map[string]string {
		out := map[string]string{k: v}
		for bk, bv := range base {
			out[bk] = bv
		}
		return out
	}

	tests := []struct {
		name           string
		method         string
		path           string
		body           string
		headers        map[string]string
		setup          func(s *stubServices)
		expectedStatus int
		expectedCode   string
		expectedSubstr string
		check          func(t *testing.T, s *stubServices)
	}{
		{
			name:           "health",
			method:         http.MethodGet,
			path:           "/health",
			expectedStatus: http.StatusOK,
			expectedSubstr: "ok",
		},
		{
			name:           "unknown route",
			method:         http.MethodGet,
			path:           "/api/v1/nowhere",
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeNotFound,
		},
		{
			name:           "wrong method",
			method:         http.MethodPut,
			path:           shopPath + "/cart",
			headers:        guest,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedCode:   codeMethodNotAllowed,
		},
		{
			name:           "tenant header required",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        map[string]string{headerCartSession: "sess-1"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeTenantRequired,
		},
		{
			name:           "owner required",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        map[string]string{headerTenant: testTenant},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthorized,
		},
		{
			name:           "garbage token",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        map[string]string{headerTenant: testTenant, "Authorization": "Bearer not-a-jwt"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthorized,
		},
		{
			name:           "token of another tenant",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        map[string]string{headerTenant: testTenant, "Authorization": "Bearer " + signToken(t, "customer-1", "", "99999999-9999-9999-9999-999999999999")},
			expectedStatus: http.StatusForbidden,
			expectedCode:   codeForbidden,
		},
		{
			name:           "guest cart",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        guest,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"line_total":"5000"`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.GuestOwner("sess-1"), s.owner)
				assert.Equal(t, domain.Scope{TenantID: testTenant, ShopID: testShop}, s.scope)
			},
		},
		{
			name:           "bearer token wins over cart session",
			method:         http.MethodGet,
			path:           shopPath + "/cart",
			headers:        withHeader(customer, headerCartSession, "sess-1"),
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.CustomerOwner("customer-1"), s.owner)
			},
		},
		{
			name:           "add item",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"kind":"service","sellable_id":"svc-1","quantity":1,"material_option":"shop_materials","addons":[{"addon_id":"a1","quantity":2}]}`,
			headers:        guest,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"id":"line-1"`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.ServiceRef("svc-1"), s.add.Sellable)
				assert.Equal(t, domain.MaterialShop, s.add.Configuration.MaterialOption)
				assert.Equal(t, []domain.SelectedAddon{{AddonID: "a1", Quantity: 2}}, s.add.Configuration.Addons)
			},
		},
		{
			name:           "add item defaults to product",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"sellable_id":"variant-1","quantity":3,"packaging_type_id":"crate"}`,
			headers:        guest,
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.ProductRef("variant-1"), s.add.Sellable)
				assert.Equal(t, "crate", s.add.Configuration.PackagingTypeID)
			},
		},
		{
			name:           "add item without sellable",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"quantity":1}`,
			headers:        guest,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:           "add item unknown field",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"sellable_id":"v","quantity":1,"price":"1"}`,
			headers:        guest,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeInvalidRequestBody,
		},
		{
			name:           "add item invalid quantity",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"sellable_id":"v","quantity":0}`,
			headers:        guest,
			setup:          func(s *stubServices) { s.err = domain.ErrInvalidQuantity },
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   codeInvalidQuantity,
		},
		{
			name:           "add unavailable sellable",
			method:         http.MethodPost,
			path:           shopPath + "/cart/items",
			body:           `{"sellable_id":"v","quantity":1}`,
			headers:        guest,
			setup:          func(s *stubServices) { s.err = domain.ErrUnavailable },
			expectedStatus: http.StatusConflict,
			expectedCode:   codeSellableUnavailable,
		},
		{
			name:           "update quantity",
			method:         http.MethodPatch,
			path:           shopPath + "/cart/items/line-1",
			body:           `{"quantity":0}`,
			headers:        guest,
			expectedStatus: http.StatusNoContent,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, "line-1", s.update.ItemID)
				assert.Zero(t, s.update.Quantity)
			},
		},
		{
			name:           "update quantity missing",
			method:         http.MethodPatch,
			path:           shopPath + "/cart/items/line-1",
			body:           `{}`,
			headers:        guest,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:           "remove item of another owner",
			method:         http.MethodDelete,
			path:           shopPath + "/cart/items/line-9",
			headers:        guest,
			setup:          func(s *stubServices) { s.err = domain.ErrCartItemNotFound },
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeCartItemNotFound,
		},
		{
			name:           "clear cart",
			method:         http.MethodDelete,
			path:           shopPath + "/cart",
			headers:        guest,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "merge needs a customer",
			method:         http.MethodPost,
			path:           shopPath + "/cart/merge",
			headers:        guest,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthorized,
		},
		{
			name:           "merge guest session into customer",
			method:         http.MethodPost,
			path:           shopPath + "/cart/merge",
			headers:        withHeader(customer, headerCartSession, "sess-7"),
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.GuestOwner("sess-7"), s.guest)
				assert.Equal(t, domain.CustomerOwner("customer-1"), s.owner)
			},
		},
		{
			name:           "merge without session",
			method:         http.MethodPost,
			path:           shopPath + "/cart/merge",
			headers:        customer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:           "payment methods need only the tenant",
			method:         http.MethodGet,
			path:           shopPath + "/payment-methods",
			headers:        map[string]string{headerTenant: testTenant},
			expectedStatus: http.StatusOK,
			expectedSubstr: `"id":"cod"`,
		},
		{
			name:           "checkout created",
			method:         http.MethodPost,
			path:           shopPath + "/checkout",
			body:           `{"payment_method":"cod","customer_email":"ada@example.com","shipping_address":{"name":"Ada","line1":"1 Marina","city":"Lagos","country":"NG"}}`,
			headers:        withHeader(customer, "Idempotency-Key", "key-1"),
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"total_amount":"17125"`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, "key-1", s.checkout.IdempotencyKey)
				assert.Equal(t, "Lagos", s.checkout.ShippingAddress.City)
				assert.Equal(t, domain.Address{}, s.checkout.BillingAddress)
			},
		},
		{
			name:    "checkout replay",
			method:  http.MethodPost,
			path:    shopPath + "/checkout",
			body:    `{"payment_method":"cod"}`,
			headers: withHeader(customer, "Idempotency-Key", "key-1"),
			setup: func(s *stubServices) {
				s.checkoutResult.Created = false
			},
			expectedStatus: http.StatusOK,
			expectedSubstr: `"order_number":"ORD-20250401-0001"`,
		},
		{
			name:    "checkout saved but payment failed to start",
			method:  http.MethodPost,
			path:    shopPath + "/checkout",
			body:    `{"payment_method":"paystack"}`,
			headers: customer,
			setup: func(s *stubServices) {
				s.checkoutResult.PaymentError = fmt.Errorf("%w: upstream said 503 with secret detail", domain.ErrGatewayRequestFailed)
			},
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"payment_error":{"error":"payment gateway request failed","code":"gateway_request_failed"}`,
		},
		{
			name:           "checkout without payment method",
			method:         http.MethodPost,
			path:           shopPath + "/checkout",
			body:           `{}`,
			headers:        customer,
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:    "checkout out of stock names the sku",
			method:  http.MethodPost,
			path:    shopPath + "/checkout",
			body:    `{"payment_method":"cod"}`,
			headers: customer,
			setup: func(s *stubServices) {
				s.err = &domain.CheckoutError{Stage: domain.StageReserving, Err: &domain.InsufficientStockError{SKU: "PS5-DISC", Requested: 1}}
			},
			expectedStatus: http.StatusConflict,
			expectedCode:   codeInsufficientStock,
			expectedSubstr: `"details":{"sku":"PS5-DISC"}`,
		},
		{
			name:           "checkout empty cart",
			method:         http.MethodPost,
			path:           shopPath + "/checkout",
			body:           `{"payment_method":"cod"}`,
			headers:        customer,
			setup:          func(s *stubServices) { s.err = &domain.CheckoutError{Stage: domain.StageValidating, Err: domain.CartInvalid("cart is empty")} },
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   codeCartInvalid,
		},
		{
			name:           "checkout unknown gateway",
			method:         http.MethodPost,
			path:           shopPath + "/checkout",
			body:           `{"payment_method":"bitcoin-atm"}`,
			headers:        customer,
			setup:          func(s *stubServices) { s.err = fmt.Errorf("%w: %q", domain.ErrUnknownGateway, "bitcoin-atm") },
			expectedStatus: http.StatusNotFound,
			expectedCode:   codeUnknownGateway,
		},
		{
			name:           "customer reads own order",
			method:         http.MethodGet,
			path:           shopPath + "/orders/order-1",
			headers:        customer,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.CustomerOwner("customer-1"), s.owner)
				assert.Equal(t, "order-1", s.id)
			},
		},
		{
			name:           "staff reads any order",
			method:         http.MethodGet,
			path:           shopPath + "/orders/order-1",
			headers:        staff,
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.OwnerKey{}, s.owner)
			},
		},
		{
			name:           "cancel paid order",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/cancel",
			headers:        customer,
			setup:          func(s *stubServices) { s.err = domain.ErrOrderNotCancellable },
			expectedStatus: http.StatusConflict,
			expectedCode:   codeOrderNotCancellable,
		},
		{
			name:           "cancel order",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/cancel",
			headers:        customer,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"status":"cancelled"`,
		},
		{
			name:           "balance",
			method:         http.MethodGet,
			path:           shopPath + "/orders/order-1/balance",
			headers:        customer,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"outstanding":"17125"`,
		},
		{
			name:           "retry payment",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments/retry",
			body:           `{"gateway":"paystack"}`,
			headers:        customer,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"redirect_url":"https://pay.example/abc"`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, "paystack", s.initiate.Gateway)
				assert.Equal(t, "order-1", s.initiate.OrderID)
			},
		},
		{
			name:           "retry payment while one is starting",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments/retry",
			headers:        customer,
			setup:          func(s *stubServices) { s.err = domain.ErrPaymentInProgress },
			expectedStatus: http.StatusConflict,
			expectedCode:   codePaymentInProgress,
		},
		{
			name:           "manual payment by a customer",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments",
			body:           `{"amount":"100","method":"cash"}`,
			headers:        customer,
			expectedStatus: http.StatusForbidden,
			expectedCode:   codeForbidden,
		},
		{
			name:           "manual payment by a guest",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments",
			body:           `{"amount":"100","method":"cash"}`,
			headers:        guest,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeUnauthorized,
		},
		{
			name:           "manual payment by staff",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments",
			body:           `{"amount":"8562.50","method":"cash","notes":"till 2"}`,
			headers:        staff,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"status":"partially_paid"`,
			check: func(t *testing.T, s *stubServices) {
				assert.True(t, s.record.Amount.Equal(decimal.RequireFromString("8562.5")))
				assert.Equal(t, "till 2", s.record.Notes)
			},
		},
		{
			name:           "manual over-payment",
			method:         http.MethodPost,
			path:           shopPath + "/orders/order-1/payments",
			body:           `{"amount":"99999","method":"cash"}`,
			headers:        staff,
			setup:          func(s *stubServices) { s.err = domain.ErrOverpaymentNotAllowed },
			expectedStatus: http.StatusConflict,
			expectedCode:   codeOverpaymentNotAllowed,
		},
		{
			name:           "full refund",
			method:         http.MethodPost,
			path:           shopPath + "/payments/pay-1/refund",
			body:           `{"reason":"damaged"}`,
			headers:        staff,
			expectedStatus: http.StatusCreated,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, "pay-1", s.refund.PaymentID)
				assert.False(t, s.refund.Amount.Valid)
			},
		},
		{
			name:           "partial refund too large",
			method:         http.MethodPost,
			path:           shopPath + "/payments/pay-1/refund",
			body:           `{"amount":"500"}`,
			headers:        staff,
			setup:          func(s *stubServices) { s.err = domain.ErrRefundExceedsPayment },
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   codeRefundExceedsPayment,
			check: func(t *testing.T, s *stubServices) {
				require.True(t, s.refund.Amount.Valid)
				assert.True(t, s.refund.Amount.Decimal.Equal(decimal.NewFromInt(500)))
			},
		},
		{
			name:           "hold sale",
			method:         http.MethodPost,
			path:           shopPath + "/held-sales",
			body:           `{"notes":"back in five"}`,
			headers:        staff,
			expectedStatus: http.StatusCreated,
			expectedSubstr: `"reference":"HS-000001"`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, domain.CustomerOwner("cashier-1"), s.owner)
				assert.Equal(t, "back in five", s.notes)
			},
		},
		{
			name:           "list held sales is never null",
			method:         http.MethodGet,
			path:           shopPath + "/held-sales",
			headers:        staff,
			expectedStatus: http.StatusOK,
			expectedSubstr: `[]`,
		},
		{
			name:           "retrieve held sale reports skipped lines",
			method:         http.MethodPost,
			path:           shopPath + "/held-sales/held-1/retrieve",
			headers:        staff,
			expectedStatus: http.StatusOK,
			expectedSubstr: `"sellable_id":"variant-gone"`,
		},
		{
			name:           "retrieve expired held sale",
			method:         http.MethodPost,
			path:           shopPath + "/held-sales/held-1/retrieve",
			headers:        staff,
			setup:          func(s *stubServices) { s.err = domain.ErrHeldSaleExpired },
			expectedStatus: http.StatusConflict,
			expectedCode:   codeHeldSaleExpired,
		},
		{
			name:           "discard held sale",
			method:         http.MethodDelete,
			path:           shopPath + "/held-sales/held-1",
			headers:        staff,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "held sales are staff only",
			method:         http.MethodGet,
			path:           shopPath + "/held-sales",
			headers:        customer,
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "callback accepts trxref",
			method:         http.MethodGet,
			path:           "/api/v1/payments/paystack/callback?trxref=paystack_ORD_01",
			expectedStatus: http.StatusOK,
			expectedSubstr: `"applied":true`,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, "paystack", s.id)
				assert.Equal(t, "paystack_ORD_01", s.verified)
			},
		},
		{
			name:           "callback without reference",
			method:         http.MethodGet,
			path:           "/api/v1/payments/paystack/callback",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   codeMissingRequiredField,
		},
		{
			name:           "webhook passes raw bytes",
			method:         http.MethodPost,
			path:           "/api/v1/webhooks/paystack",
			body:           `{"event":"charge.success", "data":{}}`,
			headers:        map[string]string{"X-Paystack-Signature": "abc"},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, s *stubServices) {
				assert.Equal(t, `{"event":"charge.success", "data":{}}`, string(s.webhook.Body))
				assert.Equal(t, "abc", s.webhook.Header.Get("X-Paystack-Signature"))
			},
		},
		{
			name:           "webhook with a bad signature",
			method:         http.MethodPost,
			path:           "/api/v1/webhooks/paystack",
			body:           `{}`,
			setup:          func(s *stubServices) { s.err = fmt.Errorf("paystack: %w", domain.ErrWebhookSignatureInvalid) },
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   codeWebhookSignatureInvalid,
		},
		{
			name:           "internal error",
			method:         http.MethodGet,
			path:           shopPath + "/orders/order-1",
			headers:        customer,
			setup:          func(s *stubServices) { s.err = errors.New("connection reset") },
			expectedStatus: http.StatusInternalServerError,
			expectedCode:   codeInternalError,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stub := newStub()
			if tt.setup != nil {
				tt.setup(stub)
			}
			rec := serve(newTestRouter(stub), tt.method, tt.path, tt.body, tt.headers)

			body := rec.Body.String()
			require.Equal(t, tt.expectedStatus, rec.Code, body)
			if tt.expectedCode != "" {
				var resp errorResponse
				require.NoError(t, json.NewDecoder(strings.NewReader(body)).Decode(&resp))
				assert.Equal(t, tt.expectedCode, resp.Code)
			}
			if tt.expectedSubstr != "" {
				assert.Contains(t, body, tt.expectedSubstr)
			}
			if tt.check != nil {
				tt.check(t, stub)
			}
		})
	}
}

func TestRouter_CheckoutPaymentStarted(t *testing.T) {
	t.Parallel()

	stub := newStub()
	stub.checkoutResult.Payment = &app.InitiatePaymentResult{Gateway: "paystack", Reference: "paystack_ORD_01", RedirectURL: "https://pay.example/x"}
	headers := map[string]string{headerTenant: testTenant, "Authorization": "Bearer " + signToken(t, "customer-1", "", "")}

	rec := serve(newTestRouter(stub), http.MethodPost, shopPath+"/checkout", `{"payment_method":"paystack"}`, headers)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Order struct {
			ID    string `json:"id"`
			Items []struct {
				TotalAmount decimal.Decimal `json:"total_amount"`
			} `json:"items"`
		} `json:"order"`
		Payment *struct {
			RedirectURL string `json:"redirect_url"`
		} `json:"payment"`
		PaymentError *errorResponse `json:"payment_error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "order-1", resp.Order.ID)
	require.Len(t, resp.Order.Items, 1)
	assert.True(t, resp.Order.Items[0].TotalAmount.Equal(decimal.NewFromInt(17125)))
	require.NotNil(t, resp.Payment)
	assert.Equal(t, "https://pay.example/x", resp.Payment.RedirectURL)
	assert.Nil(t, resp.PaymentError)
}
