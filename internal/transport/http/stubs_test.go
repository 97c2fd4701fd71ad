package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	testTenant = "11111111-1111-1111-1111-111111111111"
	testShop   = "22222222-2222-2222-2222-222222222222"
	shopPath   = "/api/v1/shops/" + testShop
)

// stubServices implements every service interface the router needs. err, when
// set, is returned by every call; the last inputs are recorded for assertions.
type stubServices struct {
	err error

	scope    domain.Scope
	owner    domain.OwnerKey
	guest    domain.OwnerKey
	id       string
	add      app.AddItemInput
	update   app.UpdateQuantityInput
	checkout app.CheckoutInput
	initiate app.InitiatePaymentInput
	record   app.RecordPaymentInput
	refund   app.RefundPaymentInput
	webhook  gateway.WebhookRequest
	verified string
	notes    string

	checkoutResult app.CheckoutResult
	order          domain.Order
}

func newStub() *stubServices {
	order := domain.Order{
		ID: "order-1", OrderNumber: "ORD-20250401-0001", Status: domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending, Currency: "NGN", TotalAmount: decimal.NewFromInt(17125),
		Items: []domain.OrderItem{{ID: "item-1", Sellable: domain.ProductRef("variant-1"), SKU: "YAM-1", Quantity: 6, TotalAmount: decimal.NewFromInt(17125)}},
	}
	return &stubServices{
		order:          order,
		checkoutResult: app.CheckoutResult{Order: order, Created: true},
	}
}

func (s *stubServices) AddItem(_ context.Context, in app.AddItemInput) (domain.CartItem, error) {
	s.add = in
	if s.err != nil {
		return domain.CartItem{}, s.err
	}
	return domain.CartItem{ID: "line-1", Sellable: in.Sellable, Configuration: in.Configuration, Quantity: in.Quantity, UnitPrice: decimal.NewFromInt(2500)}, nil
}

func (s *stubServices) UpdateQuantity(_ context.Context, in app.UpdateQuantityInput) error {
	s.update = in
	return s.err
}

func (s *stubServices) RemoveItem(_ context.Context, scope domain.Scope, owner domain.OwnerKey, itemID string) error {
	s.scope, s.owner, s.id = scope, owner, itemID
	return s.err
}

func (s *stubServices) Clear(_ context.Context, scope domain.Scope, owner domain.OwnerKey) error {
	s.scope, s.owner = scope, owner
	return s.err
}

func (s *stubServices) Summarize(_ context.Context, scope domain.Scope, owner domain.OwnerKey) (domain.CartSummary, error) {
	s.scope, s.owner = scope, owner
	if s.err != nil {
		return domain.CartSummary{}, s.err
	}
	return domain.CartSummary{
		CartID: "cart-1", Currency: "NGN", ItemCount: 2, Subtotal: decimal.NewFromInt(5000),
		Lines: []domain.CartLine{{
			Item: domain.CartItem{ID: "line-1", Sellable: domain.ProductRef("variant-1"), Quantity: 2, UnitPrice: decimal.NewFromInt(2400)},
			Name: "Yam", SKU: "YAM-1", UnitPrice: decimal.NewFromInt(2500), LineTotal: decimal.NewFromInt(5000), Available: true,
		}},
	}, nil
}

func (s *stubServices) MergeInto(_ context.Context, scope domain.Scope, guest, target domain.OwnerKey) (domain.Cart, error) {
	s.scope, s.guest = scope, guest
	if s.err != nil {
		return domain.Cart{}, s.err
	}
	return domain.Cart{ID: "cart-1", Owner: target}, nil
}

func (s *stubServices) Checkout(_ context.Context, in app.CheckoutInput) (app.CheckoutResult, error) {
	s.checkout = in
	if s.err != nil {
		return app.CheckoutResult{}, s.err
	}
	return s.checkoutResult, nil
}

func (s *stubServices) PaymentMethods(_ context.Context, scope domain.Scope) ([]app.PaymentMethod, error) {
	s.scope = scope
	if s.err != nil {
		return nil, s.err
	}
	return []app.PaymentMethod{{ID: gateway.CODID, DisplayName: "Cash on delivery"}}, nil
}

func (s *stubServices) GetOrder(_ context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error) {
	s.scope, s.owner, s.id = scope, owner, orderID
	if s.err != nil {
		return domain.Order{}, s.err
	}
	return s.order, nil
}

func (s *stubServices) CancelOrder(_ context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error) {
	s.scope, s.owner, s.id = scope, owner, orderID
	if s.err != nil {
		return domain.Order{}, s.err
	}
	cancelled := s.order
	cancelled.Status = domain.OrderStatusCancelled
	return cancelled, nil
}

func (s *stubServices) RecordPayment(_ context.Context, in app.RecordPaymentInput) (app.LedgerResult, error) {
	s.record = in
	if s.err != nil {
		return app.LedgerResult{}, s.err
	}
	return app.LedgerResult{
		Payment: domain.OrderPayment{ID: "pay-1", Kind: domain.PaymentKindPayment, Source: domain.PaymentSourceManual, Amount: in.Amount, Method: in.Method},
		Balance: domain.OrderBalance{OrderID: in.OrderID, Total: s.order.TotalAmount, Paid: in.Amount, Outstanding: s.order.TotalAmount.Sub(in.Amount), Status: domain.PaymentStatusPartiallyPaid},
	}, nil
}

func (s *stubServices) Balance(_ context.Context, _ domain.Scope, orderID string) (domain.OrderBalance, error) {
	if s.err != nil {
		return domain.OrderBalance{}, s.err
	}
	return domain.OrderBalance{OrderID: orderID, Total: s.order.TotalAmount, Paid: decimal.Zero, Outstanding: s.order.TotalAmount, Status: domain.PaymentStatusPending}, nil
}

func (s *stubServices) Payments(context.Context, domain.Scope, string) ([]domain.OrderPayment, error) {
	return nil, s.err
}

func (s *stubServices) InitiatePayment(_ context.Context, in app.InitiatePaymentInput) (app.InitiatePaymentResult, error) {
	s.initiate = in
	if s.err != nil {
		return app.InitiatePaymentResult{}, s.err
	}
	return app.InitiatePaymentResult{AttemptID: "att-1", Gateway: "paystack", Reference: "paystack_ORD_01", RedirectURL: "https://pay.example/abc", Amount: s.order.TotalAmount, Currency: "NGN"}, nil
}

func (s *stubServices) RefundPayment(_ context.Context, in app.RefundPaymentInput) (app.LedgerResult, error) {
	s.refund = in
	if s.err != nil {
		return app.LedgerResult{}, s.err
	}
	return app.LedgerResult{Payment: domain.OrderPayment{ID: "refund-1", Kind: domain.PaymentKindRefund, Amount: decimal.NewFromInt(-100), RefundOf: in.PaymentID}}, nil
}

func (s *stubServices) VerifyPayment(_ context.Context, gatewayID, reference string) (app.VerifyPaymentResult, error) {
	s.id, s.verified = gatewayID, reference
	if s.err != nil {
		return app.VerifyPaymentResult{}, s.err
	}
	return app.VerifyPaymentResult{Order: s.order, Status: gateway.StatusSuccess, Applied: true, Balance: domain.OrderBalance{Status: domain.PaymentStatusPaid}}, nil
}

func (s *stubServices) HandleWebhook(_ context.Context, gatewayID string, req gateway.WebhookRequest) error {
	s.id, s.webhook = gatewayID, req
	return s.err
}

func (s *stubServices) Hold(_ context.Context, scope domain.Scope, owner domain.OwnerKey, notes string) (domain.HeldSale, error) {
	s.scope, s.owner, s.notes = scope, owner, notes
	if s.err != nil {
		return domain.HeldSale{}, s.err
	}
	return domain.HeldSale{ID: "held-1", Reference: "HS-000001", Status: domain.HeldSaleHeld, Notes: notes, ExpiresAt: time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)}, nil
}

func (s *stubServices) List(_ context.Context, scope domain.Scope) ([]domain.HeldSale, error) {
	s.scope = scope
	return nil, s.err
}

func (s *stubServices) Retrieve(_ context.Context, scope domain.Scope, owner domain.OwnerKey, id string) (app.RetrieveResult, error) {
	s.scope, s.owner, s.id = scope, owner, id
	if s.err != nil {
		return app.RetrieveResult{}, s.err
	}
	return app.RetrieveResult{
		Sale:    domain.HeldSale{ID: id, Reference: "HS-000001", Status: domain.HeldSaleRetrieved},
		Skipped: []domain.HeldSaleItem{{Kind: domain.SellableProduct, SellableID: "variant-gone", Quantity: 1}},
	}, nil
}

func (s *stubServices) Discard(_ context.Context, scope domain.Scope, id string) error {
	s.scope, s.id = scope, id
	return s.err
}

func signToken(t *testing.T, subject, role, tenant string) string {
	t.Helper()
	claims := Claims{
		TenantID: tenant,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func newTestRouter(stub *stubServices) http.Handler {
	return NewRouter(Deps{
		Carts: stub, Checkout: stub, Orders: stub, Ledger: stub, Payments: stub, HeldSales: stub,
		Auth:        NewAuthenticator(testSecret),
		CORSOrigins: []string{"http://localhost:5173"},
	})
}

func serve(h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}
