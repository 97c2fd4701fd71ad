package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/shopspring/decimal"
)

const (
	testTenant = "tenant-1"
	testShop   = "shop-1"
)

var testScope = domain.Scope{TenantID: testTenant, ShopID: testShop}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeTxKey struct{}

// fakeStore is an in-memory implementation of every repository port. A
// transaction holds the store mutex for its whole duration and restores a
// snapshot when fn fails, so rollback behaviour is observable in tests.
type fakeStore struct {
	mu sync.Mutex

	shops     map[string]domain.Shop
	sellables map[domain.SellableRef]domain.Sellable
	locations map[string]domain.InventoryLocation
	carts     map[string]domain.Cart
	orders    map[string]domain.Order
	payments  []domain.OrderPayment
	attempts  []domain.PaymentAttempt
	heldSales map[string]domain.HeldSale
	sequences map[string]int64
	events    []domain.OutboxEvent

	txCount int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		shops:     make(map[string]domain.Shop),
		sellables: make(map[domain.SellableRef]domain.Sellable),
		locations: make(map[string]domain.InventoryLocation),
		carts:     make(map[string]domain.Cart),
		orders:    make(map[string]domain.Order),
		heldSales: make(map[string]domain.HeldSale),
		sequences: make(map[string]int64),
	}
}

type fakeSnapshot struct {
	locations map[string]domain.InventoryLocation
	carts     map[string]domain.Cart
	orders    map[string]domain.Order
	payments  []domain.OrderPayment
	attempts  []domain.PaymentAttempt
	heldSales map[string]domain.HeldSale
	sequences map[string]int64
	events    []domain.OutboxEvent
}

func (s *fakeStore) snapshot() fakeSnapshot {
	snap := fakeSnapshot{
		locations: make(map[string]domain.InventoryLocation, len(s.locations)),
		carts:     make(map[string]domain.Cart, len(s.carts)),
		orders:    make(map[string]domain.Order, len(s.orders)),
		payments:  append([]domain.OrderPayment(nil), s.payments...),
		attempts:  append([]domain.PaymentAttempt(nil), s.attempts...),
		heldSales: make(map[string]domain.HeldSale, len(s.heldSales)),
		sequences: make(map[string]int64, len(s.sequences)),
		events:    append([]domain.OutboxEvent(nil), s.events...),
	}
	for k, v := range s.locations {
		snap.locations[k] = v
	}
	for k, v := range s.carts {
		v.Items = append([]domain.CartItem(nil), v.Items...)
		snap.carts[k] = v
	}
	for k, v := range s.orders {
		snap.orders[k] = cloneOrder(v)
	}
	for k, v := range s.heldSales {
		snap.heldSales[k] = v
	}
	for k, v := range s.sequences {
		snap.sequences[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.locations = snap.locations
	s.carts = snap.carts
	s.orders = snap.orders
	s.payments = snap.payments
	s.attempts = snap.attempts
	s.heldSales = snap.heldSales
	s.sequences = snap.sequences
	s.events = snap.events
}

func cloneOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Reservations = append([]domain.InventoryReservation(nil), it.Reservations...)
		items[i] = it
	}
	o.Items = items
	return o
}

func (s *fakeStore) guard(ctx context.Context) func() {
	if ctx.Value(fakeTxKey{}) != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, fakeTxKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *fakeStore) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.WithTx(ctx, fn)
}

// --- fixtures ---

func (s *fakeStore) addShop(shop domain.Shop) {
	s.shops[shop.ID] = shop
}

func (s *fakeStore) addProduct(v domain.ProductVariant, stock ...int) {
	s.sellables[domain.ProductRef(v.ID)] = domain.ProductSellable(v)
	for i, qty := range stock {
		id := v.ID + "-loc-" + string(rune('a'+i))
		s.locations[id] = domain.InventoryLocation{
			ID:               id,
			TenantID:         v.TenantID,
			ShopID:           v.ShopID,
			ProductVariantID: v.ID,
			LocationID:       "location-" + string(rune('a'+i)),
			Quantity:         qty,
		}
	}
}

func (s *fakeStore) addService(v domain.ServiceVariant) {
	s.sellables[domain.ServiceRef(v.ID)] = domain.ServiceSellable(v)
}

func (s *fakeStore) reserved(variantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, loc := range s.locations {
		if loc.ProductVariantID == variantID {
			total += loc.ReservedQuantity
		}
	}
	return total
}

func (s *fakeStore) cartOf(owner domain.OwnerKey) *domain.Cart {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCart(testScope, owner)
}

func (s *fakeStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

func testShopFixture() domain.Shop {
	return domain.Shop{
		ID:          testShop,
		TenantID:    testTenant,
		Name:        "Corner Store",
		Currency:    "NGN",
		TaxRate:     dec("0.075"),
		ShippingFee: dec("1500"),
		IsActive:    true,
	}
}

func testProduct(id, sku string, price string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:                id,
		TenantID:          testTenant,
		ShopID:            testShop,
		ProductID:         "product-" + id,
		SKU:               sku,
		Name:              "Product " + sku,
		Price:             dec(price),
		ProductActive:     true,
		IsActive:          true,
		IsAvailableOnline: true,
	}
}

func testService(id, sku string, price string) domain.ServiceVariant {
	return domain.ServiceVariant{
		ID:                     id,
		TenantID:               testTenant,
		ShopID:                 testShop,
		ServiceID:              "service-" + id,
		SKU:                    sku,
		Name:                   "Service " + sku,
		BasePrice:              dec(price),
		CustomerMaterialsPrice: decimal.NewNullDecimal(dec(price).Sub(dec("500"))),
		ShopMaterialsPrice:     decimal.NewNullDecimal(dec(price).Add(dec("1000"))),
		ServiceActive:          true,
		ServiceAvailableOnline: true,
		IsActive:               true,
		IsAvailableOnline:      true,
		Addons: []domain.ServiceAddon{
			{ID: "addon-starch", Name: "Starch", Price: dec("200"), MaxQuantity: 3, IsActive: true},
			{ID: "addon-fold", Name: "Folding", Price: dec("100"), MaxQuantity: 1, IsActive: true},
		},
	}
}

// --- Catalog ---

func (s *fakeStore) GetShop(ctx context.Context, scope domain.Scope) (domain.Shop, error) {
	defer s.guard(ctx)()
	shop, ok := s.shops[scope.ShopID]
	if !ok || shop.TenantID != scope.TenantID {
		return domain.Shop{}, domain.ErrShopNotFound
	}
	return shop, nil
}

func (s *fakeStore) GetSellable(ctx context.Context, scope domain.Scope, ref domain.SellableRef) (domain.Sellable, error) {
	defer s.guard(ctx)()
	sellable, ok := s.sellables[ref]
	if !ok {
		return domain.Sellable{}, domain.ErrSellableNotFound
	}
	tenant := ""
	switch sellable.Kind {
	case domain.SellableProduct:
		tenant = sellable.Product.TenantID
	case domain.SellableService:
		tenant = sellable.Service.TenantID
	}
	if tenant != scope.TenantID || sellable.ShopID() != scope.ShopID {
		return domain.Sellable{}, domain.ErrSellableNotFound
	}
	return sellable, nil
}

func (s *fakeStore) AvailableUnits(ctx context.Context, scope domain.Scope, variantID string) (int, error) {
	defer s.guard(ctx)()
	total := 0
	for _, loc := range s.locations {
		if loc.TenantID == scope.TenantID && loc.ProductVariantID == variantID {
			total += loc.Available()
		}
	}
	return total, nil
}

// --- CartRepository ---

func (s *fakeStore) findCart(scope domain.Scope, owner domain.OwnerKey) *domain.Cart {
	for _, c := range s.carts {
		if c.TenantID == scope.TenantID && c.ShopID == scope.ShopID && c.Owner == owner {
			c.Items = append([]domain.CartItem(nil), c.Items...)
			return &c
		}
	}
	return nil
}

func (s *fakeStore) FindCart(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error) {
	defer s.guard(ctx)()
	return s.findCart(scope, owner), nil
}

func (s *fakeStore) FindCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error) {
	return s.FindCart(ctx, scope, owner)
}

func (s *fakeStore) GetOrCreateCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, now time.Time) (domain.Cart, error) {
	defer s.guard(ctx)()
	if c := s.findCart(scope, owner); c != nil {
		return *c, nil
	}
	cart := domain.Cart{
		ID:        newUUID(),
		TenantID:  scope.TenantID,
		ShopID:    scope.ShopID,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.carts[cart.ID] = cart
	return cart, nil
}

func (s *fakeStore) cartForItem(scope domain.Scope, itemID string) (domain.Cart, int, error) {
	for _, c := range s.carts {
		if c.TenantID != scope.TenantID || c.ShopID != scope.ShopID {
			continue
		}
		for i, it := range c.Items {
			if it.ID == itemID {
				return c, i, nil
			}
		}
	}
	return domain.Cart{}, -1, domain.ErrCartItemNotFound
}

func (s *fakeStore) InsertCartItem(ctx context.Context, scope domain.Scope, item domain.CartItem) error {
	defer s.guard(ctx)()
	cart, ok := s.carts[item.CartID]
	if !ok || cart.TenantID != scope.TenantID {
		return domain.ErrNotFound
	}
	if _, dup := cart.FindLine(item.Sellable, item.Configuration.Key()); dup {
		return errors.New("cart line unique violation")
	}
	cart.Items = append(append([]domain.CartItem(nil), cart.Items...), item)
	s.carts[cart.ID] = cart
	return nil
}

func (s *fakeStore) UpdateCartItem(ctx context.Context, scope domain.Scope, itemID string, quantity int, unitPrice decimal.Decimal, now time.Time) error {
	defer s.guard(ctx)()
	cart, i, err := s.cartForItem(scope, itemID)
	if err != nil {
		return err
	}
	items := append([]domain.CartItem(nil), cart.Items...)
	items[i].Quantity = quantity
	items[i].UnitPrice = unitPrice
	items[i].UpdatedAt = now
	cart.Items = items
	s.carts[cart.ID] = cart
	return nil
}

func (s *fakeStore) DeleteCartItem(ctx context.Context, scope domain.Scope, itemID string) error {
	defer s.guard(ctx)()
	cart, i, err := s.cartForItem(scope, itemID)
	if err != nil {
		return err
	}
	items := append([]domain.CartItem(nil), cart.Items[:i]...)
	cart.Items = append(items, cart.Items[i+1:]...)
	s.carts[cart.ID] = cart
	return nil
}

func (s *fakeStore) MoveCartItem(ctx context.Context, scope domain.Scope, itemID, targetCartID string, now time.Time) error {
	defer s.guard(ctx)()
	src, i, err := s.cartForItem(scope, itemID)
	if err != nil {
		return err
	}
	dst, ok := s.carts[targetCartID]
	if !ok {
		return domain.ErrNotFound
	}
	item := src.Items[i]
	items := append([]domain.CartItem(nil), src.Items[:i]...)
	src.Items = append(items, src.Items[i+1:]...)
	s.carts[src.ID] = src

	item.CartID = dst.ID
	item.UpdatedAt = now
	dst.Items = append(append([]domain.CartItem(nil), dst.Items...), item)
	s.carts[dst.ID] = dst
	return nil
}

func (s *fakeStore) ClearCart(ctx context.Context, scope domain.Scope, cartID string) error {
	defer s.guard(ctx)()
	cart, ok := s.carts[cartID]
	if !ok || cart.TenantID != scope.TenantID {
		return domain.ErrNotFound
	}
	cart.Items = nil
	s.carts[cartID] = cart
	return nil
}

// --- InventoryRepository ---

func (s *fakeStore) LockLocations(ctx context.Context, scope domain.Scope, variantIDs []string) ([]domain.InventoryLocation, error) {
	defer s.guard(ctx)()
	want := make(map[string]bool, len(variantIDs))
	for _, id := range variantIDs {
		want[id] = true
	}
	var out []domain.InventoryLocation
	for _, loc := range s.locations {
		if loc.TenantID == scope.TenantID && want[loc.ProductVariantID] {
			out = append(out, loc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) Reserve(ctx context.Context, scope domain.Scope, locationID string, units int) error {
	defer s.guard(ctx)()
	loc, ok := s.locations[locationID]
	if !ok || loc.TenantID != scope.TenantID {
		return domain.ErrNotFound
	}
	if loc.ReservedQuantity+units > loc.Quantity {
		return domain.ErrInsufficientStock
	}
	loc.ReservedQuantity += units
	s.locations[locationID] = loc
	return nil
}

func (s *fakeStore) Release(ctx context.Context, scope domain.Scope, locationID string, units int) error {
	defer s.guard(ctx)()
	loc, ok := s.locations[locationID]
	if !ok || loc.TenantID != scope.TenantID {
		return domain.ErrNotFound
	}
	if loc.ReservedQuantity-units < 0 {
		return errors.New("reserved quantity would go negative")
	}
	loc.ReservedQuantity -= units
	s.locations[locationID] = loc
	return nil
}

// --- OrderRepository ---

func (s *fakeStore) FindOrderByIdempotencyKey(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, key string) (*domain.Order, error) {
	defer s.guard(ctx)()
	for _, o := range s.orders {
		if o.TenantID == scope.TenantID && o.ShopID == scope.ShopID && o.Owner == owner && o.IdempotencyKey == key {
			o = cloneOrder(o)
			return &o, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateOrder(ctx context.Context, order domain.Order) error {
	defer s.guard(ctx)()
	for _, o := range s.orders {
		if order.IdempotencyKey != "" && o.TenantID == order.TenantID && o.ShopID == order.ShopID && o.Owner == order.Owner && o.IdempotencyKey == order.IdempotencyKey {
			return domain.ErrIdempotencyConflict
		}
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != scope.TenantID || o.ShopID != scope.ShopID {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (s *fakeStore) GetOrderForUpdate(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error) {
	return s.GetOrder(ctx, scope, orderID)
}

func (s *fakeStore) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	defer s.guard(ctx)()
	for _, o := range s.orders {
		if o.OrderNumber == orderNumber {
			return cloneOrder(o), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, scope domain.Scope, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus, now time.Time) error {
	defer s.guard(ctx)()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != scope.TenantID {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.PaymentStatus = paymentStatus
	o.UpdatedAt = now
	s.orders[orderID] = o
	return nil
}

func (s *fakeStore) ListOpenReservations(ctx context.Context, scope domain.Scope, orderID string) ([]domain.InventoryReservation, error) {
	defer s.guard(ctx)()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != scope.TenantID {
		return nil, domain.ErrOrderNotFound
	}
	var out []domain.InventoryReservation
	for _, it := range o.Items {
		for _, r := range it.Reservations {
			if r.ReleasedAt == nil {
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) MarkReservationsReleased(ctx context.Context, scope domain.Scope, orderID string, now time.Time) error {
	defer s.guard(ctx)()
	o, ok := s.orders[orderID]
	if !ok || o.TenantID != scope.TenantID {
		return domain.ErrOrderNotFound
	}
	o = cloneOrder(o)
	for i := range o.Items {
		for j := range o.Items[i].Reservations {
			if o.Items[i].Reservations[j].ReleasedAt == nil {
				at := now
				o.Items[i].Reservations[j].ReleasedAt = &at
			}
		}
	}
	s.orders[orderID] = o
	return nil
}

// --- PaymentRepository ---

func (s *fakeStore) ListPayments(ctx context.Context, scope domain.Scope, orderID string) ([]domain.OrderPayment, error) {
	defer s.guard(ctx)()
	var out []domain.OrderPayment
	for _, p := range s.payments {
		if p.TenantID == scope.TenantID && p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) GetPayment(ctx context.Context, scope domain.Scope, paymentID string) (domain.OrderPayment, error) {
	defer s.guard(ctx)()
	for _, p := range s.payments {
		if p.ID == paymentID && p.TenantID == scope.TenantID && p.ShopID == scope.ShopID {
			return p, nil
		}
	}
	return domain.OrderPayment{}, domain.ErrPaymentNotFound
}

func (s *fakeStore) FindPaymentByGatewayReference(ctx context.Context, scope domain.Scope, gatewayID, gatewayReference string) (*domain.OrderPayment, error) {
	defer s.guard(ctx)()
	for _, p := range s.payments {
		if p.TenantID == scope.TenantID && p.Kind == domain.PaymentKindPayment && p.Method == gatewayID && p.GatewayReference == gatewayReference {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) InsertPayment(ctx context.Context, payment domain.OrderPayment) error {
	defer s.guard(ctx)()
	if payment.Kind == domain.PaymentKindPayment && payment.GatewayReference != "" {
		for _, p := range s.payments {
			if p.TenantID == payment.TenantID && p.Kind == domain.PaymentKindPayment && p.Method == payment.Method && p.GatewayReference == payment.GatewayReference {
				return domain.ErrDuplicateWebhookEvent
			}
		}
	}
	s.payments = append(s.payments, payment)
	return nil
}

func (s *fakeStore) CreateAttempt(ctx context.Context, attempt domain.PaymentAttempt) error {
	defer s.guard(ctx)()
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *fakeStore) FindAttemptByReference(ctx context.Context, reference string) (*domain.PaymentAttempt, error) {
	defer s.guard(ctx)()
	for _, a := range s.attempts {
		if a.Reference == reference {
			return &a, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UpdateAttemptStatus(ctx context.Context, scope domain.Scope, attemptID string, status domain.AttemptStatus, reason string) error {
	defer s.guard(ctx)()
	for i := range s.attempts {
		if s.attempts[i].ID == attemptID && s.attempts[i].TenantID == scope.TenantID {
			s.attempts[i].Status = status
			s.attempts[i].FailureReason = reason
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- HeldSaleRepository ---

func (s *fakeStore) NextSequence(ctx context.Context, scope domain.Scope, name string) (int64, error) {
	defer s.guard(ctx)()
	key := scope.TenantID + "/" + scope.ShopID + "/" + name
	s.sequences[key]++
	return s.sequences[key], nil
}

func (s *fakeStore) CreateHeldSale(ctx context.Context, sale domain.HeldSale) error {
	defer s.guard(ctx)()
	for _, h := range s.heldSales {
		if h.ShopID == sale.ShopID && h.Reference == sale.Reference {
			return errors.New("held sale reference unique violation")
		}
	}
	s.heldSales[sale.ID] = sale
	return nil
}

func (s *fakeStore) GetHeldSaleForUpdate(ctx context.Context, scope domain.Scope, id string) (domain.HeldSale, error) {
	defer s.guard(ctx)()
	h, ok := s.heldSales[id]
	if !ok || h.TenantID != scope.TenantID || h.ShopID != scope.ShopID {
		return domain.HeldSale{}, domain.ErrHeldSaleNotFound
	}
	return h, nil
}

func (s *fakeStore) ListHeldSales(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.HeldSale, error) {
	defer s.guard(ctx)()
	var out []domain.HeldSale
	for _, h := range s.heldSales {
		if h.TenantID == scope.TenantID && h.ShopID == scope.ShopID && h.Status == domain.HeldSaleHeld && h.ExpiresAt.After(now) {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Reference < out[j].Reference })
	return out, nil
}

func (s *fakeStore) UpdateHeldSaleStatus(ctx context.Context, scope domain.Scope, id string, status domain.HeldSaleStatus, at time.Time) error {
	defer s.guard(ctx)()
	h, ok := s.heldSales[id]
	if !ok || h.TenantID != scope.TenantID {
		return domain.ErrHeldSaleNotFound
	}
	h.Status = status
	if status == domain.HeldSaleRetrieved {
		h.RetrievedAt = &at
	}
	s.heldSales[id] = h
	return nil
}

// --- EventRecorder ---

func (s *fakeStore) Record(ctx context.Context, event domain.OutboxEvent) error {
	defer s.guard(ctx)()
	event.ID = int64(len(s.events) + 1)
	s.events = append(s.events, event)
	return nil
}

// fakeGateway is a programmable gateway.Gateway.
type fakeGateway struct {
	mu sync.Mutex

	id         string
	available  bool
	currencies []string

	initErr    error
	initCalls  int
	lastAmount decimal.Decimal
	lastRef    string

	verify    gateway.VerifyResult
	verifyErr error

	refund     gateway.RefundResult
	refundErr  error
	refundReqs []gateway.RefundRequest

	validSignature bool
	event          gateway.WebhookEvent
	parseErr       error
}

func newFakeGateway(id string) *fakeGateway {
	return &fakeGateway{id: id, available: true, validSignature: true, refund: gateway.RefundResult{Status: gateway.RefundProcessed, GatewayReference: "rf-1"}}
}

func (g *fakeGateway) Identifier() string            { return g.id }
func (g *fakeGateway) DisplayName() string           { return "Fake " + g.id }
func (g *fakeGateway) IsAvailable() bool             { return g.available }
func (g *fakeGateway) SupportedCurrencies() []string { return g.currencies }

func (g *fakeGateway) InitializePayment(_ context.Context, order gateway.Order, opts gateway.InitializeOptions) (gateway.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls++
	g.lastAmount = order.Amount
	g.lastRef = opts.Reference
	if g.initErr != nil {
		return gateway.InitializeResult{}, g.initErr
	}
	return gateway.InitializeResult{Reference: opts.Reference, RedirectURL: "https://pay.example/" + opts.Reference}, nil
}

func (g *fakeGateway) VerifyPayment(context.Context, string) (gateway.VerifyResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.verify, g.verifyErr
}

func (g *fakeGateway) Refund(_ context.Context, req gateway.RefundRequest) (gateway.RefundResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refundReqs = append(g.refundReqs, req)
	return g.refund, g.refundErr
}

func (g *fakeGateway) ValidateWebhook(gateway.WebhookRequest) bool {
	return g.validSignature
}

func (g *fakeGateway) ParseWebhook(gateway.WebhookRequest) (gateway.WebhookEvent, error) {
	return g.event, g.parseErr
}

func newTestRegistry(gws ...*fakeGateway) *gateway.Registry {
	reg := gateway.NewRegistry()
	for _, gw := range gws {
		gw := gw
		reg.Register(gw.id, func() (gateway.Gateway, error) { return gw, nil })
	}
	return reg
}

// seedCart writes a cart directly, bypassing CartService.
func (s *fakeStore) seedCart(t *testing.T, owner domain.OwnerKey, items ...domain.CartItem) domain.Cart {
	t.Helper()
	cart := domain.Cart{ID: newUUID(), TenantID: testTenant, ShopID: testShop, Owner: owner}
	for _, it := range items {
		it.ID = newUUID()
		it.CartID = cart.ID
		cart.Items = append(cart.Items, it)
	}
	s.carts[cart.ID] = cart
	return cart
}

// seedOrder stores a pending order with a single line worth total.
func (s *fakeStore) seedOrder(t *testing.T, number string, total string) domain.Order {
	t.Helper()
	amount := dec(total)
	order := domain.Order{
		ID:                newUUID(),
		TenantID:          testTenant,
		ShopID:            testShop,
		OrderNumber:       number,
		Owner:             domain.CustomerOwner("customer-1"),
		Status:            domain.OrderStatusPending,
		PaymentStatus:     domain.PaymentStatusPending,
		FulfillmentStatus: domain.FulfillmentUnfulfilled,
		PaymentMethod:     "fake",
		Currency:          "NGN",
		Subtotal:          amount,
		TaxAmount:         decimal.Zero,
		DiscountAmount:    decimal.Zero,
		ShippingAmount:    decimal.Zero,
		TotalAmount:       amount,
	}
	order.Items = []domain.OrderItem{{
		ID:          newUUID(),
		OrderID:     order.ID,
		Sellable:    domain.ProductRef("variant-soap"),
		SKU:         "SOAP-1",
		Quantity:    1,
		UnitPrice:   amount,
		Subtotal:    amount,
		TotalAmount: amount,
	}}
	s.orders[order.ID] = order
	return order
}
