package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/logging"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PricingRules computes order-level adjustments on top of the line subtotal.
type PricingRules interface {
	Adjust(ctx context.Context, shop domain.Shop, lines []PricedLine) (domain.Adjustments, error)
}

type PricedLine struct {
	Kind     domain.SellableKind
	SKU      string
	Subtotal decimal.Decimal
}

// ShopPricingRules applies the shop's tax rate to the subtotal and its flat
// shipping fee when anything physical is shipped. It grants no discounts.
type ShopPricingRules struct{}

func (ShopPricingRules) Adjust(_ context.Context, shop domain.Shop, lines []PricedLine) (domain.Adjustments, error) {
	subtotal := decimal.Zero
	ships := false
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal)
		if l.Kind == domain.SellableProduct {
			ships = true
		}
	}
	adj := domain.Adjustments{
		Tax:      domain.RoundMoney(subtotal.Mul(shop.TaxRate), shop.Currency),
		Discount: decimal.Zero,
		Shipping: decimal.Zero,
	}
	if ships {
		adj.Shipping = shop.ShippingFee
	}
	return adj, nil
}

// PaymentInitiator starts a gateway payment for a committed order.
type PaymentInitiator interface {
	InitiatePayment(ctx context.Context, in InitiatePaymentInput) (InitiatePaymentResult, error)
}

type CheckoutDeps struct {
	Carts     CartRepository
	Orders    OrderRepository
	Inventory InventoryRepository
	Catalog   Catalog
	Events    EventRecorder
	Gateways  GatewayResolver
	Payments  PaymentInitiator
}

type CheckoutService struct {
	deps    CheckoutDeps
	clock   clock.Clock
	pricing PricingRules
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewCheckoutService(deps CheckoutDeps, clk clock.Clock, opts ...CheckoutServiceOption) *CheckoutService {
	svc := &CheckoutService{
		deps:    deps,
		clock:   clk,
		pricing: ShopPricingRules{},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CheckoutServiceOption func(*CheckoutService)

func WithPricingRules(r PricingRules) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if r != nil {
			s.pricing = r
		}
	}
}

func WithCheckoutLogger(l *zap.Logger) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithCheckoutMetrics(m *metrics.Metrics) CheckoutServiceOption {
	return func(s *CheckoutService) {
		s.metrics = m
	}
}

type CheckoutInput struct {
	Scope domain.Scope
	Owner domain.OwnerKey
	// CartID, when set, must be the owner's cart in this shop.
	CartID          string
	ShippingAddress domain.Address
	BillingAddress  domain.Address
	PaymentMethod   string
	CustomerEmail   string
	Notes           string
	IdempotencyKey  string
	CallbackURL     string
}

type CheckoutResult struct {
	Order   domain.Order
	Created bool
	// Payment is set when the gateway accepted the initialization request.
	Payment *InitiatePaymentResult
	// PaymentError is set when the order was saved but payment could not start.
	PaymentError error
}

type PaymentMethod struct {
	ID          string
	DisplayName string
}

// PaymentMethods lists the gateways that are configured and accept the shop's currency.
func (s *CheckoutService) PaymentMethods(ctx context.Context, scope domain.Scope) ([]PaymentMethod, error) {
	if !scope.Valid() {
		return nil, domain.ErrInvalidID
	}
	shop, err := s.deps.Catalog.GetShop(ctx, scope)
	if err != nil {
		return nil, err
	}
	gateways := s.deps.Gateways.AvailableFor(shop.Currency)
	out := make([]PaymentMethod, 0, len(gateways))
	for _, gw := range gateways {
		out = append(out, PaymentMethod{ID: gw.Identifier(), DisplayName: gw.DisplayName()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Checkout turns the owner's cart into an order. Validation, reservation, pricing
// and the order write share one serializable transaction; the gateway is called
// only after it commits.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	started := s.clock.Now()
	logger := logging.FromContext(ctx, s.logger).With(
		zap.String("tenant_id", in.Scope.TenantID),
		zap.String("shop_id", in.Scope.ShopID),
		zap.String("owner", in.Owner.String()),
	)

	result, err := s.checkout(ctx, in)
	outcome := checkoutOutcome(err)
	s.metrics.ObserveCheckout(outcome, s.clock.Now().Sub(started))
	if err != nil {
		if outcome == "error" {
			logger.Error("checkout failed", zap.Error(err))
		} else {
			logger.Info("checkout rejected", zap.String("outcome", outcome), zap.Error(err))
		}
		return CheckoutResult{}, err
	}
	if !result.Created {
		logger.Info("checkout replayed", zap.String("order_id", result.Order.ID))
		return result, nil
	}
	logger.Info("order created",
		zap.String("order_id", result.Order.ID),
		zap.String("order_number", result.Order.OrderNumber),
		zap.String("total", result.Order.TotalAmount.String()),
	)

	payment, err := s.deps.Payments.InitiatePayment(ctx, InitiatePaymentInput{
		Scope:       in.Scope,
		OrderID:     result.Order.ID,
		Gateway:     in.PaymentMethod,
		CallbackURL: in.CallbackURL,
	})
	if err != nil {
		logger.Warn("payment initiation failed, order kept",
			zap.String("order_id", result.Order.ID),
			zap.String("gateway", in.PaymentMethod),
			zap.Error(err),
		)
		result.PaymentError = err
		return result, nil
	}
	result.Payment = &payment
	return result, nil
}

func (s *CheckoutService) checkout(ctx context.Context, in CheckoutInput) (CheckoutResult, error) {
	if err := validateCartCaller(in.Scope, in.Owner); err != nil {
		return CheckoutResult{}, &domain.CheckoutError{Stage: domain.StageValidating, Err: err}
	}

	shop, err := s.deps.Catalog.GetShop(ctx, in.Scope)
	if err != nil {
		return CheckoutResult{}, &domain.CheckoutError{Stage: domain.StageValidating, Err: err}
	}
	if !shop.IsActive {
		return CheckoutResult{}, &domain.CheckoutError{Stage: domain.StageValidating, Err: domain.CartInvalid("shop is not accepting orders")}
	}
	if _, err := s.deps.Gateways.Resolve(in.PaymentMethod, shop.Currency); err != nil {
		return CheckoutResult{}, &domain.CheckoutError{Stage: domain.StageValidating, Err: err}
	}

	var (
		result CheckoutResult
		stage  domain.CheckoutStage
	)
	err = s.deps.Orders.WithSerializableTx(ctx, func(txCtx context.Context) error {
		stage = domain.StageValidating
		result = CheckoutResult{}

		if in.IdempotencyKey != "" {
			existing, err := s.deps.Orders.FindOrderByIdempotencyKey(txCtx, in.Scope, in.Owner, in.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				result = CheckoutResult{Order: *existing}
				return nil
			}
		}

		cart, lines, err := s.validate(txCtx, in)
		if err != nil {
			return err
		}

		stage = domain.StageReserving
		reservations, err := s.reserve(txCtx, in.Scope, lines)
		if err != nil {
			return err
		}

		stage = domain.StagePricing
		order, err := s.price(txCtx, shop, in, lines)
		if err != nil {
			return err
		}
		for i := range order.Items {
			order.Items[i].Reservations = reservations[i]
			for j := range order.Items[i].Reservations {
				order.Items[i].Reservations[j].OrderItemID = order.Items[i].ID
			}
		}

		stage = domain.StageCommitting
		if err := s.deps.Orders.CreateOrder(txCtx, order); err != nil {
			return err
		}
		if err := s.recordCreated(txCtx, order); err != nil {
			return err
		}
		if err := s.deps.Carts.ClearCart(txCtx, in.Scope, cart.ID); err != nil {
			return err
		}

		result = CheckoutResult{Order: order, Created: true}
		return nil
	})

	if errors.Is(err, domain.ErrIdempotencyConflict) {
		// A concurrent request with the same key committed first.
		existing, findErr := s.deps.Orders.FindOrderByIdempotencyKey(ctx, in.Scope, in.Owner, in.IdempotencyKey)
		if findErr != nil {
			return CheckoutResult{}, findErr
		}
		if existing != nil {
			return CheckoutResult{Order: *existing}, nil
		}
	}
	if err != nil {
		return CheckoutResult{}, &domain.CheckoutError{Stage: stage, Err: err}
	}
	return result, nil
}

type checkoutLine struct {
	item      domain.CartItem
	sellable  domain.Sellable
	baseUnits int
}

func (s *CheckoutService) validate(ctx context.Context, in CheckoutInput) (domain.Cart, []checkoutLine, error) {
	cart, err := s.deps.Carts.FindCartForUpdate(ctx, in.Scope, in.Owner)
	if err != nil {
		return domain.Cart{}, nil, err
	}
	if cart == nil {
		return domain.Cart{}, nil, domain.CartInvalid("cart is empty")
	}
	if in.CartID != "" && cart.ID != in.CartID {
		return domain.Cart{}, nil, domain.CartInvalid("cart does not belong to this owner")
	}
	if len(cart.Items) == 0 {
		return domain.Cart{}, nil, domain.CartInvalid("cart is empty")
	}

	lines := make([]checkoutLine, 0, len(cart.Items))
	for _, item := range cart.Items {
		sellable, err := s.deps.Catalog.GetSellable(ctx, in.Scope, item.Sellable)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Cart{}, nil, domain.CartInvalid(fmt.Sprintf("item %s is no longer sold", item.Sellable))
		}
		if err != nil {
			return domain.Cart{}, nil, err
		}
		if sellable.ShopID() != in.Scope.ShopID {
			return domain.Cart{}, nil, domain.CartInvalid(fmt.Sprintf("item %s belongs to another shop", sellable.SKU()))
		}
		if !sellable.IsPurchasable() {
			return domain.Cart{}, nil, domain.CartInvalid(fmt.Sprintf("%s is unavailable", sellable.SKU()))
		}
		units, err := sellable.BaseUnits(item.Quantity, item.Configuration)
		if err != nil {
			return domain.Cart{}, nil, domain.CartInvalid(fmt.Sprintf("%s: %v", sellable.SKU(), err))
		}
		lines = append(lines, checkoutLine{item: item, sellable: sellable, baseUnits: units})
	}
	return *cart, lines, nil
}

// reserve locks every location of every variant in the cart, in id order, then
// draws each product line from the locations in that order. The result is
// indexed like lines.
func (s *CheckoutService) reserve(ctx context.Context, scope domain.Scope, lines []checkoutLine) ([][]domain.InventoryReservation, error) {
	out := make([][]domain.InventoryReservation, len(lines))

	demand := make(map[string]int)
	sku := make(map[string]string)
	for _, l := range lines {
		if l.sellable.Kind != domain.SellableProduct {
			continue
		}
		demand[l.sellable.Product.ID] += l.baseUnits
		sku[l.sellable.Product.ID] = l.sellable.SKU()
	}
	if len(demand) == 0 {
		return out, nil
	}

	variantIDs := make([]string, 0, len(demand))
	for id := range demand {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	locations, err := s.deps.Inventory.LockLocations(ctx, scope, variantIDs)
	if err != nil {
		return nil, err
	}
	byVariant := make(map[string][]*domain.InventoryLocation)
	for i := range locations {
		loc := &locations[i]
		byVariant[loc.ProductVariantID] = append(byVariant[loc.ProductVariantID], loc)
	}

	for _, id := range variantIDs {
		available := 0
		for _, loc := range byVariant[id] {
			available += loc.Available()
		}
		if demand[id] > available {
			return nil, &domain.InsufficientStockError{SKU: sku[id], Requested: demand[id], Available: max(available, 0)}
		}
	}

	for i, l := range lines {
		if l.sellable.Kind != domain.SellableProduct {
			continue
		}
		need := l.baseUnits
		for _, loc := range byVariant[l.sellable.Product.ID] {
			if need == 0 {
				break
			}
			take := min(need, loc.Available())
			if take <= 0 {
				continue
			}
			if err := s.deps.Inventory.Reserve(ctx, scope, loc.ID, take); err != nil {
				return nil, err
			}
			loc.ReservedQuantity += take
			need -= take
			out[i] = append(out[i], domain.InventoryReservation{
				ID:                  newUUID(),
				TenantID:            scope.TenantID,
				InventoryLocationID: loc.ID,
				Quantity:            take,
			})
		}
	}
	return out, nil
}

// price recomputes every line from the current tariff and spreads the order-level
// adjustments over the lines so that item totals add up to the order total.
func (s *CheckoutService) price(ctx context.Context, shop domain.Shop, in CheckoutInput, lines []checkoutLine) (domain.Order, error) {
	now := s.clock.Now()
	order := domain.Order{
		ID:                newUUID(),
		TenantID:          in.Scope.TenantID,
		ShopID:            in.Scope.ShopID,
		OrderNumber:       newOrderNumber(),
		Owner:             in.Owner,
		IdempotencyKey:    in.IdempotencyKey,
		Status:            domain.OrderStatusPending,
		PaymentStatus:     domain.PaymentStatusPending,
		FulfillmentStatus: domain.FulfillmentUnfulfilled,
		PaymentMethod:     in.PaymentMethod,
		Currency:          shop.Currency,
		ShippingAddress:   in.ShippingAddress,
		BillingAddress:    in.BillingAddress,
		CustomerEmail:     in.CustomerEmail,
		Notes:             in.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if order.BillingAddress == (domain.Address{}) {
		order.BillingAddress = in.ShippingAddress
	}

	priced := make([]PricedLine, len(lines))
	subtotals := make([]decimal.Decimal, len(lines))
	shippable := make([]decimal.Decimal, len(lines))
	subtotal := decimal.Zero

	for i, l := range lines {
		unit, err := l.sellable.ResolvePrice(l.item.Configuration)
		if err != nil {
			return domain.Order{}, domain.CartInvalid(fmt.Sprintf("%s: %v", l.sellable.SKU(), err))
		}
		meta, err := l.sellable.Describe(l.item.Quantity, l.item.Configuration)
		if err != nil {
			return domain.Order{}, domain.CartInvalid(fmt.Sprintf("%s: %v", l.sellable.SKU(), err))
		}
		lineSubtotal := domain.RoundMoney(unit.Mul(decimal.NewFromInt(int64(l.item.Quantity))), shop.Currency)

		subtotals[i] = lineSubtotal
		shippable[i] = decimal.Zero
		if l.sellable.Kind == domain.SellableProduct {
			shippable[i] = lineSubtotal
		}
		priced[i] = PricedLine{Kind: l.sellable.Kind, SKU: l.sellable.SKU(), Subtotal: lineSubtotal}
		subtotal = subtotal.Add(lineSubtotal)

		order.Items = append(order.Items, domain.OrderItem{
			ID:              newUUID(),
			OrderID:         order.ID,
			Sellable:        l.item.Sellable,
			SKU:             l.sellable.SKU(),
			Name:            l.sellable.Name(),
			PackagingTypeID: l.item.Configuration.PackagingTypeID,
			Quantity:        l.item.Quantity,
			UnitPrice:       unit,
			Subtotal:        lineSubtotal,
			Metadata:        meta,
		})
	}

	adj, err := s.pricing.Adjust(ctx, shop, priced)
	if err != nil {
		return domain.Order{}, err
	}
	adj.Tax = domain.RoundMoney(adj.Tax, shop.Currency)
	adj.Shipping = domain.RoundMoney(adj.Shipping, shop.Currency)
	adj.Discount = decimal.Min(domain.RoundMoney(adj.Discount, shop.Currency), subtotal)
	if adj.Tax.IsNegative() || adj.Shipping.IsNegative() || adj.Discount.IsNegative() {
		return domain.Order{}, fmt.Errorf("%w: negative pricing adjustment", domain.ErrInvalidAmount)
	}

	taxes := domain.Apportion(adj.Tax, subtotals, shop.Currency)
	discounts := domain.Apportion(adj.Discount, subtotals, shop.Currency)
	shipping := domain.Apportion(adj.Shipping, shippable, shop.Currency)

	order.Subtotal = subtotal
	order.TaxAmount = adj.Tax
	order.DiscountAmount = adj.Discount
	order.ShippingAmount = adj.Shipping
	order.TotalAmount = decimal.Zero
	for i := range order.Items {
		item := &order.Items[i]
		item.TaxAmount = taxes[i]
		item.DiscountAmount = discounts[i]
		item.ShippingAmount = shipping[i]
		item.TotalAmount = item.Subtotal.Add(item.TaxAmount).Add(item.ShippingAmount).Sub(item.DiscountAmount)
		order.TotalAmount = order.TotalAmount.Add(item.TotalAmount)
	}
	return order, nil
}

type orderCreatedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	ShopID      string `json:"shop_id"`
	Owner       string `json:"owner"`
	Currency    string `json:"currency"`
	Total       string `json:"total"`
	Items       int    `json:"items"`
}

func (s *CheckoutService) recordCreated(ctx context.Context, order domain.Order) error {
	return recordEvent(ctx, s.deps.Events, order, domain.EventOrderCreated, s.clock.Now(), orderCreatedPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		ShopID:      order.ShopID,
		Owner:       order.Owner.String(),
		Currency:    order.Currency,
		Total:       order.TotalAmount.String(),
		Items:       len(order.Items),
	})
}

func recordEvent(ctx context.Context, events EventRecorder, order domain.Order, eventType string, now time.Time, payload any) error {
	if events == nil {
		return nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return events.Record(ctx, domain.OutboxEvent{
		EventID:     newUUID(),
		TenantID:    order.TenantID,
		EventType:   eventType,
		AggregateID: order.ID,
		Payload:     body,
		CreatedAt:   now,
	})
}

func checkoutOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, domain.ErrCartInvalid), errors.Is(err, domain.ErrInvalidOwner):
		return "cart_invalid"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrUnknownGateway),
		errors.Is(err, domain.ErrGatewayUnavailable),
		errors.Is(err, domain.ErrCurrencyNotSupported):
		return "gateway_unavailable"
	default:
		return "error"
	}
}
