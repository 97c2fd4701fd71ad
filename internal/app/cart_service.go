package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CartService struct {
	carts   CartRepository
	catalog Catalog
	clock   clock.Clock
	logger  *zap.Logger
}

func NewCartService(carts CartRepository, catalog Catalog, clk clock.Clock, opts ...CartServiceOption) *CartService {
	svc := &CartService{
		carts:   carts,
		catalog: catalog,
		clock:   clk,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CartServiceOption func(*CartService)

func WithCartLogger(l *zap.Logger) CartServiceOption {
	return func(s *CartService) {
		if l != nil {
			s.logger = l
		}
	}
}

type AddItemInput struct {
	Scope         domain.Scope
	Owner         domain.OwnerKey
	Sellable      domain.SellableRef
	Quantity      int
	Configuration domain.Configuration
}

func validateCartCaller(scope domain.Scope, owner domain.OwnerKey) error {
	if !scope.Valid() {
		return domain.ErrInvalidID
	}
	return owner.Validate()
}

// AddItem merges into the line with the same sellable and configuration, or
// inserts a new one. The stock check reads on-hand stock without locking or
// reserving it; checkout is the authoritative check.
func (s *CartService) AddItem(ctx context.Context, in AddItemInput) (domain.CartItem, error) {
	if !domain.ValidLineQuantity(in.Quantity) {
		return domain.CartItem{}, domain.ErrInvalidQuantity
	}
	if err := validateCartCaller(in.Scope, in.Owner); err != nil {
		return domain.CartItem{}, err
	}
	if err := in.Sellable.Validate(); err != nil {
		return domain.CartItem{}, err
	}

	now := s.clock.Now()
	var result domain.CartItem

	err := s.carts.WithTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.GetOrCreateCartForUpdate(txCtx, in.Scope, in.Owner, now)
		if err != nil {
			return err
		}
		lines := newLineWriter(s.carts, s.catalog, in.Scope, &cart, now)
		result, err = lines.add(txCtx, in.Sellable, in.Configuration, in.Quantity)
		return err
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return result, nil
}

type UpdateQuantityInput struct {
	Scope    domain.Scope
	Owner    domain.OwnerKey
	ItemID   string
	Quantity int
}

// UpdateQuantity sets the line quantity; zero removes the line.
func (s *CartService) UpdateQuantity(ctx context.Context, in UpdateQuantityInput) error {
	if in.Quantity < 0 || in.Quantity > domain.MaxLineQuantity {
		return domain.ErrInvalidQuantity
	}
	if err := validateCartCaller(in.Scope, in.Owner); err != nil {
		return err
	}
	if in.Quantity == 0 {
		return s.RemoveItem(ctx, in.Scope, in.Owner, in.ItemID)
	}

	now := s.clock.Now()
	return s.carts.WithTx(ctx, func(txCtx context.Context) error {
		cart, err := s.ownedCart(txCtx, in.Scope, in.Owner)
		if err != nil {
			return err
		}
		item, ok := cart.Item(in.ItemID)
		if !ok {
			return domain.ErrCartItemNotFound
		}
		sellable, err := s.catalog.GetSellable(txCtx, in.Scope, item.Sellable)
		if err != nil {
			return err
		}
		price, err := sellable.ResolvePrice(item.Configuration)
		if err != nil {
			return err
		}
		if err := checkStock(txCtx, s.catalog, in.Scope, sellable, item.Configuration, in.Quantity); err != nil {
			return err
		}
		return s.carts.UpdateCartItem(txCtx, in.Scope, item.ID, in.Quantity, price, now)
	})
}

func (s *CartService) RemoveItem(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, itemID string) error {
	if err := validateCartCaller(scope, owner); err != nil {
		return err
	}
	return s.carts.WithTx(ctx, func(txCtx context.Context) error {
		cart, err := s.ownedCart(txCtx, scope, owner)
		if err != nil {
			return err
		}
		if _, ok := cart.Item(itemID); !ok {
			return domain.ErrCartItemNotFound
		}
		return s.carts.DeleteCartItem(txCtx, scope, itemID)
	})
}

// Clear empties the owner's cart. A missing cart is already empty.
func (s *CartService) Clear(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) error {
	if err := validateCartCaller(scope, owner); err != nil {
		return err
	}
	return s.carts.WithTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.FindCartForUpdate(txCtx, scope, owner)
		if err != nil || cart == nil {
			return err
		}
		return s.carts.ClearCart(txCtx, scope, cart.ID)
	})
}

// ownedCart locks the owner's cart; items of a cart the caller does not own are
// reported as not found.
func (s *CartService) ownedCart(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (domain.Cart, error) {
	cart, err := s.carts.FindCartForUpdate(ctx, scope, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart == nil {
		return domain.Cart{}, domain.ErrCartItemNotFound
	}
	return *cart, nil
}

// Summarize prices every line at the current tariff. Lines that can no longer be
// bought stay visible but do not count towards the totals.
func (s *CartService) Summarize(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (domain.CartSummary, error) {
	if err := validateCartCaller(scope, owner); err != nil {
		return domain.CartSummary{}, err
	}
	shop, err := s.catalog.GetShop(ctx, scope)
	if err != nil {
		return domain.CartSummary{}, err
	}
	summary := domain.CartSummary{Currency: shop.Currency, Subtotal: decimal.Zero}

	cart, err := s.carts.FindCart(ctx, scope, owner)
	if err != nil {
		return domain.CartSummary{}, err
	}
	if cart == nil {
		return summary, nil
	}
	summary.CartID = cart.ID

	for _, item := range cart.Items {
		line := domain.CartLine{Item: item, UnitPrice: item.UnitPrice, LineTotal: decimal.Zero}

		sellable, err := s.catalog.GetSellable(ctx, scope, item.Sellable)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			summary.Lines = append(summary.Lines, line)
			continue
		case err != nil:
			return domain.CartSummary{}, err
		}
		line.Name = sellable.Name()
		line.SKU = sellable.SKU()

		price, err := sellable.ResolvePrice(item.Configuration)
		if err != nil {
			if isLineUnavailable(err) {
				summary.Lines = append(summary.Lines, line)
				continue
			}
			return domain.CartSummary{}, err
		}
		line.UnitPrice = price
		line.LineTotal = price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		line.Available = true

		summary.Lines = append(summary.Lines, line)
		summary.ItemCount += item.Quantity
		summary.Subtotal = summary.Subtotal.Add(line.LineTotal)
	}
	return summary, nil
}

func isLineUnavailable(err error) bool {
	return errors.Is(err, domain.ErrUnavailable) ||
		errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrInvalidConfiguration)
}

// MergeInto moves every line of the guest cart onto the target owner's cart,
// summing quantities of matching lines and repricing at current prices. The
// guest cart is left empty.
func (s *CartService) MergeInto(ctx context.Context, scope domain.Scope, guest, target domain.OwnerKey) (domain.Cart, error) {
	if err := validateCartCaller(scope, guest); err != nil {
		return domain.Cart{}, err
	}
	if err := target.Validate(); err != nil {
		return domain.Cart{}, err
	}
	if guest == target {
		return domain.Cart{}, domain.ErrInvalidOwner
	}

	now := s.clock.Now()
	var result domain.Cart

	err := s.carts.WithTx(ctx, func(txCtx context.Context) error {
		// Lock both carts in owner-key order so concurrent merges cannot deadlock.
		owners := []domain.OwnerKey{guest, target}
		sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })

		locked := make(map[domain.OwnerKey]*domain.Cart, 2)
		for _, owner := range owners {
			if owner == target {
				cart, err := s.carts.GetOrCreateCartForUpdate(txCtx, scope, owner, now)
				if err != nil {
					return err
				}
				locked[owner] = &cart
				continue
			}
			cart, err := s.carts.FindCartForUpdate(txCtx, scope, owner)
			if err != nil {
				return err
			}
			locked[owner] = cart
		}

		dst := locked[target]
		src := locked[guest]
		if src == nil {
			result = *dst
			return nil
		}

		for _, item := range src.Items {
			price, err := s.currentPrice(txCtx, scope, item)
			if err != nil {
				return err
			}
			if existing, ok := dst.FindLine(item.Sellable, item.Configuration.Key()); ok {
				qty := existing.Quantity + item.Quantity
				if qty > domain.MaxLineQuantity {
					return domain.ErrInvalidQuantity
				}
				if err := s.carts.UpdateCartItem(txCtx, scope, existing.ID, qty, price, now); err != nil {
					return err
				}
				if err := s.carts.DeleteCartItem(txCtx, scope, item.ID); err != nil {
					return err
				}
				replaceLine(dst, existing.ID, qty, price, now)
				continue
			}
			if err := s.carts.MoveCartItem(txCtx, scope, item.ID, dst.ID, now); err != nil {
				return err
			}
			if !price.Equal(item.UnitPrice) {
				if err := s.carts.UpdateCartItem(txCtx, scope, item.ID, item.Quantity, price, now); err != nil {
					return err
				}
			}
			item.CartID = dst.ID
			item.UnitPrice = price
			item.UpdatedAt = now
			dst.Items = append(dst.Items, item)
		}
		result = *dst
		return nil
	})
	if err != nil {
		return domain.Cart{}, err
	}
	s.logger.Info("cart merged",
		zap.String("tenant_id", scope.TenantID),
		zap.String("shop_id", scope.ShopID),
		zap.String("cart_id", result.ID),
		zap.Int("lines", len(result.Items)),
	)
	return result, nil
}

// currentPrice resolves the line's live price. Lines that can no longer be
// sold keep their snapshot; Summarize flags them.
func (s *CartService) currentPrice(ctx context.Context, scope domain.Scope, item domain.CartItem) (decimal.Decimal, error) {
	sellable, err := s.catalog.GetSellable(ctx, scope, item.Sellable)
	if err != nil {
		if isLineUnavailable(err) {
			return item.UnitPrice, nil
		}
		return decimal.Zero, err
	}
	price, err := sellable.ResolvePrice(item.Configuration)
	if err != nil {
		if isLineUnavailable(err) {
			return item.UnitPrice, nil
		}
		return decimal.Zero, err
	}
	return price, nil
}

func replaceLine(cart *domain.Cart, itemID string, qty int, price decimal.Decimal, now time.Time) {
	for i := range cart.Items {
		if cart.Items[i].ID == itemID {
			cart.Items[i].Quantity = qty
			cart.Items[i].UnitPrice = price
			cart.Items[i].UpdatedAt = now
			return
		}
	}
}

// lineWriter adds lines to a cart that is already locked in the caller's
// transaction. Cart additions and held sale retrieval share it.
type lineWriter struct {
	carts   CartRepository
	catalog Catalog
	scope   domain.Scope
	cart    *domain.Cart
	now     time.Time
}

func newLineWriter(carts CartRepository, catalog Catalog, scope domain.Scope, cart *domain.Cart, now time.Time) *lineWriter {
	return &lineWriter{carts: carts, catalog: catalog, scope: scope, cart: cart, now: now}
}

func (w *lineWriter) add(ctx context.Context, ref domain.SellableRef, cfg domain.Configuration, qty int) (domain.CartItem, error) {
	sellable, err := w.catalog.GetSellable(ctx, w.scope, ref)
	if err != nil {
		return domain.CartItem{}, err
	}
	if sellable.ShopID() != w.cart.ShopID {
		return domain.CartItem{}, domain.ErrSellableNotFound
	}
	if !sellable.IsPurchasable() {
		return domain.CartItem{}, domain.ErrUnavailable
	}

	cfg = cfg.Normalized(ref.Kind)
	price, err := sellable.ResolvePrice(cfg)
	if err != nil {
		return domain.CartItem{}, err
	}

	if existing, ok := w.cart.FindLine(ref, cfg.Key()); ok {
		qty += existing.Quantity
		if qty > domain.MaxLineQuantity {
			return domain.CartItem{}, domain.ErrInvalidQuantity
		}
		if err := checkStock(ctx, w.catalog, w.scope, sellable, cfg, qty); err != nil {
			return domain.CartItem{}, err
		}
		if err := w.carts.UpdateCartItem(ctx, w.scope, existing.ID, qty, price, w.now); err != nil {
			return domain.CartItem{}, err
		}
		replaceLine(w.cart, existing.ID, qty, price, w.now)
		existing.Quantity = qty
		existing.UnitPrice = price
		existing.UpdatedAt = w.now
		return existing, nil
	}

	if err := checkStock(ctx, w.catalog, w.scope, sellable, cfg, qty); err != nil {
		return domain.CartItem{}, err
	}
	item := domain.CartItem{
		ID:            newUUID(),
		CartID:        w.cart.ID,
		Sellable:      ref,
		Configuration: cfg,
		Quantity:      qty,
		UnitPrice:     price,
		CreatedAt:     w.now,
		UpdatedAt:     w.now,
	}
	if err := w.carts.InsertCartItem(ctx, w.scope, item); err != nil {
		return domain.CartItem{}, err
	}
	w.cart.Items = append(w.cart.Items, item)
	return item, nil
}

// checkStock compares the requested line quantity against what is on hand right
// now. It takes no lock.
func checkStock(ctx context.Context, catalog Catalog, scope domain.Scope, sellable domain.Sellable, cfg domain.Configuration, qty int) error {
	if sellable.Kind != domain.SellableProduct {
		return nil
	}
	units, err := catalog.AvailableUnits(ctx, scope, sellable.Product.ID)
	if err != nil {
		return err
	}
	available, err := sellable.AvailableQuantity(units, cfg)
	if err != nil {
		return err
	}
	if !available.Covers(qty) {
		return &domain.InsufficientStockError{SKU: sellable.SKU(), Requested: qty, Available: available.Units}
	}
	return nil
}
