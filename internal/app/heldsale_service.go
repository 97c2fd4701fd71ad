package app

import (
	"context"
	"errors"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"go.uber.org/zap"
)

const heldSaleSequence = "held_sale"

type HeldSaleService struct {
	sales   HeldSaleRepository
	carts   CartRepository
	catalog Catalog
	clock   clock.Clock
	ttl     time.Duration
	logger  *zap.Logger
}

const defaultHeldSaleTTL = 24 * time.Hour

func NewHeldSaleService(sales HeldSaleRepository, carts CartRepository, catalog Catalog, clk clock.Clock, opts ...HeldSaleServiceOption) *HeldSaleService {
	svc := &HeldSaleService{
		sales:   sales,
		carts:   carts,
		catalog: catalog,
		clock:   clk,
		ttl:     defaultHeldSaleTTL,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type HeldSaleServiceOption func(*HeldSaleService)

// WithHeldSaleTTL overrides how long a parked sale can be retrieved.
func WithHeldSaleTTL(d time.Duration) HeldSaleServiceOption {
	return func(s *HeldSaleService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithHeldSaleLogger(l *zap.Logger) HeldSaleServiceOption {
	return func(s *HeldSaleService) {
		if l != nil {
			s.logger = l
		}
	}
}

// Hold parks the owner's cart under the next reference of the shop and empties it.
func (s *HeldSaleService) Hold(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, notes string) (domain.HeldSale, error) {
	if err := validateCartCaller(scope, owner); err != nil {
		return domain.HeldSale{}, err
	}
	now := s.clock.Now()
	var result domain.HeldSale

	err := s.sales.WithTx(ctx, func(txCtx context.Context) error {
		cart, err := s.carts.FindCartForUpdate(txCtx, scope, owner)
		if err != nil {
			return err
		}
		if cart == nil || len(cart.Items) == 0 {
			return domain.CartInvalid("cart is empty")
		}

		n, err := s.sales.NextSequence(txCtx, scope, heldSaleSequence)
		if err != nil {
			return err
		}

		sale := domain.HeldSale{
			ID:        newUUID(),
			TenantID:  scope.TenantID,
			ShopID:    scope.ShopID,
			Reference: domain.HeldSaleReference(n),
			Owner:     owner,
			Notes:     notes,
			Status:    domain.HeldSaleHeld,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		for _, item := range cart.Items {
			sale.Items = append(sale.Items, domain.HeldSaleItem{
				Kind:            item.Sellable.Kind,
				SellableID:      item.Sellable.ID,
				PackagingTypeID: item.Configuration.PackagingTypeID,
				MaterialOption:  item.Configuration.MaterialOption,
				Addons:          item.Configuration.Addons,
				Quantity:        item.Quantity,
			})
		}

		if err := s.sales.CreateHeldSale(txCtx, sale); err != nil {
			return err
		}
		if err := s.carts.ClearCart(txCtx, scope, cart.ID); err != nil {
			return err
		}
		result = sale
		return nil
	})
	if err != nil {
		return domain.HeldSale{}, err
	}
	s.logger.Info("sale held",
		zap.String("tenant_id", scope.TenantID),
		zap.String("shop_id", scope.ShopID),
		zap.String("reference", result.Reference),
	)
	return result, nil
}

// List returns the shop's held sales that can still be retrieved.
func (s *HeldSaleService) List(ctx context.Context, scope domain.Scope) ([]domain.HeldSale, error) {
	if !scope.Valid() {
		return nil, domain.ErrInvalidID
	}
	return s.sales.ListHeldSales(ctx, scope, s.clock.Now())
}

type RetrieveResult struct {
	Sale domain.HeldSale
	Cart domain.Cart
	// Skipped lists lines that could not be restored because they are no longer
	// sold, configured the same way, or in stock.
	Skipped []domain.HeldSaleItem
}

// Retrieve restores a held sale into the owner's cart, merging with lines already
// there.
func (s *HeldSaleService) Retrieve(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, id string) (RetrieveResult, error) {
	if err := validateCartCaller(scope, owner); err != nil {
		return RetrieveResult{}, err
	}
	now := s.clock.Now()
	var result RetrieveResult

	err := s.sales.WithTx(ctx, func(txCtx context.Context) error {
		result = RetrieveResult{}
		sale, err := s.sales.GetHeldSaleForUpdate(txCtx, scope, id)
		if err != nil {
			return err
		}
		if sale.Status != domain.HeldSaleHeld {
			return domain.ErrHeldSaleClosed
		}
		if !sale.ExpiresAt.After(now) {
			return domain.ErrHeldSaleExpired
		}

		cart, err := s.carts.GetOrCreateCartForUpdate(txCtx, scope, owner, now)
		if err != nil {
			return err
		}
		lines := newLineWriter(s.carts, s.catalog, scope, &cart, now)
		for _, item := range sale.Items {
			_, err := lines.add(txCtx, item.Ref(), item.Configuration(), item.Quantity)
			if isLineUnavailable(err) || errors.Is(err, domain.ErrInsufficientStock) {
				result.Skipped = append(result.Skipped, item)
				continue
			}
			if err != nil {
				return err
			}
		}

		if err := s.sales.UpdateHeldSaleStatus(txCtx, scope, sale.ID, domain.HeldSaleRetrieved, now); err != nil {
			return err
		}
		sale.Status = domain.HeldSaleRetrieved
		sale.RetrievedAt = &now
		result.Sale = sale
		result.Cart = cart
		return nil
	})
	if err != nil {
		return RetrieveResult{}, err
	}
	if len(result.Skipped) > 0 {
		s.logger.Info("held sale retrieved with skipped lines",
			zap.String("reference", result.Sale.Reference),
			zap.Int("skipped", len(result.Skipped)),
		)
	}
	return result, nil
}

func (s *HeldSaleService) Discard(ctx context.Context, scope domain.Scope, id string) error {
	now := s.clock.Now()
	return s.sales.WithTx(ctx, func(txCtx context.Context) error {
		sale, err := s.sales.GetHeldSaleForUpdate(txCtx, scope, id)
		if err != nil {
			return err
		}
		if sale.Status != domain.HeldSaleHeld {
			return domain.ErrHeldSaleClosed
		}
		return s.sales.UpdateHeldSaleStatus(txCtx, scope, sale.ID, domain.HeldSaleDiscarded, now)
	})
}
