package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type CartRepository struct {
	db
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{db: db{pool: pool}}
}

func (r *CartRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, fn)
}

const selectCart = `
SELECT id, tenant_id, shop_id, owner_key, created_at, updated_at
FROM carts
WHERE tenant_id = $1 AND shop_id = $2 AND owner_key = $3`

func (r *CartRepository) FindCart(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error) {
	return r.findCart(ctx, selectCart, scope, owner)
}

func (r *CartRepository) FindCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error) {
	return r.findCart(ctx, selectCart+"\nFOR UPDATE", scope, owner)
}

// GetOrCreateCartForUpdate returns the owner's cart row-locked, creating it first
// when the owner has none. Concurrent creators converge on one row.
func (r *CartRepository) GetOrCreateCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, now time.Time) (domain.Cart, error) {
	const stmt = `
INSERT INTO carts (id, tenant_id, shop_id, owner_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)
ON CONFLICT (tenant_id, shop_id, owner_key) DO NOTHING`

	if _, err := r.exec(ctx, stmt, newID(), scope.TenantID, scope.ShopID, owner.String(), now); err != nil {
		if isInvalidUUID(err) {
			return domain.Cart{}, domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.Cart{}, domain.ErrShopNotFound
		}
		return domain.Cart{}, fmt.Errorf("create cart: %w", err)
	}
	cart, err := r.FindCartForUpdate(ctx, scope, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	if cart == nil {
		return domain.Cart{}, fmt.Errorf("create cart: row for %s not visible", owner)
	}
	return *cart, nil
}

func (r *CartRepository) findCart(ctx context.Context, query string, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error) {
	var c domain.Cart
	var ownerKey string
	err := r.queryRow(ctx, query, scope.TenantID, scope.ShopID, owner.String()).
		Scan(&c.ID, &c.TenantID, &c.ShopID, &ownerKey, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find cart: %w", err)
	}
	if c.Owner, err = domain.ParseOwnerKey(ownerKey); err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}
	if c.Items, err = r.listItems(ctx, c.ID); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CartRepository) listItems(ctx context.Context, cartID string) ([]domain.CartItem, error) {
	const query = `
SELECT id, cart_id,
       COALESCE(product_variant_id::text, ''), COALESCE(service_variant_id::text, ''),
       COALESCE(packaging_type_id::text, ''), COALESCE(material_option, ''),
       COALESCE(addons, '[]'::jsonb), quantity, unit_price, created_at, updated_at
FROM cart_items
WHERE cart_id = $1
ORDER BY created_at, id`

	rows, err := r.query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var it domain.CartItem
		var productID, serviceID, material string
		err := rows.Scan(&it.ID, &it.CartID, &productID, &serviceID,
			&it.Configuration.PackagingTypeID, &material, &it.Configuration.Addons,
			&it.Quantity, &it.UnitPrice, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		it.Sellable = sellableRef(productID, serviceID)
		it.Configuration.MaterialOption = domain.MaterialOption(material)
		if len(it.Configuration.Addons) == 0 {
			it.Configuration.Addons = nil
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	return items, nil
}

// InsertCartItem adds a line to a cart the caller has already resolved within scope.
func (r *CartRepository) InsertCartItem(ctx context.Context, scope domain.Scope, item domain.CartItem) error {
	const stmt = `
INSERT INTO cart_items (
	id, tenant_id, cart_id, product_variant_id, service_variant_id,
	packaging_type_id, material_option, addons, config_key, quantity, unit_price,
	created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	productID, serviceID := sellableColumns(item.Sellable)
	_, err := r.exec(ctx, stmt,
		item.ID,
		scope.TenantID,
		item.CartID,
		productID,
		serviceID,
		nullable(item.Configuration.PackagingTypeID),
		nullable(string(item.Configuration.MaterialOption)),
		addonsParam(item.Configuration.Addons),
		item.Configuration.Key(),
		item.Quantity,
		item.UnitPrice,
		item.CreatedAt,
		item.UpdatedAt,
	)
	if err != nil {
		switch {
		case isInvalidUUID(err):
			return domain.ErrInvalidID
		case isForeignKeyViolation(err):
			return domain.ErrSellableNotFound
		case isCheckViolation(err):
			return domain.ErrInvalidQuantity
		}
		return fmt.Errorf("insert cart item: %w", err)
	}
	return nil
}

const scopedCartItem = `cart_id IN (SELECT id FROM carts WHERE tenant_id = $2 AND shop_id = $3)`

func (r *CartRepository) UpdateCartItem(ctx context.Context, scope domain.Scope, itemID string, quantity int, unitPrice decimal.Decimal, now time.Time) error {
	stmt := `
UPDATE cart_items SET quantity = $4, unit_price = $5, updated_at = $6
WHERE id = $1 AND ` + scopedCartItem

	tag, err := r.exec(ctx, stmt, itemID, scope.TenantID, scope.ShopID, quantity, unitPrice, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrCartItemNotFound
		}
		if isCheckViolation(err) {
			return domain.ErrInvalidQuantity
		}
		return fmt.Errorf("update cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) DeleteCartItem(ctx context.Context, scope domain.Scope, itemID string) error {
	stmt := `DELETE FROM cart_items WHERE id = $1 AND ` + scopedCartItem

	tag, err := r.exec(ctx, stmt, itemID, scope.TenantID, scope.ShopID)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrCartItemNotFound
		}
		return fmt.Errorf("delete cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

// MoveCartItem re-parents a line; both carts must belong to the scope.
func (r *CartRepository) MoveCartItem(ctx context.Context, scope domain.Scope, itemID, targetCartID string, now time.Time) error {
	stmt := `
UPDATE cart_items SET cart_id = $4, updated_at = $5
WHERE id = $1 AND ` + scopedCartItem + `
  AND EXISTS (SELECT 1 FROM carts WHERE id = $4 AND tenant_id = $2 AND shop_id = $3)`

	tag, err := r.exec(ctx, stmt, itemID, scope.TenantID, scope.ShopID, targetCartID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrCartItemNotFound
		}
		return fmt.Errorf("move cart item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r *CartRepository) ClearCart(ctx context.Context, scope domain.Scope, cartID string) error {
	const stmt = `
DELETE FROM cart_items
WHERE cart_id = (SELECT id FROM carts WHERE id = $1 AND tenant_id = $2 AND shop_id = $3)`

	if _, err := r.exec(ctx, stmt, cartID, scope.TenantID, scope.ShopID); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}
