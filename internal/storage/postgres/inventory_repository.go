package postgres

import (
	"context"
	"fmt"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InventoryRepository owns reserved_quantity. Every change is a conditional
// update, so the CHECK constraint is a backstop rather than the gate.
type InventoryRepository struct {
	db
}

func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{db: db{pool: pool}}
}

// LockLocations takes row locks on every location of the variants in one
// statement, ordered by id so concurrent checkouts lock in the same order.
func (r *InventoryRepository) LockLocations(ctx context.Context, scope domain.Scope, variantIDs []string) ([]domain.InventoryLocation, error) {
	if len(variantIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT id, tenant_id, shop_id, product_variant_id, location_id, quantity, reserved_quantity
FROM inventory_locations
WHERE tenant_id = $1 AND shop_id = $2 AND product_variant_id = ANY($3::uuid[])
ORDER BY id
FOR UPDATE`

	rows, err := r.query(ctx, query, scope.TenantID, scope.ShopID, variantIDs)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("lock inventory locations: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryLocation
	for rows.Next() {
		var l domain.InventoryLocation
		if err := rows.Scan(&l.ID, &l.TenantID, &l.ShopID, &l.ProductVariantID, &l.LocationID, &l.Quantity, &l.ReservedQuantity); err != nil {
			return nil, fmt.Errorf("scan inventory location: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lock inventory locations: %w", err)
	}
	return out, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, scope domain.Scope, locationID string, units int) error {
	const stmt = `
UPDATE inventory_locations
SET reserved_quantity = reserved_quantity + $3
WHERE id = $1 AND tenant_id = $2 AND reserved_quantity + $3 <= quantity`

	return r.adjust(ctx, "reserve", stmt, scope, locationID, units)
}

func (r *InventoryRepository) Release(ctx context.Context, scope domain.Scope, locationID string, units int) error {
	const stmt = `
UPDATE inventory_locations
SET reserved_quantity = reserved_quantity - $3
WHERE id = $1 AND tenant_id = $2 AND reserved_quantity >= $3`

	return r.adjust(ctx, "release", stmt, scope, locationID, units)
}

func (r *InventoryRepository) adjust(ctx context.Context, op, stmt string, scope domain.Scope, locationID string, units int) error {
	if units <= 0 {
		return domain.ErrInvalidQuantity
	}
	tag, err := r.exec(ctx, stmt, locationID, scope.TenantID, units)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isCheckViolation(err) {
			return domain.ErrInsufficientStock
		}
		return fmt.Errorf("%s inventory: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		if op == "reserve" {
			return domain.ErrInsufficientStock
		}
		return fmt.Errorf("release inventory: location %s holds fewer than %d reserved units", locationID, units)
	}
	return nil
}
