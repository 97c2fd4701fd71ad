package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HeldSaleRepository struct {
	db
}

func NewHeldSaleRepository(pool *pgxpool.Pool) *HeldSaleRepository {
	return &HeldSaleRepository{db: db{pool: pool}}
}

func (r *HeldSaleRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, fn)
}

// NextSequence bumps a per-shop counter. The upsert holds the counter row lock
// until the surrounding transaction ends, so numbers are gap-free per shop.
func (r *HeldSaleRepository) NextSequence(ctx context.Context, scope domain.Scope, name string) (int64, error) {
	const stmt = `
INSERT INTO shop_sequences (tenant_id, shop_id, name, value)
VALUES ($1, $2, $3, 1)
ON CONFLICT (shop_id, name) DO UPDATE SET value = shop_sequences.value + 1
WHERE shop_sequences.tenant_id = EXCLUDED.tenant_id
RETURNING value`

	var n int64
	if err := r.queryRow(ctx, stmt, scope.TenantID, scope.ShopID, name).Scan(&n); err != nil {
		switch {
		case isInvalidUUID(err), errors.Is(err, pgx.ErrNoRows):
			return 0, domain.ErrShopNotFound
		case isForeignKeyViolation(err):
			return 0, domain.ErrShopNotFound
		}
		return 0, fmt.Errorf("next %s sequence: %w", name, err)
	}
	return n, nil
}

func (r *HeldSaleRepository) CreateHeldSale(ctx context.Context, sale domain.HeldSale) error {
	const stmt = `
INSERT INTO held_sales (id, tenant_id, shop_id, reference, owner_key, items, notes, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.exec(ctx, stmt, sale.ID, sale.TenantID, sale.ShopID, sale.Reference, sale.Owner.String(),
		sale.Items, sale.Notes, sale.Status, sale.ExpiresAt, sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("held sale reference %s already used: %w", sale.Reference, err)
		}
		return fmt.Errorf("create held sale: %w", err)
	}
	return nil
}

const selectHeldSale = `
SELECT id, tenant_id, shop_id, reference, owner_key, items, notes, status, expires_at, created_at, retrieved_at
FROM held_sales`

func scanHeldSale(row pgx.Row) (domain.HeldSale, error) {
	var h domain.HeldSale
	var owner string
	err := row.Scan(&h.ID, &h.TenantID, &h.ShopID, &h.Reference, &owner, &h.Items, &h.Notes, &h.Status,
		&h.ExpiresAt, &h.CreatedAt, &h.RetrievedAt)
	if err != nil {
		return domain.HeldSale{}, err
	}
	if h.Owner, err = domain.ParseOwnerKey(owner); err != nil {
		return domain.HeldSale{}, err
	}
	return h, nil
}

func (r *HeldSaleRepository) GetHeldSaleForUpdate(ctx context.Context, scope domain.Scope, id string) (domain.HeldSale, error) {
	h, err := scanHeldSale(r.queryRow(ctx, selectHeldSale+`
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3
FOR UPDATE`, id, scope.TenantID, scope.ShopID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.HeldSale{}, domain.ErrHeldSaleNotFound
		}
		return domain.HeldSale{}, fmt.Errorf("get held sale: %w", err)
	}
	return h, nil
}

func (r *HeldSaleRepository) ListHeldSales(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.HeldSale, error) {
	rows, err := r.query(ctx, selectHeldSale+`
WHERE tenant_id = $1 AND shop_id = $2 AND status = 'held' AND expires_at > $3
ORDER BY reference`, scope.TenantID, scope.ShopID, now)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list held sales: %w", err)
	}
	defer rows.Close()

	var out []domain.HeldSale
	for rows.Next() {
		h, err := scanHeldSale(rows)
		if err != nil {
			return nil, fmt.Errorf("scan held sale: %w", err)
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list held sales: %w", err)
	}
	return out, nil
}

func (r *HeldSaleRepository) UpdateHeldSaleStatus(ctx context.Context, scope domain.Scope, id string, status domain.HeldSaleStatus, at time.Time) error {
	const stmt = `
UPDATE held_sales
SET status = $4,
    retrieved_at = CASE WHEN $4 = 'retrieved' THEN $5 ELSE retrieved_at END
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3`

	tag, err := r.exec(ctx, stmt, id, scope.TenantID, scope.ShopID, string(status), at)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrHeldSaleNotFound
		}
		return fmt.Errorf("update held sale: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHeldSaleNotFound
	}
	return nil
}
