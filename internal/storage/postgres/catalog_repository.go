package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CatalogRepository struct {
	db
}

func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{db: db{pool: pool}}
}

func (r *CatalogRepository) GetShop(ctx context.Context, scope domain.Scope) (domain.Shop, error) {
	const query = `
SELECT id, tenant_id, name, currency, tax_rate, shipping_fee, allow_overpayment, is_active
FROM shops
WHERE id = $1 AND tenant_id = $2`

	var s domain.Shop
	err := r.queryRow(ctx, query, scope.ShopID, scope.TenantID).
		Scan(&s.ID, &s.TenantID, &s.Name, &s.Currency, &s.TaxRate, &s.ShippingFee, &s.AllowOverpayment, &s.IsActive)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Shop{}, domain.ErrShopNotFound
		}
		return domain.Shop{}, fmt.Errorf("get shop: %w", err)
	}
	return s, nil
}

// GetSellable loads a product or service variant with its packaging types or
// add-ons, reading the parent's flags so purchasability can be decided in memory.
func (r *CatalogRepository) GetSellable(ctx context.Context, scope domain.Scope, ref domain.SellableRef) (domain.Sellable, error) {
	switch ref.Kind {
	case domain.SellableProduct:
		v, err := r.getProductVariant(ctx, scope, ref.ID)
		if err != nil {
			return domain.Sellable{}, err
		}
		return domain.ProductSellable(v), nil
	case domain.SellableService:
		v, err := r.getServiceVariant(ctx, scope, ref.ID)
		if err != nil {
			return domain.Sellable{}, err
		}
		return domain.ServiceSellable(v), nil
	default:
		return domain.Sellable{}, fmt.Errorf("%w: unknown sellable kind %q", domain.ErrInvalidConfiguration, ref.Kind)
	}
}

func (r *CatalogRepository) getProductVariant(ctx context.Context, scope domain.Scope, id string) (domain.ProductVariant, error) {
	const query = `
SELECT v.id, v.tenant_id, v.shop_id, v.product_id, v.sku, v.name, v.price,
       p.is_active, v.is_active, v.is_available_online
FROM product_variants v
JOIN products p ON p.id = v.product_id
WHERE v.id = $1 AND v.tenant_id = $2 AND v.shop_id = $3`

	var v domain.ProductVariant
	err := r.queryRow(ctx, query, id, scope.TenantID, scope.ShopID).Scan(
		&v.ID, &v.TenantID, &v.ShopID, &v.ProductID, &v.SKU, &v.Name, &v.Price,
		&v.ProductActive, &v.IsActive, &v.IsAvailableOnline,
	)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.ProductVariant{}, domain.ErrSellableNotFound
		}
		return domain.ProductVariant{}, fmt.Errorf("get product variant: %w", err)
	}

	const packagingQuery = `
SELECT id, name, units_per_package, price, is_active
FROM product_packaging_types
WHERE product_variant_id = $1
ORDER BY units_per_package, id`

	rows, err := r.query(ctx, packagingQuery, v.ID)
	if err != nil {
		return domain.ProductVariant{}, fmt.Errorf("list packaging types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.PackagingType
		if err := rows.Scan(&p.ID, &p.Name, &p.UnitsPerPackage, &p.Price, &p.IsActive); err != nil {
			return domain.ProductVariant{}, fmt.Errorf("scan packaging type: %w", err)
		}
		v.Packaging = append(v.Packaging, p)
	}
	if err := rows.Err(); err != nil {
		return domain.ProductVariant{}, fmt.Errorf("list packaging types: %w", err)
	}
	return v, nil
}

func (r *CatalogRepository) getServiceVariant(ctx context.Context, scope domain.Scope, id string) (domain.ServiceVariant, error) {
	const query = `
SELECT v.id, v.tenant_id, v.shop_id, v.service_id, v.sku, v.name,
       v.base_price, v.customer_materials_price, v.shop_materials_price,
       s.is_active, s.is_available_online, v.is_active, v.is_available_online
FROM service_variants v
JOIN services s ON s.id = v.service_id
WHERE v.id = $1 AND v.tenant_id = $2 AND v.shop_id = $3`

	var v domain.ServiceVariant
	err := r.queryRow(ctx, query, id, scope.TenantID, scope.ShopID).Scan(
		&v.ID, &v.TenantID, &v.ShopID, &v.ServiceID, &v.SKU, &v.Name,
		&v.BasePrice, &v.CustomerMaterialsPrice, &v.ShopMaterialsPrice,
		&v.ServiceActive, &v.ServiceAvailableOnline, &v.IsActive, &v.IsAvailableOnline,
	)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.ServiceVariant{}, domain.ErrSellableNotFound
		}
		return domain.ServiceVariant{}, fmt.Errorf("get service variant: %w", err)
	}

	const addonQuery = `
SELECT id, name, price, max_quantity, is_active
FROM service_addons
WHERE service_id = $1
ORDER BY name, id`

	rows, err := r.query(ctx, addonQuery, v.ServiceID)
	if err != nil {
		return domain.ServiceVariant{}, fmt.Errorf("list service addons: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a domain.ServiceAddon
		if err := rows.Scan(&a.ID, &a.Name, &a.Price, &a.MaxQuantity, &a.IsActive); err != nil {
			return domain.ServiceVariant{}, fmt.Errorf("scan service addon: %w", err)
		}
		v.Addons = append(v.Addons, a)
	}
	if err := rows.Err(); err != nil {
		return domain.ServiceVariant{}, fmt.Errorf("list service addons: %w", err)
	}
	return v, nil
}

func (r *CatalogRepository) AvailableUnits(ctx context.Context, scope domain.Scope, variantID string) (int, error) {
	const query = `
SELECT COALESCE(SUM(quantity - reserved_quantity), 0)
FROM inventory_locations
WHERE tenant_id = $1 AND shop_id = $2 AND product_variant_id = $3`

	var total int
	if err := r.queryRow(ctx, query, scope.TenantID, scope.ShopID, variantID).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("sum available units: %w", err)
	}
	return total, nil
}
