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

type OrderRepository struct {
	db
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db{pool: pool}}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, fn)
}

func (r *OrderRepository) WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withSerializableTx(ctx, r.pool, fn)
}

const selectOrder = `
SELECT id, tenant_id, shop_id, order_number, owner_key, COALESCE(idempotency_key, ''),
       status, payment_status, fulfillment_status, payment_method, currency,
       subtotal, tax_amount, discount_amount, shipping_amount, total_amount,
       shipping_address, billing_address, customer_email, notes, created_at, updated_at
FROM orders`

func (r *OrderRepository) FindOrderByIdempotencyKey(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, key string) (*domain.Order, error) {
	order, err := r.getOrder(ctx, selectOrder+`
WHERE tenant_id = $1 AND shop_id = $2 AND owner_key = $3 AND idempotency_key = $4`, scope.TenantID, scope.ShopID, owner.String(), key)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepository) GetOrder(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, selectOrder+`
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3`, orderID, scope.TenantID, scope.ShopID)
}

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error) {
	return r.getOrder(ctx, selectOrder+`
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3
FOR UPDATE`, orderID, scope.TenantID, scope.ShopID)
}

func (r *OrderRepository) GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.getOrder(ctx, selectOrder+`
WHERE order_number = $1`, orderNumber)
}

func (r *OrderRepository) getOrder(ctx context.Context, query string, args ...any) (domain.Order, error) {
	var o domain.Order
	var owner string
	err := r.queryRow(ctx, query, args...).Scan(
		&o.ID, &o.TenantID, &o.ShopID, &o.OrderNumber, &owner, &o.IdempotencyKey,
		&o.Status, &o.PaymentStatus, &o.FulfillmentStatus, &o.PaymentMethod, &o.Currency,
		&o.Subtotal, &o.TaxAmount, &o.DiscountAmount, &o.ShippingAmount, &o.TotalAmount,
		&o.ShippingAddress, &o.BillingAddress, &o.CustomerEmail, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.Owner, err = domain.ParseOwnerKey(owner); err != nil {
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	if o.Items, err = r.listItems(ctx, o.ID); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func (r *OrderRepository) listItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const query = `
SELECT id, order_id,
       COALESCE(product_variant_id::text, ''), COALESCE(service_variant_id::text, ''),
       sku, name, COALESCE(packaging_type_id::text, ''), quantity, unit_price,
       subtotal, tax_amount, discount_amount, shipping_amount, total_amount, metadata
FROM order_items
WHERE order_id = $1
ORDER BY position`

	rows, err := r.query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	index := make(map[string]int)
	for rows.Next() {
		var it domain.OrderItem
		var productID, serviceID string
		err := rows.Scan(&it.ID, &it.OrderID, &productID, &serviceID,
			&it.SKU, &it.Name, &it.PackagingTypeID, &it.Quantity, &it.UnitPrice,
			&it.Subtotal, &it.TaxAmount, &it.DiscountAmount, &it.ShippingAmount, &it.TotalAmount, &it.Metadata)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.Sellable = sellableRef(productID, serviceID)
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	rows.Close()

	reservations, err := r.reservations(ctx, `
WHERE i.order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	for _, res := range reservations {
		if i, ok := index[res.OrderItemID]; ok {
			items[i].Reservations = append(items[i].Reservations, res)
		}
	}
	return items, nil
}

func (r *OrderRepository) reservations(ctx context.Context, where string, args ...any) ([]domain.InventoryReservation, error) {
	query := `
SELECT r.id, r.tenant_id, r.order_item_id, r.inventory_location_id, r.quantity, r.released_at
FROM inventory_reservations r
JOIN order_items i ON i.id = r.order_item_id` + where + `
ORDER BY r.created_at, r.id`

	rows, err := r.query(ctx, query, args...)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.InventoryReservation
	for rows.Next() {
		var res domain.InventoryReservation
		if err := rows.Scan(&res.ID, &res.TenantID, &res.OrderItemID, &res.InventoryLocationID, &res.Quantity, &res.ReleasedAt); err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}

// CreateOrder writes the header, its items and their reservations. It must run
// inside the checkout transaction.
func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) error {
	const orderStmt = `
INSERT INTO orders (
	id, tenant_id, shop_id, order_number, owner_key, idempotency_key,
	status, payment_status, fulfillment_status, payment_method, currency,
	subtotal, tax_amount, discount_amount, shipping_amount, total_amount,
	shipping_address, billing_address, customer_email, notes, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)`

	_, err := r.exec(ctx, orderStmt,
		order.ID, order.TenantID, order.ShopID, order.OrderNumber, order.Owner.String(), nullable(order.IdempotencyKey),
		order.Status, order.PaymentStatus, order.FulfillmentStatus, order.PaymentMethod, order.Currency,
		order.Subtotal, order.TaxAmount, order.DiscountAmount, order.ShippingAmount, order.TotalAmount,
		order.ShippingAddress, order.BillingAddress, order.CustomerEmail, order.Notes, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err) && constraintName(err) == "orders_idempotency_unique":
			return domain.ErrIdempotencyConflict
		case isInvalidUUID(err):
			return domain.ErrInvalidID
		case isCheckViolation(err):
			return fmt.Errorf("%w: %s", domain.ErrInvalidAmount, constraintName(err))
		}
		return fmt.Errorf("create order: %w", err)
	}

	const itemStmt = `
INSERT INTO order_items (
	id, tenant_id, order_id, product_variant_id, service_variant_id, sku, name,
	packaging_type_id, quantity, unit_price, subtotal, tax_amount, discount_amount,
	shipping_amount, total_amount, metadata, position
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	const reservationStmt = `
INSERT INTO inventory_reservations (id, tenant_id, order_item_id, inventory_location_id, quantity, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	for i, it := range order.Items {
		productID, serviceID := sellableColumns(it.Sellable)
		_, err := r.exec(ctx, itemStmt,
			it.ID, order.TenantID, order.ID, productID, serviceID, it.SKU, it.Name,
			nullable(it.PackagingTypeID), it.Quantity, it.UnitPrice, it.Subtotal, it.TaxAmount, it.DiscountAmount,
			it.ShippingAmount, it.TotalAmount, it.Metadata, i,
		)
		if err != nil {
			return fmt.Errorf("create order item %s: %w", it.SKU, err)
		}
		for _, res := range it.Reservations {
			_, err := r.exec(ctx, reservationStmt, res.ID, order.TenantID, it.ID, res.InventoryLocationID, res.Quantity, order.CreatedAt)
			if err != nil {
				return fmt.Errorf("create reservation for %s: %w", it.SKU, err)
			}
		}
	}
	return nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, scope domain.Scope, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus, now time.Time) error {
	const stmt = `
UPDATE orders SET status = $4, payment_status = $5, updated_at = $6
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3`

	tag, err := r.exec(ctx, stmt, orderID, scope.TenantID, scope.ShopID, status, paymentStatus, now)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (r *OrderRepository) ListOpenReservations(ctx context.Context, scope domain.Scope, orderID string) ([]domain.InventoryReservation, error) {
	return r.reservations(ctx, `
WHERE i.order_id = $1 AND r.tenant_id = $2 AND r.released_at IS NULL`, orderID, scope.TenantID)
}

func (r *OrderRepository) MarkReservationsReleased(ctx context.Context, scope domain.Scope, orderID string, now time.Time) error {
	const stmt = `
UPDATE inventory_reservations SET released_at = $3
WHERE tenant_id = $2 AND released_at IS NULL
  AND order_item_id IN (SELECT id FROM order_items WHERE order_id = $1)`

	if _, err := r.exec(ctx, stmt, orderID, scope.TenantID, now); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("release reservations: %w", err)
	}
	return nil
}
