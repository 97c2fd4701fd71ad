package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PaymentRepository stores the append-only order ledger and gateway attempts.
// Ledger rows are never updated or deleted.
type PaymentRepository struct {
	db
}

func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{db: db{pool: pool}}
}

const selectPayment = `
SELECT id, tenant_id, shop_id, order_id, kind, source, amount, fee, method,
       COALESCE(reference, ''), COALESCE(gateway_reference, ''), COALESCE(refund_of::text, ''),
       notes, created_at
FROM order_payments`

func scanPayment(row pgx.Row) (domain.OrderPayment, error) {
	var p domain.OrderPayment
	err := row.Scan(&p.ID, &p.TenantID, &p.ShopID, &p.OrderID, &p.Kind, &p.Source, &p.Amount, &p.Fee, &p.Method,
		&p.Reference, &p.GatewayReference, &p.RefundOf, &p.Notes, &p.CreatedAt)
	return p, err
}

func (r *PaymentRepository) ListPayments(ctx context.Context, scope domain.Scope, orderID string) ([]domain.OrderPayment, error) {
	rows, err := r.query(ctx, selectPayment+`
WHERE order_id = $1 AND tenant_id = $2 AND shop_id = $3
ORDER BY created_at, id`, orderID, scope.TenantID, scope.ShopID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var out []domain.OrderPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

func (r *PaymentRepository) GetPayment(ctx context.Context, scope domain.Scope, paymentID string) (domain.OrderPayment, error) {
	p, err := scanPayment(r.queryRow(ctx, selectPayment+`
WHERE id = $1 AND tenant_id = $2 AND shop_id = $3`, paymentID, scope.TenantID, scope.ShopID))
	if err != nil {
		if isInvalidUUID(err) || errors.Is(err, pgx.ErrNoRows) {
			return domain.OrderPayment{}, domain.ErrPaymentNotFound
		}
		return domain.OrderPayment{}, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

func (r *PaymentRepository) FindPaymentByGatewayReference(ctx context.Context, scope domain.Scope, gatewayID, gatewayReference string) (*domain.OrderPayment, error) {
	p, err := scanPayment(r.queryRow(ctx, selectPayment+`
WHERE tenant_id = $1 AND method = $2 AND gateway_reference = $3 AND kind = 'payment'`, scope.TenantID, gatewayID, gatewayReference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("find payment by gateway reference: %w", err)
	}
	return &p, nil
}

// InsertPayment appends a ledger entry. A second settlement with the same gateway
// and reference trips order_payments_gateway_reference_uidx.
func (r *PaymentRepository) InsertPayment(ctx context.Context, payment domain.OrderPayment) error {
	const stmt = `
INSERT INTO order_payments (
	id, tenant_id, shop_id, order_id, kind, source, amount, fee, method,
	reference, gateway_reference, refund_of, notes, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.exec(ctx, stmt,
		payment.ID, payment.TenantID, payment.ShopID, payment.OrderID, payment.Kind, payment.Source,
		payment.Amount, payment.Fee, payment.Method, nullable(payment.Reference), nullable(payment.GatewayReference),
		nullable(payment.RefundOf), payment.Notes, payment.CreatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrDuplicateWebhookEvent
		case isCheckViolation(err):
			return domain.ErrInvalidAmount
		case isInvalidUUID(err):
			return domain.ErrInvalidID
		case isForeignKeyViolation(err):
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) CreateAttempt(ctx context.Context, a domain.PaymentAttempt) error {
	const stmt = `
INSERT INTO payment_attempts (
	id, tenant_id, shop_id, order_id, gateway, reference, status,
	redirect_url, inline_token, failure_reason, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`

	_, err := r.exec(ctx, stmt, a.ID, a.TenantID, a.ShopID, a.OrderID, a.Gateway, a.Reference, a.Status,
		a.RedirectURL, a.InlineToken, a.FailureReason, a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: reference %s reused", domain.ErrInvalidReference, a.Reference)
		}
		return fmt.Errorf("create payment attempt: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindAttemptByReference(ctx context.Context, reference string) (*domain.PaymentAttempt, error) {
	const query = `
SELECT id, tenant_id, shop_id, order_id, gateway, reference, status,
       redirect_url, inline_token, failure_reason, created_at
FROM payment_attempts
WHERE reference = $1`

	var a domain.PaymentAttempt
	err := r.queryRow(ctx, query, reference).Scan(&a.ID, &a.TenantID, &a.ShopID, &a.OrderID, &a.Gateway,
		&a.Reference, &a.Status, &a.RedirectURL, &a.InlineToken, &a.FailureReason, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find payment attempt: %w", err)
	}
	return &a, nil
}

func (r *PaymentRepository) UpdateAttemptStatus(ctx context.Context, scope domain.Scope, attemptID string, status domain.AttemptStatus, reason string) error {
	const stmt = `
UPDATE payment_attempts SET status = $3, failure_reason = $4, updated_at = NOW()
WHERE id = $1 AND tenant_id = $2`

	tag, err := r.exec(ctx, stmt, attemptID, scope.TenantID, status, reason)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("update payment attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment attempt %w", domain.ErrNotFound)
	}
	return nil
}
