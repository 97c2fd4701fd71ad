package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OutboxRepository struct {
	db
}

func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{db: db{pool: pool}}
}

func (r *OutboxRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, pgx.TxOptions{}, fn)
}

// Record appends an event in the caller's transaction.
func (r *OutboxRepository) Record(ctx context.Context, event domain.OutboxEvent) error {
	const stmt = `
INSERT INTO outbox_events (event_id, tenant_id, event_type, aggregate_id, payload, created_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6)`

	_, err := r.exec(ctx, stmt, event.EventID, event.TenantID, event.EventType, event.AggregateID, string(event.Payload), event.CreatedAt)
	if err != nil {
		return fmt.Errorf("record outbox event %s: %w", event.EventType, err)
	}
	return nil
}

// FetchPending locks up to limit unsent events. Rows locked by another poller
// are skipped, so several instances can drain the outbox side by side.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	const query = `
SELECT id, event_id, tenant_id, event_type, aggregate_id, payload::text, created_at
FROM outbox_events
WHERE sent_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED`

	rows, err := r.query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox events: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxEvent
	for rows.Next() {
		var e domain.OutboxEvent
		var payload string
		if err := rows.Scan(&e.ID, &e.EventID, &e.TenantID, &e.EventType, &e.AggregateID, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = []byte(payload)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch outbox events: %w", err)
	}
	return out, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const stmt = `UPDATE outbox_events SET sent_at = $2, attempts = attempts + 1 WHERE id = ANY($1)`
	if _, err := r.exec(ctx, stmt, ids, at); err != nil {
		return fmt.Errorf("mark outbox events sent: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, ids []int64, reason string) error {
	if len(ids) == 0 {
		return nil
	}
	const stmt = `UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = ANY($1)`
	if _, err := r.exec(ctx, stmt, ids, reason); err != nil {
		return fmt.Errorf("mark outbox events failed: %w", err)
	}
	return nil
}
