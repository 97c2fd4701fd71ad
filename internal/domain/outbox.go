package domain

import "time"

const (
	EventOrderCreated         = "order.created"
	EventOrderCancelled       = "order.cancelled"
	EventOrderPaymentRecorded = "order.payment_recorded"
	EventOrderRefunded        = "order.refunded"
)

// OutboxEvent is written in the same transaction as the change it describes.
type OutboxEvent struct {
	ID          int64
	EventID     string
	TenantID    string
	EventType   string
	AggregateID string
	Payload     []byte
	CreatedAt   time.Time
}
