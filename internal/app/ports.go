package app

import (
	"context"
	"sync"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/shopspring/decimal"
)

// Catalog reads shops and sellables. Every lookup is scoped; a sellable of another
// shop is reported as not found.
type Catalog interface {
	GetShop(ctx context.Context, scope domain.Scope) (domain.Shop, error)
	GetSellable(ctx context.Context, scope domain.Scope, ref domain.SellableRef) (domain.Sellable, error)
	// AvailableUnits sums quantity - reserved_quantity over every location of the variant.
	AvailableUnits(ctx context.Context, scope domain.Scope, variantID string) (int, error)
}

type CartRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindCart(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error)
	FindCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey) (*domain.Cart, error)
	GetOrCreateCartForUpdate(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, now time.Time) (domain.Cart, error)
	InsertCartItem(ctx context.Context, scope domain.Scope, item domain.CartItem) error
	UpdateCartItem(ctx context.Context, scope domain.Scope, itemID string, quantity int, unitPrice decimal.Decimal, now time.Time) error
	DeleteCartItem(ctx context.Context, scope domain.Scope, itemID string) error
	MoveCartItem(ctx context.Context, scope domain.Scope, itemID, targetCartID string, now time.Time) error
	ClearCart(ctx context.Context, scope domain.Scope, cartID string) error
}

// InventoryRepository is the only writer of stock counters.
type InventoryRepository interface {
	// LockLocations row-locks every location of the given variants, ordered by id.
	LockLocations(ctx context.Context, scope domain.Scope, variantIDs []string) ([]domain.InventoryLocation, error)
	// Reserve fails with ErrInsufficientStock when reserved would exceed quantity.
	Reserve(ctx context.Context, scope domain.Scope, locationID string, units int) error
	Release(ctx context.Context, scope domain.Scope, locationID string, units int) error
}

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// WithSerializableTx runs fn at SERIALIZABLE isolation and re-runs it on
	// serialization failures and deadlocks.
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context) error) error
	// FindOrderByIdempotencyKey only matches orders placed by owner.
	FindOrderByIdempotencyKey(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, key string) (*domain.Order, error)
	// CreateOrder writes the header, items and reservations. A taken idempotency
	// key is reported as ErrIdempotencyConflict.
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, error)
	// GetOrderByNumber is unscoped: webhooks only carry the reference.
	GetOrderByNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	UpdateOrderStatus(ctx context.Context, scope domain.Scope, orderID string, status domain.OrderStatus, paymentStatus domain.PaymentStatus, now time.Time) error
	ListOpenReservations(ctx context.Context, scope domain.Scope, orderID string) ([]domain.InventoryReservation, error)
	MarkReservationsReleased(ctx context.Context, scope domain.Scope, orderID string, now time.Time) error
}

type PaymentRepository interface {
	ListPayments(ctx context.Context, scope domain.Scope, orderID string) ([]domain.OrderPayment, error)
	GetPayment(ctx context.Context, scope domain.Scope, paymentID string) (domain.OrderPayment, error)
	// FindPaymentByGatewayReference matches on the gateway too: providers reuse
	// numeric transaction ids.
	FindPaymentByGatewayReference(ctx context.Context, scope domain.Scope, gatewayID, gatewayReference string) (*domain.OrderPayment, error)
	// InsertPayment fails with ErrDuplicateWebhookEvent when the gateway already
	// reported that reference.
	InsertPayment(ctx context.Context, payment domain.OrderPayment) error
	CreateAttempt(ctx context.Context, attempt domain.PaymentAttempt) error
	// FindAttemptByReference is unscoped for the same reason as GetOrderByNumber.
	FindAttemptByReference(ctx context.Context, reference string) (*domain.PaymentAttempt, error)
	UpdateAttemptStatus(ctx context.Context, scope domain.Scope, attemptID string, status domain.AttemptStatus, reason string) error
}

type HeldSaleRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// NextSequence increments and returns the named per-shop counter under a row lock.
	NextSequence(ctx context.Context, scope domain.Scope, name string) (int64, error)
	CreateHeldSale(ctx context.Context, sale domain.HeldSale) error
	GetHeldSaleForUpdate(ctx context.Context, scope domain.Scope, id string) (domain.HeldSale, error)
	ListHeldSales(ctx context.Context, scope domain.Scope, now time.Time) ([]domain.HeldSale, error)
	UpdateHeldSaleStatus(ctx context.Context, scope domain.Scope, id string, status domain.HeldSaleStatus, at time.Time) error
}

// EventRecorder appends to the outbox inside the caller's transaction.
type EventRecorder interface {
	Record(ctx context.Context, event domain.OutboxEvent) error
}

type GatewayResolver interface {
	Get(id string) (gateway.Gateway, error)
	Resolve(id, currency string) (gateway.Gateway, error)
	AvailableFor(currency string) []gateway.Gateway
}

// Locker guards short critical sections that span a gateway call and so cannot
// live inside a database transaction.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), acquired bool, err error)
}

// LocalLocker is the single-process Locker used when no Redis is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}
