package app

import (
	"context"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"go.uber.org/zap"
)

type OrderService struct {
	orders    OrderRepository
	payments  PaymentRepository
	inventory InventoryRepository
	events    EventRecorder
	clock     clock.Clock
	logger    *zap.Logger
}

func NewOrderService(orders OrderRepository, payments PaymentRepository, inventory InventoryRepository, events EventRecorder, clk clock.Clock, opts ...OrderServiceOption) *OrderService {
	svc := &OrderService{
		orders:    orders,
		payments:  payments,
		inventory: inventory,
		events:    events,
		clock:     clk,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

func WithOrderLogger(l *zap.Logger) OrderServiceOption {
	return func(s *OrderService) {
		if l != nil {
			s.logger = l
		}
	}
}

// GetOrder returns the order with its items. Orders of other owners are visible
// only to callers that pass the zero OwnerKey (staff).
func (s *OrderService) GetOrder(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, scope, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if owner != (domain.OwnerKey{}) && order.Owner != owner {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

type orderCancelledPayload struct {
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	ReleasedUnits int    `json:"released_units"`
}

// CancelOrder cancels a pending order that holds no money and gives its reserved
// stock back. Reservations are released exactly as they were taken.
func (s *OrderService) CancelOrder(ctx context.Context, scope domain.Scope, owner domain.OwnerKey, orderID string) (domain.Order, error) {
	now := s.clock.Now()
	var result domain.Order

	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.GetOrderForUpdate(txCtx, scope, orderID)
		if err != nil {
			return err
		}
		if owner != (domain.OwnerKey{}) && order.Owner != owner {
			return domain.ErrOrderNotFound
		}
		if order.Status != domain.OrderStatusPending {
			return domain.ErrOrderNotCancellable
		}
		entries, err := s.payments.ListPayments(txCtx, scope, orderID)
		if err != nil {
			return err
		}
		if !domain.ComputeBalance(order, entries).Paid.IsZero() {
			return domain.ErrOrderNotCancellable
		}

		reservations, err := s.orders.ListOpenReservations(txCtx, scope, orderID)
		if err != nil {
			return err
		}
		released := 0
		for _, r := range reservations {
			if err := s.inventory.Release(txCtx, scope, r.InventoryLocationID, r.Quantity); err != nil {
				return err
			}
			released += r.Quantity
		}
		if err := s.orders.MarkReservationsReleased(txCtx, scope, orderID, now); err != nil {
			return err
		}
		if err := s.orders.UpdateOrderStatus(txCtx, scope, orderID, domain.OrderStatusCancelled, order.PaymentStatus, now); err != nil {
			return err
		}
		err = recordEvent(txCtx, s.events, order, domain.EventOrderCancelled, now, orderCancelledPayload{
			OrderID:       order.ID,
			OrderNumber:   order.OrderNumber,
			ReleasedUnits: released,
		})
		if err != nil {
			return err
		}

		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = now
		result = order
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.logger.Info("order cancelled", zap.String("order_id", result.ID), zap.String("tenant_id", scope.TenantID))
	return result, nil
}
