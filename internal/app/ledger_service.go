package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerService appends to the order payment ledger. Entries are never updated or
// deleted; balances and payment status are derived from them.
type LedgerService struct {
	orders   OrderRepository
	payments PaymentRepository
	catalog  Catalog
	events   EventRecorder
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewLedgerService(orders OrderRepository, payments PaymentRepository, catalog Catalog, events EventRecorder, clk clock.Clock, opts ...LedgerServiceOption) *LedgerService {
	svc := &LedgerService{
		orders:   orders,
		payments: payments,
		catalog:  catalog,
		events:   events,
		clock:    clk,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type LedgerServiceOption func(*LedgerService)

func WithLedgerLogger(l *zap.Logger) LedgerServiceOption {
	return func(s *LedgerService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithLedgerMetrics(m *metrics.Metrics) LedgerServiceOption {
	return func(s *LedgerService) {
		s.metrics = m
	}
}

type RecordPaymentInput struct {
	Scope     domain.Scope
	OrderID   string
	Amount    decimal.Decimal
	Method    string
	Reference string
	Notes     string
}

type LedgerResult struct {
	Payment domain.OrderPayment
	Balance domain.OrderBalance
}

// RecordPayment appends a manual payment. Whether it may exceed the outstanding
// balance is decided by the shop's allow_overpayment flag.
func (s *LedgerService) RecordPayment(ctx context.Context, in RecordPaymentInput) (LedgerResult, error) {
	if !in.Amount.IsPositive() {
		return LedgerResult{}, domain.ErrInvalidAmount
	}
	if in.Method == "" {
		in.Method = "manual"
	}
	shop, err := s.catalog.GetShop(ctx, in.Scope)
	if err != nil {
		return LedgerResult{}, err
	}

	var result LedgerResult
	err = s.orders.WithTx(ctx, func(txCtx context.Context) error {
		order, entries, err := s.lockOrder(txCtx, in.Scope, in.OrderID)
		if err != nil {
			return err
		}
		if order.Status == domain.OrderStatusCancelled {
			return domain.ErrOrderCancelled
		}
		if in.Amount.Exponent() < -domain.MinorUnitExponent(order.Currency) {
			return fmt.Errorf("%w: more precision than %s allows", domain.ErrInvalidAmount, order.Currency)
		}

		before := domain.ComputeBalance(order, entries)
		if !shop.AllowOverpayment && before.Paid.Add(in.Amount).GreaterThan(order.TotalAmount) {
			return domain.ErrOverpaymentNotAllowed
		}

		payment := domain.OrderPayment{
			ID:        newUUID(),
			TenantID:  order.TenantID,
			ShopID:    order.ShopID,
			OrderID:   order.ID,
			Kind:      domain.PaymentKindPayment,
			Source:    domain.PaymentSourceManual,
			Amount:    in.Amount,
			Fee:       decimal.Zero,
			Method:    in.Method,
			Reference: in.Reference,
			Notes:     in.Notes,
			CreatedAt: s.clock.Now(),
		}
		balance, err := s.appendEntry(txCtx, order, entries, payment)
		if err != nil {
			return err
		}
		result = LedgerResult{Payment: payment, Balance: balance}
		return nil
	})
	if err != nil {
		return LedgerResult{}, err
	}
	s.metrics.ObserveLedgerEntry(string(domain.PaymentKindPayment), string(domain.PaymentSourceManual))
	return result, nil
}

type SettlementInput struct {
	Scope            domain.Scope
	OrderID          string
	Amount           decimal.Decimal
	Fee              decimal.Decimal
	Gateway          string
	Reference        string
	GatewayReference string
}

// ApplySettlement records money a gateway has confirmed. It is idempotent on the
// gateway and its reference: Applied is false when the settlement was already recorded.
// Settlements are never refused for over-payment since the money already moved.
func (s *LedgerService) ApplySettlement(ctx context.Context, in SettlementInput) (LedgerResult, bool, error) {
	if !in.Amount.IsPositive() {
		return LedgerResult{}, false, domain.ErrInvalidAmount
	}
	if in.GatewayReference == "" {
		return LedgerResult{}, false, fmt.Errorf("%w: settlement without gateway reference", domain.ErrInvalidReference)
	}

	var (
		result  LedgerResult
		applied bool
	)
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		order, entries, err := s.lockOrder(txCtx, in.Scope, in.OrderID)
		if err != nil {
			return err
		}
		if existing, err := s.payments.FindPaymentByGatewayReference(txCtx, in.Scope, in.Gateway, in.GatewayReference); err != nil {
			return err
		} else if existing != nil {
			result = LedgerResult{Payment: *existing, Balance: domain.ComputeBalance(order, entries)}
			return nil
		}

		before := domain.ComputeBalance(order, entries)
		if before.Paid.Add(in.Amount).GreaterThan(order.TotalAmount) {
			s.logger.Warn("gateway settlement exceeds order total",
				zap.String("order_id", order.ID),
				zap.String("gateway_reference", in.GatewayReference),
				zap.String("amount", in.Amount.String()),
				zap.String("outstanding", before.Outstanding.String()),
			)
		}
		if order.Status == domain.OrderStatusCancelled {
			s.logger.Warn("settlement received for cancelled order", zap.String("order_id", order.ID))
		}

		payment := domain.OrderPayment{
			ID:               newUUID(),
			TenantID:         order.TenantID,
			ShopID:           order.ShopID,
			OrderID:          order.ID,
			Kind:             domain.PaymentKindPayment,
			Source:           domain.PaymentSourceGateway,
			Amount:           in.Amount,
			Fee:              in.Fee,
			Method:           in.Gateway,
			Reference:        in.Reference,
			GatewayReference: in.GatewayReference,
			CreatedAt:        s.clock.Now(),
		}
		balance, err := s.appendEntry(txCtx, order, entries, payment)
		if err != nil {
			return err
		}
		result = LedgerResult{Payment: payment, Balance: balance}
		applied = true
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateWebhookEvent) {
		// Lost the race against a concurrent delivery of the same event.
		balance, balErr := s.Balance(ctx, in.Scope, in.OrderID)
		if balErr != nil {
			return LedgerResult{}, false, balErr
		}
		return LedgerResult{Balance: balance}, false, nil
	}
	if err != nil {
		return LedgerResult{}, false, err
	}
	if applied {
		s.metrics.ObserveLedgerEntry(string(domain.PaymentKindPayment), string(domain.PaymentSourceGateway))
	}
	return result, applied, nil
}

// Refundable returns the payment and how much of it has not been refunded yet.
func (s *LedgerService) Refundable(ctx context.Context, scope domain.Scope, paymentID string) (domain.OrderPayment, decimal.Decimal, error) {
	payment, err := s.payments.GetPayment(ctx, scope, paymentID)
	if err != nil {
		return domain.OrderPayment{}, decimal.Zero, err
	}
	if payment.Kind != domain.PaymentKindPayment {
		return domain.OrderPayment{}, decimal.Zero, domain.ErrNotRefundable
	}
	entries, err := s.payments.ListPayments(ctx, scope, payment.OrderID)
	if err != nil {
		return domain.OrderPayment{}, decimal.Zero, err
	}
	return payment, remaining(payment, entries), nil
}

func remaining(payment domain.OrderPayment, entries []domain.OrderPayment) decimal.Decimal {
	left := payment.Amount
	for _, e := range entries {
		if e.Kind == domain.PaymentKindRefund && e.RefundOf == payment.ID {
			left = left.Add(e.Amount)
		}
	}
	return left
}

type RefundInput struct {
	Scope     domain.Scope
	PaymentID string
	// Amount defaults to everything not yet refunded.
	Amount           decimal.NullDecimal
	Reason           string
	GatewayReference string
}

// Refund appends a negative entry pointing at the payment it reverses.
func (s *LedgerService) Refund(ctx context.Context, in RefundInput) (LedgerResult, error) {
	var result LedgerResult
	err := s.orders.WithTx(ctx, func(txCtx context.Context) error {
		payment, err := s.payments.GetPayment(txCtx, in.Scope, in.PaymentID)
		if err != nil {
			return err
		}
		if payment.Kind != domain.PaymentKindPayment {
			return domain.ErrNotRefundable
		}
		order, entries, err := s.lockOrder(txCtx, in.Scope, payment.OrderID)
		if err != nil {
			return err
		}

		left := remaining(payment, entries)
		amount := left
		if in.Amount.Valid {
			amount = in.Amount.Decimal
		}
		if !amount.IsPositive() {
			if in.Amount.Valid {
				return domain.ErrInvalidAmount
			}
			return domain.ErrRefundExceedsPayment
		}
		if amount.GreaterThan(left) {
			return domain.ErrRefundExceedsPayment
		}

		refund := domain.OrderPayment{
			ID:               newUUID(),
			TenantID:         order.TenantID,
			ShopID:           order.ShopID,
			OrderID:          order.ID,
			Kind:             domain.PaymentKindRefund,
			Source:           payment.Source,
			Amount:           amount.Neg(),
			Fee:              decimal.Zero,
			Method:           payment.Method,
			Reference:        payment.Reference,
			GatewayReference: in.GatewayReference,
			RefundOf:         payment.ID,
			Notes:            in.Reason,
			CreatedAt:        s.clock.Now(),
		}
		balance, err := s.appendEntry(txCtx, order, entries, refund)
		if err != nil {
			return err
		}
		result = LedgerResult{Payment: refund, Balance: balance}
		return nil
	})
	if err != nil {
		return LedgerResult{}, err
	}
	s.metrics.ObserveLedgerEntry(string(domain.PaymentKindRefund), string(result.Payment.Source))
	return result, nil
}

func (s *LedgerService) Balance(ctx context.Context, scope domain.Scope, orderID string) (domain.OrderBalance, error) {
	order, err := s.orders.GetOrder(ctx, scope, orderID)
	if err != nil {
		return domain.OrderBalance{}, err
	}
	entries, err := s.payments.ListPayments(ctx, scope, orderID)
	if err != nil {
		return domain.OrderBalance{}, err
	}
	return domain.ComputeBalance(order, entries), nil
}

func (s *LedgerService) Payments(ctx context.Context, scope domain.Scope, orderID string) ([]domain.OrderPayment, error) {
	if _, err := s.orders.GetOrder(ctx, scope, orderID); err != nil {
		return nil, err
	}
	return s.payments.ListPayments(ctx, scope, orderID)
}

// lockOrder takes the order row lock that serializes ledger appends for one order.
func (s *LedgerService) lockOrder(ctx context.Context, scope domain.Scope, orderID string) (domain.Order, []domain.OrderPayment, error) {
	order, err := s.orders.GetOrderForUpdate(ctx, scope, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	entries, err := s.payments.ListPayments(ctx, scope, orderID)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, entries, nil
}

type paymentEventPayload struct {
	OrderID       string `json:"order_id"`
	PaymentID     string `json:"payment_id"`
	Kind          string `json:"kind"`
	Source        string `json:"source"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	Outstanding   string `json:"outstanding"`
}

// appendEntry writes the entry, re-derives the payment status and confirms the order
// once it is paid in full.
func (s *LedgerService) appendEntry(ctx context.Context, order domain.Order, entries []domain.OrderPayment, entry domain.OrderPayment) (domain.OrderBalance, error) {
	if err := s.payments.InsertPayment(ctx, entry); err != nil {
		return domain.OrderBalance{}, err
	}
	balance := domain.ComputeBalance(order, append(entries, entry))

	status := order.Status
	if status == domain.OrderStatusPending && balance.Status == domain.PaymentStatusPaid {
		status = domain.OrderStatusConfirmed
	}
	if status != order.Status || balance.Status != order.PaymentStatus {
		if err := s.orders.UpdateOrderStatus(ctx, order.Scope(), order.ID, status, balance.Status, s.clock.Now()); err != nil {
			return domain.OrderBalance{}, err
		}
	}

	eventType := domain.EventOrderPaymentRecorded
	if entry.Kind == domain.PaymentKindRefund {
		eventType = domain.EventOrderRefunded
	}
	err := recordEvent(ctx, s.events, order, eventType, s.clock.Now(), paymentEventPayload{
		OrderID:       order.ID,
		PaymentID:     entry.ID,
		Kind:          string(entry.Kind),
		Source:        string(entry.Source),
		Amount:        entry.Amount.String(),
		Currency:      order.Currency,
		PaymentStatus: string(balance.Status),
		Outstanding:   balance.Outstanding.String(),
	})
	if err != nil {
		return domain.OrderBalance{}, err
	}
	return balance, nil
}
