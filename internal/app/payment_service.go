package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/logging"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultGatewayTimeout = 30 * time.Second

// PaymentService drives gateways: it opens payments for orders, applies verified
// callbacks and webhooks to the ledger, and issues refunds. Gateway calls never
// run inside a database transaction.
type PaymentService struct {
	orders        OrderRepository
	payments      PaymentRepository
	gateways      GatewayResolver
	ledger        *LedgerService
	clock         clock.Clock
	locker        Locker
	logger        *zap.Logger
	metrics       *metrics.Metrics
	timeout       time.Duration
	publicBaseURL string
}

func NewPaymentService(orders OrderRepository, payments PaymentRepository, gateways GatewayResolver, ledger *LedgerService, clk clock.Clock, opts ...PaymentServiceOption) *PaymentService {
	svc := &PaymentService{
		orders:   orders,
		payments: payments,
		gateways: gateways,
		ledger:   ledger,
		clock:    clk,
		locker:   NewLocalLocker(),
		logger:   zap.NewNop(),
		timeout:  defaultGatewayTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type PaymentServiceOption func(*PaymentService)

// WithGatewayTimeout bounds every outbound gateway call.
func WithGatewayTimeout(d time.Duration) PaymentServiceOption {
	return func(s *PaymentService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPublicBaseURL is used to build callback and webhook URLs handed to gateways.
func WithPublicBaseURL(u string) PaymentServiceOption {
	return func(s *PaymentService) {
		s.publicBaseURL = strings.TrimRight(u, "/")
	}
}

func WithLocker(l Locker) PaymentServiceOption {
	return func(s *PaymentService) {
		if l != nil {
			s.locker = l
		}
	}
}

func WithPaymentLogger(l *zap.Logger) PaymentServiceOption {
	return func(s *PaymentService) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithPaymentMetrics(m *metrics.Metrics) PaymentServiceOption {
	return func(s *PaymentService) {
		s.metrics = m
	}
}

type InitiatePaymentInput struct {
	Scope   domain.Scope
	OrderID string
	// Gateway defaults to the payment method chosen at checkout.
	Gateway     string
	CallbackURL string
}

type InitiatePaymentResult struct {
	AttemptID   string
	Gateway     string
	Reference   string
	RedirectURL string
	InlineToken string
	PublicKey   string
	Amount      decimal.Decimal
	Currency    string
}

// InitiatePayment opens a gateway payment for the outstanding balance of an order.
// Every call uses a fresh reference, so retrying after a failure is safe.
func (s *PaymentService) InitiatePayment(ctx context.Context, in InitiatePaymentInput) (InitiatePaymentResult, error) {
	unlock, ok, err := s.locker.TryLock(ctx, "payment-init:"+in.OrderID, s.timeout+5*time.Second)
	if err != nil {
		return InitiatePaymentResult{}, fmt.Errorf("acquire payment lock: %w", err)
	}
	if !ok {
		return InitiatePaymentResult{}, domain.ErrPaymentInProgress
	}
	defer unlock()

	order, err := s.orders.GetOrder(ctx, in.Scope, in.OrderID)
	if err != nil {
		return InitiatePaymentResult{}, err
	}
	if order.Status == domain.OrderStatusCancelled {
		return InitiatePaymentResult{}, domain.ErrOrderCancelled
	}
	gatewayID := in.Gateway
	if gatewayID == "" {
		gatewayID = order.PaymentMethod
	}
	gw, err := s.gateways.Resolve(gatewayID, order.Currency)
	if err != nil {
		return InitiatePaymentResult{}, err
	}

	balance, err := s.ledger.Balance(ctx, in.Scope, order.ID)
	if err != nil {
		return InitiatePaymentResult{}, err
	}
	if !balance.Outstanding.IsPositive() {
		return InitiatePaymentResult{}, domain.ErrOrderAlreadyPaid
	}

	reference := gateway.NewReference(gw.Identifier(), order.OrderNumber)
	opts := gateway.InitializeOptions{
		Reference:   reference,
		CallbackURL: s.callbackURL(gw.Identifier(), in.CallbackURL),
		Metadata: map[string]string{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"tenant_id":    order.TenantID,
			"shop_id":      order.ShopID,
		},
	}
	if s.publicBaseURL != "" {
		opts.Metadata["webhook_url"] = s.publicBaseURL + "/api/v1/webhooks/" + gw.Identifier()
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	opened, initErr := gw.InitializePayment(callCtx, gateway.Order{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Amount:        balance.Outstanding,
		Currency:      order.Currency,
		CustomerEmail: order.CustomerEmail,
	}, opts)

	attempt := domain.PaymentAttempt{
		ID:          newUUID(),
		TenantID:    order.TenantID,
		ShopID:      order.ShopID,
		OrderID:     order.ID,
		Gateway:     gw.Identifier(),
		Reference:   reference,
		Status:      domain.AttemptInitiated,
		RedirectURL: opened.RedirectURL,
		InlineToken: opened.InlineToken,
		CreatedAt:   s.clock.Now(),
	}
	if initErr != nil {
		attempt.Status = domain.AttemptFailed
		attempt.FailureReason = initErr.Error()
	}
	if err := s.payments.CreateAttempt(ctx, attempt); err != nil {
		if initErr != nil {
			return InitiatePaymentResult{}, errors.Join(initErr, err)
		}
		return InitiatePaymentResult{}, err
	}
	if initErr != nil {
		logging.FromContext(ctx, s.logger).Warn("payment initialization failed",
			zap.String("order_id", order.ID),
			zap.String("gateway", gw.Identifier()),
			zap.String("reference", reference),
			zap.Error(initErr),
		)
		return InitiatePaymentResult{}, initErr
	}

	return InitiatePaymentResult{
		AttemptID:   attempt.ID,
		Gateway:     gw.Identifier(),
		Reference:   reference,
		RedirectURL: opened.RedirectURL,
		InlineToken: opened.InlineToken,
		PublicKey:   opened.PublicKey,
		Amount:      balance.Outstanding,
		Currency:    order.Currency,
	}, nil
}

func (s *PaymentService) callbackURL(gatewayID, requested string) string {
	if requested != "" {
		return requested
	}
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/api/v1/payments/" + gatewayID + "/callback"
}

// FindOrderByReference maps a payment reference back to its order. The attempt
// row is consulted first; the order number encoded in the reference is the
// fallback for references this process did not record.
func (s *PaymentService) FindOrderByReference(ctx context.Context, reference string) (domain.Order, *domain.PaymentAttempt, error) {
	attempt, err := s.payments.FindAttemptByReference(ctx, reference)
	if err != nil {
		return domain.Order{}, nil, err
	}
	if attempt != nil {
		order, err := s.orders.GetOrder(ctx, domain.Scope{TenantID: attempt.TenantID, ShopID: attempt.ShopID}, attempt.OrderID)
		if err != nil {
			return domain.Order{}, nil, err
		}
		return order, attempt, nil
	}

	_, orderNumber, err := gateway.ParseReference(reference)
	if err != nil {
		return domain.Order{}, nil, err
	}
	order, err := s.orders.GetOrderByNumber(ctx, orderNumber)
	if err != nil {
		return domain.Order{}, nil, err
	}
	return order, nil, nil
}

type VerifyPaymentResult struct {
	Order   domain.Order
	Status  gateway.PaymentStatus
	Applied bool
	Balance domain.OrderBalance
}

// VerifyPayment asks the gateway for the state of a reference, as on the
// customer's return from a hosted payment page, and records a confirmed payment.
func (s *PaymentService) VerifyPayment(ctx context.Context, gatewayID, reference string) (VerifyPaymentResult, error) {
	if reference == "" {
		return VerifyPaymentResult{}, domain.ErrInvalidReference
	}
	gw, err := s.gateways.Get(gatewayID)
	if err != nil {
		return VerifyPaymentResult{}, err
	}
	order, attempt, err := s.FindOrderByReference(ctx, reference)
	if err != nil {
		return VerifyPaymentResult{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := gw.VerifyPayment(callCtx, reference)
	if err != nil {
		return VerifyPaymentResult{}, err
	}

	out := VerifyPaymentResult{Order: order, Status: res.Status}
	switch res.Status {
	case gateway.StatusSuccess:
		if res.Currency != "" && !strings.EqualFold(res.Currency, order.Currency) {
			return VerifyPaymentResult{}, fmt.Errorf("%w: paid in %s, order in %s", domain.ErrInvalidAmount, res.Currency, order.Currency)
		}
		gatewayRef := res.GatewayReference
		if gatewayRef == "" {
			gatewayRef = reference
		}
		ledger, applied, err := s.ledger.ApplySettlement(ctx, SettlementInput{
			Scope:            order.Scope(),
			OrderID:          order.ID,
			Amount:           res.Amount,
			Fee:              res.Fee,
			Gateway:          gw.Identifier(),
			Reference:        reference,
			GatewayReference: gatewayRef,
		})
		if err != nil {
			return VerifyPaymentResult{}, err
		}
		out.Applied = applied
		out.Balance = ledger.Balance
		s.markAttempt(ctx, attempt, domain.AttemptSucceeded, "")
	case gateway.StatusFailed:
		s.markAttempt(ctx, attempt, domain.AttemptFailed, "declined by gateway")
		out.Balance, err = s.ledger.Balance(ctx, order.Scope(), order.ID)
		if err != nil {
			return VerifyPaymentResult{}, err
		}
	default:
		out.Balance, err = s.ledger.Balance(ctx, order.Scope(), order.ID)
		if err != nil {
			return VerifyPaymentResult{}, err
		}
	}
	return out, nil
}

// HandleWebhook verifies the provider signature before anything else, then applies
// settlement events to the ledger. Deliveries that cannot be matched to an order
// are acknowledged so the provider stops retrying; they are logged instead.
func (s *PaymentService) HandleWebhook(ctx context.Context, gatewayID string, req gateway.WebhookRequest) error {
	logger := logging.FromContext(ctx, s.logger).With(zap.String("gateway", gatewayID))

	gw, err := s.gateways.Get(gatewayID)
	if err != nil {
		s.metrics.ObserveWebhook(gatewayID, "unknown_gateway")
		return err
	}
	if !gw.ValidateWebhook(req) {
		s.metrics.ObserveWebhook(gatewayID, "signature_invalid")
		logger.Warn("webhook signature rejected", zap.Int("body_bytes", len(req.Body)))
		return domain.ErrWebhookSignatureInvalid
	}

	ev, err := gw.ParseWebhook(req)
	if err != nil {
		s.metrics.ObserveWebhook(gatewayID, "invalid_payload")
		if errors.Is(err, domain.ErrWebhookNotSupported) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrWebhookPayloadInvalid, err)
	}
	logger = logger.With(zap.String("event", ev.ProviderEvent), zap.String("reference", ev.OrderReference))

	if ev.Type == gateway.EventIgnored {
		s.metrics.ObserveWebhook(gatewayID, "ignored")
		logger.Debug("webhook event ignored")
		return nil
	}

	order, attempt, err := s.FindOrderByReference(ctx, ev.OrderReference)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidReference) {
		s.metrics.ObserveWebhook(gatewayID, "unknown_order")
		logger.Warn("webhook for unknown order", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	if ev.Type == gateway.EventPaymentFailed {
		s.markAttempt(ctx, attempt, domain.AttemptFailed, ev.ProviderEvent)
		s.metrics.ObserveWebhook(gatewayID, "payment_failed")
		logger.Info("payment failed at gateway", zap.String("order_id", order.ID))
		return nil
	}

	if ev.Currency != "" && !strings.EqualFold(ev.Currency, order.Currency) {
		s.metrics.ObserveWebhook(gatewayID, "currency_mismatch")
		logger.Warn("webhook currency does not match order",
			zap.String("order_id", order.ID),
			zap.String("webhook_currency", ev.Currency),
			zap.String("order_currency", order.Currency),
		)
		return nil
	}

	gatewayRef := ev.GatewayReference
	if gatewayRef == "" {
		gatewayRef = ev.OrderReference
	}
	_, applied, err := s.ledger.ApplySettlement(ctx, SettlementInput{
		Scope:            order.Scope(),
		OrderID:          order.ID,
		Amount:           ev.AmountReceived,
		Fee:              ev.Fee,
		Gateway:          gw.Identifier(),
		Reference:        ev.OrderReference,
		GatewayReference: gatewayRef,
	})
	if err != nil {
		s.metrics.ObserveWebhook(gatewayID, "error")
		return err
	}
	if !applied {
		s.metrics.ObserveWebhook(gatewayID, "duplicate")
		logger.Info("duplicate webhook ignored", zap.String("gateway_reference", gatewayRef))
		return nil
	}
	s.markAttempt(ctx, attempt, domain.AttemptSucceeded, "")
	s.metrics.ObserveWebhook(gatewayID, "applied")
	logger.Info("webhook payment applied", zap.String("order_id", order.ID), zap.String("amount", ev.AmountReceived.String()))
	return nil
}

func (s *PaymentService) markAttempt(ctx context.Context, attempt *domain.PaymentAttempt, status domain.AttemptStatus, reason string) {
	if attempt == nil || attempt.Status == status {
		return
	}
	scope := domain.Scope{TenantID: attempt.TenantID, ShopID: attempt.ShopID}
	if err := s.payments.UpdateAttemptStatus(ctx, scope, attempt.ID, status, reason); err != nil {
		s.logger.Warn("update payment attempt", zap.String("attempt_id", attempt.ID), zap.Error(err))
	}
}

type RefundPaymentInput struct {
	Scope     domain.Scope
	PaymentID string
	Amount    decimal.NullDecimal
	Reason    string
}

// RefundPayment returns money to the customer. Gateway settlements are refunded at
// the gateway first; the ledger entry is written only once the gateway accepted.
func (s *PaymentService) RefundPayment(ctx context.Context, in RefundPaymentInput) (LedgerResult, error) {
	unlock, ok, err := s.locker.TryLock(ctx, "refund:"+in.PaymentID, s.timeout+5*time.Second)
	if err != nil {
		return LedgerResult{}, fmt.Errorf("acquire refund lock: %w", err)
	}
	if !ok {
		return LedgerResult{}, domain.ErrPaymentInProgress
	}
	defer unlock()

	payment, left, err := s.ledger.Refundable(ctx, in.Scope, in.PaymentID)
	if err != nil {
		return LedgerResult{}, err
	}
	amount := left
	if in.Amount.Valid {
		amount = in.Amount.Decimal
	}
	if !amount.IsPositive() {
		if in.Amount.Valid {
			return LedgerResult{}, domain.ErrInvalidAmount
		}
		return LedgerResult{}, domain.ErrRefundExceedsPayment
	}
	if amount.GreaterThan(left) {
		return LedgerResult{}, domain.ErrRefundExceedsPayment
	}

	refund := RefundInput{
		Scope:     in.Scope,
		PaymentID: payment.ID,
		Amount:    decimal.NewNullDecimal(amount),
		Reason:    in.Reason,
	}

	if payment.Source == domain.PaymentSourceGateway {
		order, err := s.orders.GetOrder(ctx, in.Scope, payment.OrderID)
		if err != nil {
			return LedgerResult{}, err
		}
		gw, err := s.gateways.Get(payment.Method)
		if err != nil {
			return LedgerResult{}, err
		}
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		res, err := gw.Refund(callCtx, gateway.RefundRequest{
			Reference:        payment.Reference,
			GatewayReference: payment.GatewayReference,
			Amount:           decimal.NewNullDecimal(amount),
			Currency:         order.Currency,
			Reason:           in.Reason,
		})
		cancel()
		if err != nil {
			logging.FromContext(ctx, s.logger).Warn("gateway refund failed",
				zap.String("payment_id", payment.ID),
				zap.String("gateway", gw.Identifier()),
				zap.Error(err),
			)
			return LedgerResult{}, err
		}
		refund.GatewayReference = res.GatewayReference
		if res.Status != gateway.RefundProcessed {
			refund.Reason = strings.TrimSpace(refund.Reason + " (" + string(res.Status) + ")")
		}
	}

	return s.ledger.Refund(ctx, refund)
}
