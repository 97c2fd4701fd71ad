package outbox

import (
	"context"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/domain"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"go.uber.org/zap"
)

// Store is the outbox table. FetchPending must lock the rows it returns until
// the surrounding transaction ends.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkSent(ctx context.Context, ids []int64, at time.Time) error
	MarkFailed(ctx context.Context, ids []int64, reason string) error
}

// Poller relays committed outbox rows to a Publisher. Delivery is at least
// once: a crash between publish and commit re-sends the batch.
type Poller struct {
	store     Store
	publisher Publisher
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

func NewPoller(store Store, publisher Publisher, clk clock.Clock, opts ...Option) *Poller {
	p := &Poller{
		store:     store,
		publisher: publisher,
		clock:     clk,
		interval:  time.Second,
		batchSize: 100,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type Option func(*Poller)

func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Poller) {
		p.metrics = m
	}
}

// Run drains the outbox every interval until ctx is done. A full batch is
// followed immediately by another drain.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.logger.Info("outbox poller started", zap.Duration("interval", p.interval))

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("outbox poller stopped")
			return
		case <-ticker.C:
			for {
				n, err := p.Drain(ctx)
				if err != nil {
					if ctx.Err() == nil {
						p.logger.Error("outbox drain failed", zap.Error(err))
					}
					break
				}
				if n < p.batchSize {
					break
				}
			}
		}
	}
}

// Drain publishes one batch and returns how many events it delivered. A publish
// failure is recorded on the rows and is not returned; they are retried on the
// next tick.
func (p *Poller) Drain(ctx context.Context) (int, error) {
	var sent int
	err := p.store.WithTx(ctx, func(txCtx context.Context) error {
		events, err := p.store.FetchPending(txCtx, p.batchSize)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, e := range events {
			ids = append(ids, e.ID)
		}

		if err := p.publisher.Publish(txCtx, events); err != nil {
			p.logger.Warn("outbox publish failed",
				zap.Int("events", len(events)),
				zap.Int64("first_id", ids[0]),
				zap.Error(err),
			)
			p.metrics.ObserveOutbox("failed", len(events))
			return p.store.MarkFailed(txCtx, ids, err.Error())
		}
		if err := p.store.MarkSent(txCtx, ids, p.clock.Now()); err != nil {
			return err
		}
		p.metrics.ObserveOutbox("sent", len(events))
		sent = len(events)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sent, nil
}
