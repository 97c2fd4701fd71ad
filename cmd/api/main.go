package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/app"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/clock"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/config"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/gateway"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/logging"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/metrics"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/outbox"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/storage/postgres"
	"github.com/gHoSTeCHs/shelfwiser-sub011/internal/storage/redis"
	transporthttp "github.com/gHoSTeCHs/shelfwiser-sub011/internal/transport/http"
	"github.com/gHoSTeCHs/shelfwiser-sub011/migrations"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The logger depends on config, so this is the one plain write to stderr.
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New("shelfwise-checkout", cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if len(cfg.Defaulted) > 0 {
		logger.Warn("configuration defaults in use", zap.Strings("keys", cfg.Defaulted))
	}
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, bearer tokens will be rejected and only guest carts work")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("api stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(cfg config.Config, logger *zap.Logger) error {
	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := migrations.Apply(pool); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	clk := clock.NewSystem()

	var locker app.Locker = app.NewLocalLocker()
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(startupCtx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		locker = redis.NewLocker(client, logger)
	} else {
		logger.Warn("REDIS_URL not set, payment locks are local to this process")
	}

	carts := postgres.NewCartRepository(pool)
	catalog := postgres.NewCatalogRepository(pool)
	inventory := postgres.NewInventoryRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	payments := postgres.NewPaymentRepository(pool)
	heldSales := postgres.NewHeldSaleRepository(pool)
	events := postgres.NewOutboxRepository(pool)

	gateways := gateway.NewDefaultRegistry(gateway.Settings{
		Paystack:    gateway.Credentials(cfg.Gateways.Paystack),
		Flutterwave: gateway.Credentials(cfg.Gateways.Flutterwave),
		Crypto:      gateway.Credentials(cfg.Gateways.CryptoPay),
		CODEnabled:  cfg.Gateways.CODEnabled,
		Client:      gateway.ClientOptions{Timeout: cfg.GatewayTimeout, Metrics: m},
	})
	for _, gw := range gateways.Available() {
		logger.Info("payment gateway available", zap.String("gateway", gw.Identifier()))
	}

	ledgerSvc := app.NewLedgerService(orders, payments, catalog, events, clk,
		app.WithLedgerLogger(logger), app.WithLedgerMetrics(m))
	paymentSvc := app.NewPaymentService(orders, payments, gateways, ledgerSvc, clk,
		app.WithGatewayTimeout(cfg.GatewayTimeout),
		app.WithPublicBaseURL(cfg.PublicBaseURL),
		app.WithLocker(locker),
		app.WithPaymentLogger(logger),
		app.WithPaymentMetrics(m),
	)
	checkoutSvc := app.NewCheckoutService(app.CheckoutDeps{
		Carts:     carts,
		Orders:    orders,
		Inventory: inventory,
		Catalog:   catalog,
		Events:    events,
		Gateways:  gateways,
		Payments:  paymentSvc,
	}, clk, app.WithCheckoutLogger(logger), app.WithCheckoutMetrics(m))

	router := transporthttp.NewRouter(transporthttp.Deps{
		Carts:     app.NewCartService(carts, catalog, clk, app.WithCartLogger(logger)),
		Checkout:  checkoutSvc,
		Orders:    app.NewOrderService(orders, payments, inventory, events, clk, app.WithOrderLogger(logger)),
		Ledger:    ledgerSvc,
		Payments:  paymentSvc,
		HeldSales: app.NewHeldSaleService(heldSales, carts, catalog, clk, app.WithHeldSaleTTL(cfg.HeldSaleTTL), app.WithHeldSaleLogger(logger)),

		Auth:           transporthttp.NewAuthenticator(cfg.JWTSecret),
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.GatewayTimeout + 30*time.Second,
		Ready:          pool.Ping,

		Logger:   logger,
		Metrics:  m,
		Gatherer: reg,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           otelhttp.NewHandler(router, "api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		publisher := outbox.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer func() { _ = publisher.Close() }()
		poller := outbox.NewPoller(events, publisher, clk,
			outbox.WithInterval(cfg.OutboxInterval),
			outbox.WithLogger(logger),
			outbox.WithMetrics(m),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(stopCtx)
		}()
		logger.Info("outbox publisher started", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	} else {
		logger.Warn("KAFKA_BROKERS not set, outbox events stay in the database")
	}

	logger.Info("api listening", zap.String("port", cfg.Port))

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
		stop()
	case <-stopCtx.Done():
		logger.Info("shutdown signal received, stopping server")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server shutdown error", zap.Error(err))
	}
	wg.Wait()
	return serveErr
}
