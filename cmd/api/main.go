package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/barbershop-scheduler/internal/api/router"
	"github.com/wolfman30/barbershop-scheduler/internal/app/bootstrap"
	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	appconfig "github.com/wolfman30/barbershop-scheduler/internal/config"
	"github.com/wolfman30/barbershop-scheduler/internal/events"
	httpmiddleware "github.com/wolfman30/barbershop-scheduler/internal/http/middleware"
	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/payments"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting barbershop-scheduler API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	delivererDone := make(chan struct{})
	go func() {
		defer close(delivererDone)
		app.deliverer.Start(ctx)
	}()

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	select {
	case <-delivererDone:
	case <-shutdownCtx.Done():
		logger.Warn("outbox deliverer did not finish before shutdown deadline")
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type app struct {
	handler   http.Handler
	deliverer *events.Deliverer
	closers   []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a := &app{}
	readiness := map[string]router.ReadinessCheck{}

	pool := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
		readiness["postgres"] = pool.Ping
	} else {
		if cfg.Env == "production" {
			return nil, fmt.Errorf("postgres is required in production")
		}
		logger.Warn("DATABASE_URL not set or unreachable; using in-memory stores")
	}
	stores := bootstrap.BuildStores(pool)
	if stores.Memory != nil {
		bootstrap.SeedDemoBarber(stores.Memory, logger)
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		a.closers = append(a.closers, func() { _ = redisClient.Close() })
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	metricsHandler, bookingMetrics, paymentMetrics := setupMetrics()

	clock := scheduling.SystemClock{Location: loc}
	cat := catalog.New(stores.Catalog, stores.Usage, clock, logger)
	bookingSvc := bookings.NewService(stores.Bookings, cat, clock, logger).
		WithLocation(loc).
		WithGranularity(cfg.SlotGranularityMinutes).
		WithBuffer(cfg.BookingBufferMinutes).
		WithPublisher(stores.Outbox).
		WithMetrics(bookingMetrics)
	if redisClient != nil && cfg.BookingMaxAttemptsPerHour > 0 {
		bookingSvc = bookingSvc.WithLimiter(bookings.NewAttemptLimiter(redisClient, cfg.BookingMaxAttemptsPerHour, time.Hour, logger))
	}

	gateway, fakeGateway, err := bootstrap.BuildGateway(cfg, paymentMetrics, logger)
	if err != nil {
		return nil, err
	}
	reconciler := payments.NewReconciler(stores.Bookings, bookingSvc, logger).WithMetrics(paymentMetrics)
	initiator := payments.NewInitiator(bookingSvc, cat, gateway, logger)

	var fakeHandler *payments.FakePaymentsHandler
	if fakeGateway != nil {
		fakeHandler = payments.NewFakePaymentsHandler(fakeGateway, reconciler, logger)
	}

	limiter := httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	a.closers = append(a.closers, limiter.Stop)

	a.deliverer = setupDeliverer(stores.Outbox, redisClient, cfg, logger)

	a.handler = router.New(&router.Config{
		Logger:   logger,
		Bookings: bookings.NewHandler(bookingSvc, logger),
		Catalog:  catalog.NewHandler(cat, logger),
		Payments: payments.NewHandler(initiator, bookingSvc, gateway, reconciler, logger).
			WithStatusTimeout(cfg.PaymentStatusTimeout),
		PaymentsWebhook: payments.NewWebhookHandler(cfg.MercadoPagoWebhookSecret, gateway, reconciler, stores.Processed, logger).
			WithTimeout(cfg.PaymentStatusTimeout).
			WithMetrics(paymentMetrics),
		FakePayments:   fakeHandler,
		JWTSecret:      cfg.JWTSecret,
		RateLimiter:    limiter,
		MetricsHandler: metricsHandler,
		CORS:           corsOptions(cfg),
		Readiness:      readiness,
	})
	return a, nil
}

func corsOptions(cfg *appconfig.Config) httpmiddleware.CORSOptions {
	return httpmiddleware.CORSOptions{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   cfg.CORSAllowedMethods,
		AllowedHeaders:   cfg.CORSAllowedHeaders,
		AllowCredentials: cfg.CORSAllowCredentials,
		MaxAge:           cfg.CORSMaxAge,
	}
}

func setupMetrics() (http.Handler, *metrics.BookingMetrics, *metrics.PaymentMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	return handler, metrics.NewBookingMetrics(reg), metrics.NewPaymentMetrics(reg)
}

func setupDeliverer(outbox events.Outbox, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *events.Deliverer {
	var handler events.DeliveryHandler = events.LogHandler{Logger: logger}
	if redisClient != nil {
		handler = events.NewStreamPublisher(redisClient, cfg.OutboxStream)
		logger.Info("publishing booking events to redis stream", "stream", cfg.OutboxStream)
	}
	return events.NewDeliverer(outbox, handler, logger).WithInterval(cfg.OutboxInterval)
}
