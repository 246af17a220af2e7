package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/listhub/payment-service/internal/adapters/netopia"
	"github.com/listhub/payment-service/internal/adapters/postgres"
	"github.com/listhub/payment-service/internal/adapters/redisledger"
	"github.com/listhub/payment-service/internal/config"
	"github.com/listhub/payment-service/internal/domain/ports"
	checkouthandlers "github.com/listhub/payment-service/internal/handlers/checkout"
	checkoutsvc "github.com/listhub/payment-service/internal/services/checkout"
	"github.com/listhub/payment-service/internal/services/order"
	"github.com/listhub/payment-service/pkg/middleware"
	"github.com/listhub/payment-service/pkg/observability"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer logger.Sync()

	logger.Info("Starting payment service",
		zap.String("version", "0.1.0"),
		zap.Bool("sandbox", cfg.Gateway.Sandbox),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Gateway credentials: secrets backend wins over plain env
	gwCfg := resolveGatewayConfig(ctx, cfg, logger)
	if !gwCfg.Configured() {
		logger.Warn("payment gateway has no credentials; start-payment calls will be rejected")
	}

	// PostgreSQL
	dbCfg := postgres.DefaultConfig(cfg.Database.ConnectionString())
	dbCfg.MaxConns = cfg.Database.MaxConns
	dbCfg.MinConns = cfg.Database.MinConns
	dbPool, err := postgres.NewPool(ctx, dbCfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbPool.Close()

	// Redis, backing the transaction ledger
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	// Adapters
	ledger := redisledger.NewLedger(redisClient, logger)
	store := postgres.NewStore(dbPool, logger)
	invoices := postgres.NewInvoiceRepository(dbPool)
	markers := postgres.NewMarkerRepository(dbPool)

	gatewayClientCfg := netopia.DefaultClientConfig()
	gatewayClientCfg.Timeout = time.Duration(cfg.Gateway.Timeout) * time.Second
	gateway := netopia.NewClient(gatewayClientCfg, logger).WithGateway(gwCfg)

	// Services
	builder := order.NewBuilder(
		order.PricingConfig{
			ListingPrice:       cfg.Pricing.ListingPrice,
			FeaturedPrice:      cfg.Pricing.FeaturedPrice,
			ListingTaxPercent:  cfg.Pricing.ListingTaxPercent,
			FeaturedTaxPercent: cfg.Pricing.FeaturedTaxPercent,
		},
		order.URLConfig{BaseURL: cfg.Server.BaseURL},
		cfg.Gateway.Currency,
		store, store, store,
		ledger,
		logger,
	)

	completer := checkoutsvc.NewCompleter(
		store, store, invoices, markers,
		ports.ListingPublishPolicy{
			AdminApproval:        cfg.Policy.AdminApproval,
			PerListingSubmission: cfg.Policy.PerListingSubmission,
		},
		cfg.Gateway.Currency,
		logger,
	)

	service := checkoutsvc.NewService(gateway, ledger, builder, completer, gwCfg, cfg.Server.LandingURL, logger)

	// Handlers
	startHandler := checkouthandlers.NewStartHandler(service, logger)
	callbackHandler := checkouthandlers.NewCallbackHandler(service, logger)

	// Public endpoints are rate limited per client IP
	limiter := middleware.NewRateLimiter(5, 10)
	defer limiter.Shutdown()

	mux := http.NewServeMux()
	route(mux, "POST /api/v1/checkout/package", limiter, startHandler.HandlePackage)
	route(mux, "POST /api/v1/checkout/listing", limiter, startHandler.HandleListing)
	route(mux, "GET /payments/netopia/return", limiter, callbackHandler.HandleReturn)
	route(mux, "POST /payments/netopia/return", limiter, callbackHandler.HandleReturn)
	route(mux, "POST /payments/netopia/ipn", limiter, callbackHandler.HandleNotification)

	// Metrics and health server
	healthChecker := observability.NewHealthChecker(dbPool, redisClient)
	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), healthChecker, logger)
	logger.Info("Metrics server started", zap.Int("port", cfg.Server.MetricsPort))

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to serve HTTP", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}

// route registers a handler with rate limiting and request metrics.
func route(mux *http.ServeMux, pattern string, limiter *middleware.RateLimiter, handler http.HandlerFunc) {
	mux.Handle(pattern, observability.HTTPMetricsMiddleware(pattern, limiter.Middleware(handler)))
}

func initLogger(cfg config.LoggerConfig) *zap.Logger {
	if cfg.Development {
		logger, _ := zap.NewDevelopment()
		return logger
	}

	zapCfg := zap.NewProductionConfig()
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
