package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainremit/config"
	"chainremit/internal/adapter/gateway"
	httpHandler "chainremit/internal/adapter/http/handler"
	"chainremit/internal/adapter/notify"
	pgStorage "chainremit/internal/adapter/storage/postgres"
	redisStorage "chainremit/internal/adapter/storage/redis"
	"chainremit/internal/core/ports"
	"chainremit/internal/service"
	"chainremit/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting ChainRemit")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize NATS connection
	nc, err := notify.Connect(cfg.NATS, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to NATS")
	}
	defer nc.Close()
	log.Info().Msg("NATS connected")

	// Initialize repositories
	txRepo := pgStorage.NewTransactionRepo(pool)
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	cardRepo := pgStorage.NewCardRepo(pool)
	rateRepo := pgStorage.NewRateRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	rateCache := redisStorage.NewRateCache(rdb, cfg.Rates.CacheTTL)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize the card vault. A hex key takes precedence; otherwise the
	// key is derived from passphrase+salt.
	var vault ports.CardVault
	if cfg.Vault.Key != "" {
		vault, err = service.NewCardVault(cfg.Vault.Key)
	} else {
		vault, err = service.NewCardVaultFromPassphrase(cfg.Vault.Passphrase, cfg.Vault.Salt)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize card vault")
	}

	// Initialize gateway adapters
	httpClient := &http.Client{Timeout: 30 * time.Second}

	stripeAPI := gateway.NewStripeClient(cfg.Stripe.SecretKey)
	funding := gateway.NewStripeFunding(stripeAPI, vault, log)

	settlementRouter := gateway.NewSettlementRouter(
		gateway.NewHTTPSettlementGateway("stellar", cfg.Gateway.StellarURL, httpClient, log),
		gateway.NewHTTPSettlementGateway("ethereum", cfg.Gateway.EthereumURL, httpClient, log),
		gateway.NewHTTPSettlementGateway("polygon", cfg.Gateway.PolygonURL, httpClient, log),
	)
	payout := gateway.NewHTTPPayoutGateway(cfg.Gateway.PayoutURL, httpClient, log)
	bankVerifier := gateway.NewHTTPBankVerifier(cfg.Gateway.BankVerifyURL, httpClient)
	primaryRates := gateway.NewHTTPRateSource("primary", cfg.Rates.PrimaryURL, httpClient)
	fallbackRates := gateway.NewHTTPRateSource("fallback", cfg.Rates.FallbackURL, httpClient)

	// Initialize notifier
	notifier := notify.NewNatsNotifier(nc, cfg.NATS.Subject, log)

	// Initialize core services
	feeSchedule, err := cfg.Fees.Schedule()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid fee schedule")
	}
	feeSvc, err := service.NewFeeService(feeSchedule)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize fee service")
	}
	converterSvc := service.NewConverterService(
		rateCache,
		primaryRates,
		fallbackRates,
		rateRepo,
		cfg.Rates.SettlementCurrency,
		log,
	)

	// Initialize business services
	transferSvc := service.NewTransferService(
		txRepo,
		balanceRepo,
		cardRepo,
		transactor,
		feeSvc,
		converterSvc,
		funding,
		settlementRouter,
		payout,
		bankVerifier,
		notifier,
		cfg.Rates.Currencies,
		service.GatewayTimeouts{
			Funding:    cfg.Gateway.FundingTimeout,
			Settlement: cfg.Gateway.SettlementTimeout,
			Payout:     cfg.Gateway.PayoutTimeout,
		},
		log,
	)
	cardSvc := service.NewCardService(
		cardRepo,
		txRepo,
		transactor,
		vault,
		funding,
		notifier,
		cfg.Fees.CardAdditionFee,
		cfg.Rates.Currencies[0],
		cfg.Gateway.FundingTimeout,
		log,
	)

	// Start the reconciler: resolves transactions whose gateway outcome
	// was unknown at request time.
	reconciler := service.NewReconciler(
		txRepo,
		balanceRepo,
		transactor,
		funding,
		settlementRouter,
		payout,
		notifier,
		cfg.Recon.Interval,
		log,
	)
	reconCtx, stopRecon := context.WithCancel(ctx)
	defer stopRecon()
	go reconciler.Run(reconCtx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		CardSvc:        cardSvc,
		BalanceRepo:    balanceRepo,
		JWTSecret:      cfg.Auth.JWTSecret,
		JWTIssuer:      cfg.Auth.Issuer,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopRecon()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
