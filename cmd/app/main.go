// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"

	"xtrace-checkout/internal/application"
	"xtrace-checkout/internal/config"
	"xtrace-checkout/internal/domain/model"
	"xtrace-checkout/internal/domain/ports/adapter"
	"xtrace-checkout/internal/domain/ports/repository"
	"xtrace-checkout/internal/infra/adapters/backend"
	payAdapters "xtrace-checkout/internal/infra/adapters/payment"
	"xtrace-checkout/internal/infra/api"
	pg "xtrace-checkout/internal/infra/db/postgres"
	"xtrace-checkout/internal/infra/logging"
	"xtrace-checkout/internal/infra/metrics"
	red "xtrace-checkout/internal/infra/redis"
	"xtrace-checkout/internal/infra/sched"
	"xtrace-checkout/internal/infra/worker"
	"xtrace-checkout/internal/usecase"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)

	// ---- Ledger backend ----
	ledger := backend.NewClient(cfg.Backend, logger)
	var catalog adapter.CouponCatalog = ledger

	// ---- Redis (optional) ----
	opts := application.FacadeOptions{
		DefaultCurrency: cfg.Checkout.DefaultCurrency,
		LockTTL:         cfg.Checkout.FlowLockTTL,
	}
	if strings.TrimSpace(cfg.Redis.URL) != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		catalog = red.NewCouponCache(ledger, redisClient, cfg.Redis.TTL, logger)
		opts.Locker = red.NewLocker(redisClient)
		opts.Limiter = red.NewRateLimiter(redisClient, cfg.Checkout.CouponAttempts, cfg.Checkout.CouponWindow)
		logger.Info().Msg("redis enabled: coupon cache, per-user payment lock, coupon rate limit")
	}

	// ---- Postgres (optional) ----
	var (
		pool     *pgxpool.Pool
		receipts repository.ReceiptRepository
	)
	if strings.TrimSpace(cfg.Database.URL) != "" {
		pool, err = pg.Connect(ctx, cfg.Database)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres")
		}
		defer pool.Close()
		receipts = pg.NewReceiptRepo(pool)
		logger.Info().Msg("postgres enabled: receipts are journaled")
	}

	// ---- Payment gateway ----
	var (
		gateway adapter.PaymentGateway
		hosted  api.HostedCheckout
	)
	switch strings.ToLower(cfg.Gateway.Mode) {
	case "noop":
		gateway = payAdapters.NewNoopPaymentGateway(cfg.Gateway.Secret)
		logger.Warn().Msg("noop payment gateway: every payment succeeds immediately")
	default:
		hg, err := payAdapters.NewHostedGateway(cfg.Gateway, nil, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("hosted gateway")
		}
		gateway, hosted = hg, hg
	}

	// ---- Use cases ----
	balances := usecase.NewBalanceUseCase(ledger, logger)
	checkoutUC := usecase.NewCheckoutUseCase(usecase.CheckoutDeps{
		Eligibility: usecase.NewEligibilityUseCase(ledger, logger),
		Balances:    balances,
		Coupons:     usecase.NewCouponUseCase(catalog, ledger, logger),
		Amounts:     usecase.NewAmountUseCase(ledger, logger),
		Effects:     usecase.NewEffectDispatcher(ledger, balances, logger),
		Backend:     ledger,
		Gateway:     gateway,
		Receipts:    receipts,
	}, logger)

	// ---- Facade ----
	sessions := application.NewSessionRegistry(checkoutUC)
	flows := worker.NewPool(cfg.Checkout.Workers, logger)
	flows.Start(ctx)
	facade := application.NewCheckoutFacade(sessions, flows, opts, logger)

	// ---- HTTP API ----
	srv := api.NewServer(facade, receipts, hosted, cfg.HTTP, cfg.Gateway.CallbackPath, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Housekeeping ----
	var onTick []func(context.Context)
	if pool != nil {
		onTick = append(onTick, func(context.Context) { pg.ReportPoolStats(pool) })
	}
	sweeper := sched.NewSessionSweeper(sessions, cfg.Checkout.SweepInterval, cfg.Checkout.SessionTTL, logger, onTick...)
	go sweeper.Start(ctx)
	if receipts != nil {
		monitor := sched.NewFollowUpMonitor(receipts, cfg.Checkout.FollowUpEvery, logger).WithReadTx(pg.NewTxManager(pool))
		go monitor.Start(ctx)
	}

	logger.Info().
		Str("version", version).
		Str("gateway", gateway.Name()).
		Strs("purposes", []string{
			model.PurposeWalletTopup.String(),
			model.PurposeCardTopup.String(),
			model.PurposeSubscription.String(),
			model.PurposeBooking.String(),
		}).
		Msg("checkout service started")

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
	flows.Stop()
	logger.Info().Int("sessions", sessions.Len()).Msg("stopped")
}
