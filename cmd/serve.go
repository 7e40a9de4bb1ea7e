package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eaglebank/transactions-svc/internal/broadcast"
	txcmd "github.com/eaglebank/transactions-svc/internal/command"
	"github.com/eaglebank/transactions-svc/internal/handler"
	"github.com/eaglebank/transactions-svc/internal/metrics"
	txqry "github.com/eaglebank/transactions-svc/internal/query"
	"github.com/eaglebank/transactions-svc/internal/repository"
	"github.com/eaglebank/transactions-svc/internal/risk"
	"github.com/eaglebank/transactions-svc/internal/seed"
	"github.com/eaglebank/transactions-svc/shared/events"
	"github.com/eaglebank/transactions-svc/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		in, err := setup(ctx)
		if err != nil {
			return err
		}
		defer in.close()
		return serve(ctx, in)
	},
}

func serve(ctx context.Context, in *infra) error {
	cfg, logger := in.cfg, in.logger

	accountRepo := repository.NewAccountRepository(in.db)
	writeRepo := repository.NewTransactionWriteRepository(in.db)
	readRepo := repository.NewTransactionReadRepository(in.db, in.redis.Client, cfg.ViewCacheTTL, logger)
	ruleRepo := repository.NewRiskRuleRepository(in.pg)

	if cfg.SeedOnStart {
		if err := seed.Run(ctx, ruleRepo, accountRepo, logger); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	local := risk.NewLocalEvaluator(ruleRepo, risk.NewBlockingPool(cfg.RiskFallbackWorkers), logger)
	gate := risk.NewRemoteGate(risk.GateConfig{
		BaseURL:   cfg.RiskBaseURL,
		MockDelay: cfg.RiskMockDelay,
		Timeout:   cfg.RiskTimeout,
		Retry: risk.RetryPolicy{
			MaxAttempts: cfg.RiskRetryMaxAttempts,
			BaseDelay:   cfg.RiskRetryBackoff,
			MaxDelay:    cfg.RiskRetryMaxBackoff,
		},
		Breaker: risk.BreakerSettings{
			MaxRequests:         cfg.BreakerHalfOpenMax,
			Interval:            cfg.BreakerInterval,
			OpenTimeout:         cfg.BreakerOpenTimeout,
			MinRequests:         cfg.BreakerMinRequests,
			FailureRatio:        cfg.BreakerFailureRatio,
			ConsecutiveFailures: cfg.BreakerConsecutiveFails,
		},
	}, local, logger, m)

	broadcaster := broadcast.New(cfg.StreamBufferSize, logger, m)
	relay := broadcast.NewRelay(in.redis.Client, broadcaster, cfg.InstanceID, logger)

	commandSvc := txcmd.NewTransactionCommandService(txcmd.Dependencies{
		Accounts:     accountRepo,
		Transactions: writeRepo,
		Risk:         gate,
		Transactor:   in.transactor(),
		Broadcaster:  broadcaster,
		Publisher:    events.NewPublisher(in.redis.Client, cfg.InstanceID, cfg.EventStreamMaxLen),
		Cache:        readRepo,
		Recorder:     m,
		Logger:       logger,
	})
	querySvc := txqry.NewTransactionQueryService(readRepo, accountRepo, broadcaster, logger)

	router := newRouter(cfg.Environment, []byte(cfg.JWTSecret), logger,
		handler.NewTransactionHandler(commandSvc, querySvc, logger),
		handler.NewRiskHandler(ruleRepo),
		gate,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
	)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET is empty, write routes are unauthenticated")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("transactions service starting",
			zap.String("port", cfg.ServerPort),
			zap.String("instance", cfg.InstanceID))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return relay.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		// Closing the broadcaster ends open streams so Shutdown can drain.
		broadcaster.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type breakerReporter interface {
	BreakerState() string
}

func newRouter(environment string, jwtSecret []byte, logger *zap.Logger, tx *handler.TransactionHandler, rk *handler.RiskHandler, breaker breakerReporter, metricsHandler http.Handler) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationMiddleware(), middleware.LoggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "riskBreaker": breaker.BreakerState()})
	})
	router.GET("/metrics", gin.WrapH(metricsHandler))

	api := router.Group("/api")
	{
		api.POST("/transactions", middleware.AuthMiddleware(jwtSecret), tx.CreateTransaction)
		api.GET("/transactions", tx.ListTransactions)
		api.GET("/transactions/:transactionId", tx.GetTransaction)
		api.GET("/stream/transactions", tx.StreamTransactions)
	}

	router.GET("/mock/risk/allow", rk.Allow)
	return router
}
