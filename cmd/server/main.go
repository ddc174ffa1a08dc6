// Command server starts the interview coach HTTP and WebSocket server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/interview-coach/internal/adapter/ai/gateway"
	"github.com/fairyhunter13/interview-coach/internal/adapter/auth"
	"github.com/fairyhunter13/interview-coach/internal/adapter/cache/redisx"
	httpserver "github.com/fairyhunter13/interview-coach/internal/adapter/httpserver"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/interview-coach/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/interview-coach/internal/adapter/ws"
	"github.com/fairyhunter13/interview-coach/internal/app"
	"github.com/fairyhunter13/interview-coach/internal/config"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	"github.com/fairyhunter13/interview-coach/internal/service/ratelimiter"
	"github.com/fairyhunter13/interview-coach/internal/usecase"
)

// redisPinger adapts redis.UniversalClient to app.RedisClient.
type redisPinger struct{ redis.UniversalClient }

func (r redisPinger) Ping(ctx context.Context) app.RedisPingResult {
	return r.UniversalClient.Ping(ctx)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so that /metrics
	// exposes HTTP, AI, credit and session instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	sessionRepo := postgres.NewSessionRepo(pool)
	creditRepo := postgres.NewCreditRepo(pool)

	if cfg.SessionRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(pool, cfg.SessionRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.SessionRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	// Infra: Redis for balance cache, balance push and AI rate limits
	rdb, err := redisx.NewClient(cfg.RedisURL)
	if err != nil {
		slog.Error("redis config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()
	notifier := redisx.NewNotifier(rdb)
	ledger := usecase.NewLedger(creditRepo, redisx.NewBalanceCache(rdb, cfg.BalanceCacheTTL), notifier)

	// Interview completion events are optional.
	var (
		publisher  domain.EventPublisher = redpanda.NoopPublisher{}
		kafkaProbe app.Pinger
	)
	if cfg.EventsEnabled() {
		producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.InterviewEventsTopic)
		if err != nil {
			slog.Error("redpanda producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("failed to close producer", slog.Any("error", err))
			}
		}()
		publisher = producer
		kafkaProbe = producer
	}

	// Usecases
	gw := gateway.New(cfg)
	evaluator := usecase.NewEvaluator(gw, cfg.AnalysisTemperature)
	interviewSvc := usecase.NewInterviewService(sessionRepo, ledger, gw, evaluator, publisher, usecase.InterviewConfig{
		Cost:            cfg.InterviewCost,
		TotalQuestions:  cfg.InterviewTotalQuestions,
		Temperature:     cfg.AITemperature,
		PersistDebounce: cfg.PersistDebounce,
		PersistTimeout:  cfg.PersistTimeout,
		TickInterval:    cfg.SessionTickInterval,
		IdleTTL:         cfg.SessionIdleTTL,
	})
	analysisSvc := usecase.NewAnalysisService(ledger, gw, usecase.AnalysisConfig{
		ResumeCost:  cfg.ResumeAnalysisCost,
		JobCost:     cfg.JobAnalysisCost,
		Temperature: cfg.AnalysisTemperature,
	})
	go app.NewIdleSessionSweeper(interviewSvc, time.Minute).Run(ctx)

	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		httpserver.AIRateLimitBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.AIRateLimitPerMin),
	})
	verifier := auth.NewVerifier(cfg.JWTSecret)
	if cfg.JWTSecret == "" {
		slog.Warn("JWT_SECRET is empty; all authenticated requests will be rejected")
	}
	hub := ws.NewHub(verifier, notifier, cfg.CORSAllowOrigins)

	dbCheck, redisCheck, kafkaCheck := app.BuildReadinessChecks(pool, redisPinger{rdb}, kafkaProbe)
	srv := httpserver.NewServer(interviewSvc, analysisSvc, ledger, dbCheck, redisCheck, kafkaCheck)
	handler := app.BuildRouter(cfg, app.Deps{Server: srv, Verifier: verifier, Limiter: limiter, WS: hub})

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
	hub.Close()
	// Stops session clocks and flushes pending session writes.
	interviewSvc.Shutdown()
	stop()
}
