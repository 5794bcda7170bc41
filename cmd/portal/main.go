package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/helixcare/portal-core/internal/anchor"
	"github.com/helixcare/portal-core/internal/audit"
	"github.com/helixcare/portal-core/internal/infra"
	"github.com/helixcare/portal-core/internal/infra/auth"
	"github.com/helixcare/portal-core/internal/portal/handler"
	"github.com/helixcare/portal-core/internal/portal/server"
	"github.com/helixcare/portal-core/internal/portal/service"
	"github.com/helixcare/portal-core/internal/repository/postgres"
	"golang.org/x/time/rate"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	// 2. Инфраструктура и ресурсы
	if cfg.Database.URL == "" {
		logger.Fatal("database.url (or DATABASE_URL env) is required")
	}
	db, err := postgres.Open(cfg.Database.URL)
	if err != nil {
		logger.Fatal("failed to open postgres", zap.Error(err))
	}
	defer db.Close()

	// Проверяем соединение с таймаутом
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	cancelPing()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	eventRepo := postgres.NewEventRepo(db)
	batchRepo := postgres.NewBatchRepo(db)
	userRepo := postgres.NewUserRepo(db)

	// 3. Ledger-клиент с предохранителями (Circuit Breaker + Rate Limiter)
	ledgerHTTP := anchor.NewLedgerClient(cfg.Ledger.Endpoint, cfg.Ledger.AnchorTimeout, logger)
	ledger := anchor.NewReliabilityWrapper(ledgerHTTP, anchor.ReliabilityConfig{
		MaxRequests: cfg.Ledger.CBMaxRequests,
		Interval:    cfg.Ledger.CBInterval,
		Timeout:     cfg.Ledger.CBTimeout,
		RateLimit:   rate.Limit(cfg.Ledger.RateLimit),
		Burst:       cfg.Ledger.RateBurst,
	})

	// 4. Метрики
	reg := prometheus.NewRegistry()
	metrics := audit.NewMetrics(reg)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics exporter started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics exporter stopped", zap.Error(err))
		}
	}()

	// 5. Ядро аудита
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engine := audit.NewEngine(
		audit.Config{
			BatchInterval:      cfg.Audit.BatchInterval,
			PollInterval:       cfg.Audit.PollInterval,
			MaxBatchSize:       cfg.Audit.MaxBatchSize,
			AnchorTimeout:      cfg.Ledger.AnchorTimeout,
			ReconcileAttempts:  cfg.Audit.ReconcileAttempts,
			ReconcileBaseDelay: cfg.Audit.ReconcileBaseDelay,
		},
		eventRepo,
		batchRepo,
		ledger,
		metrics,
		infra.NewBatchSignal(rdb, logger),
		logger,
	)

	// Recovery sweep: добираем события, осиротевшие после прошлого
	// рестарта. Под SetNX-локом, чтобы реплики не работали дважды.
	if cfg.Audit.RecoverySweep {
		runRecoverySweep(appCtx, engine, rdb, cfg.Audit.RecoveryCutoff, logger)
	}

	go engine.Run(appCtx)

	verifier := audit.NewVerifier(
		eventRepo, batchRepo, ledger,
		infra.NewVerifyCache(rdb, cfg.Audit.VerifyCacheTTL, logger),
		logger,
	)

	// 6. Инициализация слоев (Dependency Injection)
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("failed to parse private key", zap.Error(err))
	}
	publicKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("failed to parse public key", zap.Error(err))
	}

	authService := service.NewAuthService(userRepo, privateKey, cfg.Auth.TokenTTL)
	auditService := service.NewAuditService(engine, eventRepo, batchRepo, verifier)

	srv := server.NewPortalServer(
		cfg,
		logger,
		auth.NewBaseValidator(publicKey),
		handler.NewAuthHandler(authService),
		handler.NewAuditHandler(auditService),
	)

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("portal audit API started", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown: сначала перестаем принимать запросы, затем
	// останавливаем планировщик — он доливает буфер финальным батчем
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}

	cancel() // Останавливает engine.Run, тот делает финальный drain
	time.Sleep(500 * time.Millisecond)
	logger.Info("bye")
}

// runRecoverySweep берет распределенный лок и добирает unlinked-события
// старше отсечки в буфер движка.
func runRecoverySweep(ctx context.Context, engine *audit.Engine, rdb *redis.Client, cutoff time.Duration, logger *zap.Logger) {
	locked, err := rdb.SetNX(ctx, infra.RedisKeyRecoveryLock, "1", time.Minute).Result()
	if err != nil {
		logger.Warn("recovery sweep lock unavailable, skipping", zap.Error(err))
		return
	}
	if !locked {
		logger.Info("recovery sweep already running on another replica")
		return
	}

	count, err := engine.RecoverOrphans(ctx, cutoff)
	if err != nil {
		logger.Error("recovery sweep failed", zap.Error(err))
		return
	}
	if count > 0 {
		logger.Info("recovery sweep re-buffered orphaned events", zap.Int("count", count))
	}
}
