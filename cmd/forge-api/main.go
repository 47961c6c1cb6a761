// Forge API — HTTP API платформы функций.
//
// Endpoints:
//   - синхронный вызов функции по HTTP
//   - запуск, просмотр и отмена сборок
//   - асинхронные выполнения
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Forge/internal/api"
	"github.com/shaiso/Forge/internal/config"
	"github.com/shaiso/Forge/internal/executions"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/realtime"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/runtimes"
	"github.com/shaiso/Forge/internal/telemetry"
	"github.com/shaiso/Forge/internal/usage"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-api")

	cfg, err := config.Load(os.Getenv("FORGE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	publisher := mq.NewPublisher(mqConn, logger)

	redisClient, err := realtime.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	var signer *executions.TokenSigner
	if cfg.JWTSecret != "" {
		signer, err = executions.NewTokenSigner(cfg.JWTSecret, executions.DefaultTokenTTL)
		if err != nil {
			logger.Error("failed to init token signer", "error", err)
			os.Exit(1)
		}
	}

	dispatcher, err := newDispatcher(cfg, pool, publisher, redisClient, signer, logger)
	if err != nil {
		logger.Error("failed to init dispatcher", "error", err)
		os.Exit(1)
	}

	hcfg := api.Config{
		Invoker:     dispatcher,
		Functions:   repo.NewFunctionRepo(pool),
		Deployments: repo.NewDeploymentRepo(pool),
		Builds:      repo.NewBuildRepo(pool),
		Executions:  repo.NewExecutionRepo(pool),
		Publisher:   publisher,
		Logger:      logger,
	}
	if signer != nil {
		hcfg.Tokens = signer
	}
	handler := api.NewHandler(hcfg)

	// Health и metrics рядом с API
	mux := telemetry.OpsMux()
	mux.Handle("/v1/", handler.Router(api.RouterConfig{
		OperatorToken:  cfg.OperatorToken,
		AllowedOrigins: cfg.AllowedOrigins,
	}))

	addr := ":" + cfg.Ports.API
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// newDispatcher собирает Dispatcher для синхронных вызовов.
func newDispatcher(cfg *config.Config, pool *pgxpool.Pool, publisher *mq.Publisher, redisClient *redis.Client, signer *executions.TokenSigner, logger *slog.Logger) (*executions.Dispatcher, error) {
	catalog, err := runtimes.Default()
	if cfg.RuntimesCatalog != "" {
		catalog, err = runtimes.Load(cfg.RuntimesCatalog)
	}
	if err != nil {
		return nil, err
	}

	dcfg := executions.Config{
		Functions:   repo.NewFunctionRepo(pool),
		Deployments: repo.NewDeploymentRepo(pool),
		Builds:      repo.NewBuildRepo(pool),
		Executions:  repo.NewExecutionRepo(pool),
		Invoker: executor.New(executor.Config{
			Endpoint: cfg.Executor.Endpoint,
			Secret:   cfg.Executor.Secret,
			Logger:   logger,
		}),
		Runtimes: catalog,
		Tokens:   signer,
		Events:   publisher,
		Notifier: realtime.NewNotifier(realtime.NewRedisPublisher(redisClient), logger),
		MaxWait:  cfg.Executor.MaxWait,
		CPUs:     cfg.Executor.CPUs,
		Memory:   cfg.Executor.Memory,
		Logger:   logger,
	}
	if cfg.UsageEnabled {
		dcfg.Usage = usage.NewQueueRecorder(publisher)
	}
	if cfg.GeoIPPath != "" {
		geo, err := executions.OpenMaxMind(cfg.GeoIPPath)
		if err != nil {
			return nil, err
		}
		dcfg.Geo = geo
	}
	return executions.NewDispatcher(dcfg), nil
}
