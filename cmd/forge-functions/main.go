// Forge Functions — выполняет функции из очереди.
//
// Сервис:
//   - Читает задания выполнения (http, schedule) и события платформы
//   - Раздаёт события функциям-подписчикам
//   - Вызывает executor и сохраняет результат выполнения
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

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
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-functions")

	cfg, err := config.Load(os.Getenv("FORGE_CONFIG"))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()
	publisher := mq.NewPublisher(mqConn, logger)

	// Redis
	redisClient, err := realtime.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	dispatcher, closeGeo, err := newDispatcher(cfg, pool, publisher, redisClient, logger)
	if err != nil {
		logger.Error("failed to init dispatcher", "error", err)
		os.Exit(1)
	}
	defer closeGeo()

	worker := executions.NewWorker(executions.WorkerConfig{
		Dispatcher: dispatcher,
		Conn:       mqConn,
		Prefetch:   cfg.FunctionsPrefetch,
		Logger:     logger,
	})
	if err := worker.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	port := ":" + cfg.Ports.Functions
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, telemetry.OpsMux()); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	worker.Stop()
	logger.Info("forge-functions stopped")
}

// newDispatcher собирает Dispatcher. Возвращаемая функция закрывает базу GeoIP.
func newDispatcher(cfg *config.Config, pool *pgxpool.Pool, publisher *mq.Publisher, redisClient *redis.Client, logger *slog.Logger) (*executions.Dispatcher, func(), error) {
	catalog, err := runtimes.Default()
	if cfg.RuntimesCatalog != "" {
		catalog, err = runtimes.Load(cfg.RuntimesCatalog)
	}
	if err != nil {
		return nil, nil, err
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
	if cfg.JWTSecret != "" {
		signer, err := executions.NewTokenSigner(cfg.JWTSecret, executions.DefaultTokenTTL)
		if err != nil {
			return nil, nil, err
		}
		dcfg.Tokens = signer
	}

	closeGeo := func() {}
	if cfg.GeoIPPath != "" {
		geo, err := executions.OpenMaxMind(cfg.GeoIPPath)
		if err != nil {
			return nil, nil, err
		}
		dcfg.Geo = geo
		closeGeo = func() {
			if err := geo.Close(); err != nil {
				logger.Warn("failed to close geoip database", "error", err)
			}
		}
	}

	return executions.NewDispatcher(dcfg), closeGeo, nil
}
