// Forge Builds — собирает деплойменты функций.
//
// Сервис:
//   - Получает задания сборки из RabbitMQ
//   - Готовит исходники (шаблон, репозиторий или загруженный архив)
//   - Создаёт runtime на builder'е и стримит лог сборки
//   - Обновляет build, deployment и расписание функции
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

	"github.com/shaiso/Forge/internal/artifacts"
	"github.com/shaiso/Forge/internal/builds"
	"github.com/shaiso/Forge/internal/config"
	"github.com/shaiso/Forge/internal/executor"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/realtime"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/runtimes"
	"github.com/shaiso/Forge/internal/telemetry"
	"github.com/shaiso/Forge/internal/usage"
	"github.com/shaiso/Forge/internal/vcs"
	"github.com/shaiso/Forge/internal/workspace"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-builds")

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

	// Redis: realtime и, опционально, блокировки комментариев
	redisClient, err := realtime.Connect(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	device, err := newArtifactStore(ctx, cfg)
	if err != nil {
		logger.Error("failed to init artifact storage", "error", err)
		os.Exit(1)
	}

	catalog, err := loadCatalog(cfg.RuntimesCatalog)
	if err != nil {
		logger.Error("failed to load runtimes catalog", "error", err)
		os.Exit(1)
	}

	ws, err := workspace.New(cfg.WorkspaceRoot)
	if err != nil {
		logger.Error("failed to init workspace", "error", err)
		os.Exit(1)
	}

	builderClient := executor.New(executor.Config{
		Endpoint: cfg.Executor.Endpoint,
		Secret:   cfg.Executor.Secret,
		Logger:   logger,
	})

	var recorder usage.Recorder
	if cfg.UsageEnabled {
		recorder = usage.NewQueueRecorder(publisher)
	}

	orchCfg := builds.Config{
		Functions:   repo.NewFunctionRepo(pool),
		Deployments: repo.NewDeploymentRepo(pool),
		Builds:      repo.NewBuildRepo(pool),
		Schedules:   repo.NewScheduleRepo(pool),
		Builder:     builderClient,
		Artifacts:   device,
		Runtimes:    catalog,
		Workspace:   ws,
		Events:      publisher,
		Usage:       recorder,
		Notifier:    realtime.NewNotifier(realtime.NewRedisPublisher(redisClient), logger),
		Conn:        mqConn,
		SizeLimit:   cfg.SizeLimit,
		CPUs:        cfg.Executor.CPUs,
		Memory:      cfg.Executor.Memory,
		Logger:      logger,
	}

	if cfg.GitHub.AppID != "" {
		provider, err := newGitProvider(cfg, pool, redisClient, logger)
		if err != nil {
			logger.Error("failed to init github provider", "error", err)
			os.Exit(1)
		}
		orchCfg.Git = provider
	} else {
		logger.Warn("github app is not configured, vcs builds are disabled")
	}

	orch := builds.New(orchCfg)
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start build orchestrator", "error", err)
		os.Exit(1)
	}

	port := ":" + cfg.Ports.Builds
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, telemetry.OpsMux()); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	orch.Stop()
	logger.Info("forge-builds stopped")
}

func newArtifactStore(ctx context.Context, cfg *config.Config) (builds.ArtifactStore, error) {
	if cfg.Storage.Device == "local" {
		return artifacts.NewLocalDevice(cfg.Storage.LocalRoot), nil
	}

	device, err := artifacts.NewS3Device(artifacts.S3Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if err := device.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return device, nil
}

func loadCatalog(path string) (*runtimes.Catalog, error) {
	if path == "" {
		return runtimes.Default()
	}
	return runtimes.Load(path)
}

func newGitProvider(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*vcs.Provider, error) {
	api, err := vcs.NewGitHub(vcs.GitHubConfig{
		AppID:      cfg.GitHub.AppID,
		PrivateKey: cfg.GitHub.PrivateKey,
		APIURL:     cfg.GitHub.APIURL,
	})
	if err != nil {
		return nil, err
	}

	var locker vcs.Locker
	switch cfg.LockBackend {
	case "redis":
		locker = vcs.NewRedisLocker(redisClient, time.Minute)
	default:
		locker = repo.NewCommentLockRepo(pool)
	}

	return vcs.NewProvider(vcs.ProviderConfig{
		API:        api,
		Git:        &vcs.Git{AuthorName: "Forge", AuthorEmail: "noreply@forge.local"},
		Locker:     locker,
		ConsoleURL: cfg.ConsoleURL,
		Logger:     logger,
	}), nil
}
