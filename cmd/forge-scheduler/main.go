// Forge Scheduler — ставит выполнения функций по cron-расписанию.
//
// Тики выполняет только лидер (pg_advisory_lock), остальные экземпляры ждут.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Forge/internal/config"
	"github.com/shaiso/Forge/internal/mq"
	"github.com/shaiso/Forge/internal/repo"
	"github.com/shaiso/Forge/internal/scheduler"
	"github.com/shaiso/Forge/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting forge-scheduler")

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

	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Error("failed to connect to RabbitMQ", "error", err)
		os.Exit(1)
	}
	defer mqConn.Close()

	sched := scheduler.New(scheduler.Config{
		Schedules: repo.NewScheduleRepo(pool),
		Publisher: mq.NewPublisher(mqConn, logger),
		Leader:    repo.NewAdvisoryLock(pool, schedLockKey),
		Logger:    logger,
		BatchSize: cfg.SchedulerBatchSize,
		Interval:  cfg.SchedulerTick,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx)
	}()

	port := ":" + cfg.Ports.Scheduler
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, telemetry.OpsMux()); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	<-done
	logger.Info("forge-scheduler stopped")
}
