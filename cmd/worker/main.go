package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"trackio.app/trackio/common/id"
	"trackio.app/trackio/common/logger"
	"trackio.app/trackio/common/otel"
	"trackio.app/trackio/core/config"
	"trackio.app/trackio/core/db"
	"trackio.app/trackio/internal/queue"
	"trackio.app/trackio/internal/store"
	"trackio.app/trackio/internal/worker"
)

// txRunnerAdapter binds the worker's transaction contract to the pgx pool.
type txRunnerAdapter struct {
	db *db.DB
}

func (a *txRunnerAdapter) WithTx(ctx context.Context, fn func(stores worker.StoreProvider) error) error {
	return a.db.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(store.NewStores(tx))
	})
}

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	slog.InfoContext(ctx, "trackio worker starting",
		"env", cfg.Env,
		"interval", cfg.Aggregator.Interval,
		"max_messages_per_run", cfg.Aggregator.MaxMessagesPerRun)

	// Different node ID than the server so snowflake IDs never collide.
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "queue", cfg.Redis.QueueKey, "lock", cfg.Redis.LockKey)

	workQueue := queue.NewRedisQueue(redisClient, cfg.Redis.QueueKey, slog.Default())
	locker := queue.NewRedisLocker(redisClient)

	aggregator := worker.NewAggregator(
		workQueue,
		locker,
		&txRunnerAdapter{db: database},
		cfg.Redis.LockKey,
		cfg.Aggregator,
		slog.Default(),
	)
	runner := worker.NewRunner(aggregator, cfg.Aggregator.Interval)

	errCh := make(chan error, 1)
	go func() {
		errCh <- runner.Run(ctx)
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		slog.InfoContext(ctx, "shutting down...")
		runner.Stop()
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "runner exited with error", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

const banner = `
████████╗██████╗  █████╗  ██████╗██╗  ██╗██╗ ██████╗
╚══██╔══╝██╔══██╗██╔══██╗██╔════╝██║ ██╔╝██║██╔═══██╗
   ██║   ██████╔╝███████║██║     █████╔╝ ██║██║   ██║
   ██║   ██╔══██╗██╔══██║██║     ██╔═██╗ ██║██║   ██║
   ██║   ██║  ██║██║  ██║╚██████╗██║  ██╗██║╚██████╔╝
   ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝ ╚═════╝╚═╝  ╚═╝╚═╝ ╚═════╝
                                    worker
`
