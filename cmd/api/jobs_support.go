package main

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/pdf-print-relay/internal/config"
	"github.com/yourusername/pdf-print-relay/internal/jobs"
	"github.com/yourusername/pdf-print-relay/internal/logging"
	"github.com/yourusername/pdf-print-relay/internal/printer"
)

// setupJobs は履歴ストアと印刷キューを構築します。
// HistoryRedisURL が空ならメモリ上に履歴を保持します。戻り値の closer で Redis 接続を閉じます。
func setupJobs(cfg *config.Config, dispatcher printer.Dispatcher) (*jobs.Manager, func(), error) {
	store, closer, err := newJobStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	manager, err := jobs.NewManager(store, dispatcher, jobs.ManagerOptions{
		Workers:   cfg.PrintWorkers,
		QueueSize: cfg.PrintQueueSize,
		Logger:    logging.Logger().With().Str("component", "jobs").Logger(),
	})
	if err != nil {
		closer()
		return nil, nil, err
	}
	return manager, closer, nil
}

func newJobStore(cfg *config.Config) (jobs.Store, func(), error) {
	if cfg.HistoryRedisURL == "" {
		return jobs.NewMemoryStore(cfg.JobTTL()), func() {}, nil
	}

	opt, err := redis.ParseURL(cfg.HistoryRedisURL)
	if err != nil {
		return nil, nil, err
	}
	redisClient := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// 接続できない場合はメモリに切り替える
		logging.Warn("job history redis unreachable, using memory store", "error", err)
		_ = redisClient.Close()
		return jobs.NewMemoryStore(cfg.JobTTL()), func() {}, nil
	}

	logging.Info("job history stored in redis", "addr", opt.Addr, "db", opt.DB)
	return jobs.NewRedisStore(redisClient, cfg.JobTTL()), func() { _ = redisClient.Close() }, nil
}
