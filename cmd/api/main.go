// Package main は印刷中継サーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-print-relay/internal/config"
	"github.com/yourusername/pdf-print-relay/internal/jobs"
	"github.com/yourusername/pdf-print-relay/internal/logging"
	"github.com/yourusername/pdf-print-relay/internal/pdf"
	"github.com/yourusername/pdf-print-relay/internal/printer"
	"github.com/yourusername/pdf-print-relay/internal/relay"
	"github.com/yourusername/pdf-print-relay/internal/storage"
)

const (
	shutdownTimeout = 10 * time.Second
	// staleSpoolAge より古いスプールファイルは前回異常終了時の残骸とみなします。
	staleSpoolAge = time.Hour
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logging.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	srv, err := buildServer(cfg)
	if err != nil {
		logging.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	go func() {
		logging.Info("starting print relay", "addr", cfg.Addr(), "mode", cfg.GinMode)
		if err := srv.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	waitForShutdownSignal()

	logging.Warn("shutdown signal received, closing server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.shutdown(ctx); err != nil {
		logging.Error("server forced to shutdown", "error", err)
	}
	logging.Info("server stopped cleanly")
}

// waitForShutdownSignal は SIGINT/SIGTERM まで待ちます。SIGHUP ではログレベルを読み直します。
func waitForShutdownSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sig)

	for s := range sig {
		if s != syscall.SIGHUP {
			return
		}
		if err := reloadLogLevel(); err != nil {
			logging.Warn("failed to reload config", "error", err)
		}
	}
}

// reloadLogLevel は設定を読み直し、ログレベルだけを反映します。
func reloadLogLevel() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.SetLogLevel(cfg.Log.Level)
	logging.Info("log level reloaded", "level", cfg.Log.Level)
	return nil
}

// server は HTTP サーバーと印刷キューをまとめて停止するための束です。
type server struct {
	httpServer *http.Server
	manager    *jobs.Manager
	closeStore func()
}

// shutdown は印刷キューと HTTP サーバーを同時に止めます。
// キューを止めると印刷待ちのハンドラーが失敗で戻り、スプールファイルを消してから応答します。
func (s *server) shutdown(ctx context.Context) error {
	queueErr := make(chan error, 1)
	go func() {
		queueErr <- s.manager.Shutdown(ctx)
	}()

	httpErr := s.httpServer.Shutdown(ctx)
	err := errors.Join(httpErr, <-queueErr)
	s.closeStore()
	return err
}

// buildServer は依存関係を組み立てて server を返します。
func buildServer(cfg *config.Config) (*server, error) {
	spool, err := storage.NewSpool(cfg.SpoolDir)
	if err != nil {
		return nil, err
	}
	if removed, err := spool.Sweep(staleSpoolAge); err != nil {
		logging.Warn("failed to sweep spool directory", "dir", spool.Dir(), "error", err)
	} else if removed > 0 {
		logging.Info("removed stale spool files", "dir", spool.Dir(), "count", removed)
	}

	dispatcher := printer.NewExecDispatcher(printer.Options{
		UtilityPath: cfg.PrintUtilityPath,
		Timeout:     cfg.PrintTimeout,
	})
	if dispatcher.UtilityAvailable() {
		logging.Info("print utility found", "path", cfg.PrintUtilityPath)
	} else {
		name, _ := dispatcher.Command("<file>")
		logging.Warn("print utility not found, falling back to system print command",
			"path", cfg.PrintUtilityPath, "fallback", name)
	}

	manager, closeStore, err := setupJobs(cfg, dispatcher)
	if err != nil {
		return nil, err
	}
	manager.StartWorkers()

	logger := logging.Logger()
	service, err := relay.NewService(spool, pdf.NewNormalizer(), manager, logger.With().Str("component", "relay").Logger())
	if err != nil {
		_ = manager.Shutdown(context.Background())
		closeStore()
		return nil, err
	}

	router := relay.NewRouter(service, relay.RouterOptions{
		Logger:       logger.With().Str("component", "http").Logger(),
		MaxBodyBytes: cfg.MaxFileSize,
	})

	return &server{
		httpServer: &http.Server{
			Addr:              cfg.Addr(),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		manager:    manager,
		closeStore: closeStore,
	}, nil
}
