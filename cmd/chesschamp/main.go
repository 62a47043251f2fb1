package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/abmercy035/chesschamp-api/internal/chessbuilder"
	appcfg "github.com/abmercy035/chesschamp-api/internal/config"
	"github.com/abmercy035/chesschamp-api/internal/obslog"
)

func main() {
	// .env is optional; real environment wins.
	_ = godotenv.Load()

	logger, err := obslog.Init(obslog.OptionsFromEnv())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg)
	if err != nil {
		logger.Fatal("chess_init_error", zap.Error(err))
	}
	deps.Scheduler.Start()
	logger.Info("chesschamp_started",
		zap.Duration("reaper_interval", cfg.ReaperInterval),
		zap.Duration("stale_after", cfg.StaleAfter),
		zap.Duration("no_show_grace", cfg.NoShowGrace),
	)

	<-ctx.Done()
	logger.Info("chesschamp_stopping")

	done := make(chan error, 1)
	go func() { done <- deps.Close() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Warn("shutdown_error", zap.Error(err))
		}
	case <-time.After(15 * time.Second):
		logger.Warn("shutdown_timeout")
	}
}
