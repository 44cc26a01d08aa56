package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/helper-dispatch/internal/app/dispatcher"
	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/logger"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Log)

	log.Info("starting dispatcher", slog.String("env", cfg.Env), slog.String("channel", cfg.Notifier.Channel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := dispatcher.New(cfg, log)
	if err != nil {
		log.Error("failed to initialize dispatcher", sl.Err(err))
		os.Exit(1)
	}
	if err := app.Run(ctx); err != nil {
		log.Error("dispatcher stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("dispatcher stopped gracefully")
}
