// Package main Helper Dispatch API
//
// @title           Helper Dispatch API
// @version         1.0
// @description     Отклики помощников, история и настройки уведомлений
//
// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT
//
// @host      localhost:8080
// @BasePath  /api/v1
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/helper-dispatch/internal/app/helperapi"
	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/logger"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	log := logger.New(cfg.Log)

	log.Info("starting helper-api", slog.String("env", cfg.Env))
	log.Debug("config loaded", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := helperapi.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	log.Info("helper-api stopped gracefully")
}
