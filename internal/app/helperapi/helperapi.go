// Package helperapi собирает HTTP API откликов помощников, истории и настроек уведомлений.
package helperapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/helper-dispatch/internal/cache"
	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/migrations"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/registry"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

// App HTTP-приложение.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *repository.Storage
	cache  *cache.Cache
}

// New подключает хранилище, применяет миграции и собирает роутер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Без Redis сервис работает напрямую с базой.
	var (
		registryCache registry.Cache
		redisCache    *cache.Cache
	)
	if cfg.Redis.Addr != "" {
		redisCache, err = cache.InitServer(ctx, cfg.Redis)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("cache not initialized: %w", err)
		}
		registryCache = redisCache
	} else {
		logger.Warn("redis address is empty, running without cache")
	}

	registryService := registry.New(logger, db, registryCache, cfg.Redis.CacheTTL, cfg.Matching.ContactLimit)
	notificationService := notifications.New(logger, db)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg.HTTPServer, db.DB, registryService, notificationService)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
		cache:  redisCache,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем плавно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.close()
		return err
	}
}

func (a *App) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Error("failed to close cache", sl.Err(err))
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
