package helperapi

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/delivery/receipt"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/health"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/helper/register"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/helper/status"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/notification/history"
	prefread "github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/preferences/read"
	prefupdate "github.com/magabrotheeeer/helper-dispatch/internal/http/handlers/preferences/update"
	"github.com/magabrotheeeer/helper-dispatch/internal/http/middlewarectx"
	"github.com/magabrotheeeer/helper-dispatch/internal/metrics"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/registry"
)

// RegisterRoutes регистрирует все маршруты API. Идентификаторы в пути произвольные
// строки и могут содержать точки, поэтому расширение формата из URL не выделяется.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg config.HTTPServer, db health.Pinger, registryService *registry.Service, notificationService *notifications.Service) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		metrics.HTTPMiddleware,
	)

	r.Get("/health", health.New(logger, db).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, cfg.RateLimit, cfg.RateBurst))

		r.Post("/requests/{requestID}/helpers", register.New(logger, registryService).ServeHTTP)
		r.Get("/requests/{requestID}/helpers/{subscriberID}", status.New(logger, registryService).ServeHTTP)

		r.Get("/subscribers/{subscriberID}/notifications", history.New(logger, notificationService).ServeHTTP)
		r.Get("/subscribers/{subscriberID}/preferences", prefread.New(logger, notificationService).ServeHTTP)
		r.Put("/subscribers/{subscriberID}/preferences", prefupdate.New(logger, notificationService).ServeHTTP)

		// Квитанции канала доставки
		r.Post("/deliveries/receipt", receipt.New(logger, notificationService).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
