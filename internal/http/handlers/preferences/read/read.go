// Package read отдает текущие настройки доставки подписчика.
package read

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/helper-dispatch/internal/http/response"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
)

// Handler обрабатывает чтение настроек.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение настроек подписчика.
type Service interface {
	Preferences(ctx context.Context, subscriberID string) (*models.Preferences, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Настройки уведомлений
// @Tags Notifications
// @Produce  json
// @Param subscriberID path string true "ID подписчика"
// @Success 200 {object} response.Response "Текущие настройки"
// @Failure 404 {object} response.ErrorResponse "Подписчик не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscribers/{subscriberID}/preferences [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.preferences.read"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	prefs, err := h.service.Preferences(r.Context(), chi.URLParam(r, "subscriberID"))
	if errors.Is(err, notifications.ErrSubscriberNotFound) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("subscriber not found"))
		return
	}
	if err != nil {
		log.Error("failed to read preferences", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read preferences"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(prefs))
}
