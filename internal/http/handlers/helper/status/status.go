// Package status отдает состояние отклика подписчика на запрос о помощи.
package status

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
	"github.com/magabrotheeeer/helper-dispatch/internal/services/registry"
)

// Handler обрабатывает запросы статуса помощника.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение статуса помощника.
type Service interface {
	Status(ctx context.Context, requestID, subscriberID string) (*models.HelperStatus, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary Статус помощника
// @Tags Helpers
// @Produce  json
// @Param requestID path string true "ID запроса о помощи"
// @Param subscriberID path string true "ID подписчика"
// @Success 200 {object} response.Response "Ранг и доступ к контактам"
// @Failure 404 {object} response.ErrorResponse "Подписчик не откликался"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /requests/{requestID}/helpers/{subscriberID} [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.helper.status"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	requestID := chi.URLParam(r, "requestID")
	subscriberID := chi.URLParam(r, "subscriberID")

	res, err := h.service.Status(r.Context(), requestID, subscriberID)
	if errors.Is(err, registry.ErrNotRegistered) {
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("not registered"))
		return
	}
	if err != nil {
		log.Error("failed to read helper status", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not read helper status"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(res))
}
