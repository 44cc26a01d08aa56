// Package receipt принимает квитанции о доставке от внешнего канала и
// переводит запись журнала из SENT в DELIVERED.
package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/helper-dispatch/internal/http/response"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
)

// Handler обрабатывает квитанции.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает подтверждение доставки.
type Service interface {
	ConfirmDelivery(ctx context.Context, externalID string) (*models.DeliveryRecord, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Квитанция о доставке
// @Tags Deliveries
// @Accept  json
// @Produce  json
// @Param request body models.ReceiptRequest true "Внешний идентификатор сообщения"
// @Success 200 {object} response.Response "Запись журнала после перехода"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Сообщение не найдено"
// @Failure 409 {object} response.ErrorResponse "Запись не ожидает квитанции"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /deliveries/receipt [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.delivery.receipt"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.ReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	rec, err := h.service.ConfirmDelivery(r.Context(), req.ExternalID)
	switch {
	case errors.Is(err, notifications.ErrDeliveryNotFound):
		log.Info("receipt for unknown message", slog.String("external_id", req.ExternalID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("delivery not found"))
		return
	case errors.Is(err, notifications.ErrInvalidTransition):
		log.Warn("receipt rejected", slog.String("external_id", req.ExternalID), sl.Err(err))
		w.WriteHeader(http.StatusConflict)
		render.JSON(w, r, response.Error(err.Error()))
		return
	case err != nil:
		log.Error("failed to confirm delivery", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not confirm delivery"))
		return
	}

	log.Info("delivery confirmed", slog.String("delivery_id", rec.ID))
	render.JSON(w, r, response.StatusOKWithData(rec))
}
