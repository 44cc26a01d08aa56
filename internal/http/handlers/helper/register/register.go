// Package register реализует HTTP-обработчик отклика «Ready to Help».
//
// Handler принимает идентификатор запроса из URL и subscriber_id из тела,
// регистрирует подписчика помощником и возвращает его ранг и, если ранг
// укладывается в лимит, контакты автора запроса.
package register

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/helper-dispatch/internal/http/response"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/registry"
)

// Handler обрабатывает отклики помощников.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// Service описывает бизнес-логику регистрации помощника.
type Service interface {
	Register(ctx context.Context, requestID, subscriberID string) (*models.HelperStatus, error)
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
// @Summary Откликнуться на запрос о помощи
// @Description Регистрирует подписчика помощником. Повторный отклик возвращает прежний ранг.
// @Tags Helpers
// @Accept  json
// @Produce  json
// @Param requestID path string true "ID запроса о помощи"
// @Param request body models.RegisterHelperRequest true "Подписчик"
// @Success 200 {object} response.Response "Ранг и доступ к контактам"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 404 {object} response.ErrorResponse "Запрос не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /requests/{requestID}/helpers [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.helper.register"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		log.Error("empty help request id in url")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("help request id is required"))
		return
	}

	var req models.RegisterHelperRequest
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

	status, err := h.service.Register(r.Context(), requestID, req.SubscriberID)
	if errors.Is(err, registry.ErrRequestNotFound) {
		log.Info("help request not found", slog.String("help_request_id", requestID))
		w.WriteHeader(http.StatusNotFound)
		render.JSON(w, r, response.Error("help request not found"))
		return
	}
	if err != nil {
		log.Error("failed to register helper", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not register helper"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(status))
}
