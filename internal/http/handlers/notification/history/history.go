// Package history реализует HTTP-обработчик истории уведомлений подписчика.
//
// Поддерживает пагинацию через query-параметры limit и offset; записи
// возвращаются от новых к старым.
package history

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/helper-dispatch/internal/http/response"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// Handler отдает журнал уведомлений.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает чтение журнала уведомлений.
type Service interface {
	History(ctx context.Context, subscriberID string, limit, offset int) ([]models.DeliveryRecord, error)
}

// New создает новый Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

// ServeHTTP godoc
// @Summary История уведомлений
// @Tags Notifications
// @Produce  json
// @Param subscriberID path string true "ID подписчика"
// @Param limit query int false "Размер страницы (по умолчанию 20, максимум 100)"
// @Param offset query int false "Смещение"
// @Success 200 {object} response.Response "Записи журнала"
// @Failure 400 {object} response.ErrorResponse "Некорректные параметры пагинации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /subscribers/{subscriberID}/notifications [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.notification.history"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	subscriberID := chi.URLParam(r, "subscriberID")

	limit, err := queryInt(r, "limit")
	if err != nil {
		log.Info("invalid limit", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("limit must be a non-negative integer"))
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		log.Info("invalid offset", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("offset must be a non-negative integer"))
		return
	}

	recs, err := h.service.History(r.Context(), subscriberID, limit, offset)
	if err != nil {
		log.Error("failed to list notifications", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not list notifications"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"notifications": recs,
		"count":         len(recs),
	}))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
