// Package notifications отдает историю уведомлений подписчика, управляет его
// настройками доставки и принимает квитанции о доставке от канала.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/matching"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

// Ограничения пагинации истории.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var (
	// ErrSubscriberNotFound подписчик отсутствует в справочнике.
	ErrSubscriberNotFound = errors.New("subscriber not found")
	// ErrInvalidQuietHours тихие часы заданы не парой "HH:MM".
	ErrInvalidQuietHours = errors.New("quiet hours must be a pair of HH:MM values")
	// ErrUnknownCategory категория не входит в перечень.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidTimezone неизвестный часовой пояс IANA.
	ErrInvalidTimezone = errors.New("invalid timezone")
	// ErrDeliveryNotFound квитанция на неизвестное сообщение.
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrInvalidTransition квитанция для записи не в статусе SENT.
	ErrInvalidTransition = errors.New("delivery is not awaiting a receipt")
)

// IsValidation сообщает, что ошибка вызвана некорректными настройками в запросе.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidQuietHours) ||
		errors.Is(err, ErrUnknownCategory) ||
		errors.Is(err, ErrInvalidTimezone)
}

// Store хранилище журнала и справочника подписчиков.
type Store interface {
	ListDeliveries(ctx context.Context, subscriberID string, limit, offset int) ([]models.DeliveryRecord, error)
	GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error)
	UpdatePreferences(ctx context.Context, id string, upd models.PreferencesUpdate) (*models.Subscriber, error)
	MarkDelivered(ctx context.Context, externalID string) (*models.DeliveryRecord, error)
}

// Service сервис уведомлений подписчика.
type Service struct {
	log   *slog.Logger
	store Store
}

// New создает сервис.
func New(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store}
}

// History возвращает записи журнала подписчика, новые сначала.
func (s *Service) History(ctx context.Context, subscriberID string, limit, offset int) ([]models.DeliveryRecord, error) {
	const op = "notifications.History"
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := s.store.ListDeliveries(ctx, subscriberID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return recs, nil
}

// Preferences возвращает текущие настройки подписчика.
func (s *Service) Preferences(ctx context.Context, subscriberID string) (*models.Preferences, error) {
	const op = "notifications.Preferences"
	sub, err := s.store.GetSubscriber(ctx, subscriberID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return toPreferences(sub), nil
}

// UpdatePreferences применяет частичное обновление настроек. Поля, не переданные в
// запросе, не меняются. Пара пустых строк тихих часов отключает их.
func (s *Service) UpdatePreferences(ctx context.Context, subscriberID string, req models.PreferencesRequest) (*models.Preferences, error) {
	const op = "notifications.UpdatePreferences"

	upd, err := parseUpdate(req)
	if err != nil {
		return nil, err
	}
	sub, err := s.store.UpdatePreferences(ctx, subscriberID, upd)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrSubscriberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("preferences updated", sl.Op(op), slog.String("subscriber_id", subscriberID))
	return toPreferences(sub), nil
}

// ConfirmDelivery отмечает сообщение с внешним идентификатором доставленным.
func (s *Service) ConfirmDelivery(ctx context.Context, externalID string) (*models.DeliveryRecord, error) {
	const op = "notifications.ConfirmDelivery"
	rec, err := s.store.MarkDelivered(ctx, externalID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrDeliveryNotFound
	case errors.Is(err, repository.ErrInvalidTransition):
		return nil, ErrInvalidTransition
	case err != nil:
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

func parseUpdate(req models.PreferencesRequest) (models.PreferencesUpdate, error) {
	upd := models.PreferencesUpdate{
		ChannelEnabled: req.ChannelEnabled,
	}
	if req.ChannelHandle != nil {
		h := strings.TrimSpace(*req.ChannelHandle)
		upd.ChannelHandle = &h
	}

	if req.QuietHoursStart != nil || req.QuietHoursEnd != nil {
		if req.QuietHoursStart == nil || req.QuietHoursEnd == nil {
			return upd, ErrInvalidQuietHours
		}
		upd.SetQuietHours = true
		start, end := *req.QuietHoursStart, *req.QuietHoursEnd
		switch {
		case start == "" && end == "":
		case start == "" || end == "":
			return upd, ErrInvalidQuietHours
		default:
			s, err := matching.ParseClock(start)
			if err != nil {
				return upd, fmt.Errorf("%w: %w", ErrInvalidQuietHours, err)
			}
			e, err := matching.ParseClock(end)
			if err != nil {
				return upd, fmt.Errorf("%w: %w", ErrInvalidQuietHours, err)
			}
			upd.QuietHoursStart, upd.QuietHoursEnd = &s, &e
		}
	}

	if req.CategoryAllowList != nil {
		cats := make([]models.Category, 0, len(*req.CategoryAllowList))
		for _, raw := range *req.CategoryAllowList {
			c, err := models.ParseCategory(raw)
			if err != nil {
				return upd, fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
			}
			cats = append(cats, c)
		}
		set := models.NewCategorySet(cats...)
		upd.Categories = &set
	}

	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return upd, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
			}
		}
		upd.Timezone = &tz
	}
	return upd, nil
}

func toPreferences(sub *models.Subscriber) *models.Preferences {
	p := &models.Preferences{
		SubscriberID:      sub.ID,
		ChannelEnabled:    sub.ChannelEnabled,
		ChannelHandle:     sub.ChannelHandle,
		CategoryAllowList: sub.Categories.Strings(),
		Timezone:          sub.Timezone,
	}
	if sub.QuietHoursStart != nil && sub.QuietHoursEnd != nil {
		start, end := matching.FormatClock(*sub.QuietHoursStart), matching.FormatClock(*sub.QuietHoursEnd)
		p.QuietHoursStart, p.QuietHoursEnd = &start, &end
	}
	return p
}
