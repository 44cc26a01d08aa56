// Package directory поддерживает справочник подписчиков в актуальном состоянии
// по событиям сервиса профилей.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// ErrInvalidEvent событие профиля не прошло проверку.
var ErrInvalidEvent = errors.New("invalid profile event")

// Store хранилище справочника.
type Store interface {
	SyncProfile(ctx context.Context, ev models.ProfileEvent) error
}

// Service применяет события профилей.
type Service struct {
	log      *slog.Logger
	store    Store
	validate *validator.Validate
}

// New создает сервис.
func New(log *slog.Logger, store Store) *Service {
	return &Service{log: log, store: store, validate: validator.New()}
}

// Handler возвращает обработчик очереди subscriber.updated.
func (s *Service) Handler(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		var ev models.ProfileEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("%w: %w: %w", rabbitmq.ErrDrop, ErrInvalidEvent, err)
		}
		err := s.Apply(ctx, ev)
		if errors.Is(err, ErrInvalidEvent) {
			return fmt.Errorf("%w: %w", rabbitmq.ErrDrop, err)
		}
		return err
	}
}

// Apply проверяет событие и сохраняет его в справочник.
func (s *Service) Apply(ctx context.Context, ev models.ProfileEvent) error {
	const op = "directory.Apply"
	if err := s.validate.Struct(ev); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if (ev.Lat == nil) != (ev.Lng == nil) {
		return fmt.Errorf("%w: lat and lng must be set together", ErrInvalidEvent)
	}
	if ev.Phone != nil && *ev.Phone == "" {
		ev.Phone = nil
	}
	if err := s.store.SyncProfile(ctx, ev); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("profile synced",
		sl.Op(op),
		slog.String("subscriber_id", ev.ID),
		slog.Bool("has_location", ev.Lat != nil),
	)
	return nil
}
