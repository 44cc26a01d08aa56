// Package registry обрабатывает отклики помощников «Ready to Help»: выдает ранг
// и открывает контакты автора первым contactLimit откликнувшимся.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/helper-dispatch/internal/cache"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/metrics"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

var (
	// ErrRequestNotFound запрос о помощи не существует.
	ErrRequestNotFound = errors.New("help request not found")
	// ErrNotRegistered подписчик не откликался на запрос.
	ErrNotRegistered = errors.New("not registered")
)

// Store хранилище регистраций.
type Store interface {
	RegisterHelper(ctx context.Context, requestID, subscriberID string, contactLimit int, now time.Time) (*models.HelperRegistration, bool, error)
	GetHelperRegistration(ctx context.Context, requestID, subscriberID string) (*models.HelperRegistration, error)
	GetRequest(ctx context.Context, id string) (*models.HelpRequest, error)
}

// Cache кэш неизменяемых записей.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Service сервис регистрации помощников.
type Service struct {
	log          *slog.Logger
	store        Store
	cache        Cache
	cacheTTL     time.Duration
	contactLimit int
	now          func() time.Time
}

// New создает сервис. cache может быть nil.
func New(log *slog.Logger, store Store, c Cache, cacheTTL time.Duration, contactLimit int) *Service {
	return &Service{
		log:          log,
		store:        store,
		cache:        c,
		cacheTTL:     cacheTTL,
		contactLimit: contactLimit,
		now:          time.Now,
	}
}

// Register регистрирует подписчика помощником. Повторный вызов идемпотентен и
// возвращает ранее выданный ранг.
func (s *Service) Register(ctx context.Context, requestID, subscriberID string) (*models.HelperStatus, error) {
	const op = "registry.Register"
	log := s.log.With(
		sl.Op(op),
		slog.String("request_id", requestID),
		slog.String("subscriber_id", subscriberID),
	)

	reg, created, err := s.store.RegisterHelper(ctx, requestID, subscriberID, s.contactLimit, s.now())
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if created {
		metrics.HelperRegistered(reg.HasContactAccess)
		log.Info("helper registered", slog.Int("rank", reg.Rank), slog.Bool("contact_access", reg.HasContactAccess))
	} else {
		log.Debug("helper already registered", slog.Int("rank", reg.Rank))
	}
	s.cacheSet(ctx, cache.HelperKey(requestID, subscriberID), reg)

	return s.buildStatus(ctx, reg)
}

// Status возвращает состояние отклика подписчика на запрос.
func (s *Service) Status(ctx context.Context, requestID, subscriberID string) (*models.HelperStatus, error) {
	const op = "registry.Status"

	var reg models.HelperRegistration
	key := cache.HelperKey(requestID, subscriberID)
	if !s.cacheGet(ctx, key, &reg) {
		stored, err := s.store.GetHelperRegistration(ctx, requestID, subscriberID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotRegistered
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		reg = *stored
		s.cacheSet(ctx, key, reg)
	}
	return s.buildStatus(ctx, &reg)
}

func (s *Service) buildStatus(ctx context.Context, reg *models.HelperRegistration) (*models.HelperStatus, error) {
	const op = "registry.buildStatus"
	status := &models.HelperStatus{
		Registered:       true,
		Rank:             reg.Rank,
		HasContactAccess: reg.HasContactAccess,
	}
	if !reg.HasContactAccess {
		return status, nil
	}

	req, err := s.request(ctx, reg.RequestID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	phone := req.PosterPhone
	status.PosterPhone = &phone
	status.PosterName = req.PosterName
	return status, nil
}

func (s *Service) request(ctx context.Context, id string) (*models.HelpRequest, error) {
	var req models.HelpRequest
	key := cache.RequestKey(id)
	if s.cacheGet(ctx, key, &req) {
		return &req, nil
	}
	stored, err := s.store.GetRequest(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, key, stored)
	return stored, nil
}

// cacheGet промах и ошибка Redis равнозначны: источник истины в базе.
func (s *Service) cacheGet(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	found, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.log.Warn("cache get failed", slog.String("key", key), sl.Err(err))
		return false
	}
	return found
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.log.Warn("cache set failed", slog.String("key", key), sl.Err(err))
	}
}
