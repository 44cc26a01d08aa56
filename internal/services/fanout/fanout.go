// Package fanout обрабатывает событие о новом запросе помощи: отбирает подписчиков
// в радиусе, применяет политики доставки и рассылает уведомления ограниченным
// пулом воркеров, начиная с ближайших.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"golang.org/x/sync/errgroup"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/geo"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/metrics"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/matching"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

var (
	// ErrInvalidEvent событие не удалось разобрать или оно не прошло валидацию.
	ErrInvalidEvent = errors.New("invalid request posted event")
	// ErrIncomplete рассылка прервана остановкой или сбоем хранилища. Событие нужно
	// доставить повторно: подписчики, уже получившие запись, будут пропущены.
	ErrIncomplete = errors.New("fan-out incomplete")
)

// Store справочник подписчиков и хранилище запросов.
type Store interface {
	SaveRequest(ctx context.Context, req models.HelpRequest) (bool, error)
	MarkRequestDispatched(ctx context.Context, id string) error
	ListSubscribersInBox(ctx context.Context, box geo.Box) ([]models.Subscriber, error)
}

// Limiter резервирует место в дневном лимите подписчика.
type Limiter interface {
	Reserve(ctx context.Context, sub models.Subscriber, requestID string, now time.Time) (*models.DeliveryRecord, bool, error)
}

// Dispatcher выполняет одну отправку по зарезервированной записи.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *models.DeliveryRecord, sub models.Subscriber, req models.HelpRequest, distanceKm float64) (models.DeliveryStatus, error)
}

// Publisher публикует итог рассылки.
type Publisher interface {
	Publish(exchange, routingKey string, message any) error
}

// Report итог обработки одного запроса.
type Report struct {
	RequestID  string                      `json:"request_id"`
	Duplicate  bool                        `json:"duplicate,omitempty"`
	Candidates int                         `json:"candidates"`
	Sent       int                         `json:"sent"`
	Failed     int                         `json:"failed"`
	Errors     int                         `json:"errors"`
	Pending    int                         `json:"pending,omitempty"`
	Skipped    map[matching.SkipReason]int `json:"skipped"`
}

// Options параметры рассылки.
type Options struct {
	RadiusKm float64
	Workers  int
}

// Service конвейер рассылки.
type Service struct {
	log        *slog.Logger
	store      Store
	filter     *matching.Filter
	limiter    Limiter
	dispatcher Dispatcher
	publisher  Publisher
	opts       Options
	validate   *validator.Validate
	now        func() time.Time
}

// New создает конвейер. publisher может быть nil.
func New(log *slog.Logger, store Store, filter *matching.Filter, limiter Limiter, dispatcher Dispatcher, publisher Publisher, opts Options) *Service {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Service{
		log:        log,
		store:      store,
		filter:     filter,
		limiter:    limiter,
		dispatcher: dispatcher,
		publisher:  publisher,
		opts:       opts,
		validate:   validator.New(),
		now:        time.Now,
	}
}

// Handler возвращает обработчик сообщений очереди request.posted.
// Неразбираемые события сбрасываются, сбои хранилища возвращают сообщение в очередь.
func (s *Service) Handler(ctx context.Context) func([]byte) error {
	return func(body []byte) error {
		var req models.HelpRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return fmt.Errorf("%w: %w: %w", rabbitmq.ErrDrop, ErrInvalidEvent, err)
		}
		_, err := s.HandleRequestPosted(ctx, req)
		if errors.Is(err, ErrInvalidEvent) {
			return fmt.Errorf("%w: %w", rabbitmq.ErrDrop, err)
		}
		return err
	}
}

// HandleRequestPosted сохраняет запрос и рассылает уведомления. Повторное событие
// с тем же id после завершенной рассылки ничего не отправляет, а после прерванной
// дорассылает тем, у кого еще нет записи. Сбой хранилища по отдельному подписчику
// не прерывает рассылку остальным, но запрос не отмечается разосланным и
// возвращается ErrIncomplete. После отмены ctx новые отправки не начинаются.
func (s *Service) HandleRequestPosted(ctx context.Context, req models.HelpRequest) (*Report, error) {
	const op = "fanout.HandleRequestPosted"
	log := s.log.With(sl.Op(op), slog.String("request_id", req.ID))

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if !req.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidEvent, req.Category)
	}

	origin := req.Origin()
	subs, err := s.store.ListSubscribersInBox(ctx, geo.BoundingBox(origin, s.opts.RadiusKm))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pending, err := s.store.SaveRequest(ctx, req)
	if errors.Is(err, repository.ErrInvalidData) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	report := &Report{RequestID: req.ID, Skipped: map[matching.SkipReason]int{}}
	if !pending {
		log.Info("duplicate request event ignored")
		report.Duplicate = true
		return report, nil
	}
	candidates := geo.CandidatesWithinRadius(origin, s.opts.RadiusKm, subs)
	report.Candidates = len(candidates)

	inRadius := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		inRadius[c.Subscriber.ID] = struct{}{}
	}
	for _, sub := range subs {
		if _, ok := inRadius[sub.ID]; ok || sub.Location == nil {
			continue
		}
		s.skip(log, report, nil, sub.ID, geo.DistanceKm(origin, *sub.Location), matching.SkipOutOfRange)
	}

	now := s.now()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.opts.Workers)
	for _, c := range candidates {
		g.Go(func() error {
			s.process(ctx, log, &mu, report, req, c, now)
			return nil
		})
	}
	_ = g.Wait()

	if report.Errors > 0 || report.Pending > 0 {
		log.Warn("fan-out incomplete",
			slog.Int("sent", report.Sent),
			slog.Int("errors", report.Errors),
			slog.Int("pending", report.Pending),
		)
		return report, fmt.Errorf("%s: %w: %d errors, %d not started",
			op, ErrIncomplete, report.Errors, report.Pending)
	}
	if err := s.store.MarkRequestDispatched(context.WithoutCancel(ctx), req.ID); err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("fan-out finished",
		slog.Int("candidates", report.Candidates),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Any("skipped", report.Skipped),
	)
	if s.publisher != nil {
		if err := s.publisher.Publish(rabbitmq.ExchangeHelpers, rabbitmq.RoutingDispatchReport, report); err != nil {
			log.Error("failed to publish fan-out report", sl.Err(err))
		}
	}
	return report, nil
}

func (s *Service) process(ctx context.Context, log *slog.Logger, mu *sync.Mutex, report *Report, req models.HelpRequest, c geo.Candidate, now time.Time) {
	sub := c.Subscriber
	if ctx.Err() != nil {
		s.count(mu, func() { report.Pending++ })
		return
	}
	if reason := s.filter.Evaluate(sub, req, now); reason != matching.SkipNone {
		s.skip(log, report, mu, sub.ID, c.DistanceKm, reason)
		return
	}

	rec, ok, err := s.limiter.Reserve(ctx, sub, req.ID, now)
	if errors.Is(err, repository.ErrAlreadyReserved) {
		s.skip(log, report, mu, sub.ID, c.DistanceKm, matching.SkipAlreadyNotified)
		return
	}
	if err != nil {
		log.Error("failed to reserve delivery", slog.String("subscriber_id", sub.ID), sl.Err(err))
		s.count(mu, func() { report.Errors++ })
		return
	}
	if !ok {
		s.skip(log, report, mu, sub.ID, c.DistanceKm, matching.SkipDailyLimit)
		return
	}

	status, err := s.dispatcher.Dispatch(ctx, rec, sub, req, c.DistanceKm)
	switch {
	case err != nil:
		log.Error("failed to record delivery outcome", slog.String("subscriber_id", sub.ID), sl.Err(err))
		s.count(mu, func() { report.Errors++ })
	case status == models.DeliverySent:
		s.count(mu, func() { report.Sent++ })
	default:
		s.count(mu, func() { report.Failed++ })
	}
}

func (s *Service) skip(log *slog.Logger, report *Report, mu *sync.Mutex, subscriberID string, distanceKm float64, reason matching.SkipReason) {
	log.Info("subscriber skipped",
		slog.String("subscriber_id", subscriberID),
		slog.Float64("distance_km", distanceKm),
		slog.String("reason", string(reason)),
	)
	metrics.DispatchSkipped(string(reason))
	s.count(mu, func() { report.Skipped[reason]++ })
}

func (s *Service) count(mu *sync.Mutex, fn func()) {
	if mu != nil {
		mu.Lock()
		defer mu.Unlock()
	}
	fn()
}
