// Package dispatcher собирает воркер рассылки: слушает события о новых запросах
// помощи и отправляет уведомления подходящим подписчикам.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/helper-dispatch/internal/config"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/lib/smtp"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier/email"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier/simulated"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier/whatsapp"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/directory"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/dispatch"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/fanout"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/matching"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/ratelimit"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

// App приложение рассыльщика.
type App struct {
	fanout    *fanout.Service
	directory *directory.Service
	conn      *amqp.Connection
	ch        *amqp.Channel
	db        *repository.Storage
	metrics   *http.Server
	prefetch  int
	logger    *slog.Logger
	inflight  sync.WaitGroup
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// NewNotifier выбирает канал доставки по конфигу.
func NewNotifier(cfg config.Notifier, logger *slog.Logger) (notifier.Notifier, error) {
	switch cfg.Channel {
	case "whatsapp":
		return whatsapp.NewClient(cfg.WhatsApp, &http.Client{Timeout: cfg.Timeout}), nil
	case "email":
		return email.New(smtp.NewTransport(cfg.SMTP, logger), logger), nil
	case "simulated":
		return simulated.New(cfg.SimulatedFailureRate, logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier channel %q", cfg.Channel)
	}
}

// New подключается к брокеру и базе и собирает конвейер рассылки.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	n, err := NewNotifier(cfg.Notifier, logger)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Matching.Location()
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.ExchangeHelpers, cfg.RabbitMQ.Prefetch, rabbitmq.GetDispatcherQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := waitForDB(db); err != nil {
		_ = db.Close()
		closeResources(ch, conn, logger)
		return nil, err
	}

	filter := matching.NewFilter(loc)
	limiter := ratelimit.New(db, filter, cfg.Matching.DailyCap)
	dispatcher := dispatch.New(logger, n, db, cfg.Notifier.Timeout)
	service := fanout.New(logger, db, filter, limiter, dispatcher, rabbitmq.NewPublisher(ch), fanout.Options{
		RadiusKm: cfg.Matching.RadiusKm,
		Workers:  cfg.Matching.Workers,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &App{
		fanout:    service,
		directory: directory.New(logger, db),
		conn:      conn,
		ch:        ch,
		db:        db,
		metrics:   &http.Server{Addr: cfg.MetricsAddress, Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		prefetch:  cfg.RabbitMQ.Prefetch,
		logger:    logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", sl.Err(err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", sl.Err(err))
		}
	}
}

// Run потребляет события до отмены ctx. Перед закрытием соединений дожидается
// обработчиков, уже взявших сообщения.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		a.logger.Info("metrics server starting on", slog.String("address", a.metrics.Addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", sl.Err(err))
		}
	}()

	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.QueueRequestPosted, a.prefetch, &a.inflight, a.fanout.Handler(ctx))
	if err == nil {
		err = rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.QueueProfileUpdated, 1, &a.inflight, a.directory.Handler(ctx))
	}
	if err != nil {
		cancel()
		a.shutdown()
		return err
	}
	a.logger.Info("dispatcher is consuming",
		slog.String("requests_queue", rabbitmq.QueueRequestPosted),
		slog.String("profiles_queue", rabbitmq.QueueProfileUpdated),
	)

	<-ctx.Done()
	a.logger.Info("shutting down dispatcher")
	a.shutdown()
	return nil
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.metrics.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("failed to stop metrics server", sl.Err(err))
	}
	a.inflight.Wait()
	a.logger.Info("in-flight messages settled")
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
}
