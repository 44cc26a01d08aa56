// Package dispatch отправляет одно уведомление подписчику и фиксирует итог в журнале доставок.
package dispatch

import (
	"context"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/sl"
	"github.com/magabrotheeeer/helper-dispatch/internal/metrics"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/notifier"
)

const maxReasonLen = 500

// Ledger фиксирует исход отправки.
type Ledger interface {
	MarkSent(ctx context.Context, id string, sentAt time.Time, externalID string) error
	MarkFailed(ctx context.Context, id string, reason string) error
}

// Dispatcher выполняет ровно одну попытку отправки на запись PENDING. Повторов нет.
type Dispatcher struct {
	log      *slog.Logger
	notifier notifier.Notifier
	ledger   Ledger
	timeout  time.Duration
	now      func() time.Time
}

// New создает Dispatcher. timeout ограничивает один вызов канала.
func New(log *slog.Logger, n notifier.Notifier, ledger Ledger, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:      log,
		notifier: n,
		ledger:   ledger,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Dispatch отправляет уведомление по записи rec и переводит ее в SENT или FAILED.
// Ошибка канала не возвращается: она сохраняется в записи. Ошибка означает сбой журнала.
// Отмена ctx не прерывает начатую отправку.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.DeliveryRecord, sub models.Subscriber, req models.HelpRequest, distanceKm float64) (models.DeliveryStatus, error) {
	const op = "dispatch.Dispatch"
	log := d.log.With(
		sl.Op(op),
		slog.String("delivery_id", rec.ID),
		slog.String("subscriber_id", sub.ID),
		slog.String("request_id", req.ID),
	)

	var destination string
	if sub.ChannelHandle != nil {
		destination = *sub.ChannelHandle
	}
	payload := BuildPayload(req, distanceKm)

	// начатая отправка доводится до конца и фиксируется в журнале даже при остановке
	ctx = context.WithoutCancel(ctx)
	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	res, sendErr := d.notifier.Send(sendCtx, payload, destination)
	cancel()
	metrics.ObserveNotifier(time.Since(start))

	if sendErr != nil {
		reason := truncate(sendErr.Error(), maxReasonLen)
		if err := d.ledger.MarkFailed(ctx, rec.ID, reason); err != nil {
			log.Error("failed to mark delivery failed", sl.Err(err))
			return models.DeliveryPending, err
		}
		rec.Status = models.DeliveryFailed
		rec.ErrorReason = &reason
		metrics.DispatchResult("failed")
		log.Warn("notification failed", slog.String("reason", reason))
		return models.DeliveryFailed, nil
	}

	sentAt := d.now().UTC()
	if err := d.ledger.MarkSent(ctx, rec.ID, sentAt, res.ExternalID); err != nil {
		log.Error("failed to mark delivery sent", slog.String("external_id", res.ExternalID), sl.Err(err))
		return models.DeliveryPending, err
	}
	rec.Status = models.DeliverySent
	rec.SentAt = &sentAt
	rec.ExternalID = &res.ExternalID
	metrics.DispatchResult("sent")
	log.Info("notification sent", slog.String("external_id", res.ExternalID))
	return models.DeliverySent, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
