// Package ratelimit ограничивает число уведомлений одному подписчику за календарные сутки.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// Ledger хранилище записей о доставке, считающее дневные отправки.
type Ledger interface {
	// CountDailySends считает записи подписчика со статусом, отличным от FAILED, в окне [from, to).
	CountDailySends(ctx context.Context, subscriberID string, from, to time.Time) (int, error)
	// ReserveDelivery атомарно проверяет лимит и создает PENDING запись.
	// Возвращает false, если лимит уже исчерпан.
	ReserveDelivery(ctx context.Context, rec models.DeliveryRecord, from, to time.Time, limit int) (bool, error)
}

// Locator определяет часовой пояс подписчика.
type Locator interface {
	Location(sub models.Subscriber) *time.Location
}

// Limiter дневной лимит уведомлений на подписчика.
type Limiter struct {
	ledger  Ledger
	locator Locator
	limit   int
}

// New создает Limiter с лимитом limit отправок в сутки.
func New(ledger Ledger, locator Locator, limit int) *Limiter {
	return &Limiter{ledger: ledger, locator: locator, limit: limit}
}

// DayWindow возвращает границы календарных суток [start, end), в которые попадает now, в поясе loc.
func DayWindow(now time.Time, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// WithinDailyLimit сообщает, остались ли у подписчика отправки на сегодня.
// Только чтение: для отправки используйте Reserve.
func (l *Limiter) WithinDailyLimit(ctx context.Context, sub models.Subscriber, now time.Time) (bool, error) {
	const op = "ratelimit.WithinDailyLimit"
	from, to := DayWindow(now, l.locator.Location(sub))
	count, err := l.ledger.CountDailySends(ctx, sub.ID, from, to)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return count < l.limit, nil
}

// Reserve занимает одну отправку из дневного лимита, создавая PENDING запись о доставке.
// Возвращает nil и false, если лимит исчерпан.
func (l *Limiter) Reserve(ctx context.Context, sub models.Subscriber, requestID string, now time.Time) (*models.DeliveryRecord, bool, error) {
	const op = "ratelimit.Reserve"
	from, to := DayWindow(now, l.locator.Location(sub))
	rec := models.DeliveryRecord{
		ID:           uuid.NewString(),
		SubscriberID: sub.ID,
		RequestID:    requestID,
		Status:       models.DeliveryPending,
		CreatedAt:    now.UTC(),
	}
	ok, err := l.ledger.ReserveDelivery(ctx, rec, from, to, l.limit)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}
