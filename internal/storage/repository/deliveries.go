package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// пространство ключей advisory-блокировок дневного лимита
const dailyCapLockSpace = 7301

const deliveryColumns = `id, subscriber_id, request_id, status, external_id, created_at, sent_at, error_reason`

func scanDelivery(row rowScanner) (*models.DeliveryRecord, error) {
	var (
		rec    models.DeliveryRecord
		extID  sql.NullString
		sentAt sql.NullTime
		reason sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.SubscriberID, &rec.RequestID, &rec.Status,
		&extID, &rec.CreatedAt, &sentAt, &reason); err != nil {
		return nil, err
	}
	if extID.Valid {
		rec.ExternalID = &extID.String
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	if reason.Valid {
		rec.ErrorReason = &reason.String
	}
	return &rec, nil
}

const countDailyQuery = `SELECT COUNT(*) FROM deliveries
	WHERE subscriber_id = $1
	  AND status <> 'FAILED'
	  AND created_at >= $2 AND created_at < $3`

// CountDailySends считает записи подписчика в окне [from, to), кроме FAILED.
func (s *Storage) CountDailySends(ctx context.Context, subscriberID string, from, to time.Time) (int, error) {
	const op = "storage.CountDailySends"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var n int
	if err := s.DB.QueryRowContext(ctx, countDailyQuery, subscriberID, from, to).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ReserveDelivery атомарно проверяет дневной лимит и создает запись PENDING.
// Проверка и вставка выполняются под транзакционной advisory-блокировкой подписчика,
// поэтому параллельные рассылки не превышают limit. Если запись по паре запрос и
// подписчик уже есть, возвращает ErrAlreadyReserved.
func (s *Storage) ReserveDelivery(ctx context.Context, rec models.DeliveryRecord, from, to time.Time, limit int) (bool, error) {
	const op = "storage.ReserveDelivery"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer rollback(tx)

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1, hashtext($2))`,
		dailyCapLockSpace, rec.SubscriberID); err != nil {
		return false, fmt.Errorf("%s: lock: %w", op, err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM deliveries
		WHERE request_id = $1 AND subscriber_id = $2)`, rec.RequestID, rec.SubscriberID).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: exists: %w", op, err)
	}
	if exists {
		return false, fmt.Errorf("%s: %w", op, ErrAlreadyReserved)
	}

	var n int
	if err = tx.QueryRowContext(ctx, countDailyQuery, rec.SubscriberID, from, to).Scan(&n); err != nil {
		return false, fmt.Errorf("%s: count: %w", op, err)
	}
	if n >= limit {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO deliveries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.SubscriberID, rec.RequestID, string(models.DeliveryPending),
		rec.ExternalID, rec.CreatedAt, rec.SentAt, rec.ErrorReason)
	if err != nil {
		return false, fmt.Errorf("%s: insert: %w", op, err)
	}
	if err = insertEvent(ctx, tx, rec.ID, nil, models.DeliveryPending, nil); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return true, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, deliveryID string, from *models.DeliveryStatus, to models.DeliveryStatus, reason *string) error {
	var fromStatus *string
	if from != nil {
		v := string(*from)
		fromStatus = &v
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO delivery_events (delivery_id, from_status, to_status, reason)
		VALUES ($1, $2, $3, $4)`, deliveryID, fromStatus, string(to), reason)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

type deliveryChange struct {
	status     models.DeliveryStatus
	externalID *string
	sentAt     *time.Time
	reason     *string
}

// transition переводит запись в новый статус, если переход разрешен, и пишет событие.
func (s *Storage) transition(ctx context.Context, op, where string, key any, ch deliveryChange) (*models.DeliveryRecord, error) {
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer rollback(tx)

	cur, err := scanDelivery(tx.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE `+where+` = $1 FOR UPDATE`, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !cur.Status.CanTransition(ch.status) {
		return nil, fmt.Errorf("%s: %s -> %s: %w", op, cur.Status, ch.status, ErrInvalidTransition)
	}

	updated, err := scanDelivery(tx.QueryRowContext(ctx, `UPDATE deliveries SET
			status = $2,
			external_id = COALESCE($3, external_id),
			sent_at = COALESCE($4, sent_at),
			error_reason = COALESCE($5, error_reason)
		WHERE id = $1
		RETURNING `+deliveryColumns,
		cur.ID, string(ch.status), ch.externalID, ch.sentAt, ch.reason))
	if err != nil {
		return nil, fmt.Errorf("%s: update: %w", op, err)
	}
	if err = insertEvent(ctx, tx, cur.ID, &cur.Status, ch.status, ch.reason); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("%s: commit: %w", op, err)
	}
	return updated, nil
}

// MarkSent фиксирует успешную отправку: PENDING -> SENT.
func (s *Storage) MarkSent(ctx context.Context, id string, sentAt time.Time, externalID string) error {
	_, err := s.transition(ctx, "storage.MarkSent", "id", id, deliveryChange{
		status:     models.DeliverySent,
		externalID: &externalID,
		sentAt:     &sentAt,
	})
	return err
}

// MarkFailed фиксирует неудачную отправку: PENDING -> FAILED.
func (s *Storage) MarkFailed(ctx context.Context, id string, reason string) error {
	_, err := s.transition(ctx, "storage.MarkFailed", "id", id, deliveryChange{
		status: models.DeliveryFailed,
		reason: &reason,
	})
	return err
}

// MarkDelivered отмечает доставку по внешнему идентификатору канала: SENT -> DELIVERED.
func (s *Storage) MarkDelivered(ctx context.Context, externalID string) (*models.DeliveryRecord, error) {
	return s.transition(ctx, "storage.MarkDelivered", "external_id", externalID, deliveryChange{
		status: models.DeliveryDelivered,
	})
}

// GetDelivery возвращает запись журнала по идентификатору.
func (s *Storage) GetDelivery(ctx context.Context, id string) (*models.DeliveryRecord, error) {
	const op = "storage.GetDelivery"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rec, err := scanDelivery(s.DB.QueryRowContext(ctx,
		`SELECT `+deliveryColumns+` FROM deliveries WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rec, nil
}

// ListDeliveries возвращает историю уведомлений подписчика, новые сначала.
func (s *Storage) ListDeliveries(ctx context.Context, subscriberID string, limit, offset int) ([]models.DeliveryRecord, error) {
	const op = "storage.ListDeliveries"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, `SELECT `+deliveryColumns+`
		FROM deliveries
		WHERE subscriber_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, subscriberID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]models.DeliveryRecord, 0, limit)
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
