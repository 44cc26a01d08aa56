package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

const registrationColumns = `request_id, subscriber_id, rank, has_contact_access, registered_at`

func scanRegistration(row rowScanner) (*models.HelperRegistration, error) {
	var reg models.HelperRegistration
	if err := row.Scan(&reg.RequestID, &reg.SubscriberID, &reg.Rank, &reg.HasContactAccess, &reg.RegisteredAt); err != nil {
		return nil, err
	}
	return &reg, nil
}

// RegisterHelper регистрирует помощника на запрос и выдает ему следующий ранг.
// Ранги выдаются строкой-счетчиком запроса под FOR UPDATE: без пропусков и повторов
// при любом числе параллельных вызовов. Доступ к контактам получают ранги 1..contactLimit.
// Повторная регистрация возвращает существующую запись и created=false.
func (s *Storage) RegisterHelper(ctx context.Context, requestID, subscriberID string, contactLimit int, now time.Time) (*models.HelperRegistration, bool, error) {
	const op = "storage.RegisterHelper"
	if err := checkCtx(ctx, op); err != nil {
		return nil, false, err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%s: begin: %w", op, err)
	}
	defer rollback(tx)

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM help_requests WHERE id = $1)`,
		requestID).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !exists {
		return nil, false, fmt.Errorf("%s: request %s: %w", op, requestID, ErrNotFound)
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO helper_rank_counters (request_id, last_rank)
		VALUES ($1, 0) ON CONFLICT (request_id) DO NOTHING`, requestID); err != nil {
		return nil, false, fmt.Errorf("%s: counter: %w", op, err)
	}
	var lastRank int
	if err = tx.QueryRowContext(ctx, `SELECT last_rank FROM helper_rank_counters
		WHERE request_id = $1 FOR UPDATE`, requestID).Scan(&lastRank); err != nil {
		return nil, false, fmt.Errorf("%s: lock counter: %w", op, err)
	}

	existing, err := scanRegistration(tx.QueryRowContext(ctx, `SELECT `+registrationColumns+`
		FROM helper_registrations WHERE request_id = $1 AND subscriber_id = $2`, requestID, subscriberID))
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}

	reg := models.HelperRegistration{
		RequestID:        requestID,
		SubscriberID:     subscriberID,
		Rank:             lastRank + 1,
		HasContactAccess: lastRank+1 <= contactLimit,
		RegisteredAt:     now.UTC(),
	}
	if _, err = tx.ExecContext(ctx, `UPDATE helper_rank_counters SET last_rank = $2 WHERE request_id = $1`,
		requestID, reg.Rank); err != nil {
		return nil, false, fmt.Errorf("%s: bump counter: %w", op, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO helper_registrations (`+registrationColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		reg.RequestID, reg.SubscriberID, reg.Rank, reg.HasContactAccess, reg.RegisteredAt); err != nil {
		return nil, false, fmt.Errorf("%s: insert: %w", op, err)
	}

	if err = tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("%s: commit: %w", op, err)
	}
	return &reg, true, nil
}

// GetHelperRegistration возвращает регистрацию помощника на запрос.
func (s *Storage) GetHelperRegistration(ctx context.Context, requestID, subscriberID string) (*models.HelperRegistration, error) {
	const op = "storage.GetHelperRegistration"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	reg, err := scanRegistration(s.DB.QueryRowContext(ctx, `SELECT `+registrationColumns+`
		FROM helper_registrations WHERE request_id = $1 AND subscriber_id = $2`, requestID, subscriberID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return reg, nil
}
