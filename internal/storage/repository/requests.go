package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// SaveRequest сохраняет запрос о помощи. pending=false, если запрос с таким id уже
// сохранен и рассылка по нему завершена: повторное событие не порождает новую рассылку.
// Для сохраненного, но не разосланного до конца запроса возвращает pending=true.
func (s *Storage) SaveRequest(ctx context.Context, req models.HelpRequest) (bool, error) {
	const op = "storage.SaveRequest"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}

	query := `INSERT INTO help_requests (id, category, title, lat, lng, min_trust_required,
			offer_price, poster_id, poster_name, poster_phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET id = help_requests.id
		RETURNING dispatched_at IS NULL`
	var pending bool
	err := s.DB.QueryRowContext(ctx, query,
		req.ID, string(req.Category), req.Title, req.Lat, req.Lng, req.MinTrustRequired,
		req.OfferPrice, req.PosterID, req.PosterName, req.PosterPhone).Scan(&pending)
	if isDataException(err) {
		return false, fmt.Errorf("%s: %w: %w", op, ErrInvalidData, err)
	}
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return pending, nil
}

// MarkRequestDispatched отмечает, что рассылка по запросу завершена.
func (s *Storage) MarkRequestDispatched(ctx context.Context, id string) error {
	const op = "storage.MarkRequestDispatched"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	res, err := s.DB.ExecContext(ctx, `UPDATE help_requests SET dispatched_at = NOW()
		WHERE id = $1 AND dispatched_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		var exists bool
		if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM help_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if !exists {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
	}
	return nil
}

// GetRequest возвращает запрос о помощи по идентификатору.
func (s *Storage) GetRequest(ctx context.Context, id string) (*models.HelpRequest, error) {
	const op = "storage.GetRequest"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT id, category, title, lat, lng, min_trust_required,
			offer_price::float8, poster_id, poster_name, poster_phone
		FROM help_requests WHERE id = $1`
	var (
		req   models.HelpRequest
		price sql.NullFloat64
		name  sql.NullString
	)
	err := s.DB.QueryRowContext(ctx, query, id).Scan(&req.ID, &req.Category, &req.Title,
		&req.Lat, &req.Lng, &req.MinTrustRequired, &price, &req.PosterID, &name, &req.PosterPhone)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if price.Valid {
		req.OfferPrice = &price.Float64
	}
	if name.Valid {
		req.PosterName = &name.String
	}
	return &req, nil
}
