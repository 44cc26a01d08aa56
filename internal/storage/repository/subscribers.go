package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/geo"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

const subscriberColumns = `id, lat, lng, trust_score, channel_handle, channel_enabled,
	quiet_hours_start, quiet_hours_end, category_allow_list, timezone`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (*models.Subscriber, error) {
	var (
		sub        models.Subscriber
		lat, lng   sql.NullFloat64
		handle     sql.NullString
		qStart     sql.NullInt16
		qEnd       sql.NullInt16
		categories []string
	)
	if err := row.Scan(&sub.ID, &lat, &lng, &sub.TrustScore, &handle, &sub.ChannelEnabled,
		&qStart, &qEnd, textArray(&categories), &sub.Timezone); err != nil {
		return nil, err
	}
	if lat.Valid && lng.Valid {
		sub.Location = &models.Location{Lat: lat.Float64, Lng: lng.Float64}
	}
	if handle.Valid {
		sub.ChannelHandle = &handle.String
	}
	if qStart.Valid {
		v := int(qStart.Int16)
		sub.QuietHoursStart = &v
	}
	if qEnd.Valid {
		v := int(qEnd.Int16)
		sub.QuietHoursEnd = &v
	}
	cs := make([]models.Category, 0, len(categories))
	for _, c := range categories {
		cs = append(cs, models.Category(c))
	}
	sub.Categories = models.NewCategorySet(cs...)
	return &sub, nil
}

// ListSubscribersInBox возвращает подписчиков с координатами внутри прямоугольника.
func (s *Storage) ListSubscribersInBox(ctx context.Context, box geo.Box) ([]models.Subscriber, error) {
	const op = "storage.ListSubscribersInBox"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	query := `SELECT ` + subscriberColumns + `
		FROM subscribers
		WHERE lat IS NOT NULL
		  AND lat BETWEEN $1 AND $2
		  AND lng BETWEEN $3 AND $4`
	rows, err := s.DB.QueryContext(ctx, query, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var res []models.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// GetSubscriber возвращает подписчика по идентификатору.
func (s *Storage) GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error) {
	const op = "storage.GetSubscriber"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `SELECT `+subscriberColumns+` FROM subscribers WHERE id = $1`, id)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// SyncProfile применяет событие профиля: обновляет точку и рейтинг, новый подписчик
// создается с настройками по умолчанию. Телефон становится адресом канала, только
// если подписчик еще не задал свой.
func (s *Storage) SyncProfile(ctx context.Context, ev models.ProfileEvent) error {
	const op = "storage.SyncProfile"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}

	query := `INSERT INTO subscribers (id, lat, lng, trust_score, channel_handle, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			lat = EXCLUDED.lat,
			lng = EXCLUDED.lng,
			trust_score = EXCLUDED.trust_score,
			channel_handle = COALESCE(subscribers.channel_handle, EXCLUDED.channel_handle),
			updated_at = NOW()`
	_, err := s.DB.ExecContext(ctx, query, ev.ID, ev.Lat, ev.Lng, ev.TrustScore, ev.Phone)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// UpdatePreferences частично обновляет настройки уведомлений и возвращает итоговую запись.
func (s *Storage) UpdatePreferences(ctx context.Context, id string, upd models.PreferencesUpdate) (*models.Subscriber, error) {
	const op = "storage.UpdatePreferences"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}

	var categories []string
	if upd.Categories != nil {
		categories = upd.Categories.Strings()
	}
	query := `UPDATE subscribers SET
			channel_enabled = COALESCE($2::boolean, channel_enabled),
			channel_handle = COALESCE($3::text, channel_handle),
			quiet_hours_start = CASE WHEN $4::boolean THEN $5::smallint ELSE quiet_hours_start END,
			quiet_hours_end = CASE WHEN $4::boolean THEN $6::smallint ELSE quiet_hours_end END,
			category_allow_list = COALESCE($7::text[], category_allow_list),
			timezone = COALESCE($8::text, timezone),
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + subscriberColumns
	row := s.DB.QueryRowContext(ctx, query, id,
		upd.ChannelEnabled, upd.ChannelHandle, upd.SetQuietHours,
		upd.QuietHoursStart, upd.QuietHoursEnd, categories, upd.Timezone)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}
