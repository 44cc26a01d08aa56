package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/helper-dispatch/internal/migrations"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))
	require.NoError(t, CheckDatabaseReady(storage))

	cleanup := func() {
		_ = storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создает тестовые данные.
type TestDataFactory struct {
	storage *Storage
}

// NewTestDataFactory создает новую фабрику тестовых данных.
func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateRequest сохраняет запрос о помощи с разумными значениями по умолчанию.
func (f *TestDataFactory) CreateRequest(t *testing.T, id string) models.HelpRequest {
	t.Helper()
	name := "Asha"
	req := models.HelpRequest{
		ID:          id,
		Category:    models.CategoryGrocery,
		Title:       "Need groceries",
		Lat:         28.6139,
		Lng:         77.2090,
		PosterID:    "poster-" + id,
		PosterName:  &name,
		PosterPhone: "+919800000000",
	}
	created, err := f.storage.SaveRequest(context.Background(), req)
	require.NoError(t, err)
	require.True(t, created)
	return req
}

// CreateSubscriber сохраняет подписчика со всеми настройками.
func (f *TestDataFactory) CreateSubscriber(t *testing.T, sub models.Subscriber) {
	t.Helper()
	var lat, lng *float64
	if sub.Location != nil {
		lat, lng = &sub.Location.Lat, &sub.Location.Lng
	}
	_, err := f.storage.DB.Exec(`INSERT INTO subscribers (`+subscriberColumns+`, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		sub.ID, lat, lng, sub.TrustScore, sub.ChannelHandle, sub.ChannelEnabled,
		sub.QuietHoursStart, sub.QuietHoursEnd, sub.Categories.Strings(), sub.Timezone)
	require.NoError(t, err)
}

// CreateDelivery вставляет запись журнала в произвольном статусе в обход лимита.
func (f *TestDataFactory) CreateDelivery(t *testing.T, id, subscriberID, requestID string, status models.DeliveryStatus, createdAt time.Time) {
	t.Helper()
	_, err := f.storage.DB.Exec(`INSERT INTO deliveries (id, subscriber_id, request_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`, id, subscriberID, requestID, string(status), createdAt)
	require.NoError(t, err)
}

// TestVerification проверяет состояние базы.
type TestVerification struct {
	storage *Storage
}

// NewTestVerification создает помощника проверок.
func NewTestVerification(storage *Storage) *TestVerification {
	return &TestVerification{storage: storage}
}

// DeliveryEvents возвращает цепочку статусов записи в порядке записи.
func (v *TestVerification) DeliveryEvents(t *testing.T, deliveryID string) []string {
	t.Helper()
	rows, err := v.storage.DB.Query(`SELECT to_status FROM delivery_events WHERE delivery_id = $1 ORDER BY id`, deliveryID)
	require.NoError(t, err)
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

// CountDeliveries считает записи подписчика по запросу.
func (v *TestVerification) CountDeliveries(t *testing.T, subscriberID, requestID string) int {
	t.Helper()
	var n int
	require.NoError(t, v.storage.DB.QueryRow(`SELECT COUNT(*) FROM deliveries
		WHERE subscriber_id = $1 AND request_id = $2`, subscriberID, requestID).Scan(&n))
	return n
}
