package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/storage/repository"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) ListDeliveries(ctx context.Context, subscriberID string, limit, offset int) ([]models.DeliveryRecord, error) {
	args := m.Called(ctx, subscriberID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DeliveryRecord), args.Error(1)
}

func (m *MockStore) GetSubscriber(ctx context.Context, id string) (*models.Subscriber, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}

func (m *MockStore) UpdatePreferences(ctx context.Context, id string, upd models.PreferencesUpdate) (*models.Subscriber, error) {
	args := m.Called(ctx, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscriber), args.Error(1)
}

func (m *MockStore) MarkDelivered(ctx context.Context, externalID string) (*models.DeliveryRecord, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DeliveryRecord), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ptr[T any](v T) *T { return &v }

func TestService_History_Pagination(t *testing.T) {
	tests := []struct {
		name                  string
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{name: "defaults", limit: 0, offset: 0, wantLimit: 20, wantOffset: 0},
		{name: "capped", limit: 500, offset: 40, wantLimit: 100, wantOffset: 40},
		{name: "negative offset", limit: 10, offset: -5, wantLimit: 10, wantOffset: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			store.On("ListDeliveries", mock.Anything, "sub-1", tt.wantLimit, tt.wantOffset).
				Return([]models.DeliveryRecord{{ID: "d1"}}, nil).Once()

			got, err := New(newNoopLogger(), store).History(context.Background(), "sub-1", tt.limit, tt.offset)
			require.NoError(t, err)
			assert.Len(t, got, 1)
			store.AssertExpectations(t)
		})
	}
}

func TestService_UpdatePreferences(t *testing.T) {
	stored := &models.Subscriber{
		ID:              "sub-1",
		ChannelEnabled:  true,
		ChannelHandle:   ptr("+919800000001"),
		QuietHoursStart: ptr(22 * 60),
		QuietHoursEnd:   ptr(7 * 60),
		Categories:      models.NewCategorySet(models.CategoryPets),
		Timezone:        "Asia/Kolkata",
	}
	petsOnly := models.NewCategorySet(models.CategoryPets, models.CategoryGrocery)
	empty := models.NewCategorySet()

	tests := []struct {
		name    string
		req     models.PreferencesRequest
		wantUpd models.PreferencesUpdate
		wantErr error
	}{
		{
			name:    "quiet hours pair",
			req:     models.PreferencesRequest{QuietHoursStart: ptr("22:00"), QuietHoursEnd: ptr("07:00")},
			wantUpd: models.PreferencesUpdate{SetQuietHours: true, QuietHoursStart: ptr(1320), QuietHoursEnd: ptr(420)},
		},
		{
			name:    "clear quiet hours",
			req:     models.PreferencesRequest{QuietHoursStart: ptr(""), QuietHoursEnd: ptr("")},
			wantUpd: models.PreferencesUpdate{SetQuietHours: true},
		},
		{
			name:    "categories normalised",
			req:     models.PreferencesRequest{CategoryAllowList: &[]string{"pets", " GROCERY", "PETS"}},
			wantUpd: models.PreferencesUpdate{Categories: &petsOnly},
		},
		{
			name:    "empty allow list means all",
			req:     models.PreferencesRequest{CategoryAllowList: &[]string{}},
			wantUpd: models.PreferencesUpdate{Categories: &empty},
		},
		{
			name:    "channel toggle and handle",
			req:     models.PreferencesRequest{ChannelEnabled: ptr(false), ChannelHandle: ptr(" +919811111111 ")},
			wantUpd: models.PreferencesUpdate{ChannelEnabled: ptr(false), ChannelHandle: ptr("+919811111111")},
		},
		{
			name:    "timezone",
			req:     models.PreferencesRequest{Timezone: ptr("Europe/London")},
			wantUpd: models.PreferencesUpdate{Timezone: ptr("Europe/London")},
		},
		{name: "only start", req: models.PreferencesRequest{QuietHoursStart: ptr("22:00")}, wantErr: ErrInvalidQuietHours},
		{name: "half empty", req: models.PreferencesRequest{QuietHoursStart: ptr("22:00"), QuietHoursEnd: ptr("")}, wantErr: ErrInvalidQuietHours},
		{name: "bad clock", req: models.PreferencesRequest{QuietHoursStart: ptr("25:00"), QuietHoursEnd: ptr("07:00")}, wantErr: ErrInvalidQuietHours},
		{name: "short clock", req: models.PreferencesRequest{QuietHoursStart: ptr("7:00"), QuietHoursEnd: ptr("08:00")}, wantErr: ErrInvalidQuietHours},
		{name: "unknown category", req: models.PreferencesRequest{CategoryAllowList: &[]string{"DRAGONS"}}, wantErr: ErrUnknownCategory},
		{name: "unknown timezone", req: models.PreferencesRequest{Timezone: ptr("Mars/Olympus")}, wantErr: ErrInvalidTimezone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			if tt.wantErr == nil {
				store.On("UpdatePreferences", mock.Anything, "sub-1", tt.wantUpd).Return(stored, nil).Once()
			}

			got, err := New(newNoopLogger(), store).UpdatePreferences(context.Background(), "sub-1", tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsValidation(err))
				store.AssertNotCalled(t, "UpdatePreferences", mock.Anything, mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "22:00", *got.QuietHoursStart)
			assert.Equal(t, "07:00", *got.QuietHoursEnd)
			assert.Equal(t, []string{"PETS"}, got.CategoryAllowList)
			store.AssertExpectations(t)
		})
	}
}

func TestService_UpdatePreferences_NotFound(t *testing.T) {
	store := new(MockStore)
	store.On("UpdatePreferences", mock.Anything, "ghost", mock.Anything).
		Return(nil, fmt.Errorf("storage.UpdatePreferences: %w", repository.ErrNotFound))

	_, err := New(newNoopLogger(), store).UpdatePreferences(context.Background(), "ghost",
		models.PreferencesRequest{ChannelEnabled: ptr(true)})
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestService_Preferences(t *testing.T) {
	store := new(MockStore)
	store.On("GetSubscriber", mock.Anything, "sub-1").Return(&models.Subscriber{ID: "sub-1", ChannelEnabled: true}, nil)
	store.On("GetSubscriber", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)
	svc := New(newNoopLogger(), store)

	p, err := svc.Preferences(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.True(t, p.ChannelEnabled)
	assert.Nil(t, p.QuietHoursStart)
	assert.Empty(t, p.CategoryAllowList)

	_, err = svc.Preferences(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrSubscriberNotFound)
}

func TestService_ConfirmDelivery(t *testing.T) {
	tests := []struct {
		name     string
		storeErr error
		wantErr  error
	}{
		{name: "delivered"},
		{name: "unknown id", storeErr: fmt.Errorf("storage.MarkDelivered: %w", repository.ErrNotFound), wantErr: ErrDeliveryNotFound},
		{name: "not sent", storeErr: fmt.Errorf("storage.MarkDelivered: %w", repository.ErrInvalidTransition), wantErr: ErrInvalidTransition},
		{name: "db error", storeErr: errors.New("boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			if tt.storeErr != nil {
				store.On("MarkDelivered", mock.Anything, "wamid.1").Return(nil, tt.storeErr)
			} else {
				store.On("MarkDelivered", mock.Anything, "wamid.1").
					Return(&models.DeliveryRecord{ID: "d1", Status: models.DeliveryDelivered}, nil)
			}

			rec, err := New(newNoopLogger(), store).ConfirmDelivery(context.Background(), "wamid.1")
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.storeErr != nil:
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrDeliveryNotFound)
			default:
				require.NoError(t, err)
				assert.Equal(t, models.DeliveryDelivered, rec.Status)
			}
		})
	}
}
