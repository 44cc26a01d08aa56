package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/helper-dispatch/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/helper-dispatch/internal/models"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) SyncProfile(ctx context.Context, ev models.ProfileEvent) error {
	return m.Called(ctx, ev).Error(0)
}

func newService(store Store) *Service {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)), store)
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		setupMock func(*MockStore)
		wantErr   error
		drop      bool
		requeue   bool
	}{
		{
			name: "full profile",
			body: `{"id":"s1","lat":28.61,"lng":77.2,"trustScore":80,"phone":"+919800000001"}`,
			setupMock: func(m *MockStore) {
				m.On("SyncProfile", mock.Anything, mock.MatchedBy(func(ev models.ProfileEvent) bool {
					return ev.ID == "s1" && *ev.Lat == 28.61 && ev.TrustScore == 80 && *ev.Phone == "+919800000001"
				})).Return(nil)
			},
		},
		{
			name: "empty phone is ignored",
			body: `{"id":"s1","trustScore":10,"phone":""}`,
			setupMock: func(m *MockStore) {
				m.On("SyncProfile", mock.Anything, mock.MatchedBy(func(ev models.ProfileEvent) bool {
					return ev.Phone == nil && ev.Lat == nil
				})).Return(nil)
			},
		},
		{
			name:      "broken json",
			body:      `{"id":`,
			setupMock: func(_ *MockStore) {},
			wantErr:   ErrInvalidEvent,
			drop:      true,
		},
		{
			name:      "missing id",
			body:      `{"trustScore":10}`,
			setupMock: func(_ *MockStore) {},
			wantErr:   ErrInvalidEvent,
			drop:      true,
		},
		{
			name:      "trust out of range",
			body:      `{"id":"s1","trustScore":101}`,
			setupMock: func(_ *MockStore) {},
			wantErr:   ErrInvalidEvent,
			drop:      true,
		},
		{
			name:      "half a location",
			body:      `{"id":"s1","lat":28.61,"trustScore":10}`,
			setupMock: func(_ *MockStore) {},
			wantErr:   ErrInvalidEvent,
			drop:      true,
		},
		{
			name: "storage failure is requeued",
			body: `{"id":"s1","trustScore":10}`,
			setupMock: func(m *MockStore) {
				m.On("SyncProfile", mock.Anything, mock.Anything).Return(errors.New("db down"))
			},
			requeue: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(MockStore)
			tt.setupMock(store)

			err := newService(store).Handler(context.Background())([]byte(tt.body))

			switch {
			case tt.wantErr != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.drop, errors.Is(err, rabbitmq.ErrDrop))
			case tt.requeue:
				require.Error(t, err)
				assert.NotErrorIs(t, err, rabbitmq.ErrDrop)
				assert.Contains(t, err.Error(), "directory.Apply")
			default:
				require.NoError(t, err)
			}
			store.AssertExpectations(t)
		})
	}
}
