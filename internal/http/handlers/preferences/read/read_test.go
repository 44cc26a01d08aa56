package read

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Preferences(ctx context.Context, subscriberID string) (*models.Preferences, error) {
	args := m.Called(ctx, subscriberID)
	if res := args.Get(0); res != nil {
		return res.(*models.Preferences), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReadHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	start, end := "22:00", "07:00"

	tests := []struct {
		name           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "found",
			setupMock: func(m *MockService) {
				m.On("Preferences", mock.Anything, "s1").Return(&models.Preferences{
					SubscriberID:      "s1",
					ChannelEnabled:    true,
					QuietHoursStart:   &start,
					QuietHoursEnd:     &end,
					CategoryAllowList: []string{"MEDICAL"},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"quiet_hours_start":"22:00"`,
		},
		{
			name: "unknown subscriber",
			setupMock: func(m *MockService) {
				m.On("Preferences", mock.Anything, "s1").Return(nil, notifications.ErrSubscriberNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `subscriber not found`,
		},
		{
			name: "service error",
			setupMock: func(m *MockService) {
				m.On("Preferences", mock.Anything, "s1").Return(nil, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not read preferences`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)
			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodGet, "/subscribers/s1/preferences", nil)
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("subscriberID", "s1")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
