package receipt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/helper-dispatch/internal/models"
	"github.com/magabrotheeeer/helper-dispatch/internal/services/notifications"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) ConfirmDelivery(ctx context.Context, externalID string) (*models.DeliveryRecord, error) {
	args := m.Called(ctx, externalID)
	if res := args.Get(0); res != nil {
		return res.(*models.DeliveryRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestReceiptHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "sent becomes delivered",
			body: `{"external_id":"wamid.1"}`,
			setupMock: func(m *MockService) {
				m.On("ConfirmDelivery", mock.Anything, "wamid.1").
					Return(&models.DeliveryRecord{ID: "d1", Status: models.DeliveryDelivered}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"status":"DELIVERED"`,
		},
		{
			name:           "missing external id",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field ExternalID is a required field`,
		},
		{
			name:           "broken json",
			body:           `nope`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `invalid request body`,
		},
		{
			name: "unknown message",
			body: `{"external_id":"wamid.2"}`,
			setupMock: func(m *MockService) {
				m.On("ConfirmDelivery", mock.Anything, "wamid.2").Return(nil, notifications.ErrDeliveryNotFound)
			},
			expectedStatus: http.StatusNotFound,
			expectedBody:   `delivery not found`,
		},
		{
			name: "already delivered",
			body: `{"external_id":"wamid.1"}`,
			setupMock: func(m *MockService) {
				m.On("ConfirmDelivery", mock.Anything, "wamid.1").Return(nil, notifications.ErrInvalidTransition)
			},
			expectedStatus: http.StatusConflict,
			expectedBody:   `not awaiting a receipt`,
		},
		{
			name: "storage failure",
			body: `{"external_id":"wamid.1"}`,
			setupMock: func(m *MockService) {
				m.On("ConfirmDelivery", mock.Anything, "wamid.1").Return(nil, errors.New("db"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `could not confirm delivery`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)
			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/deliveries/receipt", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			mockService.AssertExpectations(t)
		})
	}
}
