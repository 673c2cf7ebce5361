package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ratishjain12/subscription-management-api/internal/http/middlewarectx"
	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// MockService реализует интерфейс create.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, userName string, req models.DummySubscription) (string, error) {
	args := m.Called(ctx, userName, req)
	return args.String(0), args.Error(1)
}

func TestCreateHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		username       string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name:     "успешное создание подписки",
			body:     `{"service_name":"Netflix","price":500,"frequency":"monthly","start_date":"01-06-2030"}`,
			username: "testuser",
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "testuser", mock.Anything).Return("sub-1", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"last_added_id":"sub-1"`,
		},
		{
			name:           "некорректный JSON",
			body:           `{invalid`,
			username:       "testuser",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"invalid request body"`,
		},
		{
			name:           "ошибка валидации: нет обязательных полей",
			body:           `{"price":500}`,
			username:       "testuser",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field ServiceName is a required field`,
		},
		{
			name:           "ошибка валидации: неподдерживаемая частота",
			body:           `{"service_name":"Netflix","price":500,"frequency":"hourly","start_date":"01-06-2030"}`,
			username:       "testuser",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Frequency has an unsupported value`,
		},
		{
			name:           "нет пользователя в контексте",
			body:           `{"service_name":"Netflix","price":500,"frequency":"monthly","start_date":"01-06-2030"}`,
			username:       "",
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"unauthorized"`,
		},
		{
			name:     "ошибка сервиса",
			body:     `{"service_name":"Netflix","price":500,"frequency":"monthly","start_date":"01-06-2030"}`,
			username: "testuser",
			setupMock: func(m *MockService) {
				m.On("Create", mock.Anything, "testuser", mock.Anything).Return("", errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"could not create subscription"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/subscriptions", strings.NewReader(tt.body))
			if tt.username != "" {
				req = req.WithContext(context.WithValue(req.Context(), middlewarectx.User, tt.username))
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
