package runstart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ratishjain12/subscription-management-api/internal/models"
)

type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) CreateRun(ctx context.Context, subscriptionID string) (*models.WorkflowRun, error) {
	args := m.Called(ctx, subscriptionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WorkflowRun), args.Error(1)
}

func (m *MockRunRepository) FindSubscriptionWithOwner(ctx context.Context, id string) (*models.SubscriptionInfo, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionInfo), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestStartRun_CreatesPendingRun(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("CreateRun", mock.Anything, "sub-1").Return(&models.WorkflowRun{
		ID:             "run-1",
		SubscriptionID: "sub-1",
		Status:         models.RunStatusPending,
	}, nil).Once()

	runID, err := service.StartRun(context.Background(), "sub-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	repo.AssertExpectations(t)
}

func TestStartRun_RepositoryError(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("CreateRun", mock.Anything, "sub-1").Return(nil, errors.New("db error")).Once()

	_, err := service.StartRun(context.Background(), "sub-1")
	assert.Error(t, err)
}

func TestStartRunForOwner_OwnerStartsRun(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("FindSubscriptionWithOwner", mock.Anything, "sub-1").Return(&models.SubscriptionInfo{
		SubscriptionID: "sub-1",
		Username:       "testuser",
	}, nil).Once()
	repo.On("CreateRun", mock.Anything, "sub-1").Return(&models.WorkflowRun{
		ID:             "run-1",
		SubscriptionID: "sub-1",
		Status:         models.RunStatusPending,
	}, nil).Once()

	runID, err := service.StartRunForOwner(context.Background(), "sub-1", "testuser", "user")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
	repo.AssertExpectations(t)
}

func TestStartRunForOwner_ForeignSubscriptionRejected(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("FindSubscriptionWithOwner", mock.Anything, "sub-1").Return(&models.SubscriptionInfo{
		SubscriptionID: "sub-1",
		Username:       "someoneelse",
	}, nil).Once()

	_, err := service.StartRunForOwner(context.Background(), "sub-1", "testuser", "user")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	repo.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}

func TestStartRunForOwner_AdminStartsAnyRun(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("FindSubscriptionWithOwner", mock.Anything, "sub-1").Return(&models.SubscriptionInfo{
		SubscriptionID: "sub-1",
		Username:       "someoneelse",
	}, nil).Once()
	repo.On("CreateRun", mock.Anything, "sub-1").Return(&models.WorkflowRun{
		ID:             "run-1",
		SubscriptionID: "sub-1",
		Status:         models.RunStatusPending,
	}, nil).Once()

	runID, err := service.StartRunForOwner(context.Background(), "sub-1", "admin-user", "admin")
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)
}

func TestStartRunForOwner_MissingSubscription(t *testing.T) {
	repo := new(MockRunRepository)
	service := NewRunStartService(repo, nil, newNoopLogger())

	repo.On("FindSubscriptionWithOwner", mock.Anything, "sub-1").Return(nil, nil).Once()

	_, err := service.StartRunForOwner(context.Background(), "sub-1", "testuser", "user")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	repo.AssertNotCalled(t, "CreateRun", mock.Anything, mock.Anything)
}
