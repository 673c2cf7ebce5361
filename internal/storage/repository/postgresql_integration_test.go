package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ratishjain12/subscription-management-api/internal/models"
)

func TestStorage_SubscriptionLifecycle(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")

	// Create
	id, err := storage.CreateSubscription(ctx, GetTestSubscription("testuser"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	verification := NewTestVerification(storage)
	verification.VerifySubscriptionExists(t, id)

	// Read
	sub, err := storage.ReadSubscription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Netflix", sub.ServiceName)
	assert.Equal(t, 1000, sub.Price)
	assert.Equal(t, models.StatusActive, sub.Status)

	// Update
	sub.Price = 1200
	sub.Status = models.StatusCancelled
	count, err := storage.UpdateSubscription(ctx, *sub, id, "testuser")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	updated, err := storage.ReadSubscription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1200, updated.Price)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	// Update чужой подписки не затрагивает строк
	count, err = storage.UpdateSubscription(ctx, *sub, id, "otheruser")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Remove
	count, err = storage.RemoveSubscription(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	verification.VerifySubscriptionDeleted(t, id)
}

func TestStorage_ListSubscriptions(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "user1", "user1@example.com", "hashedpassword", "user")
	factory.CreateUser(t, "user2", "user2@example.com", "hashedpassword", "user")
	factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "user1", start, start.AddDate(0, 1, 0), models.StatusActive)
	factory.CreateSubscription(t, "Spotify", 500, models.FrequencyMonthly, "user1", start, start.AddDate(0, 1, 0), models.StatusActive)
	factory.CreateSubscription(t, "Disney+", 800, models.FrequencyYearly, "user2", start, start.AddDate(1, 0, 0), models.StatusActive)

	got, err := storage.ListSubscriptions(ctx, "user1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = storage.ListSubscriptions(ctx, "nonexistent", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	all, err := storage.ListAllSubscriptions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	paged, err := storage.ListAllSubscriptions(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, paged, 1)
}

func TestStorage_FindSubscriptionWithOwner(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	id := factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)

	info, err := storage.FindSubscriptionWithOwner(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, id, info.SubscriptionID)
	assert.Equal(t, "test@example.com", info.Email)
	assert.Equal(t, models.StatusActive, info.Status)

	// Отсутствующая подписка - nil без ошибки
	info, err = storage.FindSubscriptionWithOwner(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestStorage_Users(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()

	uid, err := storage.RegisterUser(ctx, models.User{
		Email:        "test@example.com",
		Username:     "testuser",
		PasswordHash: "hashedpassword",
		Role:         "user",
	})
	require.NoError(t, err)
	require.NotEmpty(t, uid)

	user, err := storage.GetUserByUsername(ctx, "testuser")
	require.NoError(t, err)
	assert.Equal(t, uid, user.UUID)
	assert.Equal(t, "test@example.com", user.Email)
	assert.Equal(t, "user", user.Role)

	_, err = storage.GetUserByUsername(ctx, "nonexistent")
	assert.Error(t, err)
}

func TestStorage_WorkflowRuns(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	subID := factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)

	run, err := storage.CreateRun(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusPending, run.Status)
	require.NotNil(t, run.NextWakeAt, "свежий запуск сразу доступен поллеру")
	assert.Empty(t, run.Steps)

	// Состояние шагов переживает запись и чтение
	run.Status = models.RunStatusSleeping
	run.Steps["fetch subscription"] = json.RawMessage(`{"SubscriptionID":"` + subID + `"}`)
	wake := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	run.NextWakeAt = &wake
	require.NoError(t, storage.SaveRun(ctx, run))

	got, err := storage.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusSleeping, got.Status)
	assert.Contains(t, got.Steps, "fetch subscription")
	require.NotNil(t, got.NextWakeAt)
	assert.True(t, got.NextWakeAt.Equal(wake))

	// SaveRun по несуществующему запуску - ошибка
	missing := *run
	missing.ID = uuid.New().String()
	assert.Error(t, storage.SaveRun(ctx, &missing))
}

func TestStorage_ClaimDueRuns(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	now := time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	newSub := func(name string) string {
		return factory.CreateSubscription(t, name, 1000, models.FrequencyMonthly, "testuser",
			start, start.AddDate(0, 1, 0), models.StatusActive)
	}

	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	dueID := factory.CreateRun(t, newSub("Netflix"), models.RunStatusSleeping, &past)
	pendingID := factory.CreateRun(t, newSub("Spotify"), models.RunStatusPending, nil)
	factory.CreateRun(t, newSub("YouTube"), models.RunStatusSleeping, &future)
	factory.CreateRun(t, newSub("Dropbox"), models.RunStatusCompleted, nil)

	claimed, err := storage.ClaimDueRuns(ctx, now, 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	claimedIDs := []string{claimed[0].ID, claimed[1].ID}
	assert.ElementsMatch(t, []string{dueID, pendingID}, claimedIDs)
	for _, run := range claimed {
		assert.Equal(t, models.RunStatusRunning, run.Status)
	}

	// Захваченные запуски второй раз не выдаются
	again, err := storage.ClaimDueRuns(ctx, now, 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStorage_ClaimDueRuns_ReclaimsStaleRunning(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	staleSub := factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)
	freshSub := factory.CreateSubscription(t, "Spotify", 500, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)

	staleID := factory.CreateRun(t, staleSub, models.RunStatusRunning, nil)
	factory.CreateRun(t, freshSub, models.RunStatusRunning, nil)

	// Воркер, упавший между захватом и сохранением состояния, оставляет
	// запуск в running с устаревшим updated_at
	_, err := storage.DB.Exec(
		`UPDATE workflow_runs SET updated_at = now() - interval '1 hour' WHERE id = $1`, staleID)
	require.NoError(t, err)

	claimed, err := storage.ClaimDueRuns(ctx, time.Now().UTC(), 30*time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1, "переосваивается только протухший running-запуск")
	assert.Equal(t, staleID, claimed[0].ID)
	assert.Equal(t, models.RunStatusRunning, claimed[0].Status)

	// Переосвоенный запуск получил свежий updated_at и второй раз не выдаётся
	again, err := storage.ClaimDueRuns(ctx, time.Now().UTC(), 30*time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestStorage_CreateRun_OneLiveRunPerSubscription(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	subID := factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)

	first, err := storage.CreateRun(ctx, subID)
	require.NoError(t, err)

	// Повторное создание возвращает уже существующий живой запуск
	second, err := storage.CreateRun(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// После завершения запуска подписке можно завести новый
	first.Status = models.RunStatusCompleted
	first.NextWakeAt = nil
	require.NoError(t, storage.SaveRun(ctx, first))

	third, err := storage.CreateRun(ctx, subID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
	assert.Equal(t, models.RunStatusPending, third.Status)
}

func TestStorage_ClaimRun(t *testing.T) {
	storage, cleanup := setupTestDatabase(t)
	defer cleanup()

	ctx := context.Background()
	factory := NewTestDataFactory(storage)
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	factory.CreateUser(t, "testuser", "test@example.com", "hashedpassword", "user")
	subID := factory.CreateSubscription(t, "Netflix", 1000, models.FrequencyMonthly, "testuser",
		start, start.AddDate(0, 1, 0), models.StatusActive)

	runID := factory.CreateRun(t, subID, models.RunStatusPending, nil)

	run, err := storage.ClaimRun(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusRunning, run.Status)

	// Повторный захват того же запуска - no-op
	run, err = storage.ClaimRun(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, run)

	// Завершённый запуск не захватывается
	doneID := factory.CreateRun(t, subID, models.RunStatusCompleted, nil)
	run, err = storage.ClaimRun(ctx, doneID)
	require.NoError(t, err)
	assert.Nil(t, run)
}
