// Package subscription содержит бизнес-логику управления подписками и кеширование.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// SubscriptionRepository определяет методы для работы с подписками в хранилище.
type SubscriptionRepository interface {
	// CreateSubscription добавляет новую подписку и возвращает её ID.
	CreateSubscription(ctx context.Context, sub models.Subscription) (string, error)
	// RemoveSubscription удаляет подписку по ID и возвращает количество удалённых записей.
	RemoveSubscription(ctx context.Context, id string) (int, error)
	// ReadSubscription возвращает подписку по ID.
	ReadSubscription(ctx context.Context, id string) (*models.Subscription, error)
	// UpdateSubscription обновляет данные подписки по ID.
	UpdateSubscription(ctx context.Context, sub models.Subscription, id, username string) (int, error)
	// ListSubscriptions возвращает список подписок пользователя с пагинацией.
	ListSubscriptions(ctx context.Context, username string, limit, offset int) ([]*models.Subscription, error)
	// ListAllSubscriptions возвращает список всех подписок с пагинацией.
	ListAllSubscriptions(ctx context.Context, limit, offset int) ([]*models.Subscription, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// RunStarter запускает workflow напоминаний для подписки.
type RunStarter interface {
	StartRun(ctx context.Context, subscriptionID string) (string, error)
}

// SubscriptionService реализует бизнес-логику работы с подписками.
// Создание активной подписки попутно запускает workflow напоминаний.
type SubscriptionService struct {
	repo  SubscriptionRepository
	cache Cache
	runs  RunStarter
	log   *slog.Logger
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(repo SubscriptionRepository, cache Cache, runs RunStarter, log *slog.Logger) *SubscriptionService {
	return &SubscriptionService{
		repo:  repo,
		cache: cache,
		runs:  runs,
		log:   log,
	}
}

// renewalAfter возвращает дату продления, следующую за startDate для данной частоты.
func renewalAfter(startDate time.Time, frequency string) time.Time {
	switch frequency {
	case models.FrequencyDaily:
		return startDate.AddDate(0, 0, 1)
	case models.FrequencyWeekly:
		return startDate.AddDate(0, 0, 7)
	case models.FrequencyYearly:
		return startDate.AddDate(1, 0, 0)
	default:
		return startDate.AddDate(0, 1, 0)
	}
}

// Create создает новую подписку пользователя, кеширует её и возвращает ID.
// Если дата продления не передана, она вычисляется из даты начала и частоты;
// подписка с датой продления в прошлом сразу помечается как expired.
// Для активной подписки создается workflow-запуск напоминаний.
func (s *SubscriptionService) Create(ctx context.Context, userName string, req models.DummySubscription) (string, error) {
	startDate, err := time.Parse("02-01-2006", req.StartDate)
	if err != nil {
		return "", fmt.Errorf("invalid start date: %w", err)
	}

	var renewalDate time.Time
	if req.RenewalDate != "" {
		renewalDate, err = time.Parse("02-01-2006", req.RenewalDate)
		if err != nil {
			return "", fmt.Errorf("invalid renewal date: %w", err)
		}
		if !renewalDate.After(startDate) {
			return "", fmt.Errorf("renewal date must be after start date")
		}
	} else {
		renewalDate = renewalAfter(startDate, req.Frequency)
	}

	status := models.StatusActive
	if renewalDate.Before(time.Now().UTC()) {
		status = models.StatusExpired
	}

	sub := models.Subscription{
		ServiceName: req.ServiceName,
		Price:       req.Price,
		Frequency:   req.Frequency,
		Username:    userName,
		StartDate:   startDate,
		RenewalDate: renewalDate,
		Status:      status,
	}

	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return "", err
	}
	sub.ID = id
	s.log.Info("created new subscription", slog.String("id", id))

	cacheKey := fmt.Sprintf("subscription:%s", id)
	if err := s.cache.Set(cacheKey, sub, time.Hour); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", cacheKey), slog.Any("err", err))
	}

	if status == models.StatusActive {
		if _, err := s.runs.StartRun(ctx, id); err != nil {
			// Подписка уже создана; запуск напоминаний можно завести позже
			// через workflow-эндпоинт, поэтому ошибка не откатывает создание.
			s.log.Error("failed to start reminder run", slog.String("subscription_id", id), slog.Any("err", err))
		}
	}

	return id, nil
}

// Remove удаляет подписку по ID и инвалидирует кеш.
func (s *SubscriptionService) Remove(ctx context.Context, id string) (int, error) {
	cacheKey := fmt.Sprintf("subscription:%s", id)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}

	count, err := s.repo.RemoveSubscription(ctx, id)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Read возвращает подписку по ID, используя кеш или репозиторий.
func (s *SubscriptionService) Read(ctx context.Context, id string) (*models.Subscription, error) {
	var result *models.Subscription
	cacheKey := fmt.Sprintf("subscription:%s", id)
	found, err := s.cache.Get(cacheKey, &result)
	if err != nil {
		return nil, err
	}
	if found {
		return result, nil
	}
	result, err = s.repo.ReadSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	if result != nil {
		if err := s.cache.Set(cacheKey, result, time.Hour); err != nil {
			s.log.Warn("failed to add to cache", slog.String("key", cacheKey), slog.Any("err", err))
		}
	}
	return result, nil
}

// Update обновляет подписку и обновляет кеш.
func (s *SubscriptionService) Update(ctx context.Context, req models.DummySubscription, id, username string) (int, error) {
	startDate, err := time.Parse("02-01-2006", req.StartDate)
	if err != nil {
		return 0, fmt.Errorf("invalid start date: %w", err)
	}

	var renewalDate time.Time
	if req.RenewalDate != "" {
		renewalDate, err = time.Parse("02-01-2006", req.RenewalDate)
		if err != nil {
			return 0, fmt.Errorf("invalid renewal date: %w", err)
		}
	} else {
		renewalDate = renewalAfter(startDate, req.Frequency)
	}

	sub := models.Subscription{
		ServiceName: req.ServiceName,
		Price:       req.Price,
		Frequency:   req.Frequency,
		Username:    username,
		StartDate:   startDate,
		RenewalDate: renewalDate,
		Status:      models.StatusActive,
	}
	res, err := s.repo.UpdateSubscription(ctx, sub, id, username)
	if err != nil {
		return 0, err
	}
	s.log.Info("updated subscription in storage", slog.String("id", id))

	cacheKey := fmt.Sprintf("subscription:%s", id)
	if err := s.cache.Set(cacheKey, sub, time.Hour); err != nil {
		s.log.Warn("failed to cache subscription", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return res, nil
}

// Cancel переводит подписку в статус cancelled и инвалидирует кеш.
func (s *SubscriptionService) Cancel(ctx context.Context, id, username string) (int, error) {
	sub, err := s.repo.ReadSubscription(ctx, id)
	if err != nil {
		return 0, err
	}
	sub.Status = models.StatusCancelled
	res, err := s.repo.UpdateSubscription(ctx, *sub, id, username)
	if err != nil {
		return 0, err
	}

	cacheKey := fmt.Sprintf("subscription:%s", id)
	if err := s.cache.Invalidate(cacheKey); err != nil {
		s.log.Warn("failed to remove from cache", slog.String("key", cacheKey), slog.Any("err", err))
	}
	return res, nil
}

// List возвращает список подписок в зависимости от роли пользователя.
func (s *SubscriptionService) List(ctx context.Context, username, role string, limit, offset int) ([]*models.Subscription, error) {
	var err error
	var subs []*models.Subscription
	if role == "admin" {
		subs, err = s.repo.ListAllSubscriptions(ctx, limit, offset)
	} else {
		subs, err = s.repo.ListSubscriptions(ctx, username, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return subs, nil
}
