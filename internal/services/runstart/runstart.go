// Package runstart создает workflow-запуски напоминаний и объявляет о них воркеру.
package runstart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/ratishjain12/subscription-management-api/internal/lib/rabbitmq"
	"github.com/ratishjain12/subscription-management-api/internal/lib/sl"
	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// ErrSubscriptionNotFound подписка не существует или принадлежит другому пользователю.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// RunRepository создает записи workflow-запусков в хранилище
// и читает подписку для проверки владельца.
type RunRepository interface {
	CreateRun(ctx context.Context, subscriptionID string) (*models.WorkflowRun, error)
	FindSubscriptionWithOwner(ctx context.Context, id string) (*models.SubscriptionInfo, error)
}

// RunStartService регистрирует запуск в хранилище и публикует событие о старте.
type RunStartService struct {
	runs RunRepository
	ch   *amqp.Channel
	log  *slog.Logger
}

// NewRunStartService создает новый экземпляр RunStartService.
func NewRunStartService(runs RunRepository, ch *amqp.Channel, log *slog.Logger) *RunStartService {
	return &RunStartService{
		runs: runs,
		ch:   ch,
		log:  log,
	}
}

// StartRunForOwner запускает workflow напоминаний от имени пользователя.
// Подписка должна существовать и принадлежать ему; администратор может
// запускать напоминания по любой подписке.
func (s *RunStartService) StartRunForOwner(ctx context.Context, subscriptionID, username, role string) (string, error) {
	info, err := s.runs.FindSubscriptionWithOwner(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	if info == nil || (role != "admin" && info.Username != username) {
		return "", ErrSubscriptionNotFound
	}
	return s.StartRun(ctx, subscriptionID)
}

// StartRun создает pending-запуск для подписки и возвращает его ID.
// Хранилище гарантирует не более одного живого запуска на подписку:
// повторный вызов возвращает ID уже существующего.
//
// Событие в RabbitMQ лишь ускоряет подхват: запись в workflow_runs уже
// сделана, поэтому потерянное сообщение означает только задержку до
// ближайшего тика поллера, а не потерю запуска.
func (s *RunStartService) StartRun(ctx context.Context, subscriptionID string) (string, error) {
	run, err := s.runs.CreateRun(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	s.log.Info("created reminder run",
		slog.String("run_id", run.ID),
		slog.String("subscription_id", subscriptionID))

	if s.ch != nil {
		event := models.RunStartEvent{RunID: run.ID, SubscriptionID: subscriptionID}
		if err := rabbitmq.PublishMessage(s.ch, rabbitmq.ExchangeReminders, "run.start", event); err != nil {
			s.log.Warn("failed to publish run start event, poller will pick the run up", sl.Err(err))
		}
	}
	return run.ID, nil
}
