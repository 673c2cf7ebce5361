// Package reminder содержит workflow рассылки напоминаний о продлении подписки.
//
// Один запуск обслуживает одну подписку: читает её снимок, затем для каждого
// порога (за 7, 5, 3 и 1 день до продления, в порядке убывания) спит до даты
// напоминания и отправляет ровно одно письмо. Снимок подписки читается один
// раз в начале запуска; отмена подписки после старта запуска через снимок
// не видна.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratishjain12/subscription-management-api/internal/models"
	"github.com/ratishjain12/subscription-management-api/internal/workflow"
)

// Thresholds дни до даты продления, в которые уходят напоминания.
// Порядок строго убывающий: письмо за меньший срок всегда отправляется
// после письма за больший.
var Thresholds = []int{7, 5, 3, 1}

// SubscriptionProvider читает снимок подписки с контактами владельца.
type SubscriptionProvider interface {
	FindSubscriptionWithOwner(ctx context.Context, id string) (*models.SubscriptionInfo, error)
}

// Notifier отправляет одно письмо-напоминание для заданного порога.
type Notifier interface {
	SendReminder(ctx context.Context, info *models.SubscriptionInfo, daysBefore int) error
}

// Service реализует workflow.Workflow для напоминаний.
type Service struct {
	subs     SubscriptionProvider
	notifier Notifier
	log      *slog.Logger
}

// New создает новый Service.
func New(subs SubscriptionProvider, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		subs:     subs,
		notifier: notifier,
		log:      log,
	}
}

// Run прогоняет один заход workflow напоминаний.
//
// Завершённые шаги воспроизводятся из состояния запуска, поэтому Run можно
// вызывать сколько угодно раз: каждое письмо уходит не более одного раза.
// Возврат nil без отправленных писем - нормальное завершение, а не ошибка.
func (s *Service) Run(wctx *workflow.Context) error {
	log := wctx.Log()

	var info *models.SubscriptionInfo
	if err := wctx.RunStep("fetch subscription", &info, func(ctx context.Context) (any, error) {
		return s.subs.FindSubscriptionWithOwner(ctx, wctx.SubscriptionID())
	}); err != nil {
		return err
	}

	if info == nil {
		log.Info("subscription not found, nothing to remind")
		return nil
	}
	if info.Status != models.StatusActive {
		log.Info("subscription is not active, stopping reminders",
			slog.String("status", info.Status))
		return nil
	}
	if info.RenewalDate.Before(wctx.Now()) {
		log.Info("renewal date has already passed, stopping reminders",
			slog.Time("renewal_date", info.RenewalDate))
		return nil
	}

	for _, daysBefore := range Thresholds {
		reminderDate := info.RenewalDate.AddDate(0, 0, -daysBefore)

		if reminderDate.After(wctx.Now()) {
			sleepStep := fmt.Sprintf("sleep until %d days before", daysBefore)
			if err := wctx.SleepUntil(sleepStep, reminderDate); err != nil {
				return err
			}
		}

		if !sameDay(wctx.Now(), reminderDate) {
			// Окно порога упущено (воркер был недоступен) - письмо не отправляется.
			log.Info("reminder window missed, skipping threshold",
				slog.Int("days_before", daysBefore),
				slog.Time("reminder_date", reminderDate))
			continue
		}

		snapshot := info
		sendStep := fmt.Sprintf("send %d days before reminder", daysBefore)
		if err := wctx.RunStep(sendStep, nil, func(ctx context.Context) (any, error) {
			return nil, s.notifier.SendReminder(ctx, snapshot, daysBefore)
		}); err != nil {
			return err
		}
	}

	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
