// Package workflow реализует движок долговечных workflow-запусков.
//
// Состояние запуска (завершённые шаги, время пробуждения) хранится во внешнем
// Store, поэтому процесс может упасть в любой момент: при повторном входе
// завершённые шаги воспроизводятся из записи без повторения побочных эффектов,
// а исполнение продолжается с первого незавершённого шага. Во время сна запуск
// не держит ни горутину, ни соединение - его позже поднимет поллер, возможно
// на другом воркере.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/ratishjain12/subscription-management-api/internal/lib/sl"
	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// ErrSuspended сигнальная ошибка: workflow приостановлен до времени пробуждения.
// Для вызывающего это не сбой, а нормальное завершение текущего захода.
var ErrSuspended = errors.New("workflow suspended")

// Store персистентное хранилище состояний запусков.
type Store interface {
	SaveRun(ctx context.Context, run *models.WorkflowRun) error
}

// Clock источник текущего времени. В тестах подменяется ручными часами,
// чтобы прогонять многодневные сценарии за миллисекунды.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock возвращает часы, читающие системное время в UTC.
func SystemClock() Clock { return systemClock{} }

// Workflow бизнес-логика одного типа запусков.
type Workflow interface {
	Run(wctx *Context) error
}

// Engine исполняет workflow-запуски поверх Store.
type Engine struct {
	store Store
	clock Clock
	wf    Workflow
	log   *slog.Logger
}

// NewEngine создает новый Engine.
func NewEngine(store Store, clock Clock, wf Workflow, log *slog.Logger) *Engine {
	return &Engine{
		store: store,
		clock: clock,
		wf:    wf,
		log:   log,
	}
}

// Execute выполняет один заход workflow для захваченного запуска.
//
// Запуск должен быть уже переведён в статус running тем, кто его захватил.
// Выход через ErrSuspended означает, что состояние sleeping уже сохранено
// и запуск будет продолжен после next_wake_at; ошибка шага переводит запуск
// в failed без ретраев, успешный возврат - в completed.
func (e *Engine) Execute(ctx context.Context, run *models.WorkflowRun) error {
	const op = "workflow.Execute"
	log := e.log.With(
		slog.String("op", op),
		slog.String("run_id", run.ID),
		slog.String("subscription_id", run.SubscriptionID),
	)

	if run.Steps == nil {
		run.Steps = make(map[string]json.RawMessage)
	}

	wctx := &Context{
		ctx:   ctx,
		run:   run,
		store: e.store,
		clock: e.clock,
		log:   log,
	}

	err := e.wf.Run(wctx)
	switch {
	case errors.Is(err, ErrSuspended):
		log.Info("run suspended", slog.Time("next_wake_at", *run.NextWakeAt))
		return nil
	case err != nil:
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
		run.NextWakeAt = nil
		if saveErr := e.store.SaveRun(ctx, run); saveErr != nil {
			log.Error("failed to save failed run", sl.Err(saveErr))
		}
		log.Error("run failed", sl.Err(err))
		return err
	default:
		run.Status = models.RunStatusCompleted
		run.Error = ""
		run.NextWakeAt = nil
		if saveErr := e.store.SaveRun(ctx, run); saveErr != nil {
			log.Error("failed to save completed run", sl.Err(saveErr))
			return saveErr
		}
		log.Info("run completed")
		return nil
	}
}
