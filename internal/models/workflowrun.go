// Package models содержит модель состояния workflow-запуска напоминаний.
package models

import (
	"encoding/json"
	"time"
)

// Статусы workflow-запуска.
const (
	RunStatusPending   = "pending"   // создан, ещё не исполнялся
	RunStatusRunning   = "running"   // захвачен воркером
	RunStatusSleeping  = "sleeping"  // приостановлен до NextWakeAt
	RunStatusCompleted = "completed" // все пороги обработаны
	RunStatusFailed    = "failed"    // шаг завершился ошибкой
)

// WorkflowRun персистентное состояние одного запуска планировщика напоминаний.
// Steps хранит результаты завершённых шагов по их именам: при повторном входе
// в workflow завершённый шаг воспроизводится из записи, а не исполняется заново.
type WorkflowRun struct {
	ID             string                     // Уникальный идентификатор запуска (uuid)
	SubscriptionID string                     // Подписка, для которой идёт запуск
	Status         string                     // Текущий статус запуска
	Steps          map[string]json.RawMessage // Завершённые шаги и их сериализованные результаты
	NextWakeAt     *time.Time                 // Время следующего пробуждения, если запуск спит
	Error          string                     // Текст ошибки для failed-запуска
	CreatedAt      time.Time                  // Время создания запуска
	UpdatedAt      time.Time                  // Время последнего сохранения состояния
}

// StepDone сообщает, записан ли шаг с данным именем как завершённый.
func (r *WorkflowRun) StepDone(name string) bool {
	_, ok := r.Steps[name]
	return ok
}

// RunStartEvent сообщение о созданном запуске, публикуемое в RabbitMQ,
// чтобы воркер подхватил запуск не дожидаясь ближайшего тика поллера.
type RunStartEvent struct {
	RunID          string `json:"run_id"`
	SubscriptionID string `json:"subscription_id"`
}
