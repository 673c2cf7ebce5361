package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// Context передается в workflow и предоставляет долговечные примитивы:
// мемоизированные шаги и приостановку до заданного времени.
type Context struct {
	ctx   context.Context
	run   *models.WorkflowRun
	store Store
	clock Clock
	log   *slog.Logger
}

// Context возвращает context.Context текущего захода.
func (c *Context) Context() context.Context { return c.ctx }

// Now возвращает текущее время по часам движка.
func (c *Context) Now() time.Time { return c.clock.Now() }

// SubscriptionID возвращает идентификатор подписки, для которой идет запуск.
func (c *Context) SubscriptionID() string { return c.run.SubscriptionID }

// Log возвращает логгер с полями текущего запуска.
func (c *Context) Log() *slog.Logger { return c.log }

// RunStep выполняет именованный шаг не более одного раза за время жизни запуска.
//
// Если шаг уже записан как завершённый, его сериализованный результат
// воспроизводится в result без повторного вызова fn - так повторный вход
// после падения или пробуждения не дублирует побочные эффекты. Результат
// свежего вызова сохраняется в хранилище до возврата, поэтому шаг, чьё
// состояние не удалось записать, считается невыполненным.
func (c *Context) RunStep(name string, result any, fn func(ctx context.Context) (any, error)) error {
	if raw, ok := c.run.Steps[name]; ok {
		c.log.Debug("replaying completed step", slog.String("step", name))
		if result == nil {
			return nil
		}
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("step %q: replay: %w", name, err)
		}
		return nil
	}

	c.log.Info("executing step", slog.String("step", name))
	out, err := fn(c.ctx)
	if err != nil {
		return fmt.Errorf("step %q: %w", name, err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("step %q: marshal result: %w", name, err)
	}
	c.run.Steps[name] = raw
	if err := c.store.SaveRun(c.ctx, c.run); err != nil {
		return fmt.Errorf("step %q: save run: %w", name, err)
	}

	if result != nil {
		if err := json.Unmarshal(raw, result); err != nil {
			return fmt.Errorf("step %q: decode result: %w", name, err)
		}
	}
	return nil
}

// SleepUntil приостанавливает запуск до момента t.
//
// Если шаг сна уже записан или t не в будущем, исполнение продолжается сразу,
// и шаг фиксируется как завершённый. Иначе время пробуждения и статус sleeping
// сохраняются в хранилище, а наружу возвращается ErrSuspended - workflow
// разматывается до Engine.Execute, не занимая воркер на время ожидания.
func (c *Context) SleepUntil(name string, t time.Time) error {
	if c.run.StepDone(name) {
		return nil
	}

	now := c.clock.Now()
	if !t.After(now) {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("sleep %q: %w", name, err)
		}
		c.run.Steps[name] = raw
		if err := c.store.SaveRun(c.ctx, c.run); err != nil {
			return fmt.Errorf("sleep %q: save run: %w", name, err)
		}
		return nil
	}

	wakeAt := t
	c.run.NextWakeAt = &wakeAt
	c.run.Status = models.RunStatusSleeping
	if err := c.store.SaveRun(c.ctx, c.run); err != nil {
		return fmt.Errorf("sleep %q: save run: %w", name, err)
	}
	c.log.Info("suspending until wake time",
		slog.String("step", name), slog.Time("wake_at", wakeAt))
	return ErrSuspended
}
