package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ratishjain12/subscription-management-api/internal/models"
)

// CreateRun создает новый workflow-запуск для подписки в статусе pending.
// Немедленное next_wake_at позволяет поллеру подхватить запуск на первом же тике,
// даже если событие о старте из очереди было потеряно.
//
// На одну подписку допускается не более одного незавершённого запуска:
// частичный уникальный индекс по subscription_id гасит вставку дубля,
// и тогда возвращается уже существующий живой запуск.
func (s *Storage) CreateRun(ctx context.Context, subscriptionID string) (*models.WorkflowRun, error) {
	const op = "storage.CreateRun"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO workflow_runs (subscription_id, status, steps, next_wake_at)
			  VALUES ($1, $2, '{}'::jsonb, now())
			  ON CONFLICT (subscription_id) WHERE status IN ('pending', 'running', 'sleeping')
			  DO NOTHING
			  RETURNING id, subscription_id, status, steps, next_wake_at, error, created_at, updated_at`
	row := s.DB.QueryRowContext(ctx, query, subscriptionID, models.RunStatusPending)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return s.findLiveRun(ctx, op, subscriptionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return run, nil
}

func (s *Storage) findLiveRun(ctx context.Context, op, subscriptionID string) (*models.WorkflowRun, error) {
	query := `SELECT id, subscription_id, status, steps, next_wake_at, error, created_at, updated_at
			  FROM workflow_runs
			  WHERE subscription_id = $1 AND status IN ($2, $3, $4)`
	row := s.DB.QueryRowContext(ctx, query, subscriptionID,
		models.RunStatusPending, models.RunStatusRunning, models.RunStatusSleeping)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return run, nil
}

// GetRun возвращает workflow-запуск по его ID.
func (s *Storage) GetRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	const op = "storage.GetRun"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, subscription_id, status, steps, next_wake_at, error, created_at, updated_at
			  FROM workflow_runs WHERE id = $1`
	row := s.DB.QueryRowContext(ctx, query, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return run, nil
}

// SaveRun сохраняет текущее состояние запуска: статус, завершённые шаги,
// время пробуждения и текст ошибки.
func (s *Storage) SaveRun(ctx context.Context, run *models.WorkflowRun) error {
	const op = "storage.SaveRun"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	query := `UPDATE workflow_runs
			  SET status = $1, steps = $2, next_wake_at = $3, error = $4, updated_at = now()
			  WHERE id = $5`
	result, err := s.DB.ExecContext(ctx, query,
		run.Status, steps, run.NextWakeAt, run.Error, run.ID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%s: run %s not found", op, run.ID)
	}
	return nil
}

// ClaimDueRuns атомарно захватывает пачку запусков, чьё время пробуждения
// наступило, переводя их в статус running. SKIP LOCKED позволяет нескольким
// воркерам разбирать очередь без конфликтов: запуск достаётся ровно одному.
//
// Кроме pending и sleeping захватываются и running-запуски, чей updated_at
// старше staleAfter: воркер, упавший между захватом и сохранением состояния,
// оставляет запуск в running, и без переосвоения он завис бы навсегда.
// Живой воркер обновляет updated_at при каждом сохранении шага.
func (s *Storage) ClaimDueRuns(ctx context.Context, now time.Time, staleAfter time.Duration, limit int) ([]*models.WorkflowRun, error) {
	const op = "storage.ClaimDueRuns"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	staleBefore := now.Add(-staleAfter)
	query := `UPDATE workflow_runs
			  SET status = $1, updated_at = now()
			  WHERE id IN (
			      SELECT id FROM workflow_runs
			      WHERE (status IN ($2, $3)
			             AND (next_wake_at IS NULL OR next_wake_at <= $4))
			         OR (status = $1 AND updated_at <= $5)
			      ORDER BY next_wake_at NULLS FIRST
			      LIMIT $6
			      FOR UPDATE SKIP LOCKED
			  )
			  RETURNING id, subscription_id, status, steps, next_wake_at, error, created_at, updated_at`
	rows, err := s.DB.QueryContext(ctx, query,
		models.RunStatusRunning, models.RunStatusPending, models.RunStatusSleeping, now, staleBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []*models.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = rows.Close(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// ClaimRun захватывает один конкретный запуск, если его ещё можно исполнять.
// Возвращает nil, nil, когда запуск уже забрал другой воркер или он завершён.
func (s *Storage) ClaimRun(ctx context.Context, id string) (*models.WorkflowRun, error) {
	const op = "storage.ClaimRun"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE workflow_runs
			  SET status = $1, updated_at = now()
			  WHERE id = $2 AND status IN ($3, $4)
			  RETURNING id, subscription_id, status, steps, next_wake_at, error, created_at, updated_at`
	row := s.DB.QueryRowContext(ctx, query,
		models.RunStatusRunning, id, models.RunStatusPending, models.RunStatusSleeping)
	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return run, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var run models.WorkflowRun
	var steps []byte
	var nextWakeAt sql.NullTime
	var runErr sql.NullString

	if err := row.Scan(&run.ID, &run.SubscriptionID, &run.Status, &steps,
		&nextWakeAt, &runErr, &run.CreatedAt, &run.UpdatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &run.Steps); err != nil {
		return nil, err
	}
	if run.Steps == nil {
		run.Steps = make(map[string]json.RawMessage)
	}
	if nextWakeAt.Valid {
		run.NextWakeAt = &nextWakeAt.Time
	}
	if runErr.Valid {
		run.Error = runErr.String
	}
	return &run, nil
}
