// Package worker собирает воркер напоминаний: он подхватывает workflow-запуски
// из событий RabbitMQ и из поллера базы и исполняет их движком workflow.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/ratishjain12/subscription-management-api/internal/config"
	"github.com/ratishjain12/subscription-management-api/internal/lib/rabbitmq"
	"github.com/ratishjain12/subscription-management-api/internal/lib/sl"
	"github.com/ratishjain12/subscription-management-api/internal/lib/smtp"
	"github.com/ratishjain12/subscription-management-api/internal/models"
	reminderservice "github.com/ratishjain12/subscription-management-api/internal/services/reminder"
	senderservice "github.com/ratishjain12/subscription-management-api/internal/services/sender"
	"github.com/ratishjain12/subscription-management-api/internal/storage/repository"
	"github.com/ratishjain12/subscription-management-api/internal/workflow"
)

// App представляет приложение воркера напоминаний.
type App struct {
	engine       *workflow.Engine
	db           *repository.Storage
	conn         *amqp.Connection
	ch           *amqp.Channel
	pollInterval time.Duration
	batchSize    int
	leaseTimeout time.Duration
	logger       *slog.Logger
}

func waitForDB(db *repository.Storage) error {
	for range 10 {
		err := repository.CheckDatabaseReady(db)
		if err == nil {
			return nil
		}
		time.Sleep(3 * time.Second)
	}
	return fmt.Errorf("database not ready after retries")
}

// New создает новый экземпляр воркера напоминаний.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetReminderQueues())
	if err != nil {
		closeResources(nil, conn, logger)
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		closeResources(ch, conn, logger)
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}

	if err := waitForDB(db); err != nil {
		closeResources(ch, conn, logger)
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(transport, logger)
	reminderService := reminderservice.New(db, senderService, logger)
	engine := workflow.NewEngine(db, workflow.SystemClock(), reminderService, logger)

	return &App{
		engine:       engine,
		db:           db,
		conn:         conn,
		ch:           ch,
		pollInterval: cfg.Worker.PollInterval,
		batchSize:    cfg.Worker.BatchSize,
		leaseTimeout: cfg.Worker.LeaseTimeout,
		logger:       logger,
	}, nil
}

func closeResources(ch *amqp.Channel, conn *amqp.Connection, logger *slog.Logger) {
	if ch != nil {
		if err := ch.Close(); err != nil {
			logger.Error("failed to close channel", slog.Any("err", err))
		}
	}
	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Error("failed to close connection", slog.Any("err", err))
		}
	}
}

// Run запускает потребителя событий и поллер и блокируется до отмены контекста.
// Ресурсы закрываются только после того, как оба цикла дождутся своих
// текущих запусков: терминальный SaveRun должен успеть пройти по живому пулу.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.consumeRunStarts(ctx)
	}()
	go func() {
		defer wg.Done()
		a.pollDueRuns(ctx)
	}()

	<-ctx.Done()

	a.logger.Info("shutting down reminder worker")
	wg.Wait()
	closeResources(a.ch, a.conn, a.logger)
	if err := a.db.DB.Close(); err != nil {
		a.logger.Error("failed to close storage", sl.Err(err))
	}
	return nil
}

// consumeRunStarts подхватывает свежесозданные запуски из очереди событий.
// Захват через базу защищает от дублей: событие о запуске, который уже
// забрал поллер, превращается в no-op.
func (a *App) consumeRunStarts(ctx context.Context) {
	const op = "worker.consumeRunStarts"
	log := a.logger.With(slog.String("op", op))

	queues := rabbitmq.GetReminderQueues()
	err := rabbitmq.ConsumerMessage(ctx, a.ch, queues[0].QueueName, func(body []byte) error {
		var event models.RunStartEvent
		if err := json.Unmarshal(body, &event); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		// Исполнение идёт на несрываемом контексте: начатый запуск должен
		// сохранить терминальное состояние даже во время остановки воркера.
		runCtx := context.WithoutCancel(ctx)
		run, err := a.db.ClaimRun(runCtx, event.RunID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if run == nil {
			log.Info("run already claimed or not due", slog.String("run_id", event.RunID))
			return nil
		}
		return a.engine.Execute(runCtx, run)
	})
	if err != nil && ctx.Err() == nil {
		log.Error("consumer stopped", sl.Err(err))
	}
}

// pollDueRuns периодически забирает запуски с наступившим next_wake_at.
// Поллер - страховка долговечности: он доводит до конца запуски, которые
// спали, потерялись при рестарте воркера или чьё событие не дошло.
func (a *App) pollDueRuns(ctx context.Context) {
	const op = "worker.pollDueRuns"
	log := a.logger.With(slog.String("op", op))

	ticker := time.NewTicker(a.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runs, err := a.db.ClaimDueRuns(ctx, time.Now().UTC(), a.leaseTimeout, a.batchSize)
			if err != nil {
				log.Error("failed to claim due runs", sl.Err(err))
				continue
			}
			// Захваченная пачка доводится до конца на несрываемом контексте,
			// чтобы остановка воркера не обрывала сохранение состояния.
			runCtx := context.WithoutCancel(ctx)
			for _, run := range runs {
				if err := a.engine.Execute(runCtx, run); err != nil {
					log.Error("run execution failed", slog.String("run_id", run.ID), sl.Err(err))
				}
			}
		}
	}
}
