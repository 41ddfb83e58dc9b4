// processor.go — пул воркеров асинхронной обработки записей.
//
// Приём содержимого и обработка разделены: координатор ставит задачу
// в буферизованную очередь и сразу отвечает клиенту. Воркеры ведут
// запись по конечному автомату pending → processing → completed/failed.
//
// Гарантия супервизии: любой исход задачи (успех, ошибка, таймаут,
// паника) завершается терминальным статусом. Записи, по которым
// обработчик так и не отчитался (например, после рестарта процесса),
// добирает watchdog.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/godedup/internal/api/middleware"
	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/processing"
	"github.com/bigkaa/godedup/internal/store"
)

// ErrQueueFull — очередь задач обработки переполнена.
var ErrQueueFull = errors.New("очередь задач обработки переполнена")

// Processor — пул воркеров обработки записей.
type Processor struct {
	records    store.RecordStore
	runner     processing.Runner
	workers    int
	jobTimeout time.Duration
	retries    int
	logger     *slog.Logger

	queue  chan processing.Task
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewProcessor создаёт пул воркеров обработки.
func NewProcessor(
	records store.RecordStore,
	runner processing.Runner,
	workers int,
	queueSize int,
	jobTimeout time.Duration,
	retries int,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		records:    records,
		runner:     runner,
		workers:    workers,
		jobTimeout: jobTimeout,
		retries:    retries,
		logger:     logger.With(slog.String("component", "processor")),
		queue:      make(chan processing.Task, queueSize),
	}
}

// Start запускает воркеры. Вызывается один раз при старте приложения.
func (p *Processor) Start(ctx context.Context) {
	procCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(procCtx, i)
	}

	p.logger.Info("Пул обработки запущен",
		slog.Int("workers", p.workers),
		slog.Int("queue_size", cap(p.queue)),
	)
}

// Stop останавливает воркеры и дожидается завершения текущих задач.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Пул обработки остановлен")
}

// Submit ставит задачу в очередь. Не блокируется: при переполнении
// очереди возвращает ErrQueueFull.
func (p *Processor) Submit(task processing.Task) error {
	select {
	case p.queue <- task:
		middleware.QueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueLen возвращает текущую глубину очереди.
func (p *Processor) QueueLen() int {
	return len(p.queue)
}

// worker — цикл одного воркера.
func (p *Processor) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	logger := p.logger.With(slog.Int("worker", id))
	logger.Debug("Воркер запущен")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Воркер остановлен")
			return
		case task := <-p.queue:
			middleware.QueueDepth.Set(float64(len(p.queue)))
			p.process(ctx, logger, task)
		}
	}
}

// process ведёт одну задачу до терминального статуса.
func (p *Processor) process(ctx context.Context, logger *slog.Logger, task processing.Task) {
	start := time.Now()

	// Паника обработчика — терминальный failed, воркер выживает
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Паника при обработке записи",
				slog.String("record_id", task.RecordID),
				slog.Any("panic", r),
			)
			p.markFailed(ctx, logger, task.RecordID, fmt.Sprintf("panic: %v", r))
		}
	}()

	// pending → processing
	if _, err := p.records.UpdateStatus(ctx, task.RecordID, model.StatusProcessing, nil); err != nil {
		if status.IsStateConflict(err) || errors.Is(err, store.ErrNotFound) {
			// Запись уже в терминальном статусе или исчезла — задача неактуальна
			logger.Warn("Задача неактуальна, переход в processing невозможен",
				slog.String("record_id", task.RecordID),
				slog.String("error", err.Error()),
			)
			return
		}
		logger.Error("Ошибка перехода в processing",
			slog.String("record_id", task.RecordID),
			slog.String("error", err.Error()),
		)
		return
	}

	// Попытки обработки с ограниченным числом повторов
	var result *processing.Result
	var lastErr error
	for attempt := 0; attempt <= p.retries; attempt++ {
		if ctx.Err() != nil {
			// Останов процесса: запись остаётся в processing, добьёт watchdog
			return
		}
		if attempt > 0 {
			middleware.ProcessingJobsTotal.WithLabelValues("retried").Inc()
			logger.Warn("Повтор обработки записи",
				slog.String("record_id", task.RecordID),
				slog.Int("attempt", attempt),
				slog.String("error", lastErr.Error()),
			)
		}

		jobCtx, cancel := context.WithTimeout(ctx, p.jobTimeout)
		result, lastErr = p.runner.Run(jobCtx, task)
		cancel()

		if lastErr == nil {
			break
		}
	}

	duration := time.Since(start)
	middleware.ProcessingDuration.Observe(duration.Seconds())

	if lastErr != nil {
		p.markFailed(ctx, logger, task.RecordID, lastErr.Error())
		return
	}

	// Ноль чанков — содержимое непригодно для обработки
	if result.ChunkCount < 1 {
		p.markFailed(ctx, logger, task.RecordID, "обработка вернула ноль чанков")
		return
	}

	// processing → completed
	cc := result.ChunkCount
	if _, err := p.records.UpdateStatus(ctx, task.RecordID, model.StatusCompleted, &cc); err != nil {
		logger.Error("Ошибка перехода в completed",
			slog.String("record_id", task.RecordID),
			slog.String("error", err.Error()),
		)
		return
	}

	middleware.ProcessingJobsTotal.WithLabelValues("completed").Inc()
	logger.Info("Запись обработана",
		slog.String("record_id", task.RecordID),
		slog.Int("chunk_count", result.ChunkCount),
		slog.Duration("duration", duration),
	)
}

// markFailed переводит запись в failed. Используется фоновый контекст:
// переход должен состояться даже при отменённом контексте воркера.
func (p *Processor) markFailed(_ context.Context, logger *slog.Logger, recordID, reason string) {
	failCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.records.UpdateStatus(failCtx, recordID, model.StatusFailed, nil); err != nil {
		logger.Error("Ошибка перехода в failed",
			slog.String("record_id", recordID),
			slog.String("error", err.Error()),
		)
		return
	}

	middleware.ProcessingJobsTotal.WithLabelValues("failed").Inc()
	logger.Warn("Запись переведена в failed",
		slog.String("record_id", recordID),
		slog.String("reason", reason),
	)
}
