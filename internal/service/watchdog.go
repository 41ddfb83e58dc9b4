// watchdog.go — фоновый сервис надзора за зависшими записями.
//
// Записи могут навсегда остаться в processing: рестарт процесса,
// потерянная задача, обработчик, не отчитавшийся об исходе. Watchdog
// периодически сканирует хранилище и принудительно переводит записи,
// висящие в processing дольше порога, в failed.
//
// Попутно обновляет gauge ds_records_total по статусам.
//
// Запускается как горутина с периодическим тикером (DS_WATCHDOG_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bigkaa/godedup/internal/api/middleware"
	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/store"
)

// WatchdogResult — результат одного запуска watchdog.
type WatchdogResult struct {
	// ForcedCount — количество записей, переведённых в failed
	ForcedCount int
	// Errors — количество ошибок при обработке записей
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Watchdog — фоновый сервис надзора за зависшими записями.
type Watchdog struct {
	records    store.RecordStore
	interval   time.Duration
	staleAfter time.Duration
	logger     *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatchdog создаёт watchdog.
func NewWatchdog(
	records store.RecordStore,
	interval time.Duration,
	staleAfter time.Duration,
	logger *slog.Logger,
) *Watchdog {
	return &Watchdog{
		records:    records,
		interval:   interval,
		staleAfter: staleAfter,
		logger:     logger.With(slog.String("component", "watchdog")),
	}
}

// Start запускает фоновую горутину watchdog с периодическим тикером.
// Вызывается один раз при старте приложения.
func (w *Watchdog) Start(ctx context.Context) {
	wdCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(wdCtx)

	w.logger.Info("Watchdog запущен",
		slog.String("interval", w.interval.String()),
		slog.String("stale_after", w.staleAfter.String()),
	)
}

// Stop останавливает фоновый процесс watchdog.
func (w *Watchdog) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
	w.logger.Info("Watchdog остановлен")
}

// run — основной цикл фоновой горутины.
func (w *Watchdog) run(ctx context.Context) {
	defer close(w.done)

	// Первый запуск — сразу после старта: добираем записи,
	// зависшие до рестарта процесса
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл надзора.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (w *Watchdog) RunOnce(ctx context.Context) *WatchdogResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	result := &WatchdogResult{}

	w.logger.Debug("Watchdog запуск начат")

	cutoff := time.Now().UTC().Add(-w.staleAfter)
	stale, err := w.records.StaleProcessing(ctx, cutoff)
	if err != nil {
		w.logger.Error("Watchdog: ошибка поиска зависших записей",
			slog.String("error", err.Error()),
		)
		result.Errors++
		result.Duration = time.Since(start)
		return result
	}

	for _, rec := range stale {
		if _, err := w.records.UpdateStatus(ctx, rec.ID, model.StatusFailed, nil); err != nil {
			// Гонка с воркером: запись успела стать терминальной — не ошибка
			if status.IsStateConflict(err) {
				continue
			}
			w.logger.Error("Watchdog: ошибка перевода записи в failed",
				slog.String("record_id", rec.ID),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}

		middleware.WatchdogForcedTotal.Inc()
		w.logger.Warn("Watchdog: зависшая запись переведена в failed",
			slog.String("record_id", rec.ID),
			slog.String("fingerprint", rec.Fingerprint),
			slog.Time("updated_at", rec.UpdatedAt),
		)
		result.ForcedCount++
	}

	w.refreshGauges(ctx)

	result.Duration = time.Since(start)

	w.logger.Info("Watchdog завершён",
		slog.Int("forced", result.ForcedCount),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// refreshGauges обновляет gauge количества записей по статусам.
func (w *Watchdog) refreshGauges(ctx context.Context) {
	stats, err := w.records.Stats(ctx)
	if err != nil {
		w.logger.Error("Watchdog: ошибка получения статистики",
			slog.String("error", err.Error()),
		)
		return
	}
	for st, count := range stats.CountsByStatus {
		middleware.RecordsTotal.WithLabelValues(string(st)).Set(float64(count))
	}
}
