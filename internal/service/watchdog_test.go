package service

import (
	"context"
	"testing"
	"time"

	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/store/memory"
)

// TestWatchdog_ForcesStale проверяет принудительный перевод зависших
// записей в failed.
func TestWatchdog_ForcesStale(t *testing.T) {
	records := memory.New(100, testLogger())
	ctx := context.Background()

	stale := insertPending(t, records, "зависшая")
	if _, err := records.UpdateStatus(ctx, stale.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	pending := insertPending(t, records, "в ожидании")

	// Порог 50мс: после паузы запись в processing считается зависшей
	w := NewWatchdog(records, time.Minute, 50*time.Millisecond, testLogger())
	time.Sleep(100 * time.Millisecond)

	result := w.RunOnce(ctx)
	if result.ForcedCount != 1 {
		t.Errorf("принудительно переведено: ожидалось 1, получено %d", result.ForcedCount)
	}
	if result.Errors != 0 {
		t.Errorf("ошибок: ожидалось 0, получено %d", result.Errors)
	}

	got, err := records.GetByID(ctx, stale.ID)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if got.Status != model.StatusFailed {
		t.Errorf("статус зависшей: ожидалось failed, получено %s", got.Status)
	}

	// pending не трогается
	got, err = records.GetByID(ctx, pending.ID)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if got.Status != model.StatusPending {
		t.Errorf("статус pending-записи: ожидалось pending, получено %s", got.Status)
	}
}

// TestWatchdog_KeepsFresh проверяет, что свежие записи в processing
// не трогаются.
func TestWatchdog_KeepsFresh(t *testing.T) {
	records := memory.New(100, testLogger())
	ctx := context.Background()

	rec := insertPending(t, records, "свежая")
	if _, err := records.UpdateStatus(ctx, rec.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	w := NewWatchdog(records, time.Minute, time.Hour, testLogger())

	result := w.RunOnce(ctx)
	if result.ForcedCount != 0 {
		t.Errorf("принудительно переведено: ожидалось 0, получено %d", result.ForcedCount)
	}

	got, err := records.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ошибка чтения записи: %v", err)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("статус: ожидалось processing, получено %s", got.Status)
	}
}

// TestWatchdog_Idempotent проверяет повторный запуск: зависших больше нет.
func TestWatchdog_Idempotent(t *testing.T) {
	records := memory.New(100, testLogger())
	ctx := context.Background()

	rec := insertPending(t, records, "однократная")
	if _, err := records.UpdateStatus(ctx, rec.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	w := NewWatchdog(records, time.Minute, 50*time.Millisecond, testLogger())
	time.Sleep(100 * time.Millisecond)

	if result := w.RunOnce(ctx); result.ForcedCount != 1 {
		t.Fatalf("первый запуск: ожидалась 1 запись, получено %d", result.ForcedCount)
	}
	if result := w.RunOnce(ctx); result.ForcedCount != 0 {
		t.Errorf("второй запуск: ожидалось 0 записей, получено %d", result.ForcedCount)
	}
}

// TestWatchdog_StartStop проверяет жизненный цикл фоновой горутины.
func TestWatchdog_StartStop(t *testing.T) {
	records := memory.New(100, testLogger())

	rec := insertPending(t, records, "до старта")
	if _, err := records.UpdateStatus(context.Background(), rec.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	// Первый цикл выполняется сразу при старте
	w := NewWatchdog(records, time.Hour, 50*time.Millisecond, testLogger())
	time.Sleep(100 * time.Millisecond)

	w.Start(context.Background())
	waitForStatus(t, records, rec.ID, model.StatusFailed)
	w.Stop()
}
