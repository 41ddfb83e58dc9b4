package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/fingerprint"
	"github.com/bigkaa/godedup/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore() *Store {
	return New(1000, testLogger())
}

func testRecord(name string) *model.Record {
	now := time.Now().UTC()
	return &model.Record{
		ID:          uuid.New().String(),
		Name:        name,
		Fingerprint: fingerprint.Sum([]byte(name)),
		Size:        int64(len(name)),
		ContentType: "text/plain",
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func intPtr(n int) *int { return &n }

// TestInsertAndGet проверяет вставку и чтение записи.
func TestInsertAndGet(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	rec := testRecord("документ.pdf")
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	got, err := s.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ошибка чтения по id: %v", err)
	}
	if got.Fingerprint != rec.Fingerprint {
		t.Errorf("отпечаток: ожидалось %s, получено %s", rec.Fingerprint, got.Fingerprint)
	}
	if got.Status != model.StatusPending {
		t.Errorf("статус: ожидалось pending, получено %s", got.Status)
	}

	byFp, err := s.GetByFingerprint(ctx, rec.Fingerprint)
	if err != nil {
		t.Fatalf("ошибка чтения по отпечатку: %v", err)
	}
	if byFp.ID != rec.ID {
		t.Errorf("id: ожидалось %s, получено %s", rec.ID, byFp.ID)
	}
}

// TestGet_NotFound проверяет ErrNotFound для неизвестных ключей.
func TestGet_NotFound(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.GetByID(ctx, uuid.New().String()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
	if _, err := s.GetByFingerprint(ctx, fingerprint.Sum([]byte("нет"))); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestInsert_DuplicateFingerprint проверяет уникальность отпечатка.
func TestInsert_DuplicateFingerprint(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	first := testRecord("содержимое")
	if err := s.Insert(ctx, first); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	second := testRecord("содержимое") // тот же отпечаток
	if err := s.Insert(ctx, second); !errors.Is(err, store.ErrConflict) {
		t.Errorf("ожидалась ErrConflict, получено %v", err)
	}
}

// TestInsert_ReturnsCopy проверяет, что хранилище изолировано от
// изменений снаружи.
func TestInsert_ReturnsCopy(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	rec := testRecord("изоляция")
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	// Мутируем оригинал и прочитанную копию
	rec.Name = "изменено снаружи"
	got, _ := s.GetByID(ctx, rec.ID)
	got.Status = model.StatusFailed

	fresh, _ := s.GetByID(ctx, rec.ID)
	if fresh.Name != "изоляция" {
		t.Error("мутация оригинала не должна влиять на хранилище")
	}
	if fresh.Status != model.StatusPending {
		t.Error("мутация прочитанной копии не должна влиять на хранилище")
	}
}

// TestConcurrentInsert_OneWinner проверяет, что из N конкурентных
// вставок одного отпечатка выигрывает ровно одна.
func TestConcurrentInsert_OneWinner(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	const n = 50
	fp := fingerprint.Sum([]byte("общее содержимое"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	conflicts := 0

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testRecord(fmt.Sprintf("имя-%d", i))
			rec.Fingerprint = fp
			err := s.Insert(ctx, rec)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("неожиданная ошибка: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("победителей: ожидалось 1, получено %d", winners)
	}
	if conflicts != n-1 {
		t.Errorf("конфликтов: ожидалось %d, получено %d", n-1, conflicts)
	}

	stats, _ := s.Stats(ctx)
	if stats.TotalRecords != 1 {
		t.Errorf("записей в хранилище: ожидалось 1, получено %d", stats.TotalRecords)
	}
}

// TestList_Pagination проверяет пагинацию списка.
func TestList_Pagination(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rec := testRecord(fmt.Sprintf("файл-%d", i))
		rec.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("ошибка вставки: %v", err)
		}
	}

	page, total, err := s.List(ctx, "", 3, 0)
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 10 {
		t.Errorf("total: ожидалось 10, получено %d", total)
	}
	if len(page) != 3 {
		t.Errorf("размер страницы: ожидалось 3, получено %d", len(page))
	}

	// Новые первыми
	for i := 1; i < len(page); i++ {
		if page[i].CreatedAt.After(page[i-1].CreatedAt) {
			t.Error("записи должны быть отсортированы новые первыми")
		}
	}

	// offset за пределами
	empty, total, err := s.List(ctx, "", 5, 100)
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if len(empty) != 0 || total != 10 {
		t.Errorf("offset за пределами: ожидалось 0 записей и total=10, получено %d и %d", len(empty), total)
	}

	// Отрицательный offset приводится к 0
	page, _, err = s.List(ctx, "", 3, -5)
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if len(page) != 3 {
		t.Errorf("отрицательный offset: ожидалось 3 записи, получено %d", len(page))
	}
}

// TestList_LimitClamp проверяет ограничение limit настроенным максимумом.
func TestList_LimitClamp(t *testing.T) {
	s := New(5, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Insert(ctx, testRecord(fmt.Sprintf("файл-%d", i))); err != nil {
			t.Fatalf("ошибка вставки: %v", err)
		}
	}

	page, _, err := s.List(ctx, "", 100, 0)
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if len(page) != 5 {
		t.Errorf("limit сверх максимума должен ограничиваться до 5, получено %d", len(page))
	}
}

// TestList_StatusFilter проверяет фильтрацию по статусу.
func TestList_StatusFilter(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	pending := testRecord("в ожидании")
	if err := s.Insert(ctx, pending); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	failed := testRecord("сломанный")
	if err := s.Insert(ctx, failed); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, failed.ID, model.StatusFailed, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	page, total, err := s.List(ctx, model.StatusFailed, 10, 0)
	if err != nil {
		t.Fatalf("ошибка списка: %v", err)
	}
	if total != 1 || len(page) != 1 {
		t.Fatalf("фильтр failed: ожидалась 1 запись, получено total=%d len=%d", total, len(page))
	}
	if page[0].ID != failed.ID {
		t.Errorf("id: ожидалось %s, получено %s", failed.ID, page[0].ID)
	}
}

// TestUpdateStatus_Lifecycle проверяет полный жизненный цикл статусов.
func TestUpdateStatus_Lifecycle(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	rec := testRecord("жизненный цикл")
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	// pending → processing
	got, err := s.UpdateStatus(ctx, rec.ID, model.StatusProcessing, nil)
	if err != nil {
		t.Fatalf("ошибка перехода в processing: %v", err)
	}
	if got.Status != model.StatusProcessing {
		t.Errorf("статус: ожидалось processing, получено %s", got.Status)
	}

	// processing → completed с chunk_count
	got, err = s.UpdateStatus(ctx, rec.ID, model.StatusCompleted, intPtr(7))
	if err != nil {
		t.Fatalf("ошибка перехода в completed: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("статус: ожидалось completed, получено %s", got.Status)
	}
	if got.ChunkCount == nil || *got.ChunkCount != 7 {
		t.Errorf("chunk_count: ожидалось 7, получено %v", got.ChunkCount)
	}

	// Идемпотентный повтор
	got, err = s.UpdateStatus(ctx, rec.ID, model.StatusCompleted, intPtr(7))
	if err != nil {
		t.Fatalf("идемпотентный повтор не должен давать ошибку: %v", err)
	}
	if *got.ChunkCount != 7 {
		t.Errorf("chunk_count после повтора: ожидалось 7, получено %d", *got.ChunkCount)
	}

	// Конфликтующий повтор
	if _, err := s.UpdateStatus(ctx, rec.ID, model.StatusCompleted, intPtr(9)); !status.IsStateConflict(err) {
		t.Errorf("повтор с другим chunk_count должен давать STATE_CONFLICT, получено %v", err)
	}

	// Перезапись терминального
	if _, err := s.UpdateStatus(ctx, rec.ID, model.StatusFailed, nil); !status.IsStateConflict(err) {
		t.Errorf("перезапись терминального должна давать STATE_CONFLICT, получено %v", err)
	}
}

// TestUpdateStatus_NotFound проверяет ErrNotFound для неизвестного id.
func TestUpdateStatus_NotFound(t *testing.T) {
	s := newTestStore()

	_, err := s.UpdateStatus(context.Background(), uuid.New().String(), model.StatusProcessing, nil)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestStaleProcessing проверяет поиск зависших записей.
func TestStaleProcessing(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	stale := testRecord("зависшая")
	if err := s.Insert(ctx, stale); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, stale.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	fresh := testRecord("свежая")
	if err := s.Insert(ctx, fresh); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}

	// Всё, что в processing раньше чем через час — зависшее
	got, err := s.StaleProcessing(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("зависших: ожидалось 1, получено %d", len(got))
	}
	if got[0].ID != stale.ID {
		t.Errorf("id: ожидалось %s, получено %s", stale.ID, got[0].ID)
	}

	// Порог в прошлом — зависших нет
	got, err = s.StaleProcessing(ctx, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ошибка поиска: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("зависших: ожидалось 0, получено %d", len(got))
	}
}

// TestStats проверяет агрегированную статистику и её консистентность.
func TestStats(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	recs := make([]*model.Record, 4)
	for i := range recs {
		recs[i] = testRecord(fmt.Sprintf("файл-%d", i))
		if err := s.Insert(ctx, recs[i]); err != nil {
			t.Fatalf("ошибка вставки: %v", err)
		}
	}

	// Распределяем по статусам: 1 pending, 1 processing, 1 completed, 1 failed
	if _, err := s.UpdateStatus(ctx, recs[1].ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, recs[2].ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, recs[2].ID, model.StatusCompleted, intPtr(2)); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, recs[3].ID, model.StatusFailed, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("ошибка статистики: %v", err)
	}

	if stats.TotalRecords != 4 {
		t.Errorf("total_records: ожидалось 4, получено %d", stats.TotalRecords)
	}
	if stats.UniqueFingerprints != 4 {
		t.Errorf("unique_fingerprints: ожидалось 4, получено %d", stats.UniqueFingerprints)
	}

	// Инвариант: сумма по статусам равна общему количеству
	sum := 0
	for _, c := range stats.CountsByStatus {
		sum += c
	}
	if sum != stats.TotalRecords {
		t.Errorf("сумма по статусам %d не равна total_records %d", sum, stats.TotalRecords)
	}

	// Все четыре статуса присутствуют в карте
	for _, st := range model.AllStatuses {
		if _, ok := stats.CountsByStatus[st]; !ok {
			t.Errorf("в counts_by_status отсутствует статус %s", st)
		}
	}
	if stats.CountsByStatus[model.StatusPending] != 1 {
		t.Errorf("pending: ожидалось 1, получено %d", stats.CountsByStatus[model.StatusPending])
	}
	if stats.CountsByStatus[model.StatusCompleted] != 1 {
		t.Errorf("completed: ожидалось 1, получено %d", stats.CountsByStatus[model.StatusCompleted])
	}
}

// TestConcurrentStatusUpdates проверяет сериализацию переходов по одной
// записи: из конкурентных переходов processing → completed применяется
// ровно один, повторы с тем же chunk_count идемпотентны.
func TestConcurrentStatusUpdates(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	rec := testRecord("конкурентные переходы")
	if err := s.Insert(ctx, rec); err != nil {
		t.Fatalf("ошибка вставки: %v", err)
	}
	if _, err := s.UpdateStatus(ctx, rec.ID, model.StatusProcessing, nil); err != nil {
		t.Fatalf("ошибка перехода: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Все пишут один и тот же исход — ошибок быть не должно
			if _, err := s.UpdateStatus(ctx, rec.ID, model.StatusCompleted, intPtr(3)); err != nil {
				t.Errorf("неожиданная ошибка конкурентного перехода: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := s.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if got.Status != model.StatusCompleted {
		t.Errorf("статус: ожидалось completed, получено %s", got.Status)
	}
	if got.ChunkCount == nil || *got.ChunkCount != 3 {
		t.Errorf("chunk_count: ожидалось 3, получено %v", got.ChunkCount)
	}
}
