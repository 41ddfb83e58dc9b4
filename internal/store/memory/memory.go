// Пакет memory — потокобезопасное in-memory хранилище записей.
//
// Reference/demo реализация store.RecordStore: две map (id → запись,
// отпечаток → id) под одним sync.RWMutex. Вставка и проверка
// уникальности атомарны под мьютексом, переходы статусов по одной
// записи сериализованы им же.
//
// Не персистентно: при рестарте все записи теряются.
// Потребление памяти: ~300 байт/запись.
package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/store"
)

// Store — in-memory реализация store.RecordStore.
type Store struct {
	mu            sync.RWMutex
	records       map[string]*model.Record // id → запись
	byFingerprint map[string]string        // отпечаток → id
	maxLimit      int
	logger        *slog.Logger
}

// Проверка контракта на этапе компиляции.
var _ store.RecordStore = (*Store)(nil)

// New создаёт пустое in-memory хранилище.
// maxLimit — верхняя граница limit для List.
func New(maxLimit int, logger *slog.Logger) *Store {
	return &Store{
		records:       make(map[string]*model.Record),
		byFingerprint: make(map[string]string),
		maxLimit:      maxLimit,
		logger:        logger.With(slog.String("component", "memory_store")),
	}
}

// Insert атомарно вставляет запись. Уникальность отпечатка проверяется
// и фиксируется под одним мьютексом: гонка двух вставок невозможна.
func (s *Store) Insert(_ context.Context, rec *model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byFingerprint[rec.Fingerprint]; ok {
		return store.ErrConflict
	}

	copied := rec.Clone()
	s.records[copied.ID] = copied
	s.byFingerprint[copied.Fingerprint] = copied.ID
	return nil
}

// GetByID возвращает копию записи по идентификатору.
func (s *Store) GetByID(_ context.Context, id string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// GetByFingerprint возвращает копию записи по отпечатку.
func (s *Store) GetByFingerprint(_ context.Context, fp string) (*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fp]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.records[id].Clone(), nil
}

// List возвращает страницу записей, новые первыми.
// Пустой status означает отсутствие фильтра.
func (s *Store) List(_ context.Context, st model.RecordStatus, limit, offset int) ([]*model.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	all := make([]*model.Record, 0, len(s.records))
	for _, rec := range s.records {
		if st != "" && rec.Status != st {
			continue
		}
		all = append(all, rec.Clone())
	}

	// Новые первыми; при равном created_at — по id для стабильности
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}

	end := total
	if offset+limit < total {
		end = offset + limit
	}
	return all[offset:end], total, nil
}

// UpdateStatus применяет переход статуса под мьютексом хранилища:
// переходы по одной записи сериализованы.
func (s *Store) UpdateStatus(_ context.Context, id string, next model.RecordStatus, chunkCount *int) (*model.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, store.ErrNotFound
	}

	apply, err := status.Check(rec.Status, rec.ChunkCount, next, chunkCount)
	if err != nil {
		return nil, err
	}
	if !apply {
		// Идемпотентный повтор
		return rec.Clone(), nil
	}

	rec.Status = next
	if next == model.StatusCompleted {
		cc := *chunkCount
		rec.ChunkCount = &cc
	}
	rec.UpdatedAt = time.Now().UTC()

	return rec.Clone(), nil
}

// StaleProcessing возвращает записи, зависшие в processing.
func (s *Store) StaleProcessing(_ context.Context, olderThan time.Time) ([]*model.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []*model.Record
	for _, rec := range s.records {
		if rec.Status == model.StatusProcessing && rec.UpdatedAt.Before(olderThan) {
			stale = append(stale, rec.Clone())
		}
	}
	return stale, nil
}

// Stats возвращает агрегированную статистику.
// Сумма CountsByStatus всегда равна TotalRecords: оба значения
// считаются за один проход под одним RLock.
func (s *Store) Stats(_ context.Context) (*model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.RecordStatus]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}
	for _, rec := range s.records {
		counts[rec.Status]++
	}

	return &model.Stats{
		TotalRecords:       len(s.records),
		UniqueFingerprints: len(s.byFingerprint),
		CountsByStatus:     counts,
	}, nil
}

// Ping — in-memory хранилище всегда доступно.
func (s *Store) Ping(_ context.Context) error {
	return nil
}

// Close — освобождать нечего.
func (s *Store) Close() {}
