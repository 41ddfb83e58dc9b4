// Пакет store — контракт хранилища записей дедупликации.
//
// Хранилище монопольно владеет всеми записями: никакой другой компонент
// не изменяет Record напрямую. Индекс отпечаток → запись — производное
// представление, обновляемое атомарно со вставкой.
//
// Две реализации, выбираемые конфигурацией при старте процесса:
//   - memory — in-memory (reference/demo, теряет записи при рестарте)
//   - pg — PostgreSQL (production, уникальность через unique index)
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bigkaa/godedup/internal/domain/model"
)

// Ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — запись с таким отпечатком уже существует.
	// Возникает только в Insert; координатор ingest разрешает конфликт
	// повторным чтением, наружу ошибка не выходит.
	ErrConflict = errors.New("запись с таким отпечатком уже существует")
)

// RecordStore — операции над записями дедупликации.
type RecordStore interface {
	// Insert атомарно вставляет новую запись. Проверка уникальности
	// отпечатка и вставка — одна атомарная операция: из двух
	// конкурентных вставок одного отпечатка выигрывает ровно одна,
	// проигравшая получает ErrConflict.
	Insert(ctx context.Context, rec *model.Record) error

	// GetByID возвращает запись по идентификатору или ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.Record, error)

	// GetByFingerprint возвращает запись по отпечатку или ErrNotFound.
	GetByFingerprint(ctx context.Context, fp string) (*model.Record, error)

	// List возвращает страницу записей, новые первыми (по created_at),
	// и общее количество записей, подходящих под фильтр. Пустой status
	// означает отсутствие фильтра. limit ограничивается настроенным
	// максимумом, offset < 0 приводится к 0. Стабильность пагинации
	// при конкурентных вставках не гарантируется.
	List(ctx context.Context, status model.RecordStatus, limit, offset int) ([]*model.Record, int, error)

	// UpdateStatus применяет переход статуса к записи.
	// Переход валидируется конечным автоматом (пакет status):
	// идемпотентный повтор — no-op, конфликт терминальных статусов —
	// *status.TransitionError с кодом STATE_CONFLICT.
	// Для неизвестного id — ErrNotFound.
	// Переходы по одной записи сериализованы между собой.
	UpdateStatus(ctx context.Context, id string, next model.RecordStatus, chunkCount *int) (*model.Record, error)

	// StaleProcessing возвращает записи, находящиеся в processing
	// дольше указанного момента (для watchdog).
	StaleProcessing(ctx context.Context, olderThan time.Time) ([]*model.Record, error)

	// Stats возвращает агрегированную статистику по хранилищу.
	// Инвариант: сумма CountsByStatus равна TotalRecords.
	Stats(ctx context.Context) (*model.Stats, error)

	// Ping проверяет доступность хранилища (для readiness probe).
	Ping(ctx context.Context) error

	// Close освобождает ресурсы хранилища.
	Close()
}
