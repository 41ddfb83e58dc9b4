// Пакет model — доменные модели Dedup Store.
// Record — единственная запись на уникальный отпечаток содержимого.
package model

import (
	"time"
)

// RecordStatus — статус обработки записи.
type RecordStatus string

const (
	// StatusPending — запись создана, задача обработки ещё не началась
	StatusPending RecordStatus = "pending"
	// StatusProcessing — задача обработки выполняется
	StatusProcessing RecordStatus = "processing"
	// StatusCompleted — обработка завершена успешно (терминальный)
	StatusCompleted RecordStatus = "completed"
	// StatusFailed — обработка завершилась ошибкой (терминальный)
	StatusFailed RecordStatus = "failed"
)

// AllStatuses — все допустимые статусы (для валидации фильтров).
var AllStatuses = []RecordStatus{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// IsValidStatus проверяет, является ли строка допустимым статусом.
func IsValidStatus(s RecordStatus) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true для терминальных статусов (completed, failed).
func (s RecordStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Record — запись дедупликации. Ровно одна запись на уникальный отпечаток.
// Все поля, кроме Status, ChunkCount и UpdatedAt, неизменяемы после создания.
type Record struct {
	// ID — уникальный идентификатор записи (UUID v4)
	ID string `json:"id"`

	// Name — оригинальное имя файла при первой загрузке.
	// Повторные загрузки того же содержимого имя не меняют.
	Name string `json:"name"`

	// Fingerprint — SHA-256 отпечаток содержимого,
	// 64 символа lowercase hex. Уникален среди всех записей.
	Fingerprint string `json:"fingerprint"`

	// Size — размер содержимого в байтах
	Size int64 `json:"size"`

	// ContentType — заявленный MIME-тип содержимого
	ContentType string `json:"content_type"`

	// Status — текущий статус обработки
	Status RecordStatus `json:"status"`

	// ChunkCount — количество чанков, полученных при обработке.
	// nil до перехода в completed; при completed всегда >= 1.
	ChunkCount *int `json:"chunk_count,omitempty"`

	// CreatedAt — дата и время создания записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — дата и время последнего изменения статуса (UTC)
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone возвращает копию записи (включая копию ChunkCount).
// Используется хранилищами для изоляции внутреннего состояния.
func (r *Record) Clone() *Record {
	copied := *r
	if r.ChunkCount != nil {
		cc := *r.ChunkCount
		copied.ChunkCount = &cc
	}
	return &copied
}

// Stats — агрегированная статистика по хранилищу записей.
// Вычисляется по требованию, отдельного состояния не хранит.
type Stats struct {
	// TotalRecords — общее количество записей
	TotalRecords int `json:"total_records"`

	// UniqueFingerprints — количество уникальных отпечатков.
	// Сегодня всегда равно TotalRecords (инвариант уникальности);
	// отдельное поле оставлено для будущего режима near-duplicate.
	UniqueFingerprints int `json:"unique_fingerprints"`

	// CountsByStatus — количество записей по статусам
	CountsByStatus map[RecordStatus]int `json:"counts_by_status"`
}
