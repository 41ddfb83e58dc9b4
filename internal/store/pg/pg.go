// Пакет pg — PostgreSQL-реализация хранилища записей.
//
// Чистый SQL через pgx, без ORM. Уникальность отпечатка обеспечивает
// unique index: нарушение (23505) транслируется в store.ErrConflict.
// Переходы статусов сериализуются построчной блокировкой
// (SELECT ... FOR UPDATE) внутри транзакции.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/store"
)

// recordColumns — список колонок записи для SELECT.
const recordColumns = `id, name, fingerprint, content_type, size, status, chunk_count, created_at, updated_at`

// Store — PostgreSQL-реализация store.RecordStore.
type Store struct {
	pool     *pgxpool.Pool
	maxLimit int
}

// Проверка контракта на этапе компиляции.
var _ store.RecordStore = (*Store)(nil)

// New создаёт хранилище поверх готового пула подключений.
// maxLimit — верхняя граница limit для List.
func New(pool *pgxpool.Pool, maxLimit int) *Store {
	return &Store{pool: pool, maxLimit: maxLimit}
}

// Insert атомарно вставляет запись. Уникальность отпечатка — на стороне
// БД: из двух конкурентных вставок одного отпечатка одна получает 23505.
func (s *Store) Insert(ctx context.Context, rec *model.Record) error {
	query := `
		INSERT INTO records (id, name, fingerprint, content_type, size, status, chunk_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.Name, rec.Fingerprint, rec.ContentType, rec.Size,
		rec.Status, rec.ChunkCount, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return fmt.Errorf("ошибка вставки записи: %w", err)
	}
	return nil
}

// GetByID возвращает запись по идентификатору.
func (s *Store) GetByID(ctx context.Context, id string) (*model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1`
	return s.queryOne(ctx, query, id)
}

// GetByFingerprint возвращает запись по отпечатку.
func (s *Store) GetByFingerprint(ctx context.Context, fp string) (*model.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE fingerprint = $1`
	return s.queryOne(ctx, query, fp)
}

// List возвращает страницу записей, новые первыми, и общее количество.
func (s *Store) List(ctx context.Context, st model.RecordStatus, limit, offset int) ([]*model.Record, int, error) {
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}
	if offset < 0 {
		offset = 0
	}

	// Пустой status — без фильтра; $1 = '' отключает условие.
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`

	rows, err := s.pool.Query(ctx, query, string(st), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("ошибка чтения списка записей: %w", err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM records WHERE ($1 = '' OR status = $1)`
	if err := s.pool.QueryRow(ctx, countQuery, string(st)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}

	return result, total, nil
}

// UpdateStatus применяет переход статуса внутри транзакции.
// SELECT ... FOR UPDATE сериализует переходы по одной записи;
// переходы по разным записям независимы.
func (s *Store) UpdateStatus(ctx context.Context, id string, next model.RecordStatus, chunkCount *int) (*model.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // откат после коммита — no-op

	rec, err := s.queryOneTx(ctx, tx,
		`SELECT `+recordColumns+` FROM records WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}

	apply, err := status.Check(rec.Status, rec.ChunkCount, next, chunkCount)
	if err != nil {
		return nil, err
	}
	if !apply {
		// Идемпотентный повтор
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("ошибка коммита транзакции: %w", err)
		}
		return rec, nil
	}

	now := time.Now().UTC()
	var newChunks *int
	if next == model.StatusCompleted {
		cc := *chunkCount
		newChunks = &cc
	} else {
		newChunks = rec.ChunkCount
	}

	_, err = tx.Exec(ctx,
		`UPDATE records SET status = $2, chunk_count = $3, updated_at = $4 WHERE id = $1`,
		id, next, newChunks, now,
	)
	if err != nil {
		return nil, fmt.Errorf("ошибка обновления статуса: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка коммита транзакции: %w", err)
	}

	rec.Status = next
	rec.ChunkCount = newChunks
	rec.UpdatedAt = now
	return rec, nil
}

// StaleProcessing возвращает записи, зависшие в processing.
func (s *Store) StaleProcessing(ctx context.Context, olderThan time.Time) ([]*model.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM records
		WHERE status = 'processing' AND updated_at < $1
		ORDER BY updated_at`

	rows, err := s.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска зависших записей: %w", err)
	}
	defer rows.Close()

	var result []*model.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// Stats возвращает агрегированную статистику одним запросом.
func (s *Store) Stats(ctx context.Context) (*model.Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM records GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.RecordStatus]int, len(model.AllStatuses))
	for _, st := range model.AllStatuses {
		counts[st] = 0
	}

	total := 0
	for rows.Next() {
		var st model.RecordStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		counts[st] = n
		total += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения статистики: %w", err)
	}

	// UniqueFingerprints == TotalRecords по инварианту уникальности;
	// считается отдельно на случай будущего режима near-duplicate.
	var unique int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(DISTINCT fingerprint) FROM records`).Scan(&unique); err != nil {
		return nil, fmt.Errorf("ошибка подсчёта уникальных отпечатков: %w", err)
	}

	return &model.Stats{
		TotalRecords:       total,
		UniqueFingerprints: unique,
		CountsByStatus:     counts,
	}, nil
}

// Ping проверяет доступность PostgreSQL.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает пул подключений.
func (s *Store) Close() {
	s.pool.Close()
}

// --- Вспомогательные функции ---

// rowScanner — общий интерфейс pgx.Row и pgx.Rows для scanRecord.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord сканирует одну запись из строки результата.
func scanRecord(row rowScanner) (*model.Record, error) {
	rec := &model.Record{}
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Fingerprint, &rec.ContentType, &rec.Size,
		&rec.Status, &rec.ChunkCount, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) queryOne(ctx context.Context, query string, arg any) (*model.Record, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

func (s *Store) queryOneTx(ctx context.Context, tx pgx.Tx, query string, arg any) (*model.Record, error) {
	rec, err := scanRecord(tx.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return rec, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
