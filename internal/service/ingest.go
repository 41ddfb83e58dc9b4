// Пакет service — бизнес-логика Dedup Store.
// ingest.go — координатор приёма содержимого с дедупликацией.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apierrors "github.com/bigkaa/godedup/internal/api/errors"
	"github.com/bigkaa/godedup/internal/api/middleware"
	"github.com/bigkaa/godedup/internal/config"
	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/processing"
	"github.com/bigkaa/godedup/internal/storage/blobstore"
	"github.com/bigkaa/godedup/internal/store"
)

// IngestParams — параметры приёма содержимого.
type IngestParams struct {
	// Reader — поток данных содержимого
	Reader io.Reader
	// Name — имя, под которым содержимое впервые представлено
	Name string
	// ContentType — MIME-тип содержимого
	ContentType string
}

// IngestResult — результат приёма содержимого.
type IngestResult struct {
	// Record — запись: новая или уже существующая при дубликате
	Record *model.Record
	// Duplicate — true, если отпечаток уже был известен
	Duplicate bool
}

// IngestError — ошибка приёма с HTTP-кодом.
type IngestError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IngestError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IngestService — координатор приёма содержимого.
//
// Поток приёма:
//  1. Потоковое сохранение содержимого в blob-хранилище с вычислением
//     SHA-256 (валидация пустого и слишком большого содержимого там же)
//  2. Поиск отпечатка в хранилище записей — дубликат возвращается сразу
//  3. Вставка новой записи в статусе pending
//  4. Постановка задачи обработки в очередь (асинхронно)
//
// Гонка двух конкурентных вставок одного отпечатка разрешается
// хранилищем: проигравший получает store.ErrConflict, перечитывает
// запись победителя и возвращает её как дубликат.
type IngestService struct {
	cfg       *config.Config
	blobs     *blobstore.BlobStore
	records   store.RecordStore
	processor *Processor
	logger    *slog.Logger
}

// NewIngestService создаёт координатор приёма.
func NewIngestService(
	cfg *config.Config,
	blobs *blobstore.BlobStore,
	records store.RecordStore,
	processor *Processor,
	logger *slog.Logger,
) *IngestService {
	return &IngestService{
		cfg:       cfg,
		blobs:     blobs,
		records:   records,
		processor: processor,
		logger:    logger.With(slog.String("component", "ingest_service")),
	}
}

// Ingest принимает содержимое и возвращает запись (новую или дубликат).
func (s *IngestService) Ingest(ctx context.Context, params IngestParams) (*IngestResult, *IngestError) {
	if strings.TrimSpace(params.Name) == "" {
		middleware.IngestTotal.WithLabelValues("rejected").Inc()
		return nil, &IngestError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Имя содержимого не может быть пустым",
		}
	}

	// 1. Сохраняем содержимое и считаем отпечаток за один проход
	saved, err := s.blobs.Save(params.Reader, s.cfg.MaxFileSize)
	if err != nil {
		switch {
		case errors.Is(err, blobstore.ErrEmptyContent):
			middleware.IngestTotal.WithLabelValues("rejected").Inc()
			return nil, &IngestError{
				StatusCode: 400,
				Code:       apierrors.CodeEmptyContent,
				Message:    "Пустое содержимое не принимается",
			}
		case errors.Is(err, blobstore.ErrTooLarge):
			middleware.IngestTotal.WithLabelValues("rejected").Inc()
			return nil, &IngestError{
				StatusCode: 413,
				Code:       apierrors.CodeFileTooLarge,
				Message:    fmt.Sprintf("Размер содержимого превышает максимум %d байт", s.cfg.MaxFileSize),
			}
		default:
			s.logger.Error("Ошибка сохранения содержимого", slog.String("error", err.Error()))
			middleware.IngestTotal.WithLabelValues("error").Inc()
			return nil, &IngestError{
				StatusCode: 500,
				Code:       apierrors.CodeInternalError,
				Message:    "Ошибка сохранения содержимого на диск",
			}
		}
	}

	// 2. Дубликат по отпечатку — возвращаем существующую запись
	if existing, err := s.records.GetByFingerprint(ctx, saved.Fingerprint); err == nil {
		middleware.IngestTotal.WithLabelValues("duplicate").Inc()
		s.logger.Info("Дубликат содержимого",
			slog.String("fingerprint", saved.Fingerprint),
			slog.String("record_id", existing.ID),
			slog.String("name", params.Name),
		)
		return &IngestResult{Record: existing, Duplicate: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("Ошибка поиска отпечатка",
			slog.String("fingerprint", saved.Fingerprint),
			slog.String("error", err.Error()),
		)
		middleware.IngestTotal.WithLabelValues("error").Inc()
		return nil, &IngestError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка доступа к хранилищу записей",
		}
	}

	// 3. Вставляем новую запись в статусе pending
	now := time.Now().UTC()
	rec := &model.Record{
		ID:          uuid.New().String(),
		Name:        params.Name,
		Fingerprint: saved.Fingerprint,
		Size:        saved.Size,
		ContentType: normalizeContentType(params.ContentType),
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.records.Insert(ctx, rec); err != nil {
		if errors.Is(err, store.ErrConflict) {
			// Проиграли гонку вставки: возвращаем запись победителя
			winner, rerr := s.records.GetByFingerprint(ctx, saved.Fingerprint)
			if rerr != nil {
				s.logger.Error("Конфликт вставки, но запись победителя не найдена",
					slog.String("fingerprint", saved.Fingerprint),
					slog.String("error", rerr.Error()),
				)
				middleware.IngestTotal.WithLabelValues("error").Inc()
				return nil, &IngestError{
					StatusCode: 500,
					Code:       apierrors.CodeInternalError,
					Message:    "Ошибка разрешения конфликта вставки",
				}
			}
			middleware.IngestTotal.WithLabelValues("duplicate").Inc()
			s.logger.Info("Проигрыш гонки вставки, возвращён дубликат",
				slog.String("fingerprint", saved.Fingerprint),
				slog.String("record_id", winner.ID),
			)
			return &IngestResult{Record: winner, Duplicate: true}, nil
		}

		s.logger.Error("Ошибка вставки записи",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
		middleware.IngestTotal.WithLabelValues("error").Inc()
		return nil, &IngestError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Ошибка вставки записи",
		}
	}

	// 4. Ставим задачу обработки. Переполнение очереди — не ошибка
	// приёма: запись останется в pending, её подберёт watchdog-перезапуск
	// либо ручная переотправка.
	task := processing.Task{
		RecordID:    rec.ID,
		Name:        rec.Name,
		Fingerprint: rec.Fingerprint,
		Size:        rec.Size,
	}
	if err := s.processor.Submit(task); err != nil {
		s.logger.Warn("Очередь обработки переполнена, запись остаётся в pending",
			slog.String("record_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	middleware.IngestTotal.WithLabelValues("created").Inc()
	middleware.IngestBytes.Add(float64(saved.Size))

	s.logger.Info("Содержимое принято",
		slog.String("record_id", rec.ID),
		slog.String("name", rec.Name),
		slog.String("fingerprint", rec.Fingerprint),
		slog.Int64("size", rec.Size),
		slog.Bool("blob_existed", saved.Existed),
	)

	return &IngestResult{Record: rec, Duplicate: false}, nil
}

// normalizeContentType убирает параметры MIME-типа (charset и т.д.),
// пустое значение заменяет на application/octet-stream.
func normalizeContentType(contentType string) string {
	if contentType == "" {
		return "application/octet-stream"
	}
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	return contentType
}
