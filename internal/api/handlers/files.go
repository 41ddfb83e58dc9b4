// files.go — HTTP handlers операций над записями Dedup Store.
// Upload (приём с дедупликацией), List, Get, Content, Report status,
// поиск по отпечатку.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bigkaa/godedup/internal/api/errors"
	"github.com/bigkaa/godedup/internal/domain/model"
	"github.com/bigkaa/godedup/internal/domain/status"
	"github.com/bigkaa/godedup/internal/fingerprint"
	"github.com/bigkaa/godedup/internal/service"
	"github.com/bigkaa/godedup/internal/storage/blobstore"
	"github.com/bigkaa/godedup/internal/store"
)

// FilesHandler — обработчик endpoints записей.
type FilesHandler struct {
	ingest   *service.IngestService
	records  store.RecordStore
	blobs    *blobstore.BlobStore
	maxLimit int
}

// NewFilesHandler создаёт обработчик endpoints записей.
func NewFilesHandler(
	ingest *service.IngestService,
	records store.RecordStore,
	blobs *blobstore.BlobStore,
	maxLimit int,
) *FilesHandler {
	return &FilesHandler{
		ingest:   ingest,
		records:  records,
		blobs:    blobs,
		maxLimit: maxLimit,
	}
}

// uploadResponse — тело ответа на приём содержимого.
type uploadResponse struct {
	Record    *model.Record `json:"record"`
	Duplicate bool          `json:"duplicate"`
}

// Upload обрабатывает POST /api/v1/files/upload.
// Multipart form: file (обязательно), name (опционально, по умолчанию —
// имя файла из multipart part).
// Новая запись — 201, дубликат отпечатка — 200 с существующей записью.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Парсим multipart form (буфер в памяти, остальное — на диск)
	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32 MB buffer
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	name := r.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	result, ingestErr := h.ingest.Ingest(r.Context(), service.IngestParams{
		Reader:      file,
		Name:        name,
		ContentType: header.Header.Get("Content-Type"),
	})
	if ingestErr != nil {
		apierrors.WriteError(w, ingestErr.StatusCode, ingestErr.Code, ingestErr.Message)
		return
	}

	code := http.StatusCreated
	if result.Duplicate {
		code = http.StatusOK
	}
	writeJSON(w, code, uploadResponse{
		Record:    result.Record,
		Duplicate: result.Duplicate,
	})
}

// listResponse — тело ответа на запрос списка записей.
type listResponse struct {
	Items   []*model.Record `json:"items"`
	Total   int             `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

// List обрабатывает GET /api/v1/files.
// Пагинация: limit, offset. Фильтр: status.
func (h *FilesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	var statusFilter model.RecordStatus

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > h.maxLimit {
			apierrors.ValidationError(w, fmt.Sprintf("Параметр limit должен быть от 1 до %d", h.maxLimit))
			return
		}
		limit = n
	}

	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apierrors.ValidationError(w, "Параметр offset не может быть отрицательным")
			return
		}
		offset = n
	}

	if v := r.URL.Query().Get("status"); v != "" {
		statusFilter = model.RecordStatus(v)
		if !model.IsValidStatus(statusFilter) {
			apierrors.ValidationError(w, fmt.Sprintf("Недопустимый статус: %s", v))
			return
		}
	}

	items, total, err := h.records.List(r.Context(), statusFilter, limit, offset)
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения списка записей")
		return
	}
	if items == nil {
		items = []*model.Record{}
	}

	writeJSON(w, http.StatusOK, listResponse{
		Items:   items,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+limit < total,
	})
}

// Get обрабатывает GET /api/v1/files/{file_id}.
func (h *FilesHandler) Get(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	if _, err := uuid.Parse(fileID); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор записи: %s", fileID))
		return
	}

	rec, err := h.records.GetByID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Запись %s не найдена", fileID))
			return
		}
		apierrors.InternalError(w, "Ошибка получения записи")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetContent обрабатывает GET /api/v1/files/{file_id}/content.
// Отдаёт сохранённое содержимое с поддержкой Range-запросов.
func (h *FilesHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	if _, err := uuid.Parse(fileID); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор записи: %s", fileID))
		return
	}

	rec, err := h.records.GetByID(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Запись %s не найдена", fileID))
			return
		}
		apierrors.InternalError(w, "Ошибка получения записи")
		return
	}

	f, err := h.blobs.Open(rec.Fingerprint)
	if err != nil {
		apierrors.InternalError(w, "Содержимое недоступно")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", rec.ContentType)
	w.Header().Set("ETag", `"`+rec.Fingerprint+`"`)
	http.ServeContent(w, r, rec.Name, rec.CreatedAt, f)
}

// statusReportRequest — тело запроса отчёта о статусе обработки.
type statusReportRequest struct {
	Status     string `json:"status"`
	ChunkCount *int   `json:"chunk_count,omitempty"`
}

// ReportStatus обрабатывает PATCH /api/v1/files/{file_id}/status.
// Внешняя поверхность конечного автомата статусов: повтор терминального
// статуса с теми же данными идемпотентен, конфликтующий отчёт — 409.
func (h *FilesHandler) ReportStatus(w http.ResponseWriter, r *http.Request) {
	fileID := chi.URLParam(r, "file_id")
	if _, err := uuid.Parse(fileID); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный идентификатор записи: %s", fileID))
		return
	}

	var req statusReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Некорректный JSON: %s", err.Error()))
		return
	}

	next := model.RecordStatus(req.Status)
	if !model.IsValidStatus(next) {
		apierrors.ValidationError(w, fmt.Sprintf("Недопустимый статус: %s", req.Status))
		return
	}

	rec, err := h.records.UpdateStatus(r.Context(), fileID, next, req.ChunkCount)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			apierrors.NotFound(w, fmt.Sprintf("Запись %s не найдена", fileID))
		default:
			var te *status.TransitionError
			if errors.As(err, &te) {
				if te.Code == status.CodeInvalidChunkCount {
					apierrors.ValidationError(w, te.Message)
					return
				}
				apierrors.StateConflict(w, te.Message)
				return
			}
			apierrors.InternalError(w, "Ошибка обновления статуса")
		}
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// GetByFingerprint обрабатывает GET /api/v1/fingerprints/{fingerprint}.
func (h *FilesHandler) GetByFingerprint(w http.ResponseWriter, r *http.Request) {
	fp := strings.ToLower(chi.URLParam(r, "fingerprint"))
	if !fingerprint.Valid(fp) {
		apierrors.ValidationError(w, "Отпечаток должен быть 64-символьной hex-строкой")
		return
	}

	rec, err := h.records.GetByFingerprint(r.Context(), fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apierrors.NotFound(w, fmt.Sprintf("Отпечаток %s не найден", fp))
			return
		}
		apierrors.InternalError(w, "Ошибка поиска отпечатка")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// Stats обрабатывает GET /api/v1/stats.
func (h *FilesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.records.Stats(r.Context())
	if err != nil {
		apierrors.InternalError(w, "Ошибка получения статистики")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// writeJSON вспомогательная функция для записи JSON-ответа.
func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
