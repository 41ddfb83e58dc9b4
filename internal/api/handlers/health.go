// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bigkaa/godedup/internal/config"
	"github.com/bigkaa/godedup/internal/store"
)

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	// dataDir — путь к директории blob-хранилища (для проверки FS)
	dataDir string
	// records — хранилище записей (для проверки Ping)
	records store.RecordStore
}

// NewHealthHandler создаёт обработчик health endpoints.
func NewHealthHandler(dataDir string, records store.RecordStore) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		dataDir: dataDir,
		records: records,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dedup-store",
	}

	writeJSON(w, http.StatusOK, resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет: доступность blob-хранилища на запись, доступность
// хранилища записей.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	// Проверка файловой системы
	fsCheck := h.checkFilesystem()
	if fsCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	// Проверка хранилища записей
	storeCheck := h.checkRecordStore(r)
	if storeCheck["status"] != "ok" {
		overallStatus = statusFail
		httpStatus = http.StatusServiceUnavailable
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   "dedup-store",
		"checks": map[string]any{
			"filesystem":   fsCheck,
			"record_store": storeCheck,
		},
	}

	writeJSON(w, httpStatus, resp)
}

// checkFilesystem проверяет доступность директории данных на запись.
func (h *HealthHandler) checkFilesystem() map[string]any {
	if h.dataDir == "" {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	testFile := filepath.Join(h.dataDir, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Директория данных недоступна для записи: " + err.Error(),
		}
	}
	_ = os.Remove(testFile)

	return map[string]any{
		"status": "ok",
	}
}

// checkRecordStore проверяет доступность хранилища записей.
func (h *HealthHandler) checkRecordStore(r *http.Request) map[string]any {
	if h.records == nil {
		return map[string]any{
			"status":  "ok",
			"message": "Проверка не настроена",
		}
	}

	if err := h.records.Ping(r.Context()); err != nil {
		return map[string]any{
			"status":  statusFail,
			"message": "Хранилище записей недоступно: " + err.Error(),
		}
	}

	return map[string]any{
		"status": "ok",
	}
}
