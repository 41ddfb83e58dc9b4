// system.go — обработчик GET /api/v1/info (информация об инстансе).
// Публичный endpoint для service discovery и мониторинга.
package handlers

import (
	"net/http"

	"github.com/bigkaa/godedup/internal/config"
)

// SystemHandler — обработчик системных endpoints.
type SystemHandler struct {
	cfg *config.Config
}

// NewSystemHandler создаёт обработчик системных endpoints.
func NewSystemHandler(cfg *config.Config) *SystemHandler {
	return &SystemHandler{cfg: cfg}
}

// GetInfo обрабатывает GET /api/v1/info.
// Возвращает информацию об инстансе Dedup Store.
func (h *SystemHandler) GetInfo(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"instance_id":   h.cfg.InstanceID,
		"service":       "dedup-store",
		"version":       config.Version,
		"store_backend": h.cfg.StoreBackend,
		"max_file_size": h.cfg.MaxFileSize,
		"chunk_size":    h.cfg.ChunkSize,
		"workers":       h.cfg.Workers,
	}

	writeJSON(w, http.StatusOK, resp)
}
