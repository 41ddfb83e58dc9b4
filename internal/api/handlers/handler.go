// handler.go — сборка всех доменных handlers и регистрация маршрутов chi.
package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API — все обработчики Dedup Store в одном объекте.
type API struct {
	files  *FilesHandler
	system *SystemHandler
	health *HealthHandler
}

// NewAPI собирает доменные handlers для регистрации маршрутов.
func NewAPI(files *FilesHandler, system *SystemHandler, health *HealthHandler) *API {
	return &API{
		files:  files,
		system: system,
		health: health,
	}
}

// RegisterRoutes регистрирует все маршруты на роутере.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/info", a.system.GetInfo)
		r.Get("/stats", a.files.Stats)

		r.Route("/files", func(r chi.Router) {
			r.Post("/upload", a.files.Upload)
			r.Get("/", a.files.List)
			r.Get("/{file_id}", a.files.Get)
			r.Get("/{file_id}/content", a.files.GetContent)
			r.Patch("/{file_id}/status", a.files.ReportStatus)
		})

		r.Get("/fingerprints/{fingerprint}", a.files.GetByFingerprint)
	})

	r.Get("/health/live", a.health.HealthLive)
	r.Get("/health/ready", a.health.HealthReady)
	r.Handle("/metrics", promhttp.Handler())
}
