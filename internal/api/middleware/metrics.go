// metrics.go — Prometheus HTTP метрики для Dedup Store.
// Регистрирует метрики: ds_http_requests_total, ds_http_request_duration_seconds.
// Бизнес-метрики (ds_records_total, ds_ingest_total и др.) экспортируются
// отсюда и обновляются из сервисного слоя.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP метрики
var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_http_requests_total",
			Help: "Общее количество HTTP-запросов к Dedup Store",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ds_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к Dedup Store в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Бизнес-метрики (экспортируются для обновления из сервисного слоя)
var (
	// RecordsTotal — текущее количество записей по статусам (gauge).
	RecordsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ds_records_total",
			Help: "Текущее количество записей по статусам",
		},
		[]string{"status"},
	)

	// IngestTotal — количество операций приёма содержимого по результатам:
	// created, duplicate, rejected, error.
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_ingest_total",
			Help: "Общее количество операций приёма содержимого",
		},
		[]string{"result"},
	)

	// IngestBytes — общий объём принятого содержимого в байтах.
	IngestBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ds_ingest_bytes_total",
			Help: "Общий объём принятого содержимого в байтах",
		},
	)

	// ProcessingJobsTotal — количество завершённых задач обработки
	// по результатам: completed, failed, retried.
	ProcessingJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ds_processing_jobs_total",
			Help: "Общее количество завершённых задач обработки",
		},
		[]string{"result"},
	)

	// ProcessingDuration — гистограмма длительности обработки записей.
	ProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ds_processing_duration_seconds",
			Help:    "Длительность обработки записей в секундах",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueueDepth — текущая глубина очереди задач обработки (gauge).
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ds_processing_queue_depth",
			Help: "Текущая глубина очереди задач обработки",
		},
	)

	// WatchdogForcedTotal — количество записей, принудительно переведённых
	// watchdog из processing в failed.
	WatchdogForcedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ds_watchdog_forced_failures_total",
			Help: "Количество зависших записей, принудительно переведённых в failed",
		},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
// Записывает количество запросов и длительность для каждого endpoint.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Нормализуем путь для лейблов метрик
			// (заменяем UUID и fingerprint на плейсхолдеры для предотвращения кардинальности)
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newMetricsResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(wrapped.statusCode)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(duration)
		})
	}
}

// metricsResponseWriter — обёртка для перехвата статус-кода.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// normalizePath заменяет идентификаторы в сегментах пути на плейсхолдеры
// для предотвращения взрывного роста кардинальности метрик.
// /api/v1/files/a1b2c3d4-... → /api/v1/files/{id}
// /api/v1/fingerprints/ab12... → /api/v1/fingerprints/{fingerprint}
func normalizePath(path string) string {
	switch {
	case path == "/health/live":
		return "/health/live"
	case path == "/health/ready":
		return "/health/ready"
	case path == "/metrics":
		return "/metrics"
	case path == "/api/v1/info":
		return "/api/v1/info"
	case path == "/api/v1/stats":
		return "/api/v1/stats"
	case path == "/api/v1/files":
		return "/api/v1/files"
	case path == "/api/v1/files/upload":
		return "/api/v1/files/upload"
	case isUUIDSegment(path, "/api/v1/files/"):
		suffix := path[len("/api/v1/files/")+36:]
		if suffix == "/content" {
			return "/api/v1/files/{id}/content"
		}
		if suffix == "/status" {
			return "/api/v1/files/{id}/status"
		}
		if suffix == "" {
			return "/api/v1/files/{id}"
		}
	case len(path) > len("/api/v1/fingerprints/"):
		if path[:len("/api/v1/fingerprints/")] == "/api/v1/fingerprints/" {
			return "/api/v1/fingerprints/{fingerprint}"
		}
	}
	return path
}

// isUUIDSegment проверяет, начинается ли сегмент пути после prefix с UUID.
func isUUIDSegment(path, prefix string) bool {
	if len(path) < len(prefix)+36 {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	segment := path[len(prefix) : len(prefix)+36]
	// Проверяем формат UUID: 8-4-4-4-12
	for i, c := range segment {
		if i == 8 || i == 13 || i == 18 || i == 23 {
			if c != '-' {
				return false
			}
		} else {
			if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
				return false
			}
		}
	}
	return true
}
