// Пакет config — загрузка и валидация конфигурации Dedup Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Бэкенды хранилища записей.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config содержит все параметры конфигурации Dedup Store.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Уникальный идентификатор инстанса (например, "dedup-01")
	InstanceID string
	// Путь к директории хранения содержимого (blob)
	DataDir string
	// Бэкенд хранилища записей: memory или postgres
	StoreBackend string

	// Параметры PostgreSQL (обязательны при StoreBackend=postgres)
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	// Максимальный размер содержимого в байтах
	MaxFileSize int64
	// Размер чанка обработки в байтах
	ChunkSize int64
	// Максимальное значение limit для списков
	ListMaxLimit int

	// Количество воркеров обработки
	Workers int
	// Ёмкость очереди задач обработки
	QueueSize int
	// Таймаут одной задачи обработки
	JobTimeout time.Duration
	// Количество повторов задачи при ошибке
	JobRetries int
	// Интервал запуска watchdog
	WatchdogInterval time.Duration
	// Порог зависания: processing старше этого срока принудительно переводится в failed
	StaleAfter time.Duration

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Путь к TLS сертификату (опционально)
	TLSCert string
	// Путь к TLS приватному ключу (опционально)
	TLSKey string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration

	// URL downstream-сервиса обработки для мониторинга topologymetrics
	// (опционально; пусто — мониторинг выключен)
	DephealthURL string
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости в метриках topologymetrics
	DephealthDepName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// DS_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("DS_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("DS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// DS_INSTANCE_ID — идентификатор инстанса (по умолчанию "dedup-store")
	cfg.InstanceID = getEnvDefault("DS_INSTANCE_ID", "dedup-store")

	// DS_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("DS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// DS_STORE_BACKEND — бэкенд хранилища (по умолчанию "memory")
	cfg.StoreBackend = getEnvDefault("DS_STORE_BACKEND", BackendMemory)
	if cfg.StoreBackend != BackendMemory && cfg.StoreBackend != BackendPostgres {
		return nil, fmt.Errorf("DS_STORE_BACKEND: недопустимое значение %q, допустимые: memory, postgres", cfg.StoreBackend)
	}

	// Параметры PostgreSQL — обязательны только при postgres-бэкенде
	if cfg.StoreBackend == BackendPostgres {
		if cfg.DBHost, err = getEnvRequired("DS_DB_HOST"); err != nil {
			return nil, err
		}
		if cfg.DBPort, err = getEnvInt("DS_DB_PORT", 5432); err != nil {
			return nil, fmt.Errorf("DS_DB_PORT: %w", err)
		}
		if cfg.DBName, err = getEnvRequired("DS_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("DS_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("DS_DB_PASSWORD"); err != nil {
			return nil, err
		}
		cfg.DBSSLMode = getEnvDefault("DS_DB_SSL_MODE", "disable")
	}

	// DS_MAX_FILE_SIZE — максимальный размер содержимого (по умолчанию 1 GB)
	cfg.MaxFileSize, err = getEnvInt64("DS_MAX_FILE_SIZE", 1073741824)
	if err != nil {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: %w", err)
	}
	if cfg.MaxFileSize <= 0 {
		return nil, fmt.Errorf("DS_MAX_FILE_SIZE: значение должно быть положительным")
	}

	// DS_CHUNK_SIZE — размер чанка обработки (по умолчанию 64 KB)
	cfg.ChunkSize, err = getEnvInt64("DS_CHUNK_SIZE", 65536)
	if err != nil {
		return nil, fmt.Errorf("DS_CHUNK_SIZE: %w", err)
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("DS_CHUNK_SIZE: значение должно быть >= 1")
	}

	// DS_LIST_MAX_LIMIT — максимальный limit списков (по умолчанию 1000)
	cfg.ListMaxLimit, err = getEnvInt("DS_LIST_MAX_LIMIT", 1000)
	if err != nil {
		return nil, fmt.Errorf("DS_LIST_MAX_LIMIT: %w", err)
	}
	if cfg.ListMaxLimit < 1 {
		return nil, fmt.Errorf("DS_LIST_MAX_LIMIT: значение должно быть >= 1")
	}

	// DS_WORKERS — количество воркеров обработки (по умолчанию 4)
	cfg.Workers, err = getEnvInt("DS_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("DS_WORKERS: %w", err)
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("DS_WORKERS: значение должно быть >= 1")
	}

	// DS_QUEUE_SIZE — ёмкость очереди задач (по умолчанию 256)
	cfg.QueueSize, err = getEnvInt("DS_QUEUE_SIZE", 256)
	if err != nil {
		return nil, fmt.Errorf("DS_QUEUE_SIZE: %w", err)
	}
	if cfg.QueueSize < 1 {
		return nil, fmt.Errorf("DS_QUEUE_SIZE: значение должно быть >= 1")
	}

	// DS_JOB_TIMEOUT — таймаут задачи обработки (по умолчанию 2m)
	cfg.JobTimeout, err = getEnvDuration("DS_JOB_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_JOB_TIMEOUT: %w", err)
	}

	// DS_JOB_RETRIES — повторы задачи при ошибке (по умолчанию 2)
	cfg.JobRetries, err = getEnvInt("DS_JOB_RETRIES", 2)
	if err != nil {
		return nil, fmt.Errorf("DS_JOB_RETRIES: %w", err)
	}
	if cfg.JobRetries < 0 {
		return nil, fmt.Errorf("DS_JOB_RETRIES: значение не может быть отрицательным")
	}

	// DS_WATCHDOG_INTERVAL — интервал watchdog (по умолчанию 1m)
	cfg.WatchdogInterval, err = getEnvDuration("DS_WATCHDOG_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_WATCHDOG_INTERVAL: %w", err)
	}

	// DS_STALE_AFTER — порог зависания processing (по умолчанию 10m)
	cfg.StaleAfter, err = getEnvDuration("DS_STALE_AFTER", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("DS_STALE_AFTER: %w", err)
	}

	// DS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("DS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}

	// DS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("DS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// DS_TLS_CERT / DS_TLS_KEY — TLS (опционально, но только парой)
	cfg.TLSCert = getEnvDefault("DS_TLS_CERT", "")
	cfg.TLSKey = getEnvDefault("DS_TLS_KEY", "")
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return nil, fmt.Errorf("DS_TLS_CERT и DS_TLS_KEY должны задаваться вместе")
	}

	// DS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("DS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// DS_DEPHEALTH_URL — URL downstream-сервиса обработки (опционально)
	cfg.DephealthURL = getEnvDefault("DS_DEPHEALTH_URL", "")

	// DS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("DS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("DS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// DS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("DS_DEPHEALTH_GROUP", "dedup-store")

	// DS_DEPHEALTH_DEP_NAME — имя зависимости в метриках topologymetrics
	cfg.DephealthDepName = getEnvDefault("DS_DEPHEALTH_DEP_NAME", "processing-backend")

	return cfg, nil
}

// DatabaseDSN возвращает DSN подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1m, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
