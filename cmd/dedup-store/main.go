// Точка входа Dedup Store — сервиса контент-адресуемого хранения
// с дедупликацией по отпечатку содержимого.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bigkaa/godedup/internal/api/handlers"
	"github.com/bigkaa/godedup/internal/config"
	"github.com/bigkaa/godedup/internal/database"
	"github.com/bigkaa/godedup/internal/processing"
	"github.com/bigkaa/godedup/internal/server"
	"github.com/bigkaa/godedup/internal/service"
	"github.com/bigkaa/godedup/internal/storage/blobstore"
	"github.com/bigkaa/godedup/internal/store"
	"github.com/bigkaa/godedup/internal/store/memory"
	"github.com/bigkaa/godedup/internal/store/pg"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Dedup Store запускается",
		slog.String("instance_id", cfg.InstanceID),
		slog.String("version", config.Version),
		slog.String("store_backend", cfg.StoreBackend),
		slog.Int("port", cfg.Port),
	)

	// --- Инициализация компонентов ---

	// 1. Blob-хранилище содержимого
	blobs, err := blobstore.New(cfg.DataDir)
	if err != nil {
		logger.Error("Ошибка инициализации blob-хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Хранилище записей: memory или postgres
	var records store.RecordStore
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		if err := database.Migrate(cfg, logger); err != nil {
			logger.Error("Ошибка применения миграций", slog.String("error", err.Error()))
			os.Exit(1)
		}
		pool, err := database.Connect(context.Background(), cfg, logger)
		if err != nil {
			logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
			os.Exit(1)
		}
		records = pg.New(pool, cfg.ListMaxLimit)
	default:
		records = memory.New(cfg.ListMaxLimit, logger)
	}
	defer records.Close()

	// 3. Обработчик содержимого (чанкование сохранённого blob)
	chunker, err := processing.NewChunker(blobs, cfg.ChunkSize)
	if err != nil {
		logger.Error("Ошибка инициализации обработчика", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Фоновые процессы
	ctx := context.Background()

	// 4.1 Пул воркеров обработки
	processor := service.NewProcessor(
		records,
		chunker,
		cfg.Workers,
		cfg.QueueSize,
		cfg.JobTimeout,
		cfg.JobRetries,
		logger,
	)
	processor.Start(ctx)

	// 4.2 Watchdog — надзор за зависшими записями
	watchdog := service.NewWatchdog(records, cfg.WatchdogInterval, cfg.StaleAfter, logger)
	watchdog.Start(ctx)

	// 4.3 topologymetrics — мониторинг зависимостей (опционально)
	var dephealthSvc *service.DephealthService
	if cfg.DephealthURL != "" {
		var dephealthErr error
		dephealthSvc, dephealthErr = service.NewDephealthService(
			cfg.InstanceID,
			cfg.DephealthGroup,
			cfg.DephealthDepName,
			cfg.DephealthURL,
			cfg.DephealthCheckInterval,
			logger,
		)
		if dephealthErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dephealthErr.Error()),
			)
			dephealthSvc = nil
		} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
			dephealthSvc = nil
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("target_url", cfg.DephealthURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 5. Координатор приёма
	ingestSvc := service.NewIngestService(cfg, blobs, records, processor, logger)

	// 6. Handlers
	filesHandler := handlers.NewFilesHandler(ingestSvc, records, blobs, cfg.ListMaxLimit)
	systemHandler := handlers.NewSystemHandler(cfg)
	healthHandler := handlers.NewHealthHandler(cfg.DataDir, records)
	api := handlers.NewAPI(filesHandler, systemHandler, healthHandler)

	// 7. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, api)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	watchdog.Stop()
	processor.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Dedup Store остановлен")
}
