// Точка входа Deckstore — каталога колод для интервального повторения.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bigkaa/deckstore/internal/api/handlers"
	"github.com/bigkaa/deckstore/internal/api/middleware"
	"github.com/bigkaa/deckstore/internal/config"
	"github.com/bigkaa/deckstore/internal/server"
	"github.com/bigkaa/deckstore/internal/service"
)

// startupTimeout — ограничение на подключение к хранилищам при старте.
const startupTimeout = 30 * time.Second

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Deckstore запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.Any("record_backends", cfg.RecordBackends),
		slog.String("object_backend", cfg.ObjectBackend),
		slog.String("extensions", cfg.AllowedExtensions.String()),
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Deckstore остановлен")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	startCtx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	// --- Инициализация компонентов ---

	// 1. Хранилища записей (в порядке приоритета)
	backends, err := openRecordBackends(startCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("хранилища записей: %w", err)
	}
	defer backends.Close()

	// 2. Объектное хранилище
	objects, err := openObjectStore(startCtx, cfg, logger)
	if err != nil {
		return fmt.Errorf("объектное хранилище: %w", err)
	}
	defer objects.close()

	// 3. Каталог: хранилища записей, затем статический манифест
	sources := make([]service.CatalogSource, 0, len(backends.repos)+1)
	for _, repo := range backends.repos {
		sources = append(sources, service.NewRecordStoreSource(repo, cfg.AllowedExtensions))
	}
	if cfg.ManifestPath != "" {
		sources = append(sources, service.NewStaticManifestSource(cfg.ManifestPath, cfg.AllowedExtensions))
	}
	catalog := service.NewCatalog(sources, logger)

	if snap, err := catalog.Load(startCtx); err != nil && !errors.Is(err, service.ErrEmptyCatalog) {
		// Не фатально: каталог повторит загрузку на следующем запросе
		logger.Warn("Начальная загрузка каталога не удалась", slog.String("error", err.Error()))
	} else {
		logger.Info("Каталог загружен",
			slog.String("source", snap.Source),
			slog.Int("records", len(snap.Records)),
		)
	}

	// 4. Сервисы
	cache := service.NewCacheService(cfg.CacheSize, cfg.CacheTTL)
	downloads := service.NewDownloadCounter(backends.repos, cache, catalog, cfg.DownloadCountTimeout, logger)

	var (
		uploads   *service.UploadPipeline
		reconcile *service.ReconcileService
	)
	if len(backends.repos) > 0 {
		primary := backends.repos[0]
		uploads = service.NewUploadPipeline(service.UploadConfig{
			MaxSize:     cfg.MaxUploadSize,
			Extensions:  cfg.AllowedExtensions,
			Prefix:      cfg.UploadPrefix,
			RequireAuth: cfg.UploadRequireAuth,
		}, objects.store, primary, logger)
		reconcile = service.NewReconcileService(objects.store, primary, cfg.UploadPrefix, cfg.ReconcileInterval, logger)
		logger.Info("Загрузка колод включена", slog.String("record_store", primary.Name()))
	} else {
		logger.Warn("Хранилища записей не настроены, каталог только из манифеста, загрузка отключена")
	}

	// 5. Фоновые процессы
	ctx := context.Background()

	// 5.1 Reconciliation — периодическая сверка объектов и записей
	if reconcile != nil {
		reconcile.Start(ctx)
	}

	// 5.2 topologymetrics — мониторинг зависимостей
	dephealthSvc := startDephealth(ctx, cfg, backends, logger)

	// 6. JWT middleware
	checkers := backends.checkers
	var auth func(http.Handler) http.Handler
	if cfg.AuthEnabled() {
		jwtAuth, err := middleware.NewJWTAuth(cfg.JWKSUrl, 10*time.Second, cfg.JWKSRefreshInterval, cfg.JWTLeeway, logger)
		if err != nil {
			// JWKS недоступен — загрузка без атрибуции невозможна при DS_UPLOAD_REQUIRE_AUTH
			logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
		} else {
			auth = jwtAuth.Middleware()
			checkers = append(checkers, middleware.NewJWKSReadinessChecker(cfg.JWKSUrl, 3*time.Second))
			logger.Info("JWT аутентификация настроена", slog.String("jwks_url", cfg.JWKSUrl))
		}
	}

	// 7. Handlers
	apiHandler := handlers.NewAPIHandler(handlers.Deps{
		Catalog:   catalog,
		Uploads:   uploads,
		Downloads: downloads,
		Reconcile: reconcile,
		Files:     objects.files,
	}, logger)

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, server.Routes{
		API:    apiHandler,
		Health: handlers.NewHealthHandler(checkers...),
		Auth:   auth,
		Middlewares: []func(http.Handler) http.Handler{
			middleware.RequestLogger(logger),
			middleware.MetricsMiddleware(),
		},
	})
	runErr := srv.Run()

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	if reconcile != nil {
		reconcile.Stop()
	}
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}
	downloads.Wait()

	return runErr
}

// startDephealth запускает мониторинг зависимостей. Ошибки не фатальны.
func startDephealth(ctx context.Context, cfg *config.Config, backends *recordBackends, logger *slog.Logger) *service.DephealthService {
	serviceID := cfg.DephealthName
	if serviceID == "" {
		serviceID = "deckstore"
	}
	dcfg := service.DephealthConfig{
		ServiceID:     serviceID,
		Group:         cfg.DephealthGroup,
		CheckInterval: cfg.DephealthCheckInterval,
		JWKSURL:       cfg.JWKSUrl,
	}
	if backends.pgDB != nil {
		dcfg.PostgresDB = backends.pgDB
		dcfg.PostgresURL = cfg.DatabaseDSN()
	}
	if cfg.ObjectBackend == config.ObjectBackendS3 {
		dcfg.S3Endpoint = cfg.S3Endpoint
		dcfg.S3UseSSL = cfg.S3UseSSL
	}

	svc, err := service.NewDephealthService(dcfg, logger)
	if err != nil {
		if errors.Is(err, service.ErrNoDependencies) {
			logger.Info("topologymetrics: нет зависимостей для мониторинга")
		} else {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	if err := svc.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return svc
}
