// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Deckstore мониторит (каждую — только если она сконфигурирована):
//   - PostgreSQL — SQL checker через существующий pgxpool (connection pool mode)
//   - JWKS endpoint — HTTP checker (проверка подписи токенов загрузки)
//   - S3/MinIO — HTTP checker к /minio/health/live
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// minioHealthPath — liveness endpoint MinIO/S3-совместимого хранилища.
const minioHealthPath = "/minio/health/live"

// ErrNoDependencies — не сконфигурировано ни одной зависимости.
var ErrNoDependencies = errors.New("нет зависимостей для мониторинга")

// DephealthConfig — набор отслеживаемых зависимостей.
type DephealthConfig struct {
	// ServiceID — имя вершины графа текущего приложения
	ServiceID string
	// Group — имя группы в метриках
	Group string
	// CheckInterval — интервал проверки
	CheckInterval time.Duration

	// PostgresDB — *sql.DB из pgxpool (stdlib.OpenDBFromPool), nil — не отслеживается
	PostgresDB *sql.DB
	// PostgresURL — URL подключения (для лейблов, не для подключения)
	PostgresURL string
	// JWKSURL — URL JWKS endpoint, "" — не отслеживается
	JWKSURL string
	// S3Endpoint — host:port S3/MinIO, "" — не отслеживается
	S3Endpoint string
	S3UseSSL   bool
}

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
func NewDephealthService(cfg DephealthConfig, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus registerer.
// Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(
	cfg DephealthConfig,
	logger *slog.Logger,
	registerer prometheus.Registerer,
) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

func newDephealthService(cfg DephealthConfig, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	deps := make([]dephealth.Option, 0, 3)

	if cfg.PostgresDB != nil {
		deps = append(deps, dephealth.AddDependency("postgresql", dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(cfg.PostgresDB)),
			dephealth.FromURL(cfg.PostgresURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if cfg.JWKSURL != "" {
		jwksOpts := []dephealth.DependencyOption{
			dephealth.FromURL(cfg.JWKSURL),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(false),
		}
		if parsed, err := url.Parse(cfg.JWKSURL); err == nil && parsed.Scheme == "https" {
			jwksOpts = append(jwksOpts, dephealth.WithHTTPTLSSkipVerify(false))
		}
		deps = append(deps, dephealth.HTTP("jwks", jwksOpts...))
	}

	if cfg.S3Endpoint != "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		deps = append(deps, dephealth.HTTP("object-storage",
			dephealth.FromURL(scheme+"://"+cfg.S3Endpoint),
			dephealth.WithHTTPHealthPath(minioHealthPath),
			dephealth.CheckInterval(cfg.CheckInterval),
			dephealth.Critical(true),
		))
	}

	if len(deps) == 0 {
		return nil, ErrNoDependencies
	}

	opts := make([]dephealth.Option, 0, 1+len(deps)+len(extraOpts))
	opts = append(opts, dephealth.WithLogger(logger))
	opts = append(opts, deps...)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.ServiceID, cfg.Group, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
