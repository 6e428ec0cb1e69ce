// Пакет config — загрузка и валидация конфигурации Deckstore
// из переменных окружения (и опционального файла .env).
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Допустимые backend-ы хранилища записей.
const (
	RecordBackendPostgres  = "postgres"
	RecordBackendFirestore = "firestore"
	RecordBackendMongo     = "mongo"
	RecordBackendSQLite    = "sqlite"
)

// Допустимые backend-ы объектного хранилища.
const (
	ObjectBackendLocal = "local"
	ObjectBackendS3    = "s3"
	ObjectBackendGCS   = "gcs"
)

// Config содержит все параметры конфигурации Deckstore.
type Config struct {
	// Порт HTTP-сервера
	Port int `env:"DS_PORT" envDefault:"8080"`
	// Уровень логирования (debug, info, warn, error)
	LogLevelRaw string     `env:"DS_LOG_LEVEL" envDefault:"info"`
	LogLevel    slog.Level `env:"-"`
	// Формат логов (json, text)
	LogFormat string `env:"DS_LOG_FORMAT" envDefault:"json"`

	// Упорядоченный список источников записей (по убыванию приоритета)
	RecordBackends []string `env:"DS_RECORD_BACKENDS" envDefault:"postgres" envSeparator:","`
	// Backend объектного хранилища (local, s3, gcs)
	ObjectBackend string `env:"DS_OBJECT_BACKEND" envDefault:"local"`
	// Путь к статическому манифесту (низший приоритет каталога); пусто — не использовать
	ManifestPath string `env:"DS_MANIFEST_PATH" envDefault:"decks.json"`
	// Префикс ключей загружаемых колод в объектном хранилище
	UploadPrefix string `env:"DS_UPLOAD_PREFIX" envDefault:"decks"`

	// Максимальный размер колоды в байтах (по умолчанию 200 MiB)
	MaxUploadSize int64 `env:"DS_MAX_UPLOAD_SIZE" envDefault:"209715200"`
	// Требовать аутентифицированного пользователя для загрузки
	UploadRequireAuth bool `env:"DS_UPLOAD_REQUIRE_AUTH" envDefault:"true"`
	// Допустимые расширения файлов колод
	AllowedExtensionsRaw []string         `env:"DS_ALLOWED_EXTENSIONS" envDefault:".apkg,.anki,.anki2,.zip,.tar.gz" envSeparator:","`
	AllowedExtensions    model.Extensions `env:"-"`

	// PostgreSQL
	DBHost     string `env:"DS_DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DS_DB_PORT" envDefault:"5432"`
	DBName     string `env:"DS_DB_NAME" envDefault:"deckstore"`
	DBUser     string `env:"DS_DB_USER"`
	DBPassword string `env:"DS_DB_PASSWORD"`
	DBSSLMode  string `env:"DS_DB_SSL_MODE" envDefault:"disable"`

	// Firestore
	FirestoreProjectID  string `env:"DS_FIRESTORE_PROJECT_ID"`
	FirestoreCollection string `env:"DS_FIRESTORE_COLLECTION" envDefault:"decks"`

	// MongoDB
	MongoURI        string `env:"DS_MONGO_URI"`
	MongoDatabase   string `env:"DS_MONGO_DATABASE" envDefault:"deckstore"`
	MongoCollection string `env:"DS_MONGO_COLLECTION" envDefault:"decks"`

	// SQLite
	SQLitePath string `env:"DS_SQLITE_PATH" envDefault:"deckstore.db"`

	// Локальное объектное хранилище
	DataDir       string `env:"DS_DATA_DIR" envDefault:"data"`
	PublicBaseURL string `env:"DS_PUBLIC_BASE_URL" envDefault:"http://localhost:8080/files"`

	// S3 / MinIO
	S3Endpoint  string `env:"DS_S3_ENDPOINT"`
	S3AccessKey string `env:"DS_S3_ACCESS_KEY"`
	S3SecretKey string `env:"DS_S3_SECRET_KEY"`
	S3Bucket    string `env:"DS_S3_BUCKET"`
	S3UseSSL    bool   `env:"DS_S3_USE_SSL" envDefault:"true"`
	S3PublicURL string `env:"DS_S3_PUBLIC_URL"`

	// Google Cloud Storage
	GCSBucket    string `env:"DS_GCS_BUCKET"`
	GCSPublicURL string `env:"DS_GCS_PUBLIC_URL"`

	// URL JWKS endpoint провайдера аутентификации; пусто — аутентификация отключена
	JWKSUrl string `env:"DS_JWKS_URL"`
	// Допустимое расхождение часов при проверке JWT
	JWTLeeway time.Duration `env:"DS_JWT_LEEWAY" envDefault:"5s"`
	// Интервал обновления JWKS
	JWKSRefreshInterval time.Duration `env:"DS_JWKS_REFRESH_INTERVAL" envDefault:"15s"`

	// Кэш записей колод
	CacheSize int           `env:"DS_CACHE_SIZE" envDefault:"1000"`
	CacheTTL  time.Duration `env:"DS_CACHE_TTL" envDefault:"5m"`

	// Интервал периодической сверки объектов и записей (0 — отключена)
	ReconcileInterval time.Duration `env:"DS_RECONCILE_INTERVAL" envDefault:"6h"`
	// Таймаут фонового инкремента счётчика скачиваний
	DownloadCountTimeout time.Duration `env:"DS_DOWNLOAD_COUNT_TIMEOUT" envDefault:"10s"`

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration `env:"DS_DEPHEALTH_CHECK_INTERVAL" envDefault:"15s"`
	// Имя группы в метриках topologymetrics
	DephealthGroup string `env:"DS_DEPHEALTH_GROUP" envDefault:"deckstore"`
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string `env:"DEPHEALTH_NAME"`

	// Таймауты HTTP-сервера
	HTTPReadTimeout  time.Duration `env:"DS_HTTP_READ_TIMEOUT" envDefault:"30s"`
	HTTPWriteTimeout time.Duration `env:"DS_HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	HTTPIdleTimeout  time.Duration `env:"DS_HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout  time.Duration `env:"DS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load загружает конфигурацию из переменных окружения, валидирует
// значения и возвращает Config или ошибку. Файл .env в рабочей
// директории подхватывается, если существует; уже заданные переменные
// окружения он не перекрывает.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf(".env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("разбор переменных окружения: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate проверяет диапазоны, перечисления и обязательные поля
// выбранных backend-ов.
func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("DS_PORT: значение %d вне допустимого диапазона 1-65535", c.Port)
	}

	level, err := parseLogLevel(c.LogLevelRaw)
	if err != nil {
		return fmt.Errorf("DS_LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("DS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", c.LogFormat)
	}

	if c.MaxUploadSize <= 0 {
		return fmt.Errorf("DS_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	c.AllowedExtensions = model.ParseExtensions(c.AllowedExtensionsRaw)
	if len(c.AllowedExtensions) == 0 {
		return fmt.Errorf("DS_ALLOWED_EXTENSIONS: список расширений пуст")
	}

	// 1. Источники записей: известные имена, без повторов
	c.RecordBackends = normalizeList(c.RecordBackends, true)
	seen := make(map[string]bool, len(c.RecordBackends))
	for _, b := range c.RecordBackends {
		if seen[b] {
			return fmt.Errorf("DS_RECORD_BACKENDS: backend %q указан дважды", b)
		}
		seen[b] = true

		switch b {
		case RecordBackendPostgres:
			if c.DBUser == "" {
				return fmt.Errorf("DS_DB_USER: обязательная переменная окружения не задана")
			}
			if c.DBPassword == "" {
				return fmt.Errorf("DS_DB_PASSWORD: обязательная переменная окружения не задана")
			}
		case RecordBackendFirestore:
			if c.FirestoreProjectID == "" {
				return fmt.Errorf("DS_FIRESTORE_PROJECT_ID: обязательная переменная окружения не задана")
			}
		case RecordBackendMongo:
			if c.MongoURI == "" {
				return fmt.Errorf("DS_MONGO_URI: обязательная переменная окружения не задана")
			}
		case RecordBackendSQLite:
			if c.SQLitePath == "" {
				return fmt.Errorf("DS_SQLITE_PATH: обязательная переменная окружения не задана")
			}
		default:
			return fmt.Errorf("DS_RECORD_BACKENDS: недопустимое значение %q, допустимые: postgres, firestore, mongo, sqlite", b)
		}
	}
	if len(c.RecordBackends) == 0 && c.ManifestPath == "" {
		return fmt.Errorf("DS_RECORD_BACKENDS: не задан ни один источник каталога (укажите backend или DS_MANIFEST_PATH)")
	}

	// 2. Объектное хранилище
	c.ObjectBackend = strings.ToLower(strings.TrimSpace(c.ObjectBackend))
	switch c.ObjectBackend {
	case ObjectBackendLocal:
		if c.DataDir == "" {
			return fmt.Errorf("DS_DATA_DIR: обязательная переменная окружения не задана")
		}
	case ObjectBackendS3:
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return fmt.Errorf("DS_S3_ENDPOINT, DS_S3_BUCKET: обязательны для backend s3")
		}
	case ObjectBackendGCS:
		if c.GCSBucket == "" {
			return fmt.Errorf("DS_GCS_BUCKET: обязательная переменная окружения не задана")
		}
	default:
		return fmt.Errorf("DS_OBJECT_BACKEND: недопустимое значение %q, допустимые: local, s3, gcs", c.ObjectBackend)
	}

	c.UploadPrefix = strings.Trim(c.UploadPrefix, "/")
	if c.UploadPrefix == "" {
		return fmt.Errorf("DS_UPLOAD_PREFIX: значение не может быть пустым")
	}

	if c.CacheSize <= 0 {
		return fmt.Errorf("DS_CACHE_SIZE: значение должно быть положительным")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("DS_RECONCILE_INTERVAL: значение не может быть отрицательным")
	}
	if c.DownloadCountTimeout <= 0 {
		return fmt.Errorf("DS_DOWNLOAD_COUNT_TIMEOUT: значение должно быть положительным")
	}

	return nil
}

// PrimaryRecordBackend возвращает backend, в который пишутся новые записи.
// Пустая строка — каталог работает только из манифеста, загрузка недоступна.
func (c *Config) PrimaryRecordBackend() string {
	if len(c.RecordBackends) == 0 {
		return ""
	}
	return c.RecordBackends[0]
}

// AuthEnabled сообщает, настроена ли проверка JWT.
func (c *Config) AuthEnabled() bool {
	return c.JWKSUrl != ""
}

// DatabaseDSN формирует строку подключения PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
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

// normalizeList обрезает пробелы, отбрасывает пустые элементы и
// при необходимости приводит к нижнему регистру.
func normalizeList(items []string, lower bool) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lower {
			item = strings.ToLower(item)
		}
		out = append(out, item)
	}
	return out
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
