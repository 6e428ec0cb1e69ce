// Пакет database — подключения к хранилищам записей о колодах:
// PostgreSQL (pgxpool + миграции golang-migrate), MongoDB, Firestore
// и SQLite (GORM), а также проверки их готовности для health endpoint.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"google.golang.org/api/iterator"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/bigkaa/deckstore/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// readinessTimeout — таймаут одной проверки готовности.
const readinessTimeout = 3 * time.Second

// startupPingTimeout — таймаут проверки доступности при подключении.
const startupPingTimeout = 5 * time.Second

// Connect создаёт пул подключений к PostgreSQL и проверяет доступность.
// Недоступная БД не ошибка: пул подключается лениво, запросы до
// восстановления завершаются ошибкой, и каталог переходит к следующему
// источнику.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	// Проверяем подключение
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		logger.Warn("PostgreSQL недоступна, подключение будет выполнено при первом запросе",
			slog.String("host", cfg.DBHost),
			slog.Int("port", cfg.DBPort),
			slog.String("error", err.Error()),
		)
		return pool, nil
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
	)

	return pool, nil
}

// Migrate применяет SQL-миграции из embedded FS к базе данных.
// Использует golang-migrate с драйвером pgx5.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	// golang-migrate ожидает схему pgx5://
	dbURL := "pgx5://" + strings.TrimPrefix(cfg.DatabaseDSN(), "postgres://")

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("version", uint64(version)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// ConnectMongo создаёт клиент MongoDB и проверяет доступность primary.
// Как и для PostgreSQL, недоступный сервер только логируется.
func ConnectMongo(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, startupPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		logger.Warn("MongoDB недоступна, подключение будет восстановлено драйвером",
			slog.String("error", err.Error()),
		)
		return client, nil
	}

	logger.Info("Подключение к MongoDB установлено",
		slog.String("database", cfg.MongoDatabase),
		slog.String("collection", cfg.MongoCollection),
	)
	return client, nil
}

// OpenFirestore создаёт клиент Firestore. Учётные данные берутся из
// окружения (GOOGLE_APPLICATION_CREDENTIALS, FIRESTORE_EMULATOR_HOST).
func OpenFirestore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.FirestoreProjectID)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента Firestore: %w", err)
	}

	logger.Info("Клиент Firestore создан",
		slog.String("project", cfg.FirestoreProjectID),
		slog.String("collection", cfg.FirestoreCollection),
	)
	return client, nil
}

// OpenSQLite открывает файл SQLite через GORM (драйвер modernc, без cgo).
func OpenSQLite(cfg *config.Config, logger *slog.Logger) (*gorm.DB, error) {
	dial := gormsqlite.Dialector{DriverName: "sqlite", DSN: cfg.SQLitePath}
	db, err := gorm.Open(dial, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия SQLite %s: %w", cfg.SQLitePath, err)
	}

	logger.Info("SQLite открыта", slog.String("path", cfg.SQLitePath))
	return db, nil
}

// --- Проверки готовности ---

// PostgresChecker — проверка готовности PostgreSQL.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

// NewPostgresChecker создаёт проверку готовности PostgreSQL.
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

// Name — имя проверки в ответе readiness.
func (c *PostgresChecker) Name() string { return "postgresql" }

// CheckReady проверяет подключение через ping.
func (c *PostgresChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	if err := c.pool.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

// MongoChecker — проверка готовности MongoDB.
type MongoChecker struct {
	client *mongo.Client
}

// NewMongoChecker создаёт проверку готовности MongoDB.
func NewMongoChecker(client *mongo.Client) *MongoChecker {
	return &MongoChecker{client: client}
}

func (c *MongoChecker) Name() string { return "mongodb" }

func (c *MongoChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	if err := c.client.Ping(ctx, readpref.Primary()); err != nil {
		return "fail", fmt.Sprintf("MongoDB недоступна: %v", err)
	}
	return "ok", "подключение активно"
}

// FirestoreChecker — проверка готовности Firestore (чтение одного документа).
type FirestoreChecker struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreChecker создаёт проверку готовности Firestore.
func NewFirestoreChecker(client *firestore.Client, collection string) *FirestoreChecker {
	return &FirestoreChecker{client: client, collection: collection}
}

func (c *FirestoreChecker) Name() string { return "firestore" }

func (c *FirestoreChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	it := c.client.Collection(c.collection).Limit(1).Documents(ctx)
	defer it.Stop()
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return "fail", fmt.Sprintf("Firestore недоступен: %v", err)
	}
	return "ok", "подключение активно"
}

// SQLiteChecker — проверка готовности SQLite.
type SQLiteChecker struct {
	db *gorm.DB
}

// NewSQLiteChecker создаёт проверку готовности SQLite.
func NewSQLiteChecker(db *gorm.DB) *SQLiteChecker {
	return &SQLiteChecker{db: db}
}

func (c *SQLiteChecker) Name() string { return "sqlite" }

func (c *SQLiteChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	sqlDB, err := c.db.DB()
	if err != nil {
		return "fail", fmt.Sprintf("SQLite недоступна: %v", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return "fail", fmt.Sprintf("SQLite недоступна: %v", err)
	}
	return "ok", "подключение активно"
}
