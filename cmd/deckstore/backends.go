package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/deckstore/internal/api/handlers"
	"github.com/bigkaa/deckstore/internal/config"
	"github.com/bigkaa/deckstore/internal/database"
	"github.com/bigkaa/deckstore/internal/repository"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
	"github.com/bigkaa/deckstore/internal/storage/objectstore/filestore"
	"github.com/bigkaa/deckstore/internal/storage/objectstore/gcsstore"
	"github.com/bigkaa/deckstore/internal/storage/objectstore/s3store"
)

// recordBackends — открытые хранилища записей в порядке приоритета.
type recordBackends struct {
	repos    []repository.DeckRepository
	checkers []handlers.ReadinessChecker
	// pgDB — *sql.DB поверх pgxpool для topologymetrics, nil без PostgreSQL
	pgDB    *sql.DB
	closers []func()
}

// Close освобождает соединения в обратном порядке открытия.
func (b *recordBackends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openRecordBackends подключает хранилища записей из DS_RECORD_BACKENDS.
// При ошибке уже открытые соединения закрываются.
func openRecordBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*recordBackends, error) {
	b := &recordBackends{}
	for _, name := range cfg.RecordBackends {
		if err := b.open(ctx, name, cfg, logger); err != nil {
			b.Close()
			return nil, fmt.Errorf("backend %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *recordBackends) open(ctx context.Context, name string, cfg *config.Config, logger *slog.Logger) error {
	switch name {
	case config.RecordBackendPostgres:
		pool, err := database.Connect(ctx, cfg, logger)
		if err != nil {
			return err
		}
		b.retryUntilDone(ctx, "миграции PostgreSQL", logger, func(context.Context) error {
			return database.Migrate(cfg, logger)
		})
		b.pgDB = stdlib.OpenDBFromPool(pool)
		b.closers = append(b.closers, func() {
			_ = b.pgDB.Close()
			pool.Close()
		})
		b.repos = append(b.repos, repository.NewPostgresDeckRepository(pool))
		b.checkers = append(b.checkers, database.NewPostgresChecker(pool))

	case config.RecordBackendFirestore:
		client, err := database.OpenFirestore(ctx, cfg, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.repos = append(b.repos, repository.NewFirestoreDeckRepository(client, cfg.FirestoreCollection))
		b.checkers = append(b.checkers, database.NewFirestoreChecker(client, cfg.FirestoreCollection))

	case config.RecordBackendMongo:
		client, err := database.ConnectMongo(ctx, cfg, logger)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = client.Disconnect(context.Background()) })
		col := client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection)
		b.retryUntilDone(ctx, "индексы MongoDB", logger, func(ctx context.Context) error {
			return repository.EnsureMongoIndexes(ctx, col)
		})
		b.repos = append(b.repos, repository.NewMongoDeckRepository(col))
		b.checkers = append(b.checkers, database.NewMongoChecker(client))

	case config.RecordBackendSQLite:
		db, err := database.OpenSQLite(cfg, logger)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			b.closers = append(b.closers, func() { _ = sqlDB.Close() })
		}
		repo, err := repository.NewSQLiteDeckRepository(db)
		if err != nil {
			return err
		}
		b.repos = append(b.repos, repo)
		b.checkers = append(b.checkers, database.NewSQLiteChecker(db))

	default:
		return fmt.Errorf("неизвестный backend %q", name)
	}
	return nil
}

// schemaRetryInterval — пауза между попытками подготовить схему хранилища.
var schemaRetryInterval = 15 * time.Second

// retryUntilDone выполняет подготовку схемы сразу, а при неудаче
// повторяет её в фоне до успеха или Close. Недоступная при старте база
// не останавливает сервис: каталог переходит к следующему источнику.
func (b *recordBackends) retryUntilDone(ctx context.Context, what string, logger *slog.Logger, fn func(context.Context) error) {
	err := fn(ctx)
	if err == nil {
		return
	}
	logger.Warn("Не удалось выполнить при старте, повтор в фоне",
		slog.String("step", what),
		slog.String("error", err.Error()),
	)

	bgCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	b.closers = append(b.closers, func() {
		cancel()
		<-done
	})
	go func() {
		defer close(done)
		ticker := time.NewTicker(schemaRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if err := fn(bgCtx); err != nil {
					logger.Debug("Повтор не удался",
						slog.String("step", what),
						slog.String("error", err.Error()),
					)
					continue
				}
				logger.Info("Выполнено после повтора", slog.String("step", what))
				return
			}
		}
	}()
}

// objectBackend — выбранное объектное хранилище.
type objectBackend struct {
	store objectstore.Store
	// files — локальное хранилище для раздачи по /files/, nil для s3/gcs
	files *filestore.FileStore
	close func()
}

// openObjectStore создаёт объектное хранилище из DS_OBJECT_BACKEND.
func openObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*objectBackend, error) {
	switch cfg.ObjectBackend {
	case config.ObjectBackendLocal:
		fs, err := filestore.New(cfg.DataDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Локальное объектное хранилище", slog.String("data_dir", fs.DataDir()))
		return &objectBackend{store: fs, files: fs, close: func() {}}, nil

	case config.ObjectBackendS3:
		s3, err := s3store.New(s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			UseSSL:    cfg.S3UseSSL,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return nil, err
		}
		if err := s3.CheckBucket(ctx); err != nil {
			return nil, err
		}
		logger.Info("Объектное хранилище S3",
			slog.String("endpoint", cfg.S3Endpoint),
			slog.String("bucket", cfg.S3Bucket),
		)
		return &objectBackend{store: s3, close: func() {}}, nil

	case config.ObjectBackendGCS:
		gcs, err := gcsstore.New(ctx, cfg.GCSBucket, cfg.GCSPublicURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Объектное хранилище GCS", slog.String("bucket", cfg.GCSBucket))
		return &objectBackend{store: gcs, close: func() { _ = gcs.Close() }}, nil
	}
	return nil, fmt.Errorf("неизвестный backend объектного хранилища %q", cfg.ObjectBackend)
}
