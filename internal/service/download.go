// download.go — учёт скачиваний колод.
// Счётчик увеличивается атомарной операцией хранилища записей, поэтому
// параллельные скачивания не теряют обновлений. Ошибки счётчика не
// влияют на выдачу файла: они логируются и учитываются в метриках.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/repository"
)

// Prometheus-метрики скачиваний.
var (
	downloadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckstore_downloads_total",
		Help: "Количество учтённых скачиваний (по результату инкремента).",
	}, []string{"status"})

	downloadCountDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deckstore_download_count_duration_seconds",
		Help:    "Длительность инкремента счётчика скачиваний.",
		Buckets: prometheus.DefBuckets,
	})
)

// DefaultDownloadCountTimeout — таймаут фонового инкремента по умолчанию.
const DefaultDownloadCountTimeout = 10 * time.Second

// DownloadCounter — сервис разрешения ссылок и учёта скачиваний.
type DownloadCounter struct {
	repos   []repository.DeckRepository
	cache   *CacheService
	catalog *Catalog
	timeout time.Duration
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewDownloadCounter создаёт сервис учёта скачиваний.
// repos — хранилища записей в порядке приоритета; catalog может быть nil.
func NewDownloadCounter(
	repos []repository.DeckRepository,
	cache *CacheService,
	catalog *Catalog,
	timeout time.Duration,
	logger *slog.Logger,
) *DownloadCounter {
	if timeout <= 0 {
		timeout = DefaultDownloadCountTimeout
	}
	return &DownloadCounter{
		repos:   repos,
		cache:   cache,
		catalog: catalog,
		timeout: timeout,
		logger:  logger.With(slog.String("component", "download_counter")),
	}
}

// Resolve находит запись по ключу: кэш → хранилища записей → снимок каталога.
// Ключ записи манифеста — имя файла.
func (dc *DownloadCounter) Resolve(ctx context.Context, key string) (model.DeckRecord, error) {
	if rec, ok := dc.cache.Get(key); ok {
		return rec, nil
	}

	var lastErr error
	for _, repo := range dc.repos {
		rec, err := repo.Get(ctx, key)
		if err == nil {
			dc.cache.Set(key, *rec)
			return *rec, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			dc.logger.Warn("Ошибка получения записи",
				slog.String("store", repo.Name()),
				slog.String("id", key),
				slog.String("error", err.Error()),
			)
			lastErr = err
		}
	}

	if dc.catalog != nil {
		if rec, ok := dc.catalog.Snapshot().Find(key); ok {
			return rec, nil
		}
	}
	if lastErr != nil {
		return model.DeckRecord{}, lastErr
	}
	return model.DeckRecord{}, ErrNotFound
}

// RecordDownload увеличивает счётчик скачиваний записи в первом
// хранилище, которому она известна. Никогда не возвращает ошибку.
func (dc *DownloadCounter) RecordDownload(ctx context.Context, id string) {
	start := time.Now()
	defer func() { downloadCountDuration.Observe(time.Since(start).Seconds()) }()

	var failed bool
	for _, repo := range dc.repos {
		count, err := repo.IncrementDownloads(ctx, id)
		if err == nil {
			downloadsTotal.WithLabelValues("ok").Inc()
			dc.logger.Debug("Скачивание учтено",
				slog.String("id", id),
				slog.String("store", repo.Name()),
				slog.Int64("download_count", count),
			)
			dc.cache.Delete(id)
			dc.reloadCatalog(ctx)
			return
		}
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		failed = true
		dc.logger.Error("Ошибка инкремента счётчика скачиваний",
			slog.String("id", id),
			slog.String("store", repo.Name()),
			slog.String("error", err.Error()),
		)
	}

	if failed {
		downloadsTotal.WithLabelValues("error").Inc()
		return
	}
	downloadsTotal.WithLabelValues("not_found").Inc()
	dc.logger.Info("Скачивание не учтено: запись не найдена",
		slog.String("id", id),
	)
}

// Fire запускает RecordDownload в фоне с контекстом, отвязанным от
// отмены запроса, и ограниченным таймаутом.
func (dc *DownloadCounter) Fire(ctx context.Context, id string) {
	dc.wg.Add(1)
	go func() {
		defer dc.wg.Done()
		bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dc.timeout)
		defer cancel()
		dc.RecordDownload(bgCtx, id)
	}()
}

// Wait ожидает завершения фоновых инкрементов.
func (dc *DownloadCounter) Wait() {
	dc.wg.Wait()
}

func (dc *DownloadCounter) reloadCatalog(ctx context.Context) {
	if dc.catalog == nil {
		return
	}
	if _, err := dc.catalog.Load(ctx); err != nil && !errors.Is(err, ErrEmptyCatalog) {
		dc.logger.Warn("Не удалось перезагрузить каталог после скачивания",
			slog.String("error", err.Error()),
		)
	}
}
