// catalog.go — агрегатор каталога колод.
// Источники опрашиваются в порядке приоритета, используется первый
// непустой результат целиком (источники никогда не объединяются).
// Снимок каталога хранится в памяти и заменяется только целиком.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/manifest"
	"github.com/bigkaa/deckstore/internal/repository"
)

// Prometheus-метрики каталога.
var (
	catalogLoadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckstore_catalog_loads_total",
		Help: "Количество загрузок каталога (по результату).",
	}, []string{"status"})

	catalogSourceErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckstore_catalog_source_errors_total",
		Help: "Количество ошибок опроса источников каталога.",
	}, []string{"source"})

	catalogRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "deckstore_catalog_records",
		Help: "Количество записей в текущем снимке каталога.",
	})
)

// CatalogSource — источник записей каталога.
type CatalogSource interface {
	// Name — имя источника для логов и ответа API.
	Name() string
	// Fetch возвращает все записи источника в его порядке.
	Fetch(ctx context.Context) ([]model.DeckRecord, error)
}

// RecordStoreSource — источник поверх хранилища записей.
type RecordStoreSource struct {
	repo repository.DeckRepository
	exts model.Extensions
}

// NewRecordStoreSource создаёт источник из хранилища записей.
func NewRecordStoreSource(repo repository.DeckRepository, exts model.Extensions) *RecordStoreSource {
	return &RecordStoreSource{repo: repo, exts: exts}
}

func (s *RecordStoreSource) Name() string { return s.repo.Name() }

// Fetch возвращает записи по убыванию времени создания.
func (s *RecordStoreSource) Fetch(ctx context.Context) ([]model.DeckRecord, error) {
	decks, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]model.DeckRecord, 0, len(decks))
	for _, d := range decks {
		rec := *d
		rec.Normalize(s.exts)
		result = append(result, rec)
	}
	return result, nil
}

// StaticManifestSource — источник поверх файла манифеста decks.json.
type StaticManifestSource struct {
	path string
	exts model.Extensions
}

// NewStaticManifestSource создаёт источник из файла манифеста.
func NewStaticManifestSource(path string, exts model.Extensions) *StaticManifestSource {
	return &StaticManifestSource{path: path, exts: exts}
}

func (s *StaticManifestSource) Name() string { return "manifest" }

// Fetch читает манифест. Отсутствующий файл — пустой список, не ошибка.
func (s *StaticManifestSource) Fetch(_ context.Context) ([]model.DeckRecord, error) {
	entries, err := manifest.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	result := make([]model.DeckRecord, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.ToRecord(s.exts))
	}
	return result, nil
}

// Snapshot — неизменяемый снимок каталога.
type Snapshot struct {
	Records []model.DeckRecord
	// Source — имя источника, давшего записи ("" для пустого снимка)
	Source   string
	LoadedAt time.Time
}

// Find ищет запись по ключу (ID или имя файла для записей манифеста).
func (s Snapshot) Find(key string) (model.DeckRecord, bool) {
	for i := range s.Records {
		if s.Records[i].Key() == key {
			return s.Records[i], true
		}
	}
	return model.DeckRecord{}, false
}

// Catalog — агрегатор каталога.
type Catalog struct {
	sources []CatalogSource
	logger  *slog.Logger

	loadMu sync.Mutex // последовательные загрузки

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewCatalog создаёт каталог с источниками в порядке приоритета.
// Начальный снимок пуст.
func NewCatalog(sources []CatalogSource, logger *slog.Logger) *Catalog {
	return &Catalog{
		sources: sources,
		logger:  logger.With(slog.String("component", "catalog")),
	}
}

// Sources возвращает имена источников в порядке приоритета.
func (c *Catalog) Sources() []string {
	names := make([]string, 0, len(c.sources))
	for _, s := range c.sources {
		names = append(names, s.Name())
	}
	return names
}

// Load опрашивает источники и заменяет снимок.
//
// Возвращает ErrEmptyCatalog, если все источники пусты (снимок становится
// пустым), и ErrCatalogUnavailable, если записей нет и хотя бы один
// источник завершился ошибкой (предыдущий снимок сохраняется).
func (c *Catalog) Load(ctx context.Context) (Snapshot, error) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	var failed []error
	for _, src := range c.sources {
		records, err := src.Fetch(ctx)
		if err != nil {
			catalogSourceErrorsTotal.WithLabelValues(src.Name()).Inc()
			c.logger.Warn("Источник каталога недоступен",
				slog.String("source", src.Name()),
				slog.String("error", err.Error()),
			)
			failed = append(failed, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if len(records) == 0 {
			c.logger.Debug("Источник каталога пуст", slog.String("source", src.Name()))
			continue
		}

		snap := Snapshot{Records: records, Source: src.Name(), LoadedAt: time.Now().UTC()}
		c.replace(snap)
		catalogLoadsTotal.WithLabelValues("ok").Inc()
		c.logger.Debug("Каталог загружен",
			slog.String("source", snap.Source),
			slog.Int("records", len(records)),
		)
		return snap, nil
	}

	if len(failed) > 0 {
		catalogLoadsTotal.WithLabelValues("unavailable").Inc()
		return c.Snapshot(), fmt.Errorf("%w: %w", ErrCatalogUnavailable, errors.Join(failed...))
	}

	snap := Snapshot{LoadedAt: time.Now().UTC()}
	c.replace(snap)
	catalogLoadsTotal.WithLabelValues("empty").Inc()
	return snap, ErrEmptyCatalog
}

// Snapshot возвращает текущий снимок каталога.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Catalog) replace(snap Snapshot) {
	c.mu.Lock()
	c.snapshot = snap
	c.mu.Unlock()
	catalogRecords.Set(float64(len(snap.Records)))
}
