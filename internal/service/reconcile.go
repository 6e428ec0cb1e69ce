// reconcile.go — сверка объектного хранилища с хранилищем записей.
//
// Обнаруживает проблемы:
//   - orphaned_object: объект под префиксом загрузок без записи о колоде
//     (сбой коммита после записи объекта)
//   - missing_object: запись о колоде, объект которой отсутствует
//
// Сверка только диагностирует и ничего не удаляет. Запускается по
// тикеру (DS_RECONCILE_INTERVAL) и по запросу через API.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/repository"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckstore_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckstore_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deckstore_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// IssueType — тип расхождения.
type IssueType string

const (
	IssueOrphanedObject IssueType = "orphaned_object"
	IssueMissingObject  IssueType = "missing_object"
)

// ReconcileIssue — найденное расхождение.
type ReconcileIssue struct {
	Type        IssueType `json:"type"`
	Key         string    `json:"key"`
	DeckID      string    `json:"deck_id,omitempty"`
	Size        int64     `json:"size,omitempty"`
	Description string    `json:"description"`
}

// ReconcileSummary — сводка по типам расхождений.
type ReconcileSummary struct {
	OrphanedObjects int `json:"orphaned_objects"`
	MissingObjects  int `json:"missing_objects"`
	Ok              int `json:"ok"`
}

// ReconcileReport — результат одного запуска сверки.
type ReconcileReport struct {
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	ObjectsChecked int              `json:"objects_checked"`
	RecordsChecked int              `json:"records_checked"`
	Issues         []ReconcileIssue `json:"issues"`
	Summary        ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис сверки хранилищ.
type ReconcileService struct {
	store    objectstore.Store
	repo     repository.DeckRepository
	prefix   string
	interval time.Duration
	logger   *slog.Logger

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
// repo — хранилище записей, в которое пишет конвейер загрузки.
func NewReconcileService(
	store objectstore.Store,
	repo repository.DeckRepository,
	prefix string,
	interval time.Duration,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:    store,
		repo:     repo,
		prefix:   strings.Trim(prefix, "/"),
		interval: interval,
		logger:   logger.With(slog.String("component", "reconcile")),
	}
}

// Start запускает периодическую сверку. Нулевой интервал — сверка
// только по запросу.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.interval <= 0 {
		rs.logger.Info("Периодическая сверка отключена")
		return
	}
	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Сверка запущена",
		slog.String("interval", rs.interval.String()),
	)
}

// Stop останавливает периодическую сверку и ждёт завершения цикла.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)
	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := rs.RunOnce(ctx); err != nil && ctx.Err() == nil {
				rs.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один цикл сверки.
// Если сверка уже выполняется, возвращает ErrReconcileInProgress.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, ErrReconcileInProgress
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	startedAt := time.Now().UTC()
	rs.logger.Info("Сверка начата")

	// 1. Параллельно получаем объекты и записи
	var (
		objects []objectstore.ObjectInfo
		decks   []*model.DeckRecord
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		objects, err = rs.store.List(gctx, keyPrefix(rs.prefix))
		if err != nil {
			return fmt.Errorf("листинг объектов: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		decks, err = rs.repo.List(gctx)
		if err != nil {
			return fmt.Errorf("список записей %s: %w", rs.repo.Name(), err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 2. Сравниваем множества ключей
	report := compareKeys(objects, decks, rs.prefix)
	report.StartedAt = startedAt
	report.CompletedAt = time.Now().UTC()
	duration := report.CompletedAt.Sub(startedAt)

	// 3. Метрики
	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(duration.Seconds())
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(string(issue.Type)).Inc()
		rs.logger.Warn("Расхождение хранилищ",
			slog.String("type", string(issue.Type)),
			slog.String("key", issue.Key),
			slog.String("deck_id", issue.DeckID),
		)
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("objects_checked", report.ObjectsChecked),
		slog.Int("records_checked", report.RecordsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Duration("duration", duration),
	)
	return report, nil
}

// keyPrefix возвращает префикс листинга с завершающим "/", чтобы
// "decks" не захватывал соседние каталоги вроде "decks-old/".
func keyPrefix(prefix string) string {
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// compareKeys строит отчёт по объектам и записям.
// Объекты и записи вне префикса загрузок, а также записи без ключа
// хранилища не проверяются.
func compareKeys(objects []objectstore.ObjectInfo, decks []*model.DeckRecord, prefix string) *ReconcileReport {
	report := &ReconcileReport{Issues: []ReconcileIssue{}}
	scope := keyPrefix(prefix)

	stored := make(map[string]objectstore.ObjectInfo, len(objects))
	for _, o := range objects {
		if !strings.HasPrefix(o.Key, scope) {
			continue
		}
		stored[o.Key] = o
	}
	report.ObjectsChecked = len(stored)

	referenced := make(map[string]bool, len(decks))
	for _, d := range decks {
		if d.StoragePath == "" {
			continue
		}
		referenced[d.StoragePath] = true
		if !strings.HasPrefix(d.StoragePath, scope) {
			continue
		}
		report.RecordsChecked++
		if _, ok := stored[d.StoragePath]; !ok {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueMissingObject,
				Key:         d.StoragePath,
				DeckID:      d.ID,
				Description: "Запись о колоде без файла в объектном хранилище",
			})
			report.Summary.MissingObjects++
			continue
		}
		report.Summary.Ok++
	}

	for key, o := range stored {
		if referenced[key] {
			continue
		}
		report.Issues = append(report.Issues, ReconcileIssue{
			Type:        IssueOrphanedObject,
			Key:         key,
			Size:        o.Size,
			Description: "Файл в объектном хранилище без записи о колоде",
		})
		report.Summary.OrphanedObjects++
	}

	sort.Slice(report.Issues, func(i, j int) bool {
		if report.Issues[i].Type != report.Issues[j].Type {
			return report.Issues[i].Type < report.Issues[j].Type
		}
		return report.Issues[i].Key < report.Issues[j].Key
	})
	return report
}
