// upload.go — конвейер загрузки колоды.
// Последовательность: валидация → запись в объектное хранилище → URL →
// коммит записи в первое хранилище записей. Отката нет: при сбое после
// записи объекта остаётся «сирота», её ключ возвращается в UploadError
// и позже обнаруживается сверкой (ReconcileService).
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/deckstore/internal/api/errors"
	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/repository"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// Prometheus-метрики загрузки.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deckstore_uploads_total",
		Help: "Общее количество загрузок колод (по результату).",
	}, []string{"status"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckstore_upload_bytes_total",
		Help: "Общее количество байт, записанных в объектное хранилище.",
	})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deckstore_upload_duration_seconds",
		Help:    "Длительность загрузки колоды от валидации до коммита записи.",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	orphanedUploadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deckstore_orphaned_uploads_total",
		Help: "Количество объектов, записанных без последующего коммита записи.",
	})
)

// UploadConfig — параметры конвейера загрузки.
type UploadConfig struct {
	// MaxSize — максимальный размер файла в байтах
	MaxSize int64
	// Extensions — допустимые расширения
	Extensions model.Extensions
	// Prefix — префикс ключей объектного хранилища
	Prefix string
	// RequireAuth — требовать аутентифицированного пользователя
	RequireAuth bool
}

// UploadParams — входные данные загрузки.
type UploadParams struct {
	Reader   io.Reader
	FileName string
	// Size — заявленный размер (<=0, если неизвестен)
	Size int64

	Title       string
	Description string
	Institution string
	CourseCode  string
	CourseName  string

	// Actor — аутентифицированный пользователь (nil для анонимной загрузки)
	Actor *model.Principal
	// Progress — наблюдатель прогресса (может быть nil)
	Progress objectstore.ProgressFunc
}

// UploadError — ошибка загрузки с HTTP-статусом и кодом API.
type UploadError struct {
	StatusCode int
	Code       string
	Message    string
	// StorageKey — ключ записанного объекта без записи (COMMIT_FAILED)
	StorageKey string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsOrphan сообщает, что объект записан, а запись о нём — нет.
func (e *UploadError) IsOrphan() bool { return e.StorageKey != "" }

// UploadPipeline — сервис загрузки колод.
type UploadPipeline struct {
	cfg    UploadConfig
	store  objectstore.Store
	repo   repository.DeckRepository
	now    func() time.Time
	logger *slog.Logger
}

// NewUploadPipeline создаёт конвейер загрузки.
// repo — хранилище записей с наивысшим приоритетом.
func NewUploadPipeline(
	cfg UploadConfig,
	store objectstore.Store,
	repo repository.DeckRepository,
	logger *slog.Logger,
) *UploadPipeline {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = model.DefaultExtensions
	}
	return &UploadPipeline{
		cfg:    cfg,
		store:  store,
		repo:   repo,
		now:    time.Now,
		logger: logger.With(slog.String("component", "upload")),
	}
}

// MaxSize возвращает лимит размера файла.
func (p *UploadPipeline) MaxSize() int64 { return p.cfg.MaxSize }

// Upload выполняет полный цикл загрузки.
//
// Шаги:
//  1. Валидация расширения, размера и пользователя (без побочных эффектов)
//  2. Генерация ключа объекта
//  3. Запись в объектное хранилище с прогрессом
//  4. Проверка фактического размера
//  5. Получение публичного URL
//  6. Коммит записи в хранилище записей
func (p *UploadPipeline) Upload(ctx context.Context, params UploadParams) (*model.DeckRecord, *UploadError) {
	start := time.Now()
	defer func() { uploadDuration.Observe(time.Since(start).Seconds()) }()

	// 1. Валидация
	if uerr := p.validate(params); uerr != nil {
		uploadsTotal.WithLabelValues("rejected").Inc()
		p.logger.Info("Загрузка отклонена",
			slog.String("filename", params.FileName),
			slog.String("code", uerr.Code),
			slog.String("reason", uerr.Message),
		)
		return nil, uerr
	}

	// 2. Ключ объекта
	key := objectstore.GenerateKey(p.cfg.Prefix, params.FileName, p.now())

	// 3. Запись объекта. LimitReader на один байт больше лимита позволяет
	// обнаружить превышение при неизвестном заявленном размере.
	body := io.LimitReader(params.Reader, p.cfg.MaxSize+1)
	put, err := p.store.Put(ctx, key, body, params.Size, params.Progress)
	if err != nil {
		uploadsTotal.WithLabelValues("upload_failed").Inc()
		p.logger.Error("Ошибка записи в объектное хранилище",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, &UploadError{
			StatusCode: http.StatusBadGateway,
			Code:       apierrors.CodeUploadFailed,
			Message:    "Не удалось сохранить файл колоды",
			Err:        err,
		}
	}

	// 4. Фактический размер
	if put.Size > p.cfg.MaxSize {
		if delErr := p.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			p.logger.Warn("Не удалось удалить объект, превысивший лимит",
				slog.String("key", key),
				slog.String("error", delErr.Error()),
			)
		}
		uploadsTotal.WithLabelValues("rejected").Inc()
		return nil, p.tooLarge()
	}

	// 5. URL
	fileURL, err := p.store.URL(ctx, key)
	if err != nil {
		return nil, p.orphan(key, "Не удалось получить ссылку на файл", err)
	}

	// 6. Коммит записи
	rec := &model.DeckRecord{
		Title:       strings.TrimSpace(params.Title),
		Description: strings.TrimSpace(params.Description),
		FileName:    params.FileName,
		StoragePath: key,
		URL:         fileURL,
		Size:        put.Size,
		Institution: strings.TrimSpace(params.Institution),
		CourseCode:  params.CourseCode,
		CourseName:  strings.TrimSpace(params.CourseName),
	}
	if params.Actor != nil {
		rec.UploaderID = params.Actor.ID
		rec.UploaderName = params.Actor.DisplayName
	}
	rec.Normalize(p.cfg.Extensions)

	if err := ctx.Err(); err != nil {
		return nil, p.orphan(key, "Загрузка прервана до регистрации колоды", err)
	}
	if err := p.repo.Insert(ctx, rec); err != nil {
		return nil, p.orphan(key, "Не удалось зарегистрировать колоду", err)
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadBytesTotal.Add(float64(put.Size))
	p.logger.Info("Колода загружена",
		slog.String("id", rec.ID),
		slog.String("key", key),
		slog.String("filename", rec.FileName),
		slog.Int64("size", rec.Size),
		slog.String("checksum", put.Checksum),
		slog.String("store", p.repo.Name()),
		slog.String("uploaded_by", rec.UploaderID),
	)
	return rec, nil
}

// validate проверяет предусловия загрузки.
func (p *UploadPipeline) validate(params UploadParams) *UploadError {
	if params.Reader == nil {
		return &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    "Файл колоды не передан",
		}
	}
	if strings.TrimSpace(params.FileName) == "" || !p.cfg.Extensions.Allowed(params.FileName) {
		return &UploadError{
			StatusCode: http.StatusBadRequest,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Допустимые расширения файла: %s", p.cfg.Extensions),
		}
	}
	if params.Size > p.cfg.MaxSize {
		return p.tooLarge()
	}
	if p.cfg.RequireAuth && (params.Actor == nil || params.Actor.ID == "") {
		return &UploadError{
			StatusCode: http.StatusUnauthorized,
			Code:       apierrors.CodeUnauthorized,
			Message:    "Для загрузки колоды требуется вход",
		}
	}
	return nil
}

func (p *UploadPipeline) tooLarge() *UploadError {
	return &UploadError{
		StatusCode: http.StatusRequestEntityTooLarge,
		Code:       apierrors.CodeFileTooLarge,
		Message:    fmt.Sprintf("Размер файла превышает %s", model.HumanSize(p.cfg.MaxSize)),
	}
}

// orphan фиксирует объект без записи: WARN-лог, метрика, COMMIT_FAILED.
func (p *UploadPipeline) orphan(key, message string, err error) *UploadError {
	uploadsTotal.WithLabelValues("commit_failed").Inc()
	orphanedUploadsTotal.Inc()
	p.logger.Warn("Объект записан без регистрации колоды",
		slog.String("key", key),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, repository.ErrConflict) {
		message = "Колода с таким ключом уже зарегистрирована"
	}
	return &UploadError{
		StatusCode: http.StatusBadGateway,
		Code:       apierrors.CodeCommitFailed,
		Message:    message,
		StorageKey: key,
		Err:        err,
	}
}
