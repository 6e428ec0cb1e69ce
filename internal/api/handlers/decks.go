// decks.go — обработчики каталога колод: список с фильтрами, загрузка,
// карточка колоды, скачивание и перезагрузка каталога.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/deckstore/internal/api/errors"
	"github.com/bigkaa/deckstore/internal/api/middleware"
	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/service"
)

// listDecksParams — query-параметры GET /api/v1/decks.
type listDecksParams struct {
	Search      *string
	Institution *string
	CourseCode  *string
}

// bindListDecksParams разбирает query-параметры (style=form, explode=true).
func bindListDecksParams(q url.Values) (listDecksParams, error) {
	var p listDecksParams
	if err := runtime.BindQueryParameter("form", true, false, "search", q, &p.Search); err != nil {
		return p, fmt.Errorf("параметр search: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "institution", q, &p.Institution); err != nil {
		return p, fmt.Errorf("параметр institution: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "course_code", q, &p.CourseCode); err != nil {
		return p, fmt.Errorf("параметр course_code: %w", err)
	}
	return p, nil
}

func (p listDecksParams) query() service.FilterQuery {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	return service.FilterQuery{
		Search:      deref(p.Search),
		Institution: deref(p.Institution),
		CourseCode:  deref(p.CourseCode),
	}
}

// ListDecks обрабатывает GET /api/v1/decks.
// Каталог загружается из источников на каждый запрос, фильтрация — в памяти.
func (h *APIHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	params, err := bindListDecksParams(r.URL.Query())
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	snap, err := h.catalog.Load(r.Context())
	status := "ok"
	switch {
	case errors.Is(err, service.ErrEmptyCatalog):
		status = "empty"
	case errors.Is(err, service.ErrCatalogUnavailable):
		apierrors.CatalogUnavailable(w, "Не удалось загрузить колоды, попробуйте позже")
		return
	case err != nil:
		h.logger.Error("Ошибка загрузки каталога", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка загрузки каталога")
		return
	}

	shown := service.Filter(snap.Records, params.query())
	stats := service.Stats(shown, snap.Records)

	items := make([]deckResponse, 0, len(shown))
	for _, rec := range shown {
		items = append(items, toDeckResponse(rec))
	}
	writeJSON(w, http.StatusOK, deckListResponse{
		Items:    items,
		Total:    stats.Total,
		Shown:    stats.Shown,
		Source:   snap.Source,
		LoadedAt: snap.LoadedAt,
		Status:   status,
	})
}

// UploadDeck обрабатывает POST /api/v1/decks.
// Multipart form: file (обязательно), title, description, institution,
// course_code, course_name (опционально).
func (h *APIHandler) UploadDeck(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil {
		apierrors.NotSupported(w, "Загрузка недоступна: нет хранилища записей")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxSize()+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, fmt.Sprintf("Размер файла превышает %s", model.HumanSize(h.uploads.MaxSize())))
			return
		}
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле 'file' обязательно")
		return
	}
	defer file.Close()

	rec, uploadErr := h.uploads.Upload(r.Context(), service.UploadParams{
		Reader:      file,
		FileName:    header.Filename,
		Size:        header.Size,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Institution: r.FormValue("institution"),
		CourseCode:  r.FormValue("course_code"),
		CourseName:  r.FormValue("course_name"),
		Actor:       middleware.PrincipalFromContext(r.Context()),
		Progress:    progressLogger(h.logger, header.Filename),
	})
	if uploadErr != nil {
		if uploadErr.IsOrphan() {
			apierrors.CommitFailed(w, uploadErr.Message, uploadErr.StorageKey)
			return
		}
		apierrors.WriteError(w, uploadErr.StatusCode, uploadErr.Code, uploadErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, toDeckResponse(*rec))
}

// GetDeck обрабатывает GET /api/v1/decks/{id}.
func (h *APIHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toDeckResponse(rec))
}

// DownloadDeck обрабатывает GET /api/v1/decks/{id}/download.
// Счётчик скачиваний увеличивается в фоне, ответ — редирект на файл
// независимо от результата инкремента.
func (h *APIHandler) DownloadDeck(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if rec.URL == "" {
		apierrors.NotFound(w, "У колоды нет ссылки на файл")
		return
	}

	// Записи манифеста не имеют ID и не учитываются
	if rec.ID != "" {
		h.downloads.Fire(r.Context(), rec.ID)
	}
	http.Redirect(w, r, redirectTarget(rec.URL), http.StatusFound)
}

// ReloadCatalog обрабатывает POST /api/v1/catalog/reload.
func (h *APIHandler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Load(r.Context())
	status := "ok"
	switch {
	case errors.Is(err, service.ErrEmptyCatalog):
		status = "empty"
	case errors.Is(err, service.ErrCatalogUnavailable):
		apierrors.CatalogUnavailable(w, err.Error())
		return
	case err != nil:
		apierrors.InternalError(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    status,
		"source":    snap.Source,
		"total":     len(snap.Records),
		"loaded_at": snap.LoadedAt,
		"sources":   h.catalog.Sources(),
	})
}

// resolve находит запись по {id} и пишет ошибку в ответ при неудаче.
func (h *APIHandler) resolve(w http.ResponseWriter, r *http.Request) (model.DeckRecord, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		apierrors.ValidationError(w, "Не указан идентификатор колоды")
		return model.DeckRecord{}, false
	}

	rec, err := h.downloads.Resolve(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Колода не найдена")
			return model.DeckRecord{}, false
		}
		h.logger.Error("Ошибка получения колоды",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		apierrors.CatalogUnavailable(w, "Хранилище записей недоступно")
		return model.DeckRecord{}, false
	}
	return rec, true
}

// redirectTarget делает относительную ссылку манифеста ("decks/a.apkg")
// абсолютной от корня сайта.
func redirectTarget(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.IsAbs() {
		return raw
	}
	if strings.HasPrefix(raw, "/") {
		return raw
	}
	return "/" + raw
}

// progressLogger логирует прогресс загрузки на каждой четверти объёма.
func progressLogger(logger *slog.Logger, filename string) func(transferred, total int64) {
	var lastQuarter int64
	return func(transferred, total int64) {
		if total <= 0 {
			return
		}
		quarter := transferred * 4 / total
		if quarter <= lastQuarter {
			return
		}
		lastQuarter = quarter
		logger.Debug("Прогресс загрузки",
			slog.String("filename", filename),
			slog.Int64("transferred", transferred),
			slog.Int64("total", total),
		)
	}
}
