// maintenance.go — обработчики обслуживания: сверка хранилищ и раздача
// файлов локального объектного хранилища.
package handlers

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/deckstore/internal/api/errors"
	"github.com/bigkaa/deckstore/internal/service"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// Orphans обрабатывает GET /api/v1/maintenance/orphans.
func (h *APIHandler) Orphans(w http.ResponseWriter, r *http.Request) {
	if h.reconcile == nil {
		apierrors.NotSupported(w, "Сверка недоступна: нет хранилища записей")
		return
	}
	// Периодическая сверка уже идёт: отвечаем сразу, не дожидаясь листинга
	if h.reconcile.IsInProgress() {
		apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
		return
	}

	report, err := h.reconcile.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrReconcileInProgress) {
			apierrors.ReconcileInProgress(w, "Сверка уже выполняется")
			return
		}
		h.logger.Error("Ошибка сверки", slog.String("error", err.Error()))
		apierrors.WriteError(w, http.StatusBadGateway, apierrors.CodeInternalError, "Ошибка сверки хранилищ")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ServeFile обрабатывает GET /files/* — раздача объектов локального
// хранилища. Поддерживает Range и If-Modified-Since через http.ServeContent.
func (h *APIHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	if h.files == nil {
		apierrors.NotSupported(w, "Раздача файлов доступна только для локального хранилища")
		return
	}

	key, err := fileKey(r)
	if err != nil {
		apierrors.NotFound(w, "Файл не найден")
		return
	}
	f, err := h.files.Open(key)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) || errors.Is(err, objectstore.ErrInvalidKey) {
			apierrors.NotFound(w, "Файл не найден")
			return
		}
		h.logger.Error("Ошибка открытия файла",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		apierrors.InternalError(w, "Ошибка чтения файла")
		return
	}

	name := path.Base(key)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	http.ServeContent(w, r, name, info.ModTime(), f)
}

// fileKey возвращает ключ объекта из пути /files/*.
// chi берёт параметр из RawPath, если он задан (нестандартное
// кодирование), иначе из уже декодированного Path.
func fileKey(r *http.Request) (string, error) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath == "" {
		return key, nil
	}
	return url.PathUnescape(key)
}
