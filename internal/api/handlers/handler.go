// handler.go — обработчик API каталога колод.
// Делегирует запросы в сервисный слой, формирует JSON-ответы.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/service"
	"github.com/bigkaa/deckstore/internal/storage/objectstore/filestore"
)

// multipartMemory — часть multipart-формы, удерживаемая в памяти.
// Остаток буферизуется во временных файлах.
const multipartMemory = 32 << 20

// multipartOverhead — запас на заголовки и текстовые поля формы сверх
// лимита размера файла.
const multipartOverhead = 1 << 20

// APIHandler — обработчик API Deckstore.
type APIHandler struct {
	catalog   *service.Catalog
	uploads   *service.UploadPipeline
	downloads *service.DownloadCounter
	reconcile *service.ReconcileService
	files     *filestore.FileStore
	logger    *slog.Logger
}

// Deps — зависимости APIHandler. Uploads, Reconcile и Files могут быть nil.
type Deps struct {
	Catalog   *service.Catalog
	Uploads   *service.UploadPipeline
	Downloads *service.DownloadCounter
	Reconcile *service.ReconcileService
	// Files — локальное хранилище, раздаваемое по /files/
	Files *filestore.FileStore
}

// NewAPIHandler создаёт обработчик API.
func NewAPIHandler(deps Deps, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		catalog:   deps.Catalog,
		uploads:   deps.Uploads,
		downloads: deps.Downloads,
		reconcile: deps.Reconcile,
		files:     deps.Files,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// deckResponse — запись каталога в ответе API.
type deckResponse struct {
	model.DeckRecord
	SizeHuman string `json:"size_human"`
}

func toDeckResponse(rec model.DeckRecord) deckResponse {
	rec.DownloadCount = rec.SafeDownloadCount()
	return deckResponse{DeckRecord: rec, SizeHuman: rec.SizeHuman()}
}

// deckListResponse — ответ GET /api/v1/decks.
type deckListResponse struct {
	Items    []deckResponse `json:"items"`
	Total    int            `json:"total"`
	Shown    int            `json:"shown"`
	Source   string         `json:"source"`
	LoadedAt time.Time      `json:"loaded_at"`
	// Status — "ok" или "empty" (колод пока нет)
	Status string `json:"status"`
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
