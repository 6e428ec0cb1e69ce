// Пакет errors — стандартные ответы с ошибками Deckstore.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
package errors //nolint:revive // имя пакета совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок API.
const (
	CodeValidationError     = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeFileTooLarge        = "FILE_TOO_LARGE"
	CodeUploadFailed        = "UPLOAD_FAILED"
	CodeCommitFailed        = "COMMIT_FAILED"
	CodeCatalogUnavailable  = "CATALOG_UNAVAILABLE"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
	CodeNotSupported        = "NOT_SUPPORTED"
	CodeInternalError       = "INTERNAL_ERROR"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// StorageKey — ключ объекта, оставшегося без записи (COMMIT_FAILED)
	StorageKey string `json:"storage_key,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: code, Message: message},
	})
}

// CommitFailed — 502 объект записан, но запись о колоде не сохранена.
// Ключ объекта возвращается клиенту для разбора расхождения.
func CommitFailed(w http.ResponseWriter, message, storageKey string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{Code: CodeCommitFailed, Message: message, StorageKey: storageKey},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// FileTooLarge — 413 файл превышает лимит.
func FileTooLarge(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge, message)
}

// CatalogUnavailable — 503 ни один источник каталога не ответил.
func CatalogUnavailable(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusServiceUnavailable, CodeCatalogUnavailable, message)
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// NotSupported — 404 операция недоступна в текущей конфигурации.
func NotSupported(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotSupported, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
