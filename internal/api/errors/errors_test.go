package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	CatalogUnavailable(rec, "нет источников")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeCatalogUnavailable, body["error"]["code"])
	assert.Equal(t, "нет источников", body["error"]["message"])
}

func TestFileTooLarge_Status(t *testing.T) {
	rec := httptest.NewRecorder()
	FileTooLarge(rec, "big")
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCommitFailed_CarriesStorageKey(t *testing.T) {
	rec := httptest.NewRecorder()
	CommitFailed(rec, "запись не сохранена", "decks/1_a.apkg")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeCommitFailed, body["error"]["code"])
	assert.Equal(t, "decks/1_a.apkg", body["error"]["storage_key"])
}

func TestWriteError_OmitsEmptyStorageKey(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, "нет")
	assert.NotContains(t, rec.Body.String(), "storage_key")
}
