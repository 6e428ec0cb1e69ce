package gcsstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

func TestPublicBaseURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/flashcards", publicBaseURL("flashcards", ""))
	assert.Equal(t, "https://cdn.example.com", publicBaseURL("flashcards", "https://cdn.example.com"))
}

func TestURL(t *testing.T) {
	s := &Store{bucket: "flashcards", baseURL: publicBaseURL("flashcards", "")}

	u, err := s.URL(context.Background(), "decks/1_ab_Organic Chem.apkg")
	require.NoError(t, err)
	assert.Equal(t, "https://storage.googleapis.com/flashcards/decks/1_ab_Organic%20Chem.apkg", u)

	_, err = s.URL(context.Background(), "../x")
	assert.True(t, errors.Is(err, objectstore.ErrInvalidKey))
}

// fakeGCS — эмулятор JSON API загрузки GCS: запоминает тела запросов
// загрузки и отвечает метаданными объекта.
type fakeGCS struct {
	mu     sync.Mutex
	bodies [][]byte
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/upload/storage/v1/b/") {
		http.NotFound(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"bucket": "flashcards",
		"name":   r.URL.Query().Get("name"),
		"size":   "5",
	})
}

func (f *fakeGCS) sawBytes(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, body := range f.bodies {
		if bytes.Contains(body, b) {
			return true
		}
	}
	return false
}

func newEmulatedStore(t *testing.T) (*Store, *fakeGCS) {
	t.Helper()
	fake := &fakeGCS{}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", strings.TrimPrefix(srv.URL, "http://"))

	s, err := New(context.Background(), "flashcards", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, fake
}

// failingReader отдаёт данные и затем ошибку соединения.
type failingReader struct {
	data []byte
	done bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, errors.New("client connection reset")
	}
	r.done = true
	return copy(p, r.data), nil
}

func TestPut_ReaderFailureLeavesNoObject(t *testing.T) {
	s, fake := newEmulatedStore(t)
	partial := []byte("partial")

	_, err := s.Put(context.Background(), "decks/1_ab_x.apkg", &failingReader{data: partial}, 100, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client connection reset")
	assert.False(t, fake.sawBytes(partial), "частичный объект не должен быть отправлен в GCS")
}

func TestPut_Success(t *testing.T) {
	s, fake := newEmulatedStore(t)

	res, err := s.Put(context.Background(), "decks/1_ab_x.apkg", strings.NewReader("hello"), 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Size)
	assert.NotEmpty(t, res.Checksum)
	assert.True(t, fake.sawBytes([]byte("hello")))
}
