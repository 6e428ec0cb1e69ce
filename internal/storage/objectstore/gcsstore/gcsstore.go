// Пакет gcsstore — объектное хранилище колод в Google Cloud Storage.
package gcsstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// defaultPublicBase — публичный endpoint GCS.
const defaultPublicBase = "https://storage.googleapis.com"

// Store — объектное хранилище в бакете GCS.
type Store struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

var _ objectstore.Store = (*Store)(nil)

// New создаёт клиент GCS. publicURL — базовый URL CDN (пусто —
// https://storage.googleapis.com/<bucket>).
func New(ctx context.Context, bucket, publicURL string, opts ...option.ClientOption) (*Store, error) {
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("создание клиента GCS: %w", err)
	}
	return &Store{client: client, bucket: bucket, baseURL: publicBaseURL(bucket, publicURL)}, nil
}

// publicBaseURL выбирает базу публичных ссылок.
func publicBaseURL(bucket, publicURL string) string {
	if publicURL != "" {
		return publicURL
	}
	return defaultPublicBase + "/" + bucket
}

// Put загружает объект потоком. Writer.ProgressFunc сообщает прогресс
// для чанков; по завершении отправляется итоговое событие.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, progress objectstore.ProgressFunc) (*objectstore.PutResult, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}

	// Close финализирует объект, поэтому при ошибке чтения загрузка
	// сначала отменяется через контекст writer-а
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(wctx)
	w.ContentType = "application/octet-stream"
	if progress != nil {
		w.ProgressFunc = func(n int64) { progress(n, size) }
	}

	hasher := sha256.New()
	written, err := io.Copy(w, io.TeeReader(r, hasher))
	if err != nil {
		cancel()
		_ = w.Close()
		return nil, fmt.Errorf("запись объекта %s в GCS: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("завершение записи %s в GCS: %w", key, err)
	}

	if attrs := w.Attrs(); attrs != nil {
		written = attrs.Size
	}
	if progress != nil {
		progress(written, size)
	}

	return &objectstore.PutResult{
		Key:      key,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// URL возвращает публичную ссылку на объект.
func (s *Store) URL(_ context.Context, key string) (string, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return "", err
	}
	return objectstore.PublicURL(s.baseURL, key), nil
}

// List возвращает объекты с префиксом.
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var objects []objectstore.ObjectInfo
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("листинг GCS %s/%s: %w", s.bucket, prefix, err)
		}
		objects = append(objects, objectstore.ObjectInfo{
			Key:        attrs.Name,
			Size:       attrs.Size,
			ModifiedAt: attrs.Updated.UTC(),
		})
	}
	return objects, nil
}

// Delete удаляет объект. Отсутствующий объект — не ошибка.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("удаление объекта %s из GCS: %w", key, err)
	}
	return nil
}

// Close закрывает клиент GCS.
func (s *Store) Close() error {
	return s.client.Close()
}
