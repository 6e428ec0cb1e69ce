// Пакет s3store — объектное хранилище колод в S3-совместимом бакете
// (MinIO, AWS S3) через minio-go.
package s3store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// contentType — MIME-тип, с которым сохраняются колоды.
const contentType = "application/octet-stream"

// Config — параметры подключения к S3.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// PublicURL — базовый URL публичной раздачи (CDN). Пусто — endpoint/bucket.
	PublicURL string
}

// minioClient — подмножество *minio.Client, используемое хранилищем.
type minioClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64,
		opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Store — объектное хранилище на S3.
type Store struct {
	client  minioClient
	bucket  string
	baseURL string
}

var _ objectstore.Store = (*Store)(nil)

// New создаёт клиент MinIO и хранилище поверх него.
func New(cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("создание клиента S3 %s: %w", cfg.Endpoint, err)
	}
	return newWithClient(client, cfg), nil
}

func newWithClient(client minioClient, cfg Config) *Store {
	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s/%s", scheme, strings.TrimSuffix(cfg.Endpoint, "/"), cfg.Bucket)
	}
	return &Store{client: client, bucket: cfg.Bucket, baseURL: base}
}

// CheckBucket проверяет существование бакета (вызывается при старте).
func (s *Store) CheckBucket(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("проверка бакета %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("бакет %s не существует", s.bucket)
	}
	return nil
}

// Put загружает объект. Прогресс сообщается через PutObjectOptions.Progress.
// size <= 0 — размер неизвестен, minio выполняет multipart-загрузку потоком.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, progress objectstore.ProgressFunc) (*objectstore.PutResult, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}

	objectSize := size
	if objectSize <= 0 {
		objectSize = -1
	}

	hasher := sha256.New()
	opts := minio.PutObjectOptions{ContentType: contentType}
	if progress != nil {
		opts.Progress = objectstore.NewProgressCounter(size, progress)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, io.TeeReader(r, hasher), objectSize, opts)
	if err != nil {
		return nil, fmt.Errorf("загрузка объекта %s в S3: %w", key, err)
	}

	return &objectstore.PutResult{
		Key:      key,
		Size:     info.Size,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// URL возвращает постоянную публичную ссылку (бакет должен быть доступен на чтение).
func (s *Store) URL(_ context.Context, key string) (string, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return "", err
	}
	return objectstore.PublicURL(s.baseURL, key), nil
}

// List возвращает все объекты с префиксом (рекурсивно).
func (s *Store) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	var objects []objectstore.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("листинг S3 %s/%s: %w", s.bucket, prefix, obj.Err)
		}
		objects = append(objects, objectstore.ObjectInfo{
			Key:        obj.Key,
			Size:       obj.Size,
			ModifiedAt: obj.LastModified.UTC(),
		})
	}
	return objects, nil
}

// Delete удаляет объект. S3 не возвращает ошибку для отсутствующего ключа.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("удаление объекта %s из S3: %w", key, err)
	}
	return nil
}
