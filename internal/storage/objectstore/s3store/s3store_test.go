package s3store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockMinio — mock-реализация minioClient для unit-тестов.
type mockMinio struct {
	putFn    func(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	objects  []minio.ObjectInfo
	removeFn func(ctx context.Context, bucket, object string) error
	exists   bool
}

func (m *mockMinio) PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	return m.putFn(ctx, bucket, object, r, size, opts)
}

func (m *mockMinio) ListObjects(_ context.Context, _ string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo {
	ch := make(chan minio.ObjectInfo, len(m.objects))
	for _, o := range m.objects {
		if strings.HasPrefix(o.Key, opts.Prefix) || o.Err != nil {
			ch <- o
		}
	}
	close(ch)
	return ch
}

func (m *mockMinio) RemoveObject(ctx context.Context, bucket, object string, _ minio.RemoveObjectOptions) error {
	if m.removeFn == nil {
		return nil
	}
	return m.removeFn(ctx, bucket, object)
}

func (m *mockMinio) BucketExists(context.Context, string) (bool, error) {
	return m.exists, nil
}

func TestPut_StreamsAndReportsProgress(t *testing.T) {
	var gotBody string
	var gotCT string
	mock := &mockMinio{
		putFn: func(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
			assert.Equal(t, "flashcards", bucket)
			assert.Equal(t, "decks/1_ab_bio.apkg", object)
			assert.Equal(t, int64(5), size)
			data, _ := io.ReadAll(r)
			gotBody = string(data)
			gotCT = opts.ContentType
			// minio сообщает прогресс вычитыванием из opts.Progress
			_, _ = io.CopyN(io.Discard, opts.Progress, int64(len(data)))
			return minio.UploadInfo{Size: int64(len(data))}, nil
		},
	}
	s := newWithClient(mock, Config{Endpoint: "minio:9000", Bucket: "flashcards"})

	var transferred int64
	res, err := s.Put(context.Background(), "decks/1_ab_bio.apkg", strings.NewReader("hello"), 5,
		func(n, _ int64) { transferred = n })
	require.NoError(t, err)

	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, contentType, gotCT)
	assert.Equal(t, int64(5), res.Size)
	assert.Equal(t, int64(5), transferred)
	assert.Len(t, res.Checksum, 64)
}

func TestPut_UnknownSizeStreams(t *testing.T) {
	mock := &mockMinio{
		putFn: func(_ context.Context, _, _ string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
			assert.Equal(t, int64(-1), size)
			n, _ := io.Copy(io.Discard, r)
			return minio.UploadInfo{Size: n}, nil
		},
	}
	s := newWithClient(mock, Config{Endpoint: "minio:9000", Bucket: "b"})

	res, err := s.Put(context.Background(), "decks/x.zip", strings.NewReader("abc"), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Size)
}

func TestPut_Error(t *testing.T) {
	mock := &mockMinio{
		putFn: func(context.Context, string, string, io.Reader, int64, minio.PutObjectOptions) (minio.UploadInfo, error) {
			return minio.UploadInfo{}, errors.New("connection refused")
		},
	}
	s := newWithClient(mock, Config{Endpoint: "minio:9000", Bucket: "b"})

	_, err := s.Put(context.Background(), "decks/x.zip", strings.NewReader("abc"), 3, nil)
	assert.ErrorContains(t, err, "connection refused")
}

func TestURL(t *testing.T) {
	s := newWithClient(&mockMinio{}, Config{Endpoint: "s3.example.com", Bucket: "flashcards", UseSSL: true})
	u, err := s.URL(context.Background(), "decks/a b.apkg")
	require.NoError(t, err)
	assert.Equal(t, "https://s3.example.com/flashcards/decks/a%20b.apkg", u)

	cdn := newWithClient(&mockMinio{}, Config{Endpoint: "minio:9000", Bucket: "flashcards", PublicURL: "https://cdn.example.com"})
	u, err = cdn.URL(context.Background(), "decks/a.apkg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/decks/a.apkg", u)
}

func TestList(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock := &mockMinio{objects: []minio.ObjectInfo{
		{Key: "decks/a.apkg", Size: 10, LastModified: ts},
		{Key: "other/b.apkg", Size: 20, LastModified: ts},
	}}
	s := newWithClient(mock, Config{Endpoint: "minio:9000", Bucket: "b"})

	objects, err := s.List(context.Background(), "decks/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "decks/a.apkg", objects[0].Key)
	assert.Equal(t, int64(10), objects[0].Size)
}

func TestList_Error(t *testing.T) {
	mock := &mockMinio{objects: []minio.ObjectInfo{{Err: errors.New("access denied")}}}
	s := newWithClient(mock, Config{Endpoint: "minio:9000", Bucket: "b"})

	_, err := s.List(context.Background(), "decks/")
	assert.ErrorContains(t, err, "access denied")
}

func TestCheckBucket(t *testing.T) {
	s := newWithClient(&mockMinio{exists: false}, Config{Endpoint: "minio:9000", Bucket: "b"})
	assert.Error(t, s.CheckBucket(context.Background()))

	s = newWithClient(&mockMinio{exists: true}, Config{Endpoint: "minio:9000", Bucket: "b"})
	assert.NoError(t, s.CheckBucket(context.Background()))
}
