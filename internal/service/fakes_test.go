package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bigkaa/deckstore/internal/domain/model"
	"github.com/bigkaa/deckstore/internal/repository"
	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memRepo — in-memory хранилище записей с атомарным инкрементом.
type memRepo struct {
	name string

	mu      sync.Mutex
	records map[string]*model.DeckRecord
	seq     int

	listErr   error
	insertErr error
	incrErr   error

	insertCalls int
	incrCalls   int
}

func newMemRepo(name string) *memRepo {
	return &memRepo{name: name, records: map[string]*model.DeckRecord{}}
}

func (r *memRepo) Name() string { return r.name }

func (r *memRepo) Insert(_ context.Context, rec *model.DeckRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.insertErr != nil {
		return r.insertErr
	}
	r.seq++
	rec.ID = fmt.Sprintf("%s-%d", r.name, r.seq)
	rec.CreatedAt = time.Date(2025, 1, 1, 0, 0, r.seq, 0, time.UTC)
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *memRepo) List(_ context.Context) ([]*model.DeckRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*model.DeckRecord, 0, len(r.records))
	for _, rec := range r.records {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memRepo) Get(_ context.Context, id string) (*model.DeckRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) Update(_ context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Title != nil {
		rec.Title = *upd.Title
	}
	if upd.Description != nil {
		rec.Description = *upd.Description
	}
	if upd.Institution != nil {
		rec.Institution = *upd.Institution
	}
	if upd.CourseCode != nil {
		rec.CourseCode = strings.ToUpper(*upd.CourseCode)
	}
	if upd.CourseName != nil {
		rec.CourseName = *upd.CourseName
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) IncrementDownloads(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.incrCalls++
	if r.incrErr != nil {
		return 0, r.incrErr
	}
	rec, ok := r.records[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	rec.DownloadCount++
	return rec.DownloadCount, nil
}

func (r *memRepo) put(rec model.DeckRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := rec
	r.records[rec.ID] = &cp
}

func (r *memRepo) count(id string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[id]; ok {
		return rec.DownloadCount
	}
	return -1
}

// memStore — in-memory объектное хранилище со счётчиками вызовов.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	putErr  error
	urlErr  error
	listErr error

	putCalls    int
	deleteCalls int
	listPrefix  string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (s *memStore) Put(ctx context.Context, key string, r io.Reader, size int64, progress objectstore.ProgressFunc) (*objectstore.PutResult, error) {
	s.mu.Lock()
	s.putCalls++
	putErr := s.putErr
	s.mu.Unlock()
	if putErr != nil {
		return nil, putErr
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, objectstore.NewProgressReader(ctx, r, size, progress)); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = buf.Bytes()
	return &objectstore.PutResult{Key: key, Size: int64(buf.Len())}, nil
}

func (s *memStore) URL(_ context.Context, key string) (string, error) {
	if s.urlErr != nil {
		return "", s.urlErr
	}
	return "https://cdn.example/" + key, nil
}

func (s *memStore) List(_ context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listPrefix = prefix
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []objectstore.ObjectInfo
	for k, v := range s.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, objectstore.ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteCalls++
	delete(s.objects, key)
	return nil
}

func (s *memStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

// staticSource — источник каталога с фиксированным ответом.
type staticSource struct {
	name    string
	records []model.DeckRecord
	err     error
	calls   int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(context.Context) ([]model.DeckRecord, error) {
	s.calls++
	return s.records, s.err
}

var errBackendDown = errors.New("backend недоступен")
