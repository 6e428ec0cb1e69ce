package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// firestoreDeck — документ колоды в коллекции Firestore.
// Имена полей совместимы с документами, созданными веб-клиентом.
type firestoreDeck struct {
	Title         string    `firestore:"title"`
	Description   string    `firestore:"description"`
	FileName      string    `firestore:"filename"`
	StoragePath   string    `firestore:"storagePath"`
	URL           string    `firestore:"url"`
	Size          int64     `firestore:"size"`
	DownloadCount int64     `firestore:"downloadCount"`
	Uploader      string    `firestore:"uploader"`
	UploaderName  string    `firestore:"uploaderName"`
	Institution   string    `firestore:"institution"`
	CourseCode    string    `firestore:"courseCode"`
	CourseName    string    `firestore:"courseName"`
	CreatedAt     time.Time `firestore:"createdAt,serverTimestamp"`
}

func (d *firestoreDeck) toModel(id string) *model.DeckRecord {
	return &model.DeckRecord{
		ID:            id,
		Title:         d.Title,
		Description:   d.Description,
		FileName:      d.FileName,
		StoragePath:   d.StoragePath,
		URL:           d.URL,
		Size:          d.Size,
		CreatedAt:     d.CreatedAt.UTC(),
		DownloadCount: d.DownloadCount,
		UploaderID:    d.Uploader,
		UploaderName:  d.UploaderName,
		Institution:   d.Institution,
		CourseCode:    d.CourseCode,
		CourseName:    d.CourseName,
	}
}

func firestoreDeckFromModel(rec *model.DeckRecord) *firestoreDeck {
	return &firestoreDeck{
		Title:        rec.Title,
		Description:  rec.Description,
		FileName:     rec.FileName,
		StoragePath:  rec.StoragePath,
		URL:          rec.URL,
		Size:         rec.Size,
		Uploader:     rec.UploaderID,
		UploaderName: rec.UploaderName,
		Institution:  rec.Institution,
		CourseCode:   rec.CourseCode,
		CourseName:   rec.CourseName,
	}
}

// firestoreUpdates преобразует частичное обновление в список путей Firestore.
func firestoreUpdates(upd model.DeckUpdate) []firestore.Update {
	var out []firestore.Update
	add := func(path string, v *string) {
		if v != nil {
			out = append(out, firestore.Update{Path: path, Value: *v})
		}
	}
	add("title", upd.Title)
	add("description", upd.Description)
	add("institution", upd.Institution)
	if upd.CourseCode != nil {
		code := strings.ToUpper(*upd.CourseCode)
		add("courseCode", &code)
	}
	add("courseName", upd.CourseName)
	return out
}

// firestoreDeckRepo — реализация DeckRepository поверх коллекции Firestore.
type firestoreDeckRepo struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreDeckRepository создаёт репозиторий колод Firestore.
func NewFirestoreDeckRepository(client *firestore.Client, collection string) DeckRepository {
	return &firestoreDeckRepo{client: client, collection: collection}
}

func (r *firestoreDeckRepo) Name() string { return "firestore" }

// Insert создаёт документ с автоматическим ID. createdAt проставляет
// сервер; время коммита возвращается в WriteResult.
func (r *firestoreDeckRepo) Insert(ctx context.Context, rec *model.DeckRecord) error {
	ref := r.client.Collection(r.collection).NewDoc()
	wr, err := ref.Create(ctx, firestoreDeckFromModel(rec))
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("%w: документ %s уже существует", ErrConflict, ref.ID)
		}
		return fmt.Errorf("ошибка создания документа колоды: %w", err)
	}
	rec.ID = ref.ID
	rec.CreatedAt = wr.UpdateTime.UTC()
	rec.DownloadCount = 0
	return nil
}

// List возвращает документы коллекции по убыванию createdAt.
func (r *firestoreDeckRepo) List(ctx context.Context) ([]*model.DeckRecord, error) {
	it := r.client.Collection(r.collection).OrderBy("createdAt", firestore.Desc).Documents(ctx)
	defer it.Stop()

	var result []*model.DeckRecord
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения коллекции %s: %w", r.collection, err)
		}
		var d firestoreDeck
		if err := snap.DataTo(&d); err != nil {
			return nil, fmt.Errorf("ошибка разбора документа %s: %w", snap.Ref.ID, err)
		}
		result = append(result, d.toModel(snap.Ref.ID))
	}
	return result, nil
}

// Get возвращает документ по ID или ErrNotFound.
func (r *firestoreDeckRepo) Get(ctx context.Context, id string) (*model.DeckRecord, error) {
	ref, ok := r.doc(id)
	if !ok {
		return nil, ErrNotFound
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа колоды: %w", err)
	}
	var d firestoreDeck
	if err := snap.DataTo(&d); err != nil {
		return nil, fmt.Errorf("ошибка разбора документа %s: %w", id, err)
	}
	return d.toModel(snap.Ref.ID), nil
}

// Update обновляет заданные поля документа.
func (r *firestoreDeckRepo) Update(ctx context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error) {
	updates := firestoreUpdates(upd)
	if len(updates) == 0 {
		return r.Get(ctx, id)
	}
	ref, ok := r.doc(id)
	if !ok {
		return nil, ErrNotFound
	}
	if _, err := ref.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления документа колоды: %w", err)
	}
	return r.Get(ctx, id)
}

// IncrementDownloads использует серверный трансформ firestore.Increment,
// конкурентные инкременты не теряются.
func (r *firestoreDeckRepo) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	ref, ok := r.doc(id)
	if !ok {
		return 0, ErrNotFound
	}
	_, err := ref.Update(ctx, []firestore.Update{{Path: "downloadCount", Value: firestore.Increment(1)}})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}

	rec, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return rec.DownloadCount, nil
}

// doc возвращает ссылку на документ; ID с '/' недопустим.
func (r *firestoreDeckRepo) doc(id string) (*firestore.DocumentRef, bool) {
	if id == "" || strings.Contains(id, "/") {
		return nil, false
	}
	ref := r.client.Collection(r.collection).Doc(id)
	return ref, ref != nil
}
