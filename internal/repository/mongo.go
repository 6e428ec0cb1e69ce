package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// mongoDeck — документ колоды в коллекции MongoDB.
type mongoDeck struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Title         string             `bson:"title"`
	Description   string             `bson:"description"`
	FileName      string             `bson:"filename"`
	StoragePath   string             `bson:"storagePath"`
	URL           string             `bson:"url"`
	Size          int64              `bson:"size"`
	DownloadCount int64              `bson:"downloadCount"`
	Uploader      string             `bson:"uploader"`
	UploaderName  string             `bson:"uploaderName"`
	Institution   string             `bson:"institution"`
	CourseCode    string             `bson:"courseCode"`
	CourseName    string             `bson:"courseName"`
	CreatedAt     time.Time          `bson:"createdAt"`
}

func (d *mongoDeck) toModel() *model.DeckRecord {
	return &model.DeckRecord{
		ID:            d.ID.Hex(),
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

// mongoSet строит документ $set для частичного обновления.
func mongoSet(upd model.DeckUpdate) bson.D {
	var set bson.D
	add := func(field string, v *string) {
		if v != nil {
			set = append(set, bson.E{Key: field, Value: *v})
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
	return set
}

// mongoDeckRepo — реализация DeckRepository поверх коллекции MongoDB.
type mongoDeckRepo struct {
	col *mongo.Collection
}

// NewMongoDeckRepository создаёт репозиторий колод MongoDB.
func NewMongoDeckRepository(col *mongo.Collection) DeckRepository {
	return &mongoDeckRepo{col: col}
}

func (r *mongoDeckRepo) Name() string { return "mongo" }

// Insert создаёт документ. BSON хранит время с точностью до миллисекунд.
func (r *mongoDeckRepo) Insert(ctx context.Context, rec *model.DeckRecord) error {
	doc := mongoDeck{
		ID:           primitive.NewObjectID(),
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
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := r.col.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: колода с таким ключом хранилища уже зарегистрирована", ErrConflict)
		}
		return fmt.Errorf("ошибка создания документа колоды: %w", err)
	}
	rec.ID = doc.ID.Hex()
	rec.CreatedAt = doc.CreatedAt
	rec.DownloadCount = 0
	return nil
}

// List возвращает документы по убыванию createdAt, _id — tie-breaker.
func (r *mongoDeckRepo) List(ctx context.Context) ([]*model.DeckRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := r.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка колод: %w", err)
	}

	var docs []mongoDeck
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("ошибка чтения курсора: %w", err)
	}

	result := make([]*model.DeckRecord, 0, len(docs))
	for i := range docs {
		result = append(result, docs[i].toModel())
	}
	return result, nil
}

// Get возвращает документ по hex ObjectID или ErrNotFound.
func (r *mongoDeckRepo) Get(ctx context.Context, id string) (*model.DeckRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	var d mongoDeck
	if err := r.col.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения колоды: %w", err)
	}
	return d.toModel(), nil
}

// Update применяет $set и возвращает документ после обновления.
func (r *mongoDeckRepo) Update(ctx context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error) {
	set := mongoSet(upd)
	if len(set) == 0 {
		return r.Get(ctx, id)
	}
	return r.findOneAndUpdate(ctx, id, bson.D{{Key: "$set", Value: set}})
}

// IncrementDownloads — атомарный $inc на стороне сервера.
func (r *mongoDeckRepo) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	rec, err := r.findOneAndUpdate(ctx, id, bson.D{{Key: "$inc", Value: bson.D{{Key: "downloadCount", Value: 1}}}})
	if err != nil {
		return 0, err
	}
	return rec.DownloadCount, nil
}

func (r *mongoDeckRepo) findOneAndUpdate(ctx context.Context, id string, update bson.D) (*model.DeckRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d mongoDeck
	err = r.col.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, opts).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления колоды: %w", err)
	}
	return d.toModel(), nil
}

// EnsureMongoIndexes создаёт индексы коллекции (идемпотентно).
func EnsureMongoIndexes(ctx context.Context, col *mongo.Collection) error {
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "storagePath", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("ошибка создания индексов MongoDB: %w", err)
	}
	return nil
}
