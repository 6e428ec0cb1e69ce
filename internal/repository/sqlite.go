package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// sqliteDeck — GORM-модель таблицы decks в SQLite.
type sqliteDeck struct {
	ID            string    `gorm:"primaryKey;size:36"`
	Title         string    `gorm:"not null"`
	Description   string    `gorm:"not null;default:''"`
	FileName      string    `gorm:"column:filename;not null"`
	StoragePath   string    `gorm:"uniqueIndex;not null"`
	URL           string    `gorm:"column:url;not null"`
	Size          int64     `gorm:"not null"`
	DownloadCount int64     `gorm:"not null;default:0"`
	UploaderID    string    `gorm:"not null;default:''"`
	UploaderName  string    `gorm:"not null;default:''"`
	Institution   string    `gorm:"index;not null;default:''"`
	CourseCode    string    `gorm:"not null;default:''"`
	CourseName    string    `gorm:"not null;default:''"`
	CreatedAt     time.Time `gorm:"index"`
	UpdatedAt     time.Time
}

func (sqliteDeck) TableName() string { return "decks" }

func (d *sqliteDeck) toModel() *model.DeckRecord {
	return &model.DeckRecord{
		ID:            d.ID,
		Title:         d.Title,
		Description:   d.Description,
		FileName:      d.FileName,
		StoragePath:   d.StoragePath,
		URL:           d.URL,
		Size:          d.Size,
		CreatedAt:     d.CreatedAt.UTC(),
		DownloadCount: d.DownloadCount,
		UploaderID:    d.UploaderID,
		UploaderName:  d.UploaderName,
		Institution:   d.Institution,
		CourseCode:    d.CourseCode,
		CourseName:    d.CourseName,
	}
}

// sqliteDeckRepo — реализация DeckRepository через GORM.
type sqliteDeckRepo struct {
	db *gorm.DB
}

// NewSQLiteDeckRepository создаёт репозиторий и применяет AutoMigrate схемы.
func NewSQLiteDeckRepository(db *gorm.DB) (DeckRepository, error) {
	if err := db.AutoMigrate(&sqliteDeck{}); err != nil {
		return nil, fmt.Errorf("ошибка миграции SQLite: %w", err)
	}
	return &sqliteDeckRepo{db: db}, nil
}

func (r *sqliteDeckRepo) Name() string { return "sqlite" }

func (r *sqliteDeckRepo) Insert(ctx context.Context, rec *model.DeckRecord) error {
	row := &sqliteDeck{
		ID:           uuid.New().String(),
		Title:        rec.Title,
		Description:  rec.Description,
		FileName:     rec.FileName,
		StoragePath:  rec.StoragePath,
		URL:          rec.URL,
		Size:         rec.Size,
		UploaderID:   rec.UploaderID,
		UploaderName: rec.UploaderName,
		Institution:  rec.Institution,
		CourseCode:   rec.CourseCode,
		CourseName:   rec.CourseName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: колода с таким ключом хранилища уже зарегистрирована", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации колоды: %w", err)
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	rec.DownloadCount = 0
	return nil
}

func (r *sqliteDeckRepo) List(ctx context.Context) ([]*model.DeckRecord, error) {
	var rows []sqliteDeck
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ошибка получения списка колод: %w", err)
	}
	result := make([]*model.DeckRecord, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toModel())
	}
	return result, nil
}

func (r *sqliteDeckRepo) Get(ctx context.Context, id string) (*model.DeckRecord, error) {
	var row sqliteDeck
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения колоды: %w", err)
	}
	return row.toModel(), nil
}

func (r *sqliteDeckRepo) Update(ctx context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error) {
	fields := map[string]any{}
	if upd.Title != nil {
		fields["title"] = *upd.Title
	}
	if upd.Description != nil {
		fields["description"] = *upd.Description
	}
	if upd.Institution != nil {
		fields["institution"] = *upd.Institution
	}
	if upd.CourseCode != nil {
		fields["course_code"] = strings.ToUpper(*upd.CourseCode)
	}
	if upd.CourseName != nil {
		fields["course_name"] = *upd.CourseName
	}
	if len(fields) == 0 {
		return r.Get(ctx, id)
	}

	res := r.db.WithContext(ctx).Model(&sqliteDeck{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return nil, fmt.Errorf("ошибка обновления колоды: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, id)
}

// IncrementDownloads выполняет UPDATE ... SET download_count = download_count + 1.
func (r *sqliteDeckRepo) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&sqliteDeck{}).Where("id = ?", id).
			UpdateColumn("download_count", gorm.Expr("download_count + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Model(&sqliteDeck{}).Where("id = ?", id).Select("download_count").Scan(&count).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}
	return count, nil
}
