package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// deckColumns — список столбцов таблицы decks для SELECT-запросов.
const deckColumns = `id, title, description, filename, storage_path, url, size,
	download_count, uploader_id, uploader_name, institution, course_code, course_name, created_at`

// postgresDeckRepo — реализация DeckRepository через pgx.
type postgresDeckRepo struct {
	db DBTX
}

// NewPostgresDeckRepository создаёт репозиторий колод PostgreSQL.
func NewPostgresDeckRepository(db DBTX) DeckRepository {
	return &postgresDeckRepo{db: db}
}

func (r *postgresDeckRepo) Name() string { return "postgres" }

// Insert создаёт запись. ID генерируется здесь, created_at — сервером БД.
func (r *postgresDeckRepo) Insert(ctx context.Context, rec *model.DeckRecord) error {
	query := `
		INSERT INTO decks (id, title, description, filename, storage_path, url, size,
			uploader_id, uploader_name, institution, course_code, course_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING download_count, created_at`

	id := uuid.New().String()
	err := r.db.QueryRow(ctx, query,
		id, rec.Title, rec.Description, rec.FileName, rec.StoragePath, rec.URL, rec.Size,
		rec.UploaderID, rec.UploaderName, rec.Institution, rec.CourseCode, rec.CourseName,
	).Scan(&rec.DownloadCount, &rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: колода с таким ключом хранилища уже зарегистрирована", ErrConflict)
		}
		return fmt.Errorf("ошибка регистрации колоды: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = rec.CreatedAt.UTC()
	return nil
}

// List возвращает все колоды, новые первыми. id — стабильный tie-breaker.
func (r *postgresDeckRepo) List(ctx context.Context) ([]*model.DeckRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM decks ORDER BY created_at DESC, id`, deckColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка колод: %w", err)
	}
	defer rows.Close()

	var result []*model.DeckRecord
	for rows.Next() {
		d, err := scanDeck(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования колоды: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return result, nil
}

// Get возвращает колоду по UUID или ErrNotFound.
// Строка, не являющаяся UUID, не может быть ключом этой таблицы.
func (r *postgresDeckRepo) Get(ctx context.Context, id string) (*model.DeckRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	query := fmt.Sprintf(`SELECT %s FROM decks WHERE id = $1`, deckColumns)

	d, err := scanDeck(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения колоды: %w", err)
	}
	return d, nil
}

// Update обновляет только заданные поля и возвращает актуальную запись.
func (r *postgresDeckRepo) Update(ctx context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error) {
	if upd.IsEmpty() {
		return r.Get(ctx, id)
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	var (
		sets []string
		args []any
	)
	add := func(col string, v *string) {
		if v == nil {
			return
		}
		args = append(args, *v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("title", upd.Title)
	add("description", upd.Description)
	add("institution", upd.Institution)
	if upd.CourseCode != nil {
		code := strings.ToUpper(*upd.CourseCode)
		add("course_code", &code)
	}
	add("course_name", upd.CourseName)

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE decks SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), deckColumns)

	d, err := scanDeck(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления колоды: %w", err)
	}
	return d, nil
}

// IncrementDownloads — атомарный инкремент на стороне БД,
// параллельные вызовы не теряют обновлений.
func (r *postgresDeckRepo) IncrementDownloads(ctx context.Context, id string) (int64, error) {
	if _, err := uuid.Parse(id); err != nil {
		return 0, ErrNotFound
	}
	query := `UPDATE decks SET download_count = download_count + 1 WHERE id = $1 RETURNING download_count`

	var count int64
	if err := r.db.QueryRow(ctx, query, id).Scan(&count); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}
	return count, nil
}

// scanDeck сканирует строку в DeckRecord (порядок deckColumns).
func scanDeck(row pgx.Row) (*model.DeckRecord, error) {
	d := &model.DeckRecord{}
	err := row.Scan(
		&d.ID, &d.Title, &d.Description, &d.FileName, &d.StoragePath, &d.URL, &d.Size,
		&d.DownloadCount, &d.UploaderID, &d.UploaderName, &d.Institution, &d.CourseCode, &d.CourseName,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.CreatedAt = d.CreatedAt.UTC()
	return d, nil
}
