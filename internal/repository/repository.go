// Пакет repository — хранилища записей о колодах.
// Общий контракт DeckRepository реализуют PostgreSQL (pgx, чистый SQL),
// Firestore, MongoDB и SQLite (GORM). Порядок списка — created_at DESC.
package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// Ошибки слоя репозиториев.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — конфликт уникальности (дублирующийся ключ хранилища).
	ErrConflict = errors.New("конфликт — запись уже существует")
)

// DeckRepository — хранилище записей о колодах.
type DeckRepository interface {
	// Name возвращает имя backend-а для логов и метрик.
	Name() string
	// Insert фиксирует новую запись. Назначает ID и CreatedAt в rec.
	Insert(ctx context.Context, rec *model.DeckRecord) error
	// List возвращает все записи, отсортированные по CreatedAt по убыванию.
	List(ctx context.Context) ([]*model.DeckRecord, error)
	// Get возвращает запись по ID или ErrNotFound.
	Get(ctx context.Context, id string) (*model.DeckRecord, error)
	// Update применяет частичное обновление и возвращает запись.
	Update(ctx context.Context, id string, upd model.DeckUpdate) (*model.DeckRecord, error)
	// IncrementDownloads атомарно увеличивает счётчик скачиваний на 1
	// и возвращает новое значение. Неизвестный ID — ErrNotFound.
	IncrementDownloads(ctx context.Context, id string) (int64, error)
}

// DBTX — интерфейс для выполнения SQL-запросов.
// Реализуется как *pgxpool.Pool, так и pgx.Tx, что позволяет
// использовать репозитории как внутри, так и вне транзакций.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// isUniqueViolation проверяет, является ли ошибка нарушением уникальности PostgreSQL.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
