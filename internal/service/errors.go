// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — колода не найдена ни в одном хранилище записей.
	ErrNotFound = errors.New("колода не найдена")
	// ErrEmptyCatalog — источники доступны, но ни один не вернул записей.
	// Для UI это не ошибка, а состояние «колод пока нет».
	ErrEmptyCatalog = errors.New("каталог пуст")
	// ErrCatalogUnavailable — ни один источник не вернул записей,
	// и хотя бы один завершился ошибкой.
	ErrCatalogUnavailable = errors.New("каталог недоступен")
	// ErrReconcileInProgress — сверка уже выполняется.
	ErrReconcileInProgress = errors.New("сверка уже выполняется")
)
