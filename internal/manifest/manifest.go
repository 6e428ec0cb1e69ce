// Пакет manifest — генерация и чтение статического манифеста колод
// (decks.json). Манифест — источник каталога с низшим приоритетом,
// доступный без живого backend-а.
package manifest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// Значения по умолчанию для генератора.
const (
	DefaultDir       = "decks"
	DefaultOutput    = "decks.json"
	DefaultURLPrefix = "decks"
)

// Generator сканирует директорию с колодами и строит манифест.
type Generator struct {
	// Dir — директория с файлами колод
	Dir string
	// URLPrefix — префикс относительных ссылок (decks → decks/<имя>)
	URLPrefix string
	// Extensions — допустимые расширения
	Extensions model.Extensions

	logger *slog.Logger
}

// NewGenerator создаёт генератор. Пустые параметры заменяются значениями по умолчанию.
func NewGenerator(dir, urlPrefix string, exts model.Extensions, logger *slog.Logger) *Generator {
	if dir == "" {
		dir = DefaultDir
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if len(exts) == 0 {
		exts = model.DefaultExtensions
	}
	return &Generator{
		Dir:        dir,
		URLPrefix:  strings.TrimSuffix(urlPrefix, "/"),
		Extensions: exts,
		logger:     logger.With(slog.String("component", "manifest")),
	}
}

// Generate сканирует директорию и возвращает элементы манифеста в
// порядке директории. Отсутствующая директория создаётся; пустая,
// отсутствующая или нечитаемая директория даёт пустой список, не ошибку.
func (g *Generator) Generate() []model.ManifestEntry {
	entries := make([]model.ManifestEntry, 0)

	// 1. Директория создаётся, если её нет (идемпотентно)
	if err := os.MkdirAll(g.Dir, 0o755); err != nil {
		g.logger.Warn("Не удалось создать директорию колод",
			slog.String("dir", g.Dir),
			slog.String("error", err.Error()),
		)
		return entries
	}

	// 2. Чтение списка файлов
	dirEntries, err := os.ReadDir(g.Dir)
	if err != nil {
		g.logger.Warn("Не удалось прочитать директорию колод",
			slog.String("dir", g.Dir),
			slog.String("error", err.Error()),
		)
		return entries
	}

	// 3. Фильтрация по расширению и сбор метаданных
	for _, de := range dirEntries {
		name := de.Name()
		if !g.Extensions.Allowed(name) {
			continue
		}

		info, err := os.Stat(filepath.Join(g.Dir, name))
		if err != nil {
			g.logger.Warn("Не удалось получить размер файла",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}

		entries = append(entries, model.ManifestEntry{
			FileName:    name,
			Title:       g.Extensions.DeriveTitle(name),
			Description: "",
			Size:        info.Size(),
			URL:         g.URLPrefix + "/" + url.PathEscape(name),
		})
	}

	g.logger.Debug("Директория колод просканирована",
		slog.String("dir", g.Dir),
		slog.Int("entries", len(entries)),
	)
	return entries
}

// WriteFile записывает манифест атомарно: временный файл в той же
// директории, затем rename. Формат — JSON-массив с отступом в 2 пробела
// и завершающим переводом строки.
func WriteFile(path string, entries []model.ManifestEntry) error {
	if entries == nil {
		entries = []model.ManifestEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("сериализация манифеста: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".decks-*.json.tmp")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("запись манифеста: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("закрытие временного файла: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("установка прав: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("переименование %s → %s: %w", tmpPath, path, err)
	}
	return nil
}

// ReadFile читает манифест. Неизвестные поля элементов игнорируются.
// Ошибка отсутствия файла оборачивает os.ErrNotExist.
func ReadFile(path string) ([]model.ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение манифеста %s: %w", path, err)
	}

	var entries []model.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("разбор манифеста %s: %w", path, err)
	}
	return entries, nil
}
