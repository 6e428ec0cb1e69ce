// filter.go — фильтрация снимка каталога по запросу пользователя.
package service

import (
	"strings"

	"github.com/bigkaa/deckstore/internal/domain/model"
)

// FilterQuery — критерии фильтрации. Пустое поле не ограничивает выборку.
type FilterQuery struct {
	// Search — подстрока без учёта регистра по названию (или имени файла),
	// описанию, коду и названию курса
	Search string
	// Institution — точное совпадение учебного заведения
	Institution string
	// CourseCode — подстрока кода курса без учёта регистра
	CourseCode string
}

// IsEmpty сообщает, что запрос не содержит активных критериев.
func (q FilterQuery) IsEmpty() bool {
	return strings.TrimSpace(q.Search) == "" &&
		strings.TrimSpace(q.Institution) == "" &&
		strings.TrimSpace(q.CourseCode) == ""
}

// FilterStats — «показано N из M колод».
type FilterStats struct {
	Shown int `json:"shown"`
	Total int `json:"total"`
}

// Filter возвращает записи, удовлетворяющие всем активным критериям,
// в исходном порядке. Входной срез не изменяется.
func Filter(records []model.DeckRecord, q FilterQuery) []model.DeckRecord {
	if q.IsEmpty() {
		return records
	}

	// Пробелы в Search значимы для подстроки: " review" не совпадает
	// с "preview". Строка из одних пробелов критерием не считается.
	search := strings.ToLower(q.Search)
	searchActive := strings.TrimSpace(q.Search) != ""
	institution := strings.TrimSpace(q.Institution)
	code := strings.ToLower(strings.TrimSpace(q.CourseCode))

	result := make([]model.DeckRecord, 0, len(records))
	for i := range records {
		r := &records[i]
		if searchActive && !matchesSearch(r, search) {
			continue
		}
		if institution != "" && strings.TrimSpace(r.Institution) != institution {
			continue
		}
		if code != "" && !strings.Contains(strings.ToLower(r.CourseCode), code) {
			continue
		}
		result = append(result, *r)
	}
	return result
}

// Stats считает статистику отбора.
func Stats(shown, total []model.DeckRecord) FilterStats {
	return FilterStats{Shown: len(shown), Total: len(total)}
}

func matchesSearch(r *model.DeckRecord, needle string) bool {
	title := r.Title
	if title == "" {
		title = r.FileName
	}
	for _, field := range []string{title, r.Description, r.CourseCode, r.CourseName} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
