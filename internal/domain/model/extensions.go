package model

import (
	"strings"
)

// Extensions — набор допустимых расширений файлов колод (с точкой,
// в нижнем регистре). Составные расширения (.tar.gz) поддерживаются.
type Extensions []string

// DefaultExtensions — расширения, принимаемые по умолчанию.
var DefaultExtensions = Extensions{".apkg", ".anki", ".anki2", ".zip", ".tar.gz"}

// ParseExtensions нормализует список расширений: обрезает пробелы,
// приводит к нижнему регистру и добавляет ведущую точку.
func ParseExtensions(items []string) Extensions {
	out := make(Extensions, 0, len(items))
	for _, item := range items {
		item = strings.ToLower(strings.TrimSpace(item))
		if item == "" {
			continue
		}
		if !strings.HasPrefix(item, ".") {
			item = "." + item
		}
		out = append(out, item)
	}
	return out
}

// Match возвращает самое длинное допустимое расширение, которым
// оканчивается имя файла (без учёта регистра).
func (e Extensions) Match(name string) (string, bool) {
	lower := strings.ToLower(name)
	best := ""
	for _, ext := range e {
		ext = strings.ToLower(ext)
		if len(ext) > len(best) && strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			best = ext
		}
	}
	return best, best != ""
}

// Allowed сообщает, допустимо ли имя файла.
func (e Extensions) Allowed(name string) bool {
	_, ok := e.Match(name)
	return ok
}

// DeriveTitle формирует заголовок из имени файла: допустимое
// расширение отбрасывается, '-' и '_' заменяются пробелами.
func (e Extensions) DeriveTitle(name string) string {
	base := name
	if ext, ok := e.Match(name); ok {
		base = name[:len(name)-len(ext)]
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(base)
}

// String — список через запятую для сообщений об ошибках.
func (e Extensions) String() string {
	return strings.Join(e, ", ")
}
