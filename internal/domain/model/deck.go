// Пакет model — доменные модели Deckstore.
// DeckRecord — единое представление колоды в каталоге независимо от
// источника (хранилище записей или статический манифест).
package model

import (
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// DeckRecord — запись о колоде.
type DeckRecord struct {
	// ID — идентификатор, назначенный хранилищем записей при коммите.
	// Пуст для записей из манифеста, ключом служит FileName (см. Key).
	ID string `json:"id,omitempty"`

	// Title — отображаемое имя колоды
	Title string `json:"title"`

	// Description — произвольное описание, по умолчанию ""
	Description string `json:"description"`

	// FileName — исходное имя загруженного файла
	FileName string `json:"filename"`

	// StoragePath — ключ объекта в объектном хранилище
	StoragePath string `json:"storage_path,omitempty"`

	// URL — публичная ссылка на файл колоды
	URL string `json:"url"`

	// Size — размер файла в байтах (фактически записанный)
	Size int64 `json:"size"`

	// CreatedAt — время коммита записи (UTC)
	CreatedAt time.Time `json:"created_at"`

	// DownloadCount — счётчик скачиваний, только растёт
	DownloadCount int64 `json:"download_count"`

	// UploaderID / UploaderName — атрибуция, только для аутентифицированных загрузок
	UploaderID   string `json:"uploader_id,omitempty"`
	UploaderName string `json:"uploader_name,omitempty"`

	// Institution — учебное заведение (точное совпадение при фильтрации)
	Institution string `json:"institution,omitempty"`
	// CourseCode — код курса, хранится в верхнем регистре
	CourseCode string `json:"course_code,omitempty"`
	// CourseName — название курса
	CourseName string `json:"course_name,omitempty"`
}

// Key возвращает ключ записи: ID, а для записей манифеста — имя файла.
func (d *DeckRecord) Key() string {
	if d.ID != "" {
		return d.ID
	}
	return d.FileName
}

// SafeDownloadCount возвращает счётчик, не меньше нуля.
func (d *DeckRecord) SafeDownloadCount() int64 {
	if d.DownloadCount < 0 {
		return 0
	}
	return d.DownloadCount
}

// SizeHuman — размер в человекочитаемом виде (KiB, MiB, ...).
func (d *DeckRecord) SizeHuman() string {
	return HumanSize(d.Size)
}

// Normalize заполняет производные поля: имя файла из ключа хранилища,
// заголовок из имени файла, код курса в верхнем регистре.
func (d *DeckRecord) Normalize(exts Extensions) {
	if d.FileName == "" && d.StoragePath != "" {
		d.FileName = path.Base(d.StoragePath)
	}
	if strings.TrimSpace(d.Title) == "" {
		d.Title = exts.DeriveTitle(d.FileName)
	}
	d.CourseCode = strings.ToUpper(strings.TrimSpace(d.CourseCode))
}

// DeckUpdate — частичное обновление записи. nil — поле не меняется.
type DeckUpdate struct {
	Title       *string
	Description *string
	Institution *string
	CourseCode  *string
	CourseName  *string
}

// IsEmpty сообщает, что обновление не затрагивает ни одного поля.
func (u DeckUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Institution == nil &&
		u.CourseCode == nil && u.CourseName == nil
}

// ManifestEntry — элемент статического манифеста decks.json.
type ManifestEntry struct {
	FileName    string `json:"filename"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Size        int64  `json:"size"`
	URL         string `json:"url"`
}

// ToRecord преобразует элемент манифеста в запись каталога без ID.
func (e ManifestEntry) ToRecord(exts Extensions) DeckRecord {
	rec := DeckRecord{
		Title:       e.Title,
		Description: e.Description,
		FileName:    e.FileName,
		URL:         e.URL,
		Size:        e.Size,
	}
	rec.Normalize(exts)
	return rec
}

// Principal — аутентифицированный пользователь, выполняющий операцию.
type Principal struct {
	// ID — subject из JWT
	ID string
	// DisplayName — имя для атрибуции (name, preferred_username или email)
	DisplayName string
}

// HumanSize форматирует размер в байтах (основание 1024).
func HumanSize(size int64) string {
	if size < 0 {
		size = 0
	}
	return humanize.IBytes(uint64(size))
}
