// Пакет objectstore — контракт объектного хранилища файлов колод и
// общие помощники backend-ов (локальный диск, S3/MinIO, GCS).
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Ошибки объектного хранилища.
var (
	// ErrInvalidKey — ключ пуст, абсолютный или выходит за пределы хранилища
	ErrInvalidKey = errors.New("недопустимый ключ объекта")
	// ErrObjectNotFound — объект с указанным ключом отсутствует
	ErrObjectNotFound = errors.New("объект не найден")
)

// ProgressFunc — наблюдатель прогресса записи.
// transferred — передано байт, total — ожидаемый размер (<=0, если неизвестен).
type ProgressFunc func(transferred, total int64)

// PutResult — результат записи объекта.
type PutResult struct {
	// Key — ключ объекта
	Key string
	// Size — фактически записанный размер в байтах
	Size int64
	// Checksum — SHA-256 содержимого (hex)
	Checksum string
}

// ObjectInfo — краткая информация об объекте при листинге.
type ObjectInfo struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// Store — объектное хранилище файлов колод.
type Store interface {
	// Put записывает содержимое reader под ключом key.
	// progress вызывается по мере передачи (может быть nil).
	Put(ctx context.Context, key string, r io.Reader, size int64, progress ProgressFunc) (*PutResult, error)
	// URL возвращает долговечную публичную ссылку на объект.
	URL(ctx context.Context, key string) (string, error)
	// List возвращает объекты с указанным префиксом.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Delete удаляет объект. Отсутствующий объект — не ошибка.
	Delete(ctx context.Context, key string) error
}

// ValidateKey проверяет ключ: непустой, относительный, без "..".
func ValidateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// GenerateKey формирует ключ нового объекта.
// Формат: {prefix}/{unix-millis}_{uuid8}_{имя с заменой пробелов на _}
// Пример: decks/1739999999999_a1b2c3d4_Organic_Chem.apkg
func GenerateKey(prefix, filename string, now time.Time) string {
	name := sanitizeName(filename)
	uid := uuid.New().String()[:8]
	key := fmt.Sprintf("%d_%s_%s", now.UnixMilli(), uid, name)

	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// sanitizeName убирает разделители путей и управляющие символы,
// последовательности пробельных символов заменяет одним '_'.
func sanitizeName(filename string) string {
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))
	fields := strings.Fields(filename)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('_')
		}
		for _, r := range f {
			if r < 0x20 || r == 0x7f || r == '/' {
				continue
			}
			b.WriteRune(r)
		}
	}
	name := b.String()
	// Ограничиваем длину имени для предотвращения проблем с FS
	if len(name) > 120 {
		name = name[len(name)-120:]
		for len(name) > 0 && !utf8.RuneStart(name[0]) {
			name = name[1:]
		}
	}
	if name == "" || name == "." || name == ".." {
		return "deck"
	}
	return name
}

// PublicURL склеивает базовый URL и ключ, экранируя сегменты ключа.
func PublicURL(base, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.Join(segments, "/")
}

// progressReader считает прочитанные байты, сообщает прогресс и
// прерывает чтение при отмене контекста.
type progressReader struct {
	ctx         context.Context
	r           io.Reader
	total       int64
	transferred atomic.Int64
	fn          ProgressFunc
}

// NewProgressReader оборачивает reader наблюдателем прогресса.
// При отмене ctx следующее чтение возвращает ctx.Err().
func NewProgressReader(ctx context.Context, r io.Reader, total int64, fn ProgressFunc) io.Reader {
	return &progressReader{ctx: ctx, r: r, total: total, fn: fn}
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := p.r.Read(b)
	if n > 0 {
		done := p.transferred.Add(int64(n))
		if p.fn != nil {
			p.fn(done, p.total)
		}
	}
	return n, err
}

// progressCounter — io.Reader для minio PutObjectOptions.Progress:
// minio вычитывает из него столько байт, сколько отправлено.
type progressCounter struct {
	total       int64
	transferred int64
	fn          ProgressFunc
}

// NewProgressCounter создаёт счётчик для SDK, которые сообщают прогресс
// чтением из переданного reader.
func NewProgressCounter(total int64, fn ProgressFunc) io.Reader {
	return &progressCounter{total: total, fn: fn}
}

func (c *progressCounter) Read(b []byte) (int, error) {
	c.transferred += int64(len(b))
	if c.fn != nil {
		c.fn(c.transferred, c.total)
	}
	return len(b), nil
}
