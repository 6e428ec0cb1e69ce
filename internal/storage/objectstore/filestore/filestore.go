// Пакет filestore — объектное хранилище колод на локальном диске.
// Обеспечивает streaming-запись с подсчётом SHA-256 на лету, листинг,
// удаление и выдачу публичных ссылок через базовый URL сервиса.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/deckstore/internal/storage/objectstore"
)

// tmpSuffix — суффикс временных файлов незавершённой записи.
const tmpSuffix = ".tmp"

// FileStore — объектное хранилище на локальном диске.
type FileStore struct {
	// dataDir — корневая директория хранения (DS_DATA_DIR)
	dataDir string
	// publicBaseURL — базовый URL, по которому сервис раздаёт файлы
	publicBaseURL string
}

var _ objectstore.Store = (*FileStore)(nil)

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir, publicBaseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &FileStore{dataDir: dataDir, publicBaseURL: publicBaseURL}, nil
}

// Put записывает данные из reader на диск с подсчётом SHA-256 на лету.
//
// Паттерн: temp файл → запись + SHA-256 → fsync → atomic rename.
// При ошибке (в том числе отмене ctx) temp файл удаляется.
func (s *FileStore) Put(ctx context.Context, key string, r io.Reader, size int64, progress objectstore.ProgressFunc) (*objectstore.PutResult, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}

	fullPath := s.fullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории: %w", err)
	}
	tmpPath := fullPath + tmpSuffix

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	// Streaming запись с одновременным подсчётом SHA-256
	hasher := sha256.New()
	tee := io.TeeReader(objectstore.NewProgressReader(ctx, r, size, progress), hasher)

	written, err := io.Copy(f, tee)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка записи данных: %w", err)
	}

	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &objectstore.PutResult{
		Key:      key,
		Size:     written,
		Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// URL возвращает публичную ссылку на объект.
func (s *FileStore) URL(_ context.Context, key string) (string, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return "", err
	}
	return objectstore.PublicURL(s.publicBaseURL, key), nil
}

// List обходит директорию данных и возвращает объекты с префиксом.
// Незавершённые временные файлы пропускаются.
func (s *FileStore) List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error) {
	var objects []objectstore.ObjectInfo

	err := filepath.WalkDir(s.dataDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), tmpSuffix) {
			return nil
		}

		rel, err := filepath.Rel(s.dataDir, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, objectstore.ObjectInfo{
			Key:        key,
			Size:       info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка листинга %s: %w", s.dataDir, err)
	}
	return objects, nil
}

// Delete удаляет файл с диска. Возвращает nil если файл уже не существует.
func (s *FileStore) Delete(_ context.Context, key string) error {
	if err := objectstore.ValidateKey(key); err != nil {
		return err
	}
	err := os.Remove(s.fullPath(key))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления файла %s: %w", key, err)
	}
	return nil
}

// Open открывает объект для чтения. Вызывающий код обязан закрыть файл.
func (s *FileStore) Open(key string) (*os.File, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return nil, err
	}
	if strings.HasSuffix(key, tmpSuffix) {
		return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
	}

	f, err := os.Open(s.fullPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия файла %s: %w", key, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации о файле %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", objectstore.ErrObjectNotFound, key)
	}
	return f, nil
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}

func (s *FileStore) fullPath(key string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(key))
}
