// Пакет blobstore — content-addressed хранилище содержимого на диске.
//
// Файл хранится по пути, производному от его отпечатка:
// {dataDir}/{fp[0:2]}/{fp}.bin. Запись потоковая с вычислением
// отпечатка на лету, размер входа на память не влияет.
//
// Паттерн записи: temp файл → запись + SHA-256 → fsync → atomic rename.
// Повторная запись того же содержимого не дублирует blob.
package blobstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/bigkaa/godedup/internal/fingerprint"
)

// Ошибки валидации содержимого.
var (
	// ErrEmptyContent — содержимое пустое (0 байт).
	ErrEmptyContent = errors.New("содержимое пустое")
	// ErrTooLarge — содержимое превышает настроенный максимум.
	ErrTooLarge = errors.New("содержимое превышает максимальный размер")
)

// BlobStore — управление физическим содержимым на диске.
type BlobStore struct {
	// dataDir — корневая директория хранения (DS_DATA_DIR)
	dataDir string
}

// SaveResult — результат сохранения содержимого.
type SaveResult struct {
	// Fingerprint — SHA-256 отпечаток содержимого
	Fingerprint string
	// Size — размер содержимого в байтах
	Size int64
	// Path — относительный путь blob в dataDir
	Path string
	// Existed — blob с таким отпечатком уже был на диске
	Existed bool
}

// New создаёт BlobStore. Создаёт директорию, если она не существует.
func New(dataDir string) (*BlobStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}
	return &BlobStore{dataDir: dataDir}, nil
}

// Save потоково записывает содержимое на диск с вычислением отпечатка
// на лету. maxSize — жёсткий лимит размера: превышение прерывает запись
// с ErrTooLarge до того, как появится какая-либо запись в индексе.
// Пустое содержимое отклоняется с ErrEmptyContent.
//
// Если blob с полученным отпечатком уже существует, temp файл удаляется,
// существующее содержимое не перезаписывается (Existed=true).
func (bs *BlobStore) Save(reader io.Reader, maxSize int64) (*SaveResult, error) {
	tmpPath := filepath.Join(bs.dataDir, ".tmp-"+uuid.New().String())

	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	cleanup := func() {
		f.Close()
		os.Remove(tmpPath)
	}

	// Потоковая запись с одновременным вычислением отпечатка.
	// LimitReader на maxSize+1: лишний байт означает превышение лимита.
	digester := fingerprint.New()
	tee := io.TeeReader(io.LimitReader(reader, maxSize+1), digester)

	size, err := io.Copy(f, tee)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка записи содержимого: %w", err)
	}
	if size == 0 {
		cleanup()
		return nil, ErrEmptyContent
	}
	if size > maxSize {
		cleanup()
		return nil, ErrTooLarge
	}

	if err := f.Sync(); err != nil {
		cleanup()
		return nil, fmt.Errorf("ошибка fsync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка закрытия файла: %w", err)
	}

	fp := digester.Sum()
	relPath := blobPath(fp)
	fullPath := filepath.Join(bs.dataDir, relPath)

	// Blob уже есть — содержимое идентично по построению, temp не нужен
	if _, statErr := os.Stat(fullPath); statErr == nil {
		os.Remove(tmpPath)
		return &SaveResult{Fingerprint: fp, Size: size, Path: relPath, Existed: true}, nil
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка создания шард-директории: %w", err)
	}

	// Атомарный rename. При гонке двух одинаковых загрузок оба rename
	// пишут идентичные байты — оба исхода корректны.
	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("ошибка атомарного переименования: %w", err)
	}

	return &SaveResult{Fingerprint: fp, Size: size, Path: relPath, Existed: false}, nil
}

// Open открывает blob по отпечатку для чтения.
// Вызывающий код обязан закрыть файл.
func (bs *BlobStore) Open(fp string) (*os.File, error) {
	fullPath := filepath.Join(bs.dataDir, blobPath(fp))

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob не найден: %s", fp)
		}
		return nil, fmt.Errorf("ошибка открытия blob %s: %w", fp, err)
	}
	return f, nil
}

// Exists проверяет наличие blob с указанным отпечатком.
func (bs *BlobStore) Exists(fp string) bool {
	_, err := os.Stat(filepath.Join(bs.dataDir, blobPath(fp)))
	return err == nil
}

// Remove удаляет blob с диска. Возвращает nil, если blob уже отсутствует.
func (bs *BlobStore) Remove(fp string) error {
	err := os.Remove(filepath.Join(bs.dataDir, blobPath(fp)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ошибка удаления blob %s: %w", fp, err)
	}
	return nil
}

// DataDir возвращает путь к директории данных.
func (bs *BlobStore) DataDir() string {
	return bs.dataDir
}

// blobPath строит относительный путь blob: {fp[0:2]}/{fp}.bin.
// Шардирование по первым двум символам отпечатка ограничивает
// количество файлов в одной директории.
func blobPath(fp string) string {
	return filepath.Join(fp[:2], fp+".bin")
}
