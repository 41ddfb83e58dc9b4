// Пакет processing — внешний коллаборатор обработки содержимого.
//
// Для ядра дедупликации обработка — непрозрачная асинхронная задача
// с исходом успех/ошибка и количеством чанков. Реальное извлечение
// текста и генерация эмбеддингов остаются за границей системы;
// Chunker — её модель: нарезка сохранённого blob на чанки
// фиксированного размера.
package processing

import (
	"context"
	"fmt"
	"io"

	"github.com/bigkaa/godedup/internal/storage/blobstore"
)

// Task — параметры задачи обработки одной записи.
type Task struct {
	// RecordID — идентификатор записи
	RecordID string
	// Name — оригинальное имя файла
	Name string
	// Fingerprint — отпечаток содержимого (адрес blob)
	Fingerprint string
	// Size — размер содержимого в байтах
	Size int64
}

// Result — результат успешной обработки.
type Result struct {
	// ChunkCount — количество полученных чанков
	ChunkCount int
}

// Runner — контракт задачи обработки.
// Реализация обязана уважать ctx: отмена или таймаут прерывает работу.
type Runner interface {
	Run(ctx context.Context, task Task) (*Result, error)
}

// Chunker — модель обработки: потоковая нарезка blob на чанки
// фиксированного размера. Память ограничена размером одного чанка.
type Chunker struct {
	blobs     *blobstore.BlobStore
	chunkSize int64
}

// Проверка контракта на этапе компиляции.
var _ Runner = (*Chunker)(nil)

// NewChunker создаёт Chunker. chunkSize должен быть >= 1.
func NewChunker(blobs *blobstore.BlobStore, chunkSize int64) (*Chunker, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("недопустимый размер чанка: %d", chunkSize)
	}
	return &Chunker{blobs: blobs, chunkSize: chunkSize}, nil
}

// Run читает blob записи и считает количество чанков.
// Пустое содержимое даёт 0 чанков — вызывающий код по соглашению
// трактует это как failed, а не completed.
func (c *Chunker) Run(ctx context.Context, task Task) (*Result, error) {
	f, err := c.blobs.Open(task.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия содержимого: %w", err)
	}
	defer f.Close()

	buf := make([]byte, c.chunkSize)
	chunks := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("обработка прервана: %w", err)
		}

		n, err := io.ReadFull(f, buf)
		if n > 0 {
			chunks++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения содержимого: %w", err)
		}
	}

	return &Result{ChunkCount: chunks}, nil
}
