// Пакет fingerprint — вычисление отпечатка содержимого (SHA-256).
//
// Отпечаток детерминирован: одинаковые байтовые последовательности
// всегда дают одинаковый digest. Вычисление потоковое, память
// ограничена независимо от размера входа.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
)

// HexLength — длина отпечатка в hex-представлении (256 бит → 64 символа).
const HexLength = 64

// Digester — инкрементальное вычисление отпечатка.
// Обёртка над hash.Hash для потоковой записи по частям.
type Digester struct {
	h hash.Hash
}

// New создаёт новый Digester.
func New() *Digester {
	return &Digester{h: sha256.New()}
}

// Write добавляет очередную порцию данных. Реализует io.Writer.
func (d *Digester) Write(p []byte) (int, error) {
	return d.h.Write(p)
}

// Sum возвращает итоговый отпечаток: 64 символа lowercase hex.
func (d *Digester) Sum() string {
	return hex.EncodeToString(d.h.Sum(nil))
}

// Sum вычисляет отпечаток байтового среза целиком.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FromReader потоково вычисляет отпечаток содержимого reader.
// Возвращает отпечаток и количество прочитанных байт.
// Ошибка чтения не маскируется, а возвращается вызывающему.
func FromReader(r io.Reader) (digest string, size int64, err error) {
	d := New()
	size, err = io.Copy(d, r)
	if err != nil {
		return "", 0, fmt.Errorf("ошибка чтения содержимого: %w", err)
	}
	return d.Sum(), size, nil
}

// Valid проверяет, что строка — корректный отпечаток:
// ровно 64 символа lowercase hex.
func Valid(s string) bool {
	if len(s) != HexLength {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
