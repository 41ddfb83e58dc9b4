package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

// TestSum проверяет вычисление отпечатка от байтового среза.
func TestSum(t *testing.T) {
	content := []byte("Hello, World! Тестовые данные для проверки.")

	expected := sha256.Sum256(content)
	got := Sum(content)

	if got != hex.EncodeToString(expected[:]) {
		t.Errorf("отпечаток: ожидалось %s, получено %s", hex.EncodeToString(expected[:]), got)
	}
	if len(got) != HexLength {
		t.Errorf("длина отпечатка: ожидалось %d, получено %d", HexLength, len(got))
	}
}

// TestSum_Deterministic проверяет детерминированность: одно содержимое —
// один отпечаток.
func TestSum_Deterministic(t *testing.T) {
	content := []byte("одинаковое содержимое")

	if Sum(content) != Sum(content) {
		t.Error("отпечаток одного содержимого должен быть одинаковым")
	}
}

// TestSum_DiffersByContent проверяет, что разное содержимое даёт разные отпечатки.
func TestSum_DiffersByContent(t *testing.T) {
	a := Sum([]byte("содержимое A"))
	b := Sum([]byte("содержимое B"))

	if a == b {
		t.Error("разное содержимое не должно давать одинаковый отпечаток")
	}
}

// TestFromReader проверяет потоковое вычисление отпечатка и размера.
func TestFromReader(t *testing.T) {
	content := []byte("потоковое содержимое для проверки")

	digest, size, err := FromReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if digest != Sum(content) {
		t.Errorf("отпечаток: ожидалось %s, получено %s", Sum(content), digest)
	}
	if size != int64(len(content)) {
		t.Errorf("размер: ожидалось %d, получено %d", len(content), size)
	}
}

// TestFromReader_Empty проверяет отпечаток пустого потока.
func TestFromReader_Empty(t *testing.T) {
	digest, size, err := FromReader(bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	if size != 0 {
		t.Errorf("размер пустого потока: ожидалось 0, получено %d", size)
	}
	// SHA-256 пустой строки — известная константа
	expected := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if digest != expected {
		t.Errorf("отпечаток пустого потока: ожидалось %s, получено %s", expected, digest)
	}
}

// TestDigester проверяет инкрементальное вычисление отпечатка.
func TestDigester(t *testing.T) {
	part1 := []byte("первая часть ")
	part2 := []byte("вторая часть")

	d := New()
	if _, err := d.Write(part1); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if _, err := d.Write(part2); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}

	whole := append(append([]byte{}, part1...), part2...)
	if d.Sum() != Sum(whole) {
		t.Error("инкрементальный отпечаток не совпадает с отпечатком целого")
	}
}

// TestValid проверяет валидацию формата отпечатка.
func TestValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"корректный", strings.Repeat("ab12", 16), true},
		{"пустой", "", false},
		{"короткий", "abc123", false},
		{"длинный", strings.Repeat("a", 65), false},
		{"верхний регистр", strings.Repeat("AB12", 16), false},
		{"не hex", strings.Repeat("zz12", 16), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Valid(tt.input); got != tt.want {
				t.Errorf("Valid(%q): ожидалось %v, получено %v", tt.input, tt.want, got)
			}
		})
	}
}

// TestValid_RealSum проверяет, что реальный отпечаток проходит валидацию.
func TestValid_RealSum(t *testing.T) {
	if !Valid(Sum([]byte("любое содержимое"))) {
		t.Error("реальный отпечаток должен проходить валидацию")
	}
}
