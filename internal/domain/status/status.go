// Пакет status — конечный автомат статусов обработки записи.
//
// Жизненный цикл: pending → processing → {completed, failed}.
// completed и failed — терминальные: повторное применение того же
// терминального статуса с тем же chunk_count идемпотентно,
// применение другого терминального статуса — ошибка STATE_CONFLICT.
//
// Сам автомат stateless: текущий статус хранится в записи,
// хранилища вызывают Check перед применением перехода.
package status

import (
	"fmt"

	"github.com/bigkaa/godedup/internal/domain/model"
)

// Коды ошибок переходов.
const (
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeStateConflict     = "STATE_CONFLICT"
	CodeInvalidChunkCount = "INVALID_CHUNK_COUNT"
)

// validTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых статусов.
var validTransitions = map[model.RecordStatus]map[model.RecordStatus]bool{
	model.StatusPending:    {model.StatusProcessing: true, model.StatusFailed: true},
	model.StatusProcessing: {model.StatusCompleted: true, model.StatusFailed: true},
	model.StatusCompleted:  {}, // Терминальный
	model.StatusFailed:     {}, // Терминальный
}

// TransitionError — ошибка перехода между статусами.
type TransitionError struct {
	Code    string // Машиночитаемый код (INVALID_TRANSITION, STATE_CONFLICT, INVALID_CHUNK_COUNT)
	Message string // Человекочитаемое описание
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsStateConflict проверяет, является ли ошибка конфликтом терминальных статусов.
func IsStateConflict(err error) bool {
	te, ok := err.(*TransitionError)
	return ok && te.Code == CodeStateConflict
}

// Check валидирует переход current → next.
//
// Возвращает:
//   - apply=true, err=nil — переход допустим, хранилище применяет его
//   - apply=false, err=nil — идемпотентный повтор, применять нечего
//   - apply=false, err != nil — переход запрещён
//
// Правила chunk_count: обязателен и >= 1 для completed (ноль чанков —
// это failed по соглашению, маппинг делает вызывающий); для остальных
// целевых статусов chunk_count не передаётся.
func Check(current model.RecordStatus, currentChunks *int, next model.RecordStatus, nextChunks *int) (apply bool, err error) {
	if !model.IsValidStatus(next) {
		return false, &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("недопустимый целевой статус: %q", next),
		}
	}

	// chunk_count валиден только вместе с completed
	if next == model.StatusCompleted {
		if nextChunks == nil || *nextChunks < 1 {
			return false, &TransitionError{
				Code:    CodeInvalidChunkCount,
				Message: "переход в completed требует chunk_count >= 1",
			}
		}
	} else if nextChunks != nil {
		return false, &TransitionError{
			Code:    CodeInvalidChunkCount,
			Message: fmt.Sprintf("chunk_count не применим для статуса %s", next),
		}
	}

	// Повторное применение того же статуса
	if next == current {
		if current == model.StatusCompleted && !equalChunks(currentChunks, nextChunks) {
			return false, &TransitionError{
				Code: CodeStateConflict,
				Message: fmt.Sprintf("completed уже зафиксирован с chunk_count=%s, повтор с chunk_count=%s",
					chunksString(currentChunks), chunksString(nextChunks)),
			}
		}
		return false, nil
	}

	// Перезапись одного терминального статуса другим — баг вызывающего кода
	if current.IsTerminal() {
		return false, &TransitionError{
			Code:    CodeStateConflict,
			Message: fmt.Sprintf("статус %s терминальный, переход в %s запрещён", current, next),
		}
	}

	transitions, ok := validTransitions[current]
	if !ok || !transitions[next] {
		return false, &TransitionError{
			Code:    CodeInvalidTransition,
			Message: fmt.Sprintf("переход %s → %s недопустим", current, next),
		}
	}

	return true, nil
}

// equalChunks сравнивает два опциональных chunk_count.
func equalChunks(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// chunksString форматирует опциональный chunk_count для сообщений об ошибках.
func chunksString(c *int) string {
	if c == nil {
		return "nil"
	}
	return fmt.Sprintf("%d", *c)
}
