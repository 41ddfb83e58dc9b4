package status

import (
	"testing"

	"github.com/bigkaa/godedup/internal/domain/model"
)

func intPtr(n int) *int { return &n }

// TestCheck_ValidTransitions проверяет все допустимые переходы.
func TestCheck_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current model.RecordStatus
		next    model.RecordStatus
		chunks  *int
	}{
		{"pending → processing", model.StatusPending, model.StatusProcessing, nil},
		{"pending → failed", model.StatusPending, model.StatusFailed, nil},
		{"processing → completed", model.StatusProcessing, model.StatusCompleted, intPtr(3)},
		{"processing → failed", model.StatusProcessing, model.StatusFailed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apply, err := Check(tt.current, nil, tt.next, tt.chunks)
			if err != nil {
				t.Fatalf("неожиданная ошибка: %v", err)
			}
			if !apply {
				t.Error("ожидалось apply=true для допустимого перехода")
			}
		})
	}
}

// TestCheck_InvalidTransitions проверяет запрещённые переходы.
func TestCheck_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		current model.RecordStatus
		next    model.RecordStatus
		chunks  *int
		code    string
	}{
		{"pending → completed", model.StatusPending, model.StatusCompleted, intPtr(1), CodeInvalidTransition},
		{"processing → pending", model.StatusProcessing, model.StatusPending, nil, CodeInvalidTransition},
		{"completed → failed", model.StatusCompleted, model.StatusFailed, nil, CodeStateConflict},
		{"failed → completed", model.StatusFailed, model.StatusCompleted, intPtr(1), CodeStateConflict},
		{"completed → processing", model.StatusCompleted, model.StatusProcessing, nil, CodeStateConflict},
		{"failed → processing", model.StatusFailed, model.StatusProcessing, nil, CodeStateConflict},
		{"неизвестный статус", model.StatusPending, model.RecordStatus("archived"), nil, CodeInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apply, err := Check(tt.current, nil, tt.next, tt.chunks)
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if apply {
				t.Error("apply должен быть false при ошибке")
			}
			te, ok := err.(*TransitionError)
			if !ok {
				t.Fatalf("ожидалась *TransitionError, получено %T", err)
			}
			if te.Code != tt.code {
				t.Errorf("код ошибки: ожидалось %s, получено %s", tt.code, te.Code)
			}
		})
	}
}

// TestCheck_ChunkCountRules проверяет правила chunk_count.
func TestCheck_ChunkCountRules(t *testing.T) {
	tests := []struct {
		name    string
		current model.RecordStatus
		next    model.RecordStatus
		chunks  *int
	}{
		{"completed без chunk_count", model.StatusProcessing, model.StatusCompleted, nil},
		{"completed с нулём", model.StatusProcessing, model.StatusCompleted, intPtr(0)},
		{"completed с отрицательным", model.StatusProcessing, model.StatusCompleted, intPtr(-1)},
		{"processing с chunk_count", model.StatusPending, model.StatusProcessing, intPtr(5)},
		{"failed с chunk_count", model.StatusProcessing, model.StatusFailed, intPtr(5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Check(tt.current, nil, tt.next, tt.chunks)
			te, ok := err.(*TransitionError)
			if !ok {
				t.Fatalf("ожидалась *TransitionError, получено %v", err)
			}
			if te.Code != CodeInvalidChunkCount {
				t.Errorf("код ошибки: ожидалось %s, получено %s", CodeInvalidChunkCount, te.Code)
			}
		})
	}
}

// TestCheck_IdempotentRepeat проверяет идемпотентность повторов.
func TestCheck_IdempotentRepeat(t *testing.T) {
	// Повтор completed с тем же chunk_count — no-op
	apply, err := Check(model.StatusCompleted, intPtr(4), model.StatusCompleted, intPtr(4))
	if err != nil {
		t.Fatalf("повтор completed с тем же chunk_count должен быть идемпотентным: %v", err)
	}
	if apply {
		t.Error("идемпотентный повтор не должен применяться")
	}

	// Повтор failed — no-op
	apply, err = Check(model.StatusFailed, nil, model.StatusFailed, nil)
	if err != nil {
		t.Fatalf("повтор failed должен быть идемпотентным: %v", err)
	}
	if apply {
		t.Error("идемпотентный повтор не должен применяться")
	}

	// Повтор processing — no-op
	apply, err = Check(model.StatusProcessing, nil, model.StatusProcessing, nil)
	if err != nil {
		t.Fatalf("повтор processing должен быть идемпотентным: %v", err)
	}
	if apply {
		t.Error("идемпотентный повтор не должен применяться")
	}
}

// TestCheck_CompletedConflictingChunks проверяет конфликт повтора
// completed с другим chunk_count.
func TestCheck_CompletedConflictingChunks(t *testing.T) {
	_, err := Check(model.StatusCompleted, intPtr(4), model.StatusCompleted, intPtr(7))
	if !IsStateConflict(err) {
		t.Errorf("повтор completed с другим chunk_count должен давать STATE_CONFLICT, получено %v", err)
	}
}

// TestIsStateConflict проверяет распознавание конфликта.
func TestIsStateConflict(t *testing.T) {
	if IsStateConflict(nil) {
		t.Error("nil не является конфликтом")
	}
	if IsStateConflict(&TransitionError{Code: CodeInvalidTransition}) {
		t.Error("INVALID_TRANSITION не является конфликтом")
	}
	if !IsStateConflict(&TransitionError{Code: CodeStateConflict}) {
		t.Error("STATE_CONFLICT должен распознаваться")
	}
}

// TestIsTerminal проверяет терминальность статусов.
func TestIsTerminal(t *testing.T) {
	if model.StatusPending.IsTerminal() {
		t.Error("pending не терминальный")
	}
	if model.StatusProcessing.IsTerminal() {
		t.Error("processing не терминальный")
	}
	if !model.StatusCompleted.IsTerminal() {
		t.Error("completed терминальный")
	}
	if !model.StatusFailed.IsTerminal() {
		t.Error("failed терминальный")
	}
}
