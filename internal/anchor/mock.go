package anchor

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockLedger — сценарный клиент для тестов и локальной разработки.
// Поведение задается полями-хуками; без хуков ведет себя как
// исправный ledger с in-memory хранилищем дайджестов.
type MockLedger struct {
	mu       sync.Mutex
	anchored map[string]string // digest -> entry id

	// AnchorErr подменяет результат Anchor (например ErrUnavailable).
	AnchorErr error
	// OnAnchor вызывается перед каждой подачей; удобно блокировать
	// якорение, чтобы подержать батч "в полете".
	OnAnchor func(digest string)

	AnchorCalls int
}

func NewMockLedger() *MockLedger {
	return &MockLedger{anchored: make(map[string]string)}
}

func (m *MockLedger) Anchor(ctx context.Context, digest string) (string, error) {
	m.mu.Lock()
	m.AnchorCalls++
	hook := m.OnAnchor
	m.mu.Unlock()

	if hook != nil {
		hook(digest)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.AnchorErr != nil {
		return "", m.AnchorErr
	}
	if _, ok := m.anchored[digest]; ok {
		return "", ErrRedundant
	}

	ref := "ledger-entry-" + uuid.NewString()
	m.anchored[digest] = ref
	return ref, nil
}

func (m *MockLedger) IsAnchored(ctx context.Context, digest string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.anchored[digest]
	return ok, nil
}

// Preanchor регистрирует дайджест заранее: следующий Anchor по нему
// вернет ErrRedundant.
func (m *MockLedger) Preanchor(digest string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anchored[digest] = "ledger-entry-" + uuid.NewString()
}
