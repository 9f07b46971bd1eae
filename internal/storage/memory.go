package storage

import (
	"context"
	"sync"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type memoryEntry struct {
	items       []domain.LineItem
	hasItems    bool
	cartID      string
	checkoutURL string
}

// MemoryStorage keeps entries in process memory. Nothing survives a restart.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]*memoryEntry
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{sessions: make(map[string]*memoryEntry)}
}

func (m *MemoryStorage) LoadItems(_ context.Context, sessionID string) ([]domain.LineItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok || !e.hasItems {
		return nil, ErrNotFound
	}
	return copyItems(e.items), nil
}

func (m *MemoryStorage) SaveItems(_ context.Context, sessionID string, items []domain.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entry(sessionID)
	e.items = copyItems(items)
	e.hasItems = true
	return nil
}

func (m *MemoryStorage) LoadCartID(_ context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok || e.cartID == "" {
		return "", ErrNotFound
	}
	return e.cartID, nil
}

func (m *MemoryStorage) SaveCartID(_ context.Context, sessionID string, cartID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(sessionID).cartID = cartID
	return nil
}

func (m *MemoryStorage) LoadCheckoutURL(_ context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[sessionID]
	if !ok || e.checkoutURL == "" {
		return "", ErrNotFound
	}
	return e.checkoutURL, nil
}

func (m *MemoryStorage) SaveCheckoutURL(_ context.Context, sessionID string, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(sessionID).checkoutURL = url
	return nil
}

func (m *MemoryStorage) Clear(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// caller holds mu
func (m *MemoryStorage) entry(sessionID string) *memoryEntry {
	e, ok := m.sessions[sessionID]
	if !ok {
		e = &memoryEntry{}
		m.sessions[sessionID] = e
	}
	return e
}

func copyItems(items []domain.LineItem) []domain.LineItem {
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out
}
