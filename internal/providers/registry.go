package providers

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/models"
)

// Manager caches constructed adapters keyed by model id. Entries carry
// the model's UpdatedAt; a config change makes the cached adapter stale
// and the next lookup rebuilds it.
type Manager struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]managerEntry
	timeout time.Duration
}

type managerEntry struct {
	provider  Provider
	updatedAt time.Time
}

// NewManager creates a new adapter manager. Timeout applies to every
// constructed adapter's HTTP client.
func NewManager(timeout time.Duration) *Manager {
	return &Manager{
		entries: make(map[uuid.UUID]managerEntry),
		timeout: timeout,
	}
}

// For returns the adapter for a model, constructing it on first use and
// rebuilding it when the model row has changed since the cached build.
func (m *Manager) For(model *models.ModelConfig) (Provider, error) {
	m.mu.RLock()
	entry, found := m.entries[model.ID]
	m.mu.RUnlock()

	if found && entry.updatedAt.Equal(model.UpdatedAt) {
		return entry.provider, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the write lock
	if entry, found := m.entries[model.ID]; found {
		if entry.updatedAt.Equal(model.UpdatedAt) {
			return entry.provider, nil
		}
		entry.provider.Close()
		delete(m.entries, model.ID)
	}

	provider, err := New(FromModel(model, m.timeout))
	if err != nil {
		return nil, err
	}

	m.entries[model.ID] = managerEntry{
		provider:  provider,
		updatedAt: model.UpdatedAt,
	}

	return provider, nil
}

// Invalidate evicts the cached adapter for a model
func (m *Manager) Invalidate(modelID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, found := m.entries[modelID]; found {
		entry.provider.Close()
		delete(m.entries, modelID)
	}
}

// Len returns the number of cached adapters
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries)
}

// Close evicts and closes every cached adapter
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.entries {
		entry.provider.Close()
		delete(m.entries, id)
	}

	return nil
}
