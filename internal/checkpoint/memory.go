package checkpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/haldis/strand/pkg/models"
)

// MemoryStore is an in-memory Store for standalone runs and tests. It keeps
// deep clones on both paths so callers can never alias stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*models.ConversationState
	closed bool
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: map[string]*models.ConversationState{}}
}

func (m *MemoryStore) Load(ctx context.Context, threadID string) (*models.ConversationState, error) {
	m.mu.RLock()
	st, ok := m.states[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

func (m *MemoryStore) Save(ctx context.Context, threadID string, state *models.ConversationState) error {
	if state == nil {
		return errors.New("state is required")
	}
	state.SchemaVersion = models.SchemaVersion
	clone := state.Clone()
	m.mu.Lock()
	m.states[threadID] = clone
	m.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory store; safe to call repeatedly.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored checkpoints. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
