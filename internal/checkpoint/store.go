// Package checkpoint persists conversation state keyed by thread id.
//
// The backing store is selected once at startup: a SQLite-backed durable
// store for deployments, an in-memory map for standalone runs and tests.
// Writers for the same thread id are serialized by the runtime's per-thread
// lock, so stores only need per-key atomicity, not cross-call locking.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haldis/strand/pkg/models"
)

// ErrNotFound is returned by Load when no checkpoint exists for a thread id.
// Callers use it to distinguish a new conversation from an infrastructure
// failure, which surfaces as a different error.
var ErrNotFound = errors.New("checkpoint not found")

// Store is the durable save/load boundary for conversation state.
type Store interface {
	// Load returns the checkpointed state for a thread id, or ErrNotFound.
	Load(ctx context.Context, threadID string) (*models.ConversationState, error)

	// Save atomically replaces the checkpoint for a thread id. A concurrent
	// reader never observes a partially written state.
	Save(ctx context.Context, threadID string, state *models.ConversationState) error

	// Close releases underlying connections. Idempotent.
	Close() error
}

// envelope is the persisted wire form. The version field lets future layouts
// be migrated on load.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	State         json.RawMessage `json:"state"`
}

func encodeState(state *models.ConversationState) ([]byte, error) {
	if state == nil {
		return nil, errors.New("state is required")
	}
	state.SchemaVersion = models.SchemaVersion
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return json.Marshal(envelope{SchemaVersion: models.SchemaVersion, State: raw})
}

func decodeState(data []byte) (*models.ConversationState, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.SchemaVersion > models.SchemaVersion {
		return nil, fmt.Errorf("checkpoint schema version %d is newer than supported %d", env.SchemaVersion, models.SchemaVersion)
	}
	var state models.ConversationState
	if err := json.Unmarshal(env.State, &state); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	migrate(&state, env.SchemaVersion)
	return &state, nil
}

// migrate brings an older persisted state up to the current layout.
func migrate(state *models.ConversationState, from int) {
	if from < 2 {
		// v1 records predate per-cycle tool result scoping; any persisted
		// results are stale by definition.
		state.ToolResults = map[string]models.ToolResult{}
	}
	if state.ToolResults == nil {
		state.ToolResults = map[string]models.ToolResult{}
	}
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}
	if state.UIContext == nil {
		state.UIContext = map[string]any{}
	}
	state.SchemaVersion = models.SchemaVersion
}
