package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/haldis/strand/pkg/models"
)

func sampleState(threadID string) *models.ConversationState {
	s := models.NewConversationState(threadID, 42, models.PlatformTelegram, "en")
	s.MergeTurns(
		models.Turn{ID: "m1", Role: models.RoleUser, Content: "what did alice say?", CreatedAt: time.Unix(1700000000, 0).UTC()},
		models.Turn{ID: "m2", Role: models.RoleAssistant, Content: "checking", CreatedAt: time.Unix(1700000001, 0).UTC()},
	)
	s.KnowledgeBases = []string{"kb-user-42"}
	s.EnabledTools = []string{"knowledge_base"}
	s.Suggestions = []string{"Tell me more"}
	s.SuggestionHints = []string{"ask about postgres"}
	s.SubAgentID = "general"
	return s
}

func testRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("load missing: got %v, want ErrNotFound", err)
	}

	want := sampleState("t1")
	if err := store.Save(ctx, "t1", want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got.ThreadID != want.ThreadID || got.UserID != want.UserID || got.Platform != want.Platform {
		t.Errorf("identity fields differ: got %+v", got)
	}
	if !reflect.DeepEqual(got.Turns, want.Turns) {
		t.Errorf("turns differ:\n got %+v\nwant %+v", got.Turns, want.Turns)
	}
	if !reflect.DeepEqual(got.KnowledgeBases, want.KnowledgeBases) {
		t.Errorf("knowledge bases differ: %v vs %v", got.KnowledgeBases, want.KnowledgeBases)
	}
	if !reflect.DeepEqual(got.Suggestions, want.Suggestions) {
		t.Errorf("suggestions differ: %v vs %v", got.Suggestions, want.Suggestions)
	}
	if got.SchemaVersion != models.SchemaVersion {
		t.Errorf("schema version = %d, want %d", got.SchemaVersion, models.SchemaVersion)
	}

	// Saving again for the same key replaces, never duplicates.
	want.MergeTurns(models.Turn{ID: "m3", Role: models.RoleUser, Content: "more"})
	if err := store.Save(ctx, "t1", want); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, err = store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if len(got.Turns) != 3 {
		t.Errorf("after resave got %d turns, want 3", len(got.Turns))
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	testRoundTrip(t, store)
}

func TestMemoryStoreHandsOutClones(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	saved := sampleState("t1")
	if err := store.Save(ctx, "t1", saved); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Mutating the caller's copy after Save must not leak into the store.
	saved.Turns[0].Content = "tampered"
	saved.KnowledgeBases[0] = "kb-evil"

	got, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Turns[0].Content != "what did alice say?" {
		t.Fatalf("stored turn aliased: %q", got.Turns[0].Content)
	}
	if got.KnowledgeBases[0] != "kb-user-42" {
		t.Fatalf("stored knowledge bases aliased: %v", got.KnowledgeBases)
	}

	// And mutating a loaded copy must not corrupt subsequent loads.
	got.Turns[0].Content = "also tampered"
	again, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Turns[0].Content != "what did alice say?" {
		t.Fatalf("loaded state aliased: %q", again.Turns[0].Content)
	}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	defer store.Close()
	testRoundTrip(t, store)
}

func TestCloseIsIdempotent(t *testing.T) {
	mem := NewMemoryStore()
	if err := mem.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := mem.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	sq, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := sq.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestDecodeMigratesV1Records(t *testing.T) {
	// v1 records carried tool results across turns; they must be dropped
	// on load.
	state := sampleState("t-old")
	state.ToolResults = map[string]models.ToolResult{
		"stale": {ToolCallID: "stale", Content: "old result"},
	}
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(envelope{SchemaVersion: 1, State: raw})
	if err != nil {
		t.Fatal(err)
	}

	got, err := decodeState(data)
	if err != nil {
		t.Fatalf("decode v1: %v", err)
	}
	if len(got.ToolResults) != 0 {
		t.Errorf("stale tool results survived migration: %v", got.ToolResults)
	}
	if got.SchemaVersion != models.SchemaVersion {
		t.Errorf("schema version = %d, want %d", got.SchemaVersion, models.SchemaVersion)
	}
}

func TestDecodeRejectsNewerSchema(t *testing.T) {
	data, err := json.Marshal(envelope{SchemaVersion: models.SchemaVersion + 1, State: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := decodeState(data); err == nil {
		t.Fatal("expected error for newer schema version")
	}
}

func TestSQLitePrune(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Save(ctx, "t1", sampleState("t1")); err != nil {
		t.Fatal(err)
	}
	n, err := store.PruneOlderThan(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}
	if _, err := store.Load(ctx, "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after prune: got %v, want ErrNotFound", err)
	}
}
