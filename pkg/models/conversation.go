package models

import (
	"encoding/json"
	"time"
)

// SchemaVersion is the current version of the persisted conversation layout.
// The checkpoint store migrates older records forward on load.
const SchemaVersion = 2

// Platform identifies which front end drives a conversation.
type Platform string

const (
	PlatformWeb      Platform = "web"
	PlatformTelegram Platform = "telegram"
)

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool {
	return p == PlatformWeb || p == PlatformTelegram
}

// Role indicates the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// NextAction is the routing decision computed by the reasoning step.
// It is recomputed every cycle, never patched incrementally.
type NextAction string

const (
	// ActionUnset is the only valid initial value.
	ActionUnset NextAction = ""
	ActionTools NextAction = "tools"
	ActionEnd   NextAction = "end"
)

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a single tool call.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Turn is one entry in a conversation's ordered history.
type Turn struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// SubAgentMeta describes the active persona bundle.
type SubAgentMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
}

// SubAgentPersona holds the behavioural description of the active persona.
type SubAgentPersona struct {
	Role               string   `json:"role,omitempty"`
	Identity           string   `json:"identity,omitempty"`
	CommunicationStyle string   `json:"communication_style,omitempty"`
	Principles         []string `json:"principles,omitempty"`
}

// ConversationState is the canonical, serializable record of one conversation.
// It is the unit of persistence and of concurrency control: exactly one state
// exists per ThreadID, and ThreadID is the sole serialization key.
type ConversationState struct {
	SchemaVersion int `json:"schema_version"`

	// ThreadID never changes after creation.
	ThreadID string   `json:"thread_id"`
	UserID   int64    `json:"user_id"`
	Platform Platform `json:"platform"`

	// Turns is append-only ordered history. Use MergeTurns to add entries.
	Turns []Turn `json:"turns"`

	Language       string   `json:"language"`
	KnowledgeBases []string `json:"knowledge_bases,omitempty"`
	EnabledTools   []string `json:"enabled_tools,omitempty"`
	IsGuest        bool     `json:"is_guest,omitempty"`

	SubAgentID      string          `json:"sub_agent_id"`
	SubAgentMeta    SubAgentMeta    `json:"sub_agent_metadata"`
	SubAgentPersona SubAgentPersona `json:"sub_agent_persona"`
	SystemPrompt    string          `json:"system_prompt,omitempty"`

	// Suggestions are user-facing follow-up prompts, regenerated at end of turn.
	Suggestions []string `json:"conversation_suggestions,omitempty"`
	// SuggestionHints guide suggestion generation and are never shown directly.
	SuggestionHints []string `json:"suggestion_hints,omitempty"`

	// ToolResults is scoped to a single reasoning/tool cycle and fully
	// replaced at the start of each new cycle.
	ToolResults map[string]ToolResult `json:"tool_results,omitempty"`

	NextAction NextAction `json:"next_action,omitempty"`

	// Metadata and UIContext are non-authoritative side channels; control
	// flow must never depend on them.
	Metadata  map[string]any `json:"metadata,omitempty"`
	UIContext map[string]any `json:"ui_context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversationState creates the state for a brand-new thread.
func NewConversationState(threadID string, userID int64, platform Platform, language string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		SchemaVersion: SchemaVersion,
		ThreadID:      threadID,
		UserID:        userID,
		Platform:      platform,
		Language:      language,
		IsGuest:       platform == PlatformWeb,
		ToolResults:   map[string]ToolResult{},
		Metadata:      map[string]any{},
		UIContext:     map[string]any{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MergeTurns appends new turns to the history. Existing turns are never
// reordered or dropped; a turn whose ID already exists is merged in place
// (last write wins), so replays are idempotent.
func (s *ConversationState) MergeTurns(turns ...Turn) {
	if len(turns) == 0 {
		return
	}
	index := make(map[string]int, len(s.Turns))
	for i, t := range s.Turns {
		index[t.ID] = i
	}
	for _, t := range turns {
		if t.ID == "" {
			s.Turns = append(s.Turns, t)
			continue
		}
		if i, ok := index[t.ID]; ok {
			s.Turns[i] = t
			continue
		}
		index[t.ID] = len(s.Turns)
		s.Turns = append(s.Turns, t)
	}
}

// LastAssistantTurn returns the most recent assistant turn, or nil.
func (s *ConversationState) LastAssistantTurn() *Turn {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == RoleAssistant {
			return &s.Turns[i]
		}
	}
	return nil
}

// ResetCycle clears per-cycle fields before a new reasoning step. Stale tool
// results from a previous cycle must never be visible to the next one.
func (s *ConversationState) ResetCycle() {
	s.ToolResults = map[string]ToolResult{}
	s.NextAction = ActionUnset
}

// Clone returns a deep copy of the state. Stores hand out clones so callers
// can never alias persisted data.
func (s *ConversationState) Clone() *ConversationState {
	if s == nil {
		return nil
	}
	c := *s
	c.Turns = append([]Turn(nil), s.Turns...)
	for i, t := range c.Turns {
		c.Turns[i].ToolCalls = append([]ToolCall(nil), t.ToolCalls...)
		c.Turns[i].ToolResults = append([]ToolResult(nil), t.ToolResults...)
	}
	c.KnowledgeBases = append([]string(nil), s.KnowledgeBases...)
	c.EnabledTools = append([]string(nil), s.EnabledTools...)
	c.Suggestions = append([]string(nil), s.Suggestions...)
	c.SuggestionHints = append([]string(nil), s.SuggestionHints...)
	c.SubAgentPersona.Principles = append([]string(nil), s.SubAgentPersona.Principles...)
	if s.ToolResults != nil {
		c.ToolResults = make(map[string]ToolResult, len(s.ToolResults))
		for k, v := range s.ToolResults {
			c.ToolResults[k] = v
		}
	}
	c.Metadata = cloneAnyMap(s.Metadata)
	c.UIContext = cloneAnyMap(s.UIContext)
	return &c
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
