package models

// StreamEventType identifies the kind of event streamed back to a front end.
type StreamEventType string

const (
	EventTextChunk   StreamEventType = "text_chunk"
	EventSuggestions StreamEventType = "suggestions"
	EventStateUpdate StreamEventType = "state_update"
)

// StreamEvent is one entry in the ordered event stream for a turn. Events are
// emitted in generation order and correspond 1:1 with execution order; no
// reordering is permitted anywhere between the loop and the front end.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	// Text is set for text_chunk events.
	Text string `json:"text,omitempty"`

	// Suggestions is set for suggestions events.
	Suggestions []string `json:"suggestions,omitempty"`

	// State carries a snapshot for state_update events (tool activity,
	// persona switches). Payload keys are platform-agnostic.
	State map[string]any `json:"state,omitempty"`
}

// TurnRequest is a front-end turn submission.
type TurnRequest struct {
	ThreadID       string   `json:"thread_id"`
	UserID         int64    `json:"user_id"`
	Platform       Platform `json:"platform"`
	Language       string   `json:"language,omitempty"`
	Text           string   `json:"text"`
	KnowledgeBases []string `json:"knowledge_bases,omitempty"`
	EnabledTools   []string `json:"enabled_tools,omitempty"`
}
