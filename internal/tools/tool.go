// Package tools provides the capability registry and the built-in tools the
// reasoning loop can invoke. Every bound tool closes over its conversation
// context; tool implementations never read ambient or global state.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/haldis/strand/internal/search"
	"github.com/haldis/strand/internal/subagent"
	"github.com/haldis/strand/internal/transcript"
	"github.com/haldis/strand/internal/vision"
	"github.com/haldis/strand/pkg/models"
)

// Tool is an executable capability exposed to the language model.
type Tool interface {
	// Name returns the tool name for LLM function calling.
	Name() string

	// Description tells the LLM when to use the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Failures that the conversation should survive
	// are reported as displayable text, not as errors.
	Execute(ctx context.Context, params json.RawMessage) (*Result, error)
}

// Result is a tool's output. Content is always displayable text: the model
// must receive an explanation, never a structural absence.
type Result struct {
	Content string
	IsError bool
}

// Binding carries the per-conversation context a factory closes its tools
// over, plus the backends tools are allowed to reach.
type Binding struct {
	UserID         int64
	ThreadID       string
	Platform       models.Platform
	Language       string
	KnowledgeBases []string

	// Search is the knowledge-base backend; nil means the feature is
	// disabled by configuration.
	Search search.Service

	// Transcripts is the video transcript backend; nil means unavailable.
	Transcripts transcript.Fetcher

	// TranscriptsEnabled gates the transcript feature independently of
	// backend availability.
	TranscriptsEnabled bool

	// Vision is the image description backend; nil means unavailable.
	Vision vision.Describer

	// VisionEnabled gates the image description feature independently of
	// backend availability.
	VisionEnabled bool

	// Personas lists and loads persona bundles.
	Personas *subagent.Loader

	// ActivePersona is the id of the persona currently applied to the
	// conversation; empty when running on defaults.
	ActivePersona string

	// SwitchPersona applies a persona change to the conversation state.
	// Set by the runtime; the switch is a tool-triggered side effect, not
	// a direct front-end mutation.
	SwitchPersona func(personaID string) error

	Logger *slog.Logger
}
