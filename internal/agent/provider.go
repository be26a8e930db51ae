package agent

import (
	"context"

	"github.com/haldis/strand/internal/tools"
	"github.com/haldis/strand/pkg/models"
)

// Request is one reasoning step handed to a language-model backend. The
// provider sees the rendered system prompt, the full turn history, and the
// schemas of the currently bound tools.
type Request struct {
	System string
	Turns  []models.Turn
	Tools  []tools.Tool

	// MaxTokens caps the response; zero uses the provider default.
	MaxTokens int
}

// Decision is the provider's answer: either terminal assistant text, a list
// of tool calls to execute, or both. When both are present the loop executes
// the tools and re-evaluates on the next cycle; a decision with neither is
// malformed and ends the turn.
type Decision struct {
	Text      string
	ToolCalls []models.ToolCall
}

// IsToolCall reports whether the decision requests tool execution. Tool
// calls take priority over terminal text.
func (d *Decision) IsToolCall() bool { return d != nil && len(d.ToolCalls) > 0 }

// IsTerminal reports whether the decision carries final assistant text and
// no tool calls.
func (d *Decision) IsTerminal() bool { return d != nil && d.Text != "" && len(d.ToolCalls) == 0 }

// IsMalformed reports whether the decision carries neither text nor calls.
func (d *Decision) IsMalformed() bool { return d == nil || (d.Text == "" && len(d.ToolCalls) == 0) }

// Provider is the language-model boundary. The loop depends only on
// receiving a terminal response or a structured tool-call request.
type Provider interface {
	Decide(ctx context.Context, req *Request) (*Decision, error)
}
