package adapter

import "github.com/haldis/strand/internal/adapter/chunk"

const (
	// WebMessageLimit is a soft cap on a single websocket text frame; the
	// browser client reassembles chunks, so the limit only bounds frame size.
	WebMessageLimit = 16384

	webMarkdownSpecials = "\\`*_[]"
)

// SuggestionChip is the web client's clickable suggestion element.
type SuggestionChip struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Web renders output for the browser client over websockets. The client
// renders standard markdown, so only a minimal escape set applies.
type Web struct{}

// NewWeb creates a Web adapter.
func NewWeb() *Web { return &Web{} }

func (a *Web) Platform() string { return "web" }

// FormatMessage passes text through unchanged: the web client renders
// markdown natively and the frame limit is handled by chunking.
func (a *Web) FormatMessage(text string) string { return text }

func (a *Web) ChunkLongMessage(text string) []string {
	return chunk.Split(text, WebMessageLimit)
}

func (a *Web) EscapeMarkdown(text string) string {
	return escapeSet(text, webMarkdownSpecials)
}

// RenderSuggestions returns suggestion chips in input order.
func (a *Web) RenderSuggestions(suggestions []string) any {
	chips := make([]SuggestionChip, 0, len(suggestions))
	for _, s := range suggestions {
		chips = append(chips, SuggestionChip{Label: s, Value: s})
	}
	return chips
}
