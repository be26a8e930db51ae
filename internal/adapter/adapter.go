// Package adapter renders core output for a specific platform surface.
//
// Adapters are a capability set of pure functions: they hold no conversation
// state, make no business decisions, and are called only at the output
// boundary, never from inside the reasoning loop.
package adapter

// Adapter formats assistant output for one platform.
type Adapter interface {
	// Platform returns the platform identifier this adapter serves.
	Platform() string

	// FormatMessage applies platform markup rules without changing the
	// semantic content of text.
	FormatMessage(text string) string

	// ChunkLongMessage splits text into ordered chunks within the platform
	// length limit. Joining the chunks reproduces text exactly.
	ChunkLongMessage(text string) []string

	// EscapeMarkdown escapes platform markup characters. Idempotent:
	// escaping already-escaped text does not double-escape.
	EscapeMarkdown(text string) string

	// RenderSuggestions turns suggestion strings into the platform's UI
	// object (reply keyboard, chip list). Pure, no I/O.
	RenderSuggestions(suggestions []string) any
}

// escapeSet escapes every byte of specials in text with a backslash, leaving
// already-escaped sequences untouched so the operation is idempotent.
func escapeSet(text, specials string) string {
	needs := func(b byte) bool {
		for i := 0; i < len(specials); i++ {
			if specials[i] == b {
				return true
			}
		}
		return false
	}

	var out []byte
	for i := 0; i < len(text); i++ {
		b := text[i]
		if b == '\\' && i+1 < len(text) && (needs(text[i+1]) || text[i+1] == '\\') {
			// Existing escape sequence passes through unchanged.
			out = append(out, b, text[i+1])
			i++
			continue
		}
		if needs(b) {
			out = append(out, '\\')
		}
		out = append(out, b)
	}
	return string(out)
}
