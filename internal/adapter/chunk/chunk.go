// Package chunk splits long messages for platforms with hard length limits.
//
// Splitting is lossless: the concatenation of the returned chunks is exactly
// the input. Break points prefer the last newline within the tail of the
// current window, then any whitespace, and only then a hard cut.
package chunk

import "unicode/utf8"

// tailDivisor bounds how far back from the limit a soft break is searched:
// the window is limit/tailDivisor bytes.
const tailDivisor = 4

// Split cuts text into ordered chunks of at most limit bytes each. It panics
// if limit < utf8.UTFMax, since a single rune might not fit.
func Split(text string, limit int) []string {
	if limit < utf8.UTFMax {
		panic("chunk: limit too small to hold a rune")
	}
	if text == "" {
		return nil
	}
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(text) > limit {
		cut := breakPoint(text, limit)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// breakPoint picks the byte offset to cut at, in (0, limit]. The split keeps
// every byte: the break character stays at the end of the leading chunk.
func breakPoint(text string, limit int) int {
	window := limit / tailDivisor
	lo := limit - window

	// Last newline inside the tail window wins.
	for i := limit - 1; i >= lo; i-- {
		if text[i] == '\n' {
			return i + 1
		}
	}
	// Otherwise any whitespace.
	for i := limit - 1; i >= lo; i-- {
		if text[i] == ' ' || text[i] == '\t' {
			return i + 1
		}
	}

	// Hard cut, stepping back so a multibyte rune is never bisected and a
	// markdown escape backslash is never separated from the character it
	// escapes (a chunk ending in a bare backslash breaks strict parsers).
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if trailingBackslashes(text[:cut])%2 == 1 {
		cut--
	}
	if cut <= 0 {
		return limit
	}
	return cut
}

// trailingBackslashes counts the run of backslashes at the end of s. An odd
// run means the final backslash escapes whatever follows s.
func trailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}
