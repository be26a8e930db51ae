package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func assertLossless(t *testing.T, text string, limit int) []string {
	t.Helper()
	chunks := Split(text, limit)
	if got := strings.Join(chunks, ""); got != text {
		t.Fatalf("lossy split: joined length %d, input length %d", len(got), len(text))
	}
	for i, c := range chunks {
		if len(c) > limit {
			t.Fatalf("chunk %d has %d bytes, limit %d", i, len(c), limit)
		}
		if c == "" {
			t.Fatalf("chunk %d is empty", i)
		}
	}
	return chunks
}

func TestSplitShortTextIsSingleChunk(t *testing.T) {
	chunks := Split("hello", 4096)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("got %v", chunks)
	}
	if Split("", 4096) != nil {
		t.Fatal("empty input should yield no chunks")
	}
}

func TestSplitTenThousandAs(t *testing.T) {
	text := strings.Repeat("a", 10000)
	chunks := assertLossless(t, text, 4096)

	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total != 10000 {
		t.Fatalf("total = %d, want 10000", total)
	}
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks for 10000/4096, got %d", len(chunks))
	}
}

func TestSplitPrefersNewline(t *testing.T) {
	// A newline sits inside the tail window; the break must land right
	// after it rather than mid-word.
	text := strings.Repeat("x", 90) + "\n" + strings.Repeat("y", 60)
	chunks := assertLossless(t, text, 100)
	if !strings.HasSuffix(chunks[0], "\n") {
		t.Fatalf("first chunk should end at the newline, got %q...", chunks[0][len(chunks[0])-5:])
	}
}

func TestSplitFallsBackToWhitespace(t *testing.T) {
	text := strings.Repeat("x", 92) + " " + strings.Repeat("y", 40)
	chunks := assertLossless(t, text, 100)
	if !strings.HasSuffix(chunks[0], " ") {
		t.Fatal("first chunk should end at the space")
	}
}

func TestSplitNeverBisectsRunes(t *testing.T) {
	text := strings.Repeat("é", 3000)
	chunks := assertLossless(t, text, 4096)
	for i, c := range chunks {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
	}
}

func TestSplitKeepsEscapePairsTogether(t *testing.T) {
	// A hard cut landing between an escape backslash and its target would
	// leave a chunk ending in a bare backslash, which strict markdown
	// parsers reject.
	limit := 64
	text := strings.Repeat("a", limit-1) + `\.` + strings.Repeat("b", 10)
	chunks := assertLossless(t, text, limit)
	for i, c := range chunks {
		if trailingBackslashes(c)%2 == 1 {
			t.Fatalf("chunk %d ends with a dangling escape backslash: %q", i, c)
		}
	}
	if !strings.HasPrefix(chunks[1], `\.`) {
		t.Fatalf("escape pair split across chunks: %q", chunks[1])
	}

	// An even run is a complete escaped backslash and may end a chunk.
	text = strings.Repeat("a", limit-2) + `\\` + strings.Repeat("b", 10)
	chunks = assertLossless(t, text, limit)
	if !strings.HasSuffix(chunks[0], `\\`) {
		t.Fatalf("escaped backslash needlessly moved: %q", chunks[0])
	}
}

func TestSplitPreservesLeadingAndTrailingWhitespace(t *testing.T) {
	text := "  lead\n" + strings.Repeat("b", 5000) + "\ntrail  \n"
	assertLossless(t, text, 4096)
}
