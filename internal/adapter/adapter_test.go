package adapter

import (
	"strings"
	"testing"

	"github.com/go-telegram/bot/models"
)

func TestEscapeMarkdownIsIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"dots. and! bangs",
		"a_b *c* [link](url) ~strike~ `code`",
		"already \\. escaped \\* here",
		"trailing backslash \\",
		"nested \\\\ double",
	}
	adapters := []Adapter{NewTelegram(), NewWeb()}

	for _, a := range adapters {
		for _, in := range inputs {
			once := a.EscapeMarkdown(in)
			twice := a.EscapeMarkdown(once)
			if once != twice {
				t.Errorf("%s: escape not idempotent for %q: %q != %q", a.Platform(), in, once, twice)
			}
		}
	}
}

func TestTelegramEscapesMarkdownV2Set(t *testing.T) {
	a := NewTelegram()
	got := a.EscapeMarkdown("v2.0 (beta) - done!")
	want := "v2\\.0 \\(beta\\) \\- done\\!"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestTelegramChunkingRespectsLimit(t *testing.T) {
	a := NewTelegram()
	text := strings.Repeat("a", 10000)
	chunks := a.ChunkLongMessage(text)
	if strings.Join(chunks, "") != text {
		t.Fatal("chunking must be lossless")
	}
	for i, c := range chunks {
		if len(c) > TelegramMessageLimit {
			t.Fatalf("chunk %d exceeds limit: %d", i, len(c))
		}
	}
}

func TestTelegramKeyboardLayout(t *testing.T) {
	a := NewTelegram()

	sugs := []string{"one", "two", "three", "four", "five"}
	kb, ok := a.RenderSuggestions(sugs).(*models.ReplyKeyboardMarkup)
	if !ok {
		t.Fatal("want *models.ReplyKeyboardMarkup")
	}
	if len(kb.Keyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(kb.Keyboard))
	}
	if len(kb.Keyboard[0]) != 3 || len(kb.Keyboard[1]) != 2 {
		t.Fatalf("row sizes = %d,%d", len(kb.Keyboard[0]), len(kb.Keyboard[1]))
	}
	if !kb.OneTimeKeyboard || !kb.ResizeKeyboard {
		t.Fatal("keyboard should be one-time and resized")
	}

	// More than 12 suggestions truncate to 12 (4 full rows).
	many := make([]string, 20)
	for i := range many {
		many[i] = "s"
	}
	kb = a.RenderSuggestions(many).(*models.ReplyKeyboardMarkup)
	total := 0
	for _, row := range kb.Keyboard {
		total += len(row)
	}
	if total != 12 || len(kb.Keyboard) != 4 {
		t.Fatalf("total = %d rows = %d, want 12 in 4 rows", total, len(kb.Keyboard))
	}

	if _, ok := a.RenderSuggestions(nil).(*models.ReplyKeyboardRemove); !ok {
		t.Fatal("empty suggestions should remove the keyboard")
	}
}

func TestWebRenderSuggestionsChips(t *testing.T) {
	a := NewWeb()
	chips, ok := a.RenderSuggestions([]string{"x", "y"}).([]SuggestionChip)
	if !ok {
		t.Fatal("want []SuggestionChip")
	}
	if len(chips) != 2 || chips[0].Label != "x" || chips[1].Value != "y" {
		t.Fatalf("got %+v", chips)
	}
}

func TestWebFormatMessagePassesThrough(t *testing.T) {
	a := NewWeb()
	text := "# heading\n*emphasis* kept as-is"
	if got := a.FormatMessage(text); got != text {
		t.Fatalf("got %q", got)
	}
}
