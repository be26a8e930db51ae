package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/haldis/strand/internal/observability"
	"github.com/haldis/strand/internal/search"
	"github.com/haldis/strand/internal/subagent"
)

type stubSearch struct {
	hits  []search.Hit
	err   error
	calls int
}

func (s *stubSearch) Search(ctx context.Context, indexes []string, query string, f search.Filters, maxResults int) ([]search.Hit, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if maxResults < len(s.hits) {
		return s.hits[:maxResults], nil
	}
	return s.hits, nil
}

func (s *stubSearch) Close() error { return nil }

type stubFetcher struct {
	text string
	err  error
}

func (f *stubFetcher) Fetch(ctx context.Context, videoURL, language string) (string, error) {
	return f.text, f.err
}

type stubDescriber struct {
	text       string
	err        error
	lastPrompt string
}

func (d *stubDescriber) Describe(ctx context.Context, imageURL, prompt string) (string, error) {
	d.lastPrompt = prompt
	return d.text, d.err
}

func testBinding(t *testing.T) Binding {
	t.Helper()
	loader, err := subagent.NewLoader("", observability.NopLogger())
	if err != nil {
		t.Fatalf("loader: %v", err)
	}
	return Binding{
		UserID:         42,
		ThreadID:       "web:42",
		Language:       "en",
		KnowledgeBases: []string{"kb-user-42"},
		Personas:       loader,
		Logger:         observability.NopLogger(),
	}
}

func execute(t *testing.T, tool Tool, params string) *Result {
	t.Helper()
	res, err := tool.Execute(context.Background(), json.RawMessage(params))
	if err != nil {
		t.Fatalf("Execute(%s): %v", tool.Name(), err)
	}
	if res == nil || res.Content == "" {
		t.Fatalf("Execute(%s): empty result", tool.Name())
	}
	return res
}

func TestRegistrySkipsUnknownCapabilities(t *testing.T) {
	r := NewDefaultRegistry(observability.NopLogger())
	bound := r.Bind(testBinding(t), []string{"knowledge_base", "nonexistent", "persona"})

	var names []string
	for _, tool := range bound {
		names = append(names, tool.Name())
	}
	want := []string{"search_knowledge_base", "list_personas", "get_active_persona", "switch_persona"}
	if len(names) != len(want) {
		t.Fatalf("bound %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("bound %v, want %v", names, want)
		}
	}
}

func TestRegistryBindIsDeterministic(t *testing.T) {
	r := NewDefaultRegistry(observability.NopLogger())
	// Request order must not matter; registration order wins.
	a := r.Bind(testBinding(t), []string{"persona", "knowledge_base"})
	b := r.Bind(testBinding(t), []string{"knowledge_base", "persona"})
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Name() != b[i].Name() {
			t.Fatalf("order differs at %d: %s vs %s", i, a[i].Name(), b[i].Name())
		}
	}
}

func TestKnowledgeBaseDisabledWithoutBackend(t *testing.T) {
	b := testBinding(t)
	b.Search = nil
	tool := NewKnowledgeBaseTools(b)[0]
	res := execute(t, tool, `{"query": "hello"}`)
	if res.Content != "Knowledge base is currently disabled." {
		t.Fatalf("got %q", res.Content)
	}
}

func TestKnowledgeBaseRetriesOnceThenDegrades(t *testing.T) {
	b := testBinding(t)
	stub := &stubSearch{err: errors.New("backend down")}
	b.Search = stub
	tool := NewKnowledgeBaseTools(b)[0]

	res := execute(t, tool, `{"query": "hello"}`)
	if stub.calls != 2 {
		t.Fatalf("calls = %d, want 2", stub.calls)
	}
	if !strings.Contains(res.Content, "temporarily unavailable") {
		t.Fatalf("got %q", res.Content)
	}
	if res.IsError {
		t.Fatal("degraded search must not be marked as error")
	}
}

func TestKnowledgeBaseNoHitsMessage(t *testing.T) {
	b := testBinding(t)
	b.Search = &stubSearch{}
	tool := NewKnowledgeBaseTools(b)[0]

	res := execute(t, tool, `{"query": "quarterly report"}`)
	want := "No relevant information found in your knowledge base for: quarterly report"
	if res.Content != want {
		t.Fatalf("got %q, want %q", res.Content, want)
	}
}

func TestKnowledgeBaseFormatsHits(t *testing.T) {
	b := testBinding(t)
	b.Search = &stubSearch{hits: []search.Hit{
		{Text: "postgres upgrade went fine", SenderName: "alice", Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), Score: 0.91},
		{Text: strings.Repeat("x", 400), Score: 0.5},
	}}
	tool := NewKnowledgeBaseTools(b)[0]

	res := execute(t, tool, `{"query": "postgres"}`)
	if !strings.HasPrefix(res.Content, "Found 2 results in knowledge base:") {
		t.Fatalf("got %q", res.Content)
	}
	if !strings.Contains(res.Content, "(from: alice)") {
		t.Fatalf("missing sender: %q", res.Content)
	}
	if !strings.Contains(res.Content, "(date: 2026-03-01)") {
		t.Fatalf("missing date: %q", res.Content)
	}
	if strings.Contains(res.Content, strings.Repeat("x", 301)) {
		t.Fatal("snippet not truncated to 300 chars")
	}
}

func TestKnowledgeBaseSnippetTruncationKeepsRunesIntact(t *testing.T) {
	// A 300-byte cut through multibyte text must land on a rune boundary,
	// never feed invalid UTF-8 to the model.
	b := testBinding(t)
	b.Search = &stubSearch{hits: []search.Hit{
		{Text: "a" + strings.Repeat("я", 200), Score: 0.8},
	}}
	tool := NewKnowledgeBaseTools(b)[0]

	res := execute(t, tool, `{"query": "notes"}`)
	if !utf8.ValidString(res.Content) {
		t.Fatal("formatted hit contains invalid UTF-8 after truncation")
	}
	if strings.Contains(res.Content, strings.Repeat("я", 150)) {
		t.Fatal("snippet not truncated")
	}
}

func TestClampResults(t *testing.T) {
	cases := []struct{ in, want int }{
		{0, 5},
		{-3, 1},
		{1, 1},
		{20, 20},
		{100, 100},
		{500, 100},
	}
	for _, c := range cases {
		if got := clampResults(c.in); got != c.want {
			t.Errorf("clampResults(%d) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestParseDateBound(t *testing.T) {
	now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"7d", now.AddDate(0, 0, -7)},
		{"2w", now.AddDate(0, 0, -14)},
		{"1m", now.AddDate(0, -1, 0)},
		{"1y", now.AddDate(-1, 0, 0)},
		{"2026-01-15", time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)},
	}
	for _, c := range cases {
		got, err := ParseDateBound(c.in, now)
		if err != nil {
			t.Errorf("ParseDateBound(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(c.want) {
			t.Errorf("ParseDateBound(%q) = %v, want %v", c.in, got, c.want)
		}
	}

	for _, bad := range []string{"", "yesterday", "0d", "-1w", "15-01-2026"} {
		if _, err := ParseDateBound(bad, now); err == nil {
			t.Errorf("ParseDateBound(%q): expected error", bad)
		}
	}
}

func TestTranscriptDisabledChain(t *testing.T) {
	b := testBinding(t)
	b.TranscriptsEnabled = false
	b.Transcripts = &stubFetcher{text: "never reached"}
	tool := NewTranscriptTools(b)[0]

	res := execute(t, tool, `{"video_url": "https://example.com/v/1"}`)
	if !strings.Contains(res.Content, "currently disabled") {
		t.Fatalf("got %q", res.Content)
	}

	// Enabled but no backend is the next link in the chain.
	b.TranscriptsEnabled = true
	b.Transcripts = nil
	tool = NewTranscriptTools(b)[0]
	res = execute(t, tool, `{"video_url": "https://example.com/v/1"}`)
	if !strings.Contains(res.Content, "not available right now") {
		t.Fatalf("got %q", res.Content)
	}
}

func TestTranscriptErrorClassification(t *testing.T) {
	cases := []struct {
		err  string
		want string
	}{
		{"video unavailable", "unavailable or private"},
		{"this video is private", "unavailable or private"},
		{"transcript disabled by uploader", "does not have transcripts"},
		{"no transcript not available for id", "does not have transcripts"},
		{"no transcript in requested language", "language 'en'"},
		{"connection reset", "Unable to fetch the video transcript"},
	}
	for _, c := range cases {
		got := classifyTranscriptError(errors.New(c.err), "en")
		if !strings.Contains(got, c.want) {
			t.Errorf("classify(%q) = %q, want substring %q", c.err, got, c.want)
		}
	}
}

func TestTranscriptSuccess(t *testing.T) {
	b := testBinding(t)
	b.TranscriptsEnabled = true
	b.Transcripts = &stubFetcher{text: "hello from the video"}
	tool := NewTranscriptTools(b)[0]

	res := execute(t, tool, `{"video_url": "https://example.com/v/1"}`)
	if res.Content != "hello from the video" {
		t.Fatalf("got %q", res.Content)
	}
}

func TestImageDescriptionDisabledChain(t *testing.T) {
	b := testBinding(t)
	b.VisionEnabled = false
	b.Vision = &stubDescriber{text: "never reached"}
	tool := NewImageDescriptionTools(b)[0]

	res := execute(t, tool, `{"image_url": "https://example.com/cat.jpg"}`)
	if !strings.Contains(res.Content, "currently disabled") {
		t.Fatalf("got %q", res.Content)
	}

	// Enabled but no backend is the next link in the chain.
	b.VisionEnabled = true
	b.Vision = nil
	tool = NewImageDescriptionTools(b)[0]
	res = execute(t, tool, `{"image_url": "https://example.com/cat.jpg"}`)
	if !strings.Contains(res.Content, "not available right now") {
		t.Fatalf("got %q", res.Content)
	}
}

func TestImageDescriptionValidatesURL(t *testing.T) {
	b := testBinding(t)
	b.VisionEnabled = true
	b.Vision = &stubDescriber{text: "a cat"}
	tool := NewImageDescriptionTools(b)[0]

	res := execute(t, tool, `{"image_url": "ftp://example.com/cat.jpg"}`)
	if !res.IsError || !strings.Contains(res.Content, "http://") {
		t.Fatalf("got %+v", res)
	}
	res = execute(t, tool, `{"image_url": "  "}`)
	if !res.IsError {
		t.Fatalf("got %+v", res)
	}
}

func TestImageDescriptionDetailLevels(t *testing.T) {
	b := testBinding(t)
	b.VisionEnabled = true
	stub := &stubDescriber{text: "a cat on a sofa"}
	b.Vision = stub
	tool := NewImageDescriptionTools(b)[0]

	res := execute(t, tool, `{"image_url": "https://example.com/cat.jpg", "detail_level": "low"}`)
	if res.Content != "a cat on a sofa" {
		t.Fatalf("got %q", res.Content)
	}
	if !strings.Contains(stub.lastPrompt, "1-2 sentences") {
		t.Fatalf("low detail prompt = %q", stub.lastPrompt)
	}

	// Unknown levels fall back to standard rather than failing.
	execute(t, tool, `{"image_url": "https://example.com/cat.jpg", "detail_level": "extreme"}`)
	if !strings.Contains(stub.lastPrompt, "Describe this image in detail") {
		t.Fatalf("fallback prompt = %q", stub.lastPrompt)
	}

	// A custom prompt overrides the detail level entirely.
	execute(t, tool, `{"image_url": "https://example.com/cat.jpg", "custom_prompt": "What breed is the cat?"}`)
	if stub.lastPrompt != "What breed is the cat?" {
		t.Fatalf("custom prompt = %q", stub.lastPrompt)
	}
}

func TestImageDescriptionErrorClassification(t *testing.T) {
	cases := []struct {
		err  string
		want string
	}{
		{"connection refused", "Unable to connect to the vision service"},
		{"request timeout", "Unable to connect to the vision service"},
		{"model llava not found, try pulling it", "vision model is not available"},
		{"invalid image format", "supported image format"},
		{"vision: model returned an empty description", "did not return a description"},
		{"boom", "publicly accessible"},
	}
	for _, c := range cases {
		got := classifyVisionError(errors.New(c.err))
		if !strings.Contains(got, c.want) {
			t.Errorf("classify(%q) = %q, want substring %q", c.err, got, c.want)
		}
	}
}

func TestSwitchPersonaCallsBinding(t *testing.T) {
	b := testBinding(t)
	var switched string
	b.SwitchPersona = func(id string) error {
		switched = id
		return nil
	}

	var sw Tool
	for _, tool := range NewPersonaTools(b) {
		if tool.Name() == "switch_persona" {
			sw = tool
		}
	}
	if sw == nil {
		t.Fatal("switch_persona tool missing")
	}

	res := execute(t, sw, `{"persona_id": "analyst"}`)
	if switched != "analyst" {
		t.Fatalf("switched = %q, want analyst", switched)
	}
	if !strings.Contains(res.Content, "Switched to") {
		t.Fatalf("got %q", res.Content)
	}

	res = execute(t, sw, `{"persona_id": "ghost"}`)
	if !res.IsError {
		t.Fatal("unknown persona should be an error result")
	}
	if switched != "analyst" {
		t.Fatal("unknown persona must not trigger a switch")
	}
}

func TestListAndActivePersona(t *testing.T) {
	b := testBinding(t)
	b.ActivePersona = "analyst"

	var list, active Tool
	for _, tool := range NewPersonaTools(b) {
		switch tool.Name() {
		case "list_personas":
			list = tool
		case "get_active_persona":
			active = tool
		}
	}

	res := execute(t, list, `{}`)
	if !strings.Contains(res.Content, "general") || !strings.Contains(res.Content, "analyst") {
		t.Fatalf("got %q", res.Content)
	}

	res = execute(t, active, `{}`)
	if !strings.Contains(res.Content, "analyst") {
		t.Fatalf("got %q", res.Content)
	}
}
