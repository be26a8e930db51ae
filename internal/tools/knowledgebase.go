package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/haldis/strand/internal/search"
)

const (
	kbDefaultResults = 5
	kbMaxResults     = 100
	kbSnippetLen     = 300
)

// NewKnowledgeBaseTools builds the knowledge-base search tool. The permitted
// indices come from the binding, so access control is enforced here and not
// inside the search backend.
func NewKnowledgeBaseTools(b Binding) []Tool {
	return []Tool{&knowledgeBaseTool{b: b}}
}

type knowledgeBaseTool struct {
	b Binding
}

func (t *knowledgeBaseTool) Name() string { return "search_knowledge_base" }

func (t *knowledgeBaseTool) Description() string {
	return "Search the user's knowledge base (message history) for relevant information. " +
		"Use this when the user asks about past conversations, stored documents, or " +
		"specific information that might be in their personal knowledge base. " +
		"Supports time-based filters and sender filters. " +
		"Use query='*' for digests/summaries of all messages in a time period."
}

func (t *knowledgeBaseTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Search query. Use '*' for ALL messages in a time period (digests), or keywords for specific topics like 'postgres issues'"
			},
			"from_user": {
				"type": "string",
				"description": "Filter by sender name (optional)"
			},
			"date_from": {
				"type": "string",
				"description": "Start date: '7d' (days), '1w' (weeks), '1m' (months), '1y' (years), or 'YYYY-MM-DD'. Leave empty to search all history."
			},
			"date_to": {
				"type": "string",
				"description": "End date in 'YYYY-MM-DD' format. Leave empty for current time."
			},
			"max_results": {
				"type": "integer",
				"description": "Maximum results (1-100, default 5, use 20+ for digests)"
			}
		},
		"required": ["query"]
	}`)
}

type kbInput struct {
	Query      string `json:"query"`
	FromUser   string `json:"from_user,omitempty"`
	DateFrom   string `json:"date_from,omitempty"`
	DateTo     string `json:"date_to,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Execute never returns an error: backend failures become explanatory text
// so the model always has something to read.
func (t *knowledgeBaseTool) Execute(ctx context.Context, params json.RawMessage) (*Result, error) {
	var in kbInput
	if err := json.Unmarshal(params, &in); err != nil {
		return &Result{Content: "Invalid knowledge base search arguments: " + err.Error(), IsError: true}, nil
	}
	if strings.TrimSpace(in.Query) == "" {
		return &Result{Content: "A search query is required.", IsError: true}, nil
	}

	if t.b.Search == nil {
		return &Result{Content: "Knowledge base is currently disabled."}, nil
	}

	maxResults := clampResults(in.MaxResults)

	filters := search.Filters{FromUser: in.FromUser}
	if in.DateFrom != "" {
		from, err := ParseDateBound(in.DateFrom, time.Now().UTC())
		if err != nil {
			return &Result{Content: fmt.Sprintf("Invalid date_from %q: use '7d', '1w', '1m', '1y' or YYYY-MM-DD.", in.DateFrom), IsError: true}, nil
		}
		filters.DateFrom = from
	}
	if in.DateTo != "" {
		to, err := ParseDateBound(in.DateTo, time.Now().UTC())
		if err != nil {
			return &Result{Content: fmt.Sprintf("Invalid date_to %q: use YYYY-MM-DD.", in.DateTo), IsError: true}, nil
		}
		filters.DateTo = to
	}

	indexes := t.b.KnowledgeBases
	if len(indexes) == 0 {
		return &Result{Content: "You do not have any knowledge bases configured yet."}, nil
	}

	hits, err := t.b.Search.Search(ctx, indexes, in.Query, filters, maxResults)
	if err != nil && ctx.Err() == nil {
		// One retry on upstream failure before degrading to a message.
		hits, err = t.b.Search.Search(ctx, indexes, in.Query, filters, maxResults)
	}
	if err != nil {
		t.b.Logger.Warn("knowledge base search failed",
			"thread_id", t.b.ThreadID,
			"error", err)
		return &Result{Content: "Knowledge base search is temporarily unavailable. Please try again later."}, nil
	}

	if len(hits) == 0 {
		return &Result{Content: "No relevant information found in your knowledge base for: " + in.Query}, nil
	}

	return &Result{Content: formatHits(in.Query, hits)}, nil
}

func clampResults(n int) int {
	switch {
	case n == 0:
		return kbDefaultResults
	case n < 1:
		return 1
	case n > kbMaxResults:
		return kbMaxResults
	default:
		return n
	}
}

func formatHits(query string, hits []search.Hit) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results in knowledge base:\n", len(hits))
	for i, h := range hits {
		text := h.Text
		if len(text) > kbSnippetLen {
			cut := kbSnippetLen
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, text)
		if h.SenderName != "" {
			fmt.Fprintf(&sb, "   (from: %s)\n", h.SenderName)
		}
		if !h.Date.IsZero() {
			fmt.Fprintf(&sb, "   (date: %s)\n", h.Date.Format("2006-01-02"))
		}
		fmt.Fprintf(&sb, "   (relevance: %.2f)\n", h.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ParseDateBound parses either a relative shorthand ("7d", "1w", "1m", "1y")
// or an absolute YYYY-MM-DD date, measured against now.
func ParseDateBound(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if len(s) >= 2 {
		unit := s[len(s)-1]
		if n, err := strconv.Atoi(s[:len(s)-1]); err == nil && n > 0 {
			switch unit {
			case 'd':
				return now.AddDate(0, 0, -n), nil
			case 'w':
				return now.AddDate(0, 0, -7*n), nil
			case 'm':
				return now.AddDate(0, -n, 0), nil
			case 'y':
				return now.AddDate(-n, 0, 0), nil
			}
		}
	}

	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized date %q", s)
	}
	return t, nil
}
