package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Doc is one indexed message in the in-memory backend.
type Doc struct {
	Index      string
	Text       string
	SenderName string
	Date       int64 // unix seconds; kept simple for test fixtures
}

// MemoryService is an in-memory Service for standalone runs and tests.
type MemoryService struct {
	mu   sync.RWMutex
	docs []Doc
}

// NewMemoryService creates an empty in-memory search backend.
func NewMemoryService() *MemoryService {
	return &MemoryService{}
}

// Add indexes documents. Test helper.
func (m *MemoryService) Add(docs ...Doc) {
	m.mu.Lock()
	m.docs = append(m.docs, docs...)
	m.mu.Unlock()
}

func (m *MemoryService) Search(ctx context.Context, indexes []string, query string, filters Filters, maxResults int) ([]Hit, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	allowed := make(map[string]bool, len(indexes))
	for _, idx := range indexes {
		allowed[idx] = true
	}

	terms := strings.Fields(strings.ToLower(query))

	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []Hit
	for _, d := range m.docs {
		if !allowed[d.Index] {
			continue
		}
		if filters.FromUser != "" && !strings.EqualFold(filters.FromUser, d.SenderName) {
			continue
		}
		if !filters.DateFrom.IsZero() && d.Date < filters.DateFrom.Unix() {
			continue
		}
		if !filters.DateTo.IsZero() && d.Date > filters.DateTo.Unix() {
			continue
		}

		score := 1.0
		if query != MatchAll {
			text := strings.ToLower(d.Text)
			matched := 0
			for _, term := range terms {
				if strings.Contains(text, term) {
					matched++
				}
			}
			if matched == 0 {
				continue
			}
			score = float64(matched) / float64(len(terms))
		}
		hits = append(hits, Hit{Text: d.Text, SenderName: d.SenderName, Date: unixTime(d.Date), Score: score})
	}

	if query == MatchAll {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Date.After(hits[j].Date) })
	} else {
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	}
	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits, nil
}

func (m *MemoryService) Close() error { return nil }

func unixTime(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
