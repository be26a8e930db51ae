// Package search defines the knowledge-base search boundary. The runtime
// depends only on the Service interface; the backing index is an external
// system reached through a driver-specific implementation.
package search

import (
	"context"
	"time"
)

// Filters narrows a search to a sender and/or a date window. Zero values
// mean "no filter".
type Filters struct {
	FromUser string
	DateFrom time.Time
	DateTo   time.Time
}

// Hit is one search result, ordered by descending relevance.
type Hit struct {
	Text       string
	SenderName string
	Date       time.Time
	Score      float64
}

// MatchAll is the sentinel query meaning "every document in the window",
// used for digest-style summarization.
const MatchAll = "*"

// Service is the search backend boundary.
type Service interface {
	// Search queries the given indexes and returns at most maxResults hits
	// ordered by relevance (or recency for MatchAll queries).
	Search(ctx context.Context, indexes []string, query string, filters Filters, maxResults int) ([]Hit, error)

	// Close releases backend connections. Idempotent.
	Close() error
}
