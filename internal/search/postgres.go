package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lib/pq"
)

// PostgresService implements Service over a Postgres full-text index of
// knowledge-base messages. The kb_messages table is maintained by the
// ingestion pipeline; this service only reads it.
type PostgresService struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// NewPostgresService connects to the search database using a lib/pq DSN.
func NewPostgresService(dsn string) (*PostgresService, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open search db: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &PostgresService{db: db}, nil
}

func (p *PostgresService) Search(ctx context.Context, indexes []string, query string, filters Filters, maxResults int) ([]Hit, error) {
	if len(indexes) == 0 {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		args = append(args, val)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	add("kb_index = ANY($%d)", pq.Array(indexes))
	if filters.FromUser != "" {
		add("sender_name ILIKE $%d", filters.FromUser)
	}
	if !filters.DateFrom.IsZero() {
		add("message_date >= $%d", filters.DateFrom)
	}
	if !filters.DateTo.IsZero() {
		add("message_date <= $%d", filters.DateTo)
	}

	var q string
	if query == MatchAll {
		args = append(args, maxResults)
		q = fmt.Sprintf(`
			SELECT message_text, sender_name, message_date, 1.0
			FROM kb_messages
			WHERE %s
			ORDER BY message_date DESC
			LIMIT $%d`,
			strings.Join(conds, " AND "), len(args))
	} else {
		add("search_vector @@ plainto_tsquery('simple', $%d)", query)
		args = append(args, query, maxResults)
		q = fmt.Sprintf(`
			SELECT message_text, sender_name, message_date,
			       ts_rank(search_vector, plainto_tsquery('simple', $%d))
			FROM kb_messages
			WHERE %s
			ORDER BY 4 DESC
			LIMIT $%d`,
			len(args)-1, strings.Join(conds, " AND "), len(args))
	}

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h      Hit
			sender sql.NullString
			date   sql.NullTime
		)
		if err := rows.Scan(&h.Text, &sender, &date, &h.Score); err != nil {
			return nil, fmt.Errorf("scan hit: %w", err)
		}
		h.SenderName = sender.String
		if date.Valid {
			h.Date = date.Time
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (p *PostgresService) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.db.Close()
	})
	return p.closeErr
}
