package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/haldis/strand/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	thread_id      TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	payload        BLOB NOT NULL,
	updated_at     TIMESTAMP NOT NULL
);
`

// SQLiteStore is a durable Store backed by a single-file SQLite database.
type SQLiteStore struct {
	db *sql.DB

	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens (creating if necessary) the checkpoint database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	// SQLite permits one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves for distinct thread ids.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init checkpoint schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (*models.ConversationState, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM checkpoints WHERE thread_id = ?`, threadID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %q: %w", threadID, err)
	}
	return decodeState(payload)
}

func (s *SQLiteStore) Save(ctx context.Context, threadID string, state *models.ConversationState) error {
	payload, err := encodeState(state)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, schema_version, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (thread_id) DO UPDATE SET
			schema_version = excluded.schema_version,
			payload        = excluded.payload,
			updated_at     = excluded.updated_at
	`, threadID, models.SchemaVersion, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save checkpoint %q: %w", threadID, err)
	}
	return nil
}

// PruneOlderThan deletes checkpoints not updated since the cutoff. Retention
// is a deployment policy; this is called from an external cleanup job, never
// from the runtime itself.
func (s *SQLiteStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE updated_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune checkpoints: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database. Safe to call multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
