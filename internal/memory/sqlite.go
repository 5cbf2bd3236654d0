package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a local SQLite-backed memory gateway, used when no
// hosted memory service is configured. Text is stored verbatim (no
// fact extraction).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the memory database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		memory TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Add stores memory text verbatim and returns the new record.
func (s *SQLiteStore) Add(ctx context.Context, userID, text string, metadata map[string]any) ([]Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if text == "" {
		return nil, fmt.Errorf("memory text is required")
	}

	rec := Record{
		ID:        uuid.New().String(),
		Memory:    text,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}

	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (id, user_id, memory, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ID, userID, rec.Memory, string(metaJSON), rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert memory: %w", err)
	}
	return []Record{rec}, nil
}

// GetAll returns every record stored for the user, oldest first.
func (s *SQLiteStore) GetAll(ctx context.Context, userID string) ([]Record, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, memory, metadata, created_at FROM memories WHERE user_id = ? ORDER BY created_at`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var metaJSON sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Memory, &metaJSON, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if metaJSON.Valid && metaJSON.String != "" {
			if err := json.Unmarshal([]byte(metaJSON.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", rec.ID, err)
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Search ranks the user's records against the query.
func (s *SQLiteStore) Search(ctx context.Context, userID, query string) ([]Record, error) {
	records, err := s.GetAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Rank(query, records), nil
}
