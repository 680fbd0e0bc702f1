// Package transcript stores finished chat exchanges in a local SQLite file.
package transcript

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"xunji/internal/domain"
)

// defaultListLimit applies when List is called with limit <= 0.
const defaultListLimit = 20

// SQLiteStore implements domain.TranscriptStore using SQLite.
type SQLiteStore struct {
	db *sql.DB

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs the
// schema migration. Parent directories are created as needed.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create transcript dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate transcript db: %w", err)
	}
	return &SQLiteStore{db: db, entropy: ulid.Monotonic(rand.Reader, 0)}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS exchanges (
			id              TEXT PRIMARY KEY,
			channel         TEXT NOT NULL,
			conversation_id TEXT NOT NULL DEFAULT '',
			parent_id       TEXT NOT NULL DEFAULT '',
			user_node_id    TEXT NOT NULL DEFAULT '',
			ai_node_id      TEXT NOT NULL DEFAULT '',
			title           TEXT NOT NULL DEFAULT '',
			prompt          TEXT NOT NULL,
			reply           TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			error           TEXT NOT NULL DEFAULT '',
			warnings        INTEGER NOT NULL DEFAULT 0,
			meta            TEXT NOT NULL DEFAULT '{}',
			created_at      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_exchanges_conversation ON exchanges(conversation_id);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts ex, assigning ID and CreatedAt when they are empty.
func (s *SQLiteStore) Save(ctx context.Context, ex *domain.Exchange) error {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}
	if ex.ID == "" {
		ex.ID = s.newID(ex.CreatedAt)
	}
	meta := ex.Meta
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal exchange meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchanges (id, channel, conversation_id, parent_id, user_node_id, ai_node_id,
			title, prompt, reply, status, error, warnings, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.Channel, ex.ConversationID, ex.ParentID, ex.UserNodeID, ex.AINodeID,
		ex.Title, ex.Prompt, ex.Reply, ex.Status, ex.Error, ex.Warnings, string(metaJSON),
		ex.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return domain.WrapOp("transcript.Save", err)
}

// List returns the most recent exchanges, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*domain.Exchange, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectExchange+" ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, domain.WrapOp("transcript.List", err)
	}
	defer rows.Close()

	var out []*domain.Exchange
	for rows.Next() {
		ex, err := scanExchange(rows)
		if err != nil {
			return nil, domain.WrapOp("transcript.List", err)
		}
		out = append(out, ex)
	}
	return out, domain.WrapOp("transcript.List", rows.Err())
}

// Get returns one exchange by ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.Exchange, error) {
	ex, err := scanExchange(s.db.QueryRowContext(ctx, selectExchange+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewDomainError("transcript.Get", domain.ErrNotFound, id)
	}
	if err != nil {
		return nil, domain.WrapOp("transcript.Get", err)
	}
	return ex, nil
}

func (s *SQLiteStore) newID(t time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

const selectExchange = `SELECT id, channel, conversation_id, parent_id, user_node_id, ai_node_id,
	title, prompt, reply, status, error, warnings, meta, created_at FROM exchanges`

type scanner interface {
	Scan(dest ...any) error
}

func scanExchange(row scanner) (*domain.Exchange, error) {
	var ex domain.Exchange
	var metaStr, createdStr string
	if err := row.Scan(&ex.ID, &ex.Channel, &ex.ConversationID, &ex.ParentID, &ex.UserNodeID,
		&ex.AINodeID, &ex.Title, &ex.Prompt, &ex.Reply, &ex.Status, &ex.Error, &ex.Warnings,
		&metaStr, &createdStr); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaStr), &ex.Meta); err != nil {
		return nil, fmt.Errorf("unmarshal exchange meta: %w", err)
	}
	ex.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return &ex, nil
}

var _ domain.TranscriptStore = (*SQLiteStore)(nil)
