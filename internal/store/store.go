// Package store keeps per-thread chat history for the lifetime of the
// process. Replies to a thread id replay its earlier turns to the model.
//
// History lives in a private in-memory SQLite database. Nothing is written to
// disk and everything is gone after a restart.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/supportbot-go/internal/conversation"
)

// Role is the stored author of a turn.
type Role string

const (
	// RoleUser is a message typed by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a final answer produced by the model.
	RoleAssistant Role = "assistant"
)

// ThreadStore appends and replays chat turns keyed by thread id.
// Implementations must be safe for concurrent use.
type ThreadStore interface {
	// Append records one turn. Only human messages and final assistant
	// answers are accepted.
	Append(ctx context.Context, threadID string, m conversation.Message) error
	// Recent returns up to n of the latest turns of a thread, oldest first.
	Recent(ctx context.Context, threadID string, n int) ([]conversation.Message, error)
	// Close releases the store.
	Close() error
}

// DefaultMaxTurns bounds how many turns a MemoryStore retains.
const DefaultMaxTurns = 20000

// MemoryStore is a ThreadStore backed by in-memory SQLite. Once it holds more
// than its turn limit, the oldest turns across all threads are dropped.
type MemoryStore struct {
	// db holds a single connection; the in-memory database lives exactly as
	// long as that connection.
	db *sql.DB

	maxTurns int
}

// Option configures a MemoryStore.
type Option func(*MemoryStore)

// WithMaxTurns sets the retained turn limit. Non-positive values keep the
// default.
func WithMaxTurns(n int) Option {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// Open creates an empty in-memory store.
func Open(opts ...Option) (*MemoryStore, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	// Every connection to ":memory:" is a separate database; pin the pool to
	// one long-lived connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	s := &MemoryStore{db: db, maxTurns: DefaultMaxTurns}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema.
func (s *MemoryStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS turns (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    thread_id  TEXT    NOT NULL,
    role       TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content    TEXT    NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_thread ON turns (thread_id, id);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// roleOf maps a message onto its stored role.
func roleOf(m conversation.Message) (Role, error) {
	switch v := m.(type) {
	case conversation.Human:
		return RoleUser, nil
	case conversation.Assistant:
		if v.PendingTool() {
			return "", fmt.Errorf("store: pending tool invocations are not stored")
		}
		return RoleAssistant, nil
	case conversation.System, conversation.ToolResult:
		return "", fmt.Errorf("store: %s messages are not stored", m.Kind())
	default:
		panic(fmt.Sprintf("store: unhandled message kind %T", m))
	}
}

// Append records one turn for threadID.
func (s *MemoryStore) Append(ctx context.Context, threadID string, m conversation.Message) error {
	role, err := roleOf(m)
	if err != nil {
		return err
	}
	const q = `INSERT INTO turns (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, threadID, string(role), m.Text(), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: append id: %w", err)
	}
	// Ids only grow, so everything at or below id-maxTurns is the overflow.
	if id > int64(s.maxTurns) {
		const prune = `DELETE FROM turns WHERE id <= ?`
		if _, err := s.db.ExecContext(ctx, prune, id-int64(s.maxTurns)); err != nil {
			return fmt.Errorf("store: prune: %w", err)
		}
	}
	return nil
}

// Len returns the number of stored turns.
func (s *MemoryStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM turns`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// Recent returns up to n of the latest turns of threadID, oldest first.
// A non-positive n returns nothing.
func (s *MemoryStore) Recent(ctx context.Context, threadID string, n int) ([]conversation.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	const q = `
SELECT role, content FROM (
    SELECT id, role, content
    FROM   turns
    WHERE  thread_id = ?
    ORDER  BY id DESC
    LIMIT  ?
) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, threadID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var msgs []conversation.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		switch Role(role) {
		case RoleUser:
			msgs = append(msgs, conversation.Human{Content: content})
		case RoleAssistant:
			msgs = append(msgs, conversation.Assistant{Content: content})
		default:
			return nil, fmt.Errorf("store: unknown stored role %q", role)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}

// Close releases the database, discarding all history.
func (s *MemoryStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
