package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bytra_go/internal/event"

	_ "github.com/glebarez/go-sqlite"
)

// Entry is one journaled event as stored.
type Entry struct {
	ID      int64
	Type    event.Type
	Ts      time.Time
	LinkID  string
	Payload json.RawMessage
}

// Event decodes the payload back into its typed event. Only order actions
// and executions are journaled.
func (e Entry) Event() (event.Event, error) {
	var ev event.Event
	switch e.Type {
	case event.EvOrderAction:
		ev = &event.OrderAction{}
	case event.EvExecution:
		ev = &event.ExecutionEvent{}
	default:
		return nil, fmt.Errorf("journal entry %d: unsupported type %s", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Payload, ev); err != nil {
		return nil, fmt.Errorf("journal entry %d: %w", e.ID, err)
	}
	return ev, nil
}

// Journal is the SQLite trade journal: every order action and applied
// execution, plus a small metadata table. It implements engine.Journal.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (or creates) the journal with WAL mode enabled.
func OpenJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			link_id TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS events_link_id ON events (link_id);`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Journal{db: db}, nil
}

// Record implements engine.Journal.
func (j *Journal) Record(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = j.db.ExecContext(ctx,
		"INSERT INTO events (type, ts, link_id, payload) VALUES (?, ?, ?, ?)",
		int(ev.GetType()), ev.GetTs().UnixMilli(), linkID(ev), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func linkID(ev event.Event) string {
	switch e := ev.(type) {
	case *event.OrderAction:
		return e.Request.LinkID
	case *event.ExecutionEvent:
		if len(e.Executions) > 0 {
			return e.Executions[0].LinkID
		}
	}
	return ""
}

// LastID returns the highest journal id, 0 when empty.
func (j *Journal) LastID(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := j.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&last); err != nil {
		return 0, fmt.Errorf("failed to get last id: %w", err)
	}
	return last.Int64, nil
}

// Load returns entries with id >= fromID, oldest first.
func (j *Journal) Load(ctx context.Context, fromID int64) ([]Entry, error) {
	return j.query(ctx, "SELECT id, type, ts, link_id, payload FROM events WHERE id >= ? ORDER BY id ASC", fromID)
}

// ByLinkID returns every entry of one client order, oldest first.
func (j *Journal) ByLinkID(ctx context.Context, link string) ([]Entry, error) {
	return j.query(ctx, "SELECT id, type, ts, link_id, payload FROM events WHERE link_id = ? ORDER BY id ASC", link)
}

func (j *Journal) query(ctx context.Context, q string, arg any) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var typ int
		var ts int64
		var payload []byte
		if err := rows.Scan(&e.ID, &typ, &ts, &e.LinkID, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Type = event.Type(typ)
		e.Ts = time.UnixMilli(ts).UTC()
		e.Payload = payload
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return out, nil
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (j *Journal) UpsertMetadata(ctx context.Context, key, value string, ts time.Time) error {
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts.Unix(),
	)
	return err
}

// GetMetadata retrieves a value, "" when the key is missing.
func (j *Journal) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := j.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}
