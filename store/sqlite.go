package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/coxswain-ai/coxswain/eventbus"
)

// Journal persists session event logs to SQLite. Events are append-only
// and keyed by (session_id, seq), mirroring the bus's total order.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates a journal at the given path. The schema is created if it
// doesn't exist and parent directories are created as needed.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "journal")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	j := &Journal{db: db, logger: logger}
	if err := j.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("journal initialized", "path", path)
	return j, nil
}

func (j *Journal) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			kind TEXT NOT NULL,
			caused_by INTEGER,
			timestamp DATETIME NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_events_session_time
			ON events(session_id, timestamp);
	`
	_, err := j.db.Exec(schema)
	return err
}

// SaveEvent appends one event to the journal.
func (j *Journal) SaveEvent(ctx context.Context, e eventbus.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	var causedBy *int64
	if e.CausedBy != nil {
		v := int64(*e.CausedBy)
		causedBy = &v
	}

	query := `
		INSERT INTO events (session_id, seq, type, kind, caused_by, timestamp, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err = j.db.ExecContext(ctx, query,
		e.SessionID,
		int64(e.Seq),
		string(e.Type),
		e.Kind(),
		causedBy,
		e.Timestamp.Format(time.RFC3339Nano),
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("inserting event: %w", err)
	}

	j.logger.Debug("saved event", "session_id", e.SessionID, "seq", e.Seq, "kind", e.Kind())
	return nil
}

// ListEvents returns a session's journaled events in sequence order.
func (j *Journal) ListEvents(ctx context.Context, sessionID string) ([]eventbus.Event, error) {
	query := `
		SELECT payload FROM events
		WHERE session_id = ?
		ORDER BY seq ASC
	`
	rows, err := j.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []eventbus.Event
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		var e eventbus.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Sessions returns the identifiers of all journaled sessions, most
// recently active first.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	query := `
		SELECT session_id FROM events
		GROUP BY session_id
		ORDER BY MAX(timestamp) DESC
	`
	rows, err := j.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
