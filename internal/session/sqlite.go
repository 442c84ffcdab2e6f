package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore stores sessions in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// init creates the database schema.
func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		goal TEXT NOT NULL,
		status TEXT NOT NULL,
		result TEXT,
		error TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		type TEXT NOT NULL,
		node TEXT,
		attempt INTEGER,
		content TEXT,
		error TEXT,
		duration_ms INTEGER,
		meta TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id);
	`

	_, err := s.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Save saves a session to the database.
func (s *SQLiteStore) Save(sess *Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Upsert session
	_, err = tx.Exec(`
		INSERT INTO sessions (id, goal, status, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			result = excluded.result,
			error = excluded.error,
			updated_at = excluded.updated_at
	`, sess.ID, sess.Goal, sess.Status, sess.Result, sess.Error, sess.CreatedAt, sess.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	// Delete existing events (full replacement)
	if _, err := tx.Exec("DELETE FROM events WHERE session_id = ?", sess.ID); err != nil {
		return fmt.Errorf("failed to delete events: %w", err)
	}

	for _, event := range sess.Events {
		var metaJSON string
		if event.Meta != nil {
			data, _ := json.Marshal(event.Meta)
			metaJSON = string(data)
		}
		_, err = tx.Exec(`
			INSERT INTO events (session_id, seq, type, node, attempt, content, error, duration_ms, meta, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sess.ID, event.SeqID, event.Type, event.Node, event.Attempt,
			event.Content, event.Error, event.DurationMs, metaJSON, event.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to save event: %w", err)
		}
	}

	return tx.Commit()
}

// Load loads a session from the database.
func (s *SQLiteStore) Load(id string) (*Session, error) {
	row := s.db.QueryRow(`
		SELECT id, goal, status, result, error, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	var sess Session
	var result, errText sql.NullString

	err := row.Scan(&sess.ID, &sess.Goal, &sess.Status, &result, &errText, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", id)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if result.Valid {
		sess.Result = result.String
	}
	if errText.Valid {
		sess.Error = errText.String
	}

	rows, err := s.db.Query(`
		SELECT seq, type, node, attempt, content, error, duration_ms, meta, timestamp
		FROM events WHERE session_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	defer rows.Close()

	sess.Events = []Event{}
	for rows.Next() {
		var event Event
		var node, content, eventError, metaJSON sql.NullString
		var attempt, durationMs sql.NullInt64
		err := rows.Scan(&event.SeqID, &event.Type, &node, &attempt, &content, &eventError, &durationMs, &metaJSON, &event.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if node.Valid {
			event.Node = node.String
		}
		if attempt.Valid {
			event.Attempt = int(attempt.Int64)
		}
		if content.Valid {
			event.Content = content.String
		}
		if eventError.Valid {
			event.Error = eventError.String
		}
		if durationMs.Valid {
			event.DurationMs = durationMs.Int64
		}
		if metaJSON.Valid && metaJSON.String != "" && metaJSON.String != "null" {
			var meta EventMeta
			if err := json.Unmarshal([]byte(metaJSON.String), &meta); err == nil {
				event.Meta = &meta
			}
		}
		sess.Events = append(sess.Events, event)
	}

	// Restore sequence counter from last event
	if len(sess.Events) > 0 {
		sess.seqCounter = sess.Events[len(sess.Events)-1].SeqID
	}

	return &sess, nil
}

// List returns stored session IDs, newest first.
func (s *SQLiteStore) List() ([]SessionInfo, error) {
	rows, err := s.db.Query(`SELECT id, updated_at FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var infos []SessionInfo
	for rows.Next() {
		var info SessionInfo
		var updatedAt time.Time
		if err := rows.Scan(&info.ID, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		info.ModTime = updatedAt
		infos = append(infos, info)
	}
	return infos, rows.Err()
}
