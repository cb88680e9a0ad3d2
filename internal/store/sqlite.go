package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/kingrea/linaje/internal/genealogy"
	"github.com/kingrea/linaje/internal/pattern"
	"github.com/kingrea/linaje/internal/ritual"
)

// DatabaseFile is the SQLite file created inside the data directory.
const DatabaseFile = "linaje.db"

var openDB = sql.Open

// SQLiteStore keeps every collection in one SQLite database. Records are
// stored as JSON payloads keyed by ID; each save replaces its collection in
// a single transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) dir/linaje.db and runs migrations.
func OpenSQLite(dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	db, err := openDB("sqlite", filepath.Join(dir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// Writers share one connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS members (
			id      TEXT PRIMARY KEY,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS relationships (
			id        TEXT PRIMARY KEY,
			type      TEXT NOT NULL,
			from_id   TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			to_id     TEXT NOT NULL REFERENCES members(id) ON DELETE CASCADE,
			payload   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS events (
			id        TEXT PRIMARY KEY,
			member_id TEXT REFERENCES members(id) ON DELETE CASCADE,
			kind      TEXT NOT NULL,
			payload   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS patterns (
			name     TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			payload  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			ritual_id  TEXT NOT NULL,
			state      TEXT NOT NULL,
			position   INTEGER NOT NULL,
			payload    TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_id);
		CREATE INDEX IF NOT EXISTS idx_relationships_to   ON relationships(to_id);
		CREATE INDEX IF NOT EXISTS idx_events_member      ON events(member_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) LoadGraph() (*genealogy.Snapshot, error) {
	var snap genealogy.Snapshot
	if err := loadPayloads(s.db, `SELECT payload FROM members ORDER BY id`, &snap.Members); err != nil {
		return nil, fmt.Errorf("store: load members: %w", err)
	}
	if err := loadPayloads(s.db, `SELECT payload FROM relationships ORDER BY id`, &snap.Relationships); err != nil {
		return nil, fmt.Errorf("store: load relationships: %w", err)
	}
	if err := loadPayloads(s.db, `SELECT payload FROM events ORDER BY id`, &snap.Events); err != nil {
		return nil, fmt.Errorf("store: load events: %w", err)
	}
	if snap.IsEmpty() {
		return nil, nil
	}
	return &snap, nil
}

func (s *SQLiteStore) SaveGraph(snap genealogy.Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"events", "relationships", "members"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}
	for _, m := range snap.Members {
		payload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("store: encode member %s: %w", m.ID, err)
		}
		if _, err := tx.Exec(`INSERT INTO members (id, payload) VALUES (?, ?)`, string(m.ID), string(payload)); err != nil {
			return fmt.Errorf("store: insert member %s: %w", m.ID, err)
		}
	}
	for _, r := range snap.Relationships {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("store: encode relationship %s: %w", r.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO relationships (id, type, from_id, to_id, payload) VALUES (?, ?, ?, ?, ?)`,
			string(r.ID), string(r.Type), string(r.From), string(r.To), string(payload),
		); err != nil {
			return fmt.Errorf("store: insert relationship %s: %w", r.ID, err)
		}
	}
	for _, e := range snap.Events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("store: encode event %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO events (id, member_id, kind, payload) VALUES (?, ?, ?, ?)`,
			string(e.ID), nullableMember(e.MemberID), string(e.Kind), string(payload),
		); err != nil {
			return fmt.Errorf("store: insert event %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit graph: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadPatterns() ([]pattern.Pattern, error) {
	var out []pattern.Pattern
	if err := loadPayloads(s.db, `SELECT payload FROM patterns ORDER BY position`, &out); err != nil {
		return nil, fmt.Errorf("store: load patterns: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SavePatterns(patterns []pattern.Pattern) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM patterns`); err != nil {
		return fmt.Errorf("store: clear patterns: %w", err)
	}
	for i, p := range patterns {
		payload, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("store: encode pattern %q: %w", p.Name, err)
		}
		if _, err := tx.Exec(`INSERT INTO patterns (name, position, payload) VALUES (?, ?, ?)`, p.Name, i, string(payload)); err != nil {
			return fmt.Errorf("store: insert pattern %q: %w", p.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit patterns: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadSessions() ([]ritual.Session, error) {
	var out []ritual.Session
	if err := loadPayloads(s.db, `SELECT payload FROM sessions ORDER BY position`, &out); err != nil {
		return nil, fmt.Errorf("store: load sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) SaveSessions(sessions []ritual.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM sessions`); err != nil {
		return fmt.Errorf("store: clear sessions: %w", err)
	}
	for i, sess := range sessions {
		payload, err := json.Marshal(sess)
		if err != nil {
			return fmt.Errorf("store: encode session %s: %w", sess.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO sessions (id, ritual_id, state, position, payload) VALUES (?, ?, ?, ?, ?)`,
			sess.ID, sess.RitualID, string(sess.State), i, string(payload),
		); err != nil {
			return fmt.Errorf("store: insert session %s: %w", sess.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit sessions: %w", err)
	}
	return nil
}

// loadPayloads decodes every payload column returned by query into dest.
func loadPayloads[T any](db *sql.DB, query string, dest *[]T) error {
	rows, err := db.Query(query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return err
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return err
		}
		*dest = append(*dest, v)
	}
	return rows.Err()
}

func nullableMember(id genealogy.MemberID) any {
	if id == "" {
		return nil
	}
	return string(id)
}
