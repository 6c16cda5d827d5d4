// Package archive keeps every record downloaded from the logger in SQLite.
package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sweeney/mat-logger/internal/logic"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	downloaded_at TEXT NOT NULL,
	downloaded INTEGER NOT NULL,
	inserted INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	raw INTEGER PRIMARY KEY,
	state TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	session_id INTEGER NOT NULL REFERENCES sessions(id)
);
CREATE INDEX IF NOT EXISTS records_timestamp ON records(timestamp);
`

// Session is one download from the logger.
type Session struct {
	ID           int64
	DownloadedAt time.Time
	Downloaded   int // records received
	Inserted     int // records not already archived
}

// Store is the archive database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the archive at path. ":memory:" is accepted.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// One connection: every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession records a download and its records in one transaction.
// A record already archived (same raw word) is skipped, so downloading a
// log twice does not duplicate it. Returns the number of new records.
func (s *Store) SaveSession(ctx context.Context, at time.Time, recs []logic.Record) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("start transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sessions (downloaded_at, downloaded, inserted) VALUES (?, ?, 0)`,
		at.UTC().Format(time.RFC3339), len(recs))
	if err != nil {
		return 0, fmt.Errorf("insert session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("session id: %w", err)
	}

	inserted := 0
	for _, r := range recs {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO records (raw, state, timestamp, session_id) VALUES (?, ?, ?, ?)`,
			int64(r), r.State().String(), int64(r.Timestamp()), sessionID)
		if err != nil {
			return 0, fmt.Errorf("insert record %v: %w", r, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET inserted = ? WHERE id = ?`, inserted, sessionID); err != nil {
		return 0, fmt.Errorf("update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit session: %w", err)
	}
	return inserted, nil
}

// Records returns every archived record in chronological order.
func (s *Store) Records(ctx context.Context) ([]logic.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT raw FROM records ORDER BY timestamp, session_id, raw`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var recs []logic.Record
	for rows.Next() {
		var raw int64
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		recs = append(recs, logic.Record(uint32(raw)))
	}
	return recs, rows.Err()
}

// Sessions returns every download, oldest first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, downloaded_at, downloaded, inserted FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess Session
			at   string
		)
		if err := rows.Scan(&sess.ID, &at, &sess.Downloaded, &sess.Inserted); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.DownloadedAt, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return nil, fmt.Errorf("parse session time %q: %w", at, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}
