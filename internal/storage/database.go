// Package storage is the local sqlite fallback: a single-writer,
// last-write-wins slot per profile holding the same progress document the
// remote store holds, plus an append-only review log. No transaction
// semantics are needed here since only one process writes it.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the sqlite driver

	"github.com/conorfennell/drillcard/internal/domain"
)

// DB wraps the sqlite connection.
type DB struct {
	conn *sql.DB
}

// Open opens the database at dsn and ensures the schema exists.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// SaveProgress overwrites the stored progress document for a profile.
func (db *DB) SaveProgress(profileID string, p domain.Progress) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode progress for %s: %w", profileID, err)
	}
	_, err = db.conn.Exec(`
		INSERT INTO progress (profile_id, document, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET document = excluded.document, saved_at = excluded.saved_at
	`, profileID, string(doc), time.Now())
	if err != nil {
		return fmt.Errorf("failed to save progress for %s: %w", profileID, err)
	}
	return nil
}

// LoadProgress reads the stored progress document for a profile. ok is false
// when no document has ever been saved for it.
func (db *DB) LoadProgress(profileID string) (domain.Progress, bool, error) {
	var doc string
	row := db.conn.QueryRow(`SELECT document FROM progress WHERE profile_id = ?`, profileID)
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return domain.Progress{}, false, nil
		}
		return domain.Progress{}, false, fmt.Errorf("failed to load progress for %s: %w", profileID, err)
	}

	var p domain.Progress
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return domain.Progress{}, false, fmt.Errorf("failed to decode progress for %s: %w", profileID, err)
	}
	return p, true, nil
}

// AppendReview records one rating event.
func (db *DB) AppendReview(entry domain.ReviewLog) error {
	_, err := db.conn.Exec(`
		INSERT INTO review_log (profile_id, card_id, quality, reviewed_at)
		VALUES (?, ?, ?, ?)
	`, entry.ProfileID, entry.CardID, entry.Quality, entry.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to append review for %s: %w", entry.CardID, err)
	}
	return nil
}

// ReviewCount returns how many ratings a profile has recorded.
func (db *DB) ReviewCount(profileID string) (int, error) {
	var n int
	row := db.conn.QueryRow(`SELECT COUNT(*) FROM review_log WHERE profile_id = ?`, profileID)
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count reviews for %s: %w", profileID, err)
	}
	return n, nil
}
