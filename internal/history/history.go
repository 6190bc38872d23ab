// Package history persists deployment results in SQLite. The store is an
// observability convenience on top of the result topic, not the source of
// truth: the topic is.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a repository has no recorded results.
var ErrNotFound = errors.New("no deployment results recorded")

// History manages the deployment result store.
type History struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	h := &History{db: db}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	_, err := h.db.Exec(`
		CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			repo_name TEXT NOT NULL,
			branch TEXT NOT NULL,
			commit_hash TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			success INTEGER NOT NULL,
			message TEXT NOT NULL,
			duration_seconds REAL NOT NULL,
			created_at TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = h.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_repo_created
		ON results(repo_name, created_at DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Record inserts one deployment result and returns its generated id.
func (h *History) Record(ctx context.Context, rec *Record) (string, error) {
	id := uuid.NewString()
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO results
		(id, repo_name, branch, commit_hash, delivery_id, success,
		 message, duration_seconds, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		rec.RepoName,
		rec.Branch,
		rec.Commit,
		rec.DeliveryID,
		boolToInt(rec.Success),
		rec.Message,
		rec.DurationSeconds,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert result: %w", err)
	}

	return id, nil
}

// Latest returns the most recent result for a repository, or ErrNotFound.
func (h *History) Latest(ctx context.Context, repoName string) (*Record, error) {
	row := h.db.QueryRowContext(ctx, `
		SELECT id, repo_name, branch, commit_hash, delivery_id, success,
		       message, duration_seconds, created_at
		FROM results
		WHERE repo_name = ?
		ORDER BY created_at DESC, id
		LIMIT 1
	`, repoName)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest result: %w", err)
	}
	return rec, nil
}

// Recent returns up to limit results for a repository, newest first.
func (h *History) Recent(ctx context.Context, repoName string, limit int) ([]Record, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, repo_name, branch, commit_hash, delivery_id, success,
		       message, duration_seconds, created_at
		FROM results
		WHERE repo_name = ?
		ORDER BY created_at DESC, id
		LIMIT ?
	`, repoName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent results: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		records = append(records, *rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var success int
	var createdAt string

	if err := s.Scan(
		&rec.ID,
		&rec.RepoName,
		&rec.Branch,
		&rec.Commit,
		&rec.DeliveryID,
		&success,
		&rec.Message,
		&rec.DurationSeconds,
		&createdAt,
	); err != nil {
		return nil, err
	}

	rec.Success = success != 0
	if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
		rec.CreatedAt = t
	}

	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
