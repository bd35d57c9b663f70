package indexer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sha1n/docfetcher/internal/scope"
	_ "modernc.org/sqlite"
)

// StateFilename is the name of the file-state database inside an index
// directory.
const StateFilename = "state.db"

const stateSchemaVersion = 1

const stateSchema = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);
CREATE TABLE IF NOT EXISTS files (
	path     TEXT PRIMARY KEY,
	mod_time INTEGER NOT NULL,
	size     INTEGER NOT NULL
);`

// StateStore persists the file wrappers of one scope next to its index so an
// incremental update after a restart only touches changed files.
type StateStore struct {
	db *sql.DB
}

// OpenStateStore opens or creates the database at path.
func OpenStateStore(path string) (*StateStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure state db: %w", err)
		}
	}

	if _, err := db.Exec(stateSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}
	_, _ = db.Exec(`INSERT OR IGNORE INTO schema_version (version) VALUES (?)`, stateSchemaVersion)

	return &StateStore{db: db}, nil
}

// Load returns all recorded file wrappers.
func (s *StateStore) Load(ctx context.Context) ([]*scope.FileWrapper, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, mod_time, size FROM files ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("load files: %w", err)
	}
	defer rows.Close()

	var files []*scope.FileWrapper
	for rows.Next() {
		var (
			path    string
			modTime int64
			size    int64
		)
		if err := rows.Scan(&path, &modTime, &size); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, &scope.FileWrapper{
			Path:    path,
			ModTime: time.Unix(0, modTime),
			Size:    size,
		})
	}
	return files, rows.Err()
}

// Apply records put and forgets deleted in one transaction.
func (s *StateStore) Apply(ctx context.Context, put []*scope.FileWrapper, deleted []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, f := range put {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO files (path, mod_time, size) VALUES (?, ?, ?)
			ON CONFLICT(path) DO UPDATE SET mod_time = excluded.mod_time, size = excluded.size
		`, f.Path, f.ModTime.UnixNano(), f.Size); err != nil {
			return fmt.Errorf("upsert file: %w", err)
		}
	}
	for _, path := range deleted {
		if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path); err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}
