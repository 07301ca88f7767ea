// Package catalog provides the SQLite-backed indexing catalog: stable point
// ID allocation per filename, change detection for incremental runs, and
// indexing run reports.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Catalog maps filenames to point IDs and records indexing runs.
//
// ID allocation strategy: a rebuild resets the catalog so the counter starts
// at zero; an incremental append returns the previously assigned ID for a
// known filename (upsert then replaces the record in the store) and
// max(point_id)+1 for a new one. IDs therefore never collide across runs.
type Catalog struct {
	db *sql.DB
}

// Entry is one cataloged image file.
type Entry struct {
	Filename  string
	PointID   uint64
	Mtime     int64
	Size      int64
	IndexedAt time.Time
}

// Run is one recorded indexing run.
type Run struct {
	ID         string    `json:"id"`
	Mode       string    `json:"mode"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Total      int       `json:"total"`
	Indexed    int       `json:"indexed"`
	Skipped    int       `json:"skipped"`
	Failed     string    `json:"failed,omitempty"`
}

// New opens or creates the catalog database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func New(dbPath string) (*Catalog, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		filename TEXT PRIMARY KEY,
		point_id INTEGER NOT NULL UNIQUE,
		mtime INTEGER NOT NULL DEFAULT 0,
		size INTEGER NOT NULL DEFAULT 0,
		indexed_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NOT NULL,
		total INTEGER NOT NULL,
		indexed INTEGER NOT NULL,
		skipped INTEGER NOT NULL,
		failed TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`
	_, err := db.Exec(schema)
	return err
}

// Reset clears all image entries. Called by the rebuild path before indexing
// so point IDs restart from zero.
func (c *Catalog) Reset(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM images"); err != nil {
		return fmt.Errorf("reset catalog: %w", err)
	}
	return nil
}

// AllocateID returns the point ID for filename, assigning the next free ID to
// a filename seen for the first time. The assignment is durable immediately;
// Mark finalizes the entry once the record is committed to the store.
func (c *Catalog) AllocateID(ctx context.Context, filename string) (uint64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id uint64
	err = tx.QueryRowContext(ctx,
		"SELECT point_id FROM images WHERE filename = ?", filename).Scan(&id)
	if err == nil {
		return id, tx.Commit()
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("allocate id: %w", err)
	}

	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(point_id) + 1, 0) FROM images").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO images (filename, point_id) VALUES (?, ?)", filename, id)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return id, tx.Commit()
}

// Mark records that filename was committed to the store with the given file
// mtime (unix nanoseconds) and size.
func (c *Catalog) Mark(ctx context.Context, filename string, mtime, size int64) error {
	_, err := c.db.ExecContext(ctx,
		"UPDATE images SET mtime = ?, size = ?, indexed_at = ? WHERE filename = ?",
		mtime, size, time.Now(), filename)
	if err != nil {
		return fmt.Errorf("mark indexed: %w", err)
	}
	return nil
}

// NeedsIndexing reports whether filename must be (re)indexed: unknown files,
// and known files whose mtime or size changed since they were marked.
func (c *Catalog) NeedsIndexing(ctx context.Context, filename string, mtime, size int64) (bool, error) {
	var storedMtime, storedSize int64
	err := c.db.QueryRowContext(ctx,
		"SELECT mtime, size FROM images WHERE filename = ?", filename).Scan(&storedMtime, &storedSize)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("check catalog: %w", err)
	}
	return storedMtime != mtime || storedSize != size, nil
}

// Count returns the number of cataloged images.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images").Scan(&n); err != nil {
		return 0, fmt.Errorf("count catalog: %w", err)
	}
	return n, nil
}

// SaveRun records a finished indexing run.
func (c *Catalog) SaveRun(ctx context.Context, run *Run) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO runs (id, mode, started_at, finished_at, total, indexed, skipped, failed)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.StartedAt, run.FinishedAt, run.Total, run.Indexed, run.Skipped, run.Failed)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// LastRun returns the most recent indexing run, or nil when none exist.
func (c *Catalog) LastRun(ctx context.Context) (*Run, error) {
	var run Run
	err := c.db.QueryRowContext(ctx,
		`SELECT id, mode, started_at, finished_at, total, indexed, skipped, failed
		 FROM runs ORDER BY started_at DESC LIMIT 1`).
		Scan(&run.ID, &run.Mode, &run.StartedAt, &run.FinishedAt,
			&run.Total, &run.Indexed, &run.Skipped, &run.Failed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last run: %w", err)
	}
	return &run, nil
}

// Close closes the underlying database.
func (c *Catalog) Close() error {
	return c.db.Close()
}
