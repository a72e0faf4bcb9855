package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/lanhoang/maildigest/internal/model"
)

// Store persists run history and archived digest documents in a local
// SQLite database. It is bookkeeping only: the pipeline's correctness
// never depends on it, and archive failures do not fail a run.
type Store struct {
	db *sqlx.DB
}

// Digest is an archived digest document tied to a run.
type Digest struct {
	RunID     string    `db:"run_id"`
	Subject   string    `db:"subject"`
	HTML      string    `db:"html"`
	Report    string    `db:"report"`
	CreatedAt time.Time `db:"created_at"`
}

// Open opens (or creates) the archive database at dbPath, enables WAL
// mode, and runs any pending schema migrations.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening archive db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *Store) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// RecordRun inserts the terminal report of a completed run.
func (s *Store) RecordRun(ctx context.Context, report model.RunReport) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, batch_count, succeeded, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, string(report.Status),
		report.BatchCount, report.Succeeded, report.Message,
		report.StartedAt.UTC(), report.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", report.RunID, err)
	}
	return nil
}

// SaveDigest archives the rendered digest document for a run.
func (s *Store) SaveDigest(ctx context.Context, d Digest) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO digests (run_id, subject, html, report, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.RunID, d.Subject, d.HTML, d.Report, d.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("saving digest for run %s: %w", d.RunID, err)
	}
	return nil
}

// RecentRuns retrieves the most recent run reports, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, status, batch_count, succeeded, message, started_at, finished_at
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var reports []model.RunReport
	for rows.Next() {
		var (
			report model.RunReport
			status string
		)
		err := rows.Scan(
			&report.RunID, &status,
			&report.BatchCount, &report.Succeeded, &report.Message,
			&report.StartedAt, &report.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		report.Status = model.RunStatus(status)
		reports = append(reports, report)
	}

	return reports, rows.Err()
}

// GetDigest retrieves the archived digest for a run, or nil if none
// was stored.
func (s *Store) GetDigest(ctx context.Context, runID string) (*Digest, error) {
	var d Digest
	err := s.db.GetContext(ctx, &d,
		"SELECT run_id, subject, html, report, created_at FROM digests WHERE run_id = ?",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting digest for run %s: %w", runID, err)
	}
	return &d, nil
}
