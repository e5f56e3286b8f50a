package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/anime-shed/blur-inspector-go/pkg/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS scan_runs (
	run_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	mode TEXT NOT NULL,
	threshold REAL NOT NULL,
	chunk_size INTEGER NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	processing_time_sec REAL NOT NULL,
	total INTEGER NOT NULL,
	blurred INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	degenerate INTEGER NOT NULL,
	stats_mean REAL NOT NULL,
	stats_std_dev REAL NOT NULL,
	stats_median REAL NOT NULL,
	stats_min REAL NOT NULL,
	stats_max REAL NOT NULL,
	message TEXT
);

CREATE TABLE IF NOT EXISTS image_results (
	run_id TEXT NOT NULL REFERENCES scan_runs(run_id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	handle TEXT NOT NULL,
	file_name TEXT NOT NULL,
	is_blurred INTEGER NOT NULL,
	threshold REAL NOT NULL,
	score REAL NOT NULL,
	degenerate INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	error_type TEXT,
	deleted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_image_results_handle ON image_results(run_id, handle);
CREATE INDEX IF NOT EXISTS idx_scan_runs_started ON scan_runs(started_at);`

// timeLayout is fixed width so stored timestamps sort as text
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteScanRepository implements ScanRepository on a sqlite file
type SQLiteScanRepository struct {
	db *sql.DB
}

// NewSQLiteScanRepository opens (and if needed creates) the scan history database
func NewSQLiteScanRepository(dbPath string) (*SQLiteScanRepository, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRepositoryUnavailable, err)
	}
	// a single connection serialises writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", ErrRepositoryUnavailable, err)
	}
	return &SQLiteScanRepository{db: db}, nil
}

// SaveRun stores a report and its results in one transaction
func (r *SQLiteScanRepository) SaveRun(ctx context.Context, report *models.ScanReport) error {
	if report == nil || report.RunID == "" {
		return ErrInvalidRun
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM image_results WHERE run_id = ?", report.RunID); err != nil {
		return fmt.Errorf("replace results: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM scan_runs WHERE run_id = ?", report.RunID); err != nil {
		return fmt.Errorf("replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO scan_runs (
		run_id, source, mode, threshold, chunk_size, started_at, finished_at,
		processing_time_sec, total, blurred, failed, degenerate,
		stats_mean, stats_std_dev, stats_median, stats_min, stats_max, message
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Source, string(report.Mode), report.Threshold, report.ChunkSize,
		report.StartedAt.UTC().Format(timeLayout), report.FinishedAt.UTC().Format(timeLayout),
		report.ProcessingTimeSec, report.Total, report.Blurred, report.Failed, report.Degenerate,
		report.Stats.Mean, report.Stats.StdDev, report.Stats.Median, report.Stats.Min, report.Stats.Max,
		report.Message,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO image_results (
		run_id, position, handle, file_name, is_blurred, threshold, score,
		degenerate, error, error_type, deleted
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare result insert: %w", err)
	}
	defer stmt.Close()

	for i, res := range report.Results {
		_, err := stmt.ExecContext(ctx,
			report.RunID, i, string(res.ID), res.FileName, res.IsBlurred, res.Threshold, res.Score,
			res.Degenerate, res.Error, res.ErrorType, res.Deleted,
		)
		if err != nil {
			return fmt.Errorf("insert result %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetRun loads a report with its results in input order
func (r *SQLiteScanRepository) GetRun(ctx context.Context, runID string) (*models.ScanReport, error) {
	row := r.db.QueryRowContext(ctx, runSelect+" WHERE run_id = ?", runID)
	report, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT handle, file_name, is_blurred, threshold, score,
		degenerate, error, error_type, deleted
		FROM image_results WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	report.Results = make([]models.ImageResult, 0, report.Total)
	for rows.Next() {
		var res models.ImageResult
		var handle string
		var errMsg, errType sql.NullString
		if err := rows.Scan(&handle, &res.FileName, &res.IsBlurred, &res.Threshold, &res.Score,
			&res.Degenerate, &errMsg, &errType, &res.Deleted); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		res.ID = models.ImageHandle(handle)
		res.Error = errMsg.String
		res.ErrorType = errType.String
		report.Results = append(report.Results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}

	report.BlurredIDs = models.BlurredHandles(report.Results)
	return report, nil
}

// ListRuns returns run summaries, newest first
func (r *SQLiteScanRepository) ListRuns(ctx context.Context, limit int) ([]*models.ScanReport, error) {
	query := runSelect + " ORDER BY started_at DESC, run_id"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*models.ScanReport, 0)
	for rows.Next() {
		report, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for _, report := range runs {
		if report.BlurredIDs, err = r.blurredIDs(ctx, report.RunID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// blurredIDs lists a run's blurred, scored, not yet deleted handles in input order
func (r *SQLiteScanRepository) blurredIDs(ctx context.Context, runID string) ([]models.ImageHandle, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT handle FROM image_results
		WHERE run_id = ? AND is_blurred = 1 AND deleted = 0 AND COALESCE(error, '') = ''
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query blurred: %w", err)
	}
	defer rows.Close()

	ids := make([]models.ImageHandle, 0)
	for rows.Next() {
		var handle string
		if err := rows.Scan(&handle); err != nil {
			return nil, fmt.Errorf("scan blurred: %w", err)
		}
		ids = append(ids, models.ImageHandle(handle))
	}
	return ids, rows.Err()
}

// MarkDeleted flags results of a run as deleted
func (r *SQLiteScanRepository) MarkDeleted(ctx context.Context, runID string, handles []models.ImageHandle) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM scan_runs WHERE run_id = ?", runID).Scan(&exists); err != nil {
		return fmt.Errorf("lookup run: %w", err)
	}
	if exists == 0 {
		return ErrRunNotFound
	}

	stmt, err := tx.PrepareContext(ctx, "UPDATE image_results SET deleted = 1 WHERE run_id = ? AND handle = ?")
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, h := range handles {
		if _, err := stmt.ExecContext(ctx, runID, string(h)); err != nil {
			return fmt.Errorf("mark %s deleted: %w", h, err)
		}
	}
	return tx.Commit()
}

// Close closes the database
func (r *SQLiteScanRepository) Close() error {
	return r.db.Close()
}

const runSelect = `SELECT run_id, source, mode, threshold, chunk_size, started_at, finished_at,
	processing_time_sec, total, blurred, failed, degenerate,
	stats_mean, stats_std_dev, stats_median, stats_min, stats_max, message
	FROM scan_runs`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*models.ScanReport, error) {
	var report models.ScanReport
	var mode, started, finished string
	var message sql.NullString

	err := row.Scan(&report.RunID, &report.Source, &mode, &report.Threshold, &report.ChunkSize,
		&started, &finished, &report.ProcessingTimeSec,
		&report.Total, &report.Blurred, &report.Failed, &report.Degenerate,
		&report.Stats.Mean, &report.Stats.StdDev, &report.Stats.Median, &report.Stats.Min, &report.Stats.Max,
		&message)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}

	report.Mode = models.ScanMode(mode)
	report.Message = message.String
	if report.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if report.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	report.BlurredIDs = make([]models.ImageHandle, 0)
	return &report, nil
}
