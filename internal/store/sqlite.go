package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"foldcast/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	created_at   INTEGER NOT NULL,
	dataset      TEXT NOT NULL,
	estimator    TEXT NOT NULL,
	aggregation  TEXT NOT NULL,
	metric_names TEXT NOT NULL,
	config       TEXT NOT NULL,
	folds        INTEGER NOT NULL,
	failed_folds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at);

CREATE TABLE IF NOT EXISTS series_summaries (
	run_id       TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	position     INTEGER NOT NULL,
	series_id    TEXT NOT NULL,
	folds        INTEGER NOT NULL,
	failed_folds INTEGER NOT NULL,
	PRIMARY KEY (run_id, series_id)
);

CREATE TABLE IF NOT EXISTS run_metrics (
	run_id    TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
	scope     TEXT NOT NULL,
	series_id TEXT NOT NULL DEFAULT '',
	metric    TEXT NOT NULL,
	value     REAL NOT NULL,
	PRIMARY KEY (run_id, scope, series_id, metric)
);
`

// Metric scopes stored in run_metrics.
const (
	scopeGlobal = "global"
	scopePooled = "pooled"
	scopeSeries = "series"
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates the
// schema and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run with its series summaries and metrics in one
// transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run.Result == nil {
		return errors.New("run has no result")
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	names, err := json.Marshal(run.Result.MetricNames)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res := run.Result
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, dataset, estimator, aggregation, metric_names, config, folds, failed_folds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.Dataset, run.Estimator, string(res.Aggregation),
		string(names), run.Config, len(res.Folds), res.FailedFolds(),
	); err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	for i, sm := range res.Series {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO series_summaries (run_id, position, series_id, folds, failed_folds) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, sm.SeriesID, sm.Folds, sm.FailedFolds,
		); err != nil {
			return fmt.Errorf("inserting summary for %s: %w", sm.SeriesID, err)
		}
		if err := insertMetrics(ctx, tx, run.ID, scopeSeries, sm.SeriesID, sm.Metrics); err != nil {
			return err
		}
	}
	if err := insertMetrics(ctx, tx, run.ID, scopeGlobal, "", res.Global); err != nil {
		return err
	}
	if err := insertMetrics(ctx, tx, run.ID, scopePooled, "", res.Pooled); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMetrics(ctx context.Context, tx *sql.Tx, runID, scope, seriesID string, metrics map[string]float64) error {
	for _, name := range sortedKeys(metrics) {
		// SQLite stores NaN as NULL.
		if math.IsNaN(metrics[name]) {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_metrics (run_id, scope, series_id, metric, value) VALUES (?, ?, ?, ?, ?)`,
			runID, scope, seriesID, name, metrics[name],
		); err != nil {
			return fmt.Errorf("inserting %s metric %s: %w", scope, name, err)
		}
	}
	return nil
}

// GetRun retrieves a run by ID with its summaries. Result.Folds is nil.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, dataset, estimator, aggregation, metric_names, config FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadSummaries(ctx, run); err != nil {
		return nil, err
	}
	if err := s.loadMetrics(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) loadSummaries(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT series_id, folds, failed_folds FROM series_summaries WHERE run_id = ? ORDER BY position`, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var sm domain.SeriesSummary
		if err := rows.Scan(&sm.SeriesID, &sm.Folds, &sm.FailedFolds); err != nil {
			return err
		}
		sm.Metrics = make(map[string]float64)
		run.Result.Series = append(run.Result.Series, sm)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadMetrics(ctx context.Context, run *Run) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, series_id, metric, value FROM run_metrics WHERE run_id = ?`, run.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	res := run.Result
	for rows.Next() {
		var scope, seriesID, name string
		var v float64
		if err := rows.Scan(&scope, &seriesID, &name, &v); err != nil {
			return err
		}
		switch scope {
		case scopeGlobal:
			res.Global[name] = v
		case scopePooled:
			res.Pooled[name] = v
		case scopeSeries:
			for i := range res.Series {
				if res.Series[i].SeriesID == seriesID {
					res.Series[i].Metrics[name] = v
				}
			}
		}
	}
	return rows.Err()
}

// ListRuns returns the most recent runs first, up to limit. Listed runs
// carry no series summaries or metrics.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, dataset, estimator, aggregation, metric_names, config
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		run       Run
		createdAt int64
		agg       string
		names     string
	)
	if err := sc.Scan(&run.ID, &createdAt, &run.Dataset, &run.Estimator, &agg, &names, &run.Config); err != nil {
		return nil, err
	}
	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.Result = &domain.BacktestResult{
		Aggregation: domain.Aggregation(agg),
		Global:      make(map[string]float64),
		Pooled:      make(map[string]float64),
	}
	if err := json.Unmarshal([]byte(names), &run.Result.MetricNames); err != nil {
		return nil, fmt.Errorf("decoding metric names of run %s: %w", run.ID, err)
	}
	return &run, nil
}
