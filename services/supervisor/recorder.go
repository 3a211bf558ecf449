package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nodeflow/services/engine"
)

// RunRecord is the persisted form of a run's status.
type RunRecord struct {
	RunID          string
	WorkflowID     string
	State          engine.State
	ResultsVersion uint64
	LatestResults  *engine.Snapshot
	Error          string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

func recordFromStatus(st Status) RunRecord {
	return RunRecord{
		RunID:          st.RunID,
		WorkflowID:     st.WorkflowID,
		State:          st.State,
		ResultsVersion: st.ResultsVersion,
		LatestResults:  st.LatestResults,
		Error:          st.Error,
		StartedAt:      st.StartedAt,
		UpdatedAt:      st.UpdatedAt,
	}
}

func (r *RunRecord) status(since uint64) Status {
	st := Status{
		RunID:          r.RunID,
		WorkflowID:     r.WorkflowID,
		State:          r.State,
		ResultsVersion: r.ResultsVersion,
		ExecutedNodes:  []string{},
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		UpdatedAt:      r.UpdatedAt,
	}
	if r.LatestResults != nil {
		st.ExecutedNodes = r.LatestResults.ExecutedNodes
		st.Errors = r.LatestResults.Errors
		if r.ResultsVersion > since {
			st.LatestResults = r.LatestResults
		}
	}
	return st
}

// Recorder persists run records so status survives the process.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
	// Load returns nil, nil if the run was never recorded.
	Load(ctx context.Context, runID string) (*RunRecord, error)
}

// RunRepository stores run records in PostgreSQL.
type RunRepository struct {
	db *pgxpool.Pool
}

// NewRunRepository creates a RunRepository backed by the given connection pool.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{db: pool}
}

// InitSchema creates the runs table if it does not exist.
func (r *RunRepository) InitSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id              TEXT PRIMARY KEY,
			workflow_id     TEXT NOT NULL,
			state           TEXT NOT NULL,
			results_version BIGINT NOT NULL DEFAULT 0,
			latest_results  JSONB,
			error           TEXT NOT NULL DEFAULT '',
			started_at      TIMESTAMPTZ NOT NULL,
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("init runs schema: %w", err)
	}
	return nil
}

// Record upserts a run record. A record never moves to an older results version.
func (r *RunRepository) Record(ctx context.Context, rec RunRecord) error {
	var results []byte
	if rec.LatestResults != nil {
		var err error
		if results, err = json.Marshal(rec.LatestResults); err != nil {
			return fmt.Errorf("marshal results: %w", err)
		}
	}

	_, err := r.db.Exec(ctx, `
		INSERT INTO runs (id, workflow_id, state, results_version, latest_results, error, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE
		SET state = EXCLUDED.state,
		    results_version = EXCLUDED.results_version,
		    latest_results = COALESCE(EXCLUDED.latest_results, runs.latest_results),
		    error = EXCLUDED.error,
		    updated_at = EXCLUDED.updated_at
		WHERE runs.results_version <= EXCLUDED.results_version
	`, rec.RunID, rec.WorkflowID, string(rec.State), int64(rec.ResultsVersion), results, rec.Error, rec.StartedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	return nil
}

// Load retrieves a run record by id. Returns nil, nil if not found.
func (r *RunRepository) Load(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	var state string
	var version int64
	var results []byte

	err := r.db.QueryRow(ctx, `
		SELECT id, workflow_id, state, results_version, latest_results, error, started_at, updated_at
		FROM runs WHERE id = $1
	`, runID).Scan(&rec.RunID, &rec.WorkflowID, &state, &version, &results, &rec.Error, &rec.StartedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}

	rec.State = engine.State(state)
	rec.ResultsVersion = uint64(version)
	if len(results) > 0 {
		rec.LatestResults = &engine.Snapshot{}
		if err := json.Unmarshal(results, rec.LatestResults); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return &rec, nil
}
