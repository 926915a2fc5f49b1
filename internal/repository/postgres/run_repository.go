package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/andresuchdata/radx-zenodo-upload/internal/domain"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusInterrupted = "interrupted"
)

const schema = `
CREATE TABLE IF NOT EXISTS publish_runs (
	id           UUID PRIMARY KEY,
	mode         TEXT NOT NULL,
	input_file   TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at TIMESTAMPTZ,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS publish_items (
	run_id        UUID NOT NULL REFERENCES publish_runs(id),
	row_index     INTEGER NOT NULL,
	source_file   TEXT NOT NULL,
	title         TEXT NOT NULL,
	deposition_id BIGINT,
	stage         TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	keywords      TEXT[] NOT NULL DEFAULT '{}',
	recorded_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (run_id, row_index)
);`

// RunRepository is the run ledger: one publish_runs row per batch and one
// publish_items row per processed input row.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the ledger tables when missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create ledger schema: %w", err)
	}
	return nil
}

func (r *RunRepository) StartRun(ctx context.Context, runID uuid.UUID, mode domain.Mode, inputFile string) error {
	query := `
		INSERT INTO publish_runs (id, mode, input_file, status, started_at)
		VALUES ($1, $2, $3, $4, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query, runID, string(mode), inputFile, RunStatusRunning); err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	return nil
}

// RecordOutcome stores a row outcome and bumps the run counters.
func (r *RunRepository) RecordOutcome(ctx context.Context, runID uuid.UUID, o domain.Outcome) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO publish_items (
				run_id, row_index, source_file, title, deposition_id,
				stage, error_message, keywords, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (run_id, row_index)
			DO UPDATE SET
				deposition_id = EXCLUDED.deposition_id,
				stage = EXCLUDED.stage,
				error_message = EXCLUDED.error_message,
				recorded_at = NOW()
		`
		keywords := o.Keywords
		if keywords == nil {
			keywords = []string{}
		}

		_, err := tx.ExecContext(ctx, query,
			runID,
			o.RowIndex,
			o.SourceFile,
			o.Title,
			o.DepositionID,
			string(o.Stage),
			o.ErrorMessage,
			pq.Array(keywords),
		)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for row %d: %w", o.RowIndex, err)
		}

		counter := `UPDATE publish_runs SET succeeded = succeeded + 1 WHERE id = $1`
		if !o.Succeeded() {
			counter = `UPDATE publish_runs SET failed = failed + 1 WHERE id = $1`
		}
		if _, err := tx.ExecContext(ctx, counter, runID); err != nil {
			return fmt.Errorf("failed to update run counters: %w", err)
		}
		return nil
	})
}

func (r *RunRepository) FinishRun(ctx context.Context, result *domain.RunResult) error {
	status := RunStatusCompleted
	if result.Interrupted {
		status = RunStatusInterrupted
	}

	query := `
		UPDATE publish_runs
		SET status = $2, completed_at = NOW(), succeeded = $3, failed = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, result.RunID, status, len(result.Succeeded), len(result.Failed))
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", result.RunID, err)
	}
	return nil
}

// Item is a stored row outcome.
type Item struct {
	RowIndex     int            `db:"row_index"`
	SourceFile   string         `db:"source_file"`
	Title        string         `db:"title"`
	DepositionID sql.NullInt64  `db:"deposition_id"`
	Stage        string         `db:"stage"`
	ErrorMessage string         `db:"error_message"`
	Keywords     pq.StringArray `db:"keywords"`
}

// Items returns the recorded outcomes of a run ordered by row.
func (r *RunRepository) Items(ctx context.Context, runID uuid.UUID) ([]Item, error) {
	var items []Item
	query := `
		SELECT row_index, source_file, title, deposition_id, stage, error_message, keywords
		FROM publish_items
		WHERE run_id = $1
		ORDER BY row_index
	`
	if err := r.db.SelectContext(ctx, &items, query, runID); err != nil {
		return nil, fmt.Errorf("failed to list items for run %s: %w", runID, err)
	}
	return items, nil
}
