package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// InsertRun writes a newly opened orchestration run record
func (d *DB) InsertRun(ctx context.Context, run *model.OrchestrationRun) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO orchestration_run
			(id, team_id, period_start, period_end, categories, status,
			 category_counts, total_created, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.TeamID, run.PeriodStart, run.PeriodEnd,
		categoryStrings(run.Categories), run.Status,
		countsJSON(run.CategoryCounts), run.TotalCreated, run.Error,
		run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun persists the terminal state of a run. Only runs still in
// the running state are updated; finishing an unknown or already
// terminal run is an error.
func (d *DB) FinishRun(ctx context.Context, run *model.OrchestrationRun) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE orchestration_run
		SET status = $2, category_counts = $3, total_created = $4,
		    error = $5, finished_at = $6
		WHERE id = $1 AND status = $7`,
		run.ID, run.Status, countsJSON(run.CategoryCounts),
		run.TotalCreated, run.Error, run.FinishedAt, model.RunRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s is unknown or already terminal", run.ID)
	}
	return nil
}

// ListRuns retrieves the most recent orchestration runs, newest first,
// optionally filtered to one team
func (d *DB) ListRuns(ctx context.Context, teamID *uuid.UUID, limit int) ([]model.OrchestrationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, team_id, period_start, period_end, categories, status,
		       category_counts, total_created, error, started_at, finished_at
		FROM orchestration_run
		WHERE $1::uuid IS NULL OR team_id = $1
		ORDER BY started_at DESC, id
		LIMIT $2`, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []model.OrchestrationRun
	for rows.Next() {
		var run model.OrchestrationRun
		var categories []string
		var counts []byte
		err := rows.Scan(
			&run.ID, &run.TeamID, &run.PeriodStart, &run.PeriodEnd,
			&categories, &run.Status, &counts, &run.TotalCreated,
			&run.Error, &run.StartedAt, &run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		for _, c := range categories {
			run.Categories = append(run.Categories, model.ShiftCategory(c))
		}
		if err := json.Unmarshal(counts, &run.CategoryCounts); err != nil {
			return nil, fmt.Errorf("failed to decode category counts for run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// InsertViolations writes the constraint-violation audit records of one run
func (d *DB) InsertViolations(ctx context.Context, violations []model.ConstraintViolation) error {
	if len(violations) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, v := range violations {
		_, err := tx.Exec(ctx, `
			INSERT INTO constraint_violation
				(id, run_id, assignment_id, employee_id, type, severity,
				 resolution, detail, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			v.ID, v.RunID, v.AssignmentID, v.EmployeeID,
			v.Type, v.Severity, v.Resolution, v.Detail, v.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert violation %s: %w", v.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit violations: %w", err)
	}

	return nil
}

func categoryStrings(categories []model.ShiftCategory) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

func countsJSON(counts map[model.ShiftCategory]int) []byte {
	if counts == nil {
		counts = map[model.ShiftCategory]int{}
	}
	// map keys are plain strings so marshalling cannot fail
	data, _ := json.Marshal(counts)
	return data
}
