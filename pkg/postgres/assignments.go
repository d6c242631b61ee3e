package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

const assignmentColumns = `id, team_id, employee_id, category, start_at, end_at,
	status, auto_assigned, manual_override, reason,
	split_period_start, split_period_end, split_partner_id`

// ListTeamAssignments retrieves the team's non-cancelled assignments
// overlapping [from, to)
func (d *DB) ListTeamAssignments(ctx context.Context, teamID uuid.UUID, from, to time.Time) ([]model.Assignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignment
		WHERE team_id = $1
		  AND status <> $2
		  AND start_at < $3
		  AND end_at > $4
		ORDER BY start_at, id`, teamID, model.AssignmentCancelled, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query team assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// ListEmployeeAssignments retrieves the employee's non-cancelled
// assignments overlapping [from, to), across all teams
func (d *DB) ListEmployeeAssignments(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.Assignment, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignment
		WHERE employee_id = $1
		  AND status <> $2
		  AND start_at < $3
		  AND end_at > $4
		ORDER BY start_at, id`, employeeID, model.AssignmentCancelled, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee assignments: %w", err)
	}
	defer rows.Close()

	return collectAssignments(rows)
}

// InsertAssignments writes all assignments of one run in a single
// transaction so a partial schedule is never persisted
func (d *DB) InsertAssignments(ctx context.Context, assignments []model.Assignment) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, a := range assignments {
		var splitStart, splitEnd *time.Time
		var splitPartner *uuid.UUID
		if a.Split != nil {
			splitStart = &a.Split.PeriodStart
			splitEnd = &a.Split.PeriodEnd
			splitPartner = &a.Split.PartnerID
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO assignment (`+assignmentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			a.ID, a.TeamID, a.EmployeeID, a.Category, a.Start, a.End,
			a.Status, a.AutoAssigned, a.ManualOverride, a.Reason,
			splitStart, splitEnd, splitPartner,
		)
		if err != nil {
			return fmt.Errorf("failed to insert assignment %s: %w", a.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignments: %w", err)
	}

	return nil
}

// DeleteAutoAssignments removes the team's auto-generated assignments
// starting at or after the cutover and returns how many were removed
func (d *DB) DeleteAutoAssignments(ctx context.Context, teamID uuid.UUID, cutover time.Time) (int64, error) {
	tag, err := d.pool.Exec(ctx, `
		DELETE FROM assignment
		WHERE team_id = $1 AND auto_assigned AND start_at >= $2`, teamID, cutover)
	if err != nil {
		return 0, fmt.Errorf("failed to delete auto assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}

type assignmentRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectAssignments(rows assignmentRows) ([]model.Assignment, error) {
	var assignments []model.Assignment
	for rows.Next() {
		var a model.Assignment
		var splitStart, splitEnd *time.Time
		var splitPartner *uuid.UUID
		err := rows.Scan(
			&a.ID, &a.TeamID, &a.EmployeeID, &a.Category, &a.Start, &a.End,
			&a.Status, &a.AutoAssigned, &a.ManualOverride, &a.Reason,
			&splitStart, &splitEnd, &splitPartner,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		if splitStart != nil && splitEnd != nil && splitPartner != nil {
			a.Split = &model.SplitCoverage{
				PeriodStart: *splitStart,
				PeriodEnd:   *splitEnd,
				PartnerID:   *splitPartner,
			}
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}
