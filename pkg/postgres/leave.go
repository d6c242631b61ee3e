package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// ListApprovedLeave retrieves the employee's approved leave requests
// whose inclusive date range overlaps [from, to]
func (d *DB) ListApprovedLeave(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.LeaveRequest, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, employee_id, start_date, end_date, status, policy
		FROM leave_request
		WHERE employee_id = $1
		  AND status = $2
		  AND start_date <= $3
		  AND end_date >= $4
		ORDER BY start_date`, employeeID, model.LeaveApproved, to, from)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved leave: %w", err)
	}
	defer rows.Close()

	var leaves []model.LeaveRequest
	for rows.Next() {
		var l model.LeaveRequest
		if err := rows.Scan(&l.ID, &l.EmployeeID, &l.StartDate, &l.EndDate, &l.Status, &l.Policy); err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		leaves = append(leaves, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leave requests: %w", err)
	}

	return leaves, nil
}

// ListActivePatterns retrieves the employee's active recurring leave patterns
func (d *DB) ListActivePatterns(ctx context.Context, employeeID uuid.UUID) ([]model.RecurringLeavePattern, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, employee_id, weekday, frequency, coverage,
		       effective_from, effective_until, active
		FROM recurring_leave_pattern
		WHERE employee_id = $1 AND active
		ORDER BY effective_from`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query recurring patterns: %w", err)
	}
	defer rows.Close()

	var patterns []model.RecurringLeavePattern
	for rows.Next() {
		var p model.RecurringLeavePattern
		var weekday int
		err := rows.Scan(
			&p.ID, &p.EmployeeID, &weekday, &p.Frequency, &p.Coverage,
			&p.EffectiveFrom, &p.EffectiveUntil, &p.Active,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recurring pattern: %w", err)
		}
		p.Weekday = time.Weekday(weekday)
		patterns = append(patterns, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recurring patterns: %w", err)
	}

	return patterns, nil
}
