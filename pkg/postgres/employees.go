package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// ListTeamMembers retrieves every employee belonging to the team,
// including inactive ones; callers filter on the flags they care about.
func (d *DB) ListTeamMembers(ctx context.Context, teamID uuid.UUID) ([]model.Employee, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id, first_name, last_name, email, active,
		       available_for_incidents, available_for_waakdienst,
		       skills, fte, hired_at, terminated_at
		FROM employee
		WHERE team_id = $1
		ORDER BY id`, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to query team members: %w", err)
	}
	defer rows.Close()

	var employees []model.Employee
	for rows.Next() {
		var e model.Employee
		err := rows.Scan(
			&e.ID, &e.FirstName, &e.LastName, &e.Email, &e.Active,
			&e.AvailableForIncidents, &e.AvailableForWaakdienst,
			&e.Skills, &e.FTE, &e.HiredAt, &e.TerminatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating employees: %w", err)
	}

	return employees, nil
}
