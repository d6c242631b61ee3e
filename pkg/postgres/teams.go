package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

const teamColumns = `id, name, timezone, business_start_hour, business_end_hour,
	waakdienst_handover_weekday, waakdienst_start_hour, waakdienst_end_hour,
	incidents_skip_holidays, standby_enabled, fairness_window_weeks, joiner_grace_days`

// GetTeam retrieves one team's planning configuration
func (d *DB) GetTeam(ctx context.Context, id uuid.UUID) (model.Team, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM team WHERE id = $1`, id)

	team, err := scanTeam(row)
	if err != nil {
		return model.Team{}, fmt.Errorf("failed to get team %s: %w", id, err)
	}
	return team, nil
}

// ListTeams retrieves every team
func (d *DB) ListTeams(ctx context.Context) ([]model.Team, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+teamColumns+` FROM team ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query teams: %w", err)
	}
	defer rows.Close()

	var teams []model.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, team)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating teams: %w", err)
	}

	return teams, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTeam(row rowScanner) (model.Team, error) {
	var team model.Team
	var handoverWeekday int
	err := row.Scan(
		&team.ID, &team.Name, &team.Timezone,
		&team.BusinessStartHour, &team.BusinessEndHour,
		&handoverWeekday, &team.WaakdienstStartHour, &team.WaakdienstEndHour,
		&team.IncidentsSkipHolidays, &team.StandbyEnabled,
		&team.FairnessWindowWeeks, &team.JoinerGraceDays,
	)
	if err != nil {
		return model.Team{}, err
	}
	team.WaakdienstHandoverWeekday = time.Weekday(handoverWeekday)
	return team, nil
}
