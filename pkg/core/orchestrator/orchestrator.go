// Package orchestrator produces candidate assignments per shift category
// over a planning window. It is constraint-first and fairness-driven: a
// deterministic greedy pass, never a global solver.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/db"
	"github.com/roosterplan/rooster/pkg/holidays"
)

// Orchestrator runs the per-category strategies for one team
type Orchestrator struct {
	store         db.Store
	weights       fairness.Weights
	skills        map[model.ShiftCategory]string
	extraHolidays []holidays.ExtraDay
	logger        *zap.Logger
}

// New creates an orchestrator over the given store
func New(store db.Store, weights fairness.Weights, skills map[model.ShiftCategory]string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store:   store,
		weights: weights,
		skills:  skills,
		logger:  logger,
	}
}

// SetExtraHolidays registers company closure days that every run's
// holiday calendar should carry on top of the public holidays
func (o *Orchestrator) SetExtraHolidays(days []holidays.ExtraDay) {
	o.extraHolidays = days
}

// Run generates candidates for the requested categories over
// [windowStart, windowEnd). Categories the team has disabled are skipped.
// The run is synchronous and deterministic for identical inputs.
func (o *Orchestrator) Run(ctx context.Context, team model.Team, windowStart, windowEnd time.Time, categories []model.ShiftCategory) (*Outcome, error) {
	// An invalid anchor configuration is fatal before anything else runs
	if err := anchor.ValidateTeam(team); err != nil {
		return nil, err
	}
	loc, err := team.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team timezone: %w", err)
	}

	o.logger.Debug("Starting orchestration run",
		zap.String("team", team.Name),
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd))

	rc, err := o.buildRunContext(ctx, team, loc, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		Team:        team,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Results:     make(map[model.ShiftCategory][]PeriodResult),
	}

	for _, category := range o.planOrder(team, categories) {
		strategy, err := StrategyFor(category)
		if err != nil {
			return nil, err
		}

		periods, err := strategy.Periods(windowStart, windowEnd, team)
		if err != nil {
			return nil, fmt.Errorf("failed to compute %s periods: %w", category, err)
		}
		o.logger.Debug("Planning category",
			zap.String("category", string(category)),
			zap.Int("periods", len(periods)))

		o.seedContinuity(ctx, rc, category, windowStart)

		for _, period := range periods {
			result, err := strategy.Assign(ctx, rc, period)
			if err != nil {
				return nil, fmt.Errorf("failed to assign %s period starting %s: %w",
					category, period.Start.Format("2006-01-02"), err)
			}
			outcome.Results[category] = append(outcome.Results[category], *result)
			outcome.Assignments = append(outcome.Assignments, result.Assignments...)
			outcome.Warnings = append(outcome.Warnings, result.Warnings...)
		}
	}

	o.logger.Info("Orchestration run produced candidates",
		zap.String("team", team.Name),
		zap.Int("assignments", len(outcome.Assignments)),
		zap.Int("warnings", len(outcome.Warnings)))

	return outcome, nil
}

// buildRunContext loads the employee pool and committed loads. Everything
// is re-read from the store; no state is cached across runs.
func (o *Orchestrator) buildRunContext(ctx context.Context, team model.Team, loc *time.Location, windowStart, windowEnd time.Time) (*RunContext, error) {
	members, err := o.store.ListTeamMembers(ctx, team.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	var pool []model.Employee
	for _, emp := range members {
		if emp.Active {
			pool = append(pool, emp)
		}
	}

	calendar := holidays.NewCalendar(loc)
	calendar.AddExtraDays(o.extraHolidays)
	calc := fairness.NewComprehensiveCalculator(windowStart, windowEnd, o.weights, calendar, loc)

	checker, err := constraint.NewChecker(team, o.store, o.store, o.skills, o.logger)
	if err != nil {
		return nil, err
	}

	// Committed loads include the fairness look-back before the window
	lookbackStart := windowStart.AddDate(0, 0, -int(o.weights.LookbackDays))
	history, err := o.store.ListTeamAssignments(ctx, team.ID, lookbackStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment history: %w", err)
	}
	committed := calc.CurrentAssignments(pool, history)

	return NewRunContext(team, loc, pool, checker, calendar, calc, committed, o.logger), nil
}

// seedContinuity primes the soft continuity preference with the assignee
// of the period immediately before the window
func (o *Orchestrator) seedContinuity(ctx context.Context, rc *RunContext, category model.ShiftCategory, windowStart time.Time) {
	previous, err := o.store.ListTeamAssignments(ctx, rc.Team.ID, windowStart.AddDate(0, 0, -8), windowStart)
	if err != nil {
		o.logger.Warn("Could not seed continuity preference", zap.Error(err))
		return
	}
	var latest *model.Assignment
	for i := range previous {
		a := previous[i]
		if a.Category != category || !a.ActiveOn() {
			continue
		}
		if latest == nil || a.End.After(latest.End) {
			latest = &previous[i]
		}
	}
	if latest != nil {
		rc.SeedLastAssignee(category, latest.EmployeeID)
	}
}

// planOrder filters and orders categories: incidents before standby so the
// standby pass can avoid the primary, waakdienst last
func (o *Orchestrator) planOrder(team model.Team, requested []model.ShiftCategory) []model.ShiftCategory {
	wanted := make(map[model.ShiftCategory]bool, len(requested))
	for _, c := range requested {
		wanted[c] = true
	}
	if len(requested) == 0 {
		for _, c := range model.AllCategories() {
			wanted[c] = true
		}
	}

	var ordered []model.ShiftCategory
	for _, c := range model.AllCategories() {
		if !wanted[c] {
			continue
		}
		if c == model.CategoryIncidentsStandby && !team.StandbyEnabled {
			o.logger.Debug("Skipping standby: disabled for team", zap.String("team", team.Name))
			continue
		}
		ordered = append(ordered, c)
	}
	return ordered
}
