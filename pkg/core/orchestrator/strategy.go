package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/model"
)

// Strategy is the per-category assignment behaviour. The set is closed:
// incidents, incidents-standby and waakdienst, each a tagged variant of
// one of the two shapes below rather than a subclass hierarchy.
type Strategy interface {
	Category() model.ShiftCategory
	// Periods returns the complete planning periods inside the window
	Periods(windowStart, windowEnd time.Time, team model.Team) ([]anchor.Period, error)
	// Assign produces candidate assignments for one period
	Assign(ctx context.Context, rc *RunContext, period anchor.Period) (*PeriodResult, error)
}

// StrategyFor returns the strategy variant for a category
func StrategyFor(category model.ShiftCategory) (Strategy, error) {
	switch category {
	case model.CategoryIncidents:
		return &businessHoursStrategy{category: model.CategoryIncidents}, nil
	case model.CategoryIncidentsStandby:
		return &businessHoursStrategy{category: model.CategoryIncidentsStandby}, nil
	case model.CategoryWaakdienst:
		return &waakdienstStrategy{}, nil
	}
	return nil, fmt.Errorf("unknown shift category %q", category)
}

// businessHoursStrategy plans Mon-Fri coverage. It prefers one employee
// for the whole week; when nobody is fully available it keeps the
// most-available employee as primary and finds day-level substitutes for
// the conflicted days only, preserving continuity for the rest.
type businessHoursStrategy struct {
	category model.ShiftCategory
}

func (s *businessHoursStrategy) Category() model.ShiftCategory {
	return s.category
}

func (s *businessHoursStrategy) Periods(windowStart, windowEnd time.Time, team model.Team) ([]anchor.Period, error) {
	return anchor.PeriodsFor(s.category, windowStart, windowEnd, team)
}

func (s *businessHoursStrategy) Assign(ctx context.Context, rc *RunContext, period anchor.Period) (*PeriodResult, error) {
	result := &PeriodResult{Period: period, Coverage: Uncovered}

	days, err := anchor.BusinessDays(period, rc.Team)
	if err != nil {
		return nil, fmt.Errorf("failed to expand business days: %w", err)
	}

	// Teams may skip incidents coverage on public holidays entirely
	if rc.Team.IncidentsSkipHolidays {
		var kept []anchor.DayWindow
		for _, day := range days {
			if name, holiday := rc.Calendar.IsHoliday(day.Start); holiday {
				rc.Logger.Debug("Skipping holiday in business period",
					zap.String("date", day.Date.Format("2006-01-02")),
					zap.String("holiday", name))
				continue
			}
			kept = append(kept, day)
		}
		days = kept
	}

	if len(days) == 0 {
		result.Coverage = FullyCovered // nothing to cover
		return result, nil
	}

	// Build each employee's available-day set. A check failure for one
	// employee only removes that employee from this period's pool.
	availability := make(map[uuid.UUID][]anchor.DayWindow)
	var fullyAvailable []model.Employee
	var partial []model.Employee
	for _, emp := range rc.Employees() {
		var available []anchor.DayWindow
		failed := false
		for _, day := range days {
			ok, err := rc.Available(ctx, emp, day.Start, day.End, s.category)
			if err != nil {
				rc.Logger.Warn("Excluding employee from period after availability failure",
					zap.String("employee", emp.FullName()),
					zap.Error(err))
				failed = true
				break
			}
			if ok {
				available = append(available, day)
			}
		}
		if failed || len(available) == 0 {
			continue
		}
		availability[emp.ID] = available
		if len(available) == len(days) {
			fullyAvailable = append(fullyAvailable, emp)
		} else {
			partial = append(partial, emp)
		}
	}

	// Preferred path: one employee covers the whole period
	if len(fullyAvailable) > 0 {
		chosen := rc.LeastLoaded(fullyAvailable, s.category)
		a := newAssignment(rc.Team.ID, chosen.ID, s.category, period.Start, period.End,
			fmt.Sprintf("auto-assigned full %s period", s.category))
		rc.AddAssignment(a)
		rc.RememberAssignee(s.category, chosen.ID)
		result.Assignments = append(result.Assignments, a)
		result.Coverage = FullyCovered
		return result, nil
	}

	if len(partial) == 0 {
		noEligible := &NoEligibleEmployeeError{Category: s.category, PeriodStart: period.Start}
		result.Warnings = append(result.Warnings, noEligible.Error())
		rc.Logger.Warn("Period left unassigned", zap.Error(noEligible))
		return result, nil
	}

	// Most-available partial candidate becomes primary; ties break on load
	primary := mostAvailable(rc, partial, availability, s.category)
	primaryDays := availability[primary.ID]
	primaryDates := make(map[string]bool, len(primaryDays))
	for _, day := range primaryDays {
		primaryDates[day.Date.Format("2006-01-02")] = true
	}

	split := &model.SplitCoverage{PeriodStart: period.Start, PeriodEnd: period.End}

	// Primary keeps contiguous runs of its available days
	for _, run := range contiguousRuns(primaryDays) {
		a := newAssignment(rc.Team.ID, primary.ID, s.category, run[0].Start, run[len(run)-1].End,
			"split coverage: primary")
		a.Split = split
		rc.AddAssignment(a)
		result.Assignments = append(result.Assignments, a)
	}
	rc.RememberAssignee(s.category, primary.ID)

	// Day-level substitutes for the conflicted days only
	covered := len(primaryDays)
	for _, day := range days {
		if primaryDates[day.Date.Format("2006-01-02")] {
			continue
		}

		var candidates []model.Employee
		for _, emp := range partial {
			if emp.ID == primary.ID {
				continue
			}
			for _, avail := range availability[emp.ID] {
				if avail.Date.Equal(day.Date) {
					candidates = append(candidates, emp)
					break
				}
			}
		}

		substitute := rc.LeastLoaded(candidates, s.category)
		if substitute == nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf(
				"no substitute for %s on %s", s.category, day.Date.Format("2006-01-02")))
			continue
		}

		a := newAssignment(rc.Team.ID, substitute.ID, s.category, day.Start, day.End,
			fmt.Sprintf("split coverage: substitute for %s", day.Date.Format("2006-01-02")))
		a.Split = &model.SplitCoverage{PeriodStart: period.Start, PeriodEnd: period.End, PartnerID: primary.ID}
		if split.PartnerID == uuid.Nil {
			split.PartnerID = substitute.ID
		}
		rc.AddAssignment(a)
		result.Assignments = append(result.Assignments, a)
		covered++
	}

	if covered == len(days) {
		result.Coverage = FullyCovered
	} else if covered > 0 {
		result.Coverage = PartiallyCovered
	}

	return result, nil
}

// waakdienstStrategy assigns one employee per full handover-to-handover
// week. Continuity is a soft preference that only breaks exact fairness
// ties; fairness always wins.
type waakdienstStrategy struct{}

func (s *waakdienstStrategy) Category() model.ShiftCategory {
	return model.CategoryWaakdienst
}

func (s *waakdienstStrategy) Periods(windowStart, windowEnd time.Time, team model.Team) ([]anchor.Period, error) {
	return anchor.PeriodsFor(model.CategoryWaakdienst, windowStart, windowEnd, team)
}

func (s *waakdienstStrategy) Assign(ctx context.Context, rc *RunContext, period anchor.Period) (*PeriodResult, error) {
	result := &PeriodResult{Period: period, Coverage: Uncovered}

	var candidates []model.Employee
	for _, emp := range rc.Employees() {
		ok, err := rc.Available(ctx, emp, period.Start, period.End, model.CategoryWaakdienst)
		if err != nil {
			rc.Logger.Warn("Excluding employee from period after availability failure",
				zap.String("employee", emp.FullName()),
				zap.Error(err))
			continue
		}
		if ok {
			candidates = append(candidates, emp)
		}
	}

	chosen := rc.LeastLoaded(candidates, model.CategoryWaakdienst)
	if chosen == nil {
		noEligible := &NoEligibleEmployeeError{Category: model.CategoryWaakdienst, PeriodStart: period.Start}
		result.Warnings = append(result.Warnings, noEligible.Error())
		rc.Logger.Warn("Period left unassigned", zap.Error(noEligible))
		return result, nil
	}

	a := newAssignment(rc.Team.ID, chosen.ID, model.CategoryWaakdienst, period.Start, period.End,
		"auto-assigned waakdienst week")
	rc.AddAssignment(a)
	rc.RememberAssignee(model.CategoryWaakdienst, chosen.ID)
	result.Assignments = append(result.Assignments, a)
	result.Coverage = FullyCovered

	return result, nil
}

// newAssignment builds a scheduled, auto-assigned candidate
func newAssignment(teamID, employeeID uuid.UUID, category model.ShiftCategory, start, end time.Time, reason string) model.Assignment {
	return model.Assignment{
		ID:           uuid.New(),
		TeamID:       teamID,
		EmployeeID:   employeeID,
		Category:     category,
		Start:        start,
		End:          end,
		Status:       model.AssignmentScheduled,
		AutoAssigned: true,
		Reason:       reason,
	}
}

// mostAvailable picks the employee covering the most days; ties break on
// lower load, then lexically smallest ID
func mostAvailable(rc *RunContext, candidates []model.Employee, availability map[uuid.UUID][]anchor.DayWindow, category model.ShiftCategory) model.Employee {
	best := candidates[0]
	for _, candidate := range candidates[1:] {
		bestDays := len(availability[best.ID])
		days := len(availability[candidate.ID])
		switch {
		case days > bestDays:
			best = candidate
		case days == bestDays:
			bestLoad := rc.Load(best.ID, category)
			load := rc.Load(candidate.ID, category)
			if load < bestLoad || (load == bestLoad && candidate.ID.String() < best.ID.String()) {
				best = candidate
			}
		}
	}
	return best
}

// contiguousRuns groups consecutive day windows into runs so a primary's
// kept days become as few assignments as possible
func contiguousRuns(days []anchor.DayWindow) [][]anchor.DayWindow {
	var runs [][]anchor.DayWindow
	var current []anchor.DayWindow

	for _, day := range days {
		if len(current) > 0 {
			previous := current[len(current)-1]
			// A business period never spans a weekend, so any gap wider
			// than a day means a conflicted day splits the run
			if day.Date.Sub(previous.Date) > 25*time.Hour {
				runs = append(runs, current)
				current = nil
			}
		}
		current = append(current, day)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}

	return runs
}
