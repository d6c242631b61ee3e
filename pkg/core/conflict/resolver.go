package conflict

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/model"
)

// Resolution is the outcome of resolving all conflicts on one assignment.
// Replacements supersede the original assignment entirely; on manual
// intervention they are empty and the original stands, flagged.
type Resolution struct {
	Original     model.Assignment
	Outcome      model.ResolutionOutcome
	Replacements []model.Assignment
	Violations   []model.ConstraintViolation
}

// Resolver repairs conflicted assignments by reassignment. It prefers a
// fix that touches the fewest days: split coverage for partial
// recurring-leave clashes, whole-window reassignment otherwise, and a
// manual-intervention flag only when no eligible substitute exists.
type Resolver struct {
	team    model.Team
	pool    []model.Employee
	checker *constraint.Checker
	calc    *fairness.Calculator
	loads   map[uuid.UUID]fairness.Load
	logger  *zap.Logger

	// proposed holds the run's surviving candidates plus replacements
	// accumulated within one Resolve call, so a fix can never hand a
	// window to an employee who already holds an overlapping one
	proposed []model.Assignment
}

// NewResolver builds a resolver over the given candidate pool. Loads are
// the pool's current weighted hours; they are charged as fixes are
// proposed so repeated substitutions spread over the pool.
func NewResolver(team model.Team, pool []model.Employee, checker *constraint.Checker, calc *fairness.Calculator, loads map[uuid.UUID]fairness.Load, logger *zap.Logger) *Resolver {
	sorted := make([]model.Employee, len(pool))
	copy(sorted, pool)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID.String() < sorted[j].ID.String() })

	if loads == nil {
		loads = make(map[uuid.UUID]fairness.Load)
	}

	return &Resolver{
		team:    team,
		pool:    sorted,
		checker: checker,
		calc:    calc,
		loads:   loads,
		logger:  logger,
	}
}

// Resolve handles every conflict, grouped by assignment, and returns one
// resolution per conflicted assignment. Each resolution carries the audit
// records to persist for the run. Candidates are the run's full candidate
// set; the unconflicted ones seed the overlap guard so a substitute is
// never someone who already holds an overlapping window in this run.
func (r *Resolver) Resolve(ctx context.Context, runID uuid.UUID, candidates []model.Assignment, conflicts []Conflict) ([]Resolution, error) {
	conflicted := make(map[uuid.UUID]bool, len(conflicts))
	for _, c := range conflicts {
		conflicted[c.Assignment.ID] = true
	}
	r.proposed = nil
	for _, a := range candidates {
		if !conflicted[a.ID] {
			r.proposed = append(r.proposed, a)
		}
	}

	// Group by assignment, preserving first-seen order for determinism
	var order []uuid.UUID
	groups := make(map[uuid.UUID][]Conflict)
	for _, c := range conflicts {
		if _, seen := groups[c.Assignment.ID]; !seen {
			order = append(order, c.Assignment.ID)
		}
		groups[c.Assignment.ID] = append(groups[c.Assignment.ID], c)
	}

	var resolutions []Resolution
	for _, assignmentID := range order {
		group := groups[assignmentID]
		resolution, err := r.resolveGroup(ctx, group)
		if err != nil {
			return nil, err
		}

		for _, c := range group {
			resolution.Violations = append(resolution.Violations, model.ConstraintViolation{
				ID:           uuid.New(),
				RunID:        runID,
				AssignmentID: c.Assignment.ID,
				EmployeeID:   c.Assignment.EmployeeID,
				Type:         c.Type,
				Severity:     c.Severity,
				Resolution:   resolution.Outcome,
				Detail:       c.Detail,
				CreatedAt:    time.Now().UTC(),
			})
		}
		resolutions = append(resolutions, resolution)
	}

	return resolutions, nil
}

func (r *Resolver) resolveGroup(ctx context.Context, group []Conflict) (Resolution, error) {
	original := group[0].Assignment

	// A partial recurring-leave clash on a multi-day business assignment
	// keeps the original employee for the clean days and substitutes only
	// the conflicted ones. Anything graver reassigns the whole window.
	if splitEligible(group) {
		resolution, ok, err := r.split(ctx, original, group)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			return resolution, nil
		}
	}

	if replacement, ok, err := r.reassign(ctx, original); err != nil {
		return Resolution{}, err
	} else if ok {
		r.logger.Debug("Reassigned conflicted assignment",
			zap.String("assignment", original.ID.String()),
			zap.String("to", replacement.EmployeeID.String()))
		return Resolution{
			Original:     original,
			Outcome:      model.ResolutionNextBestAvailable,
			Replacements: []model.Assignment{replacement},
		}, nil
	}

	r.logger.Warn("No eligible substitute found, flagging for manual intervention",
		zap.String("assignment", original.ID.String()),
		zap.String("category", string(original.Category)))
	// The flagged original stands, so later fixes must not collide with it
	r.proposed = append(r.proposed, original)
	return Resolution{Original: original, Outcome: model.ResolutionManualIntervention}, nil
}

// splitEligible requires every conflict in the group to be a partial
// recurring-leave clash on a business-hours category
func splitEligible(group []Conflict) bool {
	for _, c := range group {
		if c.Type != model.ConflictRecurringLeave ||
			c.Severity != model.SeverityPartial ||
			!c.Assignment.Category.IsBusinessHours() {
			return false
		}
	}
	return true
}

// split keeps the original employee on unaffected days and hands every
// conflicted day to one substitute who is available for all of them
func (r *Resolver) split(ctx context.Context, original model.Assignment, group []Conflict) (Resolution, bool, error) {
	days, err := anchor.BusinessDays(anchor.Period{
		Category: original.Category,
		Start:    original.Start,
		End:      original.End,
	}, r.team)
	if err != nil {
		return Resolution{}, false, fmt.Errorf("failed to expand assignment days: %w", err)
	}

	var conflicted []anchor.DayWindow
	for _, c := range group {
		for _, day := range c.ConflictedDays {
			if !overlapsDay(conflicted, day.Date) {
				conflicted = append(conflicted, day)
			}
		}
	}
	sort.Slice(conflicted, func(i, j int) bool { return conflicted[i].Date.Before(conflicted[j].Date) })

	var kept []anchor.DayWindow
	for _, day := range days {
		if !overlapsDay(conflicted, day.Date) {
			kept = append(kept, day)
		}
	}
	if len(kept) == 0 || len(conflicted) == 0 {
		return Resolution{}, false, nil
	}

	// The substitute must clear the full constraint set for every
	// conflicted day, so the fix cannot introduce a new conflict
	var candidates []model.Employee
	for _, emp := range r.pool {
		if emp.ID == original.EmployeeID {
			continue
		}
		eligible := true
		for _, day := range conflicted {
			ok, err := r.available(ctx, emp, day.Start, day.End, original.Category)
			if err != nil {
				r.logger.Warn("Excluding substitute candidate after availability failure",
					zap.String("employee", emp.FullName()),
					zap.Error(err))
				eligible = false
				break
			}
			if !ok {
				eligible = false
				break
			}
		}
		if eligible {
			candidates = append(candidates, emp)
		}
	}

	substitute := r.leastLoaded(candidates, original.Category)
	if substitute == nil {
		return Resolution{}, false, nil
	}

	split := &model.SplitCoverage{
		PeriodStart: original.Start,
		PeriodEnd:   original.End,
		PartnerID:   substitute.ID,
	}

	var replacements []model.Assignment
	for _, run := range dayRuns(kept) {
		a := r.newReplacement(original, original.EmployeeID, run[0].Start, run[len(run)-1].End,
			"split coverage: original employee keeps unaffected days")
		a.Split = split
		replacements = append(replacements, a)
	}
	for _, run := range dayRuns(conflicted) {
		a := r.newReplacement(original, substitute.ID, run[0].Start, run[len(run)-1].End,
			fmt.Sprintf("split coverage: substitute from %s", run[0].Date.Format("2006-01-02")))
		a.Split = &model.SplitCoverage{
			PeriodStart: original.Start,
			PeriodEnd:   original.End,
			PartnerID:   original.EmployeeID,
		}
		replacements = append(replacements, a)
	}

	r.logger.Debug("Split conflicted assignment",
		zap.String("assignment", original.ID.String()),
		zap.Int("kept_days", len(kept)),
		zap.Int("substituted_days", len(conflicted)),
		zap.String("substitute", substitute.FullName()))

	return Resolution{
		Original:     original,
		Outcome:      model.ResolutionSplitCoverage,
		Replacements: replacements,
	}, true, nil
}

// reassign moves the whole window to the least-loaded eligible alternative
func (r *Resolver) reassign(ctx context.Context, original model.Assignment) (model.Assignment, bool, error) {
	var candidates []model.Employee
	for _, emp := range r.pool {
		if emp.ID == original.EmployeeID {
			continue
		}
		ok, err := r.available(ctx, emp, original.Start, original.End, original.Category)
		if err != nil {
			r.logger.Warn("Excluding reassignment candidate after availability failure",
				zap.String("employee", emp.FullName()),
				zap.Error(err))
			continue
		}
		if ok {
			candidates = append(candidates, emp)
		}
	}

	chosen := r.leastLoaded(candidates, original.Category)
	if chosen == nil {
		return model.Assignment{}, false, nil
	}

	replacement := r.newReplacement(original, chosen.ID, original.Start, original.End,
		"reassigned: next best available")
	return replacement, true, nil
}

// available runs the persisted-state check plus an overlap check against
// fixes already proposed in this pass
func (r *Resolver) available(ctx context.Context, emp model.Employee, start, end time.Time, category model.ShiftCategory) (bool, error) {
	for _, a := range r.proposed {
		if a.EmployeeID == emp.ID && a.OverlapsWindow(start, end) {
			return false, nil
		}
	}
	ok, _, err := r.checker.IsAvailable(ctx, emp, start, end, category)
	return ok, err
}

// leastLoaded picks the lowest combined load; exact ties break on the
// lexically smallest ID. Candidates arrive pre-sorted by ID.
func (r *Resolver) leastLoaded(candidates []model.Employee, category model.ShiftCategory) *model.Employee {
	if len(candidates) == 0 {
		return nil
	}
	best := candidates[0]
	bestLoad := r.loads[best.ID][category]
	for _, candidate := range candidates[1:] {
		if load := r.loads[candidate.ID][category]; load < bestLoad {
			best = candidate
			bestLoad = load
		}
	}
	return &best
}

// newReplacement creates a fix assignment and charges its weighted hours
func (r *Resolver) newReplacement(original model.Assignment, employeeID uuid.UUID, start, end time.Time, reason string) model.Assignment {
	a := model.Assignment{
		ID:           uuid.New(),
		TeamID:       original.TeamID,
		EmployeeID:   employeeID,
		Category:     original.Category,
		Start:        start,
		End:          end,
		Status:       model.AssignmentScheduled,
		AutoAssigned: true,
		Reason:       reason,
	}
	r.proposed = append(r.proposed, a)
	if r.loads[employeeID] == nil {
		r.loads[employeeID] = make(fairness.Load)
	}
	r.loads[employeeID][a.Category] += r.calc.WeightedHours(a)
	return a
}

// dayRuns groups consecutive business days so kept and substituted spans
// become as few assignments as possible
func dayRuns(days []anchor.DayWindow) [][]anchor.DayWindow {
	var runs [][]anchor.DayWindow
	var current []anchor.DayWindow
	for _, day := range days {
		if len(current) > 0 && day.Date.Sub(current[len(current)-1].Date) > 25*time.Hour {
			runs = append(runs, current)
			current = nil
		}
		current = append(current, day)
	}
	if len(current) > 0 {
		runs = append(runs, current)
	}
	return runs
}
