package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/holidays"
)

// RunContext carries the per-run state one orchestration invocation needs:
// the employee pool, the constraint checker, the holiday calendar and the
// load ledger. It is created per run and passed by reference, never shared
// across runs, so runs for different teams stay independent.
type RunContext struct {
	Team     model.Team
	Loc      *time.Location
	Checker  *constraint.Checker
	Calendar *holidays.Calendar
	Calc     *fairness.Calculator
	Logger   *zap.Logger

	employees []model.Employee

	// committed is weighted load from assignments persisted before the
	// run started; inProgress accumulates candidates generated during it
	committed  map[uuid.UUID]fairness.Load
	inProgress map[uuid.UUID]fairness.Load

	// generated holds every candidate produced so far, for double-booking
	// checks within the run (persisted state cannot see them yet)
	generated []model.Assignment

	// lastAssignee remembers the previous period's assignee per category
	// for the soft continuity preference
	lastAssignee map[model.ShiftCategory]uuid.UUID
}

// NewRunContext builds a context over the given pool. Employees are sorted
// by ID so selection is deterministic for identical inputs.
func NewRunContext(team model.Team, loc *time.Location, employees []model.Employee, checker *constraint.Checker, calendar *holidays.Calendar, calc *fairness.Calculator, committed map[uuid.UUID]fairness.Load, logger *zap.Logger) *RunContext {
	pool := make([]model.Employee, len(employees))
	copy(pool, employees)
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID.String() < pool[j].ID.String() })

	if committed == nil {
		committed = make(map[uuid.UUID]fairness.Load)
	}

	return &RunContext{
		Team:         team,
		Loc:          loc,
		Checker:      checker,
		Calendar:     calendar,
		Calc:         calc,
		Logger:       logger,
		employees:    pool,
		committed:    committed,
		inProgress:   make(map[uuid.UUID]fairness.Load),
		generated:    nil,
		lastAssignee: make(map[model.ShiftCategory]uuid.UUID),
	}
}

// Employees returns the run's candidate pool in deterministic order
func (rc *RunContext) Employees() []model.Employee {
	return rc.employees
}

// Load returns an employee's combined committed plus in-progress weighted
// hours for a category. Ties in selection always break on this value.
func (rc *RunContext) Load(employeeID uuid.UUID, category model.ShiftCategory) float64 {
	return rc.committed[employeeID][category] + rc.inProgress[employeeID][category]
}

// AddAssignment records a generated candidate and charges its weighted
// hours to the employee's in-progress load
func (rc *RunContext) AddAssignment(a model.Assignment) {
	rc.generated = append(rc.generated, a)
	if rc.inProgress[a.EmployeeID] == nil {
		rc.inProgress[a.EmployeeID] = make(fairness.Load)
	}
	rc.inProgress[a.EmployeeID][a.Category] += rc.Calc.WeightedHours(a)
}

// Generated returns all candidates produced so far in this run
func (rc *RunContext) Generated() []model.Assignment {
	return rc.generated
}

// OverlapsGenerated reports whether the employee already has a candidate
// in this run overlapping [start, end)
func (rc *RunContext) OverlapsGenerated(employeeID uuid.UUID, start, end time.Time) bool {
	for _, a := range rc.generated {
		if a.EmployeeID == employeeID && a.OverlapsWindow(start, end) {
			return true
		}
	}
	return false
}

// Available combines the persisted-state constraint check with the
// in-run double-booking check
func (rc *RunContext) Available(ctx context.Context, emp model.Employee, start, end time.Time, category model.ShiftCategory) (bool, error) {
	if rc.OverlapsGenerated(emp.ID, start, end) {
		return false, nil
	}
	ok, _, err := rc.Checker.IsAvailable(ctx, emp, start, end, category)
	return ok, err
}

// LeastLoaded picks the candidate with the lowest combined load for the
// category. Equal loads prefer the previous period's assignee when present
// (continuity), then the lexically smallest ID so runs stay deterministic.
func (rc *RunContext) LeastLoaded(candidates []model.Employee, category model.ShiftCategory) *model.Employee {
	if len(candidates) == 0 {
		return nil
	}

	preferred := rc.lastAssignee[category]

	best := candidates[0]
	bestLoad := rc.Load(best.ID, category)
	for _, candidate := range candidates[1:] {
		load := rc.Load(candidate.ID, category)
		switch {
		case load < bestLoad:
			best = candidate
			bestLoad = load
		case load == bestLoad && candidate.ID == preferred && best.ID != preferred:
			best = candidate
		}
	}

	return &best
}

// RememberAssignee records the category's most recent assignee for the
// continuity preference
func (rc *RunContext) RememberAssignee(category model.ShiftCategory, employeeID uuid.UUID) {
	rc.lastAssignee[category] = employeeID
}

// SeedLastAssignee primes the continuity preference from persisted state,
// typically with the assignee of the period just before the run's window
func (rc *RunContext) SeedLastAssignee(category model.ShiftCategory, employeeID uuid.UUID) {
	rc.lastAssignee[category] = employeeID
}
