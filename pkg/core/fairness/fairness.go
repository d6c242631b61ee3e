// Package fairness computes weighted per-employee load and 0-100 fairness
// scores over a planning period.
package fairness

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/holidays"
)

// Weights holds the tunable fairness-weighting constants. They are
// configurable per team and threaded through every call path.
type Weights struct {
	// Weekend multiplies hours worked on Saturday or Sunday
	Weekend float64
	// Holiday multiplies hours worked on a public holiday; when a day is
	// both a weekend day and a holiday the higher multiplier wins
	Holiday float64
	// ManualOverride down-weights assignments a planner edited by hand
	ManualOverride float64
	// DecayHalfLifeDays is the exponential half-life applied to
	// assignments that ended before the scoring period
	DecayHalfLifeDays float64
	// LookbackDays bounds how far back historical assignments count at all
	LookbackDays float64
	// LongLeaveDays is the minimum approved-leave length that prorates an
	// employee's capacity on return
	LongLeaveDays int
}

// DefaultWeights returns the standard weighting constants
func DefaultWeights() Weights {
	return Weights{
		Weekend:           1.2,
		Holiday:           1.5,
		ManualOverride:    0.8,
		DecayHalfLifeDays: 90,
		LookbackDays:      180,
		LongLeaveDays:     30,
	}
}

// Load is an employee's weighted hours per tracked category
type Load map[model.ShiftCategory]float64

// Total sums the weighted hours across all tracked categories
func (l Load) Total() float64 {
	var total float64
	for _, h := range l {
		total += h
	}
	return total
}

// Calculator scores one planning period. A category-specific calculator
// tracks a single category; the comprehensive variant tracks all of them
// and backs dashboard views.
type Calculator struct {
	periodStart time.Time
	periodEnd   time.Time
	weights     Weights
	calendar    *holidays.Calendar
	loc         *time.Location
	tracked     map[model.ShiftCategory]bool
}

// NewCalculator creates a calculator tracking the given categories
func NewCalculator(periodStart, periodEnd time.Time, weights Weights, calendar *holidays.Calendar, loc *time.Location, categories ...model.ShiftCategory) *Calculator {
	tracked := make(map[model.ShiftCategory]bool, len(categories))
	for _, c := range categories {
		tracked[c] = true
	}
	return &Calculator{
		periodStart: periodStart,
		periodEnd:   periodEnd,
		weights:     weights,
		calendar:    calendar,
		loc:         loc,
		tracked:     tracked,
	}
}

// NewCategoryCalculator creates a calculator tracking one category
func NewCategoryCalculator(category model.ShiftCategory, periodStart, periodEnd time.Time, weights Weights, calendar *holidays.Calendar, loc *time.Location) *Calculator {
	return NewCalculator(periodStart, periodEnd, weights, calendar, loc, category)
}

// NewComprehensiveCalculator creates a calculator tracking every category
func NewComprehensiveCalculator(periodStart, periodEnd time.Time, weights Weights, calendar *holidays.Calendar, loc *time.Location) *Calculator {
	return NewCalculator(periodStart, periodEnd, weights, calendar, loc, model.AllCategories()...)
}

// Tracks reports whether the calculator accounts for the category
func (c *Calculator) Tracks(category model.ShiftCategory) bool {
	return c.tracked[category]
}

// CurrentAssignments returns each listed employee's weighted hours per
// tracked category, combining in-period assignments with exponentially
// decayed historical ones.
func (c *Calculator) CurrentAssignments(employees []model.Employee, assignments []model.Assignment) map[uuid.UUID]Load {
	known := make(map[uuid.UUID]bool, len(employees))
	loads := make(map[uuid.UUID]Load, len(employees))
	for _, e := range employees {
		known[e.ID] = true
		loads[e.ID] = make(Load)
	}

	for _, a := range assignments {
		if !a.ActiveOn() || !c.tracked[a.Category] || !known[a.EmployeeID] {
			continue
		}

		hours := c.weightedHours(a)

		// Historical entries decay; anything past the look-back is ignored
		if a.End.Before(c.periodStart) {
			ageDays := c.periodStart.Sub(a.End).Hours() / 24
			if ageDays > c.weights.LookbackDays {
				continue
			}
			hours *= math.Exp2(-ageDays / c.weights.DecayHalfLifeDays)
		}

		loads[a.EmployeeID][a.Category] += hours
	}

	return loads
}

// WeightedHours returns the assignment's hours with the weekend, holiday
// and manual-override multipliers applied, before any historical decay.
// Orchestration uses it to keep in-progress load accounting consistent
// with the historical accounting above.
func (c *Calculator) WeightedHours(a model.Assignment) float64 {
	return c.weightedHours(a)
}

// weightedHours applies the weekend/holiday/manual multipliers day by day
func (c *Calculator) weightedHours(a model.Assignment) float64 {
	var total float64
	if a.Category.IsBusinessHours() {
		total = c.businessHours(a)
	} else {
		total = c.wallClockHours(a)
	}

	if a.ManualOverride {
		total *= c.weights.ManualOverride
	}

	return total
}

// businessHours counts only the daily business band, so a whole-week
// assignment weighs the same as the identical week split into day-level
// pieces. Weekends are skipped entirely; a window whose clock times do
// not form a band falls back to wall-clock counting.
func (c *Calculator) businessHours(a model.Assignment) float64 {
	start := a.Start.In(c.loc)
	end := a.End.In(c.loc)

	bandHours := time.Date(0, 1, 1, end.Hour(), end.Minute(), 0, 0, time.UTC).
		Sub(time.Date(0, 1, 1, start.Hour(), start.Minute(), 0, 0, time.UTC)).Hours()
	if bandHours <= 0 {
		return c.wallClockHours(a)
	}

	var total float64
	for day := start; day.Before(end); day = time.Date(day.Year(), day.Month(), day.Day()+1, day.Hour(), day.Minute(), 0, 0, c.loc) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		multiplier := 1.0
		if _, holiday := c.calendar.IsHoliday(day); holiday && c.weights.Holiday > multiplier {
			multiplier = c.weights.Holiday
		}
		total += bandHours * multiplier
	}
	return total
}

// wallClockHours walks the full window day by day, weighting weekend and
// holiday days. Waakdienst weeks span nights and weekends, so every hour
// counts.
func (c *Calculator) wallClockHours(a model.Assignment) float64 {
	var total float64

	cursor := a.Start.In(c.loc)
	end := a.End.In(c.loc)
	for cursor.Before(end) {
		dayEnd := time.Date(cursor.Year(), cursor.Month(), cursor.Day()+1, 0, 0, 0, 0, c.loc)
		if dayEnd.After(end) {
			dayEnd = end
		}

		multiplier := 1.0
		if cursor.Weekday() == time.Saturday || cursor.Weekday() == time.Sunday {
			multiplier = c.weights.Weekend
		}
		if _, holiday := c.calendar.IsHoliday(cursor); holiday && c.weights.Holiday > multiplier {
			multiplier = c.weights.Holiday
		}

		total += dayEnd.Sub(cursor).Hours() * multiplier
		cursor = dayEnd
	}

	return total
}

// FairnessScores converts loads into per-employee 0-100 scores. Expected
// hours are each employee's share of the team's available capacity applied
// to the total assigned hours; 100 means assigned matches expected exactly.
func (c *Calculator) FairnessScores(employees []model.Employee, loads map[uuid.UUID]Load, leaves []model.LeaveRequest) map[uuid.UUID]float64 {
	available := make(map[uuid.UUID]float64, len(employees))
	var teamCapacity, totalAssigned float64

	for _, e := range employees {
		hours := c.availableHours(e, leaves)
		available[e.ID] = hours
		teamCapacity += hours
		totalAssigned += loads[e.ID].Total()
	}

	scores := make(map[uuid.UUID]float64, len(employees))
	for _, e := range employees {
		assigned := loads[e.ID].Total()

		// No team capacity at all: fall back to a neutral score rather
		// than dividing by zero
		if teamCapacity == 0 {
			scores[e.ID] = 100
			continue
		}

		expected := available[e.ID] / teamCapacity * totalAssigned
		scores[e.ID] = score(assigned, expected)
	}

	return scores
}

// score maps an (assigned, expected) pair to 0-100, decreasing
// monotonically with the relative deviation
func score(assigned, expected float64) float64 {
	if expected == 0 {
		if assigned == 0 {
			return 100
		}
		return 0
	}
	deviation := 100 * math.Abs(assigned-expected) / expected
	return 100 - math.Min(100, deviation)
}

// availableHours is the employee's prorated capacity over the period:
// the active fraction of the period times their FTE weight.
func (c *Calculator) availableHours(e model.Employee, leaves []model.LeaveRequest) float64 {
	periodHours := c.periodEnd.Sub(c.periodStart).Hours()
	if periodHours <= 0 {
		return 0
	}

	activeStart := c.periodStart
	activeEnd := c.periodEnd

	// Mid-period hire or termination prorates to the employed fraction
	if e.HiredAt.After(activeStart) {
		activeStart = e.HiredAt
	}
	if e.TerminatedAt != nil && e.TerminatedAt.Before(activeEnd) {
		activeEnd = *e.TerminatedAt
	}

	// Return from a long leave inside the period prorates the same way
	for _, l := range leaves {
		if l.EmployeeID != e.ID || !l.Approved() || l.Policy == model.LeaveNoConflict {
			continue
		}
		if l.DurationDays() < c.weights.LongLeaveDays {
			continue
		}
		returnDate := l.EndDate.AddDate(0, 0, 1)
		if returnDate.After(activeStart) && returnDate.Before(activeEnd) && !l.StartDate.After(activeStart) {
			activeStart = returnDate
		}
	}

	if !activeEnd.After(activeStart) {
		return 0
	}

	fte := e.FTE
	if fte <= 0 {
		fte = 1
	}

	return activeEnd.Sub(activeStart).Hours() * fte
}
