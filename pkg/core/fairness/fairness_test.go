package fairness

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/holidays"
)

var testLoc = mustLoadLocation()

func mustLoadLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		panic(err)
	}
	return loc
}

func periodCalculator(tracked ...model.ShiftCategory) *Calculator {
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, testLoc)
	end := time.Date(2026, time.June, 29, 0, 0, 0, 0, testLoc)
	return NewCalculator(start, end, DefaultWeights(), holidays.NewCalendar(testLoc), testLoc, tracked...)
}

func employee(name string) model.Employee {
	return model.Employee{
		ID:        uuid.New(),
		FirstName: name,
		LastName:  "Tester",
		Active:    true,
		FTE:       1,
		HiredAt:   time.Date(2020, time.January, 1, 0, 0, 0, 0, testLoc),
	}
}

func weekdayAssignment(emp model.Employee, day time.Time, category model.ShiftCategory) model.Assignment {
	return model.Assignment{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Category:   category,
		Start:      time.Date(day.Year(), day.Month(), day.Day(), 8, 0, 0, 0, testLoc),
		End:        time.Date(day.Year(), day.Month(), day.Day(), 17, 0, 0, 0, testLoc),
		Status:     model.AssignmentScheduled,
	}
}

func TestCurrentAssignments_PlainWeekdayHours(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	emp := employee("Anna")

	// Tuesday 2 June 2026, 08:00-17:00, no weekend or holiday
	a := weekdayAssignment(emp, time.Date(2026, time.June, 2, 0, 0, 0, 0, testLoc), model.CategoryIncidents)

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.InDelta(t, 9.0, loads[emp.ID][model.CategoryIncidents], 0.001)
}

func TestCurrentAssignments_FullWeekMatchesSplitWeek(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	whole := employee("Anna")
	pieces := employee("Bram")

	// One employee covers Mon 1 June through Fri 5 June 2026 as a single
	// assignment, the other covers the identical week in day-level runs
	fullWeek := model.Assignment{
		ID:         uuid.New(),
		EmployeeID: whole.ID,
		Category:   model.CategoryIncidents,
		Start:      time.Date(2026, time.June, 1, 8, 0, 0, 0, testLoc),
		End:        time.Date(2026, time.June, 5, 17, 0, 0, 0, testLoc),
		Status:     model.AssignmentScheduled,
	}
	dayRun := func(fromDay, toDay int) model.Assignment {
		return model.Assignment{
			ID:         uuid.New(),
			EmployeeID: pieces.ID,
			Category:   model.CategoryIncidents,
			Start:      time.Date(2026, time.June, fromDay, 8, 0, 0, 0, testLoc),
			End:        time.Date(2026, time.June, toDay, 17, 0, 0, 0, testLoc),
			Status:     model.AssignmentScheduled,
		}
	}

	loads := calc.CurrentAssignments(
		[]model.Employee{whole, pieces},
		[]model.Assignment{fullWeek, dayRun(1, 2), dayRun(3, 3), dayRun(4, 5)})

	// Both shapes cover five nine-hour business days; the nights and the
	// mid-week boundaries must not change the weight
	assert.InDelta(t, 45.0, loads[whole.ID][model.CategoryIncidents], 0.001)
	assert.InDelta(t, loads[pieces.ID][model.CategoryIncidents],
		loads[whole.ID][model.CategoryIncidents], 0.001)
}

func TestCurrentAssignments_WeekendMultiplier(t *testing.T) {
	calc := periodCalculator(model.CategoryWaakdienst)
	emp := employee("Bram")

	// Saturday 6 June 2026, 10:00-20:00
	a := model.Assignment{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Category:   model.CategoryWaakdienst,
		Start:      time.Date(2026, time.June, 6, 10, 0, 0, 0, testLoc),
		End:        time.Date(2026, time.June, 6, 20, 0, 0, 0, testLoc),
		Status:     model.AssignmentScheduled,
	}

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.InDelta(t, 10*1.2, loads[emp.ID][model.CategoryWaakdienst], 0.001)
}

func TestCurrentAssignments_HolidayBeatsWeekend(t *testing.T) {
	calc := periodCalculator(model.CategoryWaakdienst)
	emp := employee("Carla")

	// Saturday 26 December 2026 is both a weekend day and Tweede Kerstdag;
	// the holiday multiplier wins
	start := time.Date(2026, time.June, 1, 0, 0, 0, 0, testLoc)
	end := time.Date(2027, time.January, 4, 0, 0, 0, 0, testLoc)
	calc = NewCalculator(start, end, DefaultWeights(), holidays.NewCalendar(testLoc), testLoc, model.CategoryWaakdienst)

	a := model.Assignment{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Category:   model.CategoryWaakdienst,
		Start:      time.Date(2026, time.December, 26, 8, 0, 0, 0, testLoc),
		End:        time.Date(2026, time.December, 26, 18, 0, 0, 0, testLoc),
		Status:     model.AssignmentScheduled,
	}

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.InDelta(t, 10*1.5, loads[emp.ID][model.CategoryWaakdienst], 0.001)
}

func TestCurrentAssignments_ManualOverrideDownWeights(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	emp := employee("Daan")

	a := weekdayAssignment(emp, time.Date(2026, time.June, 2, 0, 0, 0, 0, testLoc), model.CategoryIncidents)
	a.ManualOverride = true

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.InDelta(t, 9*0.8, loads[emp.ID][model.CategoryIncidents], 0.001)
}

func TestCurrentAssignments_HistoricalDecay(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	emp := employee("Eva")

	// Ended exactly one half-life (90 days) before the period start
	endedAt := time.Date(2026, time.June, 1, 0, 0, 0, 0, testLoc).AddDate(0, 0, -90)
	a := model.Assignment{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Category:   model.CategoryIncidents,
		Start:      endedAt.Add(-9 * time.Hour),
		End:        endedAt,
		Status:     model.AssignmentScheduled,
	}

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.InDelta(t, 9*0.5, loads[emp.ID][model.CategoryIncidents], 0.05)
}

func TestCurrentAssignments_LookbackBound(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	emp := employee("Fleur")

	endedAt := time.Date(2026, time.June, 1, 0, 0, 0, 0, testLoc).AddDate(0, 0, -200)
	a := model.Assignment{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Category:   model.CategoryIncidents,
		Start:      endedAt.Add(-9 * time.Hour),
		End:        endedAt,
		Status:     model.AssignmentScheduled,
	}

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.Zero(t, loads[emp.ID][model.CategoryIncidents])
}

func TestCurrentAssignments_UntrackedCategoryIgnored(t *testing.T) {
	calc := NewCategoryCalculator(model.CategoryWaakdienst,
		time.Date(2026, time.June, 1, 0, 0, 0, 0, testLoc),
		time.Date(2026, time.June, 29, 0, 0, 0, 0, testLoc),
		DefaultWeights(), holidays.NewCalendar(testLoc), testLoc)
	emp := employee("Gijs")

	a := weekdayAssignment(emp, time.Date(2026, time.June, 2, 0, 0, 0, 0, testLoc), model.CategoryIncidents)

	loads := calc.CurrentAssignments([]model.Employee{emp}, []model.Assignment{a})
	assert.Zero(t, loads[emp.ID].Total())
	assert.True(t, calc.Tracks(model.CategoryWaakdienst))
	assert.False(t, calc.Tracks(model.CategoryIncidents))
}

func TestFairnessScores_PerfectBalance(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	a := employee("Anna")
	b := employee("Bram")

	loads := map[uuid.UUID]Load{
		a.ID: {model.CategoryIncidents: 45},
		b.ID: {model.CategoryIncidents: 45},
	}

	scores := calc.FairnessScores([]model.Employee{a, b}, loads, nil)
	assert.InDelta(t, 100, scores[a.ID], 0.001)
	assert.InDelta(t, 100, scores[b.ID], 0.001)
}

func TestFairnessScores_MonotonicInDeviation(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	a := employee("Anna")
	b := employee("Bram")
	employees := []model.Employee{a, b}

	previous := 101.0
	for _, hours := range []float64{45, 55, 70, 90} {
		loads := map[uuid.UUID]Load{
			a.ID: {model.CategoryIncidents: hours},
			b.ID: {model.CategoryIncidents: 90 - hours},
		}
		scores := calc.FairnessScores(employees, loads, nil)
		assert.Less(t, scores[a.ID], previous+0.001, "score must not increase as deviation grows")
		previous = scores[a.ID]
	}
}

func TestFairnessScores_ZeroEverything(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	a := employee("Anna")

	scores := calc.FairnessScores([]model.Employee{a}, map[uuid.UUID]Load{}, nil)
	assert.Equal(t, 100.0, scores[a.ID], "no expectation and no load is perfectly fair")
}

func TestFairnessScores_ZeroCapacityNeutral(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)

	// Hired after the period ends: zero capacity, neutral score
	late := employee("Hannah")
	late.HiredAt = time.Date(2026, time.July, 15, 0, 0, 0, 0, testLoc)

	scores := calc.FairnessScores([]model.Employee{late}, map[uuid.UUID]Load{}, nil)
	assert.Equal(t, 100.0, scores[late.ID])
}

func TestFairnessScores_MidPeriodHireProration(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	veteran := employee("Iris")
	joiner := employee("Joost")
	// Joins halfway through the four-week period
	joiner.HiredAt = time.Date(2026, time.June, 15, 0, 0, 0, 0, testLoc)

	// Veteran carries twice the joiner's hours, matching their capacity ratio
	loads := map[uuid.UUID]Load{
		veteran.ID: {model.CategoryIncidents: 60},
		joiner.ID:  {model.CategoryIncidents: 30},
	}

	scores := calc.FairnessScores([]model.Employee{veteran, joiner}, loads, nil)
	assert.InDelta(t, 100, scores[veteran.ID], 0.5)
	assert.InDelta(t, 100, scores[joiner.ID], 0.5)
}

func TestFairnessScores_LongLeaveProration(t *testing.T) {
	calc := periodCalculator(model.CategoryIncidents)
	away := employee("Koen")
	present := employee("Lotte")

	// Approved 40-day leave ending mid-period prorates Koen's capacity
	leave := model.LeaveRequest{
		ID:         uuid.New(),
		EmployeeID: away.ID,
		StartDate:  time.Date(2026, time.May, 5, 0, 0, 0, 0, testLoc),
		EndDate:    time.Date(2026, time.June, 14, 0, 0, 0, 0, testLoc),
		Status:     model.LeaveApproved,
		Policy:     model.LeaveFullUnavailable,
	}

	loads := map[uuid.UUID]Load{
		away.ID:    {model.CategoryIncidents: 30},
		present.ID: {model.CategoryIncidents: 60},
	}

	scores := calc.FairnessScores([]model.Employee{away, present}, loads, []model.LeaveRequest{leave})
	require.InDelta(t, 100, scores[away.ID], 0.5)
	require.InDelta(t, 100, scores[present.ID], 0.5)

	// A short leave does not prorate
	shortLeave := leave
	shortLeave.StartDate = time.Date(2026, time.June, 10, 0, 0, 0, 0, testLoc)
	scores = calc.FairnessScores([]model.Employee{away, present}, loads, []model.LeaveRequest{shortLeave})
	assert.Less(t, scores[away.ID], 100.0)
}
