package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/db"
	"github.com/roosterplan/rooster/pkg/holidays"
)

func amsterdam(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	return loc
}

func testTeam() model.Team {
	return model.Team{
		ID:                        uuid.MustParse("10000000-0000-0000-0000-000000000001"),
		Name:                      "platform",
		Timezone:                  "Europe/Amsterdam",
		BusinessStartHour:         8,
		BusinessEndHour:           17,
		WaakdienstHandoverWeekday: time.Wednesday,
		WaakdienstStartHour:       17,
		WaakdienstEndHour:         8,
		FairnessWindowWeeks:       26,
	}
}

// testEmployee builds a fully schedulable employee. The ID suffix controls
// the deterministic tie-break order, so e1 sorts before e2 and so on.
func testEmployee(n byte, name string) model.Employee {
	id := uuid.UUID{}
	id[15] = n
	return model.Employee{
		ID:                     id,
		FirstName:              name,
		LastName:               "Tester",
		Active:                 true,
		AvailableForIncidents:  true,
		AvailableForWaakdienst: true,
		Skills:                 []string{"incidents", "waakdienst"},
		FTE:                    1.0,
		HiredAt:                time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func testOrchestrator(store db.Store) *Orchestrator {
	return New(store, fairness.DefaultWeights(), constraint.DefaultSkills(), zap.NewNop())
}

func TestRunFullWeekSingleAssignment(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")})

	// One business week: Mon 2026-06-01 through Fri 2026-06-05
	windowStart := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 6, 0, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd,
		[]model.ShiftCategory{model.CategoryIncidents})
	require.NoError(t, err)

	// Both employees are fully available, so the week goes to one person
	// as a single period-wide assignment rather than five daily ones
	require.Len(t, outcome.Assignments, 1)
	a := outcome.Assignments[0]
	assert.Equal(t, model.CategoryIncidents, a.Category)
	assert.Equal(t, time.Date(2026, 6, 1, 8, 0, 0, 0, loc), a.Start)
	assert.Equal(t, time.Date(2026, 6, 5, 17, 0, 0, 0, loc), a.End)
	assert.True(t, a.AutoAssigned)
	assert.Equal(t, model.AssignmentScheduled, a.Status)
	assert.Nil(t, a.Split)

	results := outcome.Results[model.CategoryIncidents]
	require.Len(t, results, 1)
	assert.Equal(t, FullyCovered, results[0].Coverage)
	assert.Empty(t, outcome.Warnings)
}

func TestRunSplitCoverage(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	anna := testEmployee(1, "Anna")
	bram := testEmployee(2, "Bram")
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{anna, bram})

	// Anna is off every Wednesday; Bram is on leave Mon-Tue and Thu-Fri,
	// so nobody can take the whole week of 2026-06-01
	store.AddPattern(model.RecurringLeavePattern{
		ID:            uuid.New(),
		EmployeeID:    anna.ID,
		Weekday:       time.Wednesday,
		Frequency:     model.FrequencyWeekly,
		Coverage:      model.CoverageFullDay,
		EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, loc),
		Active:        true,
	})
	store.AddLeave(model.LeaveRequest{
		ID:         uuid.New(),
		EmployeeID: bram.ID,
		StartDate:  time.Date(2026, 6, 1, 0, 0, 0, 0, loc),
		EndDate:    time.Date(2026, 6, 2, 0, 0, 0, 0, loc),
		Status:     model.LeaveApproved,
		Policy:     model.LeaveFullUnavailable,
	})
	store.AddLeave(model.LeaveRequest{
		ID:         uuid.New(),
		EmployeeID: bram.ID,
		StartDate:  time.Date(2026, 6, 4, 0, 0, 0, 0, loc),
		EndDate:    time.Date(2026, 6, 5, 0, 0, 0, 0, loc),
		Status:     model.LeaveApproved,
		Policy:     model.LeaveFullUnavailable,
	})

	windowStart := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 6, 0, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd,
		[]model.ShiftCategory{model.CategoryIncidents})
	require.NoError(t, err)

	// Anna covers 4 days so she is primary; her Mon-Tue and Thu-Fri runs
	// become two assignments, and Bram substitutes on the Wednesday
	require.Len(t, outcome.Assignments, 3)

	var annaParts, bramParts []model.Assignment
	for _, a := range outcome.Assignments {
		switch a.EmployeeID {
		case anna.ID:
			annaParts = append(annaParts, a)
		case bram.ID:
			bramParts = append(bramParts, a)
		}
	}
	require.Len(t, annaParts, 2)
	require.Len(t, bramParts, 1)

	assert.Equal(t, time.Date(2026, 6, 1, 8, 0, 0, 0, loc), annaParts[0].Start)
	assert.Equal(t, time.Date(2026, 6, 2, 17, 0, 0, 0, loc), annaParts[0].End)
	assert.Equal(t, time.Date(2026, 6, 4, 8, 0, 0, 0, loc), annaParts[1].Start)
	assert.Equal(t, time.Date(2026, 6, 5, 17, 0, 0, 0, loc), annaParts[1].End)

	wed := bramParts[0]
	assert.Equal(t, time.Date(2026, 6, 3, 8, 0, 0, 0, loc), wed.Start)
	assert.Equal(t, time.Date(2026, 6, 3, 17, 0, 0, 0, loc), wed.End)
	require.NotNil(t, wed.Split)
	assert.Equal(t, anna.ID, wed.Split.PartnerID)

	results := outcome.Results[model.CategoryIncidents]
	require.Len(t, results, 1)
	assert.Equal(t, FullyCovered, results[0].Coverage)
}

func TestRunWaakdienstFairnessSpread(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	members := []model.Employee{
		testEmployee(1, "Anna"),
		testEmployee(2, "Bram"),
		testEmployee(3, "Carla"),
		testEmployee(4, "Dirk"),
	}
	store := db.NewMemoryStore()
	store.AddTeam(team, members)

	// Eight full waakdienst weeks: Wed 2026-06-03 17:00 through
	// Wed 2026-07-29 08:00, no Dutch holidays in range
	windowStart := time.Date(2026, 6, 3, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 7, 29, 12, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd,
		[]model.ShiftCategory{model.CategoryWaakdienst})
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 8)
	assert.Empty(t, outcome.Warnings)

	// Every week carries the same weighted hours, so the least-loaded
	// rule must hand each of the four employees exactly two weeks
	counts := make(map[uuid.UUID]int)
	for _, a := range outcome.Assignments {
		counts[a.EmployeeID]++
	}
	require.Len(t, counts, 4)
	for _, member := range members {
		assert.Equal(t, 2, counts[member.ID], "employee %s", member.FullName())
	}

	// No employee may hold two overlapping waakdienst weeks
	for i, a := range outcome.Assignments {
		for _, b := range outcome.Assignments[i+1:] {
			if a.EmployeeID == b.EmployeeID {
				assert.False(t, a.Overlaps(b))
			}
		}
	}
}

func TestRunStandbyAvoidsIncidentsPrimary(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	team.StandbyEnabled = true
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")})

	windowStart := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 6, 0, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd,
		[]model.ShiftCategory{model.CategoryIncidents, model.CategoryIncidentsStandby})
	require.NoError(t, err)
	require.Len(t, outcome.Assignments, 2)

	byCategory := make(map[model.ShiftCategory]model.Assignment)
	for _, a := range outcome.Assignments {
		byCategory[a.Category] = a
	}
	primary, ok := byCategory[model.CategoryIncidents]
	require.True(t, ok)
	standby, ok := byCategory[model.CategoryIncidentsStandby]
	require.True(t, ok)

	// Standby protects the same window, so the double-booking check must
	// force a different assignee than the incidents primary
	assert.NotEqual(t, primary.EmployeeID, standby.EmployeeID)
	assert.Equal(t, primary.Start, standby.Start)
	assert.Equal(t, primary.End, standby.End)
}

func TestRunStandbySkippedWhenDisabled(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam() // StandbyEnabled defaults to false
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna")})

	windowStart := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 6, 0, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd, nil)
	require.NoError(t, err)

	counts := outcome.CountByCategory()
	assert.Zero(t, counts[model.CategoryIncidentsStandby])
	assert.Equal(t, 1, counts[model.CategoryIncidents])
}

func TestRunNoEligibleEmployeeIsWarning(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	// Nobody on the team does waakdienst
	anna := testEmployee(1, "Anna")
	anna.AvailableForWaakdienst = false
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{anna})

	windowStart := time.Date(2026, 6, 3, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 10, 12, 0, 0, 0, loc)

	outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd,
		[]model.ShiftCategory{model.CategoryWaakdienst})

	// An empty candidate pool is a warning on the outcome, never an error
	require.NoError(t, err)
	assert.Empty(t, outcome.Assignments)
	require.Len(t, outcome.Warnings, 1)
	assert.Contains(t, outcome.Warnings[0], "no eligible employee")

	results := outcome.Results[model.CategoryWaakdienst]
	require.Len(t, results, 1)
	assert.Equal(t, Uncovered, results[0].Coverage)
}

func TestRunDeterministic(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{
		testEmployee(1, "Anna"),
		testEmployee(2, "Bram"),
		testEmployee(3, "Carla"),
	})

	windowStart := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 7, 1, 0, 0, 0, 0, loc)

	run := func() []model.Assignment {
		outcome, err := testOrchestrator(store).Run(context.Background(), team, windowStart, windowEnd, nil)
		require.NoError(t, err)
		return outcome.Assignments
	}

	first := run()
	second := run()
	require.Equal(t, len(first), len(second))
	for i := range first {
		// Assignment IDs are fresh per run; everything else must match
		assert.Equal(t, first[i].EmployeeID, second[i].EmployeeID)
		assert.Equal(t, first[i].Category, second[i].Category)
		assert.True(t, first[i].Start.Equal(second[i].Start))
		assert.True(t, first[i].End.Equal(second[i].End))
	}
}

func TestRunInvalidTeamConfigIsFatal(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	team.BusinessStartHour = 17
	team.BusinessEndHour = 8
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna")})

	_, err := testOrchestrator(store).Run(context.Background(), team,
		time.Date(2026, 6, 1, 0, 0, 0, 0, loc), time.Date(2026, 6, 6, 0, 0, 0, 0, loc), nil)

	require.Error(t, err)
	var cfgErr *anchor.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestLeastLoadedContinuityTieBreak(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	anna := testEmployee(1, "Anna")
	bram := testEmployee(2, "Bram")
	store := db.NewMemoryStore()

	checker, err := constraint.NewChecker(team, store, store, constraint.DefaultSkills(), zap.NewNop())
	require.NoError(t, err)
	calendar := holidays.NewCalendar(loc)
	windowStart := time.Date(2026, 6, 3, 0, 0, 0, 0, loc)
	windowEnd := time.Date(2026, 6, 10, 12, 0, 0, 0, loc)
	calc := fairness.NewComprehensiveCalculator(windowStart, windowEnd, fairness.DefaultWeights(), calendar, loc)

	rc := NewRunContext(team, loc, []model.Employee{anna, bram}, checker, calendar, calc, nil, zap.NewNop())

	// With all loads at zero the lexically smallest ID wins
	chosen := rc.LeastLoaded([]model.Employee{anna, bram}, model.CategoryWaakdienst)
	require.NotNil(t, chosen)
	assert.Equal(t, anna.ID, chosen.ID)

	// Seeding the previous assignee flips an exact tie toward continuity
	rc.SeedLastAssignee(model.CategoryWaakdienst, bram.ID)
	chosen = rc.LeastLoaded([]model.Employee{anna, bram}, model.CategoryWaakdienst)
	require.NotNil(t, chosen)
	assert.Equal(t, bram.ID, chosen.ID)
}
