package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/horizon"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/db"
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
	}
}

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

func newScheduler(store db.Store) *Scheduler {
	return NewScheduler(store, fairness.DefaultWeights(), constraint.DefaultSkills(), zap.NewNop())
}

func TestPreviewScheduleWritesNoAssignments(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")})

	result, err := newScheduler(store).PreviewSchedule(context.Background(), ScheduleRequest{
		TeamID:     team.ID,
		Start:      time.Date(2026, 6, 1, 0, 0, 0, 0, loc),
		End:        time.Date(2026, 6, 6, 0, 0, 0, 0, loc),
		Categories: []model.ShiftCategory{model.CategoryIncidents},
	})
	require.NoError(t, err)

	require.Len(t, result.Assignments, 1)
	assert.Empty(t, result.Conflicts)
	assert.Empty(t, store.Assignments(), "preview must not persist assignments")

	// The run audit record still lands, in the preview terminal state
	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunPreview, runs[0].Status)

	// One employee took the whole week, the other nothing: the assignee
	// scores below 100 (over expected share), the idle one at 0
	require.Len(t, result.FairnessScores, 2)
	assignee := result.Assignments[0].EmployeeID
	for id, score := range result.FairnessScores {
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 100.0)
		if id != assignee {
			assert.Equal(t, 0.0, score)
		}
	}
}

func TestApplySchedulePersistsAtomically(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	store := db.NewMemoryStore()
	// Three people: the waakdienst week overlaps both business weeks in
	// wall-clock time, so it needs an assignee free of either
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram"), testEmployee(3, "Carla")})

	result, err := newScheduler(store).ApplySchedule(context.Background(), ScheduleRequest{
		TeamID:     team.ID,
		Start:      time.Date(2026, 6, 1, 0, 0, 0, 0, loc),
		End:        time.Date(2026, 6, 13, 0, 0, 0, 0, loc),
		Categories: []model.ShiftCategory{model.CategoryIncidents, model.CategoryWaakdienst},
	})
	require.NoError(t, err)

	// Two business weeks plus one complete waakdienst week
	assert.Equal(t, 3, result.Created)
	assert.Equal(t, 2, result.PerCategory[model.CategoryIncidents])
	assert.Equal(t, 1, result.PerCategory[model.CategoryWaakdienst])
	assert.Len(t, store.Assignments(), 3)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].TotalCreated)
	assert.Equal(t, 2, runs[0].CategoryCounts[model.CategoryIncidents])
	require.NotNil(t, runs[0].FinishedAt)
}

func TestApplyScheduleUnknownTeamFailsRun(t *testing.T) {
	loc := amsterdam(t)
	store := db.NewMemoryStore()

	_, err := newScheduler(store).ApplySchedule(context.Background(), ScheduleRequest{
		TeamID: uuid.New(),
		Start:  time.Date(2026, 6, 1, 0, 0, 0, 0, loc),
		End:    time.Date(2026, 6, 6, 0, 0, 0, 0, loc),
	})
	require.Error(t, err)

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)
	assert.Empty(t, store.Assignments())
}

func TestResetHistoryDeletesOnlyAutoAssignments(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	anna := testEmployee(1, "Anna")
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{anna})

	cutover := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	auto := model.Assignment{
		ID: uuid.New(), TeamID: team.ID, EmployeeID: anna.ID,
		Category: model.CategoryIncidents,
		Start:    time.Date(2026, 6, 1, 8, 0, 0, 0, loc),
		End:      time.Date(2026, 6, 5, 17, 0, 0, 0, loc),
		Status:   model.AssignmentScheduled, AutoAssigned: true,
	}
	manual := auto
	manual.ID = uuid.New()
	manual.Start = time.Date(2026, 6, 8, 8, 0, 0, 0, loc)
	manual.End = time.Date(2026, 6, 12, 17, 0, 0, 0, loc)
	manual.AutoAssigned = false
	past := auto
	past.ID = uuid.New()
	past.Start = time.Date(2026, 5, 4, 8, 0, 0, 0, loc)
	past.End = time.Date(2026, 5, 8, 17, 0, 0, 0, loc)
	store.AddAssignment(auto)
	store.AddAssignment(manual)
	store.AddAssignment(past)

	result, err := newScheduler(store).ResetHistory(context.Background(), team.ID, cutover)
	require.NoError(t, err)

	// Only the auto-generated assignment after the cutover goes; the
	// manual one and anything before the cutover stay
	assert.Equal(t, int64(1), result.Deleted)
	remaining := store.Assignments()
	require.Len(t, remaining, 2)
	for _, a := range remaining {
		assert.NotEqual(t, auto.ID, a.ID)
	}

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
}

func TestExtendRollingHorizonRecordsRuns(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(team, pool)

	// Seed six waakdienst weeks so the team is extension-eligible
	start := time.Date(2026, 6, 3, 17, 0, 0, 0, loc)
	for i := 0; i < 6; i++ {
		store.AddAssignment(model.Assignment{
			ID: uuid.New(), TeamID: team.ID, EmployeeID: pool[i%2].ID,
			Category: model.CategoryWaakdienst,
			Start:    start,
			End:      time.Date(start.Year(), start.Month(), start.Day()+7, 8, 0, 0, 0, loc),
			Status:   model.AssignmentScheduled, AutoAssigned: true,
		})
		start = time.Date(start.Year(), start.Month(), start.Day()+7, 17, 0, 0, 0, loc)
	}

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	report, err := newScheduler(store).ExtendRollingHorizon(context.Background(), now, horizon.Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	})
	require.NoError(t, err)
	require.Len(t, report.Teams, 1)
	require.Equal(t, 1, report.Teams[0].Created())

	runs := store.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].TotalCreated)
}

func TestRecentRunsFiltersByTeam(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam()
	other := testTeam()
	other.ID = uuid.MustParse("10000000-0000-0000-0000-000000000002")
	other.Name = "network"
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram"), testEmployee(3, "Carla")})
	store.AddTeam(other, []model.Employee{testEmployee(4, "Daan"), testEmployee(5, "Eva"), testEmployee(6, "Fleur")})

	scheduler := newScheduler(store)
	req := ScheduleRequest{
		Start:      time.Date(2026, 6, 1, 0, 0, 0, 0, loc),
		End:        time.Date(2026, 6, 6, 0, 0, 0, 0, loc),
		Categories: []model.ShiftCategory{model.CategoryIncidents},
	}
	req.TeamID = team.ID
	_, err := scheduler.ApplySchedule(context.Background(), req)
	require.NoError(t, err)
	req.TeamID = other.ID
	_, err = scheduler.ApplySchedule(context.Background(), req)
	require.NoError(t, err)

	all, err := scheduler.RecentRuns(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := scheduler.RecentRuns(context.Background(), &team.ID, 10)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, team.ID, mine[0].TeamID)
	assert.Equal(t, model.RunCompleted, mine[0].Status)
}
