package horizon

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
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/core/orchestrator"
	"github.com/roosterplan/rooster/pkg/db"
)

func amsterdam(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Amsterdam")
	require.NoError(t, err)
	return loc
}

func testTeam(n byte) model.Team {
	id := uuid.UUID{}
	id[0] = 0x10
	id[15] = n
	return model.Team{
		ID:                        id,
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

func newExtender(store db.Store) *Extender {
	orch := orchestrator.New(store, fairness.DefaultWeights(), constraint.DefaultSkills(), zap.NewNop())
	return NewExtender(store, orch, zap.NewNop())
}

// seedWaakdienst persists `weeks` consecutive waakdienst weeks starting at
// the first Wednesday 17:00 on or after `from`, alternating over the pool
func seedWaakdienst(store *db.MemoryStore, team model.Team, pool []model.Employee, from time.Time, weeks int, loc *time.Location) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 17, 0, 0, 0, loc)
	for start.Weekday() != time.Wednesday {
		start = start.AddDate(0, 0, 1)
	}
	for i := 0; i < weeks; i++ {
		end := time.Date(start.Year(), start.Month(), start.Day()+7, 8, 0, 0, 0, loc)
		store.AddAssignment(model.Assignment{
			ID:           uuid.New(),
			TeamID:       team.ID,
			EmployeeID:   pool[i%len(pool)].ID,
			Category:     model.CategoryWaakdienst,
			Start:        start,
			End:          end,
			Status:       model.AssignmentScheduled,
			AutoAssigned: true,
		})
		start = time.Date(start.Year(), start.Month(), start.Day()+7, 17, 0, 0, 0, loc)
	}
}

func TestExtendTopsUpSeededTeam(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(team, pool)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	// Six seeded weeks: Wed 2026-06-03 through Wed 2026-07-15
	seedWaakdienst(store, team, pool, now, 6, loc)

	opts := Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	}
	report, err := newExtender(store).Extend(context.Background(), now, opts)
	require.NoError(t, err)
	require.Len(t, report.Teams, 1)

	teamReport := report.Teams[0]
	assert.Empty(t, teamReport.Error)
	require.Len(t, teamReport.Categories, 1)
	cat := teamReport.Categories[0]
	assert.True(t, cat.Eligible)

	// Generation starts at the frontier, so the six covered weeks are
	// never revisited and the tail holds exactly one new week
	assert.Equal(t, 0, cat.Duplicates)
	assert.Equal(t, 1, cat.Created)
	assert.Equal(t, time.Date(2026, 7, 15, 8, 0, 0, 0, loc), cat.Frontier.In(loc))
}

func TestExtendIsIdempotent(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(team, pool)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	seedWaakdienst(store, team, pool, now, 6, loc)

	opts := Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	}
	extender := newExtender(store)

	first, err := extender.Extend(context.Background(), now, opts)
	require.NoError(t, err)
	require.Equal(t, 1, first.Teams[0].Created())

	// A second pass with unchanged inputs must create nothing: the new
	// frontier leaves no complete period inside the look-ahead
	second, err := extender.Extend(context.Background(), now, opts)
	require.NoError(t, err)
	require.Len(t, second.Teams, 1)
	assert.Equal(t, 0, second.Teams[0].Created())
	assert.Equal(t, 0, second.Teams[0].Categories[0].Duplicates)
}

func TestExtendTailFairnessIgnoresCoveredWeeks(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	anna := testEmployee(1, "Anna")
	bram := testEmployee(2, "Bram")
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{anna, bram})

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	// All six seeded weeks belong to Anna, so Bram is clearly the
	// least-loaded choice for the new tail week
	seedWaakdienst(store, team, []model.Employee{anna}, now, 6, loc)

	report, err := newExtender(store).Extend(context.Background(), now, Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	})
	require.NoError(t, err)
	require.Equal(t, 1, report.Teams[0].Created())

	var created *model.Assignment
	for _, a := range store.Assignments() {
		if a.Start.Equal(time.Date(2026, 7, 15, 17, 0, 0, 0, loc)) {
			a := a
			created = &a
		}
	}
	require.NotNil(t, created)
	assert.Equal(t, bram.ID, created.EmployeeID)
}

func TestExtendSkipsUnseededTeam(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	store := db.NewMemoryStore()
	store.AddTeam(team, []model.Employee{testEmployee(1, "Anna")})

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	report, err := newExtender(store).Extend(context.Background(), now, Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	})
	require.NoError(t, err)
	require.Len(t, report.Teams, 1)

	cat := report.Teams[0].Categories[0]
	assert.False(t, cat.Eligible)
	assert.Equal(t, "no existing coverage", cat.Reason)
	assert.Zero(t, cat.Created)
	assert.Empty(t, store.Assignments())
}

func TestExtendSkipsThinlySeededTeam(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(team, pool)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	// Two seeded weeks fall short of the four-week seed requirement
	seedWaakdienst(store, team, pool, now, 2, loc)

	report, err := newExtender(store).Extend(context.Background(), now, Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	})
	require.NoError(t, err)

	cat := report.Teams[0].Categories[0]
	assert.False(t, cat.Eligible)
	assert.Contains(t, cat.Reason, "need 4 weeks")
	assert.Zero(t, cat.Created)
}

func TestExtendDryRunWritesNothing(t *testing.T) {
	loc := amsterdam(t)
	team := testTeam(1)
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(team, pool)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	seedWaakdienst(store, team, pool, now, 6, loc)
	before := len(store.Assignments())

	report, err := newExtender(store).Extend(context.Background(), now, Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
		DryRun:     true,
	})
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Teams[0].Created())
	assert.Len(t, store.Assignments(), before)
}

func TestFlightKeyDistinguishesOptions(t *testing.T) {
	teamID := uuid.MustParse("10000000-0000-0000-0000-000000000001")
	base := Options{
		Weeks:      8,
		SeedWeeks:  4,
		Categories: []model.ShiftCategory{model.CategoryWaakdienst},
	}

	variants := []Options{
		{Weeks: 12, SeedWeeks: 4, Categories: base.Categories},
		{Weeks: 8, SeedWeeks: 6, Categories: base.Categories},
		{Weeks: 8, SeedWeeks: 4, Categories: []model.ShiftCategory{model.CategoryIncidents}},
		{Weeks: 8, SeedWeeks: 4, Categories: base.Categories, DryRun: true},
	}
	for _, v := range variants {
		assert.NotEqual(t, flightKey(teamID, base), flightKey(teamID, v))
	}

	// Identical options collapse onto the same key, regardless of the
	// order categories were listed in
	same := Options{
		Weeks:     8,
		SeedWeeks: 4,
		Categories: []model.ShiftCategory{
			model.CategoryWaakdienst, model.CategoryIncidents,
		},
	}
	reordered := Options{
		Weeks:     8,
		SeedWeeks: 4,
		Categories: []model.ShiftCategory{
			model.CategoryIncidents, model.CategoryWaakdienst,
		},
	}
	assert.Equal(t, flightKey(teamID, same), flightKey(teamID, reordered))
}

func TestExtendFiltersTeams(t *testing.T) {
	loc := amsterdam(t)
	teamA := testTeam(1)
	teamB := testTeam(2)
	pool := []model.Employee{testEmployee(1, "Anna"), testEmployee(2, "Bram")}
	store := db.NewMemoryStore()
	store.AddTeam(teamA, pool)
	store.AddTeam(teamB, pool)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, loc)
	report, err := newExtender(store).Extend(context.Background(), now, Options{
		Weeks:     8,
		SeedWeeks: 4,
		TeamIDs:   []uuid.UUID{teamA.ID},
	})
	require.NoError(t, err)
	require.Len(t, report.Teams, 1)
	assert.Equal(t, teamA.ID, report.Teams[0].Team.ID)
}
