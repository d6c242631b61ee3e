package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// MemoryStore is an in-memory Store implementation backing tests and
// dry-run tooling. All methods are safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	teams       map[uuid.UUID]model.Team
	members     map[uuid.UUID][]model.Employee // teamID -> members
	leaves      []model.LeaveRequest
	patterns    []model.RecurringLeavePattern
	assignments []model.Assignment
	runs        map[uuid.UUID]model.OrchestrationRun
	violations  []model.ConstraintViolation
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:   make(map[uuid.UUID]model.Team),
		members: make(map[uuid.UUID][]model.Employee),
		runs:    make(map[uuid.UUID]model.OrchestrationRun),
	}
}

// AddTeam registers a team and its members
func (s *MemoryStore) AddTeam(team model.Team, members []model.Employee) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[team.ID] = team
	s.members[team.ID] = members
}

// AddLeave registers a leave request
func (s *MemoryStore) AddLeave(leave model.LeaveRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, leave)
}

// AddPattern registers a recurring leave pattern
func (s *MemoryStore) AddPattern(pattern model.RecurringLeavePattern) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = append(s.patterns, pattern)
}

// AddAssignment registers an existing assignment directly
func (s *MemoryStore) AddAssignment(a model.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, a)
}

func (s *MemoryStore) GetTeam(_ context.Context, id uuid.UUID) (model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[id]
	if !ok {
		return model.Team{}, fmt.Errorf("team %s not found", id)
	}
	return team, nil
}

func (s *MemoryStore) ListTeams(_ context.Context) ([]model.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	teams := make([]model.Team, 0, len(s.teams))
	for _, t := range s.teams {
		teams = append(teams, t)
	}
	return teams, nil
}

func (s *MemoryStore) ListTeamMembers(_ context.Context, teamID uuid.UUID) ([]model.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Employee(nil), s.members[teamID]...), nil
}

func (s *MemoryStore) ListApprovedLeave(_ context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.LeaveRequest
	for _, l := range s.leaves {
		if l.EmployeeID != employeeID || !l.Approved() {
			continue
		}
		if l.EndDate.Before(from.AddDate(0, 0, -1)) || l.StartDate.After(to) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (s *MemoryStore) ListActivePatterns(_ context.Context, employeeID uuid.UUID) ([]model.RecurringLeavePattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.RecurringLeavePattern
	for _, p := range s.patterns {
		if p.EmployeeID == employeeID && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTeamAssignments(_ context.Context, teamID uuid.UUID, from, to time.Time) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.TeamID == teamID && a.ActiveOn() && a.OverlapsWindow(from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListEmployeeAssignments(_ context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.EmployeeID == employeeID && a.ActiveOn() && a.OverlapsWindow(from, to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertAssignments(_ context.Context, assignments []model.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, assignments...)
	return nil
}

func (s *MemoryStore) DeleteAutoAssignments(_ context.Context, teamID uuid.UUID, cutover time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []model.Assignment
	var removed int64
	for _, a := range s.assignments {
		if a.TeamID == teamID && a.AutoAssigned && !a.Start.Before(cutover) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.assignments = kept
	return removed, nil
}

func (s *MemoryStore) InsertRun(_ context.Context, run *model.OrchestrationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) FinishRun(_ context.Context, run *model.OrchestrationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return fmt.Errorf("run %s not found", run.ID)
	}
	if stored.Status.Terminal() {
		return fmt.Errorf("run %s is already terminal", run.ID)
	}
	s.runs[run.ID] = *run
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, teamID *uuid.UUID, limit int) ([]model.OrchestrationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []model.OrchestrationRun
	for _, r := range s.runs {
		if teamID != nil && r.TeamID != *teamID {
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID.String() < runs[j].ID.String()
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (s *MemoryStore) InsertViolations(_ context.Context, violations []model.ConstraintViolation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, violations...)
	return nil
}

// Runs returns all recorded runs, for assertions in tests
func (s *MemoryStore) Runs() []model.OrchestrationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	runs := make([]model.OrchestrationRun, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	return runs
}

// Violations returns all recorded violations, for assertions in tests
func (s *MemoryStore) Violations() []model.ConstraintViolation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.ConstraintViolation(nil), s.violations...)
}

// Assignments returns a copy of every stored assignment
func (s *MemoryStore) Assignments() []model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Assignment(nil), s.assignments...)
}
