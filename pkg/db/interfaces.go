// Package db defines the store interfaces the scheduling core consumes.
// The postgres package provides the shipped implementation; tests use
// in-memory fakes.
package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// TeamStore reads team planning configuration
type TeamStore interface {
	GetTeam(ctx context.Context, id uuid.UUID) (model.Team, error)
	ListTeams(ctx context.Context) ([]model.Team, error)
}

// EmployeeStore reads the employee directory
type EmployeeStore interface {
	ListTeamMembers(ctx context.Context, teamID uuid.UUID) ([]model.Employee, error)
}

// LeaveStore reads approved leave and recurring leave patterns
type LeaveStore interface {
	// ListApprovedLeave returns approved requests for the employee that
	// overlap the [from, to] date range
	ListApprovedLeave(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.LeaveRequest, error)
	// ListActivePatterns returns the employee's active recurring patterns
	ListActivePatterns(ctx context.Context, employeeID uuid.UUID) ([]model.RecurringLeavePattern, error)
}

// AssignmentStore reads and writes persisted assignments
type AssignmentStore interface {
	// ListTeamAssignments returns non-cancelled assignments for the team
	// overlapping [from, to)
	ListTeamAssignments(ctx context.Context, teamID uuid.UUID, from, to time.Time) ([]model.Assignment, error)
	// ListEmployeeAssignments returns non-cancelled assignments for the
	// employee overlapping [from, to), across all teams
	ListEmployeeAssignments(ctx context.Context, employeeID uuid.UUID, from, to time.Time) ([]model.Assignment, error)
	// InsertAssignments writes all assignments of one apply run in a
	// single transaction: all commit or none do
	InsertAssignments(ctx context.Context, assignments []model.Assignment) error
	// DeleteAutoAssignments removes auto-generated assignments for the
	// team starting at or after the cutover, returning the removed count.
	// This is the only delete path for assignments.
	DeleteAutoAssignments(ctx context.Context, teamID uuid.UUID, cutover time.Time) (int64, error)
}

// RunStore reads and writes orchestration run audit records
type RunStore interface {
	InsertRun(ctx context.Context, run *model.OrchestrationRun) error
	FinishRun(ctx context.Context, run *model.OrchestrationRun) error
	// ListRuns returns the most recent runs, newest first. A nil team
	// filter returns runs across all teams.
	ListRuns(ctx context.Context, teamID *uuid.UUID, limit int) ([]model.OrchestrationRun, error)
}

// ViolationStore writes constraint-violation audit records
type ViolationStore interface {
	InsertViolations(ctx context.Context, violations []model.ConstraintViolation) error
}

// Store aggregates everything the scheduling services need
type Store interface {
	TeamStore
	EmployeeStore
	LeaveStore
	AssignmentStore
	RunStore
	ViolationStore
}
