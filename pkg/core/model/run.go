package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of an orchestration run.
// Runs move from running to exactly one terminal state and are
// immutable afterwards.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunPreview   RunStatus = "preview"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether the status is one a run can no longer leave
func (s RunStatus) Terminal() bool {
	return s == RunPreview || s == RunCompleted || s == RunFailed
}

// OrchestrationRun is the audit record of one scheduling invocation
type OrchestrationRun struct {
	ID          uuid.UUID
	TeamID      uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Categories  []ShiftCategory
	Status      RunStatus
	// CategoryCounts holds created assignments per category for apply runs
	CategoryCounts map[ShiftCategory]int
	TotalCreated   int
	Error          string
	StartedAt      time.Time
	FinishedAt     *time.Time
}

// NewOrchestrationRun opens a run record in the running state
func NewOrchestrationRun(teamID uuid.UUID, start, end time.Time, categories []ShiftCategory) *OrchestrationRun {
	return &OrchestrationRun{
		ID:             uuid.New(),
		TeamID:         teamID,
		PeriodStart:    start,
		PeriodEnd:      end,
		Categories:     categories,
		Status:         RunRunning,
		CategoryCounts: make(map[ShiftCategory]int),
		StartedAt:      time.Now().UTC(),
	}
}

// Finish moves the run to a terminal status. Finishing an already
// terminal run is an error because run records are immutable once closed.
func (r *OrchestrationRun) Finish(status RunStatus, errText string) error {
	if r.Status.Terminal() {
		return fmt.Errorf("run %s is already terminal (%s)", r.ID, r.Status)
	}
	if !status.Terminal() {
		return fmt.Errorf("cannot finish run %s with non-terminal status %s", r.ID, status)
	}
	now := time.Now().UTC()
	r.Status = status
	r.Error = errText
	r.FinishedAt = &now
	return nil
}

// ConflictType classifies why a candidate assignment clashes
type ConflictType string

const (
	ConflictRecurringLeave   ConflictType = "recurring_leave"
	ConflictApprovedLeave    ConflictType = "approved_leave"
	ConflictDoubleAssignment ConflictType = "double_assignment"
)

// ConflictSeverity ranks how much of the assignment the clash invalidates
type ConflictSeverity string

const (
	// SeverityPartial means only some days of a multi-day window clash
	SeverityPartial ConflictSeverity = "partial"
	// SeverityFull means the whole window clashes
	SeverityFull ConflictSeverity = "full"
	// SeverityCritical means keeping the assignment would break a hard rule
	SeverityCritical ConflictSeverity = "critical"
)

// ResolutionOutcome is how a detected conflict was handled
type ResolutionOutcome string

const (
	ResolutionNextBestAvailable  ResolutionOutcome = "next_best_available"
	ResolutionSplitCoverage      ResolutionOutcome = "split_coverage"
	ResolutionManualIntervention ResolutionOutcome = "manual_intervention"
)

// ConstraintViolation is the persisted audit record of one conflict and
// the resolution applied to it
type ConstraintViolation struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	AssignmentID uuid.UUID
	EmployeeID   uuid.UUID
	Type         ConflictType
	Severity     ConflictSeverity
	Resolution   ResolutionOutcome
	Detail       string
	CreatedAt    time.Time
}
