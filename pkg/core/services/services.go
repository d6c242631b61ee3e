// Package services exposes the scheduling operations an outer surface
// (CLI, API) calls: preview, apply, rolling-horizon extension, calendar
// export and history reset. Every invocation leaves a run record; only
// apply, extension and reset write assignments.
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/conflict"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/fairness"
	"github.com/roosterplan/rooster/pkg/core/horizon"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/core/orchestrator"
	"github.com/roosterplan/rooster/pkg/db"
	"github.com/roosterplan/rooster/pkg/export"
	"github.com/roosterplan/rooster/pkg/holidays"
)

// Scheduler is the service facade over the scheduling core
type Scheduler struct {
	store         db.Store
	weights       fairness.Weights
	skills        map[model.ShiftCategory]string
	extraHolidays []holidays.ExtraDay
	logger        *zap.Logger
	orch          *orchestrator.Orchestrator
	extender      *horizon.Extender
	exporter      *export.Exporter
}

// NewScheduler wires the core components over one store. The horizon
// extender is shared so its per-team locks survive across calls.
func NewScheduler(store db.Store, weights fairness.Weights, skills map[model.ShiftCategory]string, logger *zap.Logger) *Scheduler {
	orch := orchestrator.New(store, weights, skills, logger)
	return &Scheduler{
		store:    store,
		weights:  weights,
		skills:   skills,
		logger:   logger,
		orch:     orch,
		extender: horizon.NewExtender(store, orch, logger),
		exporter: export.NewExporter(store, store, store, logger),
	}
}

// SetExtraHolidays registers company closure days on top of the public
// holiday calendar; they weigh into fairness and are skipped by teams
// that skip incidents coverage on holidays
func (s *Scheduler) SetExtraHolidays(days []holidays.ExtraDay) {
	s.extraHolidays = days
	s.orch.SetExtraHolidays(days)
}

// ScheduleRequest selects what to generate
type ScheduleRequest struct {
	TeamID     uuid.UUID
	Start      time.Time
	End        time.Time
	Categories []model.ShiftCategory
}

// ReassignmentSummary tallies how detected conflicts were resolved
type ReassignmentSummary struct {
	Reassigned          int
	Split               int
	ManualInterventions int
}

// PreviewResult is a dry run's full outcome; nothing in it is persisted
// except the run audit record
type PreviewResult struct {
	RunID          uuid.UUID
	Team           model.Team
	Assignments    []model.Assignment
	Warnings       []string
	Conflicts      []conflict.Conflict
	Resolutions    []conflict.Resolution
	FairnessScores map[uuid.UUID]float64
}

// ApplyResult reports a committed run
type ApplyResult struct {
	RunID         uuid.UUID
	Created       int
	PerCategory   map[model.ShiftCategory]int
	Reassignments ReassignmentSummary
	Warnings      []string
}

// PreviewSchedule generates candidates, detects and resolves conflicts and
// scores fairness without writing any assignment
func (s *Scheduler) PreviewSchedule(ctx context.Context, req ScheduleRequest) (*PreviewResult, error) {
	run := model.NewOrchestrationRun(req.TeamID, req.Start, req.End, req.Categories)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open run record: %w", err)
	}

	planned, err := s.plan(ctx, run.ID, req)
	if err != nil {
		s.finishRun(ctx, run, model.RunFailed, err.Error())
		return nil, err
	}

	s.finishRun(ctx, run, model.RunPreview, "")

	return &PreviewResult{
		RunID:          run.ID,
		Team:           planned.team,
		Assignments:    planned.assignments,
		Warnings:       planned.warnings,
		Conflicts:      planned.conflicts,
		Resolutions:    planned.resolutions,
		FairnessScores: planned.scores,
	}, nil
}

// ApplySchedule generates, resolves and commits a schedule. All writes for
// the run go through one transactional insert: either every assignment
// lands or none do, and the run record carries the terminal status.
func (s *Scheduler) ApplySchedule(ctx context.Context, req ScheduleRequest) (*ApplyResult, error) {
	run := model.NewOrchestrationRun(req.TeamID, req.Start, req.End, req.Categories)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open run record: %w", err)
	}

	planned, err := s.plan(ctx, run.ID, req)
	if err != nil {
		s.finishRun(ctx, run, model.RunFailed, err.Error())
		return nil, err
	}

	if len(planned.assignments) > 0 {
		if err := s.store.InsertAssignments(ctx, planned.assignments); err != nil {
			wrapped := fmt.Errorf("failed to persist assignments: %w", err)
			s.finishRun(ctx, run, model.RunFailed, wrapped.Error())
			return nil, wrapped
		}
	}
	if len(planned.violations) > 0 {
		if err := s.store.InsertViolations(ctx, planned.violations); err != nil {
			// Assignments are already committed; the audit gap is logged
			// rather than failing the run
			s.logger.Warn("Failed to persist constraint violations", zap.Error(err))
		}
	}

	perCategory := make(map[model.ShiftCategory]int)
	for _, a := range planned.assignments {
		perCategory[a.Category]++
	}
	run.CategoryCounts = perCategory
	run.TotalCreated = len(planned.assignments)
	s.finishRun(ctx, run, model.RunCompleted, "")

	s.logger.Info("Applied schedule",
		zap.String("team", planned.team.Name),
		zap.Int("created", len(planned.assignments)),
		zap.Int("conflicts", len(planned.conflicts)))

	return &ApplyResult{
		RunID:         run.ID,
		Created:       len(planned.assignments),
		PerCategory:   perCategory,
		Reassignments: summarize(planned.resolutions),
		Warnings:      planned.warnings,
	}, nil
}

// ExtendRollingHorizon tops up seeded teams and records a run per team
// that received new coverage
func (s *Scheduler) ExtendRollingHorizon(ctx context.Context, now time.Time, opts horizon.Options) (*horizon.Report, error) {
	report, err := s.extender.Extend(ctx, now, opts)
	if err != nil {
		return nil, err
	}

	if !opts.DryRun {
		for _, teamReport := range report.Teams {
			if teamReport.Created() == 0 && teamReport.Error == "" {
				continue
			}
			s.recordExtensionRun(ctx, now, teamReport, opts)
		}
	}

	return report, nil
}

// RecentRuns lists the latest orchestration run records, newest first
func (s *Scheduler) RecentRuns(ctx context.Context, teamID *uuid.UUID, limit int) ([]model.OrchestrationRun, error) {
	runs, err := s.store.ListRuns(ctx, teamID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ExportCalendar renders a team's (or one employee's) schedule as ICS text
func (s *Scheduler) ExportCalendar(ctx context.Context, opts export.Options) (string, error) {
	return s.exporter.Calendar(ctx, opts)
}

// ResetResult reports a history reset
type ResetResult struct {
	RunID   uuid.UUID
	Deleted int64
}

// ResetHistory deletes a team's auto-generated assignments starting at the
// cutover. Manually created assignments are never touched. This is the
// only delete path for assignments.
func (s *Scheduler) ResetHistory(ctx context.Context, teamID uuid.UUID, cutover time.Time) (*ResetResult, error) {
	run := model.NewOrchestrationRun(teamID, cutover, cutover, nil)
	if err := s.store.InsertRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to open run record: %w", err)
	}

	deleted, err := s.store.DeleteAutoAssignments(ctx, teamID, cutover)
	if err != nil {
		wrapped := fmt.Errorf("failed to delete auto assignments: %w", err)
		s.finishRun(ctx, run, model.RunFailed, wrapped.Error())
		return nil, wrapped
	}

	s.finishRun(ctx, run, model.RunCompleted, "")
	s.logger.Info("Reset schedule history",
		zap.String("team", teamID.String()),
		zap.Time("cutover", cutover),
		zap.Int64("deleted", deleted))

	return &ResetResult{RunID: run.ID, Deleted: deleted}, nil
}

// planOutcome is the shared result of the generate-detect-resolve pipeline
type planOutcome struct {
	team        model.Team
	assignments []model.Assignment
	warnings    []string
	conflicts   []conflict.Conflict
	resolutions []conflict.Resolution
	violations  []model.ConstraintViolation
	scores      map[uuid.UUID]float64
}

// plan runs generation, conflict detection, resolution and fairness
// scoring. It performs no writes.
func (s *Scheduler) plan(ctx context.Context, runID uuid.UUID, req ScheduleRequest) (*planOutcome, error) {
	team, err := s.store.GetTeam(ctx, req.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load team: %w", err)
	}
	loc, err := team.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team timezone: %w", err)
	}

	outcome, err := s.orch.Run(ctx, team, req.Start, req.End, req.Categories)
	if err != nil {
		return nil, err
	}

	members, err := s.store.ListTeamMembers(ctx, req.TeamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team members: %w", err)
	}
	var pool []model.Employee
	for _, emp := range members {
		if emp.Active {
			pool = append(pool, emp)
		}
	}

	checker, err := constraint.NewChecker(team, s.store, s.store, s.skills, s.logger)
	if err != nil {
		return nil, err
	}
	calendar := holidays.NewCalendar(loc)
	calendar.AddExtraDays(s.extraHolidays)
	calc := fairness.NewComprehensiveCalculator(req.Start, req.End, s.weights, calendar, loc)

	lookbackStart := req.Start.AddDate(0, 0, -int(s.weights.LookbackDays))
	history, err := s.store.ListTeamAssignments(ctx, req.TeamID, lookbackStart, req.End)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignment history: %w", err)
	}

	// Generation already constraint-checks, but state can move between
	// steps; the detector re-validates against what is persisted now
	detector := conflict.NewDetector(team, checker, s.logger)
	conflicts, err := detector.Detect(ctx, pool, outcome.Assignments)
	if err != nil {
		return nil, fmt.Errorf("failed to detect conflicts: %w", err)
	}

	loads := calc.CurrentAssignments(pool, history)
	resolver := conflict.NewResolver(team, pool, checker, calc, loads, s.logger)
	resolutions, err := resolver.Resolve(ctx, runID, outcome.Assignments, conflicts)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflicts: %w", err)
	}

	planned := &planOutcome{
		team:        team,
		assignments: applyResolutions(outcome.Assignments, resolutions),
		warnings:    outcome.Warnings,
		conflicts:   conflicts,
		resolutions: resolutions,
	}
	for _, r := range resolutions {
		planned.violations = append(planned.violations, r.Violations...)
		if r.Outcome == model.ResolutionManualIntervention {
			planned.warnings = append(planned.warnings, fmt.Sprintf(
				"manual intervention required for %s assignment starting %s",
				r.Original.Category, r.Original.Start.Format("2006-01-02 15:04")))
		}
	}

	planned.scores, err = s.fairnessScores(ctx, calc, pool, history, planned.assignments, req)
	if err != nil {
		return nil, err
	}

	return planned, nil
}

// fairnessScores scores the pool over the window as if the planned
// assignments were committed
func (s *Scheduler) fairnessScores(ctx context.Context, calc *fairness.Calculator, pool []model.Employee, history, planned []model.Assignment, req ScheduleRequest) (map[uuid.UUID]float64, error) {
	combined := make([]model.Assignment, 0, len(history)+len(planned))
	combined = append(combined, history...)
	combined = append(combined, planned...)

	var leaves []model.LeaveRequest
	for _, emp := range pool {
		empLeaves, err := s.store.ListApprovedLeave(ctx, emp.ID, req.Start, req.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load leave for scoring: %w", err)
		}
		leaves = append(leaves, empLeaves...)
	}

	loads := calc.CurrentAssignments(pool, combined)
	return calc.FairnessScores(pool, loads, leaves), nil
}

// applyResolutions swaps resolved assignments for their replacements.
// Manual interventions keep the original, which stays flagged through its
// violation record.
func applyResolutions(generated []model.Assignment, resolutions []conflict.Resolution) []model.Assignment {
	replaced := make(map[uuid.UUID][]model.Assignment)
	for _, r := range resolutions {
		if r.Outcome == model.ResolutionManualIntervention {
			continue
		}
		replaced[r.Original.ID] = r.Replacements
	}

	var final []model.Assignment
	for _, a := range generated {
		if replacements, ok := replaced[a.ID]; ok {
			final = append(final, replacements...)
			continue
		}
		final = append(final, a)
	}
	return final
}

func summarize(resolutions []conflict.Resolution) ReassignmentSummary {
	var summary ReassignmentSummary
	for _, r := range resolutions {
		switch r.Outcome {
		case model.ResolutionNextBestAvailable:
			summary.Reassigned++
		case model.ResolutionSplitCoverage:
			summary.Split++
		case model.ResolutionManualIntervention:
			summary.ManualInterventions++
		}
	}
	return summary
}

// finishRun closes the run record; a failure to persist the terminal state
// is logged, not returned, so it cannot mask the primary error
func (s *Scheduler) finishRun(ctx context.Context, run *model.OrchestrationRun, status model.RunStatus, errText string) {
	if err := run.Finish(status, errText); err != nil {
		s.logger.Warn("Could not finish run record", zap.Error(err))
		return
	}
	if err := s.store.FinishRun(ctx, run); err != nil {
		s.logger.Warn("Could not persist run record", zap.Error(err))
	}
}

// recordExtensionRun writes an audit run for one extended team
func (s *Scheduler) recordExtensionRun(ctx context.Context, now time.Time, teamReport horizon.TeamReport, opts horizon.Options) {
	weeks := opts.Weeks
	if weeks <= 0 {
		weeks = horizon.DefaultWeeks
	}
	run := model.NewOrchestrationRun(teamReport.Team.ID, now, now.AddDate(0, 0, 7*weeks), opts.Categories)
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.logger.Warn("Could not record extension run", zap.Error(err))
		return
	}

	counts := make(map[model.ShiftCategory]int)
	for _, c := range teamReport.Categories {
		if c.Created > 0 {
			counts[c.Category] = c.Created
		}
	}
	run.CategoryCounts = counts
	run.TotalCreated = teamReport.Created()

	status := model.RunCompleted
	if teamReport.Error != "" {
		status = model.RunFailed
	}
	s.finishRun(ctx, run, status, teamReport.Error)
}
