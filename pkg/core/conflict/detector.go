// Package conflict finds clashes between candidate assignments and the
// persisted scheduling state, and resolves them by reassignment. Detection
// and resolution are separate passes so callers can surface conflicts in a
// preview without committing any fix.
package conflict

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/model"
)

// Conflict is one detected clash for one candidate assignment
type Conflict struct {
	Assignment model.Assignment
	Type       model.ConflictType
	Severity   model.ConflictSeverity
	// ConflictedDays holds the clashing business days for business-hours
	// categories; it is empty for whole-period categories like waakdienst
	ConflictedDays []anchor.DayWindow
	Detail         string
}

// Detector scans candidate assignments for leave overlaps and double
// bookings. It re-reads persisted state through the checker on every call.
type Detector struct {
	team    model.Team
	checker *constraint.Checker
	logger  *zap.Logger
}

// NewDetector creates a detector for the team
func NewDetector(team model.Team, checker *constraint.Checker, logger *zap.Logger) *Detector {
	return &Detector{team: team, checker: checker, logger: logger}
}

// Detect scans every candidate for recurring-leave overlap, approved-leave
// overlap and double assignment. Candidates are checked against persisted
// state and against each other, since unpersisted candidates are invisible
// to the store.
func (d *Detector) Detect(ctx context.Context, employees []model.Employee, candidates []model.Assignment) ([]Conflict, error) {
	byID := make(map[string]model.Employee, len(employees))
	for _, emp := range employees {
		byID[emp.ID.String()] = emp
	}

	var conflicts []Conflict
	for i, candidate := range candidates {
		emp, ok := byID[candidate.EmployeeID.String()]
		if !ok {
			// Unknown employees cannot be constraint-checked; skip rather
			// than guess
			d.logger.Warn("Skipping candidate for unknown employee",
				zap.String("assignment", candidate.ID.String()))
			continue
		}

		_, blocks, err := d.checker.IsAvailable(ctx, emp, candidate.Start, candidate.End, candidate.Category)
		if err != nil {
			return nil, fmt.Errorf("failed to check candidate %s: %w", candidate.ID, err)
		}
		for _, conflictType := range []model.ConflictType{
			model.ConflictApprovedLeave,
			model.ConflictRecurringLeave,
			model.ConflictDoubleAssignment,
		} {
			matched := blocksOfType(blocks, conflictType)
			if len(matched) == 0 {
				continue
			}
			c, err := d.classify(candidate, conflictType, matched)
			if err != nil {
				return nil, err
			}
			conflicts = append(conflicts, c)
		}

		// Double assignment inside the candidate set itself: the later
		// candidate in generation order carries the conflict
		for _, earlier := range candidates[:i] {
			if earlier.EmployeeID == candidate.EmployeeID && candidate.Overlaps(earlier) {
				conflicts = append(conflicts, Conflict{
					Assignment: candidate,
					Type:       model.ConflictDoubleAssignment,
					Severity:   model.SeverityCritical,
					Detail: fmt.Sprintf("overlaps candidate %s assignment starting %s",
						earlier.Category, earlier.Start.Format("2006-01-02 15:04")),
				})
				break
			}
		}
	}

	if len(conflicts) > 0 {
		d.logger.Debug("Detected conflicts",
			zap.Int("candidates", len(candidates)),
			zap.Int("conflicts", len(conflicts)))
	}

	return conflicts, nil
}

// classify grades a conflict: double bookings are always critical; leave
// overlaps are partial or full depending on how many of the assignment's
// days they invalidate. Whole-period categories have no partial grade.
func (d *Detector) classify(candidate model.Assignment, conflictType model.ConflictType, blocks []constraint.Block) (Conflict, error) {
	c := Conflict{
		Assignment: candidate,
		Type:       conflictType,
		Detail:     blockSummary(blocks),
	}

	if conflictType == model.ConflictDoubleAssignment {
		c.Severity = model.SeverityCritical
		return c, nil
	}

	if !candidate.Category.IsBusinessHours() {
		c.Severity = model.SeverityFull
		return c, nil
	}

	days, err := anchor.BusinessDays(anchor.Period{
		Category: candidate.Category,
		Start:    candidate.Start,
		End:      candidate.End,
	}, d.team)
	if err != nil {
		return Conflict{}, fmt.Errorf("failed to expand candidate days: %w", err)
	}

	for _, day := range days {
		for _, b := range blocks {
			if b.Start.Before(day.End) && day.Start.Before(b.End) {
				c.ConflictedDays = append(c.ConflictedDays, day)
				break
			}
		}
	}

	if len(c.ConflictedDays) >= len(days) {
		c.Severity = model.SeverityFull
	} else {
		c.Severity = model.SeverityPartial
	}
	return c, nil
}

func blocksOfType(blocks []constraint.Block, conflictType model.ConflictType) []constraint.Block {
	var reason constraint.Reason
	switch conflictType {
	case model.ConflictApprovedLeave:
		reason = constraint.ReasonApprovedLeave
	case model.ConflictRecurringLeave:
		reason = constraint.ReasonRecurringLeave
	case model.ConflictDoubleAssignment:
		reason = constraint.ReasonExistingBooking
	}

	var matched []constraint.Block
	for _, b := range blocks {
		if b.Reason == reason {
			matched = append(matched, b)
		}
	}
	return matched
}

func blockSummary(blocks []constraint.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, b.Detail)
	}
	return strings.Join(parts, "; ")
}

// overlapsDay reports whether any window in days covers the given date
func overlapsDay(days []anchor.DayWindow, date time.Time) bool {
	for _, day := range days {
		if day.Date.Equal(date) {
			return true
		}
	}
	return false
}
