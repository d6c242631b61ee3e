// Package constraint answers the per-employee availability question: can
// this employee cover this window for this category, given leave records,
// recurring patterns and existing assignments.
//
// Every check reads persisted state at call time. Results are not cached
// here; a caller that wants memoization does it explicitly.
package constraint

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/db"
)

// morningEndHour splits a business day into the morning and afternoon
// sub-ranges a recurring pattern can block
const morningEndHour = 12

// Reason classifies why an employee is unavailable for a window
type Reason string

const (
	ReasonInactive        Reason = "inactive"
	ReasonNotEmployed     Reason = "not_employed"
	ReasonJoinerGrace     Reason = "joiner_grace"
	ReasonCategoryFlag    Reason = "category_flag"
	ReasonMissingSkill    Reason = "missing_skill"
	ReasonApprovedLeave   Reason = "approved_leave"
	ReasonRecurringLeave  Reason = "recurring_leave"
	ReasonExistingBooking Reason = "existing_booking"
)

// Block is one concrete unavailability found inside a queried window
type Block struct {
	Reason Reason
	Detail string
	Start  time.Time
	End    time.Time
}

// DefaultSkills maps each category to the skill an employee must carry to
// be scheduled for it
func DefaultSkills() map[model.ShiftCategory]string {
	return map[model.ShiftCategory]string{
		model.CategoryIncidents:        "incidents",
		model.CategoryIncidentsStandby: "incidents",
		model.CategoryWaakdienst:       "waakdienst",
	}
}

// Checker evaluates availability for one team
type Checker struct {
	team        model.Team
	loc         *time.Location
	leaves      db.LeaveStore
	assignments db.AssignmentStore
	skills      map[model.ShiftCategory]string
	logger      *zap.Logger
}

// NewChecker creates a checker for the team. A nil skills map disables the
// skill-requirement check.
func NewChecker(team model.Team, leaves db.LeaveStore, assignments db.AssignmentStore, skills map[model.ShiftCategory]string, logger *zap.Logger) (*Checker, error) {
	loc, err := team.Location()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve team timezone: %w", err)
	}
	return &Checker{
		team:        team,
		loc:         loc,
		leaves:      leaves,
		assignments: assignments,
		skills:      skills,
		logger:      logger,
	}, nil
}

// IsAvailable reports whether the employee can cover [start, end) for the
// category, returning every block found inside the window
func (c *Checker) IsAvailable(ctx context.Context, emp model.Employee, start, end time.Time, category model.ShiftCategory) (bool, []Block, error) {
	var blocks []Block

	if b := c.profileBlock(emp, start, end, category); b != nil {
		// Profile-level blocks make every other check moot
		return false, []Block{*b}, nil
	}

	leaveBlocks, err := c.leaveBlocks(ctx, emp, start, end)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check approved leave: %w", err)
	}
	blocks = append(blocks, leaveBlocks...)

	patternBlocks, err := c.patternBlocks(ctx, emp, start, end)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check recurring patterns: %w", err)
	}
	blocks = append(blocks, patternBlocks...)

	bookingBlocks, err := c.bookingBlocks(ctx, emp, start, end)
	if err != nil {
		return false, nil, fmt.Errorf("failed to check existing assignments: %w", err)
	}
	blocks = append(blocks, bookingBlocks...)

	return len(blocks) == 0, blocks, nil
}

// profileBlock covers the checks that do not depend on the window's days:
// active status, employment dates, joiner grace, category flag and skill
func (c *Checker) profileBlock(emp model.Employee, start, end time.Time, category model.ShiftCategory) *Block {
	if !emp.Active {
		return &Block{Reason: ReasonInactive, Detail: "employee is not active", Start: start, End: end}
	}
	if !emp.EmployedDuring(start, end) {
		return &Block{Reason: ReasonNotEmployed, Detail: "window falls outside employment dates", Start: start, End: end}
	}
	if c.team.JoinerGraceDays > 0 {
		graceEnd := emp.HiredAt.AddDate(0, 0, c.team.JoinerGraceDays)
		if start.Before(graceEnd) {
			return &Block{
				Reason: ReasonJoinerGrace,
				Detail: fmt.Sprintf("within %d-day joiner grace period", c.team.JoinerGraceDays),
				Start:  start,
				End:    end,
			}
		}
	}
	if !emp.AvailableFor(category) {
		return &Block{
			Reason: ReasonCategoryFlag,
			Detail: fmt.Sprintf("not available for %s", category),
			Start:  start,
			End:    end,
		}
	}
	if skill, required := c.skills[category]; required && !emp.HasSkill(skill) {
		return &Block{
			Reason: ReasonMissingSkill,
			Detail: fmt.Sprintf("missing required skill %q", skill),
			Start:  start,
			End:    end,
		}
	}
	return nil
}

// leaveBlocks intersects approved leave with the window, honouring each
// leave's conflict-handling policy
func (c *Checker) leaveBlocks(ctx context.Context, emp model.Employee, start, end time.Time) ([]Block, error) {
	leaves, err := c.leaves.ListApprovedLeave(ctx, emp.ID, start.In(c.loc), end.In(c.loc))
	if err != nil {
		return nil, err
	}

	var blocks []Block
	for _, leave := range leaves {
		if !leave.Approved() || leave.Policy == model.LeaveNoConflict {
			continue
		}

		for _, day := range daysBetween(start, end, c.loc) {
			if !leave.CoversDate(day) {
				continue
			}

			var blockStart, blockEnd time.Time
			switch leave.Policy {
			case model.LeaveFullUnavailable:
				blockStart = day
				blockEnd = day.AddDate(0, 0, 1)
			case model.LeaveDaytimeOnly:
				blockStart = time.Date(day.Year(), day.Month(), day.Day(), c.team.BusinessStartHour, 0, 0, 0, c.loc)
				blockEnd = time.Date(day.Year(), day.Month(), day.Day(), c.team.BusinessEndHour, 0, 0, 0, c.loc)
			}

			if s, e, ok := intersect(blockStart, blockEnd, start, end); ok {
				blocks = append(blocks, Block{
					Reason: ReasonApprovedLeave,
					Detail: fmt.Sprintf("approved leave (%s)", leave.Policy),
					Start:  s,
					End:    e,
				})
			}
		}
	}

	return blocks, nil
}

// patternBlocks expands the employee's recurring patterns and intersects
// each occurrence's blocked sub-window with the actual queried window,
// not just the date
func (c *Checker) patternBlocks(ctx context.Context, emp model.Employee, start, end time.Time) ([]Block, error) {
	patterns, err := c.leaves.ListActivePatterns(ctx, emp.ID)
	if err != nil {
		return nil, err
	}

	var blocks []Block
	for _, pattern := range patterns {
		occurrences, err := c.occurrences(pattern, start, end)
		if err != nil {
			c.logger.Warn("Skipping unparseable recurring pattern",
				zap.String("pattern_id", pattern.ID.String()),
				zap.Error(err))
			continue
		}

		for _, day := range occurrences {
			if !pattern.InEffect(day) {
				continue
			}

			blockStart, blockEnd := c.coverageWindow(pattern.Coverage, day)
			if s, e, ok := intersect(blockStart, blockEnd, start, end); ok {
				blocks = append(blocks, Block{
					Reason: ReasonRecurringLeave,
					Detail: fmt.Sprintf("recurring %s %s off (%s)", pattern.Frequency, pattern.Weekday, pattern.Coverage),
					Start:  s,
					End:    e,
				})
			}
		}
	}

	return blocks, nil
}

// occurrences lists the pattern's occurrence dates touching the window
func (c *Checker) occurrences(pattern model.RecurringLeavePattern, start, end time.Time) ([]time.Time, error) {
	from := pattern.EffectiveFrom.In(c.loc)
	dtstart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, c.loc)

	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Interval:  pattern.Frequency.Interval(),
		Byweekday: []rrule.Weekday{toRRuleWeekday(pattern.Weekday)},
		Dtstart:   dtstart,
	})
	if err != nil {
		return nil, err
	}

	// Pad a day on each side so occurrences whose sub-window straddles the
	// query bounds are still considered
	return rule.Between(start.In(c.loc).AddDate(0, 0, -1), end.In(c.loc).AddDate(0, 0, 1), true), nil
}

// coverageWindow maps a pattern coverage type onto the blocked hours of a day
func (c *Checker) coverageWindow(coverage model.PatternCoverage, day time.Time) (time.Time, time.Time) {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, c.loc)
	switch coverage {
	case model.CoverageMorning:
		return time.Date(day.Year(), day.Month(), day.Day(), c.team.BusinessStartHour, 0, 0, 0, c.loc),
			time.Date(day.Year(), day.Month(), day.Day(), morningEndHour, 0, 0, 0, c.loc)
	case model.CoverageAfternoon:
		return time.Date(day.Year(), day.Month(), day.Day(), morningEndHour, 0, 0, 0, c.loc),
			time.Date(day.Year(), day.Month(), day.Day(), c.team.BusinessEndHour, 0, 0, 0, c.loc)
	default:
		return midnight, midnight.AddDate(0, 0, 1)
	}
}

// bookingBlocks flags overlap with any existing non-cancelled assignment
func (c *Checker) bookingBlocks(ctx context.Context, emp model.Employee, start, end time.Time) ([]Block, error) {
	existing, err := c.assignments.ListEmployeeAssignments(ctx, emp.ID, start, end)
	if err != nil {
		return nil, err
	}

	var blocks []Block
	for _, a := range existing {
		if !a.ActiveOn() || !a.OverlapsWindow(start, end) {
			continue
		}
		s, e, _ := intersect(a.Start, a.End, start, end)
		blocks = append(blocks, Block{
			Reason: ReasonExistingBooking,
			Detail: fmt.Sprintf("already assigned to %s", a.Category),
			Start:  s,
			End:    e,
		})
	}

	return blocks, nil
}

// daysBetween lists the local midnights of every day the window touches
func daysBetween(start, end time.Time, loc *time.Location) []time.Time {
	var days []time.Time
	local := start.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	for day.Before(end.In(loc)) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

// intersect clips [aStart, aEnd) to [bStart, bEnd)
func intersect(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time, bool) {
	s := aStart
	if bStart.After(s) {
		s = bStart
	}
	e := aEnd
	if bEnd.Before(e) {
		e = bEnd
	}
	if !e.After(s) {
		return time.Time{}, time.Time{}, false
	}
	return s, e, true
}

// toRRuleWeekday converts a time.Weekday to the rrule equivalent
func toRRuleWeekday(w time.Weekday) rrule.Weekday {
	switch w {
	case time.Monday:
		return rrule.MO
	case time.Tuesday:
		return rrule.TU
	case time.Wednesday:
		return rrule.WE
	case time.Thursday:
		return rrule.TH
	case time.Friday:
		return rrule.FR
	case time.Saturday:
		return rrule.SA
	default:
		return rrule.SU
	}
}
