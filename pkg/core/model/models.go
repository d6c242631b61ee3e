package model

import (
	"time"

	"github.com/google/uuid"
)

// ShiftCategory identifies one of the rotation types a team plans for
type ShiftCategory string

const (
	CategoryIncidents        ShiftCategory = "incidents"
	CategoryIncidentsStandby ShiftCategory = "incidents_standby"
	CategoryWaakdienst       ShiftCategory = "waakdienst"
)

// AllCategories returns every known shift category in planning order
func AllCategories() []ShiftCategory {
	return []ShiftCategory{CategoryIncidents, CategoryIncidentsStandby, CategoryWaakdienst}
}

func (c ShiftCategory) IsValid() bool {
	switch c {
	case CategoryIncidents, CategoryIncidentsStandby, CategoryWaakdienst:
		return true
	}
	return false
}

// IsBusinessHours reports whether the category covers the Mon-Fri business window
func (c ShiftCategory) IsBusinessHours() bool {
	return c == CategoryIncidents || c == CategoryIncidentsStandby
}

// Employee represents a schedulable team member
type Employee struct {
	ID                     uuid.UUID
	FirstName              string
	LastName               string
	Email                  string
	Active                 bool
	AvailableForIncidents  bool
	AvailableForWaakdienst bool
	Skills                 []string
	FTE                    float64 // fraction of a full-time contract, 0 < FTE <= 1
	HiredAt                time.Time
	TerminatedAt           *time.Time
}

func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}

// HasSkill reports whether the employee carries the named skill
func (e Employee) HasSkill(skill string) bool {
	for _, s := range e.Skills {
		if s == skill {
			return true
		}
	}
	return false
}

// AvailableFor reports the employee's availability flag for a category.
// Standby coverage shares the incidents flag since it protects the same window.
func (e Employee) AvailableFor(category ShiftCategory) bool {
	switch category {
	case CategoryIncidents, CategoryIncidentsStandby:
		return e.AvailableForIncidents
	case CategoryWaakdienst:
		return e.AvailableForWaakdienst
	}
	return false
}

// EmployedDuring reports whether the employee's contract overlaps the window
func (e Employee) EmployedDuring(start, end time.Time) bool {
	if e.HiredAt.After(end) || e.HiredAt.Equal(end) {
		return false
	}
	if e.TerminatedAt != nil && !e.TerminatedAt.After(start) {
		return false
	}
	return true
}

// Team holds the per-team planning configuration
type Team struct {
	ID       uuid.UUID
	Name     string
	Timezone string // IANA zone name, e.g. "Europe/Amsterdam"

	// Business-hours window for incidents coverage
	BusinessStartHour int // default 8
	BusinessEndHour   int // default 17

	// Waakdienst handover anchor
	WaakdienstHandoverWeekday time.Weekday // default Wednesday
	WaakdienstStartHour       int          // default 17
	WaakdienstEndHour         int          // default 8

	IncidentsSkipHolidays bool
	StandbyEnabled        bool
	FairnessWindowWeeks   int // rolling window used for fairness accounting
	JoinerGraceDays       int // new hires are not scheduled within this many days of starting
}

// Location resolves the team's IANA timezone
func (t Team) Location() (*time.Location, error) {
	return time.LoadLocation(t.Timezone)
}

// LeaveStatus is the approval state of a leave request
type LeaveStatus string

const (
	LeavePending   LeaveStatus = "pending"
	LeaveApproved  LeaveStatus = "approved"
	LeaveRejected  LeaveStatus = "rejected"
	LeaveCancelled LeaveStatus = "cancelled"
)

// LeaveConflictPolicy controls how an approved leave blocks scheduling
type LeaveConflictPolicy string

const (
	// LeaveFullUnavailable blocks the employee for the whole of each leave day
	LeaveFullUnavailable LeaveConflictPolicy = "full_unavailable"
	// LeaveDaytimeOnly blocks only the team's business-hours sub-range
	LeaveDaytimeOnly LeaveConflictPolicy = "daytime_only"
	// LeaveNoConflict never blocks scheduling (e.g. working from elsewhere)
	LeaveNoConflict LeaveConflictPolicy = "no_conflict"
)

// LeaveRequest is an employee leave over an inclusive date range.
// StartDate and EndDate are date-only values at midnight in the team's zone.
type LeaveRequest struct {
	ID         uuid.UUID
	EmployeeID uuid.UUID
	StartDate  time.Time
	EndDate    time.Time
	Status     LeaveStatus
	Policy     LeaveConflictPolicy
}

func (l LeaveRequest) Approved() bool {
	return l.Status == LeaveApproved
}

// CoversDate reports whether the given date falls inside the leave range
func (l LeaveRequest) CoversDate(date time.Time) bool {
	day := date.Truncate(24 * time.Hour)
	return !day.Before(l.StartDate.Truncate(24*time.Hour)) && !day.After(l.EndDate.Truncate(24*time.Hour))
}

// DurationDays returns the inclusive length of the leave in days
func (l LeaveRequest) DurationDays() int {
	return int(l.EndDate.Sub(l.StartDate).Hours()/24) + 1
}

// PatternFrequency is how often a recurring leave pattern repeats
type PatternFrequency string

const (
	FrequencyWeekly   PatternFrequency = "weekly"
	FrequencyBiweekly PatternFrequency = "biweekly"
)

// Interval returns the week interval matching the frequency
func (f PatternFrequency) Interval() int {
	if f == FrequencyBiweekly {
		return 2
	}
	return 1
}

// PatternCoverage is which part of the day a recurring pattern blocks
type PatternCoverage string

const (
	CoverageFullDay   PatternCoverage = "full_day"
	CoverageMorning   PatternCoverage = "morning"
	CoverageAfternoon PatternCoverage = "afternoon"
)

// RecurringLeavePattern is a standing partial-availability rule, e.g.
// "every Wednesday off" or "biweekly Friday mornings off"
type RecurringLeavePattern struct {
	ID             uuid.UUID
	EmployeeID     uuid.UUID
	Weekday        time.Weekday
	Frequency      PatternFrequency
	Coverage       PatternCoverage
	EffectiveFrom  time.Time
	EffectiveUntil *time.Time // nil means open-ended
	Active         bool
}

// InEffect reports whether the pattern applies on the given date
func (p RecurringLeavePattern) InEffect(date time.Time) bool {
	if !p.Active {
		return false
	}
	if date.Before(p.EffectiveFrom) {
		return false
	}
	if p.EffectiveUntil != nil && date.After(*p.EffectiveUntil) {
		return false
	}
	return true
}

// AssignmentStatus is the lifecycle state of an assignment
type AssignmentStatus string

const (
	AssignmentScheduled AssignmentStatus = "scheduled"
	AssignmentConfirmed AssignmentStatus = "confirmed"
	AssignmentCancelled AssignmentStatus = "cancelled"
)

// SplitCoverage records that an assignment is one part of a period whose
// coverage was divided between two employees at day granularity
type SplitCoverage struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	PartnerID   uuid.UUID // the employee covering the other part of the period
}

// Assignment is one employee covering one category for a tz-aware window
type Assignment struct {
	ID           uuid.UUID
	TeamID       uuid.UUID
	EmployeeID   uuid.UUID
	Category     ShiftCategory
	Start        time.Time
	End          time.Time
	Status       AssignmentStatus
	AutoAssigned bool
	// ManualOverride marks assignments edited by a planner after generation;
	// they are down-weighted in fairness accounting
	ManualOverride bool
	Reason         string
	Split          *SplitCoverage
}

// Hours returns the assignment's wall-clock duration in hours
func (a Assignment) Hours() float64 {
	return a.End.Sub(a.Start).Hours()
}

// Overlaps reports whether two assignment windows intersect
func (a Assignment) Overlaps(other Assignment) bool {
	return a.Start.Before(other.End) && other.Start.Before(a.End)
}

// OverlapsWindow reports whether the assignment intersects [start, end)
func (a Assignment) OverlapsWindow(start, end time.Time) bool {
	return a.Start.Before(end) && start.Before(a.End)
}

// ActiveOn reports whether the assignment counts against availability
func (a Assignment) ActiveOn() bool {
	return a.Status != AssignmentCancelled
}
