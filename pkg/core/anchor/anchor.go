// Package anchor computes aligned, DST-safe planning period boundaries.
//
// All arithmetic is done on local wall-clock components in the team's
// timezone, never on fixed-offset durations, so a period that starts at
// 17:00 still starts at 17:00 on the far side of a DST transition.
package anchor

import (
	"fmt"
	"time"

	"github.com/roosterplan/rooster/pkg/core/model"
)

// Period is one complete planning period for a category
type Period struct {
	Category model.ShiftCategory
	Start    time.Time
	End      time.Time
}

// Contains reports whether the instant falls inside [Start, End)
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Hours returns the period's duration in hours
func (p Period) Hours() float64 {
	return p.End.Sub(p.Start).Hours()
}

// DayWindow is the coverage window of a single day within a business period
type DayWindow struct {
	Date  time.Time // midnight in the team's zone
	Start time.Time
	End   time.Time
}

// ConfigError reports an invalid team anchor configuration. It is fatal:
// orchestration aborts before any write when one is returned.
type ConfigError struct {
	Field  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid anchor configuration: %s: %s", e.Field, e.Detail)
}

// ValidateTeam checks the parts of a team's configuration the anchor
// calculator depends on
func ValidateTeam(team model.Team) error {
	if _, err := team.Location(); err != nil {
		return &ConfigError{Field: "timezone", Detail: fmt.Sprintf("unknown zone %q", team.Timezone)}
	}
	for field, hour := range map[string]int{
		"businessStartHour":   team.BusinessStartHour,
		"businessEndHour":     team.BusinessEndHour,
		"waakdienstStartHour": team.WaakdienstStartHour,
		"waakdienstEndHour":   team.WaakdienstEndHour,
	} {
		if hour < 0 || hour > 23 {
			return &ConfigError{Field: field, Detail: fmt.Sprintf("hour %d out of range", hour)}
		}
	}
	if team.BusinessStartHour >= team.BusinessEndHour {
		return &ConfigError{Field: "businessStartHour", Detail: "business day must start before it ends"}
	}
	if team.WaakdienstHandoverWeekday < time.Sunday || team.WaakdienstHandoverWeekday > time.Saturday {
		return &ConfigError{Field: "waakdienstHandoverWeekday", Detail: "not a weekday"}
	}
	return nil
}

// NextAnchor returns the next instant matching the weekday/hour pair in the
// given zone, at or after ref. With strictlyAfter set, an exact match on ref
// rolls forward a full week.
func NextAnchor(ref time.Time, loc *time.Location, weekday time.Weekday, hour int, strictlyAfter bool) time.Time {
	local := ref.In(loc)

	daysAhead := (int(weekday) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day()+daysAhead, hour, 0, 0, 0, loc)

	if candidate.Before(ref) || (strictlyAfter && candidate.Equal(ref)) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+daysAhead+7, hour, 0, 0, 0, loc)
	}

	return candidate
}

// PeriodsFor returns the complete periods of the given category inside
// [windowStart, windowEnd). Periods whose end would fall past the window
// are never returned partially.
func PeriodsFor(category model.ShiftCategory, windowStart, windowEnd time.Time, team model.Team) ([]Period, error) {
	if err := ValidateTeam(team); err != nil {
		return nil, err
	}
	if category.IsBusinessHours() {
		return businessWeeks(category, windowStart, windowEnd, team)
	}
	return waakdienstWeeks(windowStart, windowEnd, team)
}

// businessWeeks returns Mon..Fri business periods, start hour on Monday
// through end hour on Friday
func businessWeeks(category model.ShiftCategory, windowStart, windowEnd time.Time, team model.Team) ([]Period, error) {
	loc, err := team.Location()
	if err != nil {
		return nil, err
	}

	start := NextAnchor(windowStart, loc, time.Monday, team.BusinessStartHour, false)

	var periods []Period
	for {
		local := start.In(loc)
		end := time.Date(local.Year(), local.Month(), local.Day()+4, team.BusinessEndHour, 0, 0, 0, loc)
		if end.After(windowEnd) {
			break
		}
		periods = append(periods, Period{Category: category, Start: start, End: end})
		start = time.Date(local.Year(), local.Month(), local.Day()+7, team.BusinessStartHour, 0, 0, 0, loc)
	}

	return periods, nil
}

// waakdienstWeeks returns handover-to-handover periods, e.g. the default
// Wednesday 17:00 through the next Wednesday 08:00
func waakdienstWeeks(windowStart, windowEnd time.Time, team model.Team) ([]Period, error) {
	loc, err := team.Location()
	if err != nil {
		return nil, err
	}

	start := NextAnchor(windowStart, loc, team.WaakdienstHandoverWeekday, team.WaakdienstStartHour, false)

	var periods []Period
	for {
		local := start.In(loc)
		end := time.Date(local.Year(), local.Month(), local.Day()+7, team.WaakdienstEndHour, 0, 0, 0, loc)
		if end.After(windowEnd) {
			break
		}
		periods = append(periods, Period{Category: model.CategoryWaakdienst, Start: start, End: end})
		start = time.Date(local.Year(), local.Month(), local.Day()+7, team.WaakdienstStartHour, 0, 0, 0, loc)
	}

	return periods, nil
}

// BusinessDays expands a business period into its per-day coverage windows.
// The business window of each weekday runs start hour to end hour locally.
func BusinessDays(p Period, team model.Team) ([]DayWindow, error) {
	loc, err := team.Location()
	if err != nil {
		return nil, err
	}

	var days []DayWindow
	local := p.Start.In(loc)
	for d := 0; ; d++ {
		date := time.Date(local.Year(), local.Month(), local.Day()+d, 0, 0, 0, 0, loc)
		if !date.Before(p.End.In(loc)) {
			break
		}
		if date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			continue
		}
		days = append(days, DayWindow{
			Date:  date,
			Start: time.Date(date.Year(), date.Month(), date.Day(), team.BusinessStartHour, 0, 0, 0, loc),
			End:   time.Date(date.Year(), date.Month(), date.Day(), team.BusinessEndHour, 0, 0, 0, loc),
		})
	}

	return days, nil
}
