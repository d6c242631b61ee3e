// Package holidays computes the public-holiday calendar used for fairness
// weighting and for teams that skip incidents coverage on holidays.
package holidays

import (
	"sync"
	"time"
)

// Calendar answers holiday lookups for one timezone. Lookups are cached
// per year, so a calendar can be shared across a whole orchestration run.
type Calendar struct {
	loc *time.Location

	mu    sync.Mutex
	years map[int]map[string]string // year -> "01-02" -> holiday name
	extra map[string]string         // "2026-04-27" -> name, from config
}

// NewCalendar creates a calendar for the given timezone
func NewCalendar(loc *time.Location) *Calendar {
	return &Calendar{
		loc:   loc,
		years: make(map[int]map[string]string),
		extra: make(map[string]string),
	}
}

// AddExtraHoliday registers a company-specific closure day (date-only)
func (c *Calendar) AddExtraHoliday(date time.Time, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[date.In(c.loc).Format("2006-01-02")] = name
}

// ExtraDay is a company closure day sourced from configuration
type ExtraDay struct {
	Date time.Time
	Name string
}

// AddExtraDays registers a batch of company closure days
func (c *Calendar) AddExtraDays(days []ExtraDay) {
	for _, d := range days {
		c.AddExtraHoliday(d.Date, d.Name)
	}
}

// IsHoliday reports whether the instant falls on a public holiday in the
// calendar's timezone, returning the holiday name when it does
func (c *Calendar) IsHoliday(t time.Time) (string, bool) {
	local := t.In(c.loc)

	c.mu.Lock()
	defer c.mu.Unlock()

	if name, ok := c.extra[local.Format("2006-01-02")]; ok {
		return name, true
	}

	year := local.Year()
	days, ok := c.years[year]
	if !ok {
		days = dutchHolidays(year)
		c.years[year] = days
	}

	name, ok := days[local.Format("01-02")]
	return name, ok
}

// dutchHolidays returns the national holidays for one year keyed by "MM-DD"
func dutchHolidays(year int) map[string]string {
	easter := easterSunday(year)

	days := map[string]string{
		"01-01": "Nieuwjaarsdag",
		"05-05": "Bevrijdingsdag",
		"12-25": "Eerste Kerstdag",
		"12-26": "Tweede Kerstdag",
	}

	// Koningsdag moves to the 26th when the 27th is a Sunday
	kingsDay := time.Date(year, time.April, 27, 0, 0, 0, 0, time.UTC)
	if kingsDay.Weekday() == time.Sunday {
		kingsDay = kingsDay.AddDate(0, 0, -1)
	}
	days[kingsDay.Format("01-02")] = "Koningsdag"

	days[easter.AddDate(0, 0, -2).Format("01-02")] = "Goede Vrijdag"
	days[easter.Format("01-02")] = "Eerste Paasdag"
	days[easter.AddDate(0, 0, 1).Format("01-02")] = "Tweede Paasdag"
	days[easter.AddDate(0, 0, 39).Format("01-02")] = "Hemelvaartsdag"
	days[easter.AddDate(0, 0, 49).Format("01-02")] = "Eerste Pinksterdag"
	days[easter.AddDate(0, 0, 50).Format("01-02")] = "Tweede Pinksterdag"

	return days
}

// easterSunday computes Easter for a year using the anonymous Gregorian algorithm
func easterSunday(year int) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1

	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
