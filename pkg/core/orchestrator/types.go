package orchestrator

import (
	"fmt"
	"time"

	"github.com/roosterplan/rooster/pkg/core/anchor"
	"github.com/roosterplan/rooster/pkg/core/model"
)

// CoverageState describes how much of a planning period ended up assigned
type CoverageState string

const (
	FullyCovered     CoverageState = "fully_covered"
	PartiallyCovered CoverageState = "partially_covered"
	Uncovered        CoverageState = "uncovered"
)

// PeriodResult is the outcome for one planning period of one category
type PeriodResult struct {
	Period      anchor.Period
	Coverage    CoverageState
	Assignments []model.Assignment
	Warnings    []string
}

// NoEligibleEmployeeError marks a period with an empty candidate pool.
// It is a warning, not a failure: the run continues and the period stays
// unassigned rather than being fabricated.
type NoEligibleEmployeeError struct {
	Category    model.ShiftCategory
	PeriodStart time.Time
}

func (e *NoEligibleEmployeeError) Error() string {
	return fmt.Sprintf("no eligible employee for %s period starting %s",
		e.Category, e.PeriodStart.Format("2006-01-02 15:04"))
}

// Outcome is the full result of one orchestration run over a window
type Outcome struct {
	Team        model.Team
	WindowStart time.Time
	WindowEnd   time.Time
	// Results holds per-period outcomes keyed by category
	Results map[model.ShiftCategory][]PeriodResult
	// Assignments is every candidate generated, in generation order
	Assignments []model.Assignment
	Warnings    []string
}

// CountByCategory tallies generated assignments per category
func (o *Outcome) CountByCategory() map[model.ShiftCategory]int {
	counts := make(map[model.ShiftCategory]int)
	for _, a := range o.Assignments {
		counts[a.Category]++
	}
	return counts
}
