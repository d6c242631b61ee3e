// Package horizon keeps every seeded team's schedule topped up to a
// configured look-ahead. Extension is idempotent: periods already covered
// by persisted assignments are reported as duplicates, never re-created.
package horizon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/core/orchestrator"
	"github.com/roosterplan/rooster/pkg/db"
)

const (
	// DefaultWeeks is how far ahead extension generates coverage
	DefaultWeeks = 26
	// DefaultSeedWeeks is the minimum continuous coverage span a category
	// must already have before it is auto-extended. Teams that were never
	// manually seeded to this depth are skipped, not silently rolled.
	DefaultSeedWeeks = 26

	// coverageGapTolerance is the widest hole allowed inside a span that
	// still counts as continuous. Weekends and skipped holiday weeks leave
	// gaps well under this.
	coverageGapTolerance = 14 * 24 * time.Hour
)

// Options controls one extension pass
type Options struct {
	Weeks      int
	SeedWeeks  int
	TeamIDs    []uuid.UUID // empty means every team
	Categories []model.ShiftCategory
	DryRun     bool
}

func (o Options) withDefaults() Options {
	if o.Weeks <= 0 {
		o.Weeks = DefaultWeeks
	}
	if o.SeedWeeks <= 0 {
		o.SeedWeeks = DefaultSeedWeeks
	}
	return o
}

// CategoryReport is the per-category outcome of extending one team
type CategoryReport struct {
	Category   model.ShiftCategory
	Eligible   bool
	Reason     string
	Created    int
	Duplicates int
	Frontier   time.Time
}

// TeamReport aggregates the category outcomes for one team
type TeamReport struct {
	Team       model.Team
	Categories []CategoryReport
	Error      string
}

// Created sums created assignments across categories
func (r TeamReport) Created() int {
	total := 0
	for _, c := range r.Categories {
		total += c.Created
	}
	return total
}

// Report is the outcome of one extension pass across teams
type Report struct {
	GeneratedAt time.Time
	DryRun      bool
	Teams       []TeamReport
}

// Extender runs idempotent horizon extension for eligible teams
type Extender struct {
	store        db.Store
	orchestrator *orchestrator.Orchestrator
	logger       *zap.Logger

	// flight dedupes concurrent extension of the same team; locks
	// serialize same-team passes so duplicate detection cannot race
	flight singleflight.Group
	mu     sync.Mutex
	locks  map[uuid.UUID]*sync.Mutex
}

// NewExtender creates an extender sharing the orchestrator's store
func NewExtender(store db.Store, orch *orchestrator.Orchestrator, logger *zap.Logger) *Extender {
	return &Extender{
		store:        store,
		orchestrator: orch,
		logger:       logger,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
}

// Extend tops up every selected team out to now plus the look-ahead.
// Teams are independent and extended in parallel; a failure for one team
// is reported on its entry without aborting the others.
func (e *Extender) Extend(ctx context.Context, now time.Time, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	teams, err := e.selectTeams(ctx, opts)
	if err != nil {
		return nil, err
	}

	report := &Report{
		GeneratedAt: time.Now().UTC(),
		DryRun:      opts.DryRun,
		Teams:       make([]TeamReport, len(teams)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, team := range teams {
		i, team := i, team
		g.Go(func() error {
			teamReport := e.extendTeam(gctx, now, team, opts)
			report.Teams[i] = teamReport
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Info("Horizon extension pass finished",
		zap.Int("teams", len(teams)),
		zap.Bool("dry_run", opts.DryRun))

	return report, nil
}

func (e *Extender) selectTeams(ctx context.Context, opts Options) ([]model.Team, error) {
	teams, err := e.store.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	if len(opts.TeamIDs) == 0 {
		return teams, nil
	}

	wanted := make(map[uuid.UUID]bool, len(opts.TeamIDs))
	for _, id := range opts.TeamIDs {
		wanted[id] = true
	}
	var selected []model.Team
	for _, team := range teams {
		if wanted[team.ID] {
			selected = append(selected, team)
		}
	}
	return selected, nil
}

// extendTeam serializes per team. The singleflight key covers every
// option that shapes the outcome so passes with different depths,
// categories or dry-run flags never share a result.
func (e *Extender) extendTeam(ctx context.Context, now time.Time, team model.Team, opts Options) TeamReport {
	result, err, _ := e.flight.Do(flightKey(team.ID, opts), func() (interface{}, error) {
		lock := e.teamLock(team.ID)
		lock.Lock()
		defer lock.Unlock()
		return e.extendTeamLocked(ctx, now, team, opts), nil
	})
	if err != nil {
		return TeamReport{Team: team, Error: err.Error()}
	}
	return result.(TeamReport)
}

func flightKey(teamID uuid.UUID, opts Options) string {
	cats := make([]string, len(opts.Categories))
	for i, c := range opts.Categories {
		cats[i] = string(c)
	}
	sort.Strings(cats)
	return fmt.Sprintf("%s|w=%d|s=%d|cats=%s|dry=%t",
		teamID, opts.Weeks, opts.SeedWeeks, strings.Join(cats, ","), opts.DryRun)
}

func (e *Extender) teamLock(teamID uuid.UUID) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[teamID]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[teamID] = lock
	}
	return lock
}

func (e *Extender) extendTeamLocked(ctx context.Context, now time.Time, team model.Team, opts Options) TeamReport {
	teamReport := TeamReport{Team: team}
	horizonEnd := now.AddDate(0, 0, 7*opts.Weeks)

	// Persisted coverage is re-read under the team lock so duplicate
	// detection sees the latest committed state
	lookbackStart := now.AddDate(0, 0, -7*opts.SeedWeeks)
	existing, err := e.store.ListTeamAssignments(ctx, team.ID, lookbackStart, horizonEnd)
	if err != nil {
		teamReport.Error = fmt.Sprintf("failed to load existing coverage: %v", err)
		return teamReport
	}

	var toCreate []model.Assignment
	for _, category := range e.categories(team, opts) {
		catReport := CategoryReport{Category: category}

		eligible, reason, frontier := seedEligibility(existing, category, now, opts.SeedWeeks)
		catReport.Eligible = eligible
		catReport.Reason = reason
		catReport.Frontier = frontier
		if !eligible {
			e.logger.Debug("Skipping category for horizon extension",
				zap.String("team", team.Name),
				zap.String("category", string(category)),
				zap.String("reason", reason))
			teamReport.Categories = append(teamReport.Categories, catReport)
			continue
		}

		if !frontier.Before(horizonEnd) {
			teamReport.Categories = append(teamReport.Categories, catReport)
			continue
		}

		// Generation starts at the coverage frontier, not at now: covered
		// periods would pick someone other than the persisted assignee and
		// charge that phantom load against the tail's fairness
		outcome, err := e.orchestrator.Run(ctx, team, frontier, horizonEnd, []model.ShiftCategory{category})
		if err != nil {
			teamReport.Error = fmt.Sprintf("failed to extend %s: %v", category, err)
			teamReport.Categories = append(teamReport.Categories, catReport)
			return teamReport
		}

		for _, candidate := range outcome.Assignments {
			if coveredByExisting(existing, candidate) {
				catReport.Duplicates++
				continue
			}
			catReport.Created++
			toCreate = append(toCreate, candidate)
		}
		teamReport.Categories = append(teamReport.Categories, catReport)
	}

	if !opts.DryRun && len(toCreate) > 0 {
		if err := e.store.InsertAssignments(ctx, toCreate); err != nil {
			teamReport.Error = fmt.Sprintf("failed to persist extension: %v", err)
			return teamReport
		}
	}

	e.logger.Debug("Extended team horizon",
		zap.String("team", team.Name),
		zap.Int("created", teamReport.Created()),
		zap.Bool("dry_run", opts.DryRun))

	return teamReport
}

func (e *Extender) categories(team model.Team, opts Options) []model.ShiftCategory {
	wanted := make(map[model.ShiftCategory]bool)
	for _, c := range opts.Categories {
		wanted[c] = true
	}
	var out []model.ShiftCategory
	for _, c := range model.AllCategories() {
		if len(opts.Categories) > 0 && !wanted[c] {
			continue
		}
		if c == model.CategoryIncidentsStandby && !team.StandbyEnabled {
			continue
		}
		out = append(out, c)
	}
	return out
}

// seedEligibility decides whether a category may be auto-extended: its
// persisted coverage must form a continuous span of at least seedWeeks
// ending at a frontier that has not fallen behind now. A freshly seeded
// team qualifies through its forward coverage; a never-seeded team never
// does.
func seedEligibility(existing []model.Assignment, category model.ShiftCategory, now time.Time, seedWeeks int) (bool, string, time.Time) {
	var spans []model.Assignment
	for _, a := range existing {
		if a.Category == category && a.ActiveOn() {
			spans = append(spans, a)
		}
	}
	if len(spans) == 0 {
		return false, "no existing coverage", time.Time{}
	}

	frontier := spans[0].End
	for _, a := range spans[1:] {
		if a.End.After(frontier) {
			frontier = a.End
		}
	}
	if frontier.Before(now) {
		return false, fmt.Sprintf("coverage frontier %s is in the past", frontier.Format("2006-01-02")), frontier
	}

	// Walk backwards from the frontier over the continuous chain
	earliest := continuousSpanStart(spans, frontier)
	span := frontier.Sub(earliest)
	required := time.Duration(seedWeeks) * 7 * 24 * time.Hour
	if span < required {
		return false, fmt.Sprintf("continuous coverage spans %.0f days, need %d weeks",
			span.Hours()/24, seedWeeks), frontier
	}

	return true, "", frontier
}

// continuousSpanStart finds the start of the unbroken coverage chain
// ending at the frontier, tolerating gaps up to coverageGapTolerance
func continuousSpanStart(spans []model.Assignment, frontier time.Time) time.Time {
	earliest := frontier
	for changed := true; changed; {
		changed = false
		for _, a := range spans {
			if a.Start.Before(earliest) && earliest.Sub(a.End) <= coverageGapTolerance {
				earliest = a.Start
				changed = true
			}
		}
	}
	return earliest
}

// coveredByExisting reports whether a persisted assignment of the same
// category already overlaps the candidate's window
func coveredByExisting(existing []model.Assignment, candidate model.Assignment) bool {
	for _, a := range existing {
		if a.Category == candidate.Category && a.ActiveOn() && a.OverlapsWindow(candidate.Start, candidate.End) {
			return true
		}
	}
	return false
}
