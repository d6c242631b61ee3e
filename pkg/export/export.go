// Package export renders persisted assignments as an iCalendar feed so
// schedules can be subscribed to from any calendar client.
package export

import (
	"context"
	"fmt"
	"sort"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/db"
)

const productID = "-//roosterplan//rooster//EN"

// Options selects which assignments end up in the feed
type Options struct {
	TeamID uuid.UUID
	// EmployeeID narrows the feed to one employee when set
	EmployeeID *uuid.UUID
	From       time.Time
	To         time.Time
}

// Exporter turns stored assignments into ICS text
type Exporter struct {
	teams       db.TeamStore
	employees   db.EmployeeStore
	assignments db.AssignmentStore
	logger      *zap.Logger
}

// NewExporter creates an exporter over the given stores
func NewExporter(teams db.TeamStore, employees db.EmployeeStore, assignments db.AssignmentStore, logger *zap.Logger) *Exporter {
	return &Exporter{
		teams:       teams,
		employees:   employees,
		assignments: assignments,
		logger:      logger,
	}
}

// Calendar renders the selected assignments as one VEVENT each,
// category-tagged, sorted by start time so feeds are stable
func (e *Exporter) Calendar(ctx context.Context, opts Options) (string, error) {
	team, err := e.teams.GetTeam(ctx, opts.TeamID)
	if err != nil {
		return "", fmt.Errorf("failed to load team: %w", err)
	}
	members, err := e.employees.ListTeamMembers(ctx, opts.TeamID)
	if err != nil {
		return "", fmt.Errorf("failed to list team members: %w", err)
	}
	names := make(map[uuid.UUID]string, len(members))
	for _, emp := range members {
		names[emp.ID] = emp.FullName()
	}

	assignments, err := e.assignments.ListTeamAssignments(ctx, opts.TeamID, opts.From, opts.To)
	if err != nil {
		return "", fmt.Errorf("failed to list assignments: %w", err)
	}

	var selected []model.Assignment
	for _, a := range assignments {
		if opts.EmployeeID != nil && a.EmployeeID != *opts.EmployeeID {
			continue
		}
		if a.Status == model.AssignmentCancelled {
			continue
		}
		selected = append(selected, a)
	}
	sort.Slice(selected, func(i, j int) bool {
		if selected[i].Start.Equal(selected[j].Start) {
			return selected[i].ID.String() < selected[j].ID.String()
		}
		return selected[i].Start.Before(selected[j].Start)
	})

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetName(fmt.Sprintf("%s on-call schedule", team.Name))

	now := time.Now().UTC()
	for _, a := range selected {
		event := cal.AddEvent(fmt.Sprintf("%s@roosterplan", a.ID))
		event.SetCreatedTime(now)
		event.SetDtStampTime(now)
		event.SetStartAt(a.Start.UTC())
		event.SetEndAt(a.End.UTC())
		event.SetSummary(eventSummary(a, names))
		event.SetDescription(eventDescription(a, names))
		event.SetProperty(ics.ComponentPropertyCategories, string(a.Category))
	}

	e.logger.Debug("Rendered calendar feed",
		zap.String("team", team.Name),
		zap.Int("events", len(selected)))

	return cal.Serialize(), nil
}

func eventSummary(a model.Assignment, names map[uuid.UUID]string) string {
	name, ok := names[a.EmployeeID]
	if !ok {
		name = a.EmployeeID.String()
	}
	return fmt.Sprintf("%s: %s", categoryLabel(a.Category), name)
}

func eventDescription(a model.Assignment, names map[uuid.UUID]string) string {
	desc := a.Reason
	if a.Split != nil {
		partner, ok := names[a.Split.PartnerID]
		if !ok {
			partner = a.Split.PartnerID.String()
		}
		if desc != "" {
			desc += "\n"
		}
		desc += fmt.Sprintf("Shared period with %s", partner)
	}
	return desc
}

func categoryLabel(c model.ShiftCategory) string {
	switch c {
	case model.CategoryIncidents:
		return "Incidents"
	case model.CategoryIncidentsStandby:
		return "Incidents standby"
	case model.CategoryWaakdienst:
		return "Waakdienst"
	}
	return string(c)
}
