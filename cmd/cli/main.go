package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roosterplan/rooster/internal/config"
	"github.com/roosterplan/rooster/pkg/core/constraint"
	"github.com/roosterplan/rooster/pkg/core/horizon"
	"github.com/roosterplan/rooster/pkg/core/model"
	"github.com/roosterplan/rooster/pkg/core/services"
	"github.com/roosterplan/rooster/pkg/dispatch"
	"github.com/roosterplan/rooster/pkg/export"
	"github.com/roosterplan/rooster/pkg/postgres"
	"github.com/roosterplan/rooster/pkg/utils/logging"
)

// App holds the application dependencies
type App struct {
	cfg        *config.Config
	database   *postgres.DB
	scheduler  *services.Scheduler
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger
	ctx        context.Context
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "rooster",
		Short: "Rooster CLI - Generate and manage on-call schedules",
		Long:  `A CLI tool for generating incidents, standby and waakdienst schedules, resolving conflicts, and maintaining the rolling planning horizon.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app != nil {
				if app.dispatcher != nil {
					app.dispatcher.Wait()
				}
				if app.database != nil {
					app.database.Close()
				}
				if app.logger != nil {
					app.logger.Sync()
				}
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to rooster.yaml (defaults to cwd, then home directory)")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(previewCmd())
	rootCmd.AddCommand(applyCmd())
	rootCmd.AddCommand(extendCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(resetHistoryCmd())
	rootCmd.AddCommand(listTeamsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, database, and the scheduling services
func initApp() error {
	var err error
	app = &App{
		ctx: context.Background(),
	}

	// Load configuration first so the logger knows the environment
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.cfg = cfg

	env := cfg.Environment
	if env == "" {
		env = "dev"
	}
	app.logger, err = logging.InitLogger(env)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.logger.Info("Starting application", zap.String("environment", env))
	app.logger.Debug("Configuration loaded successfully")

	app.logger.Info("Connecting to database")
	app.database, err = postgres.NewDB(app.ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	app.logger.Debug("Database connection established")

	app.scheduler = services.NewScheduler(app.database, cfg.Weights(), constraint.DefaultSkills(), app.logger)
	app.dispatcher = dispatch.NewDispatcher(app.logger)

	// Company closures become extra holiday days for every run. The
	// planning anchors are Amsterdam-based, so expansion uses that zone.
	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}
	now := time.Now()
	closureDays, err := app.cfg.HolidayCalendarDays(loc, now.AddDate(-1, 0, 0), now.AddDate(2, 0, 0))
	if err != nil {
		return fmt.Errorf("failed to expand company closures: %w", err)
	}
	app.scheduler.SetExtraHolidays(closureDays)
	app.logger.Debug("Holiday calendar prepared", zap.Int("closure_days", len(closureDays)))

	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// Command definitions

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.database.RunMigrations(app.ctx); err != nil {
				return err
			}
			fmt.Println("\n✓ Database schema is up to date")
			return nil
		},
	}
}

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <team_id> <start> <end>",
		Short: "Generate a schedule without persisting any assignment",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := scheduleRequest(cmd, args)
			if err != nil {
				return err
			}

			result, err := app.scheduler.PreviewSchedule(app.ctx, req)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Preview complete (run %s)\n\n", result.RunID)
			printAssignments(result.Team, result.Assignments)
			printWarnings(result.Warnings)

			if len(result.Resolutions) > 0 {
				fmt.Printf("Conflict resolutions:\n")
				for _, r := range result.Resolutions {
					fmt.Printf("  %s  %s %s → %s\n",
						r.Original.Start.Format("2006-01-02"),
						r.Original.Category, r.Original.EmployeeID, r.Outcome)
				}
				fmt.Println()
			}

			fmt.Printf("Fairness scores:\n")
			ids := make([]uuid.UUID, 0, len(result.FairnessScores))
			for id := range result.FairnessScores {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
			for _, id := range ids {
				fmt.Printf("  %s  %5.1f\n", id, result.FairnessScores[id])
			}
			fmt.Println()

			return nil
		},
	}
	addCategoriesFlag(cmd)
	return cmd
}

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <team_id> <start> <end>",
		Short: "Generate a schedule and persist it",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := scheduleRequest(cmd, args)
			if err != nil {
				return err
			}

			result, err := app.scheduler.ApplySchedule(app.ctx, req)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Schedule applied (run %s)\n\n", result.RunID)
			fmt.Printf("Created %d assignments:\n", result.Created)
			for _, category := range model.AllCategories() {
				if n, ok := result.PerCategory[category]; ok {
					fmt.Printf("  %-18s %d\n", category, n)
				}
			}
			fmt.Println()

			s := result.Reassignments
			if s.Reassigned+s.Split+s.ManualInterventions > 0 {
				fmt.Printf("Reassignments: %d next-best, %d split, %d manual\n\n",
					s.Reassigned, s.Split, s.ManualInterventions)
			}
			printWarnings(result.Warnings)

			return nil
		},
	}
	addCategoriesFlag(cmd)
	return cmd
}

func extendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extend",
		Short: "Extend the rolling horizon for seeded teams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			weeks, _ := cmd.Flags().GetInt("weeks")
			seedWeeks, _ := cmd.Flags().GetInt("seed-weeks")
			teamArgs, _ := cmd.Flags().GetStringSlice("teams")
			dryRun, _ := cmd.Flags().GetBool("dry-run")
			background, _ := cmd.Flags().GetBool("background")

			opts := horizon.Options{
				Weeks:     weeks,
				SeedWeeks: seedWeeks,
				DryRun:    dryRun,
			}
			if opts.Weeks <= 0 {
				opts.Weeks = app.cfg.Horizon.Weeks
			}
			if opts.SeedWeeks <= 0 {
				opts.SeedWeeks = app.cfg.Horizon.SeedWeeks
			}
			for _, arg := range teamArgs {
				id, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid team id %q: %w", arg, err)
				}
				opts.TeamIDs = append(opts.TeamIDs, id)
			}

			if background {
				jobID := app.dispatcher.Dispatch("extend horizon", func(ctx context.Context) (interface{}, error) {
					return app.scheduler.ExtendRollingHorizon(ctx, time.Now(), opts)
				})
				fmt.Printf("\nExtension dispatched as job %s\n", jobID)

				app.dispatcher.Wait()
				job, _ := app.dispatcher.Job(jobID)
				if job.Status == dispatch.StatusFailed {
					return fmt.Errorf("extension job failed: %s", job.Error)
				}
				printExtensionReport(job.Result.(*horizon.Report))
				return nil
			}

			report, err := app.scheduler.ExtendRollingHorizon(app.ctx, time.Now(), opts)
			if err != nil {
				return err
			}
			printExtensionReport(report)
			return nil
		},
	}

	cmd.Flags().Int("weeks", 0, "Weeks of coverage to maintain ahead (default from config)")
	cmd.Flags().Int("seed-weeks", 0, "Minimum seeded coverage a team needs to be eligible (default from config)")
	cmd.Flags().StringSlice("teams", nil, "Restrict to these team IDs")
	cmd.Flags().Bool("dry-run", false, "Report what would be created without writing")
	cmd.Flags().Bool("background", false, "Run the extension as a background job")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <team_id> <from> <to>",
		Short: "Export a team's schedule as an ICS calendar",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid team id %q: %w", args[0], err)
			}
			team, err := app.database.GetTeam(app.ctx, teamID)
			if err != nil {
				return err
			}
			loc, err := team.Location()
			if err != nil {
				return fmt.Errorf("failed to resolve team timezone: %w", err)
			}
			from, to, err := parseWindow(args[1], args[2], loc)
			if err != nil {
				return err
			}

			opts := export.Options{TeamID: teamID, From: from, To: to}
			if arg, _ := cmd.Flags().GetString("employee"); arg != "" {
				employeeID, err := uuid.Parse(arg)
				if err != nil {
					return fmt.Errorf("invalid employee id %q: %w", arg, err)
				}
				opts.EmployeeID = &employeeID
			}

			ics, err := app.scheduler.ExportCalendar(app.ctx, opts)
			if err != nil {
				return err
			}

			outPath, _ := cmd.Flags().GetString("out")
			if outPath == "" {
				fmt.Print(ics)
				return nil
			}
			if err := os.WriteFile(outPath, []byte(ics), 0o644); err != nil {
				return fmt.Errorf("failed to write calendar file: %w", err)
			}
			fmt.Printf("\n✓ Calendar written to %s\n", outPath)
			return nil
		},
	}

	cmd.Flags().String("employee", "", "Restrict the feed to one employee ID")
	cmd.Flags().String("out", "", "Write the calendar to this file instead of stdout")

	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [team_id]",
		Short: "Show recent orchestration runs (defaults to all teams)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var teamID *uuid.UUID
			if len(args) > 0 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid team id %q: %w", args[0], err)
				}
				teamID = &id
			}
			limit, _ := cmd.Flags().GetInt("limit")

			runs, err := app.scheduler.RecentRuns(app.ctx, teamID, limit)
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d runs:\n\n", len(runs))
			for _, run := range runs {
				line := fmt.Sprintf("  %s  %-9s  %s → %s  %d created",
					run.StartedAt.Format("2006-01-02 15:04"), run.Status,
					run.PeriodStart.Format("2006-01-02"),
					run.PeriodEnd.Format("2006-01-02"), run.TotalCreated)
				if run.Error != "" {
					line += "  ✗ " + run.Error
				}
				fmt.Println(line)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().Int("limit", 20, "Maximum number of runs to show")

	return cmd
}

func resetHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resetHistory <team_id> <cutover>",
		Short: "Delete a team's auto-generated assignments from the cutover date on",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			teamID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid team id %q: %w", args[0], err)
			}
			team, err := app.database.GetTeam(app.ctx, teamID)
			if err != nil {
				return err
			}
			loc, err := team.Location()
			if err != nil {
				return fmt.Errorf("failed to resolve team timezone: %w", err)
			}
			cutover, err := time.ParseInLocation("2006-01-02", args[1], loc)
			if err != nil {
				return fmt.Errorf("invalid cutover date %q: %w", args[1], err)
			}

			result, err := app.scheduler.ResetHistory(app.ctx, teamID, cutover)
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Removed %d auto-generated assignments from %s on (run %s)\n",
				result.Deleted, cutover.Format("2006-01-02"), result.RunID)
			return nil
		},
	}
}

func listTeamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listTeams",
		Short: "List all teams and their planning configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			teams, err := app.database.ListTeams(app.ctx)
			if err != nil {
				return err
			}

			fmt.Printf("\nFound %d teams:\n\n", len(teams))
			for _, t := range teams {
				standby := "standby off"
				if t.StandbyEnabled {
					standby = "standby on"
				}
				fmt.Printf("- %s (%s) - %s - handover %s %02d:00 - %s\n",
					t.Name, t.ID, t.Timezone,
					t.WaakdienstHandoverWeekday, t.WaakdienstStartHour, standby)
			}
			fmt.Println()

			return nil
		},
	}
}

// Helpers

func addCategoriesFlag(cmd *cobra.Command) {
	cmd.Flags().StringSlice("categories", nil,
		"Shift categories to plan (incidents, incidents_standby, waakdienst; default all enabled)")
}

// scheduleRequest parses the shared <team_id> <start> <end> arguments and
// the categories flag. Dates are interpreted in the team's timezone.
func scheduleRequest(cmd *cobra.Command, args []string) (services.ScheduleRequest, error) {
	var req services.ScheduleRequest

	teamID, err := uuid.Parse(args[0])
	if err != nil {
		return req, fmt.Errorf("invalid team id %q: %w", args[0], err)
	}
	team, err := app.database.GetTeam(app.ctx, teamID)
	if err != nil {
		return req, err
	}
	loc, err := team.Location()
	if err != nil {
		return req, fmt.Errorf("failed to resolve team timezone: %w", err)
	}

	start, end, err := parseWindow(args[1], args[2], loc)
	if err != nil {
		return req, err
	}

	categoryArgs, _ := cmd.Flags().GetStringSlice("categories")
	var categories []model.ShiftCategory
	for _, arg := range categoryArgs {
		category := model.ShiftCategory(strings.ToLower(strings.TrimSpace(arg)))
		if !category.IsValid() {
			return req, fmt.Errorf("unknown category %q", arg)
		}
		categories = append(categories, category)
	}

	req = services.ScheduleRequest{
		TeamID:     teamID,
		Start:      start,
		End:        end,
		Categories: categories,
	}
	return req, nil
}

func parseWindow(startArg, endArg string, loc *time.Location) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation("2006-01-02", startArg, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startArg, err)
	}
	end, err := time.ParseInLocation("2006-01-02", endArg, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endArg, err)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is not after start date %s", endArg, startArg)
	}
	return start, end, nil
}

func printAssignments(team model.Team, assignments []model.Assignment) {
	fmt.Printf("Planned %d assignments for %s:\n", len(assignments), team.Name)
	for _, a := range assignments {
		split := ""
		if a.Split != nil {
			split = " [split]"
		}
		fmt.Printf("  %s → %s  %-18s %s%s\n",
			a.Start.Format("2006-01-02 15:04"),
			a.End.Format("2006-01-02 15:04"),
			a.Category, a.EmployeeID, split)
	}
	fmt.Println()
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Printf("⚠️  %d warnings:\n", len(warnings))
	for _, w := range warnings {
		fmt.Printf("  ✗ %s\n", w)
	}
	fmt.Println()
}

func printExtensionReport(report *horizon.Report) {
	mode := ""
	if report.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("\n✓ Horizon extension complete%s\n\n", mode)

	for _, teamReport := range report.Teams {
		fmt.Printf("%s:\n", teamReport.Team.Name)
		if teamReport.Error != "" {
			fmt.Printf("  ✗ %s\n", teamReport.Error)
			continue
		}
		for _, c := range teamReport.Categories {
			if !c.Eligible {
				fmt.Printf("  %-18s skipped: %s\n", c.Category, c.Reason)
				continue
			}
			fmt.Printf("  %-18s %d created, %d already covered, frontier %s\n",
				c.Category, c.Created, c.Duplicates, c.Frontier.Format("2006-01-02"))
		}
	}
	fmt.Println()
}
