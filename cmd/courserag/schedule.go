package main

import (
	"bufio"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	scheduleDryRun bool
	eventsMax      int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule <course>",
	Short: "Create calendar events for a course's evaluations",
	Long: `Searches the indexed syllabi for the course's evaluations (exams,
quizzes, projects...) and creates one Google Calendar event per dated
evaluation. --dry-run prints the events without touching the calendar.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSchedule,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List upcoming calendar events",
	Args:  cobra.NoArgs,
	RunE:  runEvents,
}

var calendarAuthCmd = &cobra.Command{
	Use:   "calendar-auth",
	Short: "Authorize access to Google Calendar",
	Long: `Prints the Google consent URL, reads the authorization code from stdin
and saves the resulting token to calendar.token_file.`,
	Args: cobra.NoArgs,
	RunE: runCalendarAuth,
}

func init() {
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "print the events without creating them")
	eventsCmd.Flags().IntVarP(&eventsMax, "max", "n", 10, "maximum number of events")
	rootCmd.AddCommand(scheduleCmd, eventsCmd, calendarAuthCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	course := strings.Join(args, " ")
	return withApp(func(app *application) error {
		ctx := cmd.Context()
		if scheduleDryRun {
			plan, err := app.assistant.Plan(ctx, course)
			if err != nil {
				return err
			}
			if len(plan) == 0 {
				cmd.Println("No se encontraron evaluaciones con fecha.")
				return nil
			}
			for _, p := range plan {
				cmd.Printf("%s  %s\n", p.Start.Format("02/01/2006 15:04"), p.Title)
			}
			return nil
		}

		rep, err := app.assistant.Schedule(ctx, course)
		if err != nil {
			return err
		}
		cmd.Println(rep.String())
		return rep.Err
	})
}

func runEvents(cmd *cobra.Command, _ []string) error {
	if eventsMax <= 0 {
		return errors.New("--max must be positive")
	}
	return withApp(func(app *application) error {
		events, err := app.assistant.Upcoming(cmd.Context(), eventsMax)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			cmd.Println("No hay eventos próximos.")
			return nil
		}
		for _, e := range events {
			when := e.Start.Format("02/01/2006 15:04")
			if e.AllDay {
				when = e.Start.Format("02/01/2006") + " (todo el día)"
			}
			cmd.Printf("%s  %s\n", when, e.Title)
		}
		return nil
	})
}

func runCalendarAuth(cmd *cobra.Command, _ []string) error {
	return withApp(func(app *application) error {
		url, err := app.calendar.AuthCodeURL(uuid.NewString())
		if err != nil {
			return err
		}
		cmd.Println("Abre este enlace, autoriza el acceso y pega el código:")
		cmd.Println(url)
		cmd.Print("> ")

		code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && code == "" {
			return err
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return errors.New("no authorization code given")
		}
		if err := app.calendar.Exchange(cmd.Context(), code); err != nil {
			return err
		}
		cmd.Println("Token guardado en", app.cfg.Calendar.TokenFile)
		return nil
	})
}
