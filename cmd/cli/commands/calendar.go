package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// CalendarCmd creates the calendar command
func CalendarCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "calendar [from] [to]",
		Short: "Show shifts and who is assigned (defaults to the configured window from today)",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := app.dateRange(args)
			if err != nil {
				return err
			}
			actor, _, err := app.Actor()
			if err != nil {
				return err
			}

			view, err := services.ViewCalendar(app.Ctx, app.Database, app.Calendar, app.Logger, actor, from, to)
			if err != nil {
				return err
			}
			printCalendar(app.out(), view)
			return nil
		},
	}
}

// dateRange reads optional from/to args, defaulting to the calendar window
func (app *AppContext) dateRange(args []string) (time.Time, time.Time, error) {
	switch len(args) {
	case 0:
		start := app.Calendar.Today(time.Now())
		return start, start.AddDate(0, 0, app.Cfg.CalendarDays-1), nil
	case 1:
		return calendar.ParseRange(args[0], args[0])
	}
	return calendar.ParseRange(args[0], args[1])
}

func printCalendar(out io.Writer, view *services.CalendarView) {
	fmt.Fprintf(out, "\nShifts %s to %s\n", view.From, view.To)

	for _, day := range view.Days {
		fmt.Fprintf(out, "\n%s %s\n", day.Weekday, day.Date)
		for _, slot := range day.Slots {
			label := fmt.Sprintf("  %-8s", slot.Label)
			if slot.Closed {
				fmt.Fprintf(out, "%s%s cerrado%s\n", label, colorDim, colorReset)
				continue
			}

			count := fmt.Sprintf("%d/%d", slot.Count, slot.Capacity)
			switch {
			case slot.Count > slot.Capacity:
				count = colorRed + count + colorReset
			case slot.Full:
				count = colorYellow + count + colorReset
			}
			mark := " "
			if slot.Assigned {
				mark = colorGreen + "✓" + colorReset
			}

			names := make([]string, 0, len(slot.Assignees))
			for _, a := range slot.Assignees {
				names = append(names, formatAssignee(a))
			}
			fmt.Fprintf(out, "%s %s %-5s %s\n", label, mark, count, strings.Join(names, ", "))
		}
	}
	fmt.Fprintln(out)
}

func formatAssignee(a services.Assignee) string {
	s := a.Name
	if len(a.Badges) > 0 {
		s += " [" + strings.Join(a.Badges, ", ") + "]"
	}
	if a.Contact.State == policy.ContactAvailable {
		s += " " + a.Contact.TelURL
	}
	return s
}
