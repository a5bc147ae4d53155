package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
)

// HistoryCmd creates the history command
func HistoryCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <from> <to>",
		Short: "Show how many shifts each volunteer covered in a date range (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to, err := calendar.ParseRange(args[0], args[1])
			if err != nil {
				return err
			}
			export, _ := cmd.Flags().GetBool("export")

			app.Logger.Debug("history command",
				zap.String("from", args[0]),
				zap.String("to", args[1]),
				zap.Bool("export", export))

			actor, _, err := app.Actor()
			if err != nil {
				return err
			}

			if export {
				if app.SheetsClient == nil {
					return errors.New("attendance export needs GOOGLE_CREDENTIALS_FILE")
				}
				tab, err := services.ExportAttendance(app.Ctx, app.Database, app.SheetsClient, app.Cfg.AttendanceSheetID, app.Logger, actor, from, to)
				if err != nil {
					return err
				}
				fmt.Fprintf(app.out(), "\n✓ Attendance written to tab %q\n\n", tab)
				return nil
			}

			history, err := services.AttendanceHistory(app.Ctx, app.Database, app.Logger, actor, from, to)
			if err != nil {
				return err
			}
			printAttendance(app.out(), history)
			return nil
		},
	}

	cmd.Flags().Bool("export", false, "Write the history to the attendance spreadsheet instead of printing it")

	return cmd
}

func printAttendance(out io.Writer, history *services.Attendance) {
	fmt.Fprintf(out, "\nAttendance %s to %s\n\n", history.From, history.To)
	if len(history.Users) == 0 {
		fmt.Fprintln(out, "No shifts were covered in this range.")
		return
	}

	nameColWidth := 20
	for _, u := range history.Users {
		if n := len([]rune(u.Name)); n > nameColWidth {
			nameColWidth = n
		}
	}
	nameColWidth += 2

	fmt.Fprintf(out, "%s%-8s%-8s%-8s\n", padRight("Voluntario", nameColWidth), "Mañanas", "Tardes", "Total")
	fmt.Fprintln(out, strings.Repeat("-", nameColWidth+24))

	best := history.Users[0].Total
	for _, u := range history.Users {
		name := u.Name
		if !u.Known {
			name = colorDim + padRight(name, nameColWidth) + colorReset
		} else {
			name = padRight(name, nameColWidth)
		}
		color := attendanceColor(u.Total, best, colorGreen, colorReset, colorYellow)
		fmt.Fprintf(out, "%s%-8d%-8d%s%-8d%s\n", name, u.Morning, u.Afternoon, color, u.Total, colorReset)
	}
	fmt.Fprintln(out)
}

// attendanceColor highlights the most active volunteers: more than half of the
// best total is high, a single shift is low
func attendanceColor(total, best int, high, normal, low string) string {
	switch {
	case best > 1 && total > best/2:
		return high
	case total <= 1:
		return low
	}
	return normal
}

// padRight pads by rune count so accented names line up
func padRight(s string, width int) string {
	n := len([]rune(s))
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}
