package sheetsclient

import (
	"fmt"
	"strings"

	"google.golang.org/api/sheets/v4"
)

// AttendanceTotal is one volunteer's shift count over the range
type AttendanceTotal struct {
	Name      string
	Morning   int
	Afternoon int
}

// AttendanceSlot lists who was assigned to one shift
type AttendanceSlot struct {
	Date  string // Format: "2006-01-02"
	Shift string // "Mañana" or "Tarde"
	Names []string
}

// AttendanceSheet is the exported attendance for a date range
type AttendanceSheet struct {
	From   string
	To     string
	Totals []AttendanceTotal
	Slots  []AttendanceSlot
}

// PublishAttendance writes the attendance into a tab titled by the date range.
// The tab is created if missing and fully overwritten otherwise.
// Returns the tab title.
func (c *Client) PublishAttendance(spreadsheetID string, sheet *AttendanceSheet) (string, error) {
	tabTitle := TabTitle(sheet.From, sheet.To)

	exists, err := c.hasSheet(spreadsheetID, tabTitle)
	if err != nil {
		return "", err
	}

	if exists {
		_, err = c.service.Spreadsheets.Values.Clear(spreadsheetID, tabTitle, &sheets.ClearValuesRequest{}).Do()
		if err != nil {
			return "", fmt.Errorf("failed to clear existing tab: %w", err)
		}
	} else {
		if _, err := c.CreateSheet(spreadsheetID, tabTitle); err != nil {
			return "", fmt.Errorf("failed to create tab: %w", err)
		}
	}

	_, err = c.service.Spreadsheets.Values.Update(
		spreadsheetID,
		fmt.Sprintf("%s!A1", tabTitle),
		&sheets.ValueRange{Values: AttendanceRows(sheet)},
	).ValueInputOption("RAW").Do()
	if err != nil {
		return "", fmt.Errorf("failed to write attendance: %w", err)
	}

	return tabTitle, nil
}

// TabTitle names the tab for a date range, e.g. "Asistencia 2025-05-01 - 2025-05-31"
func TabTitle(from, to string) string {
	return fmt.Sprintf("Asistencia %s - %s", from, to)
}

// AttendanceRows lays out the totals table, a blank row, then one row per shift
func AttendanceRows(sheet *AttendanceSheet) [][]interface{} {
	rows := [][]interface{}{
		{"Voluntario", "Mañanas", "Tardes", "Total"},
	}
	for _, t := range sheet.Totals {
		rows = append(rows, []interface{}{t.Name, t.Morning, t.Afternoon, t.Morning + t.Afternoon})
	}

	rows = append(rows, []interface{}{}, []interface{}{"Fecha", "Turno", "Asignados"})
	for _, s := range sheet.Slots {
		rows = append(rows, []interface{}{s.Date, s.Shift, strings.Join(s.Names, ", ")})
	}

	return rows
}
