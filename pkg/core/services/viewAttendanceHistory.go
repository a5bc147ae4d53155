package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/clients/sheetsclient"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// AttendancePublisher writes an attendance sheet somewhere shareable
type AttendancePublisher interface {
	PublishAttendance(spreadsheetID string, sheet *sheetsclient.AttendanceSheet) (string, error)
}

// UserAttendance is one user's shift count in a range
type UserAttendance struct {
	UserID    string `json:"uid"`
	Name      string `json:"name"`
	Known     bool   `json:"known"`
	Morning   int    `json:"morning"`
	Afternoon int    `json:"afternoon"`
	Total     int    `json:"total"`
}

// SlotAttendance lists the assignees of one slot
type SlotAttendance struct {
	Key   model.SlotKey `json:"key"`
	Names []string      `json:"names"`
}

type Attendance struct {
	From  string           `json:"from"`
	To    string           `json:"to"`
	Users []UserAttendance `json:"users"`
	Slots []SlotAttendance `json:"slots"`
}

// AttendanceHistory counts the shifts each user was assigned to between from and to.
// Users are ordered by total, most first, then by name.
func AttendanceHistory(ctx context.Context, store db.Database, logger *zap.Logger, actor *model.User, from, to time.Time) (*Attendance, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	fromKey, toKey := from.Format(model.DateLayout), to.Format(model.DateLayout)
	logger.Debug("Computing attendance", zap.String("from", fromKey), zap.String("to", toKey))

	dir, slots, err := loadRange(ctx, store, fromKey, toKey)
	if err != nil {
		return nil, err
	}

	// Walk the slots in date order so the per-slot list reads chronologically
	keys := make([]string, 0, len(slots))
	for id := range slots {
		keys = append(keys, id)
	}
	sort.Strings(keys)

	byUser := make(map[string]*UserAttendance)
	history := &Attendance{From: fromKey, To: toKey, Slots: make([]SlotAttendance, 0, len(keys))}

	for _, id := range keys {
		slot := slots[id]
		if slot.Count() == 0 {
			continue
		}

		entry := SlotAttendance{Key: slot.Key}
		for _, uid := range slot.UserIDs() {
			u, known := dir.Resolve(uid)
			name := u.FullName()
			if name == "" {
				name = u.Label()
			}
			entry.Names = append(entry.Names, name)

			// Tally the shift against the user
			ua, ok := byUser[uid]
			if !ok {
				ua = &UserAttendance{UserID: uid, Name: name, Known: known}
				byUser[uid] = ua
			}
			if slot.Key.Period == model.PeriodMorning {
				ua.Morning++
			} else {
				ua.Afternoon++
			}
			ua.Total++
		}
		history.Slots = append(history.Slots, entry)
	}

	// Most shifts first
	history.Users = make([]UserAttendance, 0, len(byUser))
	for _, ua := range byUser {
		history.Users = append(history.Users, *ua)
	}
	sort.Slice(history.Users, func(i, j int) bool {
		a, b := history.Users[i], history.Users[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	})

	logger.Debug("Attendance computed",
		zap.Int("slots", len(history.Slots)),
		zap.Int("users", len(history.Users)))

	return history, nil
}

// ExportAttendance publishes the history for the range to the attendance spreadsheet.
// Returns the tab title that was written.
func ExportAttendance(ctx context.Context, store db.Database, publisher AttendancePublisher, spreadsheetID string, logger *zap.Logger, actor *model.User, from, to time.Time) (string, error) {
	if spreadsheetID == "" {
		return "", fmt.Errorf("no attendance spreadsheet configured")
	}

	history, err := AttendanceHistory(ctx, store, logger, actor, from, to)
	if err != nil {
		return "", err
	}

	// Write the history to its own tab
	tab, err := publisher.PublishAttendance(spreadsheetID, ToAttendanceSheet(history))
	if err != nil {
		return "", fmt.Errorf("failed to publish attendance: %w", err)
	}

	logger.Info("Attendance exported", zap.String("tab", tab), zap.Int("users", len(history.Users)))
	return tab, nil
}

// ToAttendanceSheet converts the history into the spreadsheet layout
func ToAttendanceSheet(history *Attendance) *sheetsclient.AttendanceSheet {
	sheet := &sheetsclient.AttendanceSheet{From: history.From, To: history.To}
	for _, u := range history.Users {
		sheet.Totals = append(sheet.Totals, sheetsclient.AttendanceTotal{
			Name:      u.Name,
			Morning:   u.Morning,
			Afternoon: u.Afternoon,
		})
	}
	for _, s := range history.Slots {
		sheet.Slots = append(sheet.Slots, sheetsclient.AttendanceSlot{
			Date:  s.Key.Date,
			Shift: capitalize(s.Key.Period.Label()),
			Names: s.Names,
		})
	}
	return sheet
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	return strings.ToUpper(string(r[0])) + string(r[1:])
}
