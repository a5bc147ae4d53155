package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the civil date format used for slot keys
const DateLayout = "2006-01-02"

// Period is the half of the day a shift covers
type Period string

const (
	PeriodMorning   Period = "M"
	PeriodAfternoon Period = "T"
)

// Periods lists the shifts of a day in display order
var Periods = []Period{PeriodMorning, PeriodAfternoon}

func (p Period) IsValid() bool {
	return p == PeriodMorning || p == PeriodAfternoon
}

// Label returns the Spanish name of the period
func (p Period) Label() string {
	switch p {
	case PeriodMorning:
		return "mañana"
	case PeriodAfternoon:
		return "tarde"
	}
	return string(p)
}

// ParsePeriod accepts the stored code or a long name in English or Spanish
func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "m", "morning", "mañana", "manana":
		return PeriodMorning, nil
	case "t", "afternoon", "tarde":
		return PeriodAfternoon, nil
	}
	return "", fmt.Errorf("invalid period %q (expected M or T)", s)
}

// Intent is the direction of an assignment write
type Intent string

const (
	IntentAdd    Intent = "add"
	IntentRemove Intent = "remove"
)

// SlotKey identifies a shift slot
type SlotKey struct {
	Date   string `json:"date"`
	Period Period `json:"shift"`
}

// NewSlotKey builds a key from a date, ignoring its time of day
func NewSlotKey(date time.Time, period Period) SlotKey {
	return SlotKey{Date: date.Format(DateLayout), Period: period}
}

// ParseSlotKey parses a document key such as "2025-05-26_M"
func ParseSlotKey(id string) (SlotKey, error) {
	date, code, ok := strings.Cut(id, "_")
	if !ok {
		return SlotKey{}, fmt.Errorf("invalid slot id %q", id)
	}
	if _, err := time.Parse(DateLayout, date); err != nil {
		return SlotKey{}, fmt.Errorf("invalid slot date in %q: %w", id, err)
	}
	period := Period(code)
	if !period.IsValid() {
		return SlotKey{}, fmt.Errorf("invalid slot period in %q", id)
	}
	return SlotKey{Date: date, Period: period}, nil
}

// ID returns the document key of the slot
func (k SlotKey) ID() string {
	return k.Date + "_" + string(k.Period)
}

// BusyKey is the composite key used to guard in-flight writes for one user
func (k SlotKey) BusyKey(uid string) string {
	return k.ID() + "_" + uid
}

func (k SlotKey) Time() (time.Time, error) {
	return time.Parse(DateLayout, k.Date)
}

func (k SlotKey) Validate() error {
	if _, err := k.Time(); err != nil {
		return fmt.Errorf("invalid slot date %q: %w", k.Date, err)
	}
	if !k.Period.IsValid() {
		return fmt.Errorf("invalid slot period %q", k.Period)
	}
	return nil
}

// Assignment records that a user occupies a seat in a slot
type Assignment struct {
	UserID string `json:"uid"`
}

// Slot is a shift slot with its assignment set
type Slot struct {
	Key         SlotKey      `json:"key"`
	Assignments []Assignment `json:"assignments"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

// Count returns the number of assignees; a nil slot has none
func (s *Slot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Assignments)
}

// Has reports whether uid is assigned to the slot
func (s *Slot) Has(uid string) bool {
	if s == nil {
		return false
	}
	for _, a := range s.Assignments {
		if a.UserID == uid {
			return true
		}
	}
	return false
}

func (s *Slot) UserIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, len(s.Assignments))
	for i, a := range s.Assignments {
		ids[i] = a.UserID
	}
	return ids
}
