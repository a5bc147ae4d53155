package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// SelfSuffix marks the actor's own entry in an assignee list
const SelfSuffix = " (Tú)"

// Assignee is one assignment joined with the directory
type Assignee struct {
	UserID  string         `json:"uid"`
	Name    string         `json:"name"`
	Self    bool           `json:"self"`
	Known   bool           `json:"known"`
	Badges  []string       `json:"badges,omitempty"`
	Contact policy.Contact `json:"contact"`
}

// SlotView is one shift cell of the calendar
type SlotView struct {
	ID        string        `json:"id"`
	Key       model.SlotKey `json:"key"`
	Label     string        `json:"label"`
	Capacity  int           `json:"capacity"`
	Closed    bool          `json:"closed"`
	Count     int           `json:"count"`
	Full      bool          `json:"full"`
	Assigned  bool          `json:"assigned"`
	Assignees []Assignee    `json:"assignees"`
}

type DayView struct {
	Date    string     `json:"date"`
	Weekday string     `json:"weekday"`
	Slots   []SlotView `json:"slots"`
}

type CalendarView struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	Days []DayView `json:"days"`
}

// ViewCalendar builds the calendar between from and to as seen by actor
func ViewCalendar(ctx context.Context, store db.Database, cal *calendar.Calendar, logger *zap.Logger, actor *model.User, from, to time.Time) (*CalendarView, error) {
	if actor == nil || actor.ID == "" {
		return nil, policy.ErrNotAuthenticated
	}

	fromKey, toKey := from.Format(model.DateLayout), to.Format(model.DateLayout)
	logger.Debug("Building calendar", zap.String("from", fromKey), zap.String("to", toKey), zap.String("uid", actor.ID))

	// Fetch the directory and the stored slots for the range
	dir, slots, err := loadRange(ctx, store, fromKey, toKey)
	if err != nil {
		return nil, err
	}

	// Capacity and closures for every slot in the range
	rules := cal.Rules(from, to)
	view := &CalendarView{From: fromKey, To: toKey}

	for _, date := range calendar.Days(from, to) {
		day := DayView{Date: date}
		if t, err := time.Parse(model.DateLayout, date); err == nil {
			day.Weekday = weekdays[t.Weekday()]
		}

		// Slots without a record are empty, not missing
		for _, period := range model.Periods {
			key := model.SlotKey{Date: date, Period: period}
			slot := slots[key.ID()]
			rule := rules[key]

			sv := SlotView{
				ID:        key.ID(),
				Key:       key,
				Label:     period.Label(),
				Capacity:  rule.Capacity,
				Closed:    rule.Closed,
				Count:     slot.Count(),
				Full:      slot.Count() >= rule.Capacity,
				Assigned:  slot.Has(actor.ID),
				Assignees: make([]Assignee, 0, slot.Count()),
			}
			for _, uid := range slot.UserIDs() {
				sv.Assignees = append(sv.Assignees, joinAssignee(dir, actor, uid, slot))
			}
			day.Slots = append(day.Slots, sv)
		}
		view.Days = append(view.Days, day)
	}

	return view, nil
}

func joinAssignee(dir *Directory, actor *model.User, uid string, slot *model.Slot) Assignee {
	target, known := dir.Resolve(uid)
	a := Assignee{UserID: uid, Name: target.Label(), Known: known}

	if uid == actor.ID {
		a.Self = true
		a.Name += SelfSuffix
		a.Contact = policy.Contact{State: policy.ContactSelf}
		return a
	}

	// Volunteer is the default and gets no badge
	for _, r := range target.Roles.Roles() {
		if r != model.RoleVolunteer {
			a.Badges = append(a.Badges, r.Label())
		}
	}

	if !known {
		a.Contact = policy.Contact{State: policy.ContactHidden}
		return a
	}
	a.Contact = policy.ContactFor(actor, &target, slot)
	return a
}

// loadRange fetches the directory and the slots of a range concurrently
func loadRange(ctx context.Context, store db.Database, from, to string) (*Directory, map[string]*model.Slot, error) {
	var (
		dir     *Directory
		records []db.ShiftSlot
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dir, err = LoadDirectory(gctx, store)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = store.ListSlots(gctx, from, to)
		if err != nil {
			return fmt.Errorf("failed to list slots: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Index slots by document key
	slots := make(map[string]*model.Slot, len(records))
	for _, r := range records {
		slot, err := r.ToModel()
		if err != nil {
			return nil, nil, err
		}
		slots[slot.Key.ID()] = &slot
	}
	return dir, slots, nil
}
