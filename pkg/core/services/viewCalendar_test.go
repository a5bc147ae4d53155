package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func findSlot(t *testing.T, view *CalendarView, id string) SlotView {
	t.Helper()
	for _, d := range view.Days {
		for _, s := range d.Slots {
			if s.ID == id {
				return s
			}
		}
	}
	t.Fatalf("slot %s not in view", id)
	return SlotView{}
}

func findAssignee(t *testing.T, slot SlotView, uid string) Assignee {
	t.Helper()
	for _, a := range slot.Assignees {
		if a.UserID == uid {
			return a
		}
	}
	t.Fatalf("assignee %s not in slot %s", uid, slot.ID)
	return Assignee{}
}

func TestViewCalendar_Layout(t *testing.T) {
	store := newStore(t, ana)
	cal := newCalendar(t, calendar.Override{RRule: "FREQ=WEEKLY;BYDAY=TU", Period: model.PeriodAfternoon, Closed: true})

	view, err := ViewCalendar(context.Background(), store, cal, zap.NewNop(), &ana, day("2025-05-26"), day("2025-05-27"))
	require.NoError(t, err)

	assert.Equal(t, "2025-05-26", view.From)
	assert.Equal(t, "2025-05-27", view.To)
	require.Len(t, view.Days, 2)

	type cell struct {
		ID       string
		Label    string
		Capacity int
		Closed   bool
	}
	var got []cell
	for _, d := range view.Days {
		for _, s := range d.Slots {
			got = append(got, cell{s.ID, s.Label, s.Capacity, s.Closed})
		}
	}
	expected := []cell{
		{"2025-05-26_M", "mañana", 3, false},
		{"2025-05-26_T", "tarde", 3, false},
		{"2025-05-27_M", "mañana", 3, false},
		{"2025-05-27_T", "tarde", 3, true},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Errorf("calendar cells mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "lunes", view.Days[0].Weekday)
	assert.Equal(t, "martes", view.Days[1].Weekday)
}

func TestViewCalendar_VolunteerSeesCoAssignedLead(t *testing.T) {
	store := newStore(t, ana, carlos, maria, pedro)
	ctx := context.Background()
	for _, uid := range []string{ana.ID, carlos.ID, maria.ID} {
		require.NoError(t, store.ModifyAssignment(ctx, monMorning, uid, model.IntentAdd))
	}
	// carlos is also in the afternoon, without ana
	require.NoError(t, store.ModifyAssignment(ctx, model.SlotKey{Date: "2025-05-26", Period: model.PeriodAfternoon}, carlos.ID, model.IntentAdd))

	view, err := ViewCalendar(ctx, store, newCalendar(t), zap.NewNop(), &ana, day("2025-05-26"), day("2025-05-26"))
	require.NoError(t, err)

	morning := findSlot(t, view, "2025-05-26_M")
	assert.True(t, morning.Assigned)
	assert.Equal(t, 3, morning.Count)
	assert.True(t, morning.Full)

	self := findAssignee(t, morning, ana.ID)
	assert.True(t, self.Self)
	assert.Equal(t, "Ana (Tú)", self.Name)
	assert.Equal(t, policy.ContactSelf, self.Contact.State)

	lead := findAssignee(t, morning, carlos.ID)
	assert.Equal(t, []string{"Responsable"}, lead.Badges)
	assert.Equal(t, policy.ContactAvailable, lead.Contact.State)
	assert.Equal(t, "tel:+34600000002", lead.Contact.TelURL)
	assert.Equal(t, "https://wa.me/34600000002", lead.Contact.WhatsAppURL)

	peer := findAssignee(t, morning, maria.ID)
	assert.Empty(t, peer.Badges)
	assert.Equal(t, policy.ContactHidden, peer.Contact.State)

	afternoon := findSlot(t, view, "2025-05-26_T")
	assert.False(t, afternoon.Assigned)
	other := findAssignee(t, afternoon, carlos.ID)
	assert.Equal(t, policy.ContactHidden, other.Contact.State)
}

func TestViewCalendar_LeadSeesNoPhone(t *testing.T) {
	store := newStore(t, carlos, maria)
	ctx := context.Background()
	require.NoError(t, store.ModifyAssignment(ctx, monMorning, maria.ID, model.IntentAdd))

	view, err := ViewCalendar(ctx, store, newCalendar(t), zap.NewNop(), &carlos, day("2025-05-26"), day("2025-05-26"))
	require.NoError(t, err)

	a := findAssignee(t, findSlot(t, view, "2025-05-26_M"), maria.ID)
	assert.Equal(t, policy.ContactNoPhone, a.Contact.State)
	assert.Empty(t, a.Contact.TelURL)
}

func TestViewCalendar_UnknownAssigneePlaceholder(t *testing.T) {
	store := newStore(t, admin)
	ctx := context.Background()
	require.NoError(t, store.ModifyAssignment(ctx, monMorning, "ghost", model.IntentAdd))

	view, err := ViewCalendar(ctx, store, newCalendar(t), zap.NewNop(), &admin, day("2025-05-26"), day("2025-05-26"))
	require.NoError(t, err)

	a := findAssignee(t, findSlot(t, view, "2025-05-26_M"), "ghost")
	assert.False(t, a.Known)
	assert.Equal(t, PlaceholderName, a.Name)
	assert.Equal(t, policy.ContactHidden, a.Contact.State)
}

func TestViewCalendar_DisplayNamesDisambiguate(t *testing.T) {
	ana2 := model.User{ID: "user7", Name: "Ana", LastName: "Martín", Roles: model.NewRoleSet(model.RoleVolunteer)}
	store := newStore(t, ana, ana2, carlos)
	ctx := context.Background()
	require.NoError(t, store.ModifyAssignment(ctx, monMorning, ana.ID, model.IntentAdd))
	require.NoError(t, store.ModifyAssignment(ctx, monMorning, ana2.ID, model.IntentAdd))

	view, err := ViewCalendar(ctx, store, newCalendar(t), zap.NewNop(), &carlos, day("2025-05-26"), day("2025-05-26"))
	require.NoError(t, err)

	slot := findSlot(t, view, "2025-05-26_M")
	assert.Equal(t, "Ana G.", findAssignee(t, slot, ana.ID).Name)
	assert.Equal(t, "Ana M.", findAssignee(t, slot, ana2.ID).Name)
}

func TestViewCalendar_RequiresSession(t *testing.T) {
	_, err := ViewCalendar(context.Background(), newStore(t), newCalendar(t), zap.NewNop(), nil, day("2025-05-26"), day("2025-05-26"))
	assert.ErrorIs(t, err, policy.ErrNotAuthenticated)
}

func TestViewCalendar_StoreError(t *testing.T) {
	store := newStore(t, ana)
	failing := &failingListStore{countingStore: store, err: errors.New("boom")}

	_, err := ViewCalendar(context.Background(), failing, newCalendar(t), zap.NewNop(), &ana, day("2025-05-26"), day("2025-05-26"))
	assert.ErrorContains(t, err, "boom")
}

type failingListStore struct {
	*countingStore
	err error
}

func (f *failingListStore) ListSlots(ctx context.Context, from, to string) ([]db.ShiftSlot, error) {
	return nil, f.err
}
