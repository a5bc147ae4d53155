package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/db"
	"github.com/jakechorley/shelter-shifts/pkg/db/memory"
	"github.com/jakechorley/shelter-shifts/pkg/events"
)

var (
	ana    = model.User{ID: "user1", Email: "ana@example.com", Name: "Ana", LastName: "García", Phone: "+34600000001", Roles: model.NewRoleSet(model.RoleVolunteer), Enabled: true}
	carlos = model.User{ID: "user2", Email: "carlos@example.com", Name: "Carlos", LastName: "Ruiz", Phone: "+34600000002", Roles: model.NewRoleSet(model.RoleLead), Enabled: true}
	maria  = model.User{ID: "user3", Email: "maria@example.com", Name: "María", LastName: "López", Roles: model.NewRoleSet(model.RoleVolunteer), Enabled: true}
	admin  = model.User{ID: "admin1", Email: "admin@example.com", Name: "Admin", LastName: "Refugio", Roles: model.NewRoleSet(model.RoleAdmin), Enabled: true}
	pedro  = model.User{ID: "user4", Email: "pedro@example.com", Name: "Pedro", LastName: "Sanz", Roles: model.NewRoleSet(model.RoleVolunteer), Enabled: true}
	lucia  = model.User{ID: "user5", Email: "lucia@example.com", Name: "Lucía", LastName: "Díaz", Roles: model.NewRoleSet(model.RoleVolunteer), Enabled: true}

	// 2025-05-26 is a Monday
	monMorning = model.SlotKey{Date: "2025-05-26", Period: model.PeriodMorning}
	tueMorning = model.SlotKey{Date: "2025-05-27", Period: model.PeriodMorning}
	wedMorning = model.SlotKey{Date: "2025-05-28", Period: model.PeriodMorning}
)

// mockNotifier records every emitted message
type mockNotifier struct {
	mu       sync.Mutex
	messages []notify.Message
}

func (m *mockNotifier) Emit(session, text string, severity notify.Severity) notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := notify.Message{ID: session, Text: text, Severity: severity}
	m.messages = append(m.messages, msg)
	return msg
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

// mockPublisher records published events
type mockPublisher struct {
	events []events.AssignmentChanged
	err    error
}

func (m *mockPublisher) PublishAssignmentChanged(ctx context.Context, evt events.AssignmentChanged) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, evt)
	return nil
}

type sentEmail struct {
	to, subject, body string
}

type mockMailer struct {
	sent []sentEmail
	err  error
}

func (m *mockMailer) SendEmail(to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentEmail{to, subject, body})
	return nil
}

// countingStore counts assignment writes and can inject failures
type countingStore struct {
	*memory.DB
	writes    int
	modifyErr error
	getErr    error
}

func (c *countingStore) ModifyAssignment(ctx context.Context, key model.SlotKey, uid string, intent model.Intent) error {
	c.writes++
	if c.modifyErr != nil {
		return c.modifyErr
	}
	return c.DB.ModifyAssignment(ctx, key, uid, intent)
}

func (c *countingStore) GetSlot(ctx context.Context, id string) (*db.ShiftSlot, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.DB.GetSlot(ctx, id)
}

type fixture struct {
	store     *countingStore
	notifier  *mockNotifier
	publisher *mockPublisher
	mailer    *mockMailer
	svc       *AssignmentService
}

func toRecord(u model.User) *db.User {
	return &db.User{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		LastName: u.LastName,
		Phone:    u.Phone,
		Roles:    u.Roles.Codes(),
		Enabled:  u.Enabled,
	}
}

func newStore(t *testing.T, users ...model.User) *countingStore {
	t.Helper()
	store := &countingStore{DB: memory.NewDB()}
	for _, u := range users {
		require.NoError(t, store.InsertUser(context.Background(), toRecord(u)))
	}
	return store
}

func newCalendar(t *testing.T, overrides ...calendar.Override) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.New(3, overrides, time.UTC, zap.NewNop())
	require.NoError(t, err)
	return cal
}

func newFixture(t *testing.T, overrides ...calendar.Override) *fixture {
	t.Helper()
	f := &fixture{
		store:     newStore(t, ana, carlos, maria, admin, pedro, lucia),
		notifier:  &mockNotifier{},
		publisher: &mockPublisher{},
		mailer:    &mockMailer{},
	}
	f.svc = NewAssignmentService(f.store, newCalendar(t, overrides...), f.notifier, f.publisher, zap.NewNop())
	f.svc.Mailer = f.mailer
	return f
}

// seed assigns users directly, bypassing the write counter
func (f *fixture) seed(t *testing.T, key model.SlotKey, users ...model.User) {
	t.Helper()
	for _, u := range users {
		require.NoError(t, f.store.DB.ModifyAssignment(context.Background(), key, u.ID, model.IntentAdd))
	}
}

func (f *fixture) assigned(t *testing.T, key model.SlotKey) []string {
	t.Helper()
	record, err := f.store.DB.GetSlot(context.Background(), key.ID())
	if errors.Is(err, db.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	slot, err := record.ToModel()
	require.NoError(t, err)
	return slot.UserIDs()
}

func ptr[T any](v T) *T {
	return &v
}
