package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/jakechorley/shelter-shifts/internal/config"
	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/cache"
	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
	"github.com/jakechorley/shelter-shifts/pkg/core/session"
	"github.com/jakechorley/shelter-shifts/pkg/db/memory"
	"github.com/jakechorley/shelter-shifts/pkg/events"
)

const fixturePassword = "refugio123"

var monMorning = model.SlotKey{Date: "2025-05-26", Period: model.PeriodMorning}

type testApp struct {
	*AppContext
	store *memory.DB
	out   *bytes.Buffer
}

func newTestApp(t *testing.T, email, input string) *testApp {
	t.Helper()
	logger := zap.NewNop()
	ctx := context.Background()

	store := memory.NewDB()
	hash, err := auth.HashPassword(fixturePassword, bcrypt.MinCost)
	require.NoError(t, err)
	for _, f := range services.Fixtures {
		record := f
		record.PasswordHash = hash
		require.NoError(t, store.InsertUser(ctx, &record))
	}

	cfg := config.Default()
	cfg.Env = config.EnvTest
	cal, err := calendar.New(cfg.CapacityThreshold, nil, time.UTC, logger)
	require.NoError(t, err)

	c := cache.NewMemory()
	registry := notify.NewRegistry(time.Minute)
	t.Cleanup(registry.Close)

	users := services.NewUserService(store, cfg.DefaultCountryCode, logger)
	users.BcryptCost = bcrypt.MinCost

	out := &bytes.Buffer{}
	app := &AppContext{
		Cfg:         cfg,
		Database:    store,
		Cache:       c,
		Calendar:    cal,
		Notifier:    registry,
		Auth:        auth.NewProvider(store, c, "0123456789abcdef0123456789abcdef", time.Hour, logger),
		Assignments: services.NewAssignmentService(store, cal, registry, events.LogPublisher{Logger: logger}, logger),
		Users:       users,
		Logger:      logger,
		Ctx:         ctx,
		UserEmail:   email,
		In:          strings.NewReader(input),
		Out:         out,
	}
	t.Setenv(PasswordEnv, fixturePassword)

	return &testApp{AppContext: app, store: store, out: out}
}

func (ta *testApp) run(t *testing.T, cmd *cobra.Command, args ...string) error {
	t.Helper()
	return runInSession(cmd, args)
}

func (ta *testApp) assigned(t *testing.T, key model.SlotKey) []string {
	t.Helper()
	record, err := ta.store.GetSlot(context.Background(), key.ID())
	require.NoError(t, err)
	slot, err := record.ToModel()
	require.NoError(t, err)
	return slot.UserIDs()
}

func (ta *testApp) fill(t *testing.T, key model.SlotKey, uids ...string) {
	t.Helper()
	for _, uid := range uids {
		require.NoError(t, ta.store.ModifyAssignment(context.Background(), key, uid, model.IntentAdd))
	}
}

func TestActor_SignsInOnceAndDrivesSession(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "")

	var states []session.State
	app.Session = session.NewMachine()
	app.Session.Subscribe(func(s session.Snapshot) { states = append(states, s.State) })

	u, sess, err := app.Actor()
	require.NoError(t, err)
	assert.Equal(t, "user1", u.ID)
	assert.NotEmpty(t, sess)

	again, sess2, err := app.Actor()
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Equal(t, sess, sess2)
	assert.Equal(t, []session.State{session.Authenticating, session.Authenticated}, states)

	require.NoError(t, app.SignOut())
	assert.Nil(t, app.Session.User())
	assert.Equal(t, session.Unauthenticated, states[len(states)-1])
}

func TestActor_WrongPassword(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "")
	t.Setenv(PasswordEnv, "nope")

	_, _, err := app.Actor()
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	assert.Equal(t, session.Failed, app.Session.Current().State)
}

func TestActor_TokenCheckFailureAllowsRetry(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "")
	app.Session = session.NewMachine()

	// Every clock read lands past the previous token's expiry
	now := time.Now()
	app.Auth.Now = func() time.Time {
		now = now.Add(2 * time.Hour)
		return now
	}

	_, _, err := app.Actor()
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
	assert.Equal(t, session.Failed, app.Session.Current().State)

	app.Auth.Now = time.Now
	u, _, err := app.Actor()
	require.NoError(t, err)
	assert.Equal(t, "user1", u.ID)
	assert.Equal(t, session.Authenticated, app.Session.Current().State)
}

func TestActor_PromptsForPassword(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", fixturePassword+"\n")
	t.Setenv(PasswordEnv, "")

	u, _, err := app.Actor()
	require.NoError(t, err)
	assert.Equal(t, "user1", u.ID)
	assert.Contains(t, app.out.String(), "Password for ana@refugio.test")
}

func TestActor_RequiresUserFlag(t *testing.T) {
	app := newTestApp(t, "", "")
	_, _, err := app.Actor()
	assert.ErrorContains(t, err, "--user")
}

func TestToggleCmd(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "")

	require.NoError(t, app.run(t, ToggleCmd(app.AppContext), "2025-05-26_M"))
	assert.Equal(t, []string{"user1"}, app.assigned(t, monMorning))
	assert.Contains(t, app.out.String(), "Te has asignado al turno de mañana del lunes 26/05/2025.")

	require.NoError(t, app.run(t, ToggleCmd(app.AppContext), "2025-05-26_M"))
	assert.Empty(t, app.assigned(t, monMorning))

	assert.Error(t, app.run(t, ToggleCmd(app.AppContext), "mañana"))
}

func TestToggleCmd_OverCapacityPrompt(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   int
	}{
		{"confirmed", "y\n", 4},
		{"confirmed in spanish", "sí\n", 4},
		{"declined", "n\n", 3},
		{"empty answer", "\n", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, "ana@refugio.test", tt.answer)
			app.fill(t, monMorning, "user2", "user3", "admin1")

			require.NoError(t, app.run(t, ToggleCmd(app.AppContext), "2025-05-26_M"))
			assert.Len(t, app.assigned(t, monMorning), tt.want)
			assert.Contains(t, app.out.String(), "[y/N]")
			assert.Equal(t, 0, app.Assignments.PendingCount())
		})
	}
}

func TestUnassignCmd(t *testing.T) {
	t.Run("typed confirmation removes", func(t *testing.T) {
		app := newTestApp(t, "admin@refugio.test", "quitar\n")
		app.fill(t, monMorning, "user1")

		require.NoError(t, app.run(t, UnassignCmd(app.AppContext), "2025-05-26_M", "user1"))
		assert.Empty(t, app.assigned(t, monMorning))
		assert.Contains(t, app.out.String(), "Ana García")
	})

	t.Run("anything else cancels", func(t *testing.T) {
		app := newTestApp(t, "admin@refugio.test", "y\n")
		app.fill(t, monMorning, "user1")

		require.NoError(t, app.run(t, UnassignCmd(app.AppContext), "2025-05-26_M", "user1"))
		assert.Equal(t, []string{"user1"}, app.assigned(t, monMorning))
		assert.Contains(t, app.out.String(), "Cancelled")
	})

	t.Run("--yes skips the prompt", func(t *testing.T) {
		app := newTestApp(t, "admin@refugio.test", "")
		app.fill(t, monMorning, "user1")

		require.NoError(t, app.run(t, UnassignCmd(app.AppContext), "--yes", "2025-05-26_M", "user1"))
		assert.Empty(t, app.assigned(t, monMorning))
	})

	t.Run("volunteers are refused", func(t *testing.T) {
		app := newTestApp(t, "ana@refugio.test", "quitar\n")
		app.fill(t, monMorning, "user3")

		require.NoError(t, app.run(t, UnassignCmd(app.AppContext), "2025-05-26_M", "user3"))
		assert.Equal(t, []string{"user3"}, app.assigned(t, monMorning))
		assert.Contains(t, app.out.String(), "No tienes permisos")
	})
}

func TestAssignCmd(t *testing.T) {
	app := newTestApp(t, "admin@refugio.test", "")

	require.NoError(t, app.run(t, AssignCmd(app.AppContext), "2025-05-26_M", "user3"))
	assert.Equal(t, []string{"user3"}, app.assigned(t, monMorning))
	assert.Contains(t, app.out.String(), "Has asignado a María López")
}

func TestCalendarCmd(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "")
	app.fill(t, monMorning, "user1", "user2")

	require.NoError(t, app.run(t, CalendarCmd(app.AppContext), "2025-05-26"))
	out := app.out.String()
	assert.Contains(t, out, "lunes 2025-05-26")
	assert.Contains(t, out, "Ana (Tú)")
	assert.Contains(t, out, "Carlos [Responsable] tel:+34600000002")
}

func TestHistoryCmd(t *testing.T) {
	app := newTestApp(t, "admin@refugio.test", "")
	app.fill(t, monMorning, "user1", "user2")
	app.fill(t, model.SlotKey{Date: "2025-05-27", Period: model.PeriodAfternoon}, "user1")

	require.NoError(t, app.run(t, HistoryCmd(app.AppContext), "2025-05-01", "2025-05-31"))
	out := app.out.String()
	assert.Contains(t, out, "Attendance 2025-05-01 to 2025-05-31")
	assert.Less(t, strings.Index(out, "Ana"), strings.Index(out, "Carlos"))

	err := app.run(t, HistoryCmd(app.AppContext), "--export", "2025-05-01", "2025-05-31")
	assert.ErrorContains(t, err, "GOOGLE_CREDENTIALS_FILE")
}

func TestUsersCmd(t *testing.T) {
	app := newTestApp(t, "admin@refugio.test", "secreto1\nsecreto1\n")
	users := UsersCmd(app.AppContext)

	require.NoError(t, app.run(t, users, "create", "--phone", "600000004", "--roles", "lead", "pedro@refugio.test", "Pedro", "Sanz"))
	assert.Contains(t, app.out.String(), "User created")

	record, err := app.store.GetUserByEmail(context.Background(), "pedro@refugio.test")
	require.NoError(t, err)
	assert.Equal(t, "+34600000004", record.Phone)
	assert.Equal(t, []int16{int16(model.RoleLead)}, record.Roles)

	app.out.Reset()
	require.NoError(t, app.run(t, users, "list"))
	assert.Contains(t, app.out.String(), "Found 5 users")

	require.NoError(t, app.run(t, users, "disable", record.ID))
	disabled, err := app.store.GetUser(context.Background(), record.ID)
	require.NoError(t, err)
	assert.False(t, disabled.Enabled)

	require.NoError(t, app.run(t, users, "delete", "--yes", record.ID))
	_, err = app.store.GetUser(context.Background(), record.ID)
	assert.Error(t, err)

	assert.Error(t, app.run(t, users))
}

func TestResetTestDataCmd(t *testing.T) {
	app := newTestApp(t, "", "")
	app.fill(t, monMorning, "user1")

	require.NoError(t, app.run(t, ResetTestDataCmd(app.AppContext), "--password", "otra"))
	assert.Contains(t, app.out.String(), "Seeded 4 users")

	_, err := app.store.GetSlot(context.Background(), monMorning.ID())
	assert.Error(t, err)

	app.Cfg.Env = "prod"
	assert.ErrorIs(t, app.run(t, ResetTestDataCmd(app.AppContext)), services.ErrNotTestEnv)
}

func TestMigrateCmd_NeedsPostgres(t *testing.T) {
	app := newTestApp(t, "", "")
	assert.ErrorContains(t, app.run(t, MigrateCmd(app.AppContext)), "DATABASE_URL")
}

func TestInteractiveSession(t *testing.T) {
	app := newTestApp(t, "ana@refugio.test", "whoami\ntoggle 2025-05-26_M\nwhoami\nbogus\nexit\n")

	root := &cobra.Command{Use: "shelter"}
	interactive := InteractiveCmd(app.AppContext)
	root.AddCommand(interactive, ToggleCmd(app.AppContext))

	require.NoError(t, interactive.RunE(interactive, nil))

	out := app.out.String()
	assert.Contains(t, out, "Not signed in")
	assert.Contains(t, out, "Ana García <ana@refugio.test>")
	assert.Contains(t, out, "Unknown command: bogus")
	assert.Contains(t, out, "Goodbye!")
	assert.Equal(t, []string{"user1"}, app.assigned(t, monMorning))
}

func TestParseCommandLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    []string
		wantErr bool
	}{
		{"plain", "toggle 2025-05-26_M", []string{"toggle", "2025-05-26_M"}, false},
		{"double quotes", `users create a@b.c "María José" López`, []string{"users", "create", "a@b.c", "María José", "López"}, false},
		{"single quotes", `users create a@b.c 'Ana' 'de la Vega'`, []string{"users", "create", "a@b.c", "Ana", "de la Vega"}, false},
		{"extra spaces", "  history   2025-05-01  2025-05-31 ", []string{"history", "2025-05-01", "2025-05-31"}, false},
		{"unclosed", `users create "Ana`, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommandLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAttendanceColor(t *testing.T) {
	high, normal, low := "HIGH", "NORMAL", "LOW"

	tests := []struct {
		name        string
		total, best int
		expected    string
	}{
		{"best volunteer", 8, 8, high},
		{"more than half of best", 5, 8, high},
		{"half of best", 4, 8, normal},
		{"single shift", 1, 8, low},
		{"everyone did one", 1, 1, low},
		{"none", 0, 3, low},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, attendanceColor(tt.total, tt.best, high, normal, low))
		})
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "María  ", padRight("María", 7))
	assert.Equal(t, "Lucía", padRight("Lucía", 3))
}
