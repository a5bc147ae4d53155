package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
)

func TestToggleShift_UnderCapacityAddsWithoutConfirmation(t *testing.T) {
	for _, existing := range [][]model.User{nil, {ana}, {ana, carlos}} {
		f := newFixture(t)
		f.seed(t, monMorning, existing...)

		out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
		require.NoError(t, err)

		assert.Equal(t, StatusApplied, out.Status)
		assert.Equal(t, model.IntentAdd, out.Intent)
		assert.Nil(t, out.Pending)
		require.NotNil(t, out.Notice)
		assert.Equal(t, notify.Success, out.Notice.Severity)
		assert.Equal(t, 1, f.store.writes)
		assert.Contains(t, f.assigned(t, monMorning), maria.ID)
		assert.Len(t, f.assigned(t, monMorning), len(existing)+1)
	}
}

func TestToggleShift_CarlosJoinsAnasSlot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana)

	out, err := f.svc.ToggleShift(context.Background(), "s1", &carlos, monMorning)
	require.NoError(t, err)

	assert.Equal(t, []string{"user1", "user2"}, f.assigned(t, monMorning))
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, notify.Success, out.Notice.Severity)
	assert.Contains(t, out.Notice.Text, "asignado al turno")
	assert.Equal(t, "Te has asignado al turno de mañana del lunes 26/05/2025.", out.Notice.Text)

	require.Len(t, f.publisher.events, 1)
	evt := f.publisher.events[0]
	assert.Equal(t, "2025-05-26_M", evt.Slot)
	assert.Equal(t, "user2", evt.UID)
	assert.Equal(t, model.IntentAdd, evt.Intent)
	assert.False(t, evt.Admin)
}

func TestToggleShift_MariaFourthAssigneeConfirms(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana, carlos, pedro)
	ctx := context.Background()

	out, err := f.svc.ToggleShift(ctx, "s1", &maria, monMorning)
	require.NoError(t, err)

	assert.Equal(t, StatusAwaitingConfirmation, out.Status)
	require.NotNil(t, out.Pending)
	assert.Equal(t, PendingCapacity, out.Pending.Kind)
	assert.Contains(t, out.Pending.Prompt, "ya tiene 3 personas")
	assert.Nil(t, out.Notice)
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, 0, f.notifier.count())

	confirmed, err := f.svc.Confirm(ctx, "s1", &maria, out.Pending.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, confirmed.Status)
	assert.Equal(t, notify.Success, confirmed.Notice.Severity)
	assert.Equal(t, 1, f.store.writes)
	assert.Len(t, f.assigned(t, monMorning), 4)

	// The pending intent is consumed
	again, err := f.svc.Confirm(ctx, "s1", &maria, out.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, again.Status)
	assert.ErrorIs(t, again.Reason, ErrPendingNotFound)
	assert.Equal(t, 1, f.store.writes)
}

func TestToggleShift_MariaFourthAssigneeCancels(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana, carlos, pedro)
	ctx := context.Background()

	out, err := f.svc.ToggleShift(ctx, "s1", &maria, monMorning)
	require.NoError(t, err)
	require.NotNil(t, out.Pending)

	cancelled, err := f.svc.Cancel(ctx, &maria, out.Pending.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Nil(t, cancelled.Notice)
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, 0, f.notifier.count())
	assert.Len(t, f.assigned(t, monMorning), 3)
	assert.Equal(t, 0, f.svc.PendingCount())
}

func TestToggleShift_SelfRemovalNeverConfirms(t *testing.T) {
	for _, size := range []int{1, 3, 5} {
		f := newFixture(t)
		all := []model.User{maria, ana, carlos, pedro, lucia}
		f.seed(t, monMorning, all[:size]...)

		out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
		require.NoError(t, err)

		assert.Equal(t, StatusApplied, out.Status, "size %d", size)
		assert.Equal(t, model.IntentRemove, out.Intent)
		assert.Nil(t, out.Pending)
		assert.Equal(t, notify.Info, out.Notice.Severity)
		assert.NotContains(t, f.assigned(t, monMorning), maria.ID)
		assert.Equal(t, 1, f.store.writes)
	}
}

func TestToggleShift_ActorChecksPrecedeCapacity(t *testing.T) {
	incomplete := model.User{ID: "user9", Name: "Sin", Roles: model.NewRoleSet(model.RoleVolunteer)}

	tests := []struct {
		name     string
		actor    *model.User
		expected error
		text     string
	}{
		{"no session", nil, policy.ErrNotAuthenticated, msgNotAuthenticated},
		{"missing last name", &incomplete, policy.ErrProfileIncomplete, msgProfileIncomplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			out, err := f.svc.ToggleShift(context.Background(), "s1", tt.actor, monMorning)
			require.NoError(t, err)

			assert.Equal(t, StatusRejected, out.Status)
			assert.ErrorIs(t, out.Reason, tt.expected)
			assert.Equal(t, notify.Warning, out.Notice.Severity)
			assert.Equal(t, tt.text, out.Notice.Text)
			assert.Equal(t, 0, f.store.writes)
		})
	}
}

func TestToggleShift_InvalidKey(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ToggleShift(context.Background(), "s1", &ana, model.SlotKey{Date: "26/05/2025", Period: model.PeriodMorning})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestToggleShift_ClosedSlot(t *testing.T) {
	closed := calendar.Override{RRule: "FREQ=WEEKLY;BYDAY=TU", Closed: true}
	f := newFixture(t, closed)
	f.seed(t, tueMorning, ana)
	ctx := context.Background()

	out, err := f.svc.ToggleShift(ctx, "s1", &maria, tueMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, ErrSlotClosed)
	assert.Equal(t, notify.Warning, out.Notice.Severity)
	assert.Contains(t, out.Notice.Text, "cerrado")
	assert.Equal(t, 0, f.store.writes)

	// Leaving a closed slot is still allowed
	out, err = f.svc.ToggleShift(ctx, "s1", &ana, tueMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Empty(t, f.assigned(t, tueMorning))

	// Admins bypass the closure
	out, err = f.svc.AdminAssign(ctx, "s2", &admin, tueMorning, maria.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, []string{maria.ID}, f.assigned(t, tueMorning))
}

func TestToggleShift_CapacityOverride(t *testing.T) {
	f := newFixture(t, calendar.Override{RRule: "FREQ=WEEKLY;BYDAY=WE", Period: model.PeriodMorning, Capacity: ptr(1)})
	f.seed(t, wedMorning, ana)

	out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, wedMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingConfirmation, out.Status)
	assert.Contains(t, out.Pending.Prompt, "máximo recomendado: 1")
}

func TestToggleShift_Busy(t *testing.T) {
	f := newFixture(t)
	release, ok := f.svc.acquire(monMorning.BusyKey(maria.ID))
	require.True(t, ok)

	out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, ErrBusy)
	assert.Equal(t, 0, f.store.writes)

	// Other users are not blocked by maria's key
	out, err = f.svc.ToggleShift(context.Background(), "s2", &ana, monMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)

	release()
	out, err = f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
}

func TestToggleShift_StoreFailureReleasesBusyKey(t *testing.T) {
	f := newFixture(t)
	f.store.modifyErr = errors.New("connection refused")

	out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.Error(t, err)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, notify.Error, out.Notice.Severity)
	assert.Contains(t, out.Notice.Text, "connection refused")
	assert.Empty(t, f.publisher.events)

	f.store.modifyErr = nil
	out, err = f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
}

func TestToggleShift_ReadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.getErr = errors.New("timeout")

	out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, out.Status)
	assert.Equal(t, 0, f.store.writes)
}

func TestToggleShift_PublishFailureDoesNotFailWrite(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("broker down")

	out, err := f.svc.ToggleShift(context.Background(), "s1", &maria, monMorning)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
	assert.Equal(t, []string{maria.ID}, f.assigned(t, monMorning))
}

func TestConfirm_ExpiredOrForeign(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana, carlos, pedro)
	now := time.Date(2025, 5, 20, 10, 0, 0, 0, time.UTC)
	f.svc.Now = func() time.Time { return now }
	ctx := context.Background()

	out, err := f.svc.ToggleShift(ctx, "s1", &maria, monMorning)
	require.NoError(t, err)
	id := out.Pending.ID

	// Another user cannot confirm maria's prompt
	foreign, err := f.svc.Confirm(ctx, "s2", &lucia, id)
	require.NoError(t, err)
	assert.ErrorIs(t, foreign.Reason, ErrPendingNotFound)

	_, err = f.svc.Cancel(ctx, &lucia, id)
	assert.ErrorIs(t, err, ErrPendingNotFound)

	now = now.Add(DefaultPendingTTL + time.Second)
	expired, err := f.svc.Confirm(ctx, "s1", &maria, id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, expired.Status)
	assert.ErrorIs(t, expired.Reason, ErrPendingNotFound)
	assert.Equal(t, msgPendingExpired, expired.Notice.Text)
	assert.Equal(t, 0, f.store.writes)
}

func TestAdminAssign_BypassesCapacity(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana, carlos, pedro)

	out, err := f.svc.AdminAssign(context.Background(), "s1", &admin, monMorning, maria.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, out.Status)
	assert.Nil(t, out.Pending)
	assert.Equal(t, notify.Success, out.Notice.Severity)
	assert.Equal(t, "Has asignado a María López al turno de mañana del lunes 26/05/2025.", out.Notice.Text)
	assert.Len(t, f.assigned(t, monMorning), 4)

	require.Len(t, f.publisher.events, 1)
	assert.True(t, f.publisher.events[0].Admin)
	assert.Equal(t, admin.ID, f.publisher.events[0].Actor)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, maria.Email, f.mailer.sent[0].to)
	assert.Contains(t, f.mailer.sent[0].body, "mañana del lunes 26/05/2025")
}

func TestAdminAssign_UnknownUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.DeleteUser(context.Background(), carlos.ID))

	out, err := f.svc.AdminAssign(context.Background(), "s1", &admin, monMorning, "user2")
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, ErrUserNotFound)
	assert.Equal(t, notify.Error, out.Notice.Severity)
	assert.Equal(t, "Usuario no encontrado.", out.Notice.Text)
	assert.Equal(t, 0, f.store.writes)
	assert.Empty(t, f.mailer.sent)
}

func TestAdminAssign_RequiresAdmin(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.AdminAssign(context.Background(), "s1", &carlos, monMorning, maria.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, out.Status)
	assert.ErrorIs(t, out.Reason, policy.ErrForbidden)
	assert.Equal(t, msgForbidden, out.Notice.Text)
	assert.Equal(t, 0, f.store.writes)
}

func TestAdminRemoval_RequiresDestructiveConfirmation(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, ana, maria)
	ctx := context.Background()

	out, err := f.svc.AdminRequestRemoval(ctx, "s1", &admin, monMorning, maria.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusAwaitingConfirmation, out.Status)
	assert.Equal(t, model.IntentRemove, out.Intent)
	require.NotNil(t, out.Pending)
	assert.Equal(t, PendingRemoval, out.Pending.Kind)
	assert.Equal(t, "¿Seguro que quieres quitar a María López del turno de mañana del lunes 26/05/2025?", out.Pending.Prompt)
	assert.Equal(t, 0, f.store.writes)

	done, err := f.svc.Confirm(ctx, "s1", &admin, out.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, done.Status)
	assert.Equal(t, notify.Info, done.Notice.Severity)
	assert.Equal(t, []string{ana.ID}, f.assigned(t, monMorning))

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "Te han quitado de un turno", f.mailer.sent[0].subject)
}

func TestAdminRemoval_Cancel(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, maria)
	ctx := context.Background()

	out, err := f.svc.AdminRequestRemoval(ctx, "s1", &admin, monMorning, maria.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(ctx, &admin, out.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{maria.ID}, f.assigned(t, monMorning))
	assert.Equal(t, 0, f.store.writes)
	assert.Equal(t, 0, f.notifier.count())
}

func TestAdminRemoval_AbsentUserIsNoOp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Neither the slot nor the assignment exist
	out, err := f.svc.AdminRequestRemoval(ctx, "s1", &admin, monMorning, lucia.ID)
	require.NoError(t, err)

	done, err := f.svc.Confirm(ctx, "s1", &admin, out.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, done.Status)
	assert.Equal(t, notify.Info, done.Notice.Severity)
	assert.Empty(t, f.assigned(t, monMorning))
}

func TestAdminRemoval_DeletedUserUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, pedro)
	ctx := context.Background()
	require.NoError(t, f.store.DeleteUser(ctx, pedro.ID))

	out, err := f.svc.AdminRequestRemoval(ctx, "s1", &admin, monMorning, pedro.ID)
	require.NoError(t, err)
	assert.Contains(t, out.Pending.Prompt, PlaceholderName)

	_, err = f.svc.Confirm(ctx, "s1", &admin, out.Pending.ID)
	require.NoError(t, err)
	assert.Empty(t, f.assigned(t, monMorning))
	assert.Empty(t, f.mailer.sent)
}

func TestAdminRemoval_ConfirmRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	f.seed(t, monMorning, maria)
	ctx := context.Background()

	out, err := f.svc.AdminRequestRemoval(ctx, "s1", &admin, monMorning, maria.ID)
	require.NoError(t, err)

	// Same id, roles revoked since the prompt was opened
	demoted := admin
	demoted.Roles = model.NewRoleSet(model.RoleVolunteer)
	res, err := f.svc.Confirm(ctx, "s1", &demoted, out.Pending.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, res.Reason, policy.ErrForbidden)
	assert.Equal(t, []string{maria.ID}, f.assigned(t, monMorning))
}

func TestMailerFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	f.mailer.err = errors.New("quota exceeded")

	out, err := f.svc.AdminAssign(context.Background(), "s1", &admin, monMorning, maria.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, out.Status)
}

type recordingMetrics struct {
	decisions  []policy.Decision
	writes     int
	rejections []string
}

func (r *recordingMetrics) Decision(d policy.Decision) { r.decisions = append(r.decisions, d) }
func (r *recordingMetrics) Write(model.Intent, bool, error) { r.writes++ }
func (r *recordingMetrics) Rejection(reason string) { r.rejections = append(r.rejections, reason) }

func TestMetricsRecorder(t *testing.T) {
	f := newFixture(t)
	m := &recordingMetrics{}
	f.svc.Metrics = m
	ctx := context.Background()

	_, err := f.svc.ToggleShift(ctx, "s1", &maria, monMorning)
	require.NoError(t, err)
	_, err = f.svc.ToggleShift(ctx, "s1", nil, monMorning)
	require.NoError(t, err)

	assert.Equal(t, []policy.Decision{policy.AutoAdd}, m.decisions)
	assert.Equal(t, 1, m.writes)
	assert.Equal(t, []string{"not_authenticated"}, m.rejections)
}
