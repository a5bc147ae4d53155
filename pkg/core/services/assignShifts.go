package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/db"
	"github.com/jakechorley/shelter-shifts/pkg/events"
)

// DefaultPendingTTL is how long a confirmation stays open
const DefaultPendingTTL = 5 * time.Minute

// Notifier surfaces feedback to a session
type Notifier interface {
	Emit(session, text string, severity notify.Severity) notify.Message
}

// Mailer sends plain text e-mail
type Mailer interface {
	SendEmail(to, subject, body string) error
}

// Recorder observes assignment activity
type Recorder interface {
	Decision(d policy.Decision)
	Write(intent model.Intent, admin bool, err error)
	Rejection(reason string)
}

type nopRecorder struct{}

func (nopRecorder) Decision(policy.Decision) {}
func (nopRecorder) Write(model.Intent, bool, error) {}
func (nopRecorder) Rejection(string) {}

// Status is the end state of one interaction
type Status string

const (
	StatusApplied              Status = "applied"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusRejected             Status = "rejected"
	StatusCancelled            Status = "cancelled"
	StatusFailed               Status = "failed"
)

// PendingKind distinguishes the capacity prompt from the destructive admin prompt
type PendingKind string

const (
	PendingCapacity PendingKind = "capacity"
	PendingRemoval  PendingKind = "removal"
)

// Pending is an intent waiting for the actor to confirm or cancel it
type Pending struct {
	ID        string        `json:"id"`
	Kind      PendingKind   `json:"kind"`
	Key       model.SlotKey `json:"key"`
	UserID    string        `json:"uid"`
	ActorID   string        `json:"actor"`
	Prompt    string        `json:"prompt"`
	ExpiresAt time.Time     `json:"expiresAt"`

	targetName  string
	targetEmail string
}

// Outcome is the result of a toggle, confirmation or admin action
type Outcome struct {
	Status  Status          `json:"status"`
	Intent  model.Intent    `json:"intent,omitempty"`
	Notice  *notify.Message `json:"notice,omitempty"`
	Pending *Pending        `json:"pending,omitempty"`
	Reason  error           `json:"-"`
}

// AssignmentService runs the self-service and admin assignment flows
type AssignmentService struct {
	store     db.Database
	calendar  *calendar.Calendar
	notifier  Notifier
	publisher events.Publisher
	logger    *zap.Logger

	// Optional collaborators
	Mailer  Mailer
	Metrics Recorder

	PendingTTL time.Duration
	Now        func() time.Time

	mu      sync.Mutex
	busy    map[string]struct{}
	pending map[string]*Pending
}

func NewAssignmentService(store db.Database, cal *calendar.Calendar, notifier Notifier, publisher events.Publisher, logger *zap.Logger) *AssignmentService {
	return &AssignmentService{
		store:      store,
		calendar:   cal,
		notifier:   notifier,
		publisher:  publisher,
		logger:     logger,
		Metrics:    nopRecorder{},
		PendingTTL: DefaultPendingTTL,
		Now:        time.Now,
		busy:       make(map[string]struct{}),
		pending:    make(map[string]*Pending),
	}
}

// ToggleShift adds the actor to the slot, or removes them if already assigned.
// Over-capacity adds return a pending confirmation instead of writing.
func (s *AssignmentService) ToggleShift(ctx context.Context, session string, actor *model.User, key model.SlotKey) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// Session and profile checks come before anything touches the store
	if err := policy.CheckActor(actor); err != nil {
		s.logger.Debug("Toggle rejected by actor check", zap.String("slot", key.ID()), zap.Error(err))
		return s.reject(session, err, rejectionText(err), notify.Warning), nil
	}

	// Guard against a duplicate submission for the same slot and user
	release, ok := s.acquire(key.BusyKey(actor.ID))
	if !ok {
		return &Outcome{Status: StatusRejected, Reason: ErrBusy}, nil
	}
	defer release()

	// Fetch the current assignments and the capacity that applies that day
	slot, err := s.loadSlot(ctx, key)
	if err != nil {
		return s.fail(session, err), err
	}

	rule, err := s.calendar.Rule(key)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve slot rule: %w", err)
	}

	decision := policy.Decide(slot, actor.ID, rule.Capacity)
	s.Metrics.Decision(decision)
	s.logger.Debug("Toggle decision",
		zap.String("slot", key.ID()),
		zap.String("uid", actor.ID),
		zap.Int("count", slot.Count()),
		zap.Int("capacity", rule.Capacity),
		zap.Bool("closed", rule.Closed),
		zap.Stringer("decision", decision))

	switch decision {
	case policy.AutoRemove:
		// Leaving a shift never asks, even on a closed day
		if err := s.write(ctx, key, actor.ID, model.IntentRemove, actor.ID, false); err != nil {
			return s.fail(session, err), err
		}
		return s.applied(session, model.IntentRemove, msgSelfRemoved(key), notify.Info), nil

	case policy.AutoAdd:
		if rule.Closed {
			return s.reject(session, ErrSlotClosed, msgClosed(key), notify.Warning), nil
		}
		if err := s.write(ctx, key, actor.ID, model.IntentAdd, actor.ID, false); err != nil {
			return s.fail(session, err), err
		}
		return s.applied(session, model.IntentAdd, msgSelfAdded(key), notify.Success), nil

	default:
		if rule.Closed {
			return s.reject(session, ErrSlotClosed, msgClosed(key), notify.Warning), nil
		}
		// At or over capacity: nothing is written until the actor confirms
		p := s.openPending(PendingCapacity, key, actor.ID, actor.ID, msgOverCapacity(key, slot.Count(), rule.Capacity))
		return &Outcome{Status: StatusAwaitingConfirmation, Intent: model.IntentAdd, Pending: p}, nil
	}
}

// Confirm completes a pending intent owned by the actor
func (s *AssignmentService) Confirm(ctx context.Context, session string, actor *model.User, pendingID string) (*Outcome, error) {
	if actor == nil {
		return s.reject(session, policy.ErrNotAuthenticated, msgNotAuthenticated, notify.Warning), nil
	}

	// Pendings are single use and only their owner may complete them
	p, ok := s.takePending(pendingID, actor.ID)
	if !ok {
		return s.reject(session, ErrPendingNotFound, msgPendingExpired, notify.Warning), nil
	}

	switch p.Kind {
	case PendingCapacity:
		if err := policy.CheckActor(actor); err != nil {
			return s.reject(session, err, rejectionText(err), notify.Warning), nil
		}

		release, ok := s.acquire(p.Key.BusyKey(p.UserID))
		if !ok {
			return &Outcome{Status: StatusRejected, Reason: ErrBusy}, nil
		}
		defer release()

		if err := s.write(ctx, p.Key, p.UserID, model.IntentAdd, actor.ID, false); err != nil {
			return s.fail(session, err), err
		}
		return s.applied(session, model.IntentAdd, msgSelfAdded(p.Key), notify.Success), nil

	case PendingRemoval:
		if err := policy.RequireAdmin(actor); err != nil {
			return s.reject(session, err, rejectionText(err), notify.Warning), nil
		}

		release, ok := s.acquire(p.Key.BusyKey(p.UserID))
		if !ok {
			return &Outcome{Status: StatusRejected, Reason: ErrBusy}, nil
		}
		defer release()

		if err := s.write(ctx, p.Key, p.UserID, model.IntentRemove, actor.ID, true); err != nil {
			return s.fail(session, err), err
		}
		s.mailOverride(p.targetEmail, p.targetName, p.Key, false)
		return s.applied(session, model.IntentRemove, msgAdminRemoved(p.targetName, p.Key), notify.Info), nil
	}

	return nil, fmt.Errorf("unknown pending kind %q", p.Kind)
}

// Cancel discards a pending intent. Nothing is written and nothing is emitted.
func (s *AssignmentService) Cancel(ctx context.Context, actor *model.User, pendingID string) (*Outcome, error) {
	if actor == nil {
		return nil, policy.ErrNotAuthenticated
	}
	p, ok := s.takePending(pendingID, actor.ID)
	if !ok {
		return nil, ErrPendingNotFound
	}

	s.logger.Debug("Pending intent cancelled", zap.String("id", p.ID), zap.String("slot", p.Key.ID()))
	return &Outcome{Status: StatusCancelled}, nil
}

// AdminAssign adds uid to the slot without the capacity prompt or closure check
func (s *AssignmentService) AdminAssign(ctx context.Context, session string, actor *model.User, key model.SlotKey, uid string) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := policy.RequireAdmin(actor); err != nil {
		return s.reject(session, err, rejectionText(err), notify.Warning), nil
	}

	// The target must exist in the directory
	target, err := loadUser(ctx, s.store, uid)
	if errors.Is(err, ErrUserNotFound) {
		s.logger.Info("Admin assign for unknown user", zap.String("slot", key.ID()), zap.String("uid", uid))
		return s.reject(session, ErrUserNotFound, msgUserNotFound, notify.Error), nil
	}
	if err != nil {
		return s.fail(session, err), err
	}

	release, ok := s.acquire(key.BusyKey(uid))
	if !ok {
		return &Outcome{Status: StatusRejected, Reason: ErrBusy}, nil
	}
	defer release()

	if err := s.write(ctx, key, uid, model.IntentAdd, actor.ID, true); err != nil {
		return s.fail(session, err), err
	}

	// Let the volunteer know someone else changed their shifts
	s.mailOverride(target.Email, target.FullName(), key, true)
	return s.applied(session, model.IntentAdd, msgAdminAdded(target.FullName(), key), notify.Success), nil
}

// AdminRequestRemoval opens the destructive confirmation for removing uid.
// A uid missing from the directory can still be removed.
func (s *AssignmentService) AdminRequestRemoval(ctx context.Context, session string, actor *model.User, key model.SlotKey, uid string) (*Outcome, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := policy.RequireAdmin(actor); err != nil {
		return s.reject(session, err, rejectionText(err), notify.Warning), nil
	}

	// Resolve the name for the prompt; deleted users show as the placeholder
	name, email := PlaceholderName, ""
	target, err := loadUser(ctx, s.store, uid)
	switch {
	case err == nil:
		name, email = target.FullName(), target.Email
	case !errors.Is(err, ErrUserNotFound):
		return s.fail(session, err), err
	}

	p := s.openPending(PendingRemoval, key, uid, actor.ID, msgAdminRemovalPrompt(name, key))
	p.targetName, p.targetEmail = name, email
	return &Outcome{Status: StatusAwaitingConfirmation, Intent: model.IntentRemove, Pending: p}, nil
}

// PendingCount reports the number of open confirmations
func (s *AssignmentService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.pending)
}

func (s *AssignmentService) loadSlot(ctx context.Context, key model.SlotKey) (*model.Slot, error) {
	record, err := s.store.GetSlot(ctx, key.ID())
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get slot %s: %w", key.ID(), err)
	}
	slot, err := record.ToModel()
	if err != nil {
		return nil, err
	}
	return &slot, nil
}

// write goes through the store accessor, then publishes the change
func (s *AssignmentService) write(ctx context.Context, key model.SlotKey, uid string, intent model.Intent, actorID string, admin bool) error {
	err := s.store.ModifyAssignment(ctx, key, uid, intent)
	s.Metrics.Write(intent, admin, err)
	if err != nil {
		s.logger.Error("Assignment write failed",
			zap.String("slot", key.ID()),
			zap.String("uid", uid),
			zap.String("intent", string(intent)),
			zap.Error(err))
		return fmt.Errorf("failed to modify assignment: %w", err)
	}

	s.logger.Info("Assignment written",
		zap.String("slot", key.ID()),
		zap.String("uid", uid),
		zap.String("intent", string(intent)),
		zap.String("actor", actorID),
		zap.Bool("admin", admin))

	// Publish the change; a broker failure does not undo the write
	evt := events.AssignmentChanged{
		Slot:   key.ID(),
		UID:    uid,
		Intent: intent,
		Actor:  actorID,
		Admin:  admin,
		At:     s.Now().UTC(),
	}
	if err := s.publisher.PublishAssignmentChanged(ctx, evt); err != nil {
		s.logger.Warn("Failed to publish assignment event", zap.String("slot", key.ID()), zap.Error(err))
	}
	return nil
}

func (s *AssignmentService) mailOverride(to, name string, key model.SlotKey, added bool) {
	if s.Mailer == nil || to == "" {
		return
	}
	subject, body := overrideEmail(name, key, added)
	if err := s.Mailer.SendEmail(to, subject, body); err != nil {
		s.logger.Warn("Failed to send override e-mail", zap.String("to", to), zap.Error(err))
	}
}

func (s *AssignmentService) applied(session string, intent model.Intent, text string, severity notify.Severity) *Outcome {
	msg := s.notifier.Emit(session, text, severity)
	return &Outcome{Status: StatusApplied, Intent: intent, Notice: &msg}
}

func (s *AssignmentService) reject(session string, reason error, text string, severity notify.Severity) *Outcome {
	s.Metrics.Rejection(reasonLabel(reason))
	msg := s.notifier.Emit(session, text, severity)
	return &Outcome{Status: StatusRejected, Notice: &msg, Reason: reason}
}

func (s *AssignmentService) fail(session string, err error) *Outcome {
	msg := s.notifier.Emit(session, msgWriteFailed(err), notify.Error)
	return &Outcome{Status: StatusFailed, Notice: &msg, Reason: err}
}

// acquire marks key busy; the returned func must be called to release it
func (s *AssignmentService) acquire(key string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.busy[key]; ok {
		return nil, false
	}
	s.busy[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.busy, key)
		s.mu.Unlock()
	}, true
}

func (s *AssignmentService) openPending(kind PendingKind, key model.SlotKey, uid, actorID, prompt string) *Pending {
	p := &Pending{
		ID:        uuid.NewString(),
		Kind:      kind,
		Key:       key,
		UserID:    uid,
		ActorID:   actorID,
		Prompt:    prompt,
		ExpiresAt: s.Now().Add(s.PendingTTL),
	}

	s.mu.Lock()
	s.purgeLocked()
	s.pending[p.ID] = p
	s.mu.Unlock()

	s.logger.Debug("Opened pending confirmation",
		zap.String("id", p.ID),
		zap.String("kind", string(kind)),
		zap.String("slot", key.ID()),
		zap.String("uid", uid))
	return p
}

// takePending removes and returns the actor's pending intent if it is still live
func (s *AssignmentService) takePending(id, actorID string) (*Pending, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()
	p, ok := s.pending[id]
	if !ok || p.ActorID != actorID {
		return nil, false
	}
	delete(s.pending, id)
	return p, true
}

func (s *AssignmentService) purgeLocked() {
	now := s.Now()
	for id, p := range s.pending {
		if now.After(p.ExpiresAt) {
			delete(s.pending, id)
		}
	}
}

func reasonLabel(err error) string {
	switch {
	case errors.Is(err, policy.ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, policy.ErrProfileIncomplete):
		return "profile_incomplete"
	case errors.Is(err, policy.ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, ErrSlotClosed):
		return "closed"
	case errors.Is(err, ErrPendingNotFound):
		return "pending_not_found"
	}
	return "other"
}
