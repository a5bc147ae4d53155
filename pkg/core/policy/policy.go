package policy

import (
	"errors"
	"strings"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// DefaultCapacity is the recommended maximum number of assignees per slot
const DefaultCapacity = 3

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrProfileIncomplete = errors.New("profile incomplete")
	ErrForbidden         = errors.New("forbidden")
)

// Decision is the outcome of evaluating a self-service toggle on a slot
type Decision int

const (
	AutoAdd Decision = iota
	AutoRemove
	RequireConfirmation
)

func (d Decision) String() string {
	switch d {
	case AutoAdd:
		return "auto_add"
	case AutoRemove:
		return "auto_remove"
	case RequireConfirmation:
		return "require_confirmation"
	}
	return "unknown"
}

// CheckActor runs the session and profile checks that precede any capacity
// evaluation. A nil actor means there is no session.
func CheckActor(actor *model.User) error {
	if actor == nil || actor.ID == "" {
		return ErrNotAuthenticated
	}
	if !actor.ProfileComplete() {
		return ErrProfileIncomplete
	}
	return nil
}

// RequireAdmin gates override actions and user management
func RequireAdmin(actor *model.User) error {
	if actor == nil || actor.ID == "" {
		return ErrNotAuthenticated
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

// Decide applies the capacity rule. A threshold below 1 falls back to DefaultCapacity.
func Decide(slot *model.Slot, actorID string, threshold int) Decision {
	if threshold < 1 {
		threshold = DefaultCapacity
	}
	if slot.Has(actorID) {
		return AutoRemove
	}
	if slot.Count() < threshold {
		return AutoAdd
	}
	return RequireConfirmation
}

// CanContact reports whether actor may see target's contact details.
// slot is the slot target is assigned to.
func CanContact(actor, target *model.User, slot *model.Slot) bool {
	if actor == nil || target == nil || actor.ID == target.ID {
		return false
	}
	if actor.IsAdmin() || actor.IsLead() {
		return true
	}
	return slot.Has(actor.ID) && slot.Has(target.ID) && target.IsLead()
}

// ContactState describes what the UI shows next to an assignee
type ContactState string

const (
	ContactSelf      ContactState = "self"
	ContactHidden    ContactState = "hidden"
	ContactNoPhone   ContactState = "no_phone"
	ContactAvailable ContactState = "available"
)

// Contact is the contact affordance for one assignee as seen by one actor
type Contact struct {
	State       ContactState `json:"state"`
	Phone       string       `json:"phone,omitempty"`
	TelURL      string       `json:"telUrl,omitempty"`
	WhatsAppURL string       `json:"whatsappUrl,omitempty"`
}

// ContactFor resolves the contact state of target for actor
func ContactFor(actor, target *model.User, slot *model.Slot) Contact {
	if actor != nil && target != nil && actor.ID == target.ID {
		return Contact{State: ContactSelf}
	}
	if !CanContact(actor, target, slot) {
		return Contact{State: ContactHidden}
	}

	digits := phoneDigits(target.Phone)
	if digits == "" {
		return Contact{State: ContactNoPhone}
	}
	return Contact{
		State:       ContactAvailable,
		Phone:       target.Phone,
		TelURL:      "tel:+" + digits,
		WhatsAppURL: "https://wa.me/" + digits,
	}
}

func phoneDigits(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
