package db

import (
	"fmt"
	"time"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// AssignmentRecord is one element of a slot's assignments array
type AssignmentRecord struct {
	UID string `json:"uid"`
}

// ShiftSlot represents a stored shift slot document, keyed by "{date}_{shift}"
type ShiftSlot struct {
	ID          string             `json:"id"`
	Date        string             `json:"date"`
	Shift       string             `json:"shift"`
	Assignments []AssignmentRecord `json:"assignments"`
	LastUpdated time.Time          `json:"lastUpdated"`
}

// ToModel converts the record into a domain slot
func (s ShiftSlot) ToModel() (model.Slot, error) {
	key := model.SlotKey{Date: s.Date, Period: model.Period(s.Shift)}
	if err := key.Validate(); err != nil {
		return model.Slot{}, fmt.Errorf("invalid slot record %s: %w", s.ID, err)
	}

	assignments := make([]model.Assignment, 0, len(s.Assignments))
	for _, a := range s.Assignments {
		assignments = append(assignments, model.Assignment{UserID: a.UID})
	}

	return model.Slot{
		Key:         key,
		Assignments: assignments,
		LastUpdated: s.LastUpdated,
	}, nil
}

// User represents a stored directory entry.
// PasswordHash is left out of its JSON form so cached listings never carry it.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	LastName     string    `json:"lastName"`
	Phone        string    `json:"phone"`
	Roles        []int16   `json:"roles"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToModel converts the record into a domain user with normalised roles
func (u User) ToModel() model.User {
	return model.User{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		LastName: u.LastName,
		Phone:    u.Phone,
		Roles:    model.NormalizeRoles(u.Roles),
		Enabled:  u.Enabled,
	}
}

// UsersToModel converts a list of records
func UsersToModel(records []User) []model.User {
	users := make([]model.User, len(records))
	for i, r := range records {
		users[i] = r.ToModel()
	}
	return users
}
