package db

import (
	"context"
	"errors"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert collides with an existing id or email
var ErrConflict = errors.New("record already exists")

// SlotStore defines the interface for shift slot operations
type SlotStore interface {
	// ListSlots returns all slots whose date falls within [from, to] (inclusive, YYYY-MM-DD)
	ListSlots(ctx context.Context, from, to string) ([]ShiftSlot, error)

	// GetSlot returns the slot with the given id, or ErrNotFound
	GetSlot(ctx context.Context, id string) (*ShiftSlot, error)

	// ModifyAssignment adds or removes uid from the slot's assignment set.
	// Adding a present uid and removing an absent one (or from a missing slot) are no-ops.
	ModifyAssignment(ctx context.Context, key model.SlotKey, uid string, intent model.Intent) error
}

// UserStore defines the interface for directory operations
type UserStore interface {
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	InsertUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	DeleteUser(ctx context.Context, id string) error
}

// Database defines the interface for all database operations.
// postgres.DB, memory.DB and cache.Store implement this interface.
type Database interface {
	SlotStore
	UserStore

	// Reset removes every user and slot. Only used by the test data reset.
	Reset(ctx context.Context) error

	Ping(ctx context.Context) error
}
