package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// PlaceholderName is shown for assignments whose user is no longer in the directory
const PlaceholderName = "Usuario desconocido"

// Directory is the in-memory join table from user id to profile
type Directory struct {
	users []model.User
	byID  map[string]*model.User
}

// LoadDirectory lists every user and computes display names
func LoadDirectory(ctx context.Context, store db.UserStore) (*Directory, error) {
	records, err := store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return NewDirectory(db.UsersToModel(records)), nil
}

func NewDirectory(users []model.User) *Directory {
	ComputeDisplayNames(users)
	d := &Directory{users: users, byID: make(map[string]*model.User, len(users))}
	for i := range d.users {
		d.byID[d.users[i].ID] = &d.users[i]
	}
	return d
}

// Lookup returns the user with id, or nil
func (d *Directory) Lookup(id string) *model.User {
	return d.byID[id]
}

// Resolve returns the user with id, or a placeholder entry when it is missing
func (d *Directory) Resolve(id string) (model.User, bool) {
	if u := d.byID[id]; u != nil {
		return *u, true
	}
	return model.User{ID: id, DisplayName: PlaceholderName, Roles: model.NewRoleSet(model.RoleVolunteer)}, false
}

func (d *Directory) Users() []model.User {
	return d.users
}

// ComputeDisplayNames sets DisplayName on each user.
// First name alone if unique, else first name plus last initial if unique, else full name.
func ComputeDisplayNames(users []model.User) {
	firstNameCounts := make(map[string]int)
	initialCounts := make(map[string]int)
	for _, u := range users {
		firstNameCounts[u.Name]++
		if key, ok := nameWithInitial(u); ok {
			initialCounts[key]++
		}
	}

	for i := range users {
		u := &users[i]
		if u.Name == "" {
			u.DisplayName = u.FullName()
			if u.DisplayName == "" {
				u.DisplayName = u.Email
			}
			continue
		}

		if firstNameCounts[u.Name] == 1 {
			u.DisplayName = u.Name
			continue
		}

		if key, ok := nameWithInitial(*u); ok && initialCounts[key] == 1 {
			u.DisplayName = key
			continue
		}

		u.DisplayName = u.FullName()
	}
}

func nameWithInitial(u model.User) (string, bool) {
	last := strings.TrimSpace(u.LastName)
	if last == "" {
		return "", false
	}
	initial, _ := utf8.DecodeRuneInString(last)
	return u.Name + " " + string(initial) + ".", true
}

// loadUser fetches one directory entry, mapping absence to ErrUserNotFound
func loadUser(ctx context.Context, store db.UserStore, id string) (*model.User, error) {
	record, err := store.GetUser(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	user := record.ToModel()
	return &user, nil
}
