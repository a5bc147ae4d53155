package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Role is a directory role. The numeric values match the codes stored in the
// roles column, so they must never be reordered.
type Role int16

const (
	RoleVolunteer Role = 0
	RoleLead      Role = 1 // "Responsable"
	RoleAdmin     Role = 2
)

var roleNames = map[Role]string{
	RoleVolunteer: "volunteer",
	RoleLead:      "lead",
	RoleAdmin:     "admin",
}

var roleLabels = map[Role]string{
	RoleVolunteer: "Voluntario",
	RoleLead:      "Responsable",
	RoleAdmin:     "Administrador",
}

func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", int16(r))
}

// Label returns the badge text shown next to a user's name
func (r Role) Label() string {
	return roleLabels[r]
}

// ParseRole accepts either a role name ("lead") or its label ("Responsable")
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	for role, name := range roleNames {
		if s == name || s == strings.ToLower(roleLabels[role]) {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RoleSet is a normalised set of roles. A user always holds at least one role:
// the zero value is treated as {Volunteer} by NormalizeRoles.
type RoleSet uint8

// NewRoleSet builds a set from the given roles, ignoring invalid ones
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// NormalizeRoles converts stored role codes into a RoleSet.
// Unknown codes are dropped and an empty result defaults to {Volunteer}.
func NormalizeRoles(codes []int16) RoleSet {
	var s RoleSet
	for _, c := range codes {
		s = s.With(Role(c))
	}
	if s == 0 {
		s = s.With(RoleVolunteer)
	}
	return s
}

func (s RoleSet) With(r Role) RoleSet {
	if !r.IsValid() {
		return s
	}
	return s | 1<<uint(r)
}

func (s RoleSet) Has(r Role) bool {
	return r.IsValid() && s&(1<<uint(r)) != 0
}

// Roles returns the members of the set in code order
func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(roleNames))
	for r := range roleNames {
		if s.Has(r) {
			roles = append(roles, r)
		}
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Codes returns the stored representation of the set
func (s RoleSet) Codes() []int16 {
	roles := s.Roles()
	codes := make([]int16, len(roles))
	for i, r := range roles {
		codes[i] = int16(r)
	}
	return codes
}

func (s RoleSet) String() string {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return strings.Join(names, ",")
}

func (s RoleSet) MarshalJSON() ([]byte, error) {
	roles := s.Roles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.String()
	}
	return json.Marshal(names)
}

// UnmarshalJSON accepts the shapes found in older clients: null, a bare
// number, a list of numbers or a list of role names.
func (s *RoleSet) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid roles: %w", err)
	}

	var set RoleSet
	switch v := raw.(type) {
	case nil:
	case float64:
		set = set.With(Role(v))
	case string:
		r, err := ParseRole(v)
		if err != nil {
			return err
		}
		set = set.With(r)
	case []any:
		for _, item := range v {
			switch iv := item.(type) {
			case float64:
				set = set.With(Role(iv))
			case string:
				r, err := ParseRole(iv)
				if err != nil {
					return err
				}
				set = set.With(r)
			default:
				return fmt.Errorf("invalid role entry %v", item)
			}
		}
	default:
		return fmt.Errorf("invalid roles value %s", string(data))
	}

	if set == 0 {
		set = set.With(RoleVolunteer)
	}
	*s = set
	return nil
}

// User is a directory entry joined onto assignments at read time
type User struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	LastName    string  `json:"lastName"`
	Phone       string  `json:"phone,omitempty"`
	Roles       RoleSet `json:"roles"`
	Enabled     bool    `json:"enabled"`
	DisplayName string  `json:"displayName,omitempty"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.Name + " " + u.LastName)
}

// ProfileComplete reports whether the user has both a name and a last name
func (u *User) ProfileComplete() bool {
	return strings.TrimSpace(u.Name) != "" && strings.TrimSpace(u.LastName) != ""
}

func (u *User) IsAdmin() bool {
	return u.Roles.Has(RoleAdmin)
}

func (u *User) IsLead() bool {
	return u.Roles.Has(RoleLead)
}

// Label returns the display name, falling back to the full name
func (u *User) Label() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.FullName()
}
