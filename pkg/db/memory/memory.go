package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// DB is an in-memory implementation of db.Database.
// It is used by tests and by the test environment when no DATABASE_URL is set.
type DB struct {
	mu    sync.RWMutex
	slots map[string]*db.ShiftSlot
	users map[string]*db.User

	// Now stamps lastUpdated on writes. Defaults to time.Now.
	Now func() time.Time
}

var _ db.Database = (*DB)(nil)

// NewDB creates an empty in-memory database
func NewDB() *DB {
	return &DB{
		slots: make(map[string]*db.ShiftSlot),
		users: make(map[string]*db.User),
		Now:   time.Now,
	}
}

func (m *DB) Ping(ctx context.Context) error {
	return nil
}

func (m *DB) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.slots = make(map[string]*db.ShiftSlot)
	m.users = make(map[string]*db.User)
	return nil
}

// ListSlots returns copies of the slots in the date range, ordered by id
func (m *DB) ListSlots(ctx context.Context, from, to string) ([]db.ShiftSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slots := make([]db.ShiftSlot, 0)
	for _, s := range m.slots {
		if s.Date >= from && s.Date <= to {
			slots = append(slots, copySlot(s))
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	return slots, nil
}

func (m *DB) GetSlot(ctx context.Context, id string) (*db.ShiftSlot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.slots[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	c := copySlot(s)
	return &c, nil
}

func (m *DB) ModifyAssignment(ctx context.Context, key model.SlotKey, uid string, intent model.Intent) error {
	if err := key.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := key.ID()
	slot, exists := m.slots[id]

	switch intent {
	case model.IntentAdd:
		if !exists {
			slot = &db.ShiftSlot{ID: id, Date: key.Date, Shift: string(key.Period)}
			m.slots[id] = slot
		}
		if !hasUID(slot.Assignments, uid) {
			slot.Assignments = append(slot.Assignments, db.AssignmentRecord{UID: uid})
		}
		slot.LastUpdated = m.Now()
	case model.IntentRemove:
		if !exists {
			return nil
		}
		kept := slot.Assignments[:0]
		for _, a := range slot.Assignments {
			if a.UID != uid {
				kept = append(kept, a)
			}
		}
		slot.Assignments = kept
		slot.LastUpdated = m.Now()
	default:
		return fmt.Errorf("unknown intent %q", intent)
	}

	return nil
}

func (m *DB) ListUsers(ctx context.Context) ([]db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]db.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *DB) GetUser(ctx context.Context, id string) (*db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	c := copyUser(u)
	return &c, nil
}

func (m *DB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			c := copyUser(u)
			return &c, nil
		}
	}
	return nil, db.ErrNotFound
}

func (m *DB) InsertUser(ctx context.Context, user *db.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.users[user.ID]; exists {
		return fmt.Errorf("user %s: %w", user.ID, db.ErrConflict)
	}
	for _, u := range m.users {
		if strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("email %s: %w", user.Email, db.ErrConflict)
		}
	}

	c := copyUser(user)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.Now()
	}
	m.users[user.ID] = &c
	return nil
}

// UpdateUser overwrites profile, roles and enabled flag. The password hash is kept.
func (m *DB) UpdateUser(ctx context.Context, user *db.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[user.ID]
	if !ok {
		return db.ErrNotFound
	}
	existing.Name = user.Name
	existing.LastName = user.LastName
	existing.Phone = user.Phone
	existing.Roles = append([]int16(nil), user.Roles...)
	existing.Enabled = user.Enabled
	return nil
}

func (m *DB) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.users[id]
	if !ok {
		return db.ErrNotFound
	}
	existing.PasswordHash = hash
	return nil
}

func (m *DB) DeleteUser(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return db.ErrNotFound
	}
	delete(m.users, id)
	return nil
}

func hasUID(assignments []db.AssignmentRecord, uid string) bool {
	for _, a := range assignments {
		if a.UID == uid {
			return true
		}
	}
	return false
}

func copySlot(s *db.ShiftSlot) db.ShiftSlot {
	c := *s
	c.Assignments = append([]db.AssignmentRecord{}, s.Assignments...)
	return c
}

func copyUser(u *db.User) db.User {
	c := *u
	c.Roles = append([]int16(nil), u.Roles...)
	return c
}
