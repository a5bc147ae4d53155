package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

const (
	usersGenKey   = "users:gen"
	usersKeyShape = "users:%d"
	slotsGenKey   = "slots:gen"
	slotsKeyShape = "slots:%d:%s:%s"
)

// Store caches directory and slot listings in front of a db.Database.
// Listings are keyed by a generation counter read before the database, and
// every successful write bumps the counter, so a listing that raced a write
// lands under a key nobody reads again.
// Cache failures are logged and the call falls through to the database.
type Store struct {
	db.Database
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

var _ db.Database = (*Store)(nil)

func NewStore(inner db.Database, cache Cache, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{Database: inner, cache: cache, ttl: ttl, logger: logger}
}

// ListUsers returns the directory. Password hashes are never cached, so a
// listing served from the cache has them empty; sign-in reads by e-mail.
func (s *Store) ListUsers(ctx context.Context) ([]db.User, error) {
	key := fmt.Sprintf(usersKeyShape, s.generation(ctx, usersGenKey))

	var users []db.User
	if s.load(ctx, key, &users) {
		return users, nil
	}

	users, err := s.Database.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, users)
	return users, nil
}

func (s *Store) ListSlots(ctx context.Context, from, to string) ([]db.ShiftSlot, error) {
	key := fmt.Sprintf(slotsKeyShape, s.generation(ctx, slotsGenKey), from, to)

	var slots []db.ShiftSlot
	if s.load(ctx, key, &slots) {
		return slots, nil
	}

	slots, err := s.Database.ListSlots(ctx, from, to)
	if err != nil {
		return nil, err
	}
	s.store(ctx, key, slots)
	return slots, nil
}

func (s *Store) ModifyAssignment(ctx context.Context, key model.SlotKey, uid string, intent model.Intent) error {
	if err := s.Database.ModifyAssignment(ctx, key, uid, intent); err != nil {
		return err
	}
	s.invalidateSlots(ctx)
	return nil
}

func (s *Store) InsertUser(ctx context.Context, user *db.User) error {
	if err := s.Database.InsertUser(ctx, user); err != nil {
		return err
	}
	s.invalidateUsers(ctx)
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user *db.User) error {
	if err := s.Database.UpdateUser(ctx, user); err != nil {
		return err
	}
	s.invalidateUsers(ctx)
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := s.Database.UpdatePasswordHash(ctx, id, hash); err != nil {
		return err
	}
	s.invalidateUsers(ctx)
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if err := s.Database.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.invalidateUsers(ctx)
	return nil
}

func (s *Store) Reset(ctx context.Context) error {
	if err := s.Database.Reset(ctx); err != nil {
		return err
	}
	s.invalidateUsers(ctx)
	s.invalidateSlots(ctx)
	return nil
}

func (s *Store) load(ctx context.Context, key string, dest any) bool {
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("Discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	s.logger.Debug("Cache hit", zap.String("key", key))
	return true
}

func (s *Store) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Warn("Failed to encode cache entry", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Store) generation(ctx context.Context, genKey string) int64 {
	data, ok, err := s.cache.Get(ctx, genKey)
	if err != nil {
		s.logger.Warn("Cache read failed", zap.String("key", genKey), zap.Error(err))
		return 0
	}
	if !ok {
		return 0
	}
	return decodeInt(data)
}

func (s *Store) invalidateSlots(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, slotsGenKey); err != nil {
		s.logger.Warn("Failed to invalidate slot cache", zap.Error(err))
	}
}

func (s *Store) invalidateUsers(ctx context.Context) {
	if _, err := s.cache.Incr(ctx, usersGenKey); err != nil {
		s.logger.Warn("Failed to invalidate user cache", zap.Error(err))
	}
}

func encodeInt(n int64) []byte {
	return []byte(strconv.FormatInt(n, 10))
}

func decodeInt(b []byte) int64 {
	n, _ := strconv.ParseInt(string(b), 10, 64)
	return n
}
