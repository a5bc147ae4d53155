package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/core/policy"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// MinPasswordLength matches the identity provider's minimum
const MinPasswordLength = 6

// CreateUserRequest is the admin form for a new user
type CreateUserRequest struct {
	Email           string       `json:"email" validate:"required,email"`
	Password        string       `json:"password" validate:"required,min=6"`
	PasswordConfirm string       `json:"passwordConfirm"`
	Name            string       `json:"name" validate:"required"`
	LastName        string       `json:"lastName" validate:"required"`
	Phone           string       `json:"phone"`
	Roles           []model.Role `json:"roles"`
}

// ProfileUpdate is what a user may change about themselves
type ProfileUpdate struct {
	Name     string `json:"name" validate:"required"`
	LastName string `json:"lastName" validate:"required"`
	Phone    string `json:"phone"`
}

// UserService manages the directory
type UserService struct {
	store       db.UserStore
	validate    *validator.Validate
	countryCode string
	logger      *zap.Logger

	// BcryptCost is passed to auth.HashPassword; 0 means the default
	BcryptCost int
}

func NewUserService(store db.UserStore, countryCode string, logger *zap.Logger) *UserService {
	return &UserService{
		store:       store,
		validate:    validator.New(),
		countryCode: countryCode,
		logger:      logger,
	}
}

// List returns every user with display names, ordered as stored
func (s *UserService) List(ctx context.Context, actor *model.User) ([]model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}
	dir, err := LoadDirectory(ctx, s.store)
	if err != nil {
		return nil, err
	}
	return dir.Users(), nil
}

// Get returns one user. Users may read themselves; admins may read anyone.
func (s *UserService) Get(ctx context.Context, actor *model.User, id string) (*model.User, error) {
	if actor == nil || actor.ID == "" {
		return nil, policy.ErrNotAuthenticated
	}
	if actor.ID != id && !actor.IsAdmin() {
		return nil, policy.ErrForbidden
	}
	return loadUser(ctx, s.store, id)
}

func (s *UserService) Create(ctx context.Context, actor *model.User, req CreateUserRequest) (*model.User, error) {
	if err := policy.RequireAdmin(actor); err != nil {
		return nil, err
	}

	// Trim before validating so blank names fail the required check
	req.Email = strings.TrimSpace(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	req.LastName = strings.TrimSpace(req.LastName)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if req.Password != req.PasswordConfirm {
		return nil, fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	phone, err := s.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password, s.BcryptCost)
	if err != nil {
		return nil, err
	}

	record := &db.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		LastName:     req.LastName,
		Phone:        phone,
		Roles:        model.NewRoleSet(req.Roles...).Codes(),
		Enabled:      true,
	}
	// Everyone is at least a volunteer
	if len(record.Roles) == 0 {
		record.Roles = model.NewRoleSet(model.RoleVolunteer).Codes()
	}

	if err := s.store.InsertUser(ctx, record); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, fmt.Errorf("%w: email %s already registered", ErrValidation, req.Email)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("User created", zap.String("uid", record.ID), zap.String("by", actor.ID))
	user := record.ToModel()
	return &user, nil
}

// UpdatePassword sets a new password for any user (admin only)
func (s *UserService) UpdatePassword(ctx context.Context, actor *model.User, id, password, confirm string) error {
	if err := policy.RequireAdmin(actor); err != nil {
		return err
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	if password != confirm {
		return fmt.Errorf("%w: passwords do not match", ErrValidation)
	}

	hash, err := auth.HashPassword(password, s.BcryptCost)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePasswordHash(ctx, id, hash); err != nil {
		return mapUserErr(err, "update password")
	}

	s.logger.Info("Password updated", zap.String("uid", id), zap.String("by", actor.ID))
	return nil
}

// SetEnabled enables or disables sign-in for a user. Admins cannot disable themselves.
func (s *UserService) SetEnabled(ctx context.Context, actor *model.User, id string, enabled bool) error {
	if err := policy.RequireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID && !enabled {
		return fmt.Errorf("%w: cannot disable yourself", ErrValidation)
	}

	record, err := s.store.GetUser(ctx, id)
	if err != nil {
		return mapUserErr(err, "get user")
	}
	record.Enabled = enabled
	if err := s.store.UpdateUser(ctx, record); err != nil {
		return mapUserErr(err, "update user")
	}

	s.logger.Info("User enabled state changed", zap.String("uid", id), zap.Bool("enabled", enabled))
	return nil
}

// Delete removes a user from the directory. Their slot assignments are left
// in place and render as the placeholder.
func (s *UserService) Delete(ctx context.Context, actor *model.User, id string) error {
	if err := policy.RequireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return fmt.Errorf("%w: cannot delete yourself", ErrValidation)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return mapUserErr(err, "delete user")
	}

	s.logger.Info("User deleted", zap.String("uid", id), zap.String("by", actor.ID))
	return nil
}

// UpdateProfile changes the actor's own name and phone
func (s *UserService) UpdateProfile(ctx context.Context, actor *model.User, update ProfileUpdate) (*model.User, error) {
	if actor == nil || actor.ID == "" {
		return nil, policy.ErrNotAuthenticated
	}

	update.Name = strings.TrimSpace(update.Name)
	update.LastName = strings.TrimSpace(update.LastName)
	if err := s.validate.Struct(update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	phone, err := s.NormalizePhone(update.Phone)
	if err != nil {
		return nil, err
	}

	// Read-modify-write keeps roles and the password hash intact
	record, err := s.store.GetUser(ctx, actor.ID)
	if err != nil {
		return nil, mapUserErr(err, "get user")
	}
	record.Name = update.Name
	record.LastName = update.LastName
	record.Phone = phone

	if err := s.store.UpdateUser(ctx, record); err != nil {
		return nil, mapUserErr(err, "update profile")
	}

	s.logger.Info("Profile updated", zap.String("uid", actor.ID))
	user := record.ToModel()
	return &user, nil
}

// NormalizePhone converts a phone number to E.164. Numbers without an
// international prefix get the default country code. Empty stays empty.
func (s *UserService) NormalizePhone(phone string) (string, error) {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.' || r == '(' || r == ')':
		default:
			return "", fmt.Errorf("%w: invalid phone number %q", ErrValidation, phone)
		}
	}

	normalized := b.String()
	switch {
	case normalized == "":
		return "", nil
	case strings.HasPrefix(normalized, "+"):
	case strings.HasPrefix(normalized, "00"):
		normalized = "+" + normalized[2:]
	default:
		normalized = "+" + s.countryCode + normalized
	}

	if err := s.validate.Var(normalized, "e164"); err != nil {
		return "", fmt.Errorf("%w: invalid phone number %q", ErrValidation, phone)
	}
	return normalized, nil
}

func mapUserErr(err error, action string) error {
	if errors.Is(err, db.ErrNotFound) {
		return ErrUserNotFound
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
