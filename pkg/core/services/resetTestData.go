package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/internal/config"
	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/core/model"
	"github.com/jakechorley/shelter-shifts/pkg/db"
)

// DefaultFixturePassword is used for seeded users when none is given
const DefaultFixturePassword = "refugio123"

// Fixtures are the users seeded by ResetTestData
var Fixtures = []db.User{
	{ID: "user1", Email: "ana@refugio.test", Name: "Ana", LastName: "García", Phone: "+34600000001", Roles: []int16{int16(model.RoleVolunteer)}, Enabled: true},
	{ID: "user2", Email: "carlos@refugio.test", Name: "Carlos", LastName: "Ruiz", Phone: "+34600000002", Roles: []int16{int16(model.RoleLead)}, Enabled: true},
	{ID: "user3", Email: "maria@refugio.test", Name: "María", LastName: "López", Roles: []int16{int16(model.RoleVolunteer)}, Enabled: true},
	{ID: "admin1", Email: "admin@refugio.test", Name: "Admin", LastName: "Refugio", Phone: "+34600000009", Roles: []int16{int16(model.RoleAdmin)}, Enabled: true},
}

// ResetTestData wipes every user and slot and seeds the fixture users.
// Refused outside the test environment.
func ResetTestData(ctx context.Context, store db.Database, env, password string, logger *zap.Logger) ([]model.User, error) {
	if env != config.EnvTest {
		logger.Warn("Refusing test data reset", zap.String("env", env))
		return nil, ErrNotTestEnv
	}
	if password == "" {
		password = DefaultFixturePassword
	}

	logger.Info("Resetting test data")
	if err := store.Reset(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset database: %w", err)
	}

	// All fixture users share one password
	hash, err := auth.HashPassword(password, 0)
	if err != nil {
		return nil, err
	}

	users := make([]model.User, 0, len(Fixtures))
	for _, f := range Fixtures {
		record := f
		record.PasswordHash = hash
		record.Roles = append([]int16(nil), f.Roles...)
		if err := store.InsertUser(ctx, &record); err != nil {
			return nil, fmt.Errorf("failed to seed user %s: %w", f.ID, err)
		}
		users = append(users, record.ToModel())
	}

	logger.Info("Test data reset", zap.Int("users", len(users)))
	return users, nil
}
