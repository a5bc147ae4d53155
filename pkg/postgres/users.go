package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/shelter-shifts/pkg/db"
)

const userColumns = `id, email, password_hash, name, last_name, phone, roles, enabled, created_at`

func (d *DB) ListUsers(ctx context.Context) ([]db.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+userColumns+` FROM app_user ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	users, err := pgx.CollectRows(rows, pgx.RowToStructByPos[db.User])
	if err != nil {
		return nil, fmt.Errorf("failed to scan users: %w", err)
	}
	return users, nil
}

func (d *DB) GetUser(ctx context.Context, id string) (*db.User, error) {
	return d.getUserWhere(ctx, `id = $1`, id)
}

// GetUserByEmail matches case-insensitively
func (d *DB) GetUserByEmail(ctx context.Context, email string) (*db.User, error) {
	return d.getUserWhere(ctx, `LOWER(email) = LOWER($1)`, email)
}

func (d *DB) getUserWhere(ctx context.Context, where string, arg string) (*db.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT `+userColumns+` FROM app_user WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	user, err := pgx.CollectExactlyOneRow(rows, pgx.RowToAddrOfStructByPos[db.User])
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return user, nil
}

func (d *DB) InsertUser(ctx context.Context, user *db.User) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO app_user (id, email, password_hash, name, last_name, phone, roles, enabled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, user.ID, user.Email, user.PasswordHash, user.Name, user.LastName, user.Phone, user.Roles, user.Enabled)
	if isUniqueViolation(err) {
		return fmt.Errorf("failed to insert user %s: %w", user.Email, db.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// UpdateUser overwrites profile, roles and enabled flag. The password hash is kept.
func (d *DB) UpdateUser(ctx context.Context, user *db.User) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE app_user
		SET name = $2, last_name = $3, phone = $4, roles = $5, enabled = $6
		WHERE id = $1
	`, user.ID, user.Name, user.LastName, user.Phone, user.Roles, user.Enabled)
	if err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *DB) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := d.pool.Exec(ctx, `UPDATE app_user SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}

func (d *DB) DeleteUser(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return db.ErrNotFound
	}
	return nil
}
