package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"teamtask/internal/domain"
)

const userColumns = `id,name,email,role,password_hash,created_at`

func scanUser(row scanner) (domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Name, &u.Email, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	// The schema CHECK keeps role to known labels.
	u.Role, _ = domain.ParseRole(role)
	return u, nil
}

// InsertUser stores u. A duplicate id or email yields ErrConflict.
func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(`+userColumns+`) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.Role.String(), u.PasswordHash, u.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Email, ErrConflict)
	}
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email))
}

// UserExists reports whether a user with id is stored.
func (r Repo) UserExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id=? LIMIT 1`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListUsers returns users ordered by name.
func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r Repo) UpdateUserRole(ctx context.Context, id string, role domain.Role) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET role=? WHERE id=?`, role.String(), id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}
