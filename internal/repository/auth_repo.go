package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"meater_sync/internal/models"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrUsernameTaken is returned by Create when the username already exists.
var ErrUsernameTaken = errors.New("username already taken")

const (
	insertUserSQL = `INSERT INTO users (username, password_hash) VALUES (?, ?)`
	userByNameSQL = `SELECT id, username, password_hash FROM users WHERE username = ? LIMIT 1`
)

// UserSQLite keeps operator accounts of the local API in the users table.
type UserSQLite struct {
	db *sql.DB
}

var _ Authorization = (*UserSQLite)(nil)

func NewUserSQLite(db *sql.DB) *UserSQLite {
	return &UserSQLite{db: db}
}

func (r *UserSQLite) Create(ctx context.Context, username, passwordHash string) (int, error) {
	res, err := r.db.ExecContext(ctx, insertUserSQL, username, passwordHash)
	switch {
	case isUniqueViolation(err):
		return 0, ErrUsernameTaken
	case err != nil:
		return 0, fmt.Errorf("insert user %q: %w", username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id of user %q: %w", username, err)
	}
	return int(id), nil
}

// GetByUsername returns (nil, nil) when no such operator exists.
func (r *UserSQLite) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u := new(models.User)
	row := r.db.QueryRowContext(ctx, userByNameSQL, username)
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select user %q: %w", username, err)
	}
	return u, nil
}

// isUniqueViolation reports whether err came from a UNIQUE constraint.
// Wrapped or foreign driver errors only carry it in the message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) && serr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
