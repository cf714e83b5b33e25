package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	apperrors "github.com/codeWithGodstime/meetmesh/pkg/errors"
)

// Repository reads user records from the Identity Service's tables.
// The messaging core never writes them.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = "id, username, COALESCE(first_name, ''), COALESCE(last_name, ''), email, COALESCE(avatar_url, '')"

func (r *Repository) GetUserByID(ctx context.Context, id ID) (*User, error) {
	u := &User{}
	query := "SELECT " + userColumns + " FROM users WHERE id = $1"

	err := r.db.QueryRowContext(ctx, query, int(id)).Scan(
		&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.AvatarURL,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	return u, nil
}

func (r *Repository) SearchUsers(ctx context.Context, query string) ([]User, error) {
	// We limit to 10 to keep it fast
	q := "SELECT " + userColumns + " FROM users WHERE username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1 ORDER BY username LIMIT 10"
	rows, err := r.db.QueryContext(ctx, q, "%"+query+"%")
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
