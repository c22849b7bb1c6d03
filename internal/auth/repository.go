package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserStore is the account-identity surface the HTTP layer depends on.
// Lookups report absence as (nil, nil), never as an error.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	Exists(ctx context.Context, email, username string) (bool, error)
	Create(ctx context.Context, email, username, passwordHash string, name *string) (*User, error)
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error
	SetEmailVerified(ctx context.Context, id int64) error
}

type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: db}
}

const userColumns = `id, email, username, name, password_hash, email_verified, created_at`

func (r *UserRepository) Create(ctx context.Context, email, username, passwordHash string, name *string) (*User, error) {
	query := `
		INSERT INTO users (email, username, name, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + userColumns

	row := r.DB.QueryRow(ctx, query, email, username, name, passwordHash)
	user, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		// The unique constraints are the final arbiter for concurrent
		// registrations; the application-level Exists check is advisory.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrDuplicateUser
		}
		return nil, err
	}
	return user, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUserMaybe(row)
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username=$1`, username)
	return scanUserMaybe(row)
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	row := r.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUserMaybe(row)
}

func (r *UserRepository) Exists(ctx context.Context, email, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email=$1 OR username=$2)
	`, email, username).Scan(&exists)
	return exists, err
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, passwordHash, id)
	return err
}

func (r *UserRepository) SetEmailVerified(ctx context.Context, id int64) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET email_verified=TRUE WHERE id=$1`, id)
	return err
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.EmailVerified, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUserMaybe(row pgx.Row) (*User, error) {
	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}
