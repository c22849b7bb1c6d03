package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenStore manages single-use, typed, expiring verification tokens. Tokens
// are opaque 32-byte random strings delivered to the user out-of-band (email)
// and redeemed exactly once.
type TokenStore interface {
	Issue(ctx context.Context, userID int64, typ TokenType) (string, error)
	Redeem(ctx context.Context, token string, typ TokenType) (int64, error)
	Peek(ctx context.Context, token string, typ TokenType) (int64, error)
	MarkUsed(ctx context.Context, token string) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type VerificationTokenStore struct {
	DB *pgxpool.Pool
}

func NewVerificationTokenStore(db *pgxpool.Pool) *VerificationTokenStore {
	return &VerificationTokenStore{DB: db}
}

// Issue creates a fresh token for the user and invalidates any outstanding
// token of the same type. The delete and insert run in one transaction so
// there is never a window with zero or two active tokens.
func (s *VerificationTokenStore) Issue(ctx context.Context, userID int64, typ TokenType) (string, error) {
	token, err := randomToken(32)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM verification_tokens WHERE user_id=$1 AND type=$2
	`, userID, typ); err != nil {
		return "", err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO verification_tokens (id, token, type, user_id, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), token, typ, userID, time.Now().Add(typ.TTL())); err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// Redeem consumes the token and returns its owner. Redemption and consumption
// are one conditional update, so a token can never be redeemed twice even if
// the caller crashes before any follow-up work.
func (s *VerificationTokenStore) Redeem(ctx context.Context, token string, typ TokenType) (int64, error) {
	var userID int64
	err := s.DB.QueryRow(ctx, `
		UPDATE verification_tokens
		SET used=TRUE
		WHERE token=$1 AND type=$2 AND used=FALSE AND expires_at > NOW()
		RETURNING user_id
	`, token, typ).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// Peek checks validity without consuming the token. Callers that use it must
// follow up with MarkUsed once their dependent mutation succeeds.
func (s *VerificationTokenStore) Peek(ctx context.Context, token string, typ TokenType) (int64, error) {
	var userID int64
	err := s.DB.QueryRow(ctx, `
		SELECT user_id
		FROM verification_tokens
		WHERE token=$1 AND type=$2 AND used=FALSE AND expires_at > NOW()
	`, token, typ).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// MarkUsed flips the used flag. Idempotent: marking an already-used or
// unknown token is not an error.
func (s *VerificationTokenStore) MarkUsed(ctx context.Context, token string) error {
	_, err := s.DB.Exec(ctx, `UPDATE verification_tokens SET used=TRUE WHERE token=$1`, token)
	return err
}

// PurgeExpired reclaims storage. Redeem already excludes expired rows, so the
// frequency of this job has no bearing on correctness.
func (s *VerificationTokenStore) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM verification_tokens WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func randomToken(bytes int) (string, error) {
	buf := make([]byte, bytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
