package auth

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type sessionClaims struct {
	jwt.RegisteredClaims
	UserID int64 `json:"userId"`
}

// SessionCodec issues and validates stateless bearer tokens binding a user id.
// Validation is a pure function of the token and the signing secret: it is run
// on every request before any database access and must stay store-free.
type SessionCodec struct {
	secret []byte
	ttl    time.Duration
}

func NewSessionCodec(secret string, ttl time.Duration) *SessionCodec {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionCodec{secret: []byte(secret), ttl: ttl}
}

func (c *SessionCodec) TTL() time.Duration {
	return c.ttl
}

func (c *SessionCodec) Issue(userID int64) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		UserID: userID,
	})
	return token.SignedString(c.secret)
}

// Validate returns the user id carried by the token. Any failure mode
// (malformed token, bad signature, expiry) collapses to ErrInvalidSession.
func (c *SessionCodec) Validate(tokenString string) (int64, error) {
	claims := &sessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSession
		}
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidSession
	}
	return claims.UserID, nil
}
