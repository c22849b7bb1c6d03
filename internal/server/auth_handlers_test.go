package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bookclub/internal/auth"
)

func doJSON(t *testing.T, handler http.Handler, method, target string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	t.Fatalf("no session cookie in response")
	return nil
}

func registerAlice(t *testing.T, env *testEnv) {
	t.Helper()
	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "alice@x.com",
		"username": "alice",
		"password": "Sup3r-Secret",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterThenLogin(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	registerAlice(t, env)

	if env.mailer.sentCount() != 1 {
		t.Fatalf("expected 1 verification email, got %d", env.mailer.sentCount())
	}

	// Unverified accounts cannot sign in.
	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "Sup3r-Secret",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login before verification status = %d, want 401", rec.Code)
	}

	user, err := env.users.FindByEmail(context.Background(), "alice@x.com")
	if err != nil || user == nil {
		t.Fatalf("expected alice to exist: %v", err)
	}
	if err := env.users.SetEmailVerified(context.Background(), user.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "Sup3r-Secret",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}

	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly {
		t.Fatalf("session cookie must be HttpOnly")
	}
	if cookie.SameSite != http.SameSiteStrictMode {
		t.Fatalf("session cookie SameSite = %v, want Strict", cookie.SameSite)
	}

	// The session identifies the same account.
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("me status = %d, body %s", rec.Code, rec.Body.String())
	}
	var me struct {
		User struct {
			ID    int64  `json:"id"`
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode me response: %v", err)
	}
	if me.User.ID != user.ID || me.User.Email != "alice@x.com" {
		t.Fatalf("unexpected me payload: %+v", me)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	registerAlice(t, env)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "alice@x.com",
		"username": "alice2",
		"password": "Sup3r-Secret",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate register status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already exists") {
		t.Fatalf("expected generic conflict message, got %s", rec.Body.String())
	}
	if len(env.users.users) != 1 {
		t.Fatalf("expected no new record, have %d users", len(env.users.users))
	}
}

func TestRegisterConcurrentDuplicateMapsToConflict(t *testing.T) {
	env := newTestEnv()

	// The advisory Exists check passed, but the store's uniqueness
	// constraint rejected the insert.
	env.users.createErr = auth.ErrDuplicateUser

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "bob@x.com",
		"username": "bob",
		"password": "Sup3r-Secret",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "already exists") {
		t.Fatalf("expected generic conflict message, got %s", rec.Body.String())
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing email", map[string]string{"username": "alice", "password": "Sup3r-Secret"}},
		{"missing password", map[string]string{"email": "alice@x.com", "username": "alice"}},
		{"bad email", map[string]string{"email": "not-an-email", "username": "alice", "password": "Sup3r-Secret"}},
		{"weak password", map[string]string{"email": "alice@x.com", "username": "alice", "password": "short"}},
		{"bad username", map[string]string{"email": "alice@x.com", "username": "a!", "password": "Sup3r-Secret"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPost, "/api/auth/register", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}

	if len(env.users.users) != 0 {
		t.Fatalf("no user should have been created")
	}
}

func TestLoginBadCredentials(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	registerAlice(t, env)
	user, _ := env.users.FindByEmail(context.Background(), "alice@x.com")
	_ = env.users.SetEmailVerified(context.Background(), user.ID)

	rec := doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@x.com",
		"password": "Wrong-Passw0rd!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d, want 401", rec.Code)
	}

	// Unknown account gets the same answer as a wrong password.
	rec = doJSON(t, router, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@x.com",
		"password": "Wrong-Passw0rd!",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email status = %d, want 401", rec.Code)
	}
}

func TestSessionGate(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	// No cookie.
	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no-cookie status = %d, want 401", rec.Code)
	}

	// Garbage cookie: denied and told to discard it.
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, &http.Cookie{
		Name:  auth.SessionCookieName,
		Value: "not.a.token",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad-cookie status = %d, want 401", rec.Code)
	}
	cleared := sessionCookie(t, rec)
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cookie to be cleared, got %+v", cleared)
	}

	// Token signed with a different secret.
	otherCodec := auth.NewSessionCodec("other-secret", 0)
	forged, err := otherCodec.Issue(1)
	if err != nil {
		t.Fatalf("issue forged token: %v", err)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/auth/me", nil, &http.Cookie{
		Name:  auth.SessionCookieName,
		Value: forged,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged-cookie status = %d, want 401", rec.Code)
	}
}

func TestMeForDeletedAccount(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	user, err := env.users.Create(context.Background(), "gone@x.com", "gone", "hash", nil)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, err := env.server.Sessions.Issue(user.ID)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	env.users.delete(user.ID)

	// The gate passes (the token is valid); the handler reports not-found.
	rec := doJSON(t, router, http.MethodGet, "/api/auth/me", nil, &http.Cookie{
		Name:  auth.SessionCookieName,
		Value: token,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv()

	rec := doJSON(t, env.server.Router(), http.MethodPost, "/api/auth/logout", nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	cleared := sessionCookie(t, rec)
	if cleared.MaxAge >= 0 || cleared.Value != "" {
		t.Fatalf("expected cookie to be cleared, got %+v", cleared)
	}
}

func TestVerifyEmail(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	registerAlice(t, env)
	user, _ := env.users.FindByEmail(context.Background(), "alice@x.com")

	token, err := env.tokens.Issue(context.Background(), user.ID, auth.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "verified=true") {
		t.Fatalf("redirect = %q, want verified=true", loc)
	}

	user, _ = env.users.FindByEmail(context.Background(), "alice@x.com")
	if !user.EmailVerified {
		t.Fatalf("emailVerified should be true after redemption")
	}

	// Single use: the same link fails the second time.
	rec = doJSON(t, router, http.MethodGet, "/api/auth/verify-email?token="+token, nil)
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=invalid-token") {
		t.Fatalf("second redemption redirect = %q, want error=invalid-token", loc)
	}
}

func TestVerifyEmailFailures(t *testing.T) {
	env := newTestEnv()
	router := env.server.Router()

	registerAlice(t, env)
	user, _ := env.users.FindByEmail(context.Background(), "alice@x.com")

	rec := doJSON(t, router, http.MethodGet, "/api/auth/verify-email", nil)
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=missing-token") {
		t.Fatalf("missing token redirect = %q", loc)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/auth/verify-email?token=bogus", nil)
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=invalid-token") {
		t.Fatalf("unknown token redirect = %q", loc)
	}

	// A password-reset token cannot verify an email, and the account
	// stays unverified.
	resetToken, err := env.tokens.Issue(context.Background(), user.ID, auth.TokenPasswordReset)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	rec = doJSON(t, router, http.MethodGet, "/api/auth/verify-email?token="+resetToken, nil)
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=invalid-token") {
		t.Fatalf("type mismatch redirect = %q", loc)
	}
	user, _ = env.users.FindByEmail(context.Background(), "alice@x.com")
	if user.EmailVerified {
		t.Fatalf("emailVerified must be unchanged after a type-mismatched redemption")
	}

	// Expired token.
	verifyToken, err := env.tokens.Issue(context.Background(), user.ID, auth.TokenEmailVerification)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	env.tokens.expire(verifyToken)
	rec = doJSON(t, router, http.MethodGet, "/api/auth/verify-email?token="+verifyToken, nil)
	if loc := rec.Header().Get("Location"); !strings.Contains(loc, "error=invalid-token") {
		t.Fatalf("expired token redirect = %q", loc)
	}
}
