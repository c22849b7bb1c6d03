package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bookclub/internal/auth"
	"bookclub/internal/config"
)

// In-memory stand-ins for the Postgres-backed stores. They mirror the store
// contracts (uniqueness, single active token per type, single-use redemption)
// so handler tests exercise the same lifecycle rules.

type fakeUserStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*auth.User

	createErr error
	findErr   error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nextID: 1, users: map[int64]*auth.User{}}
}

func (f *fakeUserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, u := range f.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) FindByUsername(_ context.Context, username string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) FindByID(_ context.Context, id int64) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeUserStore) Exists(_ context.Context, email, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email || u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeUserStore) Create(_ context.Context, email, username, passwordHash string, name *string) (*auth.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, u := range f.users {
		if u.Email == email || u.Username == username {
			return nil, auth.ErrDuplicateUser
		}
	}
	u := &auth.User{
		ID:           f.nextID,
		Email:        email,
		Username:     username,
		Name:         name,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	f.users[u.ID] = u
	f.nextID++
	copied := *u
	return &copied, nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, id int64, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (f *fakeUserStore) SetEmailVerified(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

func (f *fakeUserStore) delete(id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

type fakeTokenRecord struct {
	typ       auth.TokenType
	userID    int64
	expiresAt time.Time
	used      bool
}

type fakeTokenStore struct {
	mu      sync.Mutex
	seq     int
	records map[string]*fakeTokenRecord

	issueErr error
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{records: map[string]*fakeTokenRecord{}}
}

func (f *fakeTokenStore) Issue(_ context.Context, userID int64, typ auth.TokenType) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.issueErr != nil {
		return "", f.issueErr
	}
	for tok, rec := range f.records {
		if rec.userID == userID && rec.typ == typ {
			delete(f.records, tok)
		}
	}
	f.seq++
	token := fmt.Sprintf("token-%d", f.seq)
	f.records[token] = &fakeTokenRecord{
		typ:       typ,
		userID:    userID,
		expiresAt: time.Now().Add(typ.TTL()),
	}
	return token, nil
}

func (f *fakeTokenStore) Redeem(_ context.Context, token string, typ auth.TokenType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[token]
	if !ok || rec.used || rec.typ != typ || !time.Now().Before(rec.expiresAt) {
		return 0, auth.ErrInvalidToken
	}
	rec.used = true
	return rec.userID, nil
}

func (f *fakeTokenStore) Peek(_ context.Context, token string, typ auth.TokenType) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[token]
	if !ok || rec.used || rec.typ != typ || !time.Now().Before(rec.expiresAt) {
		return 0, auth.ErrInvalidToken
	}
	return rec.userID, nil
}

func (f *fakeTokenStore) MarkUsed(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[token]; ok {
		rec.used = true
	}
	return nil
}

func (f *fakeTokenStore) PurgeExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var purged int64
	for tok, rec := range f.records {
		if rec.expiresAt.Before(time.Now()) {
			delete(f.records, tok)
			purged++
		}
	}
	return purged, nil
}

func (f *fakeTokenStore) expire(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.records[token]; ok {
		rec.expiresAt = time.Now().Add(-time.Minute)
	}
}

func (f *fakeTokenStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

type sentMail struct {
	To      string
	Subject string
}

type fakeMailer struct {
	mu      sync.Mutex
	sent    []sentMail
	sendErr error
}

func (f *fakeMailer) Send(_ context.Context, to, subject, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject})
	return nil
}

func (f *fakeMailer) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLimiter struct {
	mu            sync.Mutex
	loginFailures int
}

func (f *fakeLimiter) IsIPBanned(context.Context, string) bool { return false }

func (f *fakeLimiter) RegisterLoginFailure(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginFailures++
	return nil
}

func (f *fakeLimiter) ResetLogin(context.Context, string) {}

func (f *fakeLimiter) RegisterResetAttempt(context.Context, string) (bool, time.Duration, error) {
	return false, 0, nil
}

func (f *fakeLimiter) RegisterRegisterAttempt(context.Context, string) (bool, time.Duration, error) {
	return false, 0, nil
}

func (f *fakeLimiter) CooldownTTL(context.Context, string) time.Duration { return 0 }

func (f *fakeLimiter) SetCooldown(context.Context, string, time.Duration) {}

type testEnv struct {
	server *Server
	users  *fakeUserStore
	tokens *fakeTokenStore
	mailer *fakeMailer
}

func newTestEnv() *testEnv {
	cfg := config.Config{
		BaseURL:    "http://app.example",
		JWTSecret:  "test-secret",
		SessionTTL: time.Hour,
	}
	users := newFakeUserStore()
	tokens := newFakeTokenStore()
	mailer := &fakeMailer{}
	sessions := auth.NewSessionCodec(cfg.JWTSecret, cfg.SessionTTL)
	// Minimum bcrypt cost keeps the handler tests fast.
	srv := NewServer(cfg, users, tokens, sessions, &fakeLimiter{}, mailer, &auth.BcryptHasher{Cost: 4})
	return &testEnv{server: srv, users: users, tokens: tokens, mailer: mailer}
}
