package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"bookclub/internal/auth"
	"bookclub/internal/config"
	"bookclub/internal/email"
	"bookclub/internal/geo"
	"bookclub/internal/openlibrary"
)

// RateLimiter is the throttling surface the handlers use; backed by Redis in
// production, by a no-op fake in tests.
type RateLimiter interface {
	IsIPBanned(ctx context.Context, ip string) bool
	RegisterLoginFailure(ctx context.Context, ip string) error
	ResetLogin(ctx context.Context, ip string)
	RegisterResetAttempt(ctx context.Context, email string) (bool, time.Duration, error)
	RegisterRegisterAttempt(ctx context.Context, ip string) (bool, time.Duration, error)
	CooldownTTL(ctx context.Context, key string) time.Duration
	SetCooldown(ctx context.Context, key string, ttl time.Duration)
}

type Server struct {
	Users          auth.UserStore
	Tokens         auth.TokenStore
	Sessions       *auth.SessionCodec
	Limiter        RateLimiter
	Mailer         email.Sender
	Hasher         auth.PasswordHasher
	Catalog        *openlibrary.Client
	Geo            *geo.Client
	Config         config.Config
	trustedProxies []net.IPNet
}

func NewServer(cfg config.Config, users auth.UserStore, tokens auth.TokenStore, sessions *auth.SessionCodec, limiter RateLimiter, mailer email.Sender, hasher auth.PasswordHasher) *Server {
	return &Server{
		Users:          users,
		Tokens:         tokens,
		Sessions:       sessions,
		Limiter:        limiter,
		Mailer:         mailer,
		Hasher:         hasher,
		Catalog:        openlibrary.NewClient(),
		Geo:            geo.NewClient("bookclub-backend (" + cfg.BaseURL + ")"),
		Config:         cfg,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "", log.Flags()),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.Config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/register", s.handleRegister)
	r.Post("/api/auth/login", s.handleLogin)
	r.Post("/api/auth/logout", s.handleLogout)
	r.Post("/api/auth/forgot-password", s.handleForgotPassword)
	r.Get("/api/auth/reset-password", s.handleCheckResetToken)
	r.Post("/api/auth/reset-password", s.handleResetPassword)
	r.Get("/api/auth/verify-email", s.handleVerifyEmail)

	r.Group(func(pr chi.Router) {
		pr.Use(s.requireSession)

		pr.Get("/api/auth/me", s.handleMe)
		pr.Get("/api/catalog/authors", s.handleSearchAuthors)
		pr.Get("/api/catalog/books", s.handleAuthorBooks)
		pr.Get("/api/geo/reverse", s.handleReverseGeocode)
	})

	return r
}
