package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"bookclub/internal/auth"
	"bookclub/internal/email"
)

type registerRequest struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == "" || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email, username and password are required")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if !validateUsername(req.Username) {
		writeError(w, http.StatusBadRequest, "Username must be 3-32 letters, digits, '-' or '_'")
		return
	}
	if err := validatePassword(req.Password); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if locked, ttl, err := s.Limiter.RegisterRegisterAttempt(ctx, ip); err != nil {
		log.Printf("register: rate limit check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Registration failed")
		return
	} else if locked {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":    "Too many signup attempts. Try again later.",
			"cooldown": int64(ttl.Seconds()),
		})
		return
	}

	// Advisory pre-check; the unique constraints in Create are authoritative.
	exists, err := s.Users.Exists(ctx, req.Email, req.Username)
	if err != nil {
		log.Printf("register: existence check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to check user")
		return
	}
	if exists {
		writeError(w, http.StatusBadRequest, "User with this email or username already exists")
		return
	}

	hashed, err := s.Hasher.Hash(req.Password)
	if err != nil {
		log.Printf("register: hash failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	user, err := s.Users.Create(ctx, req.Email, req.Username, hashed, req.Name)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUser) {
			// A concurrent registration won the race; same opaque answer.
			writeError(w, http.StatusBadRequest, "User with this email or username already exists")
			return
		}
		log.Printf("register: create user failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	if s.Config.NoEmailVerify {
		if err := s.Users.SetEmailVerified(ctx, user.ID); err != nil {
			log.Printf("register: mark verified failed: %v", err)
		}
	} else {
		s.sendVerificationEmail(ctx, user)
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Registration successful! Please check your email to verify your account.",
		"user":    userSummary(user),
	})
}

// sendVerificationEmail issues the single-use token and delivers it.
// Delivery failure is logged and swallowed: registration already succeeded
// and a differing response would leak delivery timing.
func (s *Server) sendVerificationEmail(ctx context.Context, user *auth.User) {
	token, err := s.Tokens.Issue(ctx, user.ID, auth.TokenEmailVerification)
	if err != nil {
		log.Printf("register: issue verification token failed: %v", err)
		return
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.Config.BaseURL, token)
	content := email.VerificationEmail(link)
	if err := s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML); err != nil {
		log.Printf("register: send verification email failed: %v", err)
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	ctx := r.Context()
	ip := clientIP(r, s.trustedProxies)
	if s.Limiter.IsIPBanned(ctx, ip) {
		writeError(w, http.StatusTooManyRequests, "Too many login attempts. Try again later.")
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Printf("login: lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}
	if user == nil || !s.Hasher.Compare(user.PasswordHash, req.Password) {
		_ = s.Limiter.RegisterLoginFailure(ctx, ip)
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	if !user.EmailVerified && !s.Config.NoEmailVerify {
		writeError(w, http.StatusUnauthorized, "Please verify your email before signing in")
		return
	}

	token, err := s.Sessions.Issue(user.ID)
	if err != nil {
		log.Printf("login: issue session failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	s.Limiter.ResetLogin(ctx, ip)
	auth.SetSessionCookie(w, token, s.Sessions.TTL(), s.Config.SecureCookies())

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user": userSummary(user),
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w, s.Config.SecureCookies())
	http.Redirect(w, r, s.Config.BaseURL+"/", http.StatusSeeOther)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := s.Users.FindByID(r.Context(), userID)
	if err != nil {
		log.Printf("me: lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	// A valid session can outlive the account; that is a not-found, not a
	// gate failure.
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"user": userSummary(user)})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	redirect := func(query string) {
		http.Redirect(w, r, s.Config.BaseURL+"/login?"+query, http.StatusSeeOther)
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		redirect("error=missing-token")
		return
	}

	userID, err := s.Tokens.Redeem(r.Context(), token, auth.TokenEmailVerification)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			redirect("error=invalid-token")
			return
		}
		log.Printf("verify-email: redeem failed: %v", err)
		redirect("error=verification-failed")
		return
	}

	if err := s.Users.SetEmailVerified(r.Context(), userID); err != nil {
		log.Printf("verify-email: mark verified failed: %v", err)
		redirect("error=verification-failed")
		return
	}

	redirect("verified=true")
}
