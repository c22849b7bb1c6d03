package server

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"bookclub/internal/auth"
	"bookclub/internal/email"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !validateEmail(req.Email) {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	ctx := r.Context()
	cooldownKey := "forgot_password_cooldown:" + strings.ToLower(req.Email)
	if ttl := s.Limiter.CooldownTTL(ctx, cooldownKey); ttl > 0 {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":    "Please wait before making another request.",
			"cooldown": int64(ttl.Seconds()),
		})
		return
	}
	if locked, ttl, err := s.Limiter.RegisterResetAttempt(ctx, req.Email); err != nil {
		log.Printf("forgot-password: rate limit check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	} else if locked {
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":    "Too many reset requests. Try again later.",
			"cooldown": int64(ttl.Seconds()),
		})
		return
	}

	user, err := s.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		log.Printf("forgot-password: lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	// The response below never varies with account existence. Work happens
	// only when there is an account to reset.
	if user != nil {
		token, err := s.Tokens.Issue(ctx, user.ID, auth.TokenPasswordReset)
		if err != nil {
			log.Printf("forgot-password: issue token failed: %v", err)
			writeError(w, http.StatusInternalServerError, "Failed to process request")
			return
		}

		link := fmt.Sprintf("%s/reset-password?token=%s", s.Config.BaseURL, token)
		content := email.PasswordResetEmail(link)
		if err := s.Mailer.Send(ctx, user.Email, content.Subject, content.Text, content.HTML); err != nil {
			// Delivery failure must not leak: still report success.
			log.Printf("forgot-password: send email failed: %v", err)
		}
	}

	s.Limiter.SetCooldown(ctx, cooldownKey, auth.EmailCooldown)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If an account with that email exists, we've sent a password reset link.",
	})
}

// handleCheckResetToken lets the reset form verify a token before the user
// types a new password. Peek leaves the token redeemable.
func (s *Server) handleCheckResetToken(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}

	if _, err := s.Tokens.Peek(r.Context(), token, auth.TokenPasswordReset); err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		log.Printf("reset-password: token check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to process request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token and new password are required")
		return
	}
	if err := validatePassword(req.NewPassword); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	userID, err := s.Tokens.Redeem(ctx, req.Token, auth.TokenPasswordReset)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired token")
			return
		}
		log.Printf("reset-password: redeem failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	hashed, err := s.Hasher.Hash(req.NewPassword)
	if err != nil {
		log.Printf("reset-password: hash failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}
	if err := s.Users.UpdatePassword(ctx, userID, hashed); err != nil {
		log.Printf("reset-password: update failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Password has been reset successfully",
	})
}
