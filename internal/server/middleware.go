package server

import (
	"context"
	"net/http"

	"bookclub/internal/auth"
)

type ctxKey string

const userIDContextKey ctxKey = "userID"

// requireSession gates every protected route. It validates the bearer cookie
// purely against the signing secret — no store I/O happens here, so the check
// is safe to run on every request before any handler logic.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(auth.SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		userID, err := s.Sessions.Validate(cookie.Value)
		if err != nil {
			// The token is garbage; tell the client to drop it.
			auth.ClearSessionCookie(w, s.Config.SecureCookies())
			writeError(w, http.StatusUnauthorized, "Session expired")
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDContextKey).(int64)
	return id, ok
}
