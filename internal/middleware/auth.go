package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/gommon/log"

	"github.com/bryanwahyu/sitesafe/internal/domain/auth"
	"github.com/bryanwahyu/sitesafe/internal/domain/users"
)

type contextKey string

const (
	UserKey contextKey = "user"

	// SessionCookie carries the raw session token.
	SessionCookie = "session_token"
	// QueueSecretHeader authenticates the queue trigger.
	QueueSecretHeader = "X-Queue-Secret"
)

// Authenticator resolves a session cookie value to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, rawToken string) (*users.User, error)
}

// LoadUser puts the signed-in user (if any) into the request context. It never rejects.
func LoadUser(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, err := r.Cookie(SessionCookie)
			if err != nil || c.Value == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := a.Authenticate(r.Context(), c.Value)
			if err != nil {
				if !errors.Is(err, auth.ErrNoSession) {
					log.Warnf("session lookup: %v", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireUser answers 401 JSON for API routes without a session.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePageUser redirects browsers without a session to the sign-in page.
func RequirePageUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			target := "/api/auth/signin?callbackUrl=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// QueueSecret guards the queue trigger. An empty secret leaves the route open.
func QueueSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(QueueSecretHeader)
			// constant-time comparison to prevent timing attacks
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid queue secret"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func WithUser(ctx context.Context, u *users.User) context.Context {
	return context.WithValue(ctx, UserKey, u)
}

// UserFromContext extracts the signed-in user, or nil.
func UserFromContext(ctx context.Context) *users.User {
	if u, ok := ctx.Value(UserKey).(*users.User); ok {
		return u
	}
	return nil
}
