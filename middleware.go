package secretgate

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

type userContextKey struct{}

// Middleware resolves the session presented with a request to a User
type Middleware struct {
	Auth             *Authenticator
	TokenFromRequest func(r *http.Request) string
	CallbackURLParam string

	// GetRedirURL returns the login page anonymous browser requests are sent to.
	// If nil (or it returns "") EnsureUser responds with a 401 instead.
	GetRedirURL func(r *http.Request) string

	// Defaults to the Authenticator's logger
	Logger *slog.Logger
}

func (m *Middleware) EnsureReasonableDefaults() {
	if m.CallbackURLParam == "" {
		m.CallbackURLParam = "callbackURL"
	}
}

func (m *Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	if m.Auth != nil {
		return m.Auth.logger()
	}
	return slog.Default()
}

// UserFromContext returns the user loaded by ExtractUser or EnsureUser, or nil
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}

// ContextWithUser returns a copy of ctx carrying user
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

func (m *Middleware) loadUser(r *http.Request) (*User, error) {
	token := ""
	if m.TokenFromRequest != nil {
		token = m.TokenFromRequest(r)
	}
	return m.Auth.Sessions.Validate(r.Context(), token)
}

// ExtractUser loads the logged in user (if any) into the request context.
// Anonymous requests pass through; use EnsureUser to require a login.
func (m *Middleware) ExtractUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.loadUser(r)
		if err != nil {
			m.logger().WarnContext(r.Context(), "error loading session user", "error", err)
		}
		if user != nil {
			r = r.WithContext(ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// EnsureUser only lets authenticated requests through. Browsers are
// redirected to the login page, everyone else gets a 401.
func (m *Middleware) EnsureUser(next http.Handler) http.Handler {
	m.EnsureReasonableDefaults()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.loadUser(r)
		if err != nil {
			m.logger().ErrorContext(r.Context(), "error loading session user", "error", err)
			http.Error(w, "Service temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		if user == nil {
			redirUrl := ""
			if m.GetRedirURL != nil && !wantsJSON(r) {
				redirUrl = m.GetRedirURL(r)
			}
			if redirUrl == "" {
				http.Error(w, "Login required", http.StatusUnauthorized)
				return
			}
			encodedUrl := strings.ReplaceAll(url.QueryEscape(r.URL.Path), "+", "%20")
			http.Redirect(w, r, fmt.Sprintf("%s?%s=%s", redirUrl, m.CallbackURLParam, encodedUrl), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}
