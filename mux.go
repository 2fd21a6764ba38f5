package secretgate

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

const (
	callbackURLCookie = "oauthCallbackURL"
	linkCookie        = "secretgateLinkUser"
)

// Gateway exposes an Authenticator over HTTP: session cookies, logout,
// federated callbacks and account linking. Mount Handler() under a prefix
// such as /auth and attach providers with AddAuth.
type Gateway struct {
	mux        *http.ServeMux
	Auth       *Authenticator
	Middleware Middleware
	Logger     *slog.Logger

	// All the domains where the session cookie is set on login and cleared on logout
	CookieDomains []string

	// Prefixed to relative callback urls after a federated login
	BaseURL string

	// Where failed federated logins are redirected. Defaults to "/login".
	FailureURL string

	// Where link requests send the browser to start the provider flow.
	// Defaults to "/auth/{provider}/".
	ProviderURL func(provider Provider) string
}

func NewGateway(auth *Authenticator) *Gateway {
	return (&Gateway{Auth: auth}).EnsureDefaults()
}

func (g *Gateway) EnsureDefaults() *Gateway {
	if g.FailureURL == "" {
		g.FailureURL = "/login"
	}
	if g.ProviderURL == nil {
		g.ProviderURL = func(p Provider) string { return "/auth/" + string(p) + "/" }
	}
	if g.Middleware.Auth == nil {
		g.Middleware.Auth = g.Auth
	}
	if g.Middleware.TokenFromRequest == nil {
		g.Middleware.TokenFromRequest = g.SessionToken
	}
	return g
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Gateway) Handler() http.Handler {
	return g.setupRoutes().mux
}

// AddAuth mounts a provider (or any auth handler) under prefix
func (g *Gateway) AddAuth(prefix string, handler http.Handler) *Gateway {
	g.setupRoutes()
	prefix = strings.TrimSuffix(prefix, "/")
	g.logger().Info("adding auth handler", "prefix", prefix)
	g.mux.Handle(prefix+"/", http.StripPrefix(prefix, handler))

	// /google -> /google/ keeping parent prefixes stripped by outer muxes
	g.mux.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		origPath := r.RequestURI
		if idx := strings.Index(origPath, "?"); idx != -1 {
			origPath = origPath[:idx]
		}
		target := origPath + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusPermanentRedirect)
	})
	return g
}

func (g *Gateway) setupRoutes() *Gateway {
	if g.mux == nil {
		g.EnsureDefaults()
		g.mux = http.NewServeMux()
		g.mux.HandleFunc("/logout", g.onLogout)
		g.mux.Handle("/link/{provider}", g.Middleware.EnsureUser(http.HandlerFunc(g.handleStartLink)))
	}
	return g
}

// SessionToken returns the session token presented with the request, from the
// Authorization bearer header or the session cookie
func (g *Gateway) SessionToken(r *http.Request) string {
	if authz := r.Header.Get("Authorization"); authz != "" {
		if token, ok := strings.CutPrefix(authz, "Bearer "); ok && token != "" {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(g.cookieName()); err == nil {
		return cookie.Value
	}
	return ""
}

func (g *Gateway) cookieName() string {
	return g.Auth.Sessions.Sessions.Cookie.Name
}

func (g *Gateway) onLogout(w http.ResponseWriter, r *http.Request) {
	if err := g.Auth.Logout(r.Context(), g.SessionToken(r)); err != nil {
		// the cookie is still cleared; the token expires on its own
		g.logger().WarnContext(r.Context(), "error destroying session", "error", err)
	}
	g.setSessionCookie(nil, w)

	toUrl := r.URL.Query().Get("to")
	if toUrl == "" || !isLocalRedirect(toUrl) {
		fmt.Fprintf(w, "Logged Out")
		return
	}
	http.Redirect(w, r, toUrl, http.StatusFound)
}

// SaveSessionAndRedirect sets the session cookie and sends the browser back
// to the callback url stored when the login flow started (or "/")
func (g *Gateway) SaveSessionAndRedirect(session *Session, w http.ResponseWriter, r *http.Request) {
	g.setSessionCookie(session, w)
	http.Redirect(w, r, g.popCallbackURL(w, r), http.StatusFound)
}

// HandleFederatedUser is called by provider integrations once the provider
// has vouched for subjectID. If a link was started for the current session
// the identity is attached to that user, otherwise the user is logged in.
func (g *Gateway) HandleFederatedUser(provider Provider, subjectID string, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if linkingUserId := g.popLinkingUser(w, r); linkingUserId != "" {
		token := g.SessionToken(r)
		user, err := g.Auth.RequireAuthenticated(ctx, token)
		if err == nil && user.ID != linkingUserId {
			err = ErrUnauthenticated
		}
		if err == nil {
			_, err = g.Auth.LinkFederated(ctx, token, provider, subjectID)
		}
		if err != nil {
			g.HandleFederatedFailure(provider, err, w, r)
			return
		}
		g.logger().InfoContext(ctx, "linked account", "provider", provider, "user_id", linkingUserId)
		http.Redirect(w, r, g.popCallbackURL(w, r), http.StatusFound)
		return
	}

	session, err := g.Auth.LoginFederated(ctx, provider, subjectID)
	if err != nil {
		g.HandleFederatedFailure(provider, err, w, r)
		return
	}
	g.SaveSessionAndRedirect(session, w, r)
}

// HandleFederatedFailure redirects to FailureURL with an error code.
// Nothing is persisted for a failed provider handshake.
func (g *Gateway) HandleFederatedFailure(provider Provider, err error, w http.ResponseWriter, r *http.Request) {
	authErr := AuthErrorFrom(err)
	code := ErrCodeUnauthenticated
	if authErr != nil {
		code = authErr.Code
	}
	g.logger().InfoContext(r.Context(), "federated login failed", "provider", provider, "error", err)
	target := fmt.Sprintf("%s?error=%s&provider=%s", g.FailureURL, url.QueryEscape(code), url.QueryEscape(string(provider)))
	http.Redirect(w, r, target, http.StatusFound)
}

// StartLink marks the current browser as linking a provider account to userId.
// The marker only lives long enough to complete a provider round trip.
func (g *Gateway) StartLink(w http.ResponseWriter, userId string) {
	http.SetCookie(w, &http.Cookie{
		Name:     linkCookie,
		Value:    userId,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (g *Gateway) handleStartLink(w http.ResponseWriter, r *http.Request) {
	provider, err := ParseProvider(r.PathValue("provider"))
	if err != nil {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}
	user := UserFromContext(r.Context())
	g.StartLink(w, user.ID)
	target := g.ProviderURL(provider)
	if cb := r.URL.Query().Get("callbackURL"); cb != "" {
		target += "?callbackURL=" + url.QueryEscape(cb)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (g *Gateway) popLinkingUser(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(linkCookie)
	if err != nil || cookie.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: linkCookie, Path: "/", MaxAge: -1, Expires: time.Now()})
	return cookie.Value
}

func (g *Gateway) popCallbackURL(w http.ResponseWriter, r *http.Request) string {
	callbackURL := "/"
	if cookie, _ := r.Cookie(callbackURLCookie); cookie != nil && cookie.Value != "" && isLocalRedirect(cookie.Value) {
		callbackURL = cookie.Value
	}
	if u, _ := url.Parse(callbackURL); u != nil && u.Scheme == "" {
		callbackURL = strings.TrimSuffix(g.BaseURL, "/") + callbackURL
	}
	// delete it so it won't be used for subsequent redirects
	http.SetCookie(w, &http.Cookie{
		Name:   callbackURLCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1, Expires: time.Now(),
	})
	return callbackURL
}

// setSessionCookie writes the session cookie on every configured domain.
// A nil session clears it.
func (g *Gateway) setSessionCookie(session *Session, w http.ResponseWriter) {
	cfg := g.Auth.Sessions.Sessions.Cookie
	domains := g.CookieDomains
	if slices.Index(domains, "") < 0 {
		domains = append(slices.Clone(domains), cfg.Domain)
	}
	for _, domain := range domains {
		cookie := &http.Cookie{
			Name:     cfg.Name,
			Domain:   domain,
			Path:     "/",
			HttpOnly: cfg.HttpOnly,
			Secure:   cfg.Secure,
			SameSite: cfg.SameSite,
		}
		if cfg.Path != "" {
			cookie.Path = cfg.Path
		}
		if session == nil {
			cookie.MaxAge = -1
			cookie.Expires = time.Unix(1, 0)
		} else {
			cookie.Value = session.Token
			cookie.Expires = session.ExpiresAt
			cookie.MaxAge = int(time.Until(session.ExpiresAt).Seconds())
		}
		http.SetCookie(w, cookie)
	}
}

// isLocalRedirect only allows same-site paths so ?to= and callback cookies
// can't bounce users to another host
func isLocalRedirect(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Host == "" && u.Scheme == ""
}

// writeAuthError renders err as JSON or redirects to redirectURL with the error code
func writeAuthError(err error, redirectURL string, w http.ResponseWriter, r *http.Request) {
	authErr := AuthErrorFrom(err)
	if redirectURL != "" && !wantsJSON(r) {
		target := fmt.Sprintf("%s?error=%s", redirectURL, url.QueryEscape(authErr.Code))
		if authErr.Field != "" {
			target += "&field=" + url.QueryEscape(authErr.Field)
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	writeJSON(w, authErr.StatusCode(), map[string]any{
		"error": authErr.Message,
		"code":  authErr.Code,
		"field": authErr.Field,
	})
}
