package oauth2

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/panyam/secretgate"
	"golang.org/x/oauth2"
)

// ErrProviderDenied is reported when the provider redirects back with an error
// instead of an authorization code (for example the user clicked "Cancel")
var ErrProviderDenied = errors.New("provider denied authorization")

// HandleUserFunc receives the verified subject id once a provider callback succeeds
type HandleUserFunc func(provider secretgate.Provider, subjectID string, w http.ResponseWriter, r *http.Request)

// HandleFailureFunc is called when a provider callback fails. No account is touched.
type HandleFailureFunc func(provider secretgate.Provider, err error, w http.ResponseWriter, r *http.Request)

// SubjectFetcher exchanges an access token for the provider's stable subject id
type SubjectFetcher func(ctx context.Context, token *oauth2.Token) (string, error)

// BaseOAuth2 implements the authorization code flow shared by every provider.
// Providers only differ in endpoints, scopes and how the subject id is fetched.
type BaseOAuth2 struct {
	Provider      secretgate.Provider
	ClientId      string
	ClientSecret  string
	CallbackURL   string
	HandleUser    HandleUserFunc
	HandleFailure HandleFailureFunc

	// Where failed callbacks are redirected when HandleFailure is not set
	AuthFailureUrl string

	// HTTPClient is used for the token exchange and user info calls when set
	HTTPClient *http.Client

	Logger *slog.Logger

	fetchSubject SubjectFetcher
	oauthConfig  oauth2.Config
	mux          *http.ServeMux
}

func NewBaseOAuth2(provider secretgate.Provider, clientId, clientSecret, callbackUrl string, endpoint oauth2.Endpoint, scopes []string) *BaseOAuth2 {
	out := &BaseOAuth2{
		Provider:       provider,
		ClientId:       clientId,
		ClientSecret:   clientSecret,
		CallbackURL:    callbackUrl,
		AuthFailureUrl: "/login",
		mux:            http.NewServeMux(),
		oauthConfig: oauth2.Config{
			ClientID:     clientId,
			ClientSecret: clientSecret,
			RedirectURL:  callbackUrl,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	out.mux.HandleFunc("/{$}", OauthRedirector(&out.oauthConfig))
	out.mux.HandleFunc("/callback/", out.handleCallback)
	return out
}

func (b *BaseOAuth2) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *BaseOAuth2) Handler() http.Handler {
	return b.mux
}

func (b *BaseOAuth2) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b.mux.ServeHTTP(w, r)
}

func (b *BaseOAuth2) SetHTTPClient(client *http.Client) {
	b.HTTPClient = client
}

// SetOAuthEndpoint overrides the provider's auth and token urls
func (b *BaseOAuth2) SetOAuthEndpoint(endpoint oauth2.Endpoint) {
	b.oauthConfig.Endpoint = endpoint
}

func (b *BaseOAuth2) OAuthConfig() *oauth2.Config {
	return &b.oauthConfig
}

// ExchangeContext returns a context carrying HTTPClient for the oauth2 library
func (b *BaseOAuth2) ExchangeContext(ctx context.Context) context.Context {
	if b.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, b.HTTPClient)
	}
	return ctx
}

func (b *BaseOAuth2) getHTTPClient() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return http.DefaultClient
}

func (b *BaseOAuth2) handleCallback(w http.ResponseWriter, r *http.Request) {
	oauthState, _ := r.Cookie(stateCookieName)
	if oauthState == nil {
		http.Error(w, "OauthState is nil", http.StatusBadRequest)
		return
	}
	clearStateCookie(w)
	if r.FormValue("state") != oauthState.Value {
		http.Error(w, fmt.Sprintf("invalid oauth %s state", b.Provider), http.StatusBadRequest)
		return
	}

	if providerErr := r.FormValue("error"); providerErr != "" {
		b.fail(fmt.Errorf("%w: %s", ErrProviderDenied, providerErr), w, r)
		return
	}

	ctx := b.ExchangeContext(r.Context())
	token, err := b.oauthConfig.Exchange(ctx, r.FormValue("code"))
	if err != nil {
		b.fail(fmt.Errorf("code exchange failed: %w", err), w, r)
		return
	}
	subjectID, err := b.fetchSubject(ctx, token)
	if err == nil && subjectID == "" {
		err = fmt.Errorf("%s returned no subject id", b.Provider)
	}
	if err != nil {
		b.fail(err, w, r)
		return
	}

	if b.HandleUser == nil {
		http.Error(w, "Login not configured", http.StatusInternalServerError)
		return
	}
	b.HandleUser(b.Provider, subjectID, w, r)
}

func (b *BaseOAuth2) fail(err error, w http.ResponseWriter, r *http.Request) {
	b.logger().InfoContext(r.Context(), "oauth callback failed", "provider", b.Provider, "err", err)
	if b.HandleFailure != nil {
		b.HandleFailure(b.Provider, errors.Join(secretgate.ErrUnauthenticated, err), w, r)
		return
	}
	http.Redirect(w, r, b.AuthFailureUrl, http.StatusTemporaryRedirect)
}
