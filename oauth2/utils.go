package oauth2

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	stateCookieName       = "oauthstate"
	callbackURLCookieName = "oauthCallbackURL"
)

func generateStateOauthCookie(w http.ResponseWriter) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		slog.Error("error generating oauth state", "err", err)
	}
	state := base64.URLEncoding.EncodeToString(b)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return state
}

func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/", MaxAge: -1})
}

// OauthRedirector starts the authorization code flow: it sets the state cookie
// (and the callback url cookie when ?callbackURL= is given) and redirects to
// the provider's consent page
func OauthRedirector(oauthConfig *oauth2.Config) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if callbackURL := r.URL.Query().Get("callbackURL"); callbackURL != "" {
			http.SetCookie(w, &http.Cookie{
				Name:    callbackURLCookieName,
				Value:   callbackURL,
				Path:    "/",
				Expires: time.Now().Add(24 * time.Hour),
				MaxAge:  120, // keep this short
			})
		}
		oauthState := generateStateOauthCookie(w)
		http.Redirect(w, r, oauthConfig.AuthCodeURL(oauthState), http.StatusFound)
	}
}
