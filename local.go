package secretgate

import (
	"log/slog"
	"net/http"
)

// LocalAuth serves username/password login and registration
type LocalAuth struct {
	Gateway *Gateway

	// Form field names
	UsernameField string
	PasswordField string

	// Where browser (non JSON) requests are redirected on failure, with ?error=code.
	// When empty errors are returned as JSON.
	LoginURL    string
	RegisterURL string

	// OnLoginError is called when login fails. If it returns false the default handling applies.
	OnLoginError AuthErrorHandler

	// OnRegisterError is called when registration fails
	OnRegisterError AuthErrorHandler
}

func (a *LocalAuth) getUsernameField() string {
	if a.UsernameField != "" {
		return a.UsernameField
	}
	return "username"
}

func (a *LocalAuth) getPasswordField() string {
	if a.PasswordField != "" {
		return a.PasswordField
	}
	return "password"
}

func (a *LocalAuth) logger() *slog.Logger {
	return a.Gateway.logger()
}

func (a *LocalAuth) parseCredentials(r *http.Request) (*Credentials, *AuthError) {
	uf, pf := a.getUsernameField(), a.getPasswordField()
	fields, err := parseFields(r, uf, pf)
	if err != nil {
		return nil, &AuthError{Code: ErrCodeParse, Message: err.Error(), Err: ErrInvalidInput}
	}
	creds := &Credentials{Username: fields[uf], Password: fields[pf]}
	if creds.Username == "" {
		return nil, &AuthError{Code: ErrCodeMissingField, Message: "Username is required", Field: "username", Err: ErrInvalidInput}
	}
	if creds.Password == "" {
		return nil, &AuthError{Code: ErrCodeMissingField, Message: "Password is required", Field: "password", Err: ErrInvalidInput}
	}
	return creds, nil
}

// ServeHTTP handles login requests
func (a *LocalAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	creds, authErr := a.parseCredentials(r)
	if authErr != nil {
		a.handleLoginError(authErr, w, r)
		return
	}

	session, err := a.Gateway.Auth.LoginLocal(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.handleLoginError(AuthErrorFrom(err), w, r)
		return
	}
	a.respondWithSession(session, w, r)
}

// HandleRegister handles registration requests. A successful registration is also a login.
func (a *LocalAuth) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	creds, authErr := a.parseCredentials(r)
	if authErr != nil {
		a.handleRegisterError(authErr, w, r)
		return
	}

	session, err := a.Gateway.Auth.Register(r.Context(), creds.Username, creds.Password)
	if err != nil {
		a.handleRegisterError(AuthErrorFrom(err), w, r)
		return
	}
	a.respondWithSession(session, w, r)
}

func (a *LocalAuth) respondWithSession(session *Session, w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		a.Gateway.setSessionCookie(session, w)
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      session.Token,
			"user_id":    session.UserID,
			"expires_at": session.ExpiresAt,
		})
		return
	}
	a.Gateway.SaveSessionAndRedirect(session, w, r)
}

func (a *LocalAuth) handleLoginError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if err.Code == ErrCodeUnavailable {
		a.logger().ErrorContext(r.Context(), "login failed", "error", err)
	}
	if a.OnLoginError != nil && a.OnLoginError(err, w, r) {
		return
	}
	writeAuthError(err, a.LoginURL, w, r)
}

func (a *LocalAuth) handleRegisterError(err *AuthError, w http.ResponseWriter, r *http.Request) {
	if err.Code == ErrCodeUnavailable {
		a.logger().ErrorContext(r.Context(), "registration failed", "error", err)
	}
	if a.OnRegisterError != nil && a.OnRegisterError(err, w, r) {
		return
	}
	writeAuthError(err, a.RegisterURL, w, r)
}
