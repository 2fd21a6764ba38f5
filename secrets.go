package secretgate

import (
	"errors"
	"net/http"
)

// SecretsHandler serves the public secrets wall and secret submission
type SecretsHandler struct {
	Gateway *Gateway

	// Browser submissions from anonymous users are sent here. Defaults to "/login".
	LoginURL string

	// Where browsers go after a successful submission. Defaults to "/secrets".
	SecretsURL string
}

func (h *SecretsHandler) getLoginURL() string {
	if h.LoginURL != "" {
		return h.LoginURL
	}
	return "/login"
}

func (h *SecretsHandler) getSecretsURL() string {
	if h.SecretsURL != "" {
		return h.SecretsURL
	}
	return "/secrets"
}

// HandleList returns the contents of every submitted secret.
// Owners are never revealed.
func (h *SecretsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	users, err := h.Gateway.Auth.ListSecrets(r.Context())
	if err != nil {
		h.Gateway.logger().ErrorContext(r.Context(), "error listing secrets", "error", err)
		writeAuthError(err, "", w, r)
		return
	}
	contents := []string{}
	for _, u := range users {
		for _, s := range u.Secrets {
			contents = append(contents, s.Content)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"secrets": contents})
}

// HandleSubmit stores a secret for the logged in user
func (h *SecretsHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fields, err := parseFields(r, "secret")
	if err != nil {
		writeAuthError(&AuthError{Code: ErrCodeParse, Message: err.Error(), Err: ErrInvalidInput}, "", w, r)
		return
	}

	err = h.Gateway.Auth.SubmitSecret(r.Context(), h.Gateway.SessionToken(r), fields["secret"])
	switch {
	case err == nil:
		if wantsJSON(r) {
			writeJSON(w, http.StatusCreated, map[string]any{"success": true})
			return
		}
		http.Redirect(w, r, h.getSecretsURL(), http.StatusFound)
	case errors.Is(err, ErrUnauthenticated):
		writeAuthError(err, h.getLoginURL(), w, r)
	default:
		if AuthErrorFrom(err).Code == ErrCodeUnavailable {
			h.Gateway.logger().ErrorContext(r.Context(), "error submitting secret", "error", err)
		}
		writeAuthError(err, "", w, r)
	}
}
