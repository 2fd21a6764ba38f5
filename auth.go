package secretgate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Authenticator is the single entry point reconciling local and federated
// logins into one outcome: a Session or an error.
type Authenticator struct {
	Credentials *LocalCredentials
	Identities  *IdentityResolver
	Sessions    *SessionManager
	Logger      *slog.Logger
}

// NewAuthenticator wires the credential store, identity resolver and session
// manager around a single UserStore
func NewAuthenticator(store UserStore, sessions *SessionManager) *Authenticator {
	return &Authenticator{
		Credentials: NewLocalCredentials(store),
		Identities:  NewIdentityResolver(store),
		Sessions:    sessions,
	}
}

func (a *Authenticator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// LoginLocal verifies a username/password pair and establishes a session.
// No session is created unless the credential check succeeds.
func (a *Authenticator) LoginLocal(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.Credentials.Verify(ctx, username, password)
	if err != nil {
		a.logger().InfoContext(ctx, "local login failed", "username", username, "error", err)
		return nil, err
	}
	return a.Sessions.Establish(ctx, user)
}

// LoginFederated resolves (or creates) the user linked to a provider subject
// id and establishes a session. The subject id must already have been
// verified by the provider integration.
func (a *Authenticator) LoginFederated(ctx context.Context, provider Provider, subjectID string) (*Session, error) {
	user, err := a.Identities.FindOrCreate(ctx, provider, subjectID)
	if err != nil {
		a.logger().WarnContext(ctx, "federated login failed", "provider", provider, "error", err)
		return nil, err
	}
	return a.Sessions.Establish(ctx, user)
}

// Register creates a local account and logs it in
func (a *Authenticator) Register(ctx context.Context, username, password string) (*Session, error) {
	user, err := a.Credentials.Register(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return a.Sessions.Establish(ctx, user)
}

// RequireAuthenticated returns the user owning the session or ErrUnauthenticated.
// Store failures are returned as is so callers don't mistake an outage for a logout.
func (a *Authenticator) RequireAuthenticated(ctx context.Context, token string) (*User, error) {
	user, err := a.Sessions.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	return user, nil
}

// Logout destroys the session. Logging out twice is not an error.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	return a.Sessions.Destroy(ctx, token)
}

// LinkFederated attaches a provider identity to the logged in user
func (a *Authenticator) LinkFederated(ctx context.Context, token string, provider Provider, subjectID string) (*User, error) {
	user, err := a.RequireAuthenticated(ctx, token)
	if err != nil {
		return nil, err
	}
	if user.SubjectID(provider) == subjectID {
		return user, nil
	}
	return a.Identities.Link(ctx, user.ID, provider, subjectID)
}

// SubmitSecret appends a secret for the logged in user
func (a *Authenticator) SubmitSecret(ctx context.Context, token, content string) error {
	user, err := a.RequireAuthenticated(ctx, token)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		return &AuthError{Code: ErrCodeMissingField, Message: "Secret is required", Field: "secret", Err: ErrInvalidInput}
	}
	err = a.Credentials.AppendSecret(ctx, user.ID, content)
	if errors.Is(err, ErrUserNotFound) {
		// user vanished between validation and the append
		return ErrUnauthenticated
	}
	return err
}

// ListSecrets returns the users that have submitted secrets
func (a *Authenticator) ListSecrets(ctx context.Context) ([]*User, error) {
	return a.Credentials.ListUsersWithSecrets(ctx)
}
