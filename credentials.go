package secretgate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
)

// Credentials represents a username/password pair submitted for signup or login
type Credentials struct {
	Username string
	Password string
}

// SignupPolicy defines what a local registration must satisfy
type SignupPolicy struct {
	MinPasswordLength int
	MaxUsernameLength int
	UsernamePattern   *regexp.Regexp
}

var defaultUsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.@+-]{3,}$`)

// DefaultSignupPolicy returns the policy used when none is configured
func DefaultSignupPolicy() SignupPolicy {
	return SignupPolicy{
		MinPasswordLength: 8,
		MaxUsernameLength: 64,
		UsernamePattern:   defaultUsernamePattern,
	}
}

func (p SignupPolicy) GetMinPasswordLength() int {
	if p.MinPasswordLength > 0 {
		return p.MinPasswordLength
	}
	return 8
}

func (p SignupPolicy) GetUsernamePattern() *regexp.Regexp {
	if p.UsernamePattern != nil {
		return p.UsernamePattern
	}
	return defaultUsernamePattern
}

// Validate checks the credentials against the policy
func (p SignupPolicy) Validate(creds *Credentials) *AuthError {
	if creds.Username == "" {
		return &AuthError{Code: ErrCodeMissingField, Message: "Username is required", Field: "username", Err: ErrInvalidInput}
	}
	if creds.Password == "" {
		return &AuthError{Code: ErrCodeMissingField, Message: "Password is required", Field: "password", Err: ErrInvalidInput}
	}
	if (p.MaxUsernameLength > 0 && len(creds.Username) > p.MaxUsernameLength) || !p.GetUsernamePattern().MatchString(creds.Username) {
		return &AuthError{
			Code:    ErrCodeInvalidUsername,
			Message: "Username must be at least 3 characters and contain only letters, numbers and _ . @ + -",
			Field:   "username",
			Err:     ErrInvalidInput,
		}
	}
	if minLen := p.GetMinPasswordLength(); len(creds.Password) < minLen {
		return &AuthError{
			Code:    ErrCodeWeakPassword,
			Message: fmt.Sprintf("Password must be at least %d characters", minLen),
			Field:   "password",
			Err:     ErrInvalidInput,
		}
	}
	return nil
}

// LocalCredentials owns username/password accounts and their secrets on top of a UserStore
type LocalCredentials struct {
	Store  UserStore
	Hasher *PasswordHasher
	Policy *SignupPolicy
	Logger *slog.Logger
}

func NewLocalCredentials(store UserStore) *LocalCredentials {
	return &LocalCredentials{Store: store}
}

func (c *LocalCredentials) hasher() *PasswordHasher {
	if c.Hasher != nil {
		return c.Hasher
	}
	return DefaultPasswordHasher
}

func (c *LocalCredentials) policy() SignupPolicy {
	if c.Policy != nil {
		return *c.Policy
	}
	return DefaultSignupPolicy()
}

func (c *LocalCredentials) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Register creates a local account.
// Returns ErrDuplicateUsername if the username is already taken.
func (c *LocalCredentials) Register(ctx context.Context, username, password string) (*User, error) {
	creds := &Credentials{Username: username, Password: password}
	if authErr := c.policy().Validate(creds); authErr != nil {
		return nil, authErr
	}

	hash, salt, err := c.hasher().Hash(password)
	if err != nil {
		return nil, err
	}

	user, err := c.Store.CreateLocalUser(ctx, username, hash, salt)
	if err != nil {
		return nil, storeError("create user", err)
	}
	c.logger().InfoContext(ctx, "registered local user", "user_id", user.ID)
	return user, nil
}

// Verify checks a username/password pair.
// Returns ErrUserNotFound or ErrInvalidCredential on failure.
func (c *LocalCredentials) Verify(ctx context.Context, username, password string) (*User, error) {
	if username == "" {
		return nil, ErrUserNotFound
	}
	if password == "" {
		return nil, ErrInvalidCredential
	}

	user, err := c.Store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// burn the same cpu as a real check so lookups can't be timed
			c.hasher().derive(password, []byte(username))
			return nil, ErrUserNotFound
		}
		return nil, storeError("get user", err)
	}

	if !c.hasher().Verify(password, user.PasswordHash, user.Salt) {
		return nil, ErrInvalidCredential
	}
	return user, nil
}

// AppendSecret adds a secret to the user's collection
func (c *LocalCredentials) AppendSecret(ctx context.Context, userId, content string) error {
	if userId == "" {
		return ErrUserNotFound
	}
	if err := c.Store.AppendSecret(ctx, userId, content); err != nil {
		return storeError("append secret", err)
	}
	return nil
}

// ListUsersWithSecrets returns every user that has submitted at least one secret
func (c *LocalCredentials) ListUsersWithSecrets(ctx context.Context) ([]*User, error) {
	users, err := c.Store.ListUsersWithSecrets(ctx)
	if err != nil {
		return nil, storeError("list users", err)
	}
	out := users[:0]
	for _, u := range users {
		if len(u.Secrets) > 0 {
			out = append(out, u)
		}
	}
	return out, nil
}
