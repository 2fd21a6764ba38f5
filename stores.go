package secretgate

import (
	"context"
	"time"
)

// Provider identifies a federated identity provider
type Provider string

const (
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Providers lists every federated provider a User can be linked to
var Providers = []Provider{ProviderGoogle, ProviderFacebook}

// Valid reports whether p is one of the known providers
func (p Provider) Valid() bool {
	switch p {
	case ProviderGoogle, ProviderFacebook:
		return true
	}
	return false
}

// ParseProvider converts a provider name (as used in routes) to a Provider
func ParseProvider(name string) (Provider, error) {
	p := Provider(name)
	if !p.Valid() {
		return "", ErrUnknownProvider
	}
	return p, nil
}

// Secret is a free-text entry owned by exactly one user
type Secret struct {
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// User represents one human account.
//
// Username, GoogleID and FacebookID are empty when absent. PasswordHash and
// Salt are only set for users that registered locally.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username,omitempty"`
	PasswordHash []byte    `json:"-"`
	Salt         []byte    `json:"-"`
	GoogleID     string    `json:"google_id,omitempty"`
	FacebookID   string    `json:"facebook_id,omitempty"`
	Secrets      []Secret  `json:"secrets,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasLocalCredential returns true if the user can log in with a password
func (u *User) HasLocalCredential() bool {
	return u.Username != "" && len(u.PasswordHash) > 0
}

// SubjectID returns the id the user is linked to at the given provider, if any
func (u *User) SubjectID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderFacebook:
		return u.FacebookID
	}
	return ""
}

// SetSubjectID sets the provider specific id on the user
func (u *User) SetSubjectID(p Provider, subjectID string) {
	switch p {
	case ProviderGoogle:
		u.GoogleID = subjectID
	case ProviderFacebook:
		u.FacebookID = subjectID
	}
}

// UserStore persists users and their secrets.
//
// Implementations must enforce sparse uniqueness on username and on each
// provider subject id, and must return the package sentinel errors
// (ErrDuplicateUsername, ErrUserNotFound, ErrAlreadyLinked) so callers can
// tell domain outcomes apart from store failures.
type UserStore interface {
	// CreateLocalUser creates a user with a local credential.
	// Returns ErrDuplicateUsername if the username is taken.
	CreateLocalUser(ctx context.Context, username string, passwordHash, salt []byte) (*User, error)

	// GetUserById retrieves a user (with secrets) by id
	GetUserById(ctx context.Context, userId string) (*User, error)

	// GetUserByUsername retrieves a user by local username
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// FindOrCreateByProvider returns the user linked to the provider subject id,
	// creating one in a single atomic step if none exists.
	FindOrCreateByProvider(ctx context.Context, provider Provider, subjectID string) (user *User, created bool, err error)

	// LinkProvider attaches a provider subject id to an existing user
	LinkProvider(ctx context.Context, userId string, provider Provider, subjectID string) (*User, error)

	// AppendSecret adds a secret to the user's collection atomically
	AppendSecret(ctx context.Context, userId string, content string) error

	// ListUsersWithSecrets returns users that have at least one secret, in a stable order
	ListUsersWithSecrets(ctx context.Context) ([]*User, error)
}
