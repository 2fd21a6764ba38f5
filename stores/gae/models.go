//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"

	sg "github.com/panyam/secretgate"
)

// UserEntity is the Datastore entity for users. Key name is the user id.
type UserEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Username     string         `datastore:"username"`
	PasswordHash []byte         `datastore:"password_hash,noindex"`
	Salt         []byte         `datastore:"salt,noindex"`
	GoogleID     string         `datastore:"google_id"`
	FacebookID   string         `datastore:"facebook_id"`
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser(secrets []sg.Secret) *sg.User {
	return &sg.User{
		ID:           e.Key.Name,
		Username:     e.Username,
		PasswordHash: e.PasswordHash,
		Salt:         e.Salt,
		GoogleID:     e.GoogleID,
		FacebookID:   e.FacebookID,
		Secrets:      secrets,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

// SecretEntity is a child of the owning UserEntity with an allocated id
type SecretEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Content   string         `datastore:"content,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// ClaimEntity reserves a unique value for one user.
// Key format: Field + ":" + Value, where Field is "username" or a provider name
type ClaimEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	UserID    string         `datastore:"user_id"`
	CreatedAt time.Time      `datastore:"created_at"`
}

// SessionEntity holds scs session data. Key name is the session token.
type SessionEntity struct {
	Key    *datastore.Key `datastore:"__key__"`
	Data   []byte         `datastore:"data,noindex"`
	Expiry time.Time      `datastore:"expiry"`
}
