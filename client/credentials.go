// Package client is a Go client for a secretgate server. It logs in with a
// username and password, keeps the session token in a CredentialStore and
// sends it as a bearer token on every request.
package client

import (
	"time"
)

// ServerCredential is the session held for one server
type ServerCredential struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id,omitempty"`
	Username  string    `json:"username,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IsExpired returns true if the session has passed its absolute expiry.
// The server may still end it earlier (logout or idle timeout).
func (c *ServerCredential) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// CredentialStore defines the interface for storing and retrieving credentials
type CredentialStore interface {
	// GetCredential retrieves a credential for a server URL
	// Returns nil, nil if no credential exists for the server
	GetCredential(serverURL string) (*ServerCredential, error)

	// SetCredential stores a credential for a server URL
	SetCredential(serverURL string, cred *ServerCredential) error

	// RemoveCredential removes a credential for a server URL
	RemoveCredential(serverURL string) error

	// Save persists any pending changes (for stores that batch writes)
	Save() error
}

// MemoryCredentialStore keeps credentials for the life of the process
type MemoryCredentialStore struct {
	servers map[string]*ServerCredential
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{servers: map[string]*ServerCredential{}}
}

func (m *MemoryCredentialStore) GetCredential(serverURL string) (*ServerCredential, error) {
	return m.servers[serverURL], nil
}

func (m *MemoryCredentialStore) SetCredential(serverURL string, cred *ServerCredential) error {
	m.servers[serverURL] = cred
	return nil
}

func (m *MemoryCredentialStore) RemoveCredential(serverURL string) error {
	delete(m.servers, serverURL)
	return nil
}

func (m *MemoryCredentialStore) Save() error { return nil }
