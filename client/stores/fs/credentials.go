// Package fs keeps secretgate client sessions in a JSON file.
//
// Every change is written through immediately, so several processes sharing
// the file (a CLI run twice, say) see each other's logins and logouts.
package fs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/panyam/secretgate/client"
)

// DefaultCredentialPath returns <user config dir>/secretgate/credentials.json
func DefaultCredentialPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("no config directory: %w", err)
	}
	return filepath.Join(dir, "secretgate", "credentials.json"), nil
}

// FSCredentialStore implements client.CredentialStore over one file only its
// owner can read
type FSCredentialStore struct {
	path string
	mu   sync.Mutex
}

func NewFSCredentialStore(path string) *FSCredentialStore {
	return &FSCredentialStore{path: path}
}

type sessionsFile struct {
	Servers map[string]*client.ServerCredential `json:"servers"`
}

func (s *FSCredentialStore) read() (map[string]*client.ServerCredential, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]*client.ServerCredential{}, nil
	} else if err != nil {
		return nil, err
	}
	var f sessionsFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("corrupt credentials file %s: %w", s.path, err)
	}
	if f.Servers == nil {
		f.Servers = map[string]*client.ServerCredential{}
	}
	return f.Servers, nil
}

func (s *FSCredentialStore) write(servers map[string]*client.ServerCredential) error {
	data, err := json.MarshalIndent(sessionsFile{Servers: servers}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	// temp files are created 0600
	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return err
	}
	_, err = tmp.Write(data)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), s.path)
	}
	if err != nil {
		os.Remove(tmp.Name())
	}
	return err
}

// update applies fn to the stored sessions and writes the result back
func (s *FSCredentialStore) update(serverURL string, fn func(servers map[string]*client.ServerCredential, key string)) error {
	key, err := hostKey(serverURL)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	servers, err := s.read()
	if err != nil {
		return err
	}
	fn(servers, key)
	return s.write(servers)
}

// hostKey identifies a server by scheme and host, ignoring any path
func hostKey(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid server url %q", serverURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

func (s *FSCredentialStore) GetCredential(serverURL string) (*client.ServerCredential, error) {
	key, err := hostKey(serverURL)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	servers, err := s.read()
	if err != nil {
		return nil, err
	}
	return servers[key], nil
}

func (s *FSCredentialStore) SetCredential(serverURL string, cred *client.ServerCredential) error {
	return s.update(serverURL, func(servers map[string]*client.ServerCredential, key string) {
		servers[key] = cred
	})
}

func (s *FSCredentialStore) RemoveCredential(serverURL string) error {
	return s.update(serverURL, func(servers map[string]*client.ServerCredential, key string) {
		delete(servers, key)
	})
}

// Save is a no-op: every change is already on disk
func (s *FSCredentialStore) Save() error { return nil }
