package fs

import (
	"cmp"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	sg "github.com/panyam/secretgate"
)

// fsUser is the on-disk form of a user. Unlike sg.User it keeps the credential.
type fsUser struct {
	ID           string      `json:"id"`
	Username     string      `json:"username,omitempty"`
	PasswordHash []byte      `json:"password_hash,omitempty"`
	Salt         []byte      `json:"salt,omitempty"`
	GoogleID     string      `json:"google_id,omitempty"`
	FacebookID   string      `json:"facebook_id,omitempty"`
	Secrets      []sg.Secret `json:"secrets,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

func (u *fsUser) toUser() *sg.User {
	return &sg.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Salt:         u.Salt,
		GoogleID:     u.GoogleID,
		FacebookID:   u.FacebookID,
		Secrets:      slices.Clone(u.Secrets),
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

const indexUsername = "username"

// FSUserStore stores users as JSON files.
//
// Layout:
//
//	users/<id>.json           the user record
//	index/<kind>/<hex key>    the owning user id, one directory per unique field
//
// Index entries are created with a hard link, which fails if the entry exists,
// so uniqueness holds across goroutines and processes sharing the directory.
// Updates to one user are serialized within this process.
type FSUserStore struct {
	StoragePath string

	locks sync.Map // user id -> *sync.Mutex
}

func NewFSUserStore(storagePath string) *FSUserStore {
	return &FSUserStore{StoragePath: storagePath}
}

func (s *FSUserStore) getUserPath(userId string) string {
	// ids are generated by us but may arrive from a session; keep them inside users/
	return filepath.Join(s.StoragePath, "users", filepath.Base(userId)+".json")
}

func (s *FSUserStore) getIndexPath(kind, key string) string {
	return filepath.Join(s.StoragePath, "index", kind, hex.EncodeToString([]byte(key)))
}

func (s *FSUserStore) lockUser(userId string) func() {
	m, _ := s.locks.LoadOrStore(userId, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *FSUserStore) readUser(userId string) (*fsUser, error) {
	if userId == "" || strings.ContainsAny(userId, `/\`) {
		return nil, sg.ErrUserNotFound
	}
	data, err := os.ReadFile(s.getUserPath(userId))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sg.ErrUserNotFound
		}
		return nil, err
	}
	var user fsUser
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("corrupt user record %s: %w", userId, err)
	}
	return &user, nil
}

func (s *FSUserStore) writeUser(user *fsUser) error {
	data, err := json.MarshalIndent(user, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(s.getUserPath(user.ID), data)
}

// claimIndex records userId as the owner of key. Returns false if someone owns it already.
func (s *FSUserStore) claimIndex(kind, key, userId string) (bool, error) {
	err := createExclusiveFile(s.getIndexPath(kind, key), []byte(userId))
	if err == nil {
		return true, nil
	}
	if os.IsExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSUserStore) lookupIndex(kind, key string) (string, error) {
	data, err := os.ReadFile(s.getIndexPath(kind, key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", sg.ErrUserNotFound
		}
		return "", err
	}
	return string(data), nil
}

// createClaimed writes a new user record and then claims the unique key for
// it. If the key is taken the record is removed again and false is returned.
func (s *FSUserStore) createClaimed(user *fsUser, kind, key string) (bool, error) {
	if err := s.writeUser(user); err != nil {
		return false, err
	}
	claimed, err := s.claimIndex(kind, key, user.ID)
	if err != nil || !claimed {
		os.Remove(s.getUserPath(user.ID))
	}
	return claimed, err
}

func (s *FSUserStore) CreateLocalUser(ctx context.Context, username string, passwordHash, salt []byte) (*sg.User, error) {
	now := time.Now()
	user := &fsUser{
		ID:           sg.NewUserID(),
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	claimed, err := s.createClaimed(user, indexUsername, username)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, sg.ErrDuplicateUsername
	}
	return user.toUser(), nil
}

func (s *FSUserStore) GetUserById(ctx context.Context, userId string) (*sg.User, error) {
	user, err := s.readUser(userId)
	if err != nil {
		return nil, err
	}
	return user.toUser(), nil
}

func (s *FSUserStore) GetUserByUsername(ctx context.Context, username string) (*sg.User, error) {
	userId, err := s.lookupIndex(indexUsername, username)
	if err != nil {
		return nil, err
	}
	return s.GetUserById(ctx, userId)
}

func (s *FSUserStore) FindOrCreateByProvider(ctx context.Context, provider sg.Provider, subjectID string) (*sg.User, bool, error) {
	if !provider.Valid() {
		return nil, false, sg.ErrUnknownProvider
	}
	kind := string(provider)
	if userId, err := s.lookupIndex(kind, subjectID); err == nil {
		user, err := s.GetUserById(ctx, userId)
		return user, false, err
	} else if !errors.Is(err, sg.ErrUserNotFound) {
		return nil, false, err
	}

	now := time.Now()
	user := &fsUser{ID: sg.NewUserID(), CreatedAt: now, UpdatedAt: now}
	switch provider {
	case sg.ProviderGoogle:
		user.GoogleID = subjectID
	case sg.ProviderFacebook:
		user.FacebookID = subjectID
	}
	claimed, err := s.createClaimed(user, kind, subjectID)
	if err != nil {
		return nil, false, err
	}
	if claimed {
		return user.toUser(), true, nil
	}

	// lost the race; the winner's index entry is complete once visible
	userId, err := s.lookupIndex(kind, subjectID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s index vanished", sg.ErrPersistenceConflict, provider)
	}
	existing, err := s.GetUserById(ctx, userId)
	return existing, false, err
}

func (s *FSUserStore) LinkProvider(ctx context.Context, userId string, provider sg.Provider, subjectID string) (*sg.User, error) {
	if !provider.Valid() {
		return nil, sg.ErrUnknownProvider
	}
	unlock := s.lockUser(userId)
	defer unlock()

	user, err := s.readUser(userId)
	if err != nil {
		return nil, err
	}
	if linked := user.toUser().SubjectID(provider); linked != "" {
		if linked == subjectID {
			return user.toUser(), nil
		}
		return nil, sg.ErrAlreadyLinked
	}

	claimed, err := s.claimIndex(string(provider), subjectID, userId)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, sg.ErrAlreadyLinked
	}
	switch provider {
	case sg.ProviderGoogle:
		user.GoogleID = subjectID
	case sg.ProviderFacebook:
		user.FacebookID = subjectID
	}
	user.UpdatedAt = time.Now()
	if err := s.writeUser(user); err != nil {
		os.Remove(s.getIndexPath(string(provider), subjectID))
		return nil, err
	}
	return user.toUser(), nil
}

func (s *FSUserStore) AppendSecret(ctx context.Context, userId string, content string) error {
	unlock := s.lockUser(userId)
	defer unlock()

	user, err := s.readUser(userId)
	if err != nil {
		return err
	}
	now := time.Now()
	user.Secrets = append(user.Secrets, sg.Secret{Content: content, CreatedAt: now})
	user.UpdatedAt = now
	return s.writeUser(user)
}

func (s *FSUserStore) ListUsersWithSecrets(ctx context.Context) ([]*sg.User, error) {
	entries, err := os.ReadDir(filepath.Join(s.StoragePath, "users"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []*sg.User
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		user, err := s.readUser(strings.TrimSuffix(name, ".json"))
		if errors.Is(err, sg.ErrUserNotFound) {
			continue // removed while listing
		}
		if err != nil {
			return nil, err
		}
		if len(user.Secrets) > 0 {
			out = append(out, user.toUser())
		}
	}
	slices.SortFunc(out, func(a, b *sg.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}
