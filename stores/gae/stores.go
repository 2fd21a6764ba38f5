//go:build !wasm
// +build !wasm

package gae

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	sg "github.com/panyam/secretgate"
)

// Kind constants for Datastore entities
const (
	KindUser    = "User"
	KindSecret  = "Secret"
	KindClaim   = "Claim"
	KindSession = "Session"
)

const claimUsername = "username"

// keys per batch call; Datastore caps mutations at 500 and lookups at 1000
const maxBatchSize = 500

// UserStore implements sg.UserStore using Google Cloud Datastore
type UserStore struct {
	client    *datastore.Client
	namespace string
}

// NewUserStore creates a new Datastore-backed UserStore
func NewUserStore(client *datastore.Client, namespace string) *UserStore {
	return &UserStore{client: client, namespace: namespace}
}

func namespacedKey(namespace, kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = namespace
	return key
}

func (s *UserStore) userKey(userId string) *datastore.Key {
	return namespacedKey(s.namespace, KindUser, userId)
}

func (s *UserStore) claimKey(field, value string) *datastore.Key {
	return namespacedKey(s.namespace, KindClaim, field+":"+value)
}

func (s *UserStore) query(kind string) *datastore.Query {
	q := datastore.NewQuery(kind)
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	return q
}

// createWithClaim creates user together with the claim on field:value.
// Returns the existing claim's user id (and no error) if the value is taken.
func (s *UserStore) createWithClaim(ctx context.Context, user *UserEntity, field, value string) (existingId string, err error) {
	claimKey := s.claimKey(field, value)
	_, err = s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		existingId = ""
		var claim ClaimEntity
		err := tx.Get(claimKey, &claim)
		if err == nil {
			existingId = claim.UserID
			return nil
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}
		if _, err := tx.Put(user.Key, user); err != nil {
			return err
		}
		claim = ClaimEntity{Key: claimKey, UserID: user.Key.Name, CreatedAt: user.CreatedAt}
		_, err = tx.Put(claimKey, &claim)
		return err
	})
	return existingId, err
}

func (s *UserStore) CreateLocalUser(ctx context.Context, username string, passwordHash, salt []byte) (*sg.User, error) {
	now := time.Now()
	entity := &UserEntity{
		Key:          s.userKey(sg.NewUserID()),
		Username:     username,
		PasswordHash: passwordHash,
		Salt:         salt,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	existingId, err := s.createWithClaim(ctx, entity, claimUsername, username)
	if err != nil {
		return nil, err
	}
	if existingId != "" {
		return nil, sg.ErrDuplicateUsername
	}
	return entity.ToUser(nil), nil
}

func (s *UserStore) getEntity(ctx context.Context, userId string) (*UserEntity, error) {
	if userId == "" {
		return nil, sg.ErrUserNotFound
	}
	var entity UserEntity
	if err := s.client.Get(ctx, s.userKey(userId), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, sg.ErrUserNotFound
		}
		return nil, err
	}
	return &entity, nil
}

func (s *UserStore) secretsOf(ctx context.Context, userKey *datastore.Key) ([]sg.Secret, error) {
	var entities []SecretEntity
	if _, err := s.client.GetAll(ctx, s.query(KindSecret).Ancestor(userKey), &entities); err != nil {
		return nil, err
	}
	return sortedSecrets(entities), nil
}

func sortedSecrets(entities []SecretEntity) []sg.Secret {
	slices.SortStableFunc(entities, func(a, b SecretEntity) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Key.ID, b.Key.ID)
	})
	var out []sg.Secret
	for _, e := range entities {
		out = append(out, sg.Secret{Content: e.Content, CreatedAt: e.CreatedAt})
	}
	return out
}

func (s *UserStore) GetUserById(ctx context.Context, userId string) (*sg.User, error) {
	entity, err := s.getEntity(ctx, userId)
	if err != nil {
		return nil, err
	}
	secrets, err := s.secretsOf(ctx, entity.Key)
	if err != nil {
		return nil, err
	}
	return entity.ToUser(secrets), nil
}

func (s *UserStore) lookupClaim(ctx context.Context, field, value string) (string, error) {
	var claim ClaimEntity
	if err := s.client.Get(ctx, s.claimKey(field, value), &claim); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return "", sg.ErrUserNotFound
		}
		return "", err
	}
	return claim.UserID, nil
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*sg.User, error) {
	userId, err := s.lookupClaim(ctx, claimUsername, username)
	if err != nil {
		return nil, err
	}
	return s.GetUserById(ctx, userId)
}

func (s *UserStore) FindOrCreateByProvider(ctx context.Context, provider sg.Provider, subjectID string) (*sg.User, bool, error) {
	if !provider.Valid() {
		return nil, false, sg.ErrUnknownProvider
	}
	if userId, err := s.lookupClaim(ctx, string(provider), subjectID); err == nil {
		user, err := s.GetUserById(ctx, userId)
		return user, false, err
	} else if !errors.Is(err, sg.ErrUserNotFound) {
		return nil, false, err
	}

	now := time.Now()
	entity := &UserEntity{Key: s.userKey(sg.NewUserID()), CreatedAt: now, UpdatedAt: now}
	switch provider {
	case sg.ProviderGoogle:
		entity.GoogleID = subjectID
	case sg.ProviderFacebook:
		entity.FacebookID = subjectID
	}
	existingId, err := s.createWithClaim(ctx, entity, string(provider), subjectID)
	if err != nil {
		return nil, false, err
	}
	if existingId == "" {
		return entity.ToUser(nil), true, nil
	}
	user, err := s.GetUserById(ctx, existingId)
	if errors.Is(err, sg.ErrUserNotFound) {
		return nil, false, fmt.Errorf("%w: claim %s:%s has no user", sg.ErrPersistenceConflict, provider, subjectID)
	}
	return user, false, err
}

func (s *UserStore) LinkProvider(ctx context.Context, userId string, provider sg.Provider, subjectID string) (*sg.User, error) {
	if !provider.Valid() {
		return nil, sg.ErrUnknownProvider
	}
	key := s.userKey(userId)
	claimKey := s.claimKey(string(provider), subjectID)

	var entity UserEntity
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		if err := tx.Get(key, &entity); err != nil {
			if err == datastore.ErrNoSuchEntity {
				return sg.ErrUserNotFound
			}
			return err
		}
		if linked := entity.ToUser(nil).SubjectID(provider); linked != "" {
			if linked == subjectID {
				return nil
			}
			return sg.ErrAlreadyLinked
		}

		var claim ClaimEntity
		err := tx.Get(claimKey, &claim)
		if err == nil {
			return sg.ErrAlreadyLinked
		}
		if err != datastore.ErrNoSuchEntity {
			return err
		}

		now := time.Now()
		switch provider {
		case sg.ProviderGoogle:
			entity.GoogleID = subjectID
		case sg.ProviderFacebook:
			entity.FacebookID = subjectID
		}
		entity.UpdatedAt = now
		if _, err := tx.Put(key, &entity); err != nil {
			return err
		}
		claim = ClaimEntity{Key: claimKey, UserID: userId, CreatedAt: now}
		_, err = tx.Put(claimKey, &claim)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserById(ctx, userId)
}

// AppendSecret stores the secret as a new child entity of the user, so
// concurrent appends never contend on one entity.
func (s *UserStore) AppendSecret(ctx context.Context, userId string, content string) error {
	entity, err := s.getEntity(ctx, userId)
	if err != nil {
		return err
	}
	key := datastore.IncompleteKey(KindSecret, entity.Key)
	key.Namespace = s.namespace
	_, err = s.client.Put(ctx, key, &SecretEntity{Content: content, CreatedAt: time.Now()})
	return err
}

func (s *UserStore) ListUsersWithSecrets(ctx context.Context) ([]*sg.User, error) {
	secretsByUser := map[string][]SecretEntity{}
	var userKeys []*datastore.Key
	it := s.client.Run(ctx, s.query(KindSecret))
	for {
		var entity SecretEntity
		key, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		entity.Key = key
		parent := key.Parent
		if parent == nil {
			continue
		}
		if _, seen := secretsByUser[parent.Name]; !seen {
			userKeys = append(userKeys, parent)
		}
		secretsByUser[parent.Name] = append(secretsByUser[parent.Name], entity)
	}
	if len(userKeys) == 0 {
		return nil, nil
	}

	entities := make([]UserEntity, len(userKeys))
	for start := 0; start < len(userKeys); start += maxBatchSize {
		end := min(start+maxBatchSize, len(userKeys))
		if err := s.client.GetMulti(ctx, userKeys[start:end], entities[start:end]); err != nil {
			return nil, err
		}
	}
	out := make([]*sg.User, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].ToUser(sortedSecrets(secretsByUser[userKeys[i].Name])))
	}
	slices.SortFunc(out, func(a, b *sg.User) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// SessionStore implements scs.Store and scs.CtxStore on Datastore
type SessionStore struct {
	client    *datastore.Client
	namespace string
}

// NewSessionStore creates a new Datastore-backed session store
func NewSessionStore(client *datastore.Client, namespace string) *SessionStore {
	return &SessionStore{client: client, namespace: namespace}
}

func (s *SessionStore) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *SessionStore) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *SessionStore) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *SessionStore) FindCtx(ctx context.Context, token string) ([]byte, bool, error) {
	var entity SessionEntity
	if err := s.client.Get(ctx, namespacedKey(s.namespace, KindSession, token), &entity); err != nil {
		if err == datastore.ErrNoSuchEntity {
			return nil, false, nil
		}
		return nil, false, err
	}
	if !entity.Expiry.After(time.Now()) {
		return nil, false, s.DeleteCtx(ctx, token)
	}
	return entity.Data, true, nil
}

func (s *SessionStore) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	key := namespacedKey(s.namespace, KindSession, token)
	_, err := s.client.Put(ctx, key, &SessionEntity{Key: key, Data: b, Expiry: expiry})
	return err
}

func (s *SessionStore) DeleteCtx(ctx context.Context, token string) error {
	err := s.client.Delete(ctx, namespacedKey(s.namespace, KindSession, token))
	if err == datastore.ErrNoSuchEntity {
		return nil
	}
	return err
}

// DeleteExpired removes expired sessions
func (s *SessionStore) DeleteExpired(ctx context.Context) error {
	q := datastore.NewQuery(KindSession).FilterField("expiry", "<=", time.Now()).KeysOnly()
	if s.namespace != "" {
		q = q.Namespace(s.namespace)
	}
	keys, err := s.client.GetAll(ctx, q, nil)
	if err != nil {
		return err
	}
	for len(keys) > 0 {
		n := min(len(keys), maxBatchSize)
		if err := s.client.DeleteMulti(ctx, keys[:n]); err != nil {
			return err
		}
		keys = keys[n:]
	}
	return nil
}
