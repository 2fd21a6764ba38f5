package secretgate

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/alexedwards/scs/v2/memstore"
	"github.com/golang-jwt/jwt/v5"
)

const (
	sessionKeyUserID    = "userId"
	sessionKeyCreatedAt = "createdAt"
)

// Session is the result of a successful authentication
type Session struct {
	// Token is the opaque bearer value handed to the client
	Token     string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionManager issues and validates session tokens.
//
// Server side state (the bound user id) lives in an scs store keyed by a
// random session id. The client receives an HS256 token wrapping that id so a
// token cannot be minted without the signing key. Lifetime is the absolute
// expiry, IdleTimeout (if set) expires sessions that are not used.
type SessionManager struct {
	Sessions *scs.SessionManager
	Users    UserStore
	Issuer   string
	Logger   *slog.Logger

	signingKey []byte
}

// NewSessionManager creates a session manager backed by store.
// A nil store uses an in-memory store without a background cleanup goroutine.
// An empty signingKey generates a random one, so sessions will not survive a restart.
func NewSessionManager(users UserStore, store scs.Store, signingKey string) *SessionManager {
	sessions := scs.New()
	if store == nil {
		store = memstore.NewWithCleanupInterval(0)
	}
	sessions.Store = store
	sessions.HashTokenInStore = true
	sessions.Cookie.Name = "secretgate_session"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode

	out := &SessionManager{
		Sessions: sessions,
		Users:    users,
		Issuer:   "secretgate",
	}
	if signingKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("failed to generate session signing key: %v", err))
		}
		out.logger().Warn("no session signing key configured, using an ephemeral key")
		out.signingKey = key
	} else {
		out.signingKey = []byte(signingKey)
	}
	return out
}

func (m *SessionManager) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

// Establish binds a new session to the user and returns its token.
// Only the user id is stored, never any credential.
func (m *SessionManager) Establish(ctx context.Context, user *User) (*Session, error) {
	if user == nil || user.ID == "" {
		return nil, ErrUserNotFound
	}

	sctx, err := m.Sessions.Load(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrPersistenceConflict, err)
	}
	now := time.Now()
	m.Sessions.Put(sctx, sessionKeyUserID, user.ID)
	m.Sessions.Put(sctx, sessionKeyCreatedAt, now.Unix())

	sid, _, err := m.Sessions.Commit(sctx)
	if err != nil {
		return nil, fmt.Errorf("%w: commit session: %v", ErrPersistenceConflict, err)
	}

	expiresAt := now.Add(m.Sessions.Lifetime)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ID:        sid,
		Subject:   user.ID,
		Issuer:    m.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}).SignedString(m.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	return &Session{
		Token:     token,
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate resolves a token back to its user.
// A nil user with a nil error means the caller is anonymous: the token is
// malformed, expired, destroyed, or its user no longer exists. Errors are
// only returned when the session or user store fails.
func (m *SessionManager) Validate(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, nil
	}
	claims, err := m.parse(token, true)
	if err != nil {
		m.logger().DebugContext(ctx, "rejecting session token", "error", err)
		return nil, nil
	}

	sctx, err := m.Sessions.Load(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrPersistenceConflict, err)
	}
	userId := m.Sessions.GetString(sctx, sessionKeyUserID)
	if userId == "" || userId != claims.Subject {
		return nil, nil
	}

	user, err := m.Users.GetUserById(ctx, userId)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			if err := m.Sessions.Destroy(sctx); err != nil {
				m.logger().WarnContext(ctx, "error destroying orphaned session", "error", err)
			}
			return nil, nil
		}
		return nil, storeError("get session user", err)
	}

	// push the idle deadline forward
	if m.Sessions.IdleTimeout > 0 {
		if _, _, err := m.Sessions.Commit(sctx); err != nil {
			m.logger().WarnContext(ctx, "error refreshing session idle timeout", "error", err)
		}
	}
	return user, nil
}

// Destroy removes the server side state of a session. Destroying an unknown,
// expired or already destroyed session is a no-op.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := m.parse(token, false)
	if err != nil {
		return nil
	}
	sctx, err := m.Sessions.Load(ctx, claims.ID)
	if err != nil {
		return fmt.Errorf("%w: load session: %v", ErrPersistenceConflict, err)
	}
	if m.Sessions.Token(sctx) == "" {
		return nil
	}
	if err := m.Sessions.Destroy(sctx); err != nil {
		return fmt.Errorf("%w: destroy session: %v", ErrPersistenceConflict, err)
	}
	return nil
}

func (m *SessionManager) parse(token string, validateClaims bool) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if validateClaims {
		opts = append(opts, jwt.WithIssuer(m.Issuer), jwt.WithExpirationRequired())
	} else {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("token has no session")
	}
	return claims, nil
}
