package secretgate_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	sg "github.com/panyam/secretgate"
	"github.com/panyam/secretgate/stores/fs"
)

var errConnectionRefused = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

// flakyStore fails every lookup while down is set
type flakyStore struct {
	sg.UserStore
	down atomic.Bool
}

func (s *flakyStore) GetUserById(ctx context.Context, userId string) (*sg.User, error) {
	if s.down.Load() {
		return nil, errConnectionRefused
	}
	return s.UserStore.GetUserById(ctx, userId)
}

func (s *flakyStore) GetUserByUsername(ctx context.Context, username string) (*sg.User, error) {
	if s.down.Load() {
		return nil, errConnectionRefused
	}
	return s.UserStore.GetUserByUsername(ctx, username)
}

func (s *flakyStore) FindOrCreateByProvider(ctx context.Context, provider sg.Provider, subjectID string) (*sg.User, bool, error) {
	if s.down.Load() {
		return nil, false, errConnectionRefused
	}
	return s.UserStore.FindOrCreateByProvider(ctx, provider, subjectID)
}

// setupOutage returns an Authenticator with one logged in user whose store is now down
func setupOutage(t *testing.T) (*sg.Authenticator, *sg.Session) {
	t.Helper()
	store := &flakyStore{UserStore: fs.NewFSUserStore(t.TempDir())}
	auth := newTestAuth(t, store)
	session, err := auth.Register(context.Background(), "alice", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	store.down.Store(true)
	return auth, session
}

func assertOutage(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, sg.ErrPersistenceConflict) {
		t.Errorf("Expected ErrPersistenceConflict, got %v", err)
	}
	if errors.Is(err, sg.ErrUserNotFound) || errors.Is(err, sg.ErrUnauthenticated) {
		t.Errorf("Outage must not look like a missing user or a logout: %v", err)
	}
	if code := sg.AuthErrorFrom(err).Code; code != sg.ErrCodeUnavailable {
		t.Errorf("Expected code %q, got %q", sg.ErrCodeUnavailable, code)
	}
}

// TestStoreOutage tests that store failures surface as persistence errors
func TestStoreOutage(t *testing.T) {
	ctx := context.Background()

	t.Run("login local", func(t *testing.T) {
		auth, _ := setupOutage(t)
		session, err := auth.LoginLocal(ctx, "alice", "password123")
		if session != nil {
			t.Error("No session may be created during an outage")
		}
		assertOutage(t, err)
	})

	t.Run("login federated", func(t *testing.T) {
		auth, _ := setupOutage(t)
		session, err := auth.LoginFederated(ctx, sg.ProviderGoogle, "g-123")
		if session != nil {
			t.Error("No session may be created during an outage")
		}
		assertOutage(t, err)
	})

	t.Run("require authenticated", func(t *testing.T) {
		auth, session := setupOutage(t)
		user, err := auth.RequireAuthenticated(ctx, session.Token)
		if user != nil {
			t.Errorf("Expected no user, got %v", user)
		}
		assertOutage(t, err)
	})

	t.Run("validate", func(t *testing.T) {
		auth, session := setupOutage(t)
		if _, err := auth.Sessions.Validate(ctx, session.Token); err == nil {
			t.Error("Validate must report the outage instead of returning anonymous")
		}
	})
}

// TestMiddlewareLogsOutage tests that the middleware reports store failures
// through its own logger, or the Authenticator's when it has none
func TestMiddlewareLogsOutage(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("middleware logger", func(t *testing.T) {
		auth, session := setupOutage(t)
		gw := sg.NewGateway(auth)
		var buf bytes.Buffer
		gw.Middleware.Logger = slog.New(slog.NewTextHandler(&buf, nil))

		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rr := httptest.NewRecorder()
		gw.Middleware.EnsureUser(ok).ServeHTTP(rr, req)

		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", rr.Code)
		}
		if !strings.Contains(buf.String(), "error loading session user") {
			t.Errorf("Expected outage to be logged, got %q", buf.String())
		}
	})

	t.Run("authenticator logger", func(t *testing.T) {
		auth, session := setupOutage(t)
		var buf bytes.Buffer
		auth.Logger = slog.New(slog.NewTextHandler(&buf, nil))
		gw := sg.NewGateway(auth)

		req := httptest.NewRequest(http.MethodGet, "/private", nil)
		req.Header.Set("Authorization", "Bearer "+session.Token)
		rr := httptest.NewRecorder()
		gw.Middleware.ExtractUser(ok).ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("ExtractUser should pass through, got %d", rr.Code)
		}
		if !strings.Contains(buf.String(), "error loading session user") {
			t.Errorf("Expected outage to be logged, got %q", buf.String())
		}
	})
}
