package secretgate_test

import (
	"path/filepath"
	"testing"

	sg "github.com/panyam/secretgate"
	"github.com/panyam/secretgate/stores/fs"
	gormstore "github.com/panyam/secretgate/stores/gorm"
)

const testSigningKey = "test-signing-key"

// cheap argon2 parameters so tests don't allocate 64MiB per hash
var testHasher = &sg.PasswordHasher{Memory: 1024, Threads: 1}

type storeFactory struct {
	name string
	open func(t *testing.T) sg.UserStore
}

var storeFactories = []storeFactory{
	{"fs", func(t *testing.T) sg.UserStore { return fs.NewFSUserStore(t.TempDir()) }},
	{"gorm", openGormStore},
}

func openGormStore(t *testing.T) sg.UserStore {
	t.Helper()
	db, err := gormstore.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := gormstore.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return gormstore.NewUserStore(db)
}

// newTestAuth builds an Authenticator over store with in-memory sessions
func newTestAuth(t *testing.T, store sg.UserStore) *sg.Authenticator {
	t.Helper()
	auth := sg.NewAuthenticator(store, sg.NewSessionManager(store, nil, testSigningKey))
	auth.Credentials.Hasher = testHasher
	return auth
}

// setupTestAuth returns an Authenticator over a fresh fs store
func setupTestAuth(t *testing.T) *sg.Authenticator {
	return newTestAuth(t, fs.NewFSUserStore(t.TempDir()))
}

// forEachStore runs fn against every store implementation
func forEachStore(t *testing.T, fn func(t *testing.T, auth *sg.Authenticator)) {
	for _, f := range storeFactories {
		t.Run(f.name, func(t *testing.T) {
			fn(t, newTestAuth(t, f.open(t)))
		})
	}
}

// setupGateway returns a gateway whose handler is mounted at /auth
func setupGateway(t *testing.T) *sg.Gateway {
	gw := sg.NewGateway(setupTestAuth(t))
	gw.BaseURL = "http://localhost:8080"
	return gw
}
