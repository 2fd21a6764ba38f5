package secretgate_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sg "github.com/panyam/secretgate"
)

// TestRegisterAndVerify tests that a registered credential verifies and nothing else does
func TestRegisterAndVerify(t *testing.T) {
	forEachStore(t, func(t *testing.T, auth *sg.Authenticator) {
		ctx := context.Background()
		creds := auth.Credentials

		user, err := creds.Register(ctx, "alice", "password123")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if user.ID == "" || user.Username != "alice" {
			t.Fatalf("Unexpected user: %+v", user)
		}
		if len(user.Salt) == 0 || bytes.Equal(user.PasswordHash, []byte("password123")) {
			t.Fatal("Password must be stored salted and hashed")
		}

		verified, err := creds.Verify(ctx, "alice", "password123")
		if err != nil {
			t.Fatalf("Verify failed: %v", err)
		}
		if verified.ID != user.ID {
			t.Errorf("Expected user %s, got %s", user.ID, verified.ID)
		}

		if _, err := creds.Verify(ctx, "alice", "password124"); !errors.Is(err, sg.ErrInvalidCredential) {
			t.Errorf("Expected ErrInvalidCredential, got %v", err)
		}
		if _, err := creds.Verify(ctx, "bob", "password123"); !errors.Is(err, sg.ErrUserNotFound) {
			t.Errorf("Expected ErrUserNotFound, got %v", err)
		}
		if _, err := creds.Verify(ctx, "alice", ""); !errors.Is(err, sg.ErrInvalidCredential) {
			t.Errorf("Expected ErrInvalidCredential for empty password, got %v", err)
		}
		if _, err := creds.Verify(ctx, "", "password123"); !errors.Is(err, sg.ErrUserNotFound) {
			t.Errorf("Expected ErrUserNotFound for empty username, got %v", err)
		}
	})
}

// TestRegisterDuplicateUsername tests that the first account survives a duplicate registration
func TestRegisterDuplicateUsername(t *testing.T) {
	forEachStore(t, func(t *testing.T, auth *sg.Authenticator) {
		ctx := context.Background()
		first, err := auth.Credentials.Register(ctx, "alice", "password123")
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		_, err = auth.Register(ctx, "alice", "different-password")
		if !errors.Is(err, sg.ErrDuplicateUsername) {
			t.Fatalf("Expected ErrDuplicateUsername, got %v", err)
		}
		if code := sg.AuthErrorFrom(err).Code; code != sg.ErrCodeUsernameTaken {
			t.Errorf("Expected code %s, got %s", sg.ErrCodeUsernameTaken, code)
		}

		user, err := auth.Credentials.Verify(ctx, "alice", "password123")
		if err != nil || user.ID != first.ID {
			t.Errorf("Original credential must still verify: %v", err)
		}
		if _, err := auth.Credentials.Verify(ctx, "alice", "different-password"); err == nil {
			t.Error("Duplicate registration must not change the password")
		}
	})
}

// TestUsernamesAreCaseSensitive tests that usernames are compared exactly
func TestUsernamesAreCaseSensitive(t *testing.T) {
	auth := setupTestAuth(t)
	ctx := context.Background()

	if _, err := auth.Credentials.Register(ctx, "Alice", "password123"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := auth.Credentials.Register(ctx, "alice", "password123"); err != nil {
		t.Fatalf("Expected alice to be distinct from Alice: %v", err)
	}
}

// TestLoginLocal tests that sessions are only issued for verified credentials
func TestLoginLocal(t *testing.T) {
	auth := setupTestAuth(t)
	ctx := context.Background()

	registered, err := auth.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if registered.Token == "" {
		t.Fatal("Register must log the user in")
	}

	session, err := auth.LoginLocal(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("LoginLocal failed: %v", err)
	}
	if session.UserID != registered.UserID {
		t.Errorf("Expected session for %s, got %s", registered.UserID, session.UserID)
	}
	if !session.ExpiresAt.After(session.CreatedAt) {
		t.Error("Session must expire after it was created")
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"wrong password", "alice", "wrong-password", sg.ErrInvalidCredential},
		{"unknown user", "mallory", "password123", sg.ErrUserNotFound},
		{"empty username", "", "password123", sg.ErrUserNotFound},
		{"empty password", "alice", "", sg.ErrInvalidCredential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, err := auth.LoginLocal(ctx, tt.username, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
			if session != nil {
				t.Error("No session may be created on failure")
			}
		})
	}
}

// TestPasswordHasher tests salting and verification
func TestPasswordHasher(t *testing.T) {
	hash1, salt1, err := testHasher.Hash("password123")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	hash2, salt2, _ := testHasher.Hash("password123")
	if bytes.Equal(salt1, salt2) || bytes.Equal(hash1, hash2) {
		t.Error("Every hash must use a fresh salt")
	}
	if !testHasher.Verify("password123", hash1, salt1) {
		t.Error("Expected password to verify")
	}
	if testHasher.Verify("password123", hash1, salt2) {
		t.Error("Wrong salt must not verify")
	}
	if testHasher.Verify("password123", nil, nil) {
		t.Error("Missing hash must not verify")
	}
}
