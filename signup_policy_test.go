package secretgate_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"testing"

	sg "github.com/panyam/secretgate"
)

func TestSignupPolicyDefaults(t *testing.T) {
	policy := sg.DefaultSignupPolicy()
	if policy.GetMinPasswordLength() != 8 {
		t.Errorf("Expected min password length 8, got %d", policy.GetMinPasswordLength())
	}
	if policy.MaxUsernameLength != 64 {
		t.Errorf("Expected max username length 64, got %d", policy.MaxUsernameLength)
	}

	var zero sg.SignupPolicy
	if zero.GetMinPasswordLength() != 8 || zero.GetUsernamePattern() == nil {
		t.Error("Zero policy must fall back to the defaults")
	}
}

func TestSignupPolicyValidate(t *testing.T) {
	policy := sg.DefaultSignupPolicy()
	tests := []struct {
		name      string
		username  string
		password  string
		wantCode  string
		wantField string
	}{
		{"valid", "alice", "password123", "", ""},
		{"valid email style", "alice@example.com", "password123", "", ""},
		{"missing username", "", "password123", sg.ErrCodeMissingField, "username"},
		{"missing password", "alice", "", sg.ErrCodeMissingField, "password"},
		{"short username", "al", "password123", sg.ErrCodeInvalidUsername, "username"},
		{"bad characters", "al ice", "password123", sg.ErrCodeInvalidUsername, "username"},
		{"long username", strings.Repeat("a", 65), "password123", sg.ErrCodeInvalidUsername, "username"},
		{"weak password", "alice", "short", sg.ErrCodeWeakPassword, "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authErr := policy.Validate(&sg.Credentials{Username: tt.username, Password: tt.password})
			if tt.wantCode == "" {
				if authErr != nil {
					t.Fatalf("Unexpected error: %v", authErr)
				}
				return
			}
			if authErr == nil {
				t.Fatalf("Expected %s error", tt.wantCode)
			}
			if authErr.Code != tt.wantCode || authErr.Field != tt.wantField {
				t.Errorf("Expected %s/%s, got %s/%s", tt.wantCode, tt.wantField, authErr.Code, authErr.Field)
			}
			if !errors.Is(authErr, sg.ErrInvalidInput) {
				t.Error("Policy errors must wrap ErrInvalidInput")
			}
		})
	}
}

func TestSignupPolicyCustom(t *testing.T) {
	auth := setupTestAuth(t)
	auth.Credentials.Policy = &sg.SignupPolicy{
		MinPasswordLength: 12,
		UsernamePattern:   regexp.MustCompile(`^[a-z]+$`),
	}
	ctx := context.Background()

	if _, err := auth.Credentials.Register(ctx, "alice", "password123"); sg.AuthErrorFrom(err).Code != sg.ErrCodeWeakPassword {
		t.Errorf("Expected weak_password, got %v", err)
	}
	if _, err := auth.Credentials.Register(ctx, "Alice", "password123456"); sg.AuthErrorFrom(err).Code != sg.ErrCodeInvalidUsername {
		t.Errorf("Expected invalid_username, got %v", err)
	}
	if _, err := auth.Credentials.Register(ctx, "alice", "password123456"); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestAuthErrorFrom(t *testing.T) {
	tests := []struct {
		err        error
		wantCode   string
		wantStatus int
	}{
		{sg.ErrDuplicateUsername, sg.ErrCodeUsernameTaken, http.StatusConflict},
		{sg.ErrUserNotFound, sg.ErrCodeUserNotFound, http.StatusUnauthorized},
		{sg.ErrInvalidCredential, sg.ErrCodeInvalidCreds, http.StatusUnauthorized},
		{sg.ErrUnauthenticated, sg.ErrCodeUnauthenticated, http.StatusUnauthorized},
		{sg.ErrUnknownProvider, sg.ErrCodeUnknownProvider, http.StatusBadRequest},
		{sg.ErrAlreadyLinked, sg.ErrCodeAlreadyLinked, http.StatusConflict},
		{sg.ErrPersistenceConflict, sg.ErrCodeUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", sg.ErrUserNotFound), sg.ErrCodeUserNotFound, http.StatusUnauthorized},
		{errors.New("disk on fire"), sg.ErrCodeUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			authErr := sg.AuthErrorFrom(tt.err)
			if authErr.Code != tt.wantCode {
				t.Errorf("Expected code %s, got %s", tt.wantCode, authErr.Code)
			}
			if authErr.StatusCode() != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, authErr.StatusCode())
			}
			if !errors.Is(authErr, tt.err) {
				t.Error("AuthError must unwrap to the original error")
			}
		})
	}

	if sg.AuthErrorFrom(nil) != nil {
		t.Error("Expected nil for nil error")
	}
	authErr := sg.NewAuthError(sg.ErrCodeWeakPassword, "too short", "password")
	if sg.AuthErrorFrom(authErr) != authErr {
		t.Error("AuthErrors must pass through unchanged")
	}
}
