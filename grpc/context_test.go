package grpc

import (
	"context"
	"testing"

	"github.com/panyam/secretgate"
	"google.golang.org/grpc/metadata"
)

func TestSessionTokenFromContext(t *testing.T) {
	tests := []struct {
		name     string
		md       metadata.MD
		config   *Config
		expected string
	}{
		{"no metadata", nil, nil, ""},
		{"session token key", metadata.Pairs("x-session-token", "tok1"), nil, "tok1"},
		{"bearer authorization", metadata.Pairs("authorization", "Bearer tok2"), nil, "tok2"},
		{"non bearer authorization ignored", metadata.Pairs("authorization", "Basic abc"), nil, ""},
		{"session key wins", metadata.Pairs("x-session-token", "tok1", "authorization", "Bearer tok2"), nil, "tok1"},
		{"custom key", metadata.Pairs("x-custom", "tok3"), &Config{MetadataKeySessionToken: "x-custom"}, "tok3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}
			if got := SessionTokenFromContext(ctx, tt.config); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestSessionTokenToOutgoingContext(t *testing.T) {
	ctx := SessionTokenToOutgoingContext(context.Background(), "tok")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if values := md.Get(DefaultMetadataKeySessionToken); len(values) != 1 || values[0] != "tok" {
		t.Errorf("unexpected metadata: %v", values)
	}
}

func TestUserIDFromContext(t *testing.T) {
	if IsAuthenticated(context.Background()) {
		t.Error("expected anonymous context")
	}
	ctx := secretgate.ContextWithUser(context.Background(), &secretgate.User{ID: "u1"})
	if got := UserIDFromContext(ctx); got != "u1" {
		t.Errorf("expected u1, got %q", got)
	}
	if !IsAuthenticated(ctx) {
		t.Error("expected authenticated context")
	}
}
