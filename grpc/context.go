// Package grpc carries secretgate sessions across gRPC calls: clients send the
// session token as metadata and the server interceptors resolve it to a User.
package grpc

import (
	"context"
	"strings"

	"github.com/panyam/secretgate"
	"google.golang.org/grpc/metadata"
)

const (
	// DefaultMetadataKeySessionToken is the gRPC metadata key carrying the session token
	DefaultMetadataKeySessionToken = "x-session-token"

	metadataKeyAuthorization = "authorization"
)

// Config holds the metadata key configuration.
type Config struct {
	// MetadataKeySessionToken defaults to "x-session-token".
	// An "authorization: Bearer <token>" entry is accepted as well.
	MetadataKeySessionToken string
}

func DefaultConfig() *Config {
	return &Config{MetadataKeySessionToken: DefaultMetadataKeySessionToken}
}

func (c *Config) EnsureDefaults() {
	if c.MetadataKeySessionToken == "" {
		c.MetadataKeySessionToken = DefaultMetadataKeySessionToken
	}
}

// SessionTokenFromContext returns the session token in the incoming metadata, or ""
func SessionTokenFromContext(ctx context.Context, config *Config) string {
	if config == nil {
		config = DefaultConfig()
	}
	config.EnsureDefaults()

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(config.MetadataKeySessionToken); len(values) > 0 && values[0] != "" {
		return values[0]
	}
	for _, v := range md.Get(metadataKeyAuthorization) {
		if token, ok := strings.CutPrefix(v, "Bearer "); ok && token != "" {
			return token
		}
	}
	return ""
}

// SessionTokenToOutgoingContext attaches a session token to outgoing calls
func SessionTokenToOutgoingContext(ctx context.Context, token string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, DefaultMetadataKeySessionToken, token)
}

// UserFromContext returns the user resolved by the auth interceptors, or nil
func UserFromContext(ctx context.Context) *secretgate.User {
	return secretgate.UserFromContext(ctx)
}

// UserIDFromContext returns the authenticated user's id or "" for anonymous calls
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

func IsAuthenticated(ctx context.Context) bool {
	return UserIDFromContext(ctx) != ""
}
