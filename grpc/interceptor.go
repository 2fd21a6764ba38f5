package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/panyam/secretgate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Authenticator resolves a session token to its user.
// *secretgate.Authenticator satisfies it.
type Authenticator interface {
	RequireAuthenticated(ctx context.Context, token string) (*secretgate.User, error)
}

// InterceptorConfig configures the auth interceptor behavior.
type InterceptorConfig struct {
	*Config

	Auth Authenticator

	// RequireAuth when true rejects unauthenticated requests.
	// When false, anonymous requests proceed and UserFromContext returns nil.
	RequireAuth bool

	// PublicMethods don't require auth even when RequireAuth is set.
	// Keys are full method names like "/package.Service/Method".
	PublicMethods map[string]bool
}

// NewInterceptorConfig returns a config that requires auth for all methods but publicMethods
func NewInterceptorConfig(auth Authenticator, publicMethods ...string) *InterceptorConfig {
	config := &InterceptorConfig{
		Config:        DefaultConfig(),
		Auth:          auth,
		RequireAuth:   true,
		PublicMethods: make(map[string]bool),
	}
	for _, method := range publicMethods {
		config.PublicMethods[method] = true
	}
	return config
}

// OptionalAuthConfig returns a config that allows unauthenticated requests.
func OptionalAuthConfig(auth Authenticator) *InterceptorConfig {
	config := NewInterceptorConfig(auth)
	config.RequireAuth = false
	return config
}

func (c *InterceptorConfig) ensureDefaults() {
	if c.Config == nil {
		c.Config = DefaultConfig()
	}
	c.Config.EnsureDefaults()
	if c.PublicMethods == nil {
		c.PublicMethods = make(map[string]bool)
	}
}

// authenticate returns ctx carrying the session's user. Missing, expired or
// destroyed sessions are Unauthenticated; store failures are Unavailable.
func (c *InterceptorConfig) authenticate(ctx context.Context, method string) (context.Context, error) {
	required := c.RequireAuth && !c.PublicMethods[method]
	token := SessionTokenFromContext(ctx, c.Config)
	if token == "" {
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	}

	user, err := c.Auth.RequireAuthenticated(ctx, token)
	switch {
	case err == nil:
		return secretgate.ContextWithUser(ctx, user), nil
	case errors.Is(err, secretgate.ErrUnauthenticated):
		if required {
			return nil, status.Error(codes.Unauthenticated, "authentication required")
		}
		return ctx, nil
	default:
		slog.ErrorContext(ctx, "error validating session", "method", method, "error", err)
		return nil, status.Error(codes.Unavailable, "session store unavailable")
	}
}

func UnaryAuthInterceptor(config *InterceptorConfig) grpc.UnaryServerInterceptor {
	config.ensureDefaults()
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := config.authenticate(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

func StreamAuthInterceptor(config *InterceptorConfig) grpc.StreamServerInterceptor {
	config.ensureDefaults()
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := config.authenticate(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }
