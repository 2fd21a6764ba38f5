package grpc

import (
	"context"
	"errors"
	"testing"

	"github.com/panyam/secretgate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type fakeAuth struct {
	users map[string]*secretgate.User
	err   error
}

func (f *fakeAuth) RequireAuthenticated(ctx context.Context, token string) (*secretgate.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[token]; ok {
		return u, nil
	}
	return nil, secretgate.ErrUnauthenticated
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{users: map[string]*secretgate.User{"good": {ID: "user123"}}}
}

func withToken(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultMetadataKeySessionToken, token))
}

func expectCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("expected grpc status error, got %v", err)
	}
	if st.Code() != code {
		t.Errorf("expected %v, got %v", code, st.Code())
	}
}

func TestNewInterceptorConfig(t *testing.T) {
	config := NewInterceptorConfig(newFakeAuth(), "/pkg.Svc/Public")
	if !config.RequireAuth {
		t.Error("expected RequireAuth to be true")
	}
	if !config.PublicMethods["/pkg.Svc/Public"] {
		t.Error("expected Public to be public")
	}
	if config.PublicMethods["/pkg.Svc/Private"] {
		t.Error("expected Private to not be public")
	}
	if OptionalAuthConfig(newFakeAuth()).RequireAuth {
		t.Error("expected RequireAuth to be false")
	}
}

func TestUnaryAuthInterceptor(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: "/pkg.Svc/Method"}

	tests := []struct {
		name       string
		config     *InterceptorConfig
		ctx        context.Context
		wantCode   codes.Code
		wantUserID string
	}{
		{"no token", NewInterceptorConfig(newFakeAuth()), context.Background(), codes.Unauthenticated, ""},
		{"destroyed session", NewInterceptorConfig(newFakeAuth()), withToken("stale"), codes.Unauthenticated, ""},
		{"valid session", NewInterceptorConfig(newFakeAuth()), withToken("good"), codes.OK, "user123"},
		{"public method", NewInterceptorConfig(newFakeAuth(), "/pkg.Svc/Method"), context.Background(), codes.OK, ""},
		{"optional with stale token", OptionalAuthConfig(newFakeAuth()), withToken("stale"), codes.OK, ""},
		{"optional with valid token", OptionalAuthConfig(newFakeAuth()), withToken("good"), codes.OK, "user123"},
		{"store failure", NewInterceptorConfig(&fakeAuth{err: errors.New("db down")}), withToken("good"), codes.Unavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			interceptor := UnaryAuthInterceptor(tt.config)
			var gotUserID string
			handlerCalled := false
			_, err := interceptor(tt.ctx, nil, info, func(ctx context.Context, req any) (any, error) {
				handlerCalled = true
				gotUserID = UserIDFromContext(ctx)
				return "ok", nil
			})

			if tt.wantCode != codes.OK {
				expectCode(t, err, tt.wantCode)
				if handlerCalled {
					t.Error("handler should not be called")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !handlerCalled {
				t.Fatal("handler should be called")
			}
			if gotUserID != tt.wantUserID {
				t.Errorf("expected user %q, got %q", tt.wantUserID, gotUserID)
			}
		})
	}
}

type mockServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (m *mockServerStream) Context() context.Context { return m.ctx }

func TestStreamAuthInterceptor(t *testing.T) {
	info := &grpc.StreamServerInfo{FullMethod: "/pkg.Svc/Stream"}
	interceptor := StreamAuthInterceptor(NewInterceptorConfig(newFakeAuth()))

	t.Run("rejects anonymous stream", func(t *testing.T) {
		err := interceptor(nil, &mockServerStream{ctx: context.Background()}, info, func(srv any, stream grpc.ServerStream) error {
			t.Error("handler should not be called")
			return nil
		})
		expectCode(t, err, codes.Unauthenticated)
	})

	t.Run("exposes user on stream context", func(t *testing.T) {
		var gotUserID string
		err := interceptor(nil, &mockServerStream{ctx: withToken("good")}, info, func(srv any, stream grpc.ServerStream) error {
			gotUserID = UserIDFromContext(stream.Context())
			return nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotUserID != "user123" {
			t.Errorf("expected user123, got %q", gotUserID)
		}
	})
}
