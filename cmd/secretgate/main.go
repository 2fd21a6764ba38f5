// Command secretgate serves the secrets wall with local, Google and Facebook login.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/alexedwards/scs/v2"
	"github.com/gorilla/mux"

	sg "github.com/panyam/secretgate"
	"github.com/panyam/secretgate/config"
	"github.com/panyam/secretgate/oauth2"
	"github.com/panyam/secretgate/stores/fs"
	"github.com/panyam/secretgate/stores/gae"
	gormstore "github.com/panyam/secretgate/stores/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "secretgate: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg, os.Stderr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("secretgate exited", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.LogJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openStores returns the user store, the scs session store (nil for in-memory)
// and a func releasing their connections
func openStores(ctx context.Context, cfg *config.Config) (sg.UserStore, scs.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.DriverFS:
		return fs.NewFSUserStore(cfg.StoragePath), nil, func() {}, nil
	case config.DriverSQLite, config.DriverPostgres:
		db, err := gormstore.Open(cfg.StoreDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open database: %w", err)
		}
		if err := gormstore.AutoMigrate(db); err != nil {
			return nil, nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		sessions := gormstore.NewSessionStore(db)
		if n, err := sessions.DeleteExpired(ctx); err != nil {
			slog.Warn("error removing expired sessions", "error", err)
		} else if n > 0 {
			slog.Info("removed expired sessions", "count", n)
		}
		closer := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return gormstore.NewUserStore(db), sessions, closer, nil
	case config.DriverDatastore:
		client, err := datastore.NewClient(ctx, cfg.DatastoreProject)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect to datastore: %w", err)
		}
		sessions := gae.NewSessionStore(client, cfg.DatastoreNamespace)
		if err := sessions.DeleteExpired(ctx); err != nil {
			slog.Warn("error removing expired sessions", "error", err)
		}
		closer := func() { client.Close() }
		return gae.NewUserStore(client, cfg.DatastoreNamespace), sessions, closer, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store %q", cfg.StoreDriver)
}

func newRouter(cfg *config.Config, users sg.UserStore, sessionStore scs.Store) *mux.Router {
	sessions := sg.NewSessionManager(users, sessionStore, cfg.SessionSecret)
	sessions.Sessions.Lifetime = cfg.SessionLifetime
	sessions.Sessions.IdleTimeout = cfg.SessionIdleTimeout
	sessions.Sessions.Cookie.Name = cfg.CookieName
	sessions.Sessions.Cookie.Secure = cfg.CookieSecure

	gw := sg.NewGateway(sg.NewAuthenticator(users, sessions))
	gw.BaseURL = cfg.BaseURL
	gw.CookieDomains = cfg.CookieDomains

	if cfg.Google.Enabled() {
		gw.AddAuth("/google", oauth2.NewGoogleOAuth2(cfg.Google.ClientID, cfg.Google.ClientSecret,
			cfg.CallbackURL(cfg.Google, string(sg.ProviderGoogle)), gw.HandleFederatedUser, gw.HandleFederatedFailure))
	}
	if cfg.Facebook.Enabled() {
		gw.AddAuth("/facebook", oauth2.NewFacebookOAuth2(cfg.Facebook.ClientID, cfg.Facebook.ClientSecret,
			cfg.CallbackURL(cfg.Facebook, string(sg.ProviderFacebook)), gw.HandleFederatedUser, gw.HandleFederatedFailure))
	}

	local := &sg.LocalAuth{Gateway: gw, LoginURL: "/login", RegisterURL: "/register"}
	secrets := &sg.SecretsHandler{Gateway: gw}

	r := mux.NewRouter()
	r.Use(logRequests)
	r.Handle("/auth/login", local).Methods(http.MethodPost)
	r.HandleFunc("/auth/register", local.HandleRegister).Methods(http.MethodPost)
	r.PathPrefix("/auth/").Handler(http.StripPrefix("/auth", gw.Handler()))
	r.HandleFunc("/secrets", secrets.HandleList).Methods(http.MethodGet)
	r.HandleFunc("/submit", secrets.HandleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.DebugContext(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func run(ctx context.Context, cfg *config.Config) error {
	users, sessionStore, closeStores, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, users, sessionStore),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	slog.Info("secretgate listening", "addr", srv.Addr, "store", cfg.StoreDriver)
	go func() {
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
