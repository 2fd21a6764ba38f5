// Package secretgate is the authentication gateway of a small secrets sharing
// service.
//
// Users sign in either with a local username and password or through a
// federated provider (Google, Facebook). Both paths end in the same place: a
// Session bound to a User id. Authenticated users may submit free-text
// secrets, and anyone may read the anonymized list of secrets.
//
// # Architecture
//
// LocalCredentials: registers local accounts and verifies passwords. Passwords
// are hashed with argon2id under a per-user random salt and compared in
// constant time.
//
// IdentityResolver: maps a provider's verified subject id to a User, creating
// the User on first login. Creation is a single atomic store operation, so
// concurrent first logins for one subject id produce one User.
//
// SessionManager: issues, validates and destroys sessions. Server side state
// lives in an scs store; the client holds a signed token referencing it.
//
// Authenticator: the orchestrator over the three components above. Every
// operation takes the session token explicitly; there is no global current user.
//
// # Basic Usage
//
//	store := gorm.NewUserStore(db)
//	sessions := secretgate.NewSessionManager(store, nil, os.Getenv("SESSION_SECRET"))
//	auth := secretgate.NewAuthenticator(store, sessions)
//
//	session, err := auth.Register(ctx, "alice", "correct horse")
//	user, err := auth.RequireAuthenticated(ctx, session.Token)
//	err = auth.SubmitSecret(ctx, session.Token, "I still sleep with a nightlight")
//
// Over HTTP, wrap the Authenticator in a Gateway:
//
//	gw := secretgate.NewGateway(auth)
//	local := &secretgate.LocalAuth{Gateway: gw, LoginURL: "/login"}
//	gw.AddAuth("/google", oauth2.NewGoogleOAuth2(id, secret, callback, gw.HandleFederatedUser, gw.HandleFederatedFailure))
//	mux.Handle("/auth/", http.StripPrefix("/auth", gw.Handler()))
//	mux.Handle("/auth/login", local)
//
// # Store Implementations
//
// The stores subpackages provide a file based store (stores/fs), a gorm store
// for sqlite and postgres (stores/gorm) and a Google Cloud Datastore store
// (stores/gae). All of them enforce sparse uniqueness on username and on each
// provider subject id.
//
// # Errors
//
// Operations return the sentinel errors in errors.go, or an *AuthError
// wrapping one. Store outages surface as ErrPersistenceConflict and are never
// reported as ErrUserNotFound.
package secretgate
