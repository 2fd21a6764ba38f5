package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// APIError is an error response from the server
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"error"`
	Field      string `json:"field"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("secretgate: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("secretgate: %s (%s)", e.Message, e.Code)
}

// SessionClient talks to a secretgate server on behalf of one user
type SessionClient struct {
	mu            sync.Mutex
	serverURL     string
	store         CredentialStore
	httpClient    *http.Client
	baseTransport http.RoundTripper

	loginPath    string
	registerPath string
	logoutPath   string
}

// ClientOption configures a SessionClient
type ClientOption func(*SessionClient)

// WithAuthPrefix sets where the server mounts its auth routes (default "/auth")
func WithAuthPrefix(prefix string) ClientOption {
	return func(c *SessionClient) {
		c.loginPath = prefix + "/login"
		c.registerPath = prefix + "/register"
		c.logoutPath = prefix + "/logout"
	}
}

// WithHTTPClient sets a custom base HTTP client (for timeouts, TLS config, etc.)
// The transport from this client will be wrapped with auth handling.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *SessionClient) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.baseTransport = client.Transport
		}
		c.httpClient.Timeout = client.Timeout
		c.httpClient.Jar = client.Jar
	}
}

// NewSessionClient creates a client for the server at serverURL
func NewSessionClient(serverURL string, store CredentialStore, opts ...ClientOption) *SessionClient {
	// only scheme and host identify a server
	u, err := url.Parse(serverURL)
	if err == nil && u.Scheme != "" && u.Host != "" {
		serverURL = fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}

	c := &SessionClient{
		serverURL:     serverURL,
		store:         store,
		httpClient:    &http.Client{},
		baseTransport: http.DefaultTransport,
	}
	WithAuthPrefix("/auth")(c)
	for _, opt := range opts {
		opt(c)
	}

	// redirects would hide the status of API calls
	c.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.httpClient.Transport = &sessionTransport{client: c, base: c.baseTransport}
	return c
}

// HTTPClient returns the underlying HTTP client with auth handling
func (c *SessionClient) HTTPClient() *http.Client {
	return c.httpClient
}

// ServerURL returns the server URL this client is configured for
func (c *SessionClient) ServerURL() string {
	return c.serverURL
}

// Token returns the current session token or "" if there is none
func (c *SessionClient) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cred, err := c.store.GetCredential(c.serverURL)
	if err != nil || cred == nil || cred.IsExpired() {
		return "", err
	}
	return cred.Token, nil
}

// IsLoggedIn returns true if there is a session that has not expired locally
func (c *SessionClient) IsLoggedIn() bool {
	token, err := c.Token()
	return err == nil && token != ""
}

// Login authenticates with username/password and stores the session
func (c *SessionClient) Login(ctx context.Context, username, password string) (*ServerCredential, error) {
	return c.authenticate(ctx, c.loginPath, username, password)
}

// Register creates an account and stores the session it starts
func (c *SessionClient) Register(ctx context.Context, username, password string) (*ServerCredential, error) {
	return c.authenticate(ctx, c.registerPath, username, password)
}

func (c *SessionClient) authenticate(ctx context.Context, path, username, password string) (*ServerCredential, error) {
	var resp struct {
		Token     string    `json:"token"`
		UserID    string    `json:"user_id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	// the base transport avoids sending a stale session along
	httpClient := &http.Client{Transport: c.baseTransport, Timeout: c.httpClient.Timeout}
	err := c.do(ctx, httpClient, http.MethodPost, path, map[string]string{
		"username": username,
		"password": password,
	}, http.StatusOK, &resp)
	if err != nil {
		return nil, err
	}

	cred := &ServerCredential{
		Token:     resp.Token,
		UserID:    resp.UserID,
		Username:  username,
		ExpiresAt: resp.ExpiresAt,
		CreatedAt: time.Now(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.SetCredential(c.serverURL, cred); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}
	if err := c.store.Save(); err != nil {
		return nil, fmt.Errorf("failed to save credentials: %w", err)
	}
	return cred, nil
}

// Logout ends the session on the server and forgets it locally.
// The local credential is removed even if the server cannot be reached.
func (c *SessionClient) Logout(ctx context.Context) error {
	serverErr := c.do(ctx, c.httpClient, http.MethodGet, c.logoutPath, nil, http.StatusOK, nil)
	if err := c.forget(); err != nil {
		return err
	}
	return serverErr
}

func (c *SessionClient) forget() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.RemoveCredential(c.serverURL); err != nil {
		return err
	}
	return c.store.Save()
}

// SubmitSecret adds a secret as the logged in user
func (c *SessionClient) SubmitSecret(ctx context.Context, secret string) error {
	return c.do(ctx, c.httpClient, http.MethodPost, "/submit", map[string]string{"secret": secret}, http.StatusCreated, nil)
}

// ListSecrets returns every secret on the server's wall
func (c *SessionClient) ListSecrets(ctx context.Context) ([]string, error) {
	var resp struct {
		Secrets []string `json:"secrets"`
	}
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/secrets", nil, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return resp.Secrets, nil
}

func (c *SessionClient) do(ctx context.Context, httpClient *http.Client, method, path string, body any, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != wantStatus {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		json.Unmarshal(data, apiErr)
		return apiErr
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("invalid response from server: %w", err)
		}
	}
	return nil
}
