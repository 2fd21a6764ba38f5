package client

import (
	"net/http"
)

// AuthTransport wraps an http.RoundTripper to add a fixed bearer token
type AuthTransport struct {
	Base  http.RoundTripper
	Token string
}

// RoundTrip implements http.RoundTripper
func (t *AuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(withBearer(req, t.Token))
}

// NewAuthTransport creates an AuthTransport with the given session token
func NewAuthTransport(token string) *AuthTransport {
	return &AuthTransport{Base: http.DefaultTransport, Token: token}
}

func withBearer(req *http.Request, token string) *http.Request {
	if token == "" {
		return req
	}
	// Clone the request to avoid mutating the original
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// sessionTransport sends the stored session token and drops it once the
// server stops accepting it. Sessions cannot be refreshed, only re-established.
type sessionTransport struct {
	client *SessionClient
	base   http.RoundTripper
}

func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.client.Token()
	if err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(withBearer(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized && token != "" {
		if err := t.client.forget(); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}
	return resp, nil
}
