package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/panyam/secretgate/config"
	"github.com/panyam/secretgate/stores/fs"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		BaseURL:         "http://localhost",
		SessionSecret:   "test-secret",
		SessionLifetime: time.Hour,
		CookieName:      "secretgate_session",
		StoreDriver:     config.DriverFS,
		StoragePath:     t.TempDir(),
	}
}

func TestRouterEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	srv := httptest.NewServer(newRouter(cfg, fs.NewFSUserStore(cfg.StoragePath), nil))
	defer srv.Close()
	client := srv.Client()

	// register over JSON and pick up the token
	resp, err := client.Post(srv.URL+"/auth/register", "application/json",
		strings.NewReader(`{"username": "alice", "password": "password123"}`))
	if err != nil {
		t.Fatal(err)
	}
	var registered struct {
		Token  string `json:"token"`
		UserID string `json:"user_id"`
	}
	json.NewDecoder(resp.Body).Decode(&registered)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || registered.Token == "" {
		t.Fatalf("register failed: status %d", resp.StatusCode)
	}

	// anonymous submit is rejected
	resp, err = client.Post(srv.URL+"/submit", "application/json", strings.NewReader(`{"secret": "nope"}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for anonymous submit, got %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/submit", strings.NewReader(`{"secret": "i like go"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+registered.Token)
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for submit, got %d", resp.StatusCode)
	}

	resp, err = client.Get(srv.URL + "/secrets")
	if err != nil {
		t.Fatal(err)
	}
	var listed struct {
		Secrets []string `json:"secrets"`
	}
	json.NewDecoder(resp.Body).Decode(&listed)
	resp.Body.Close()
	if len(listed.Secrets) != 1 || listed.Secrets[0] != "i like go" {
		t.Fatalf("unexpected secrets %v", listed.Secrets)
	}
}

func TestRouterLoginFailureRedirects(t *testing.T) {
	cfg := testConfig(t)
	handler := newRouter(cfg, fs.NewFSUserStore(cfg.StoragePath), nil)

	form := url.Values{"username": {"ghost"}, "password": {"password123"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusSeeOther && rr.Code != http.StatusFound {
		t.Fatalf("expected redirect, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "/login") {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestRouterProvidersMountedWhenConfigured(t *testing.T) {
	cfg := testConfig(t)
	cfg.Google = config.ProviderConfig{ClientID: "gid", ClientSecret: "gsecret"}
	handler := newRouter(cfg, fs.NewFSUserStore(cfg.StoragePath), nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/google/", nil))
	if rr.Code != http.StatusFound {
		t.Fatalf("expected redirect to google, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.Contains(loc, "accounts.google.com") {
		t.Fatalf("unexpected location %q", loc)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/auth/facebook/", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("facebook is not configured, expected 404, got %d", rr.Code)
	}
}
