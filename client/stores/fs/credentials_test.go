package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/panyam/secretgate/client"
)

func TestFSCredentialStore_WriteThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFSCredentialStore(path)

	cred, err := store.GetCredential("http://localhost:8080")
	if err != nil || cred != nil {
		t.Fatalf("expected no credential, got %+v (%v)", cred, err)
	}

	want := &client.ServerCredential{
		Token:     "session-token",
		UserID:    "user-1",
		Username:  "alice",
		ExpiresAt: time.Now().Add(time.Hour).Round(0),
	}
	if err := store.SetCredential("http://localhost:8080/some/path", want); err != nil {
		t.Fatalf("SetCredential() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("credentials file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("expected mode 0600, got %o", perm)
	}

	// a second store on the same file sees the login without any Save
	other := NewFSCredentialStore(path)
	got, err := other.GetCredential("http://localhost:8080")
	if err != nil || got == nil {
		t.Fatalf("expected credential from the other store, got %v", err)
	}
	if got.Token != want.Token || got.Username != "alice" || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if err := other.RemoveCredential("http://localhost:8080"); err != nil {
		t.Fatalf("RemoveCredential() error = %v", err)
	}
	if cred, _ := store.GetCredential("http://localhost:8080"); cred != nil {
		t.Errorf("expected credential to be removed, got %+v", cred)
	}
}

func TestFSCredentialStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	store := NewFSCredentialStore(path)
	if _, err := store.GetCredential("http://localhost:8080"); err == nil {
		t.Error("expected error for corrupt credentials file")
	}
	if err := store.SetCredential("http://localhost:8080", &client.ServerCredential{Token: "t"}); err == nil {
		t.Error("a corrupt file must not be overwritten")
	}
}

func TestFSCredentialStore_KeyedByHost(t *testing.T) {
	store := NewFSCredentialStore(filepath.Join(t.TempDir(), "c.json"))
	if err := store.SetCredential("https://secrets.example.com", &client.ServerCredential{Token: "t"}); err != nil {
		t.Fatal(err)
	}

	if cred, _ := store.GetCredential("https://secrets.example.com/secrets"); cred == nil || cred.Token != "t" {
		t.Errorf("expected credential for the same host, got %+v", cred)
	}
	if cred, _ := store.GetCredential("https://other.example.com"); cred != nil {
		t.Errorf("expected no credential for another host, got %+v", cred)
	}
	if _, err := store.GetCredential("not a url"); err == nil {
		t.Error("expected error for a url without a host")
	}
}

func TestDefaultCredentialPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	path, err := DefaultCredentialPath()
	if err != nil {
		t.Fatalf("DefaultCredentialPath() error = %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("secretgate", "credentials.json")) {
		t.Errorf("unexpected path %q", path)
	}
}
