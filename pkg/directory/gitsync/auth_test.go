package gitsync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"mercator-hq/broker/pkg/config"
)

func TestNewAuthProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.GitAuthConfig
		wantType string
		wantErr  bool
	}{
		{name: "empty type", cfg: config.GitAuthConfig{}, wantType: "none"},
		{name: "none", cfg: config.GitAuthConfig{Type: "none"}, wantType: "none"},
		{name: "token", cfg: config.GitAuthConfig{Type: "token", Token: "ghp_test"}, wantType: "token"},
		{name: "token missing", cfg: config.GitAuthConfig{Type: "token"}, wantErr: true},
		{name: "ssh", cfg: config.GitAuthConfig{Type: "ssh", SSHKeyPath: "/keys/id_ed25519"}, wantType: "ssh"},
		{name: "ssh missing key", cfg: config.GitAuthConfig{Type: "ssh"}, wantErr: true},
		{name: "unknown", cfg: config.GitAuthConfig{Type: "oauth"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewAuthProvider(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewAuthProvider() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && p.Type() != tt.wantType {
				t.Errorf("Type() = %s, want %s", p.Type(), tt.wantType)
			}
		})
	}
}

func TestTokenAuth(t *testing.T) {
	method, err := (&TokenAuth{token: "ghp_test"}).Auth()
	if err != nil {
		t.Fatal(err)
	}
	basic, ok := method.(*http.BasicAuth)
	if !ok {
		t.Fatalf("Auth() = %T, want *http.BasicAuth", method)
	}
	if basic.Password != "ghp_test" {
		t.Error("token not used as password")
	}

	if _, err := (&TokenAuth{}).Auth(); err == nil {
		t.Error("expected error for empty token")
	}
}

func TestNoAuth(t *testing.T) {
	method, err := NoAuth{}.Auth()
	if err != nil || method != nil {
		t.Errorf("Auth() = %v, %v", method, err)
	}
}

func TestSSHAuth_KeyFileChecks(t *testing.T) {
	dir := t.TempDir()

	if _, err := (&SSHAuth{keyPath: filepath.Join(dir, "missing")}).Auth(); err == nil {
		t.Error("expected error for missing key file")
	}

	open := filepath.Join(dir, "open_key")
	if err := os.WriteFile(open, []byte("not a key"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := (&SSHAuth{keyPath: open}).Auth(); err == nil {
		t.Error("expected error for group-readable key")
	}

	garbage := filepath.Join(dir, "garbage_key")
	if err := os.WriteFile(garbage, []byte("not a key"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := (&SSHAuth{keyPath: garbage}).Auth(); err == nil {
		t.Error("expected error for unparsable key")
	}
}
