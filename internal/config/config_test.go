package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "x:\n  client-id: abc\n"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != DefaultPort || cfg.AuthDir != DefaultAuthDir {
		t.Fatalf("port = %d auth dir = %q", cfg.Port, cfg.AuthDir)
	}
	if cfg.X.ClientID != "abc" || cfg.X.TokenURL != DefaultTokenURL || cfg.X.RequestTimeout != DefaultRequestTimeout {
		t.Fatalf("x = %+v", cfg.X)
	}
	if len(cfg.X.Scopes) != 4 || cfg.X.Scopes[3] != "offline.access" {
		t.Fatalf("scopes = %v", cfg.X.Scopes)
	}
	up := cfg.Publish.Upload
	if cfg.Publish.MediaMaxBytes != 5<<20 || up.MaxAttempts != 3 || up.InitialBackoff != time.Second || up.Multiplier != 2 {
		t.Fatalf("publish = %+v", cfg.Publish)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	body := `
port: 8080
allowed-origins: ["http://localhost:3000"]
frontend-url: "https://app.example"
x:
  client-id: yaml-id
  api-base-url: "http://127.0.0.1:9999/"
  scopes: [tweet.read]
publish:
  media-max-bytes: 1024
  upload-retry:
    max-attempts: 5
    initial-backoff: 250ms
`
	t.Setenv("X_CLIENT_ID", "env-id")
	t.Setenv("X_CLIENT_SECRET", "env-secret")
	cfg, err := LoadConfig(writeFile(t, body))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Port != 8080 || cfg.X.ClientID != "env-id" || cfg.X.ClientSecret != "env-secret" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.X.APIBaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("api base = %q, want trailing slash trimmed", cfg.X.APIBaseURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://app.example" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
	if len(cfg.X.Scopes) != 1 || cfg.Publish.MediaMaxBytes != 1024 {
		t.Fatalf("scopes = %v max = %d", cfg.X.Scopes, cfg.Publish.MediaMaxBytes)
	}
	if cfg.Publish.Upload.MaxAttempts != 5 || cfg.Publish.Upload.InitialBackoff != 250*time.Millisecond {
		t.Fatalf("upload = %+v", cfg.Publish.Upload)
	}
}

func TestLoadConfigOptional(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.yaml")
	cfg, err := LoadConfigOptional(missing, true)
	if err != nil || cfg.Port != DefaultPort {
		t.Fatalf("cfg = %+v err = %v", cfg, err)
	}
	if _, err = LoadConfig(missing); err == nil {
		t.Fatalf("missing required config accepted")
	}
	if _, err = LoadConfig(writeFile(t, "port: [")); err == nil {
		t.Fatalf("malformed yaml accepted")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); !errors.Is(err, ErrMissingClientSetup) {
		t.Fatalf("err = %v", err)
	}
	cfg.X.ClientID = "id"
	cfg.X.RedirectURI = "http://localhost:3000/callback"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("err = %v", err)
	}
}
