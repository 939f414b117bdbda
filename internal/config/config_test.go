package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

// clearEnv blanks every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SPOTIFY_CLIENT", "SPOTIFY_SECRET", "SPOTIFY_REDIRECT",
		"GITHUB_TOKEN", "GITHUB_USER", "TOKEN_FILE", "DATABASE_URL",
		"SQLITE_PATH", "LOG_LEVEL", "PORT", "ADDR", "ALLOWED_ORIGINS", "SPOTIFY_SKEW",
	} {
		t.Setenv(key, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	want := &Config{
		Server:  ServerConfig{Addr: ":3000", AllowedOrigins: []string{"*"}},
		Spotify: SpotifyConfig{Skew: 5 * time.Second, HTTPTimeout: 10 * time.Second},
		GitHub:  GitHubConfig{User: "Bloby22", HTTPTimeout: 10 * time.Second},
		Storage: StorageConfig{TokenFile: "spotify_tokens.json"},
		Log:     LogConfig{Level: "info"},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Default() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPOTIFY_CLIENT", "id")
	t.Setenv("SPOTIFY_SECRET", "secret")
	t.Setenv("SPOTIFY_REDIRECT", "http://localhost:3000/callback")
	t.Setenv("PORT", "8080")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SPOTIFY_SKEW", "30s")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Spotify.ClientID != "id" || cfg.Spotify.ClientSecret != "secret" {
		t.Errorf("Spotify = %+v", cfg.Spotify)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", cfg.Log.Level)
	}
	if diff := cmp.Diff([]string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins); diff != "" {
		t.Errorf("AllowedOrigins mismatch (-want +got):\n%s", diff)
	}
	if cfg.Spotify.Skew != 30*time.Second {
		t.Errorf("Skew = %v, want 30s", cfg.Spotify.Skew)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoad_AddrWinsOverPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("ADDR", "127.0.0.1:9000")

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[spotify]
client_id = "file-id"
client_secret = "file-secret"
redirect_uri = "http://localhost/callback"
skew = "1m"

[storage]
sqlite_path = "/var/lib/nowplaying.db"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SPOTIFY_CLIENT", "env-id")

	cfg, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Spotify.ClientID != "env-id" {
		t.Errorf("ClientID = %q, want env to win over file", cfg.Spotify.ClientID)
	}
	if cfg.Spotify.ClientSecret != "file-secret" {
		t.Errorf("ClientSecret = %q", cfg.Spotify.ClientSecret)
	}
	if cfg.Spotify.Skew != time.Minute {
		t.Errorf("Skew = %v, want 1m", cfg.Spotify.Skew)
	}
	if cfg.Storage.SQLitePath != "/var/lib/nowplaying.db" {
		t.Errorf("SQLitePath = %q", cfg.Storage.SQLitePath)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Addr != ":3000" || cfg.Storage.TokenFile != "spotify_tokens.json" {
		t.Errorf("defaults lost: %+v %+v", cfg.Server, cfg.Storage)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml"), ""); err == nil {
		t.Error("Load() error = nil, want error for missing config file")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv only fills variables that are absent, not empty. clearEnv
	// registered restores, so unsetting here is undone after the test.
	os.Unsetenv("GITHUB_USER")
	t.Setenv("GITHUB_TOKEN", "from-env")

	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("GITHUB_USER=octocat\nGITHUB_TOKEN=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("", path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GitHub.User != "octocat" {
		t.Errorf("User = %q, want octocat", cfg.GitHub.User)
	}
	if cfg.GitHub.Token != "from-env" {
		t.Errorf("Token = %q, want existing env to win", cfg.GitHub.Token)
	}
}

func TestLoad_MissingEnvFileIgnored(t *testing.T) {
	clearEnv(t)
	if _, err := Load("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("Load() error = %v, want nil", err)
	}
}

func TestLoad_BadSkew(t *testing.T) {
	clearEnv(t)
	t.Setenv("SPOTIFY_SKEW", "soon")
	if _, err := Load("", ""); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Spotify.ClientID = "id"
		cfg.Spotify.ClientSecret = "secret"
		cfg.Spotify.RedirectURI = "http://localhost/callback"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
		ok      bool
	}{
		{name: "complete", mutate: func(*Config) {}, ok: true},
		{name: "missing client id", mutate: func(c *Config) { c.Spotify.ClientID = "" }, wantErr: auth.ErrMissingCredentials},
		{name: "missing secret", mutate: func(c *Config) { c.Spotify.ClientSecret = "" }, wantErr: auth.ErrMissingCredentials},
		{name: "missing redirect", mutate: func(c *Config) { c.Spotify.RedirectURI = "" }, wantErr: auth.ErrMissingCredentials},
		{name: "empty addr", mutate: func(c *Config) { c.Server.Addr = "" }},
		{name: "no store", mutate: func(c *Config) { c.Storage = StorageConfig{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
