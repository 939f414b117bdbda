// Package config loads and validates the server configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

//go:embed defaults.toml
var defaultConf []byte

// Config is the complete server configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Spotify SpotifyConfig `toml:"spotify"`
	GitHub  GitHubConfig  `toml:"github"`
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// SpotifyConfig contains the OAuth client registration.
type SpotifyConfig struct {
	ClientID     string        `toml:"client_id"`
	ClientSecret string        `toml:"client_secret"`
	RedirectURI  string        `toml:"redirect_uri"`
	Skew         time.Duration `toml:"skew"`
	HTTPTimeout  time.Duration `toml:"http_timeout"`
}

// GitHubConfig configures the statistics collaborator.
type GitHubConfig struct {
	Token       string        `toml:"token"`
	User        string        `toml:"user"`
	HTTPTimeout time.Duration `toml:"http_timeout"`
}

// StorageConfig selects the credential store. DatabaseURL wins over
// SQLitePath, which wins over TokenFile.
type StorageConfig struct {
	TokenFile   string `toml:"token_file"`
	DatabaseURL string `toml:"database_url"`
	SQLitePath  string `toml:"sqlite_path"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns the embedded defaults.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(defaultConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load builds the configuration from the embedded defaults, the optional TOML
// file at path, the optional dotenv file and the process environment, in that
// order. Variables already set in the environment are not overridden by the
// dotenv file. Load does not validate; call Validate.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file %s: %w", envFile, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides fields from environment variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("SPOTIFY_CLIENT", &c.Spotify.ClientID)
	str("SPOTIFY_SECRET", &c.Spotify.ClientSecret)
	str("SPOTIFY_REDIRECT", &c.Spotify.RedirectURI)
	str("GITHUB_TOKEN", &c.GitHub.Token)
	str("GITHUB_USER", &c.GitHub.User)
	str("TOKEN_FILE", &c.Storage.TokenFile)
	str("DATABASE_URL", &c.Storage.DatabaseURL)
	str("SQLITE_PATH", &c.Storage.SQLitePath)
	str("LOG_LEVEL", &c.Log.Level)

	if port, ok := lookup("PORT"); ok && port != "" {
		c.Server.Addr = ":" + port
	}
	str("ADDR", &c.Server.Addr)

	if origins, ok := lookup("ALLOWED_ORIGINS"); ok && origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	if v, ok := lookup("SPOTIFY_SKEW"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing SPOTIFY_SKEW: %w", err)
		}
		c.Spotify.Skew = d
	}

	return nil
}

// Validate fails when the Spotify client registration is incomplete; the
// server refuses to start half-configured. Missing client settings wrap
// auth.ErrMissingCredentials.
func (c *Config) Validate() error {
	if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RedirectURI == "" {
		return fmt.Errorf("%w: set SPOTIFY_CLIENT, SPOTIFY_SECRET and SPOTIFY_REDIRECT", auth.ErrMissingCredentials)
	}
	if c.Server.Addr == "" {
		return errors.New("server address is empty")
	}
	if c.Storage.TokenFile == "" && c.Storage.DatabaseURL == "" && c.Storage.SQLitePath == "" {
		return errors.New("no credential store configured")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
