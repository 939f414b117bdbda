// Package auth owns the Spotify credential record and its lifecycle:
// authorization, code exchange, refresh on demand and revocation.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// DefaultTokenFile is the token file used when none is configured.
const DefaultTokenFile = "spotify_tokens.json"

// FileStore keeps the credential record as a JSON document on disk.
type FileStore struct {
	path   string
	logger *log.Logger
}

// NewFileStore creates a FileStore at path. A nil logger discards warnings.
func NewFileStore(path string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &FileStore{path: path, logger: logger}
}

// Path returns the file path where the record is stored.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the record from disk.
// A missing or undecodable file yields a zero Record.
func (s *FileStore) Load(_ context.Context) (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, fmt.Errorf("reading token file: %w", err)
	}

	var rec Record
	if len(data) == 0 {
		return rec, nil
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("token file unreadable, treating as empty", "path", s.path, "err", fmt.Errorf("%w: %v", ErrStoreCorrupt, err))
		return Record{}, nil
	}
	if rec.AccessToken != "" && rec.ExpiresAt.IsZero() {
		// An access token without an expiry is never trusted; keep the refresh token.
		rec.AccessToken = ""
	}

	return rec, nil
}

// Save writes the whole record to a temporary file and renames it over the
// target, so readers see either the previous or the new record.
func (s *FileStore) Save(_ context.Context, rec Record) error {
	if rec.IsZero() {
		return errors.New("cannot save empty record")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("setting token file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing token file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing token file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing token file: %w", err)
	}

	return nil
}

// Clear removes the token file.
// Returns nil if the file does not exist.
func (s *FileStore) Clear(_ context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing token file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
