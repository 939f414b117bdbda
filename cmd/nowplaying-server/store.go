package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/config"
	"github.com/justestif/go-spotify-now-playing/internal/db"
)

// openStore picks the credential store: PostgreSQL, then SQLite, then the
// JSON file. The returned func releases it.
func openStore(ctx context.Context, cfg config.StorageConfig, logger *log.Logger) (auth.Store, func(), error) {
	switch {
	case cfg.DatabaseURL != "":
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		logger.Info("using postgres credential store")
		return database.Credentials(), database.Close, nil

	case cfg.SQLitePath != "":
		store, err := db.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using sqlite credential store", "path", cfg.SQLitePath)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing sqlite store", "err", err)
			}
		}, nil

	default:
		store := auth.NewFileStore(cfg.TokenFile, logger.With("component", "store"))
		logger.Info("using file credential store", "path", store.Path())
		return store, func() {}, nil
	}
}
