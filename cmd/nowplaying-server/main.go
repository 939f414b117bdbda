// Command nowplaying-server serves the Spotify now-playing API and page.
package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/config"
	"github.com/justestif/go-spotify-now-playing/internal/github"
	"github.com/justestif/go-spotify-now-playing/internal/logging"
	"github.com/justestif/go-spotify-now-playing/internal/spotify"
	"github.com/justestif/go-spotify-now-playing/internal/web"
	webfs "github.com/justestif/go-spotify-now-playing/web"
)

func main() {
	app := &cli.Command{
		Name:  "nowplaying-server",
		Usage: "Serve the Spotify now-playing API for one authorized account",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a TOML configuration file",
				Sources: cli.EnvVars("NOWPLAYING_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Path to a dotenv file; missing files are ignored",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address, overrides the configuration",
			},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.Load(cmd.String("config"), cmd.String("env-file"))
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, cfg.Log.Level)

	store, closeStore, err := openStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	manager, err := auth.NewManager(auth.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		RedirectURI:  cfg.Spotify.RedirectURI,
		Skew:         cfg.Spotify.Skew,
		HTTPTimeout:  cfg.Spotify.HTTPTimeout,
	}, store, auth.WithLogger(logger.With("component", "auth")))
	if err != nil {
		return fmt.Errorf("creating token manager: %w", err)
	}

	fetcher := spotify.NewFetcher(manager,
		spotify.WithTimeout(cfg.Spotify.HTTPTimeout),
		spotify.WithLogger(logger.With("component", "spotify")),
	)

	var stats web.StatsSource
	if cfg.GitHub.User != "" {
		sc, err := github.NewStatsClient(cfg.GitHub.User, cfg.GitHub.Token, cfg.GitHub.HTTPTimeout,
			github.WithLogger(logger.With("component", "github")))
		if err != nil {
			return fmt.Errorf("creating github client: %w", err)
		}
		stats = sc
	}

	templates, err := fs.Sub(webfs.TemplatesFS, "templates")
	if err != nil {
		return fmt.Errorf("creating templates filesystem: %w", err)
	}
	static, err := fs.Sub(webfs.StaticFS, "static")
	if err != nil {
		return fmt.Errorf("creating static filesystem: %w", err)
	}

	server, err := web.NewServer(web.ServerConfig{
		Addr:           cfg.Server.Addr,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		TemplatesFS:    templates,
		StaticFS:       static,
		Logger:         logger,
		Auth:           manager,
		NowPlaying:     fetcher,
		Stats:          stats,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	logger.Info("open /login to authorize one Spotify account", "redirect_uri", cfg.Spotify.RedirectURI)
	return server.Run(ctx)
}
