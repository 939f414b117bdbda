// Command nowplaying follows a nowplaying-server from the terminal, updating
// the progress bar between polls. Press Enter to refresh immediately.
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/justestif/go-spotify-now-playing/internal/logging"
	"github.com/justestif/go-spotify-now-playing/internal/progress"
)

func main() {
	app := &cli.Command{
		Name:  "nowplaying",
		Usage: "Show what the authorized Spotify account is playing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Usage:   "Base URL of the nowplaying-server",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("NOWPLAYING_SERVER"),
			},
			&cli.DurationFlag{
				Name:  "interval",
				Usage: "Poll interval",
				Value: progress.DefaultPollInterval,
			},
			&cli.DurationFlag{
				Name:  "frame",
				Usage: "Redraw interval",
				Value: 250 * time.Millisecond,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level for diagnostics on stderr",
				Value: "warn",
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
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(os.Stderr, cmd.String("log-level"))

	interp := progress.NewInterpolator(
		progress.SystemClock,
		progress.TimerScheduler{Interval: cmd.Duration("frame")},
		newTermRenderer(os.Stdout),
	)
	source := progress.NewHTTPSource(cmd.String("server"), &http.Client{Timeout: progress.DefaultFetchTimeout})
	poller := progress.NewPoller(source, interp,
		progress.WithInterval(cmd.Duration("interval")),
		progress.WithPollerLogger(logger),
	)

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if !poller.RefreshNow() {
				logger.Debug("refresh throttled")
			}
		}
	}()

	err := poller.Run(ctx)
	fmt.Println()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
