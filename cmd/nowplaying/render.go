package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/justestif/go-spotify-now-playing/internal/progress"
)

const barWidth = 30

// termRenderer redraws a single status line in place.
type termRenderer struct {
	mu   sync.Mutex
	w    io.Writer
	last int
}

func newTermRenderer(w io.Writer) *termRenderer {
	return &termRenderer{w: w}
}

// Render implements progress.Renderer.
func (r *termRenderer) Render(f progress.Frame) {
	snap := f.Snapshot
	if !snap.IsPlaying || snap.Track == nil {
		r.line(color.HiBlackString("■ Not playing"))
		return
	}

	green := color.New(color.FgGreen, color.Bold)
	cyan := color.New(color.FgCyan)

	filled := int(f.Fraction * barWidth)
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	line := fmt.Sprintf("%s %s %s %s %s / %s",
		green.Sprint("▶"),
		color.New(color.Bold).Sprint(snap.Track.Name),
		cyan.Sprint(snap.Track.Artist()),
		bar,
		formatMs(f.ProgressMs),
		formatMs(snap.Duration()),
	)
	if snap.Device != nil && snap.Device.Name != "" {
		line += " " + color.HiBlackString("on "+snap.Device.Name)
	}
	r.line(line)
}

// RenderUnavailable implements progress.Renderer.
func (r *termRenderer) RenderUnavailable(err error) {
	r.line(color.RedString("✖ Spotify unavailable: %v", err))
}

// line overwrites the previous line, padding over any leftover characters.
func (r *termRenderer) line(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(s)
	pad := ""
	if r.last > n {
		pad = strings.Repeat(" ", r.last-n)
	}
	fmt.Fprintf(r.w, "\r%s%s", s, pad)
	r.last = n
}

func formatMs(ms int) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
