// Package progress estimates playback position between snapshots and keeps a
// renderer updated at frame rate.
package progress

import (
	"sync"
	"time"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

// DefaultFrameInterval is roughly one frame at 60 fps.
const DefaultFrameInterval = 16 * time.Millisecond

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Scheduler runs fn once on the next frame. The returned function cancels the
// pending call if it has not started.
type Scheduler interface {
	Schedule(fn func()) (cancel func())
}

// Frame is one rendered estimate.
type Frame struct {
	Snapshot   spotify.Snapshot
	ProgressMs int
	// Fraction is ProgressMs / DurationMs in [0, 1]; zero when the duration
	// is unknown.
	Fraction float64
}

// Renderer displays frames.
type Renderer interface {
	Render(Frame)
	RenderUnavailable(err error)
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// TimerScheduler schedules frames with time.AfterFunc.
type TimerScheduler struct {
	Interval time.Duration
}

// Schedule implements Scheduler.
func (s TimerScheduler) Schedule(fn func()) func() {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	t := time.AfterFunc(interval, fn)
	return func() { t.Stop() }
}

// Interpolator holds the latest snapshot and re-renders an estimate every
// frame while the track is playing. At most one frame is pending at a time.
type Interpolator struct {
	clock     Clock
	scheduler Scheduler
	renderer  Renderer

	// renderMu is held from the generation check through Render, so a frame
	// from a superseded snapshot never lands after the newer one.
	renderMu sync.Mutex

	mu     sync.Mutex
	snap   spotify.Snapshot
	anchor time.Time
	cancel func()
	gen    uint64
	active bool
}

// NewInterpolator creates an Interpolator. A nil clock or scheduler selects
// the wall clock and a TimerScheduler at DefaultFrameInterval.
func NewInterpolator(clock Clock, scheduler Scheduler, renderer Renderer) *Interpolator {
	if clock == nil {
		clock = SystemClock
	}
	if scheduler == nil {
		scheduler = TimerScheduler{Interval: DefaultFrameInterval}
	}
	return &Interpolator{clock: clock, scheduler: scheduler, renderer: renderer}
}

// OnSnapshot replaces the current snapshot, renders it immediately, and
// restarts the frame loop if the track is still advancing.
func (ip *Interpolator) OnSnapshot(snap spotify.Snapshot) {
	ip.mu.Lock()
	ip.stopLocked()
	ip.snap = snap
	ip.anchor = ip.clock.Now()
	ip.active = true
	gen := ip.gen
	ip.mu.Unlock()

	ip.tick(gen)
}

// Unavailable stops the loop and shows the unavailable state.
func (ip *Interpolator) Unavailable(err error) {
	ip.Stop()
	ip.renderMu.Lock()
	defer ip.renderMu.Unlock()
	ip.renderer.RenderUnavailable(err)
}

// Stop cancels any pending frame. A later OnSnapshot starts a new loop.
func (ip *Interpolator) Stop() {
	ip.mu.Lock()
	ip.stopLocked()
	ip.mu.Unlock()
}

func (ip *Interpolator) stopLocked() {
	ip.gen++
	ip.active = false
	if ip.cancel != nil {
		ip.cancel()
		ip.cancel = nil
	}
}

// Estimate returns the extrapolated progress at now for the current snapshot.
func (ip *Interpolator) Estimate(now time.Time) int {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	return estimate(ip.snap, ip.anchor, now)
}

// tick renders one frame for generation gen and schedules the next one.
func (ip *Interpolator) tick(gen uint64) {
	ip.renderMu.Lock()
	defer ip.renderMu.Unlock()

	ip.mu.Lock()
	if gen != ip.gen || !ip.active {
		ip.mu.Unlock()
		return
	}
	snap := ip.snap
	pos := estimate(snap, ip.anchor, ip.clock.Now())
	more := snap.IsPlaying && snap.DurationMs != nil && pos < *snap.DurationMs
	if more {
		ip.cancel = ip.scheduler.Schedule(func() { ip.tick(gen) })
	} else {
		ip.active = false
		ip.cancel = nil
	}
	ip.mu.Unlock()

	ip.renderer.Render(newFrame(snap, pos))
}

// estimate is progress + elapsed since anchor, clamped to [0, duration].
// Without a duration, or when paused, the position does not advance.
func estimate(snap spotify.Snapshot, anchor, now time.Time) int {
	pos := snap.ProgressMs
	if snap.IsPlaying && snap.DurationMs != nil {
		elapsed := max(now.Sub(anchor).Milliseconds(), 0)
		pos += int(elapsed)
		pos = min(pos, *snap.DurationMs)
	}
	return max(pos, 0)
}

func newFrame(snap spotify.Snapshot, pos int) Frame {
	f := Frame{Snapshot: snap, ProgressMs: pos}
	if d := snap.Duration(); d > 0 {
		f.Fraction = float64(pos) / float64(d)
	}
	return f
}
