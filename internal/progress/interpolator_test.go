package progress

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeScheduler queues frames until Step runs them.
type fakeScheduler struct {
	mu      sync.Mutex
	pending []*pendingFrame
}

type pendingFrame struct {
	fn       func()
	canceled bool
}

func (s *fakeScheduler) Schedule(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &pendingFrame{fn: fn}
	s.pending = append(s.pending, f)
	return func() {
		s.mu.Lock()
		f.canceled = true
		s.mu.Unlock()
	}
}

// Active returns the number of scheduled, uncanceled frames.
func (s *fakeScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, f := range s.pending {
		if !f.canceled {
			n++
		}
	}
	return n
}

// Step runs every pending frame once.
func (s *fakeScheduler) Step() {
	s.mu.Lock()
	frames := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, f := range frames {
		if !f.canceled {
			f.fn()
		}
	}
}

type fakeRenderer struct {
	mu          sync.Mutex
	frames      []Frame
	unavailable []error
}

func (r *fakeRenderer) Render(f Frame) {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	r.mu.Unlock()
}

func (r *fakeRenderer) RenderUnavailable(err error) {
	r.mu.Lock()
	r.unavailable = append(r.unavailable, err)
	r.mu.Unlock()
}

func (r *fakeRenderer) Last() Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[len(r.frames)-1]
}

// gatedRenderer blocks the first Render call after Arm until Release.
type gatedRenderer struct {
	fakeRenderer
	armed   chan struct{}
	entered chan struct{}
	release chan struct{}
}

func newGatedRenderer() *gatedRenderer {
	return &gatedRenderer{
		armed:   make(chan struct{}, 1),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (r *gatedRenderer) Arm() { r.armed <- struct{}{} }

func (r *gatedRenderer) Render(f Frame) {
	select {
	case <-r.armed:
		close(r.entered)
		<-r.release
	default:
	}
	r.fakeRenderer.Render(f)
}

func playing(progress, duration int) spotify.Snapshot {
	return spotify.Snapshot{
		IsPlaying:  true,
		ProgressMs: progress,
		DurationMs: &duration,
		Track:      &spotify.Track{ID: "t", Name: "Song"},
	}
}

func newTestInterpolator() (*Interpolator, *fakeClock, *fakeScheduler, *fakeRenderer) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sched := &fakeScheduler{}
	r := &fakeRenderer{}
	return NewInterpolator(clock, sched, r), clock, sched, r
}

func TestEstimate(t *testing.T) {
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	duration := 200000

	tests := []struct {
		name    string
		snap    spotify.Snapshot
		elapsed time.Duration
		want    int
	}{
		{name: "advances with wall clock", snap: playing(10000, duration), elapsed: 5 * time.Second, want: 15000},
		{name: "no elapsed", snap: playing(10000, duration), want: 10000},
		{name: "clamped to duration", snap: playing(199000, duration), elapsed: 5 * time.Second, want: 200000},
		{name: "clock behind anchor", snap: playing(10000, duration), elapsed: -time.Second, want: 10000},
		{name: "paused does not advance", snap: spotify.Snapshot{ProgressMs: 3000, DurationMs: &duration}, elapsed: time.Minute, want: 3000},
		{name: "unknown duration does not advance", snap: spotify.Snapshot{IsPlaying: true, ProgressMs: 3000}, elapsed: time.Minute, want: 3000},
		{name: "negative progress clamped", snap: playing(-50, duration), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := estimate(tt.snap, anchor, anchor.Add(tt.elapsed))
			if got != tt.want {
				t.Errorf("estimate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestEstimate_Monotonic(t *testing.T) {
	anchor := time.Now()
	snap := playing(0, 3000)
	prev := -1
	for ms := 0; ms <= 5000; ms += 7 {
		got := estimate(snap, anchor, anchor.Add(time.Duration(ms)*time.Millisecond))
		if got < prev {
			t.Fatalf("estimate went backwards at +%dms: %d < %d", ms, got, prev)
		}
		if got < 0 || got > 3000 {
			t.Fatalf("estimate out of range at +%dms: %d", ms, got)
		}
		prev = got
	}
}

func TestInterpolator_RendersEveryFrame(t *testing.T) {
	ip, clock, sched, r := newTestInterpolator()

	ip.OnSnapshot(playing(10000, 200000))
	if got := r.Last().ProgressMs; got != 10000 {
		t.Fatalf("first frame = %d, want 10000", got)
	}

	clock.Advance(5 * time.Second)
	sched.Step()
	if got := r.Last().ProgressMs; got != 15000 {
		t.Errorf("frame after 5s = %d, want 15000", got)
	}
	if got := r.Last().Fraction; got != 0.075 {
		t.Errorf("Fraction = %v, want 0.075", got)
	}
	if got := ip.Estimate(clock.Now()); got != 15000 {
		t.Errorf("Estimate() = %d, want 15000", got)
	}
	if sched.Active() != 1 {
		t.Errorf("active frames = %d, want 1", sched.Active())
	}
}

func TestInterpolator_StopsAtEnd(t *testing.T) {
	ip, clock, sched, r := newTestInterpolator()

	ip.OnSnapshot(playing(9000, 10000))
	clock.Advance(2 * time.Second)
	sched.Step()

	if got := r.Last().ProgressMs; got != 10000 {
		t.Errorf("frame = %d, want clamped 10000", got)
	}
	if sched.Active() != 0 {
		t.Errorf("active frames = %d, want 0 after reaching the end", sched.Active())
	}
}

func TestInterpolator_NotPlayingRendersOnce(t *testing.T) {
	ip, _, sched, r := newTestInterpolator()

	ip.OnSnapshot(spotify.Snapshot{})

	if len(r.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(r.frames))
	}
	if r.Last().Snapshot.IsPlaying {
		t.Error("frame reports playing")
	}
	if sched.Active() != 0 {
		t.Errorf("active frames = %d, want 0", sched.Active())
	}
}

func TestInterpolator_NewSnapshotReplacesLoop(t *testing.T) {
	ip, clock, sched, r := newTestInterpolator()

	ip.OnSnapshot(playing(10000, 200000))
	ip.OnSnapshot(playing(50000, 200000))
	ip.OnSnapshot(playing(90000, 200000))

	if sched.Active() != 1 {
		t.Fatalf("active frames = %d, want exactly 1", sched.Active())
	}

	clock.Advance(time.Second)
	sched.Step()
	if got := r.Last().ProgressMs; got != 91000 {
		t.Errorf("frame = %d, want 91000 from the latest snapshot", got)
	}
}

func TestInterpolator_Stop(t *testing.T) {
	ip, clock, sched, r := newTestInterpolator()

	ip.OnSnapshot(playing(0, 200000))
	ip.Stop()
	rendered := len(r.frames)

	clock.Advance(time.Second)
	sched.Step()
	if len(r.frames) != rendered {
		t.Error("frame rendered after Stop")
	}
	if sched.Active() != 0 {
		t.Errorf("active frames = %d, want 0", sched.Active())
	}
}

func TestInterpolator_Unavailable(t *testing.T) {
	ip, _, sched, r := newTestInterpolator()
	boom := errors.New("boom")

	ip.OnSnapshot(playing(0, 200000))
	ip.Unavailable(boom)

	if len(r.unavailable) != 1 || !errors.Is(r.unavailable[0], boom) {
		t.Errorf("unavailable = %v, want [boom]", r.unavailable)
	}
	if sched.Active() != 0 {
		t.Errorf("active frames = %d, want 0", sched.Active())
	}
}

func TestInterpolator_SupersededFrameNeverLandsLast(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	sched := &fakeScheduler{}
	r := newGatedRenderer()
	ip := NewInterpolator(clock, sched, r)

	ip.OnSnapshot(playing(10000, 200000))
	clock.Advance(time.Second)

	// The old loop's next frame stalls inside Render.
	r.Arm()
	stale := make(chan struct{})
	go func() {
		sched.Step()
		close(stale)
	}()
	<-r.entered

	fresh := make(chan struct{})
	go func() {
		ip.OnSnapshot(playing(50000, 200000))
		close(fresh)
	}()
	time.Sleep(20 * time.Millisecond)
	close(r.release)
	<-stale
	<-fresh

	if got := r.Last().Snapshot.ProgressMs; got != 50000 {
		t.Errorf("last rendered snapshot progress = %d, want 50000", got)
	}
}
