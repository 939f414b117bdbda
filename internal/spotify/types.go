package spotify

import (
	"encoding/json"
	"strings"
	"time"
)

// Snapshot is one point-in-time read of the account's playback state.
// Track is non-nil only when IsPlaying is true.
type Snapshot struct {
	IsPlaying  bool
	CapturedAt time.Time
	ProgressMs int
	DurationMs *int // nil when unknown
	Track      *Track
	Device     *Device
}

// Track is the playing item.
type Track struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	ArtistNames   []string `json:"artists"` // upstream order
	AlbumName     string   `json:"album"`
	AlbumImageURL string   `json:"album_image,omitempty"`
	ExternalURL   string   `json:"external_url,omitempty"`
}

// Artist returns the artist names joined for display.
func (t *Track) Artist() string {
	if t == nil {
		return ""
	}
	return strings.Join(t.ArtistNames, ", ")
}

// Device is the playback device reported upstream.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Duration returns DurationMs or zero.
func (s Snapshot) Duration() int {
	if s.DurationMs == nil {
		return 0
	}
	return *s.DurationMs
}

// snapshotJSON is the wire form served at /spotify/now-playing.
type snapshotJSON struct {
	Playing    bool    `json:"playing"`
	ProgressMs int     `json:"progress_ms"`
	DurationMs *int    `json:"duration_ms"`
	Track      *Track  `json:"track"`
	Device     *Device `json:"device"`
	Timestamp  int64   `json:"timestamp"`
}

// MarshalJSON encodes the snapshot with CapturedAt as Unix milliseconds.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	var ts int64
	if !s.CapturedAt.IsZero() {
		ts = s.CapturedAt.UnixMilli()
	}
	return json.Marshal(snapshotJSON{
		Playing:    s.IsPlaying,
		ProgressMs: s.ProgressMs,
		DurationMs: s.DurationMs,
		Track:      s.Track,
		Device:     s.Device,
		Timestamp:  ts,
	})
}

// UnmarshalJSON decodes the wire form.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var w snapshotJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*s = Snapshot{
		IsPlaying:  w.Playing,
		ProgressMs: w.ProgressMs,
		DurationMs: w.DurationMs,
		Track:      w.Track,
		Device:     w.Device,
	}
	if w.Timestamp > 0 {
		s.CapturedAt = time.UnixMilli(w.Timestamp)
	}
	return nil
}
