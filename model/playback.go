package model

import (
	"encoding/json"
	"fmt"
)

// Transport is the playback state machine's current state.
type Transport int

const (
	Idle Transport = iota
	Loaded
	Playing
	Paused
)

func (t Transport) String() string {
	switch t {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// ParseTransport is the inverse of String.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "idle":
		return Idle, nil
	case "loaded":
		return Loaded, nil
	case "playing":
		return Playing, nil
	case "paused":
		return Paused, nil
	}
	return Idle, fmt.Errorf("unknown transport %q", s)
}

func (t Transport) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *Transport) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTransport(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TrackPosition exists only while a song is selected.
type TrackPosition struct {
	SongID        int64   `json:"songId"`
	Position      float64 `json:"position"`
	Duration      float64 `json:"duration"`
	DurationKnown bool    `json:"durationKnown"`
}

// PlaybackState is Idle exactly when Track is nil.
type PlaybackState struct {
	Transport Transport      `json:"transport"`
	Track     *TrackPosition `json:"track,omitempty"`
	Volume    float64        `json:"volume"`
}

// DefaultVolume matches a fresh audio element.
const DefaultVolume = 1.0

// NewPlaybackState returns an Idle state at default volume.
func NewPlaybackState() PlaybackState {
	return PlaybackState{Transport: Idle, Volume: DefaultVolume}
}

// CurrentSongID returns the selected song, or false when Idle.
func (s PlaybackState) CurrentSongID() (int64, bool) {
	if s.Track == nil {
		return 0, false
	}
	return s.Track.SongID, true
}

// Clone deep-copies the track part so callers cannot mutate shared state.
func (s PlaybackState) Clone() PlaybackState {
	if s.Track != nil {
		t := *s.Track
		s.Track = &t
	}
	return s
}
