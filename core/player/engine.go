package player

import (
	"context"

	"deadsongs/model"
)

// MediaEngine plays audio. Load blocks until the media is ready or fails
// and returns the duration in seconds, or 0 when it is not known yet. The
// engine reports progress back through the controller's On* callbacks.
type MediaEngine interface {
	Load(ctx context.Context, url string) (float64, error)
	Play() error
	Pause() error
	Seek(seconds float64) error
	SetVolume(v float64) error
}

// PlayRecorder is told when a selected song actually starts playing.
type PlayRecorder interface {
	RecordPlay(ctx context.Context, songID int64) error
}

// Observer receives the state after every change. err is set when the
// change was caused by a failure.
type Observer func(state model.PlaybackState, err error)
