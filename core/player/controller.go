// Package player is the playback transport state machine. It drives a
// MediaEngine and is driven back by the engine's reports.
package player

import (
	"context"
	"math"
	"sync"

	"deadsongs/core/apperr"
	"deadsongs/core/queue"
	"deadsongs/logger"
	"deadsongs/model"
)

type Controller struct {
	engine   MediaEngine
	source   queue.Ordering
	recorder PlayRecorder

	mu    sync.Mutex
	state model.PlaybackState
	queue queue.Ordering
	// token identifies the current selection; bumping it orphans any
	// in-flight load.
	token uint64

	notifyMu  sync.Mutex
	observers []Observer
}

type Option func(*Controller)

func WithPlayRecorder(r PlayRecorder) Option {
	return func(c *Controller) { c.recorder = r }
}

func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observers = append(c.observers, o) }
}

// WithVolume sets the starting volume, e.g. one restored from a previous session.
func WithVolume(v float64) Option {
	return func(c *Controller) { c.state.Volume = clampVolume(v) }
}

// NewController creates an Idle controller. source is the ordering that
// is snapshotted whenever a song is explicitly selected.
func NewController(engine MediaEngine, source queue.Ordering, opts ...Option) *Controller {
	c := &Controller{
		engine: engine,
		source: source,
		state:  model.NewPlaybackState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe adds an observer.
func (c *Controller) Subscribe(o Observer) {
	c.notifyMu.Lock()
	c.observers = append(c.observers, o)
	c.notifyMu.Unlock()
}

// State returns a copy of the current state.
func (c *Controller) State() model.PlaybackState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// SelectSong makes song current and starts it. Next and previous then
// follow the catalog order as it was at this moment. A newer selection
// made while this one is loading wins; this call then returns
// apperr.ErrSuperseded.
func (c *Controller) SelectSong(ctx context.Context, song model.Song) error {
	return c.selectSong(ctx, song, true)
}

func (c *Controller) selectSong(ctx context.Context, song model.Song, snapshot bool) error {
	if song.FileURL == "" {
		return apperr.New(apperr.ValidationError, "No audio file selected.")
	}

	c.mu.Lock()
	c.token++
	tok := c.token
	if snapshot {
		c.queue = queue.NewSnapshot(c.source)
	}
	c.state.Transport = model.Loaded
	c.state.Track = &model.TrackPosition{SongID: song.ID}
	c.mu.Unlock()
	c.emit(nil)

	duration, err := c.engine.Load(ctx, song.FileURL)
	if err != nil {
		return c.fail(tok, err)
	}

	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return apperr.ErrSuperseded
	}
	track := c.state.Track
	track.Position = 0
	if duration > 0 && !math.IsInf(duration, 0) {
		track.Duration = duration
		track.DurationKnown = true
	} else {
		track.Duration = 0
		track.DurationKnown = false
	}
	c.mu.Unlock()

	if err := c.engine.Play(); err != nil {
		return c.fail(tok, err)
	}

	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return apperr.ErrSuperseded
	}
	c.state.Transport = model.Playing
	c.mu.Unlock()
	c.emit(nil)

	c.recordPlay(ctx, song.ID)
	return nil
}

// fail drops to Idle if tok is still the current selection.
func (c *Controller) fail(tok uint64, cause error) error {
	c.mu.Lock()
	if tok != c.token {
		c.mu.Unlock()
		return apperr.ErrSuperseded
	}
	c.token++
	songID, _ := c.state.CurrentSongID()
	c.state.Transport = model.Idle
	c.state.Track = nil
	c.mu.Unlock()

	err := apperr.Wrap(cause, apperr.PlaybackUnavailable, "This song could not be played.")
	logger.Warn("Playback failed", logger.Int64("song_id", songID), logger.ErrorField(cause))
	c.emit(err)
	return err
}

func (c *Controller) recordPlay(ctx context.Context, songID int64) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordPlay(ctx, songID); err != nil {
		logger.Warn("Failed to record play", logger.Int64("song_id", songID), logger.ErrorField(err))
	}
}

// TogglePlayPause switches between Playing and Paused. It does nothing in
// other states. Resuming a song paused at its end restarts it.
func (c *Controller) TogglePlayPause() error {
	c.mu.Lock()
	tok := c.token
	from := c.state.Transport
	atEnd := from == model.Paused && c.state.Track.DurationKnown &&
		c.state.Track.Position >= c.state.Track.Duration
	c.mu.Unlock()

	switch from {
	case model.Playing:
		if err := c.engine.Pause(); err != nil {
			return apperr.Wrap(err, apperr.PlaybackUnavailable, "Could not pause.")
		}
		c.transition(tok, model.Playing, model.Paused, nil)
	case model.Paused:
		var restart *float64
		if atEnd {
			if err := c.engine.Seek(0); err != nil {
				return apperr.Wrap(err, apperr.PlaybackUnavailable, "Could not restart the song.")
			}
			zero := 0.0
			restart = &zero
		}
		if err := c.engine.Play(); err != nil {
			return apperr.Wrap(err, apperr.PlaybackUnavailable, "Could not resume playback.")
		}
		c.transition(tok, model.Paused, model.Playing, restart)
	}
	return nil
}

func (c *Controller) transition(tok uint64, from, to model.Transport, position *float64) {
	c.mu.Lock()
	if tok != c.token || c.state.Transport != from {
		c.mu.Unlock()
		return
	}
	c.state.Transport = to
	if position != nil {
		c.state.Track.Position = *position
	}
	c.mu.Unlock()
	c.emit(nil)
}

// Seek moves to t seconds, clamped to [0, duration]. No-op when Idle.
func (c *Controller) Seek(t float64) error {
	c.mu.Lock()
	if c.state.Track == nil {
		c.mu.Unlock()
		return nil
	}
	pos := clamp(t, 0, c.state.Track.Duration)
	c.state.Track.Position = pos
	c.mu.Unlock()

	err := c.engine.Seek(pos)
	c.emit(nil)
	if err != nil {
		return apperr.Wrap(err, apperr.PlaybackUnavailable, "Could not seek.")
	}
	return nil
}

// SetVolume sets the volume, clamped to [0, 1]. It applies in every state.
func (c *Controller) SetVolume(v float64) error {
	v = clampVolume(v)
	c.mu.Lock()
	c.state.Volume = v
	c.mu.Unlock()

	err := c.engine.SetVolume(v)
	c.emit(nil)
	if err != nil {
		return apperr.Wrap(err, apperr.PlaybackUnavailable, "Could not change the volume.")
	}
	return nil
}

// Next selects the song after the current one. It reports false at the end
// of the queue or when nothing is selected.
func (c *Controller) Next(ctx context.Context) (bool, error) {
	return c.step(ctx, queue.Next)
}

// Previous selects the song before the current one.
func (c *Controller) Previous(ctx context.Context) (bool, error) {
	return c.step(ctx, queue.Previous)
}

func (c *Controller) step(ctx context.Context, nav func(queue.Ordering, int64) (model.Song, bool)) (bool, error) {
	c.mu.Lock()
	cur, ok := c.state.CurrentSongID()
	q := c.queue
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	song, ok := nav(q, cur)
	if !ok {
		return false, nil
	}
	return true, c.selectSong(ctx, song, false)
}

// OnPositionReport records the engine's playback position. Reports that
// arrive while a new song is loading belong to the previous one and are
// dropped.
func (c *Controller) OnPositionReport(p float64) {
	c.mu.Lock()
	if c.state.Track == nil || c.state.Transport == model.Loaded || math.IsNaN(p) {
		c.mu.Unlock()
		return
	}
	track := c.state.Track
	if track.DurationKnown {
		track.Position = clamp(p, 0, track.Duration)
	} else {
		track.Position = math.Max(p, 0)
		// Unknown duration is at least as long as what has played.
		track.Duration = math.Max(track.Duration, track.Position)
	}
	c.mu.Unlock()
	c.emit(nil)
}

// OnDuration records the duration once the engine knows it.
func (c *Controller) OnDuration(d float64) {
	if d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return
	}
	c.mu.Lock()
	if c.state.Track == nil || c.state.Transport == model.Loaded {
		c.mu.Unlock()
		return
	}
	c.state.Track.Duration = d
	c.state.Track.DurationKnown = true
	if c.state.Track.Position > d {
		c.state.Track.Position = d
	}
	c.mu.Unlock()
	c.emit(nil)
}

// OnEnded advances to the next song in the queue. After the last song the
// controller rests Paused at the end rather than claiming to play.
func (c *Controller) OnEnded(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Transport != model.Playing {
		c.mu.Unlock()
		return nil
	}
	tok := c.token
	cur := c.state.Track.SongID
	q := c.queue
	c.mu.Unlock()

	if next, ok := queue.Next(q, cur); ok {
		return c.selectSong(ctx, next, false)
	}

	c.mu.Lock()
	if tok != c.token || c.state.Transport != model.Playing {
		c.mu.Unlock()
		return nil
	}
	track := c.state.Track
	if !track.DurationKnown {
		track.Duration = math.Max(track.Duration, track.Position)
	}
	track.Position = track.Duration
	c.state.Transport = model.Paused
	c.mu.Unlock()
	c.emit(nil)
	return nil
}

// OnLoadError handles a media failure reported outside Load, e.g. a
// stream that breaks mid-song. The controller returns to Idle.
func (c *Controller) OnLoadError(cause error) {
	c.mu.Lock()
	tok := c.token
	idle := c.state.Track == nil
	c.mu.Unlock()
	if idle {
		return
	}
	_ = c.fail(tok, cause)
}

// Reset returns to Idle at session end. The volume is kept.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.token++
	c.state.Transport = model.Idle
	c.state.Track = nil
	c.queue = nil
	c.mu.Unlock()
	c.emit(nil)
}

// emit sends the latest state, so observers never see an older state after
// a newer one.
func (c *Controller) emit(err error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if len(c.observers) == 0 {
		return
	}
	st := c.State()
	for _, o := range c.observers {
		o(st, err)
	}
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(math.Max(v, lo), hi)
}

func clampVolume(v float64) float64 {
	return clamp(v, 0, 1)
}
