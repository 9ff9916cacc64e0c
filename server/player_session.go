package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"deadsongs/core/apperr"
	"deadsongs/core/player"
	"deadsongs/core/search"
	"deadsongs/logger"
	"deadsongs/model"
)

const persistTimeout = 2 * time.Second

// playerSession is one browser tab: its own controller, its own search
// ordering and a websocket to the audio element.
type playerSession struct {
	id     string
	userID string
	h      *APIHandler

	client *wsClient
	engine *wsEngine
	ctrl   *player.Controller
	search *search.Aggregator

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	saveMu sync.Mutex
	saved  *model.PlaybackState
}

func (h *APIHandler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return h.Config.AllowedOrigin == "*" || origin == "" || origin == h.Config.AllowedOrigin
		},
	}
}

// PlayerSocketHandler upgrades to a websocket and runs a player session
// until the browser goes away. A "session" query parameter resumes the
// volume of an earlier session.
func (h *APIHandler) PlayerSocketHandler(w http.ResponseWriter, r *http.Request) {
	up := h.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", logger.ErrorField(err))
		return
	}

	sessionID := r.URL.Query().Get("session")
	if _, err := uuid.Parse(sessionID); err != nil {
		sessionID = uuid.New().String()
	}

	s := h.newPlayerSession(sessionID, h.currentUser(r), newWSClient(conn))
	logger.Info("player session opened",
		logger.String("session", s.id),
		logger.String("user", s.userID))

	go s.client.WritePump()
	s.start()
	s.client.ReadPump(s.handle)
	s.finish()

	logger.Info("player session closed", logger.String("session", s.id))
}

func (h *APIHandler) newPlayerSession(id, userID string, client *wsClient) *playerSession {
	ctx, cancel := context.WithCancel(context.Background())
	s := &playerSession{
		id:     id,
		userID: userID,
		h:      h,
		client: client,
		engine: newWSEngine(client, h.Config.MediaLoadTimeout),
		search: h.Search.Fork(),
		ctx:    ctx,
		cancel: cancel,
	}

	opts := []player.Option{
		player.WithPlayRecorder(h.Songs),
		player.WithObserver(s.onState),
	}
	if prev := s.restore(); prev != nil {
		opts = append(opts, player.WithVolume(prev.Volume))
	}
	s.ctrl = player.NewController(s.engine, h.Catalog, opts...)
	return s
}

func (s *playerSession) restore() *model.PlaybackState {
	if s.h.Playback == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, persistTimeout)
	defer cancel()
	st, err := s.h.Playback.LoadState(ctx, s.id)
	if err != nil {
		logger.Warn("failed to restore player state", logger.String("session", s.id), logger.ErrorField(err))
		return nil
	}
	return st
}

func (s *playerSession) start() {
	st := s.ctrl.State()
	s.client.Send(serverMessage{Type: "hello", SessionID: s.id, State: &st})
	s.persist(st)

	if s.userID == "" {
		return
	}
	s.spawn(func() {
		ids, err := s.h.Likes.LoadLiked(s.ctx, s.userID)
		if err != nil {
			s.reportError(err)
			return
		}
		s.client.Send(serverMessage{Type: "liked", SongIDs: ids})
	})
}

// finish stops in-flight work and leaves the session Idle.
func (s *playerSession) finish() {
	s.cancel()
	s.wg.Wait()
	s.ctrl.Reset()
}

func (s *playerSession) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *playerSession) handle(msg clientMessage) {
	switch msg.Type {
	case "select":
		song, ok := s.h.Catalog.Song(msg.SongID)
		if !ok {
			s.reportError(apperr.New(apperr.ValidationError, "That song is not in the catalog."))
			return
		}
		s.spawn(func() { s.reportError(s.ctrl.SelectSong(s.ctx, song)) })
	case "toggle":
		s.reportError(s.ctrl.TogglePlayPause())
	case "seek":
		s.reportError(s.ctrl.Seek(msg.Value))
	case "volume":
		s.reportError(s.ctrl.SetVolume(msg.Value))
	case "next":
		s.spawn(func() {
			_, err := s.ctrl.Next(s.ctx)
			s.reportError(err)
		})
	case "previous":
		s.spawn(func() {
			_, err := s.ctrl.Previous(s.ctx)
			s.reportError(err)
		})

	case "loaded":
		s.engine.resolve(msg.Token, loadReply{duration: msg.Value})
	case "load_error":
		err := loadError(msg.Message)
		if !s.engine.resolve(msg.Token, loadReply{err: err}) && s.engine.current(msg.Token) {
			s.ctrl.OnLoadError(err)
		}
	case "position":
		if s.engine.current(msg.Token) {
			s.ctrl.OnPositionReport(msg.Value)
		}
	case "duration":
		if s.engine.current(msg.Token) {
			s.ctrl.OnDuration(msg.Value)
		}
	case "ended":
		if s.engine.current(msg.Token) {
			s.spawn(func() { s.reportError(s.ctrl.OnEnded(s.ctx)) })
		}

	case "search":
		query := msg.Query
		s.spawn(func() {
			res, err := s.search.Search(s.ctx, query)
			if errors.Is(err, apperr.ErrSuperseded) {
				return
			}
			out := serverMessage{Type: "search", Search: &res}
			if err != nil {
				e := toErrorBody(err)
				out.Error = &e
			}
			s.client.Send(out)
		})
	case "like":
		songID := msg.SongID
		s.spawn(func() {
			res, err := s.h.Likes.ToggleLike(s.ctx, songID, s.userID)
			out := serverMessage{Type: "like", Like: &res}
			if err != nil {
				e := toErrorBody(err)
				out.Error = &e
			}
			s.client.Send(out)
		})

	case "ping":
		s.client.Send(serverMessage{Type: "pong"})
	default:
		s.reportError(apperr.New(apperr.ValidationError, "Unknown message type."))
	}
}

// onState forwards every controller change to the browser.
func (s *playerSession) onState(st model.PlaybackState, err error) {
	out := serverMessage{Type: "state", State: &st}
	if err != nil {
		e := toErrorBody(err)
		out.Error = &e
	}
	s.client.Send(out)
	s.persist(st)
}

// persist saves st unless only the position moved since the last save.
func (s *playerSession) persist(st model.PlaybackState) {
	if s.h.Playback == nil {
		return
	}
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if s.saved != nil && sameSession(*s.saved, st) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.h.Playback.SaveState(ctx, s.id, st); err != nil {
		logger.Warn("failed to save player state", logger.String("session", s.id), logger.ErrorField(err))
		return
	}
	s.saved = &st
}

func sameSession(a, b model.PlaybackState) bool {
	if a.Transport != b.Transport || a.Volume != b.Volume {
		return false
	}
	aID, _ := a.CurrentSongID()
	bID, _ := b.CurrentSongID()
	return aID == bID
}

// reportError tells the browser about failures the state stream does not
// already carry. Load failures arrive with the Idle state.
func (s *playerSession) reportError(err error) {
	if err == nil || errors.Is(err, apperr.ErrSuperseded) || errors.Is(err, errClientClosed) {
		return
	}
	if apperr.Is(err, apperr.PlaybackUnavailable) || errors.Is(err, context.Canceled) {
		return
	}
	e := toErrorBody(err)
	s.client.Send(serverMessage{Type: "error", Error: &e})
}
