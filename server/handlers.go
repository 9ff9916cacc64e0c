package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"deadsongs/core/apperr"
	"deadsongs/core/queue"
	"deadsongs/logger"
	"deadsongs/model"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

func writeErrorBody(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Code: code, Message: message})
}

func toErrorBody(err error) errorBody {
	if errors.Is(err, apperr.ErrSuperseded) {
		return errorBody{Code: "SUPERSEDED", Message: "A newer request replaced this one."}
	}
	return errorBody{Code: apperr.KindOf(err).Code(), Message: apperr.Message(err)}
}

func writeError(w http.ResponseWriter, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	if errors.Is(err, apperr.ErrSuperseded) {
		status = http.StatusConflict
	}
	writeJSON(w, status, toErrorBody(err))
}

func songIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.ValidationError, "Invalid song id.")
	}
	return id, nil
}

// ListSongsHandler reloads the catalog in the requested order. When the
// reload fails the last good catalog is returned along with the error.
func (h *APIHandler) ListSongsHandler(w http.ResponseWriter, r *http.Request) {
	key, err := model.ParseSortKey(r.URL.Query().Get("sort"))
	if err != nil {
		writeError(w, apperr.Wrap(err, apperr.ValidationError, "Unknown sort order."))
		return
	}

	songs, err := h.Catalog.Load(r.Context(), key)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrSuperseded):
		// A concurrent reload won; serve what it produced.
		songs = h.Catalog.Songs()
	default:
		e := toErrorBody(err)
		writeJSON(w, apperr.KindOf(err).HTTPStatus(), map[string]interface{}{
			"songs": h.Catalog.Songs(),
			"sort":  h.Catalog.SortKey(),
			"code":  e.Code,
			"error": e.Message,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"songs": songs,
		"sort":  h.Catalog.SortKey(),
	})
}

func (h *APIHandler) GetSongHandler(w http.ResponseWriter, r *http.Request) {
	id, err := songIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if song, ok := h.Catalog.Song(id); ok {
		writeJSON(w, http.StatusOK, song)
		return
	}
	song, err := h.Songs.GetSongByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if song == nil {
		writeErrorBody(w, http.StatusNotFound, "NOT_FOUND", "Song not found.")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *APIHandler) GenresHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"genres": h.Catalog.Genres()})
}

func (h *APIHandler) FilterSongsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	songs := h.Search.FilterByGenre(q.Get("q"), q.Get("genre"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"songs": songs})
}

// NextSongHandler peeks at the song after id in the current catalog order.
func (h *APIHandler) NextSongHandler(w http.ResponseWriter, r *http.Request) {
	h.peek(w, r, queue.Next)
}

func (h *APIHandler) PreviousSongHandler(w http.ResponseWriter, r *http.Request) {
	h.peek(w, r, queue.Previous)
}

func (h *APIHandler) peek(w http.ResponseWriter, r *http.Request, nav func(queue.Ordering, int64) (model.Song, bool)) {
	id, err := songIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	song, ok := nav(queue.Live{Source: h.Catalog}, id)
	if !ok {
		writeErrorBody(w, http.StatusNotFound, "NOT_FOUND", "No song in that direction.")
		return
	}
	writeJSON(w, http.StatusOK, song)
}

func (h *APIHandler) ToggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := songIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := h.Likes.ToggleLike(r.Context(), id, h.currentUser(r))
	if err != nil {
		logger.Info("like toggle failed",
			logger.Int64("song_id", id),
			logger.String("kind", apperr.KindOf(err).String()),
			logger.ErrorField(err))
		status := apperr.KindOf(err).HTTPStatus()
		writeJSON(w, status, map[string]interface{}{
			"code":    apperr.KindOf(err).Code(),
			"message": apperr.Message(err),
			"result":  res,
		})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *APIHandler) LikedSongsHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := h.Likes.LoadLiked(r.Context(), h.currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"songIds": ids})
}

type searchResponse struct {
	model.SearchResult
	Error *errorBody `json:"error,omitempty"`
}

// SearchHandler returns whatever half of a search succeeded. It fails only
// when nothing could be returned.
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	res, err := h.Search.Lookup(r.Context(), r.URL.Query().Get("term"))
	if err != nil {
		if len(res.Tracks) == 0 && len(res.Playlists) == 0 {
			writeError(w, err)
			return
		}
		e := toErrorBody(err)
		writeJSON(w, http.StatusOK, searchResponse{SearchResult: res, Error: &e})
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{SearchResult: res})
}

func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	playlists, err := h.Playlists.ListPlaylists(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
}

func (h *APIHandler) MyPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	userID := h.currentUser(r)
	if userID == "" {
		writeError(w, apperr.New(apperr.AuthRequired, "Please log in to see your playlists."))
		return
	}
	playlists, err := h.Playlists.ListPlaylistsByOwner(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"playlists": playlists})
}
