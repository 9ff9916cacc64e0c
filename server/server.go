package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"deadsongs/cache"
	"deadsongs/config"
	"deadsongs/core/auth"
	"deadsongs/core/catalog"
	"deadsongs/core/like"
	"deadsongs/core/search"
	"deadsongs/logger"
	"deadsongs/model"
	"deadsongs/repository"
)

// PlaybackStore persists player session state.
type PlaybackStore interface {
	SaveState(ctx context.Context, sessionID string, state model.PlaybackState) error
	LoadState(ctx context.Context, sessionID string) (*model.PlaybackState, error)
}

// Deps are the components the HTTP layer serves.
type Deps struct {
	Config    *config.Config
	Catalog   *catalog.Store
	Search    *search.Aggregator
	Likes     *like.Reconciler
	Songs     repository.SongRepository
	Playlists repository.PlaylistRepository
	Tokens    *auth.TokenProvider
	// Auth resolves the current user; it defaults to Tokens.
	Auth auth.Provider
	// Playback is optional; without it sessions are not persisted.
	Playback PlaybackStore
}

// APIHandler serves the REST API and the player websocket.
type APIHandler struct {
	Deps
	limiter *clientLimiter
}

func NewAPIHandler(d Deps) *APIHandler {
	if d.Auth == nil && d.Tokens != nil {
		d.Auth = d.Tokens
	}
	return &APIHandler{
		Deps:    d,
		limiter: newClientLimiter(d.Config.SearchRateLimit, d.Config.SearchBurst),
	}
}

// Router builds the route table.
func (h *APIHandler) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(h.corsMiddleware)
	router.Use(requestLogger)
	router.Use(h.AuthMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/songs", h.ListSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/genres", h.GenresHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/filter", h.FilterSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id:[0-9]+}", h.GetSongHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id:[0-9]+}/next", h.NextSongHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id:[0-9]+}/previous", h.PreviousSongHandler).Methods(http.MethodGet)
	api.HandleFunc("/songs/{id:[0-9]+}/like", h.ToggleLikeHandler).Methods(http.MethodPost)
	api.HandleFunc("/likes", h.LikedSongsHandler).Methods(http.MethodGet)
	api.HandleFunc("/search", h.RateLimit(h.SearchHandler)).Methods(http.MethodGet)
	api.HandleFunc("/playlists", h.ListPlaylistsHandler).Methods(http.MethodGet)
	api.HandleFunc("/playlists/mine", h.MyPlaylistsHandler).Methods(http.MethodGet)
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	router.HandleFunc("/ws/player", h.PlayerSocketHandler)

	// Middleware only runs on a matched route, so preflights need one.
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return router
}

func (h *APIHandler) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", h.Config.AllowedOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The websocket upgrade needs the raw writer's Hijacker.
		if strings.HasPrefix(r.URL.Path, "/ws/") {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("http request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Duration("took", time.Since(start)))
	})
}

// AuthMiddleware puts the bearer token's user on the request context.
// Requests without credentials continue anonymously; operations that need
// a user reject them. Browsers cannot set headers on websocket requests,
// so a token query parameter is accepted as well.
func (h *APIHandler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			if token := r.URL.Query().Get("token"); token != "" {
				header = "Bearer " + token
			}
		}
		if header == "" || h.Tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := h.Tokens.ParseBearer(header)
		if err != nil {
			writeErrorBody(w, http.StatusUnauthorized, "AUTH_REQUIRED", "Your session has expired. Please log in again.")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), claims.UserID)))
	})
}

// currentUser returns the authenticated user id, or "".
func (h *APIHandler) currentUser(r *http.Request) string {
	if h.Auth == nil {
		return ""
	}
	id, _ := h.Auth.CurrentUser(r.Context())
	return id
}

// warmCatalog seeds the catalog from the snapshot cache, then loads it.
func warmCatalog(ctx context.Context, store *catalog.Store, key model.SortKey) {
	if ok, err := store.Warm(ctx, key); err != nil {
		logger.Warn("Catalog snapshot unavailable", logger.ErrorField(err))
	} else if ok {
		logger.Info("Catalog warmed from snapshot", logger.Int("songs", store.Len()))
	}
	if _, err := store.Load(ctx, key); err != nil {
		logger.Warn("Initial catalog load failed", logger.ErrorField(err))
	}
}

var _ PlaybackStore = (*cache.PlaybackCache)(nil)
