package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/config"
	"deadsongs/core/apperr"
	"deadsongs/model"
	"deadsongs/repository/memrepo"
)

func testConfig() *config.Config {
	return &config.Config{
		AllowedOrigin:     "*",
		RemoteMaxAttempts: 1,
		RetryInitialWait:  time.Millisecond,
		RetryMaxWait:      time.Millisecond,
		RemoteTimeout:     time.Second,
		CounterAttempts:   2,
		MediaLoadTimeout:  time.Second,
		SearchRateLimit:   1000,
		SearchBurst:       1000,
		JWTSecret:         "test-secret",
		JWTIssuer:         "deadsongs",
		JWTTokenTTL:       time.Hour,
	}
}

type testServer struct {
	repo    *memrepo.Store
	handler *APIHandler
	router  http.Handler
}

// newTestServer seeds A(10 plays) and B(5 plays) plus a rock song with no
// plays, and loads the catalog by play count.
func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	t.Helper()
	repo := memrepo.New()
	repo.AddSong(model.Song{ID: 1, Title: "A", FileURL: "a.mp3", PlayCount: 10, LikesCount: 1, Genre: "jazz"})
	repo.AddSong(model.Song{ID: 2, Title: "B", FileURL: "b.mp3", PlayCount: 5, LikesCount: 9, Genre: "Jazz Fusion"})
	repo.AddSong(model.Song{ID: 3, Title: "Another Rock", FileURL: "c.mp3", Genre: "rock"})
	repo.AddPlaylist(model.Playlist{Name: "Rock Classics", OwnerID: "u1"})
	repo.AddPlaylist(model.Playlist{Name: "Chill", OwnerID: "u2"})

	deps := NewDeps(cfg, &Backend{Songs: repo, Playlists: repo, Likes: repo})
	h := NewAPIHandler(deps)
	_, err := deps.Catalog.Load(t.Context(), model.SortByPlayCount)
	require.NoError(t, err)
	return &testServer{repo: repo, handler: h, router: h.Router()}
}

func (s *testServer) do(t *testing.T, method, target, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		token, err := s.handler.Tokens.Issue(user)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type songsBody struct {
	Songs []model.Song `json:"songs"`
	Sort  string       `json:"sort"`
	Code  string       `json:"code"`
	Error string       `json:"error"`
}

func songIDs(songs []model.Song) []int64 {
	ids := make([]int64, len(songs))
	for i, s := range songs {
		ids[i] = s.ID
	}
	return ids
}

func TestListSongsOrdering(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/songs?sort=playCount", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[songsBody](t, rec)
	assert.Equal(t, []int64{1, 2, 3}, songIDs(body.Songs))

	rec = s.do(t, http.MethodGet, "/api/songs?sort=likes_count", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[songsBody](t, rec)
	assert.Equal(t, []int64{2, 1, 3}, songIDs(body.Songs))
	assert.Equal(t, "likes_count", body.Sort)
}

func TestListSongsRejectsUnknownSort(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/songs?sort=title", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[errorBody](t, rec).Code)
}

func TestListSongsKeepsLastGoodCatalog(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.repo.SetHook(memrepo.FailN(memrepo.OpListSongs, 1, apperr.New(apperr.RemoteUnavailable, "down")))

	rec := s.do(t, http.MethodGet, "/api/songs?sort=likes_count", "")

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[songsBody](t, rec)
	assert.Equal(t, []int64{1, 2, 3}, songIDs(body.Songs), "previous order is kept")
	assert.Equal(t, "REMOTE_UNAVAILABLE", body.Code)
	assert.NotEmpty(t, body.Error)
}

func TestSongPeek(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/songs/1/next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(2), decode[model.Song](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/api/songs/1/previous", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no wrap-around at the start")

	rec = s.do(t, http.MethodGet, "/api/songs/3/next", "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no wrap-around at the end")
}

func TestGetSong(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/songs/2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B", decode[model.Song](t, rec).Title)

	rec = s.do(t, http.MethodGet, "/api/songs/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFilterSongs(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/songs/filter?q=JAZZ&genre=rock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1, 2}, songIDs(decode[songsBody](t, rec).Songs), "query wins over genre")

	rec = s.do(t, http.MethodGet, "/api/songs/filter?genre=rock", "")
	assert.Equal(t, []int64{3}, songIDs(decode[songsBody](t, rec).Songs))

	rec = s.do(t, http.MethodGet, "/api/songs/genres", "")
	assert.ElementsMatch(t, []string{"jazz", "Jazz Fusion", "rock"}, decode[map[string][]string](t, rec)["genres"])
}

type searchBody struct {
	Tracks    []model.Song     `json:"tracks"`
	Playlists []model.Playlist `json:"playlists"`
	Error     *errorBody       `json:"error"`
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/search?term=rock", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)
	assert.Equal(t, []int64{3}, songIDs(body.Tracks))
	require.Len(t, body.Playlists, 1)
	assert.Equal(t, "Rock Classics", body.Playlists[0].Name)
	assert.Nil(t, body.Error)
}

func TestSearchEmptyTerm(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/search?term=", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"tracks":[],"playlists":[]}`, rec.Body.String())
	assert.Zero(t, s.repo.Calls(memrepo.OpSearchSongsByTitle))
}

func TestSearchPartialFailure(t *testing.T) {
	s := newTestServer(t, testConfig())
	s.repo.SetHook(memrepo.FailN(memrepo.OpSearchPlaylistsByName, 1, apperr.New(apperr.RemoteUnavailable, "Could not load playlists.")))

	rec := s.do(t, http.MethodGet, "/api/search?term=a", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[searchBody](t, rec)
	assert.Len(t, body.Tracks, 2, "tracks still returned")
	assert.Empty(t, body.Playlists)
	require.NotNil(t, body.Error)
	assert.Equal(t, "REMOTE_UNAVAILABLE", body.Error.Code)
}

func TestSearchRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.SearchRateLimit = 0.001
	cfg.SearchBurst = 1
	s := newTestServer(t, cfg)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/search?term=a", "").Code)
	rec := s.do(t, http.MethodGet, "/api/search?term=a", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "RATE_LIMITED", decode[errorBody](t, rec).Code)

	// Another user has a budget of their own.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/search?term=a", "u1").Code)
}

func TestToggleLikeRequiresLogin(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodPost, "/api/songs/1/like", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_REQUIRED", decode[errorBody](t, rec).Code)
	song, _ := s.repo.Snapshot(1)
	assert.Equal(t, int64(1), song.LikesCount)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodPost, "/api/songs/1/like", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[model.LikeResult](t, rec)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(2), res.LikesCount)

	rec = s.do(t, http.MethodGet, "/api/likes", "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{1}, decode[map[string][]int64](t, rec)["songIds"])

	rec = s.do(t, http.MethodPost, "/api/songs/1/like", "u1")
	res = decode[model.LikeResult](t, rec)
	assert.False(t, res.Liked)
	assert.Equal(t, int64(1), res.LikesCount)
}

func TestInvalidTokenRejected(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/likes", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaylists(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodGet, "/api/playlists", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]model.Playlist](t, rec)["playlists"], 2)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/playlists/mine", "").Code)

	rec = s.do(t, http.MethodGet, "/api/playlists/mine", "u2")
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[map[string][]model.Playlist](t, rec)["playlists"]
	require.Len(t, mine, 1)
	assert.Equal(t, "Chill", mine[0].Name)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.do(t, http.MethodOptions, "/api/songs", "")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
