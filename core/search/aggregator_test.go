package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/core/apperr"
	"deadsongs/core/retry"
	"deadsongs/model"
	"deadsongs/repository/memrepo"
)

var fastRetry = retry.Policy{MaxAttempts: 1}

type staticCatalog []model.Song

func (c staticCatalog) Songs() []model.Song { return c }

func newFixture() (*Aggregator, *memrepo.Store) {
	repo := memrepo.New()
	repo.AddSong(model.Song{ID: 1, Title: "Love Song", Genre: "Pop"})
	repo.AddSong(model.Song{ID: 2, Title: "Road Trip", Genre: "Rock"})
	repo.AddSong(model.Song{ID: 3, Title: "Glove Box", Genre: "Indie Rock"})
	repo.AddPlaylist(model.Playlist{Name: "Lovely Mornings", OwnerID: "u1"})
	repo.AddPlaylist(model.Playlist{Name: "Workout", OwnerID: "u2"})

	catalog := staticCatalog{
		{ID: 1, Title: "Love Song", Genre: "Pop"},
		{ID: 2, Title: "Road Trip", Genre: "Rock"},
		{ID: 3, Title: "Glove Box", Genre: "Indie Rock"},
		{ID: 4, Title: "Untagged"},
	}
	return NewAggregator(repo, repo, catalog, fastRetry), repo
}

func TestEmptyTermReturnsEmpty(t *testing.T) {
	a, repo := newFixture()

	res, err := a.Search(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, res.Tracks)
	assert.Empty(t, res.Tracks)
	assert.Empty(t, res.Playlists)
	assert.Zero(t, repo.Calls(memrepo.OpSearchSongsByTitle), "empty term never reaches the store")
}

func TestSearchIsCaseInsensitiveSubstring(t *testing.T) {
	a, _ := newFixture()

	res, err := a.Search(context.Background(), "LOVE")
	require.NoError(t, err)

	require.Len(t, res.Tracks, 2)
	assert.Equal(t, int64(1), res.Tracks[0].ID)
	assert.Equal(t, int64(3), res.Tracks[1].ID)
	require.Len(t, res.Playlists, 1)
	assert.Equal(t, "Lovely Mornings", res.Playlists[0].Name)
}

func TestSearchHalvesAreIndependent(t *testing.T) {
	a, repo := newFixture()
	repo.SetHook(memrepo.FailN(memrepo.OpSearchPlaylistsByName, 1, apperr.New(apperr.RemoteUnavailable, "Failed to search playlists.")))

	res, err := a.Search(context.Background(), "love")

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.RemoteUnavailable))
	assert.Len(t, res.Tracks, 2, "track half still returned")
	assert.Empty(t, res.Playlists)
}

func TestSearchBothHalvesFail(t *testing.T) {
	a, repo := newFixture()
	repo.SetHook(func(ctx context.Context, op string) error {
		return apperr.New(apperr.RemoteUnavailable, "down")
	})

	res, err := a.Search(context.Background(), "love")
	assert.True(t, apperr.Is(err, apperr.RemoteUnavailable))
	assert.Empty(t, res.Tracks)
	assert.Empty(t, res.Playlists)
}

func TestSearchLastRequestWins(t *testing.T) {
	a, repo := newFixture()
	release := make(chan struct{})
	repo.SetHook(func(ctx context.Context, op string) error {
		if op == memrepo.OpSearchSongsByTitle {
			// Only the first term blocks; "road" passes straight through.
			if repo.Calls(memrepo.OpSearchSongsByTitle) == 1 {
				<-release
			}
		}
		return nil
	})

	stale := make(chan error, 1)
	go func() {
		_, err := a.Search(context.Background(), "love")
		stale <- err
	}()
	require.Eventually(t, func() bool { return repo.Calls(memrepo.OpSearchSongsByTitle) == 1 }, time.Second, time.Millisecond)

	res, err := a.Search(context.Background(), "road")
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	assert.Equal(t, "Road Trip", res.Tracks[0].Title)

	close(release)
	assert.ErrorIs(t, <-stale, apperr.ErrSuperseded)
}

func TestFilterByGenrePrecedence(t *testing.T) {
	a, _ := newFixture()

	// Query wins over genre and is a case-insensitive substring match.
	got := a.FilterByGenre("rock", "Pop")
	assert.Equal(t, []int64{2, 3}, songIDs(got))

	// Genre alone is exact.
	got = a.FilterByGenre("", "Rock")
	assert.Equal(t, []int64{2}, songIDs(got))

	got = a.FilterByGenre("", "rock")
	assert.Empty(t, got, "exact match is case-sensitive")

	// Neither yields the unfiltered catalog.
	got = a.FilterByGenre("", "")
	assert.Equal(t, []int64{1, 2, 3, 4}, songIDs(got))
}

func songIDs(songs []model.Song) []int64 {
	out := []int64{}
	for _, s := range songs {
		out = append(out, s.ID)
	}
	return out
}

func TestForksOrderIndependently(t *testing.T) {
	a, repo := newFixture()
	release := make(chan struct{})
	repo.SetHook(func(ctx context.Context, op string) error {
		if op == memrepo.OpSearchSongsByTitle && repo.Calls(op) == 1 {
			<-release
		}
		return nil
	})
	other := a.Fork()

	slow := make(chan error, 1)
	go func() {
		_, err := a.Search(context.Background(), "love")
		slow <- err
	}()
	require.Eventually(t, func() bool { return repo.Calls(memrepo.OpSearchSongsByTitle) == 1 }, time.Second, time.Millisecond)

	_, err := other.Search(context.Background(), "road")
	require.NoError(t, err)

	close(release)
	assert.NoError(t, <-slow, "a search in another session does not supersede this one")
}

func TestIdenticalLookupsShareOneRoundTrip(t *testing.T) {
	a, repo := newFixture()
	release := make(chan struct{})
	repo.SetHook(func(ctx context.Context, op string) error {
		if op == memrepo.OpSearchSongsByTitle {
			<-release
		}
		return nil
	})

	const callers = 4
	results := make(chan int, callers)
	for i := 0; i < callers; i++ {
		go func() {
			res, err := a.Lookup(context.Background(), "Love")
			if err != nil {
				results <- -1
				return
			}
			results <- len(res.Tracks)
		}()
	}
	require.Eventually(t, func() bool { return repo.Calls(memrepo.OpSearchSongsByTitle) == 1 }, time.Second, time.Millisecond)
	// Let the other callers join the in-flight call before it finishes.
	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < callers; i++ {
		assert.Equal(t, 2, <-results)
	}
	assert.Equal(t, 1, repo.Calls(memrepo.OpSearchSongsByTitle))
}
