// Package search runs track and playlist substring searches and filters
// the catalog by genre.
package search

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"deadsongs/core/apperr"
	"deadsongs/core/retry"
	"deadsongs/logger"
	"deadsongs/model"
	"deadsongs/repository"
)

// CatalogView is the read side of the catalog used by the genre filter.
type CatalogView interface {
	Songs() []model.Song
}

type Aggregator struct {
	songs     repository.SongRepository
	playlists repository.PlaylistRepository
	catalog   CatalogView
	policy    retry.Policy

	group *singleflight.Group

	mu     sync.Mutex
	latest uint64
}

func NewAggregator(songs repository.SongRepository, playlists repository.PlaylistRepository, catalog CatalogView, policy retry.Policy) *Aggregator {
	return &Aggregator{
		songs:     songs,
		playlists: playlists,
		catalog:   catalog,
		policy:    policy,
		group:     &singleflight.Group{},
	}
}

// Fork returns an aggregator with its own request ordering that shares
// request de-duplication with a. Each client session uses its own fork.
func (a *Aggregator) Fork() *Aggregator {
	return &Aggregator{
		songs:     a.songs,
		playlists: a.playlists,
		catalog:   a.catalog,
		policy:    a.policy,
		group:     a.group,
	}
}

// Search matches term against track titles and playlist names,
// case-insensitively, keeping store order. An empty term yields empty
// results. The halves are independent: if one fails the other is still
// returned together with the error. A search overtaken by a newer one
// returns apperr.ErrSuperseded.
func (a *Aggregator) Search(ctx context.Context, term string) (model.SearchResult, error) {
	token := a.begin()
	res, err := a.Lookup(ctx, term)
	if !a.current(token) {
		return model.EmptySearchResult(), apperr.ErrSuperseded
	}
	return res, err
}

// Lookup is Search without request ordering, for callers that deliver
// each response to its own requester.
func (a *Aggregator) Lookup(ctx context.Context, term string) (model.SearchResult, error) {
	if term == "" {
		return model.EmptySearchResult(), nil
	}

	// Identical concurrent searches share one round trip. The shared call
	// is detached from any single caller; retries bound its lifetime.
	key := strings.ToLower(term)
	ch := a.group.DoChan(key, func() (interface{}, error) {
		res := a.fetch(context.WithoutCancel(ctx), term)
		return res, nil
	})

	var res outcome
	select {
	case <-ctx.Done():
		return model.EmptySearchResult(), apperr.Wrap(ctx.Err(), apperr.RemoteUnavailable, "Search cancelled.")
	case r := <-ch:
		res = r.Val.(outcome)
	}

	out := model.SearchResult{
		Tracks:    append([]model.Song{}, res.tracks...),
		Playlists: append([]model.Playlist{}, res.playlists...),
	}
	return out, res.err()
}

type outcome struct {
	tracks       []model.Song
	playlists    []model.Playlist
	trackErr     error
	playlistsErr error
}

func (o outcome) err() error {
	switch {
	case o.trackErr != nil && o.playlistsErr != nil:
		return apperr.Wrap(o.trackErr, apperr.RemoteUnavailable, "Search failed.")
	case o.trackErr != nil:
		return o.trackErr
	default:
		return o.playlistsErr
	}
}

func (a *Aggregator) fetch(ctx context.Context, term string) outcome {
	var (
		wg  sync.WaitGroup
		out outcome
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		out.tracks, out.trackErr = retry.Value(ctx, a.policy, "search.tracks", func(ctx context.Context) ([]model.Song, error) {
			return a.songs.SearchSongsByTitle(ctx, term)
		})
		if out.trackErr != nil {
			logger.Warn("Track search failed", logger.String("term", term), logger.ErrorField(out.trackErr))
			out.tracks = nil
		}
	}()
	go func() {
		defer wg.Done()
		out.playlists, out.playlistsErr = retry.Value(ctx, a.policy, "search.playlists", func(ctx context.Context) ([]model.Playlist, error) {
			return a.playlists.SearchPlaylistsByName(ctx, term)
		})
		if out.playlistsErr != nil {
			logger.Warn("Playlist search failed", logger.String("term", term), logger.ErrorField(out.playlistsErr))
			out.playlists = nil
		}
	}()
	wg.Wait()
	return out
}

// FilterByGenre filters the catalog. A non-empty query is a
// case-insensitive substring match on genre and takes precedence; else a
// non-empty genre must match exactly; else the whole catalog is returned.
func (a *Aggregator) FilterByGenre(query, genre string) []model.Song {
	songs := a.catalog.Songs()
	switch {
	case query != "":
		needle := strings.ToLower(query)
		return filter(songs, func(s model.Song) bool {
			return strings.Contains(strings.ToLower(s.Genre), needle)
		})
	case genre != "":
		return filter(songs, func(s model.Song) bool { return s.Genre == genre })
	default:
		return songs
	}
}

func filter(songs []model.Song, keep func(model.Song) bool) []model.Song {
	out := []model.Song{}
	for _, s := range songs {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func (a *Aggregator) begin() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latest++
	return a.latest
}

func (a *Aggregator) current(token uint64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return token == a.latest
}
