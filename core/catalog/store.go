// Package catalog owns the client's ordered view of the song collection.
package catalog

import (
	"context"
	"sync"

	"deadsongs/core/apperr"
	"deadsongs/core/retry"
	"deadsongs/logger"
	"deadsongs/model"
	"deadsongs/repository"
)

// SnapshotCache stores the last good catalog per sort key.
type SnapshotCache interface {
	SaveCatalog(ctx context.Context, key model.SortKey, songs []model.Song) error
	LoadCatalog(ctx context.Context, key model.SortKey) ([]model.Song, error)
}

// URLResolver maps stored object keys to fetchable URLs.
type URLResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Store holds the catalog. Reads are served from memory; Load replaces the
// contents only when it is the most recent load to complete.
type Store struct {
	songs    repository.SongRepository
	cache    SnapshotCache
	resolver URLResolver
	policy   retry.Policy

	mu      sync.RWMutex
	items   []model.Song
	index   map[int64]int
	sortKey model.SortKey
	latest  uint64
}

// Option configures a Store.
type Option func(*Store)

func WithSnapshotCache(c SnapshotCache) Option {
	return func(s *Store) { s.cache = c }
}

func WithURLResolver(r URLResolver) Option {
	return func(s *Store) { s.resolver = r }
}

func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Store) { s.policy = p }
}

func NewStore(songs repository.SongRepository, opts ...Option) *Store {
	s := &Store{
		songs:   songs,
		policy:  retry.DefaultPolicy(),
		index:   map[int64]int{},
		sortKey: model.SortByPlayCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches every song ordered by key, descending. On failure the
// previous catalog is kept. A load overtaken by a newer one returns
// apperr.ErrSuperseded and changes nothing.
func (s *Store) Load(ctx context.Context, key model.SortKey) ([]model.Song, error) {
	if !key.Valid() {
		return nil, apperr.New(apperr.ValidationError, "Unknown sort order.")
	}

	s.mu.Lock()
	s.latest++
	token := s.latest
	s.mu.Unlock()

	songs, err := retry.Value(ctx, s.policy, "catalog.load", func(ctx context.Context) ([]model.Song, error) {
		return s.songs.ListSongs(ctx, key)
	})
	if err != nil {
		if s.isStale(token) {
			return nil, apperr.ErrSuperseded
		}
		logger.Error("Failed to load songs", logger.String("sort", string(key)), logger.ErrorField(err))
		if apperr.KindOf(err) == apperr.Unknown {
			err = apperr.Wrap(err, apperr.RemoteUnavailable, "Failed to load songs.")
		}
		return nil, err
	}

	// The snapshot keeps object keys; resolved URLs may be presigned and expire.
	raw := make([]model.Song, len(songs))
	copy(raw, songs)
	s.resolveURLs(ctx, songs)

	s.mu.Lock()
	if token != s.latest {
		s.mu.Unlock()
		return nil, apperr.ErrSuperseded
	}
	s.replace(songs, key)
	out := s.copyItems()
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.SaveCatalog(ctx, key, raw); err != nil {
			logger.Warn("Failed to cache catalog snapshot", logger.ErrorField(err))
		}
	}

	logger.Debug("Catalog loaded", logger.String("sort", string(key)), logger.Int("songs", len(out)))
	return out, nil
}

// SetSortKey changes the ordering and reloads.
func (s *Store) SetSortKey(ctx context.Context, key model.SortKey) ([]model.Song, error) {
	return s.Load(ctx, key)
}

// Warm fills an empty catalog from the snapshot cache. It reports whether a
// snapshot was applied.
func (s *Store) Warm(ctx context.Context, key model.SortKey) (bool, error) {
	if s.cache == nil {
		return false, nil
	}
	s.mu.RLock()
	token := s.latest
	empty := len(s.items) == 0
	s.mu.RUnlock()
	if !empty {
		return false, nil
	}

	songs, err := s.cache.LoadCatalog(ctx, key)
	if err != nil || songs == nil {
		return false, err
	}
	s.resolveURLs(ctx, songs)

	s.mu.Lock()
	defer s.mu.Unlock()
	// A load that started meanwhile owns the catalog.
	if token != s.latest || len(s.items) != 0 {
		return false, nil
	}
	s.replace(songs, key)
	return true, nil
}

// Songs returns a copy of the catalog in its current order.
func (s *Store) Songs() []model.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copyItems()
}

// Song looks a song up by id.
func (s *Store) Song(id int64) (model.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return model.Song{}, false
	}
	return s.items[i], true
}

// IndexOf returns the song's position in the current order, or -1.
func (s *Store) IndexOf(id int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.index[id]; ok {
		return i
	}
	return -1
}

func (s *Store) SortKey() model.SortKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortKey
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// AdjustLikes moves the local like counter by delta, never below zero, and
// returns the new value. The order is not changed until the next Load.
func (s *Store) AdjustLikes(id int64, delta int64) (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return 0, false
	}
	n := s.items[i].LikesCount + delta
	if n < 0 {
		n = 0
	}
	s.items[i].LikesCount = n
	return n, true
}

// Genres lists distinct non-empty genres in catalog order.
func (s *Store) Genres() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	genres := []string{}
	for _, song := range s.items {
		if song.Genre == "" {
			continue
		}
		if _, dup := seen[song.Genre]; dup {
			continue
		}
		seen[song.Genre] = struct{}{}
		genres = append(genres, song.Genre)
	}
	return genres
}

func (s *Store) isStale(token uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return token != s.latest
}

// replace must be called with mu held.
func (s *Store) replace(songs []model.Song, key model.SortKey) {
	s.items = make([]model.Song, len(songs))
	copy(s.items, songs)
	s.index = make(map[int64]int, len(songs))
	for i, song := range s.items {
		s.index[song.ID] = i
	}
	s.sortKey = key
}

func (s *Store) copyItems() []model.Song {
	out := make([]model.Song, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) resolveURLs(ctx context.Context, songs []model.Song) {
	if s.resolver == nil {
		return
	}
	for i := range songs {
		if u, err := s.resolver.Resolve(ctx, songs[i].FileURL); err == nil {
			songs[i].FileURL = u
		} else {
			logger.Warn("Failed to resolve audio URL", logger.Int64("song_id", songs[i].ID), logger.ErrorField(err))
		}
		if u, err := s.resolver.Resolve(ctx, songs[i].ImageURL); err == nil {
			songs[i].ImageURL = u
		}
	}
}
