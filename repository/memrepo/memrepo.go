// Package memrepo is an in-memory implementation of the song, playlist and
// like repositories. It backs `serve --memory` and the component tests.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"

	"deadsongs/core/apperr"
	"deadsongs/model"
	"deadsongs/repository"
)

// Operation names passed to the hook.
const (
	OpListSongs             = "ListSongs"
	OpGetSongByID           = "GetSongByID"
	OpSearchSongsByTitle    = "SearchSongsByTitle"
	OpAdjustLikes           = "AdjustLikes"
	OpRecordPlay            = "RecordPlay"
	OpRecountLikes          = "RecountLikes"
	OpRecountSongLikes      = "RecountSongLikes"
	OpListPlaylists         = "ListPlaylists"
	OpListPlaylistsByOwner  = "ListPlaylistsByOwner"
	OpSearchPlaylistsByName = "SearchPlaylistsByName"
	OpExists                = "Exists"
	OpInsert                = "Insert"
	OpDelete                = "Delete"
	OpListSongIDs           = "ListSongIDs"
)

// Hook runs before every operation. A non-nil error fails the operation.
// Hooks may block; they receive the operation's context.
type Hook func(ctx context.Context, op string) error

type likeKey struct {
	user string
	song int64
}

type Store struct {
	mu        sync.Mutex
	songs     map[int64]*model.Song
	songOrder []int64
	playlists []model.Playlist
	likes     map[likeKey]struct{}
	nextSong  int64
	nextList  int64
	hook      Hook
	calls     map[string]int
}

var (
	_ repository.SongRepository     = (*Store)(nil)
	_ repository.PlaylistRepository = (*Store)(nil)
	_ repository.LikeRepository     = (*Store)(nil)
)

func New() *Store {
	return &Store{
		songs: map[int64]*model.Song{},
		likes: map[likeKey]struct{}{},
		calls: map[string]int{},
	}
}

// SetHook installs h, replacing any previous hook.
func (s *Store) SetHook(h Hook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// Calls reports how many times op ran, including failed attempts.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// AddSong stores song, assigning an id when it has none.
func (s *Store) AddSong(song model.Song) model.Song {
	s.mu.Lock()
	defer s.mu.Unlock()
	if song.ID == 0 {
		s.nextSong++
		song.ID = s.nextSong
	} else if song.ID > s.nextSong {
		s.nextSong = song.ID
	}
	cp := song
	if _, exists := s.songs[song.ID]; !exists {
		s.songOrder = append(s.songOrder, song.ID)
	}
	s.songs[song.ID] = &cp
	return cp
}

// AddPlaylist stores p, assigning an id when it has none.
func (s *Store) AddPlaylist(p model.Playlist) model.Playlist {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		s.nextList++
		p.ID = s.nextList
	} else if p.ID > s.nextList {
		s.nextList = p.ID
	}
	s.playlists = append(s.playlists, p)
	return p
}

// Snapshot returns the stored song.
func (s *Store) Snapshot(id int64) (model.Song, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return model.Song{}, false
	}
	return *song, true
}

// LikeCount counts relation rows for a song.
func (s *Store) LikeCount(songID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.likes {
		if k.song == songID {
			n++
		}
	}
	return n
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	hook := s.hook
	s.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, op); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(err, apperr.RemoteUnavailable, "Request timed out.")
	}
	return nil
}

func (s *Store) ListSongs(ctx context.Context, key model.SortKey) ([]model.Song, error) {
	if !key.Valid() {
		return nil, apperr.New(apperr.ValidationError, "Unknown sort order.")
	}
	if err := s.enter(ctx, OpListSongs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Song, 0, len(s.songs))
	for _, id := range s.songOrder {
		out = append(out, *s.songs[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		vi, vj := key.Value(out[i]), key.Value(out[j])
		if vi != vj {
			return vi > vj
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetSongByID(ctx context.Context, id int64) (*model.Song, error) {
	if err := s.enter(ctx, OpGetSongByID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[id]
	if !ok {
		return nil, nil
	}
	cp := *song
	return &cp, nil
}

func (s *Store) SearchSongsByTitle(ctx context.Context, term string) ([]model.Song, error) {
	if err := s.enter(ctx, OpSearchSongsByTitle); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(term)
	out := []model.Song{}
	for _, id := range s.songOrder {
		if strings.Contains(strings.ToLower(s.songs[id].Title), needle) {
			out = append(out, *s.songs[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AdjustLikes(ctx context.Context, songID int64, delta int64) error {
	if err := s.enter(ctx, OpAdjustLikes); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[songID]
	if !ok {
		return apperr.New(apperr.ValidationError, "Song not found.")
	}
	song.LikesCount += delta
	if song.LikesCount < 0 {
		song.LikesCount = 0
	}
	return nil
}

func (s *Store) RecordPlay(ctx context.Context, songID int64) error {
	if err := s.enter(ctx, OpRecordPlay); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if song, ok := s.songs[songID]; ok {
		song.PlayCount++
	}
	return nil
}

func (s *Store) RecountLikes(ctx context.Context) (int64, error) {
	if err := s.enter(ctx, OpRecountLikes); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[int64]int64{}
	for k := range s.likes {
		counts[k.song]++
	}
	var changed int64
	for id, song := range s.songs {
		if song.LikesCount != counts[id] {
			song.LikesCount = counts[id]
			changed++
		}
	}
	return changed, nil
}

func (s *Store) RecountSongLikes(ctx context.Context, songID int64) (int64, error) {
	if err := s.enter(ctx, OpRecountSongLikes); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	song, ok := s.songs[songID]
	if !ok {
		return 0, apperr.New(apperr.ValidationError, "Song not found.")
	}
	var n int64
	for k := range s.likes {
		if k.song == songID {
			n++
		}
	}
	song.LikesCount = n
	return n, nil
}

func (s *Store) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	if err := s.enter(ctx, OpListPlaylists); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Playlist, len(s.playlists))
	copy(out, s.playlists)
	return out, nil
}

func (s *Store) ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	if err := s.enter(ctx, OpListPlaylistsByOwner); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Playlist{}
	for _, p := range s.playlists {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) SearchPlaylistsByName(ctx context.Context, term string) ([]model.Playlist, error) {
	if err := s.enter(ctx, OpSearchPlaylistsByName); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(term)
	out := []model.Playlist{}
	for _, p := range s.playlists {
		if strings.Contains(strings.ToLower(p.Name), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, userID string, songID int64) (bool, error) {
	if err := s.enter(ctx, OpExists); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.likes[likeKey{userID, songID}]
	return ok, nil
}

func (s *Store) Insert(ctx context.Context, userID string, songID int64) error {
	if err := s.enter(ctx, OpInsert); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := likeKey{userID, songID}
	if _, ok := s.likes[k]; ok {
		return apperr.New(apperr.RaceConditionConflict, "The change conflicted with another session.")
	}
	s.likes[k] = struct{}{}
	return nil
}

func (s *Store) Delete(ctx context.Context, userID string, songID int64) error {
	if err := s.enter(ctx, OpDelete); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := likeKey{userID, songID}
	if _, ok := s.likes[k]; !ok {
		return apperr.New(apperr.RaceConditionConflict, "The like was already removed.")
	}
	delete(s.likes, k)
	return nil
}

func (s *Store) ListSongIDs(ctx context.Context, userID string) ([]int64, error) {
	if err := s.enter(ctx, OpListSongIDs); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := []int64{}
	for k := range s.likes {
		if k.user == userID {
			ids = append(ids, k.song)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// FailN returns a hook failing op with err for its first n calls.
func FailN(op string, n int, err error) Hook {
	var mu sync.Mutex
	left := n
	return func(ctx context.Context, o string) error {
		if o != op {
			return nil
		}
		mu.Lock()
		defer mu.Unlock()
		if left > 0 {
			left--
			return err
		}
		return nil
	}
}
