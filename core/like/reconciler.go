// Package like keeps a user's likes in step with the remote relation and
// the per-song like counter.
//
// A toggle is applied to local state first and rolled back on failure. On
// the remote side the relation row is written first and the counter moved
// second; when the counter cannot be moved the relation change is undone,
// so the two never disagree for longer than one toggle.
//
// A timed out write may still have committed. After such a failure the
// relation write counts a duplicate as its own and the counter is settled
// with a recount instead of a second delta.
package like

import (
	"context"
	"sort"
	"sync"

	"deadsongs/core/apperr"
	"deadsongs/core/retry"
	"deadsongs/logger"
	"deadsongs/model"
	"deadsongs/repository"
)

// LocalCounter is the in-memory copy of each song's like count.
type LocalCounter interface {
	AdjustLikes(songID int64, delta int64) (int64, bool)
	Song(id int64) (model.Song, bool)
}

// Mirror caches confirmed liked sets.
type Mirror interface {
	SetLiked(ctx context.Context, userID string, songID int64, liked bool) error
	ReplaceLiked(ctx context.Context, userID string, songIDs []int64) error
	Liked(ctx context.Context, userID string) ([]int64, bool, error)
}

type key struct {
	user string
	song int64
}

type Reconciler struct {
	likes   repository.LikeRepository
	songs   repository.SongRepository
	counter LocalCounter
	mirror  Mirror

	policy        retry.Policy
	counterPolicy retry.Policy

	mu      sync.Mutex
	liked   map[string]map[int64]struct{}
	pending map[key]struct{}
}

type Option func(*Reconciler)

func WithMirror(m Mirror) Option {
	return func(r *Reconciler) { r.mirror = m }
}

// WithRetryPolicies sets the policy for relation calls and the usually
// more patient one for the counter update.
func WithRetryPolicies(relation, counter retry.Policy) Option {
	return func(r *Reconciler) {
		r.policy = relation
		r.counterPolicy = counter
	}
}

func NewReconciler(likes repository.LikeRepository, songs repository.SongRepository, counter LocalCounter, opts ...Option) *Reconciler {
	r := &Reconciler{
		likes:         likes,
		songs:         songs,
		counter:       counter,
		policy:        retry.DefaultPolicy(),
		counterPolicy: retry.DefaultPolicy().WithAttempts(5),
		liked:         map[string]map[int64]struct{}{},
		pending:       map[key]struct{}{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ToggleLike flips userID's like on songID and moves the song's counter by
// exactly one. Toggles of the same pair are serialized: a second toggle
// while one is outstanding fails with RaceConditionConflict.
func (r *Reconciler) ToggleLike(ctx context.Context, songID int64, userID string) (model.LikeResult, error) {
	if userID == "" {
		return r.current(userID, songID), apperr.New(apperr.AuthRequired, "Please log in to like songs.")
	}
	if songID <= 0 {
		return model.LikeResult{SongID: songID}, apperr.New(apperr.ValidationError, "No song selected.")
	}

	k := key{userID, songID}
	if !r.acquire(k) {
		return r.current(userID, songID), apperr.New(apperr.RaceConditionConflict, "A like change for this song is already in progress.")
	}
	defer r.release(k)

	wasLiked, err := retry.Value(ctx, r.policy, "like.exists", func(ctx context.Context) (bool, error) {
		return r.likes.Exists(ctx, userID, songID)
	})
	if err != nil {
		return r.current(userID, songID), err
	}

	nowLiked := !wasLiked
	delta := int64(1)
	if wasLiked {
		delta = -1
	}

	// Optimistic local apply.
	r.setLocal(userID, songID, nowLiked)
	r.adjustLocal(songID, delta)

	uncertain, err := r.mutateRelation(ctx, userID, songID, nowLiked)
	if err != nil {
		count := r.adjustLocal(songID, -delta)
		if apperr.Is(err, apperr.RaceConditionConflict) {
			// Another session already moved the relation to the target state.
			r.setLocal(userID, songID, nowLiked)
			r.mirrorOne(ctx, userID, songID, nowLiked)
			return model.LikeResult{SongID: songID, Liked: nowLiked, LikesCount: count}, err
		}
		r.setLocal(userID, songID, wasLiked)
		return model.LikeResult{SongID: songID, Liked: wasLiked, LikesCount: count}, err
	}

	settled, recounted, err := r.moveCounter(ctx, songID, delta, uncertain)
	if err != nil {
		return r.compensate(ctx, userID, songID, wasLiked, delta, recounted, err)
	}
	if recounted {
		r.syncLocal(songID, settled)
	}

	r.mirrorOne(ctx, userID, songID, nowLiked)
	count := r.localCount(ctx, songID)
	logger.Debug("Like toggled",
		logger.String("user_id", userID),
		logger.Int64("song_id", songID),
		logger.Bool("liked", nowLiked),
		logger.Int64("likes_count", count))
	return model.LikeResult{SongID: songID, Liked: nowLiked, LikesCount: count}, nil
}

// mutateRelation writes the relation row. uncertain reports that an
// attempt failed after the request may have reached the store; a conflict
// on a later attempt is then taken as that attempt having committed.
func (r *Reconciler) mutateRelation(ctx context.Context, userID string, songID int64, like bool) (uncertain bool, err error) {
	op, write := "like.delete", r.likes.Delete
	if like {
		op, write = "like.insert", r.likes.Insert
	}
	err = retry.Do(ctx, r.policy, op, func(ctx context.Context) error {
		err := write(ctx, userID, songID)
		if uncertain && apperr.Is(err, apperr.RaceConditionConflict) {
			return nil
		}
		if apperr.Retryable(err) {
			uncertain = true
		}
		return err
	})
	return uncertain, err
}

// moveCounter applies delta to the remote counter. Once the outcome of a
// write is unknown, either the relation's or the counter's own, it switches
// to recounting the song from the relation table, which is safe to repeat.
// On success with recount set, count is the stored value.
func (r *Reconciler) moveCounter(ctx context.Context, songID, delta int64, uncertain bool) (count int64, recount bool, err error) {
	recount = uncertain
	err = retry.Do(ctx, r.counterPolicy, "like.counter", func(ctx context.Context) error {
		if recount {
			n, err := r.songs.RecountSongLikes(ctx, songID)
			count = n
			return err
		}
		err := r.songs.AdjustLikes(ctx, songID, delta)
		if apperr.Retryable(err) {
			recount = true
		}
		return err
	})
	return count, recount, err
}

// compensate undoes the relation change after the counter update failed.
// When a counter write may have landed, the count is settled by a recount
// once the relation is back.
func (r *Reconciler) compensate(ctx context.Context, userID string, songID int64, wasLiked bool, delta int64, counterUncertain bool, cause error) (model.LikeResult, error) {
	count := r.adjustLocal(songID, -delta)

	// The caller may be gone; the undo must still run.
	undoCtx := context.WithoutCancel(ctx)
	_, err := r.mutateRelation(undoCtx, userID, songID, wasLiked)
	undone := err == nil || apperr.Is(err, apperr.RaceConditionConflict)
	if undone && counterUncertain {
		if n, rerr := r.songs.RecountSongLikes(undoCtx, songID); rerr == nil {
			count = r.syncLocal(songID, n)
		} else {
			logger.Warn("Failed to recount likes after undo", logger.Int64("song_id", songID), logger.ErrorField(rerr))
		}
	}
	if !undone {
		logger.Error("Like relation and counter diverged",
			logger.String("user_id", userID),
			logger.Int64("song_id", songID),
			logger.ErrorField(cause),
			logger.String("undo_error", err.Error()))
		r.setLocal(userID, songID, !wasLiked)
		return model.LikeResult{SongID: songID, Liked: !wasLiked, LikesCount: count},
			apperr.Wrap(cause, apperr.RemoteUnavailable, "Your like was saved but the count could not be updated.")
	}

	r.setLocal(userID, songID, wasLiked)
	return model.LikeResult{SongID: songID, Liked: wasLiked, LikesCount: count},
		apperr.Wrap(cause, apperr.RemoteUnavailable, "Could not update the like. Please try again.")
}

// LoadLiked replaces the local liked set for userID with the remote
// relation. When the store is unreachable a cached set is used if present.
func (r *Reconciler) LoadLiked(ctx context.Context, userID string) ([]int64, error) {
	if userID == "" {
		return nil, apperr.New(apperr.AuthRequired, "Please log in to see liked songs.")
	}

	ids, err := retry.Value(ctx, r.policy, "like.list", func(ctx context.Context) ([]int64, error) {
		return r.likes.ListSongIDs(ctx, userID)
	})
	if err != nil {
		if cached, ok := r.cached(ctx, userID); ok {
			logger.Warn("Serving cached liked songs", logger.String("user_id", userID), logger.ErrorField(err))
			r.replaceLocal(userID, cached)
			return cached, nil
		}
		return nil, err
	}

	r.replaceLocal(userID, ids)
	if r.mirror != nil {
		if err := r.mirror.ReplaceLiked(ctx, userID, ids); err != nil {
			logger.Warn("Failed to cache liked songs", logger.ErrorField(err))
		}
	}
	return ids, nil
}

// IsLiked reports the local view.
func (r *Reconciler) IsLiked(userID string, songID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.liked[userID][songID]
	return ok
}

// Liked returns the user's locally known liked songs in id order.
func (r *Reconciler) Liked(userID string) []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0, len(r.liked[userID]))
	for id := range r.liked[userID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Pending reports whether a toggle for the pair is in flight.
func (r *Reconciler) Pending(userID string, songID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[key{userID, songID}]
	return ok
}

func (r *Reconciler) acquire(k key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.pending[k]; busy {
		return false
	}
	r.pending[k] = struct{}{}
	return true
}

func (r *Reconciler) release(k key) {
	r.mu.Lock()
	delete(r.pending, k)
	r.mu.Unlock()
}

func (r *Reconciler) setLocal(userID string, songID int64, liked bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.liked[userID]
	if set == nil {
		set = map[int64]struct{}{}
		r.liked[userID] = set
	}
	if liked {
		set[songID] = struct{}{}
	} else {
		delete(set, songID)
	}
}

func (r *Reconciler) replaceLocal(userID string, ids []int64) {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	r.mu.Lock()
	r.liked[userID] = set
	r.mu.Unlock()
}

func (r *Reconciler) adjustLocal(songID, delta int64) int64 {
	if r.counter == nil {
		return 0
	}
	n, _ := r.counter.AdjustLikes(songID, delta)
	return n
}

// syncLocal sets the local counter to n and returns the local value.
func (r *Reconciler) syncLocal(songID, n int64) int64 {
	if r.counter == nil {
		return n
	}
	song, ok := r.counter.Song(songID)
	if !ok {
		return n
	}
	got, _ := r.counter.AdjustLikes(songID, n-song.LikesCount)
	return got
}

// current describes the local view without touching the store.
func (r *Reconciler) current(userID string, songID int64) model.LikeResult {
	res := model.LikeResult{SongID: songID}
	if userID != "" {
		res.Liked = r.IsLiked(userID, songID)
	}
	if r.counter != nil {
		if song, ok := r.counter.Song(songID); ok {
			res.LikesCount = song.LikesCount
		}
	}
	return res
}

// localCount reads the counter after a confirmed toggle, falling back to
// the store for songs outside the loaded catalog.
func (r *Reconciler) localCount(ctx context.Context, songID int64) int64 {
	if r.counter != nil {
		if song, ok := r.counter.Song(songID); ok {
			return song.LikesCount
		}
	}
	song, err := r.songs.GetSongByID(ctx, songID)
	if err != nil || song == nil {
		return 0
	}
	return song.LikesCount
}

func (r *Reconciler) mirrorOne(ctx context.Context, userID string, songID int64, liked bool) {
	if r.mirror == nil {
		return
	}
	if err := r.mirror.SetLiked(ctx, userID, songID, liked); err != nil {
		logger.Warn("Failed to mirror like", logger.String("user_id", userID), logger.ErrorField(err))
	}
}

func (r *Reconciler) cached(ctx context.Context, userID string) ([]int64, bool) {
	if r.mirror == nil {
		return nil, false
	}
	ids, ok, err := r.mirror.Liked(ctx, userID)
	if err != nil || !ok {
		return nil, false
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, true
}
