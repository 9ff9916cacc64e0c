package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadsongs/model"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestCheckRedis(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.NoError(t, CheckRedis(context.Background(), client))
	assert.Error(t, CheckRedis(context.Background(), nil))
}

func TestCatalogCacheRoundTrip(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewCatalogCache(client, time.Minute)
	ctx := context.Background()

	songs, err := c.LoadCatalog(ctx, model.SortByPlayCount)
	require.NoError(t, err)
	assert.Nil(t, songs, "miss returns nil")

	want := []model.Song{{ID: 1, Title: "A", PlayCount: 10}, {ID: 2, Title: "B", PlayCount: 5}}
	require.NoError(t, c.SaveCatalog(ctx, model.SortByPlayCount, want))

	got, err := c.LoadCatalog(ctx, model.SortByPlayCount)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Title)

	other, err := c.LoadCatalog(ctx, model.SortByLikesCount)
	require.NoError(t, err)
	assert.Nil(t, other, "snapshots are per sort key")

	mr.FastForward(2 * time.Minute)
	expired, err := c.LoadCatalog(ctx, model.SortByPlayCount)
	require.NoError(t, err)
	assert.Nil(t, expired)
}

func TestLikeCache(t *testing.T) {
	client, _ := setupTestRedis(t)
	c := NewLikeCache(client, time.Hour)
	ctx := context.Background()

	_, found, err := c.Liked(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.ReplaceLiked(ctx, "u1", []int64{3, 5}))
	require.NoError(t, c.SetLiked(ctx, "u1", 7, true))
	require.NoError(t, c.SetLiked(ctx, "u1", 3, false))

	ids, found, err := c.Liked(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.ElementsMatch(t, []int64{5, 7}, ids)

	require.NoError(t, c.ReplaceLiked(ctx, "u1", nil))
	_, found, err = c.Liked(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found, "an empty set is not stored")
}

func TestPlaybackCache(t *testing.T) {
	client, mr := setupTestRedis(t)
	c := NewPlaybackCache(client, time.Hour)
	ctx := context.Background()

	state := model.PlaybackState{
		Transport: model.Paused,
		Track:     &model.TrackPosition{SongID: 9, Position: 42.5, Duration: 180, DurationKnown: true},
		Volume:    0.3,
	}
	require.NoError(t, c.SaveState(ctx, "s1", state))
	assert.True(t, mr.Exists("player:s1:state"))

	got, err := c.LoadState(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, state, *got)

	// Resetting keeps the volume and drops the track fields.
	require.NoError(t, c.SaveState(ctx, "s1", model.PlaybackState{Transport: model.Idle, Volume: 0.3}))
	got, err = c.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, model.Idle, got.Transport)
	assert.Nil(t, got.Track)
	assert.InDelta(t, 0.3, got.Volume, 1e-9)
	assert.False(t, mr.Exists("player:s1:state") && mr.HGet("player:s1:state", "song_id") != "")

	require.NoError(t, c.DeleteState(ctx, "s1"))
	got, err = c.LoadState(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, got)
}
