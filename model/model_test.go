package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSortKey(t *testing.T) {
	k, err := ParseSortKey("likesCount")
	require.NoError(t, err)
	assert.Equal(t, SortByLikesCount, k)

	k, err = ParseSortKey("")
	require.NoError(t, err)
	assert.Equal(t, SortByPlayCount, k, "play count is the default ordering")

	_, err = ParseSortKey("title")
	assert.Error(t, err)
	assert.False(t, SortKey("title").Valid())
}

func TestSortKeyValue(t *testing.T) {
	s := Song{PlayCount: 10, LikesCount: 2}
	assert.Equal(t, int64(10), SortByPlayCount.Value(s))
	assert.Equal(t, int64(2), SortByLikesCount.Value(s))
}

func TestPlaybackStateJSON(t *testing.T) {
	st := PlaybackState{Transport: Paused, Track: &TrackPosition{SongID: 4, Position: 12, Duration: 200, DurationKnown: true}, Volume: 0.5}

	b, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"transport":"paused"`)

	idle, err := json.Marshal(NewPlaybackState())
	require.NoError(t, err)
	assert.NotContains(t, string(idle), "track")
}

func TestCloneDetachesTrack(t *testing.T) {
	st := PlaybackState{Transport: Playing, Track: &TrackPosition{SongID: 1}}
	c := st.Clone()
	c.Track.Position = 30

	assert.Zero(t, st.Track.Position)
	id, ok := c.CurrentSongID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
}
