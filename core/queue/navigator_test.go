package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"deadsongs/model"
)

type mutableOrdering struct {
	songs []model.Song
}

func (m *mutableOrdering) Songs() []model.Song {
	return m.songs
}

func songs(ids ...int64) []model.Song {
	out := make([]model.Song, len(ids))
	for i, id := range ids {
		out[i] = model.Song{ID: id}
	}
	return out
}

func TestNextPrevious(t *testing.T) {
	o := Snapshot(songs(1, 2, 3))

	next, ok := Next(o, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), next.ID)

	prev, ok := Previous(o, 3)
	assert.True(t, ok)
	assert.Equal(t, int64(2), prev.ID)
}

func TestNoWrap(t *testing.T) {
	o := Snapshot(songs(1, 2, 3))

	_, ok := Next(o, 3)
	assert.False(t, ok, "last song has no next")

	_, ok = Previous(o, 1)
	assert.False(t, ok, "first song has no previous")
}

func TestUnknownCurrent(t *testing.T) {
	o := Snapshot(songs(1, 2))

	_, ok := Next(o, 9)
	assert.False(t, ok)
	_, ok = Previous(o, 9)
	assert.False(t, ok)
	_, ok = Next(nil, 1)
	assert.False(t, ok)
	_, ok = Next(Snapshot(nil), 1)
	assert.False(t, ok)
}

func TestSnapshotIsFrozenLiveIsNot(t *testing.T) {
	src := &mutableOrdering{songs: songs(1, 2, 3)}
	snap := NewSnapshot(src)
	live := Live{Source: src}

	// Re-sort the source after the snapshot is taken.
	src.songs = songs(3, 1, 2)

	next, ok := Next(snap, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(2), next.ID)

	_, ok = Previous(snap, 1)
	assert.False(t, ok)

	prev, ok := Previous(live, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(3), prev.ID)
}

// Catalog A(playCount 10), B(playCount 5): playing A, next yields B; from
// B there is no next.
func TestPlayCountScenario(t *testing.T) {
	o := Snapshot([]model.Song{{ID: 1, Title: "A", PlayCount: 10}, {ID: 2, Title: "B", PlayCount: 5}})

	next, ok := Next(o, 1)
	assert.True(t, ok)
	assert.Equal(t, "B", next.Title)

	_, ok = Next(o, 2)
	assert.False(t, ok)
}
