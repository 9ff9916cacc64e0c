// Package queue derives next and previous songs from an ordering.
package queue

import "deadsongs/model"

// Ordering is anything with a current song order, such as the catalog.
type Ordering interface {
	Songs() []model.Song
}

// Snapshot is an ordering frozen at the time it was taken.
type Snapshot []model.Song

// NewSnapshot copies the current order of o.
func NewSnapshot(o Ordering) Snapshot {
	if o == nil {
		return nil
	}
	src := o.Songs()
	s := make(Snapshot, len(src))
	copy(s, src)
	return s
}

func (s Snapshot) Songs() []model.Song {
	return s
}

// Live reads the ordering at call time.
type Live struct {
	Source Ordering
}

func (l Live) Songs() []model.Song {
	if l.Source == nil {
		return nil
	}
	return l.Source.Songs()
}

// Next returns the song after currentID. There is no wrap-around; the last
// song and an unknown id both yield false.
func Next(o Ordering, currentID int64) (model.Song, bool) {
	return step(o, currentID, 1)
}

// Previous returns the song before currentID, without wrap-around.
func Previous(o Ordering, currentID int64) (model.Song, bool) {
	return step(o, currentID, -1)
}

func step(o Ordering, currentID int64, dir int) (model.Song, bool) {
	if o == nil {
		return model.Song{}, false
	}
	songs := o.Songs()
	for i, s := range songs {
		if s.ID != currentID {
			continue
		}
		j := i + dir
		if j < 0 || j >= len(songs) {
			return model.Song{}, false
		}
		return songs[j], true
	}
	return model.Song{}, false
}
