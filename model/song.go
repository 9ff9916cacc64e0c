package model

import (
	"fmt"
	"time"
)

// Song is a playable track in the catalog.
type Song struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title      string    `gorm:"size:255;not null;index" json:"title"`
	Artist     string    `gorm:"size:255" json:"artist"`
	FileURL    string    `gorm:"column:file_url;size:1024;not null" json:"fileUrl"`
	ImageURL   string    `gorm:"column:image_url;size:1024" json:"imageUrl,omitempty"`
	LikesCount int64     `gorm:"column:likes_count;not null;default:0;index" json:"likesCount"`
	PlayCount  int64     `gorm:"column:play_count;not null;default:0;index" json:"playCount"`
	Genre      string    `gorm:"size:64;index" json:"genre,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (Song) TableName() string {
	return "songs"
}

// SortKey selects the catalog ordering. Orderings are always descending.
type SortKey string

const (
	SortByPlayCount  SortKey = "play_count"
	SortByLikesCount SortKey = "likes_count"
)

// ParseSortKey accepts the column names and the camelCase names used by clients.
func ParseSortKey(s string) (SortKey, error) {
	switch s {
	case "play_count", "playCount", "":
		return SortByPlayCount, nil
	case "likes_count", "likesCount":
		return SortByLikesCount, nil
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// Valid reports whether k names a supported ordering.
func (k SortKey) Valid() bool {
	return k == SortByPlayCount || k == SortByLikesCount
}

// Value returns the sort key's value for s.
func (k SortKey) Value(s Song) int64 {
	if k == SortByLikesCount {
		return s.LikesCount
	}
	return s.PlayCount
}
