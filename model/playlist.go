package model

import "time"

// Playlist is a named, user-owned collection. Only name search and owner
// listing are served here.
type Playlist struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:255;not null;index" json:"name"`
	ImageURL  string    `gorm:"column:image_url;size:1024" json:"imageUrl,omitempty"`
	OwnerID   string    `gorm:"column:user_id;size:64;not null;index" json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Playlist) TableName() string {
	return "playlist"
}

// SearchResult holds the two independent halves of a search.
type SearchResult struct {
	Tracks    []Song     `json:"tracks"`
	Playlists []Playlist `json:"playlists"`
}

// EmptySearchResult has non-nil empty slices so it encodes as [] rather than null.
func EmptySearchResult() SearchResult {
	return SearchResult{Tracks: []Song{}, Playlists: []Playlist{}}
}
