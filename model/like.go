package model

import "time"

// LikeRecord is the (user, song) relation. Its existence is what "liked" means.
type LikeRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;size:64;not null;uniqueIndex:idx_user_song" json:"userId"`
	SongID    int64     `gorm:"column:song_id;not null;uniqueIndex:idx_user_song;index" json:"songId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (LikeRecord) TableName() string {
	return "user_liked_songs"
}

// LikeResult is what a toggle reports back to the caller.
type LikeResult struct {
	SongID     int64 `json:"songId"`
	Liked      bool  `json:"liked"`
	LikesCount int64 `json:"likesCount"`
}
