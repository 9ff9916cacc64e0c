package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"deadsongs/core/apperr"
	"deadsongs/model"
)

// SongRepository is the remote view of the songs table.
type SongRepository interface {
	ListSongs(ctx context.Context, key model.SortKey) ([]model.Song, error)
	GetSongByID(ctx context.Context, id int64) (*model.Song, error)
	SearchSongsByTitle(ctx context.Context, term string) ([]model.Song, error)
	// AdjustLikes applies delta to likes_count server side, never below zero.
	AdjustLikes(ctx context.Context, songID int64, delta int64) error
	// RecordPlay increments play_count by one.
	RecordPlay(ctx context.Context, songID int64) error
	// RecountLikes rebuilds every likes_count from the relation table and
	// returns the number of songs whose count changed.
	RecountLikes(ctx context.Context) (int64, error)
	// RecountSongLikes sets one song's likes_count from the relation table
	// and returns the new value. Unlike AdjustLikes it is safe to repeat.
	RecountSongLikes(ctx context.Context, songID int64) (int64, error)
}

type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository creates the gorm-backed song repository.
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

// ListSongs returns every song ordered by key descending, ties by id.
func (r *gormSongRepository) ListSongs(ctx context.Context, key model.SortKey) ([]model.Song, error) {
	if !key.Valid() {
		return nil, apperr.New(apperr.ValidationError, "Unknown sort order.")
	}
	var songs []model.Song
	err := r.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: string(key)}, Desc: true}).
		Order("id ASC").
		Find(&songs).Error
	if err != nil {
		return nil, classify(err, "Failed to load songs.")
	}
	return songs, nil
}

// GetSongByID returns nil, nil when the song does not exist.
func (r *gormSongRepository) GetSongByID(ctx context.Context, id int64) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, classify(err, "Failed to load song.")
	}
	return &song, nil
}

func (r *gormSongRepository) SearchSongsByTitle(ctx context.Context, term string) ([]model.Song, error) {
	var songs []model.Song
	err := r.db.WithContext(ctx).
		Where("LOWER(title) LIKE ?", likePattern(term)).
		Order("id ASC").
		Find(&songs).Error
	if err != nil {
		return nil, classify(err, "Failed to search songs.")
	}
	return songs, nil
}

func (r *gormSongRepository) AdjustLikes(ctx context.Context, songID int64, delta int64) error {
	res := r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ?", songID).
		UpdateColumn("likes_count", gorm.Expr("GREATEST(likes_count + ?, 0)", delta))
	if res.Error != nil {
		return classify(res.Error, "Failed to update like count.")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.ValidationError, "Song not found.")
	}
	return nil
}

func (r *gormSongRepository) RecordPlay(ctx context.Context, songID int64) error {
	res := r.db.WithContext(ctx).Model(&model.Song{}).
		Where("id = ?", songID).
		UpdateColumn("play_count", gorm.Expr("play_count + ?", 1))
	if res.Error != nil {
		return classify(res.Error, "Failed to record play.")
	}
	return nil
}

func (r *gormSongRepository) RecountLikes(ctx context.Context) (int64, error) {
	sub := r.db.Model(&model.LikeRecord{}).
		Select("COUNT(*)").
		Where("user_liked_songs.song_id = songs.id")
	res := r.db.WithContext(ctx).Model(&model.Song{}).
		Where("likes_count <> (?)", sub).
		UpdateColumn("likes_count", gorm.Expr("(?)", sub))
	if res.Error != nil {
		return 0, classify(res.Error, "Failed to recount likes.")
	}
	return res.RowsAffected, nil
}

func (r *gormSongRepository) RecountSongLikes(ctx context.Context, songID int64) (int64, error) {
	db := r.db.WithContext(ctx)
	sub := r.db.Model(&model.LikeRecord{}).Select("COUNT(*)").Where("song_id = ?", songID)
	res := db.Model(&model.Song{}).
		Where("id = ?", songID).
		UpdateColumn("likes_count", gorm.Expr("(?)", sub))
	if res.Error != nil {
		return 0, classify(res.Error, "Failed to recount likes.")
	}
	var count int64
	if err := db.Model(&model.LikeRecord{}).Where("song_id = ?", songID).Count(&count).Error; err != nil {
		return 0, classify(err, "Failed to recount likes.")
	}
	return count, nil
}
