package repository

import (
	"context"

	"gorm.io/gorm"

	"deadsongs/core/apperr"
	"deadsongs/model"
)

// LikeRepository manages the user_liked_songs relation.
type LikeRepository interface {
	Exists(ctx context.Context, userID string, songID int64) (bool, error)
	// Insert fails with RaceConditionConflict when the pair already exists.
	Insert(ctx context.Context, userID string, songID int64) error
	// Delete fails with RaceConditionConflict when the pair is already gone.
	Delete(ctx context.Context, userID string, songID int64) error
	ListSongIDs(ctx context.Context, userID string) ([]int64, error)
}

type gormLikeRepository struct {
	db *gorm.DB
}

func NewGormLikeRepository(db *gorm.DB) LikeRepository {
	return &gormLikeRepository{db: db}
}

func (r *gormLikeRepository) Exists(ctx context.Context, userID string, songID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.LikeRecord{}).
		Where("user_id = ? AND song_id = ?", userID, songID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, classify(err, "Failed to check like status.")
	}
	return count > 0, nil
}

func (r *gormLikeRepository) Insert(ctx context.Context, userID string, songID int64) error {
	rec := &model.LikeRecord{UserID: userID, SongID: songID}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return classify(err, "Failed to save like.")
	}
	return nil
}

func (r *gormLikeRepository) Delete(ctx context.Context, userID string, songID int64) error {
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND song_id = ?", userID, songID).
		Delete(&model.LikeRecord{})
	if res.Error != nil {
		return classify(res.Error, "Failed to remove like.")
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.RaceConditionConflict, "The like was already removed.")
	}
	return nil
}

func (r *gormLikeRepository) ListSongIDs(ctx context.Context, userID string) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.LikeRecord{}).
		Where("user_id = ?", userID).
		Order("song_id ASC").
		Pluck("song_id", &ids).Error
	if err != nil {
		return nil, classify(err, "Failed to load liked songs.")
	}
	return ids, nil
}
