package repository

import (
	"context"

	"gorm.io/gorm"

	"deadsongs/model"
)

// PlaylistRepository serves playlist listing and name search.
type PlaylistRepository interface {
	ListPlaylists(ctx context.Context) ([]model.Playlist, error)
	ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error)
	SearchPlaylistsByName(ctx context.Context, term string) ([]model.Playlist, error)
}

type gormPlaylistRepository struct {
	db *gorm.DB
}

func NewGormPlaylistRepository(db *gorm.DB) PlaylistRepository {
	return &gormPlaylistRepository{db: db}
}

func (r *gormPlaylistRepository) ListPlaylists(ctx context.Context) ([]model.Playlist, error) {
	var playlists []model.Playlist
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&playlists).Error; err != nil {
		return nil, classify(err, "Error fetching playlists.")
	}
	return playlists, nil
}

func (r *gormPlaylistRepository) ListPlaylistsByOwner(ctx context.Context, ownerID string) ([]model.Playlist, error) {
	var playlists []model.Playlist
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("id ASC").
		Find(&playlists).Error
	if err != nil {
		return nil, classify(err, "Error fetching playlists.")
	}
	return playlists, nil
}

func (r *gormPlaylistRepository) SearchPlaylistsByName(ctx context.Context, term string) ([]model.Playlist, error) {
	var playlists []model.Playlist
	err := r.db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", likePattern(term)).
		Order("id ASC").
		Find(&playlists).Error
	if err != nil {
		return nil, classify(err, "Failed to search playlists.")
	}
	return playlists, nil
}
