package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"deadsongs/model"
)

const catalogKey = "catalog:%s"

// CatalogCache keeps the last successfully loaded catalog per sort key so a
// restarted server can answer before the database responds.
type CatalogCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCatalogCache(client *redis.Client, ttl time.Duration) *CatalogCache {
	return &CatalogCache{client: client, ttl: ttl}
}

// SaveCatalog stores songs under key.
func (c *CatalogCache) SaveCatalog(ctx context.Context, key model.SortKey, songs []model.Song) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	data, err := json.Marshal(songs)
	if err != nil {
		return fmt.Errorf("failed to marshal catalog: %w", err)
	}
	return c.client.Set(ctx, fmt.Sprintf(catalogKey, key), data, c.ttl).Err()
}

// LoadCatalog returns nil, nil on a miss.
func (c *CatalogCache) LoadCatalog(ctx context.Context, key model.SortKey) ([]model.Song, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := c.client.Get(ctx, fmt.Sprintf(catalogKey, key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var songs []model.Song
	if err := json.Unmarshal(data, &songs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog: %w", err)
	}
	return songs, nil
}
