package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const likedSongsKey = "user:%s:liked" // Set of song ids

// LikeCache mirrors each user's confirmed liked set.
type LikeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLikeCache(client *redis.Client, ttl time.Duration) *LikeCache {
	return &LikeCache{client: client, ttl: ttl}
}

// ReplaceLiked overwrites the user's set.
func (c *LikeCache) ReplaceLiked(ctx context.Context, userID string, songIDs []int64) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	key := fmt.Sprintf(likedSongsKey, userID)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(songIDs) > 0 {
		members := make([]interface{}, len(songIDs))
		for i, id := range songIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, key, members...)
		pipe.Expire(ctx, key, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// SetLiked adds or removes one song.
func (c *LikeCache) SetLiked(ctx context.Context, userID string, songID int64, liked bool) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	key := fmt.Sprintf(likedSongsKey, userID)

	pipe := c.client.Pipeline()
	if liked {
		pipe.SAdd(ctx, key, songID)
	} else {
		pipe.SRem(ctx, key, songID)
	}
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Liked returns the cached set and whether the user has an entry at all.
func (c *LikeCache) Liked(ctx context.Context, userID string) ([]int64, bool, error) {
	if c.client == nil {
		return nil, false, fmt.Errorf("Redis client not initialized")
	}
	key := fmt.Sprintf(likedSongsKey, userID)

	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		return nil, false, nil
	}
	members, err := c.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, false, err
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, true, nil
}
