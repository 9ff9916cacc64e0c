package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"deadsongs/model"
)

const playbackKey = "player:%s:state" // Hash

// PlaybackCache persists a player session's state so a reconnecting client
// can restore its volume and last song.
type PlaybackCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPlaybackCache(client *redis.Client, ttl time.Duration) *PlaybackCache {
	return &PlaybackCache{client: client, ttl: ttl}
}

// SaveState writes state. Track fields are removed when the state is Idle.
func (c *PlaybackCache) SaveState(ctx context.Context, sessionID string, state model.PlaybackState) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	key := fmt.Sprintf(playbackKey, sessionID)

	fields := map[string]interface{}{
		"transport":  state.Transport.String(),
		"volume":     strconv.FormatFloat(state.Volume, 'f', -1, 64),
		"updated_at": time.Now().UnixMilli(),
	}

	pipe := c.client.Pipeline()
	if state.Track != nil {
		fields["song_id"] = state.Track.SongID
		fields["position"] = strconv.FormatFloat(state.Track.Position, 'f', -1, 64)
		fields["duration"] = strconv.FormatFloat(state.Track.Duration, 'f', -1, 64)
		fields["duration_known"] = strconv.FormatBool(state.Track.DurationKnown)
	} else {
		pipe.HDel(ctx, key, "song_id", "position", "duration", "duration_known")
	}
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, c.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// LoadState returns nil, nil when the session has no saved state.
func (c *PlaybackCache) LoadState(ctx context.Context, sessionID string) (*model.PlaybackState, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}
	data, err := c.client.HGetAll(ctx, fmt.Sprintf(playbackKey, sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	transport, err := model.ParseTransport(data["transport"])
	if err != nil {
		return nil, err
	}
	state := &model.PlaybackState{Transport: transport, Volume: model.DefaultVolume}
	if v, err := strconv.ParseFloat(data["volume"], 64); err == nil {
		state.Volume = v
	}
	if transport == model.Idle {
		return state, nil
	}

	track := &model.TrackPosition{}
	track.SongID, _ = strconv.ParseInt(data["song_id"], 10, 64)
	track.Position, _ = strconv.ParseFloat(data["position"], 64)
	track.Duration, _ = strconv.ParseFloat(data["duration"], 64)
	track.DurationKnown, _ = strconv.ParseBool(data["duration_known"])
	state.Track = track
	return state, nil
}

// DeleteState removes the session's entry.
func (c *PlaybackCache) DeleteState(ctx context.Context, sessionID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	return c.client.Del(ctx, fmt.Sprintf(playbackKey, sessionID)).Err()
}
