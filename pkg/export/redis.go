package export

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/cmc-listing-scraper/pkg/normalize"
)

// DefaultChannel is the pub/sub channel snapshots are published on.
const DefaultChannel = "cmc:listing"

// Snapshot is the message published after a run.
type Snapshot struct {
	ScrapedAt time.Time       `json:"scraped_at"`
	Mode      string          `json:"mode"`
	Pages     int             `json:"pages"`
	Failed    int             `json:"failed_pages"`
	Rows      []normalize.Row `json:"rows"`
}

// RedisPublisher publishes snapshots on a Redis channel. Nothing is stored;
// subscribers that are not connected miss the message.
type RedisPublisher struct {
	redis   *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisPublisher creates a publisher for channel (DefaultChannel if empty).
func NewRedisPublisher(redisClient *redis.Client, channel string) *RedisPublisher {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{
		redis:   redisClient,
		channel: channel,
		logger:  log.With().Str("component", "export").Logger(),
	}
}

// Channel returns the channel snapshots are published on.
func (p *RedisPublisher) Channel() string {
	return p.channel
}

// Publish encodes snap as JSON and publishes it. It returns the number of
// subscribers that received the message.
func (p *RedisPublisher) Publish(ctx context.Context, snap Snapshot) (int64, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("marshal snapshot: %w", err)
	}

	receivers, err := p.redis.Publish(ctx, p.channel, data).Result()
	if err != nil {
		return 0, fmt.Errorf("redis publish: %w", err)
	}

	p.logger.Info().
		Str("channel", p.channel).
		Int("rows", len(snap.Rows)).
		Int64("receivers", receivers).
		Msg("Published snapshot")

	return receivers, nil
}
