package events

import (
	"context"

	"github.com/go-redis/redis/v8"

	rediscommon "github.com/TalApelfeld/AI-Smart-Crosswalk/common/redis"
)

// StreamPublisher appends events to a Redis stream for downstream consumers.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: client, stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, e Event) error {
	_, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, e.Type, p.maxLen, e)
	return err
}
