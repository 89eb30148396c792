package notify

import (
	"context"

	"github.com/go-redis/redis/v8"

	commonredis "github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/common/redis"
)

// StreamSink appends notifications to a Redis stream for downstream consumers.
type StreamSink struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamSink(client *redis.Client, stream string, maxLen int64) *StreamSink {
	return &StreamSink{client: client, stream: stream, maxLen: maxLen}
}

func (s *StreamSink) Name() string { return "redis_stream" }

func (s *StreamSink) Send(ctx context.Context, n Notification) error {
	_, err := commonredis.PublishJSONToStream(ctx, s.client, s.stream, s.maxLen, n)
	return err
}
