package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RedisSink publishes notifications on a redis pub/sub channel.
type RedisSink struct {
	client redis.UniversalClient
}

func NewRedisSink(client redis.UniversalClient) RedisSink {
	return RedisSink{client: client}
}

func (s RedisSink) Publish(ctx context.Context, channel, message string) error {
	ctx, span := tracer.Start(ctx, "RedisSink.Publish")
	defer span.End()
	span.SetAttributes(attribute.String("channel", channel))

	receivers, err := s.client.Publish(ctx, channel, message).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to publish")
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	slog.InfoContext(ctx, "published notification", "channel", channel, "receivers", receivers)
	return nil
}
