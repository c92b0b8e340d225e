package notify

import (
	"context"
	"log/slog"
)

// Sink delivers a notification to a destination, what a destination means
// (a channel, an email address) is up to the implementation.
type Sink interface {
	Publish(ctx context.Context, destination, message string) error
}

// LogSink only logs the notification, it is used for dry runs.
type LogSink struct{}

func (LogSink) Publish(ctx context.Context, destination, message string) error {
	slog.InfoContext(ctx, "notification (not sent)", "destination", destination, "message", message)
	return nil
}
