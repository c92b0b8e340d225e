package delta

import (
	"context"
	"fmt"
	"log/slog"

	"perspectives-watch/internal/schedule"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("perspectives/delta")

// Lookup answers which class names are already recorded for a session.
type Lookup interface {
	Names(ctx context.Context, session string) ([]string, error)
}

// Compute returns the classes in `parsed` that `lookup` does not know about yet.
//
// The lookup is queried once per parsed session, sessions that only exist in
// the store are never queried. Sessions without any new class are left out
// of the result entirely.
func Compute(ctx context.Context, parsed schedule.Sessions, lookup Lookup) (schedule.Delta, error) {
	ctx, span := tracer.Start(ctx, "Compute")
	defer span.End()

	result := schedule.Delta{Sessions: schedule.Sessions{}}

	for _, session := range parsed.SessionNames() {
		stored, err := lookup.Names(ctx, session)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to query stored names")
			return schedule.Delta{}, fmt.Errorf("query stored classes of session %q: %w", session, err)
		}

		seen := make(map[string]struct{}, len(stored))
		for _, name := range stored {
			seen[name] = struct{}{}
		}

		for name, record := range parsed[session] {
			if _, ok := seen[name]; ok {
				continue
			}
			result.Sessions.Put(session, name, record)
			result.Count++
		}
	}

	span.SetAttributes(attribute.Int("new_classes", result.Count))
	slog.InfoContext(
		ctx, "computed delta",
		"new_classes", result.Count,
		"sessions", len(result.Sessions),
	)

	return result, nil
}
