package commands

import (
	"context"

	"perspectives-watch/internal/config"
)

type globalsKey struct{}

type globals struct {
	config config.Config
	dryRun bool
}

func setGlobals(ctx context.Context, value *globals) context.Context {
	return context.WithValue(ctx, globalsKey{}, value)
}

func getGlobals(ctx context.Context) *globals {
	return ctx.Value(globalsKey{}).(*globals)
}
