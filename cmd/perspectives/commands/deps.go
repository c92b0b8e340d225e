package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"perspectives-watch/internal/config"
	"perspectives-watch/internal/listing"
	"perspectives-watch/internal/notify"
	"perspectives-watch/internal/pipeline"
	"perspectives-watch/internal/store"
	"perspectives-watch/internal/telemetry"

	"github.com/redis/go-redis/v9"
)

// dependencies holds everything opened for a command, close releases all of it.
type dependencies struct {
	store   store.Store
	sink    notify.Sink
	closers []func() error
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		err := d.closers[i]()
		if err != nil {
			slog.Warn("failed to close dependency", "err", err)
		}
	}
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opt)
	err = client.Ping(ctx).Err()
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("redis connected", "addr", opt.Addr, "db", opt.DB)
	return client, nil
}

// openStore opens the configured store, the redis client (if one was needed)
// is returned so it can be shared with the sink.
func openStore(ctx context.Context, cfg config.Config, deps *dependencies) (*redis.Client, error) {
	if cfg.Store.Table == "" {
		return nil, errors.New("STORE_TABLE is not set")
	}

	switch cfg.Store.Driver {
	case "redis":
		client, err := newRedisClient(ctx, cfg.RedisUrl)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, client.Close)

		s, err := store.NewRedisStore(client, cfg.Store.Table, nil)
		if err != nil {
			return nil, err
		}
		deps.store = s
		return client, nil
	default:
		s, err := store.OpenSQL(ctx, cfg.Store.Driver, cfg.Store.Dsn, cfg.Store.Table, nil)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		deps.closers = append(deps.closers, s.Close)
		deps.store = s
		return nil, nil
	}
}

func openSink(ctx context.Context, cfg config.Config, dryRun bool, client *redis.Client, deps *dependencies) error {
	if dryRun {
		deps.sink = notify.LogSink{}
		return nil
	}

	switch cfg.Notify.Sink {
	case "log":
		deps.sink = notify.LogSink{}
	case "email":
		deps.sink = notify.NewEmailSink(notify.SmtpConfig{
			Server:       cfg.Notify.Smtp.Server,
			Port:         cfg.Notify.Smtp.Port,
			EmailAddress: cfg.Notify.Smtp.EmailAddress,
			Password:     cfg.Notify.Smtp.Password,
		})
	case "redis":
		if client == nil {
			var err error
			client, err = newRedisClient(ctx, cfg.RedisUrl)
			if err != nil {
				return err
			}
			deps.closers = append(deps.closers, client.Close)
		}
		deps.sink = notify.NewRedisSink(client)
	default:
		return fmt.Errorf("unknown notification sink %q", cfg.Notify.Sink)
	}
	return nil
}

// openStoreOnly is used by commands that never publish.
func openStoreOnly(ctx context.Context, cfg config.Config) (*dependencies, error) {
	deps := &dependencies{}
	_, err := openStore(ctx, cfg, deps)
	if err != nil {
		deps.close()
		return nil, err
	}
	return deps, nil
}

func newHandler(ctx context.Context, g *globals) (pipeline.Handler, *dependencies, error) {
	cfg := g.config
	err := cfg.Validate()
	if err != nil {
		return pipeline.Handler{}, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	deps := &dependencies{}
	client, err := openStore(ctx, cfg, deps)
	if err != nil {
		deps.close()
		return pipeline.Handler{}, nil, err
	}
	err = openSink(ctx, cfg, g.dryRun, client, deps)
	if err != nil {
		deps.close()
		return pipeline.Handler{}, nil, err
	}

	var output telemetry.HttpOutput
	if cfg.HttpDumpDir != "" {
		fsOutput, err := telemetry.NewFilesystemOutput(cfg.HttpDumpDir)
		if err != nil {
			deps.close()
			return pipeline.Handler{}, nil, err
		}
		output = fsOutput
	}

	var target pipeline.Store = deps.store
	if g.dryRun {
		target = store.ReadOnly{Store: deps.store}
	}

	handler := pipeline.NewHandler(
		listing.NewFetcher(cfg.ListingUrl, output),
		target,
		deps.sink,
		pipeline.Config{
			Destination:  cfg.Notify.Destination,
			Link:         cfg.ListingUrl,
			MaxBatchSize: cfg.Store.MaxBatchSize,
		},
		pipeline.Options{},
	)
	return handler, deps, nil
}
