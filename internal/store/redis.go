package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"perspectives-watch/internal/chrono"
	"perspectives-watch/internal/schedule"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RedisStore keeps records in redis. Every session has two keys:
//
//   - <table>:index:<session>, a sorted set of class names scored by ttl
//   - <table>:records:<session>, a hash of class name to the json encoded record
//
// A class counts as stored while its score is in the future, Sweep removes the
// rest. Both keys expire with the newest record written to them. Puts are
// write-once: an unexpired record is never overwritten.
type RedisStore struct {
	client redis.UniversalClient
	table  string
	clock  chrono.API
}

func NewRedisStore(client redis.UniversalClient, table string, clock chrono.API) (RedisStore, error) {
	err := validateTable(table)
	if err != nil {
		return RedisStore{}, err
	}
	if clock == nil {
		clock = chrono.StandardImpl{}
	}
	return RedisStore{client: client, table: table, clock: clock}, nil
}

func (s RedisStore) indexKey(session string) string {
	return fmt.Sprintf("%s:index:%s", s.table, session)
}

func (s RedisStore) recordsKey(session string) string {
	return fmt.Sprintf("%s:records:%s", s.table, session)
}

func (s RedisStore) Names(ctx context.Context, session string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Names")
	defer span.End()
	span.SetAttributes(attribute.String("session", session))

	names, err := s.client.ZRangeByScore(ctx, s.indexKey(session), &redis.ZRangeBy{
		Min: "(" + strconv.FormatInt(s.clock.Now().Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query names")
		return nil, err
	}
	return names, nil
}

// putScript writes a record unless an unexpired record with the same name
// already exists.
//
// KEYS[1] index key, KEYS[2] records key
// ARGV[1] name, ARGV[2] ttl, ARGV[3] now, ARGV[4] encoded record
var putScript = redis.NewScript(`
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if score and tonumber(score) > tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[4])
redis.call('EXPIREAT', KEYS[1], ARGV[2])
redis.call('EXPIREAT', KEYS[2], ARGV[2])
return 1
`)

func (s RedisStore) BatchPut(ctx context.Context, records []schedule.PersistedClassRecord) ([]schedule.PersistedClassRecord, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.BatchPut")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	now := s.clock.Now().Unix()
	pipe := s.client.Pipeline()
	cmds := make([]*redis.Cmd, len(records))
	for i, r := range records {
		encoded, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		cmds[i] = putScript.Eval(
			ctx, pipe,
			[]string{s.indexKey(r.Session), s.recordsKey(r.Session)},
			r.Name, r.Ttl, now, string(encoded),
		)
	}
	_, execErr := pipe.Exec(ctx)

	var unprocessed []schedule.PersistedClassRecord
	for i, r := range records {
		err := cmds[i].Err()
		if err == nil {
			continue
		}
		if !isRetryableReply(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "pipeline failed")
			return nil, fmt.Errorf("put %s/%s: %w", r.Session, r.Name, err)
		}
		unprocessed = append(unprocessed, r)
	}
	if execErr != nil && len(unprocessed) == 0 {
		span.RecordError(execErr)
		span.SetStatus(codes.Error, "pipeline failed")
		return nil, execErr
	}

	span.SetAttributes(attribute.Int("unprocessed", len(unprocessed)))
	return unprocessed, nil
}

var retryableReplies = []string{"BUSY", "LOADING", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN"}

// isRetryableReply reports whether err is a server reply that only concerns
// the command it answers and may succeed when sent again.
func isRetryableReply(err error) bool {
	var replyErr redis.Error
	if !errors.As(err, &replyErr) {
		return false
	}
	for _, prefix := range retryableReplies {
		if strings.HasPrefix(replyErr.Error(), prefix) {
			return true
		}
	}
	return false
}

// sessions finds every session with an index key.
func (s RedisStore) sessions(ctx context.Context) ([]string, error) {
	prefix := s.indexKey("")
	var sessions []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sessions = append(sessions, strings.TrimPrefix(iter.Val(), prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	sort.Strings(sessions)
	return sessions, nil
}

func (s RedisStore) List(ctx context.Context, session string) ([]schedule.PersistedClassRecord, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.List")
	defer span.End()

	sessions := []string{session}
	if session == "" {
		var err error
		sessions, err = s.sessions(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to scan sessions")
			return nil, err
		}
	}

	var records []schedule.PersistedClassRecord
	for _, session := range sessions {
		names, err := s.Names(ctx, session)
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			continue
		}
		sort.Strings(names)

		values, err := s.client.HMGet(ctx, s.recordsKey(session), names...).Result()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read records")
			return nil, err
		}
		for i, v := range values {
			encoded, ok := v.(string)
			if !ok {
				continue
			}
			var r schedule.PersistedClassRecord
			err := json.Unmarshal([]byte(encoded), &r)
			if err != nil {
				return nil, fmt.Errorf("decode %s/%s: %w", session, names[i], err)
			}
			records = append(records, r)
		}
	}
	return records, nil
}

func (s RedisStore) Sweep(ctx context.Context) (int64, error) {
	ctx, span := tracer.Start(ctx, "RedisStore.Sweep")
	defer span.End()

	sessions, err := s.sessions(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scan sessions")
		return 0, err
	}

	now := strconv.FormatInt(s.clock.Now().Unix(), 10)
	var removed int64
	for _, session := range sessions {
		expired, err := s.client.ZRangeByScore(ctx, s.indexKey(session), &redis.ZRangeBy{
			Min: "-inf",
			Max: now,
		}).Result()
		if err != nil {
			return removed, err
		}
		if len(expired) == 0 {
			continue
		}

		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRemRangeByScore(ctx, s.indexKey(session), "-inf", now)
			pipe.HDel(ctx, s.recordsKey(session), expired...)
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to sweep session")
			return removed, err
		}
		removed += int64(len(expired))
	}
	return removed, nil
}

func (s RedisStore) Close() error {
	return s.client.Close()
}
