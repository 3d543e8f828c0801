package persist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/agentloop/model"
)

// ErrNotFound is returned when no record exists for a run.
var ErrNotFound = errors.New("record not found")

// RedisClient is the subset of redis.Cmdable used by Redis.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisOptions configures a Redis recorder.
type RedisOptions struct {
	// Prefix namespaces all keys.
	Prefix string
	// TTL bounds the lifetime of stored records; zero keeps them forever.
	TTL   time.Duration
	Codec Codec
	// PublishProgress additionally publishes each snapshot on the run's channel.
	PublishProgress bool
}

// Redis stores the latest snapshot and the final result of each run.
type Redis struct {
	client RedisClient
	opts   RedisOptions
}

// NewRedis creates a recorder over client.
func NewRedis(client RedisClient, optFns ...func(o *RedisOptions)) *Redis {
	opts := RedisOptions{
		Prefix: "agentloop",
		TTL:    24 * time.Hour,
		Codec:  JSONCodec{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Codec == nil {
		opts.Codec = JSONCodec{}
	}

	return &Redis{client: client, opts: opts}
}

// DialRedis connects to address and verifies the connection with PING.
func DialRedis(ctx context.Context, address, password string, db int, optFns ...func(o *RedisOptions)) (*Redis, func() error, error) {
	if address == "" {
		return nil, nil, errors.New("redis address must not be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	return NewRedis(client, optFns...), client.Close, nil
}

// SnapshotKey returns the key holding the latest snapshot of runID.
func (r *Redis) SnapshotKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:snapshot", r.opts.Prefix, runID)
}

// ResultKey returns the key holding the final result of runID.
func (r *Redis) ResultKey(runID string) string {
	return fmt.Sprintf("%s:run:%s:result", r.opts.Prefix, runID)
}

// ProgressChannel returns the pub/sub channel for snapshots of runID.
func (r *Redis) ProgressChannel(runID string) string {
	return fmt.Sprintf("%s:run:%s:progress", r.opts.Prefix, runID)
}

// RecordProgress implements Recorder.
func (r *Redis) RecordProgress(ctx context.Context, runID string, snap *model.Snapshot) error {
	data, err := r.opts.Codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := r.client.Set(ctx, r.SnapshotKey(runID), data, r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}

	if r.opts.PublishProgress {
		if err := r.client.Publish(ctx, r.ProgressChannel(runID), data).Err(); err != nil {
			return fmt.Errorf("redis publish snapshot: %w", err)
		}
	}

	return nil
}

// RecordFinal implements Recorder.
func (r *Redis) RecordFinal(ctx context.Context, runID string, res Result) error {
	data, err := r.opts.Codec.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	if err := r.client.Set(ctx, r.ResultKey(runID), data, r.opts.TTL).Err(); err != nil {
		return fmt.Errorf("redis set result: %w", err)
	}

	return nil
}

// LoadSnapshot reads the latest snapshot of runID.
func (r *Redis) LoadSnapshot(ctx context.Context, runID string) (*model.Snapshot, error) {
	data, err := r.load(ctx, r.SnapshotKey(runID))
	if err != nil {
		return nil, err
	}

	var snap model.Snapshot
	if err := r.opts.Codec.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &snap, nil
}

// LoadResult reads the final result of runID.
func (r *Redis) LoadResult(ctx context.Context, runID string) (Result, error) {
	data, err := r.load(ctx, r.ResultKey(runID))
	if err != nil {
		return Result{}, err
	}

	var res Result
	if err := r.opts.Codec.Unmarshal(data, &res); err != nil {
		return Result{}, fmt.Errorf("decode result: %w", err)
	}

	return res, nil
}

func (r *Redis) load(ctx context.Context, key string) ([]byte, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return data, nil
}

var _ Recorder = (*Redis)(nil)
