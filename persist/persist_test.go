package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentloop/model"
)

func sampleSnapshot() *model.Snapshot {
	snap := model.NewSnapshot(model.ProviderAnthropic)
	snap.ID = "msg_1"
	snap.EnsureBlock(0).Text = "Let me check."
	b := snap.EnsureBlock(1)
	b.Kind, b.ToolCallID, b.Name, b.Input, b.Complete = model.BlockToolUse, "toolu_1", "weather", map[string]any{"city": "Berlin"}, true
	snap.StopReason, snap.FinishReason = "tool_use", model.FinishToolCalls
	snap.MergeUsage(map[string]int64{"input_tokens": 12, "output_tokens": 7})
	return snap
}

func sampleResult() Result {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return Result{
		RunID:          "run-1",
		Task:           "What is the weather?",
		Status:         "completed",
		FinalAnswer:    "sunny",
		IterationCount: 2,
		MaxIterations:  10,
		History: []map[string]any{
			{"role": "user", "content": "What is the weather?"},
		},
		StartedAt:   started,
		CompletedAt: started.Add(3 * time.Second),
	}
}

func TestInMemory(t *testing.T) {
	rec := NewInMemory()
	ctx := context.Background()

	_, ok := rec.Latest("run-1")
	assert.False(t, ok)

	snap := sampleSnapshot()
	require.NoError(t, rec.RecordProgress(ctx, "run-1", snap))
	require.NoError(t, rec.RecordProgress(ctx, "run-1", snap))

	snap.EnsureBlock(0).Text = "mutated"

	latest, ok := rec.Latest("run-1")
	require.True(t, ok)
	assert.Equal(t, "Let me check.", latest.Text(), "recorded snapshot must be a copy")
	assert.Equal(t, 2, rec.ProgressCount("run-1"))

	require.NoError(t, rec.RecordFinal(ctx, "run-1", sampleResult()))
	res, ok := rec.Final("run-1")
	require.True(t, ok)
	assert.Equal(t, "sunny", res.FinalAnswer)
}

func TestInMemory_Concurrent(t *testing.T) {
	rec := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = rec.RecordProgress(context.Background(), "run-c", sampleSnapshot())
		}()
	}
	wg.Wait()

	assert.Equal(t, 16, rec.ProgressCount("run-c"))
}

func TestCodecs(t *testing.T) {
	for _, name := range []string{"json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			require.NoError(t, err)
			assert.Equal(t, name, codec.Name())

			data, err := codec.Marshal(sampleSnapshot())
			require.NoError(t, err)

			var snap model.Snapshot
			require.NoError(t, codec.Unmarshal(data, &snap))
			assert.Equal(t, "Let me check.", snap.Text())

			calls := snap.ToolCalls()
			require.Len(t, calls, 1)
			assert.Equal(t, "weather", calls[0].Name)
			assert.Equal(t, map[string]any{"city": "Berlin"}, calls[0].Arguments)
			assert.Equal(t, int64(12), snap.Usage["input_tokens"])

			data, err = codec.Marshal(sampleResult())
			require.NoError(t, err)

			var res Result
			require.NoError(t, codec.Unmarshal(data, &res))
			assert.Equal(t, "run-1", res.RunID)
			assert.Equal(t, "sunny", res.FinalAnswer)
			assert.True(t, sampleResult().StartedAt.Equal(res.StartedAt))
			assert.Equal(t, "user", res.History[0]["role"])
		})
	}

	_, err := CodecByName("xml")
	assert.Error(t, err)
}

func TestCBORCodec_Deterministic(t *testing.T) {
	codec, err := NewCBORCodec()
	require.NoError(t, err)

	a, err := codec.Marshal(map[string]any{"b": 1, "a": 2, "c": 3})
	require.NoError(t, err)
	b, err := codec.Marshal(map[string]any{"c": 3, "a": 2, "b": 1})
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

type stubRedis struct {
	mu        sync.Mutex
	data      map[string]string
	ttls      map[string]time.Duration
	published map[string]int
	setErr    error
}

func newStubRedis() *stubRedis {
	return &stubRedis{data: map[string]string{}, ttls: map[string]time.Duration{}, published: map[string]int{}}
}

func (s *stubRedis) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return redis.NewStatusResult("", s.setErr)
	}

	s.data[key] = string(value.([]byte))
	s.ttls[key] = ttl

	return redis.NewStatusResult("OK", nil)
}

func (s *stubRedis) Get(_ context.Context, key string) *redis.StringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}

	return redis.NewStringResult(v, nil)
}

func (s *stubRedis) Publish(_ context.Context, channel string, _ any) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.published[channel]++

	return redis.NewIntResult(1, nil)
}

func TestRedis_RoundTrip(t *testing.T) {
	for _, name := range []string{"json", "cbor"} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			require.NoError(t, err)

			client := newStubRedis()
			rec := NewRedis(client, func(o *RedisOptions) {
				o.Codec = codec
				o.TTL = time.Hour
				o.PublishProgress = true
			})
			ctx := context.Background()

			require.NoError(t, rec.RecordProgress(ctx, "run-1", sampleSnapshot()))
			require.NoError(t, rec.RecordFinal(ctx, "run-1", sampleResult()))

			assert.Equal(t, time.Hour, client.ttls["agentloop:run:run-1:snapshot"])
			assert.Equal(t, 1, client.published["agentloop:run:run-1:progress"])

			snap, err := rec.LoadSnapshot(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, "msg_1", snap.ID)
			assert.Equal(t, model.FinishToolCalls, snap.FinishReason)

			res, err := rec.LoadResult(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, 2, res.IterationCount)
		})
	}
}

func TestRedis_Keys(t *testing.T) {
	rec := NewRedis(newStubRedis(), func(o *RedisOptions) { o.Prefix = "svc" })

	assert.Equal(t, "svc:run:r1:snapshot", rec.SnapshotKey("r1"))
	assert.Equal(t, "svc:run:r1:result", rec.ResultKey("r1"))
	assert.Equal(t, "svc:run:r1:progress", rec.ProgressChannel("r1"))
}

func TestRedis_NotFound(t *testing.T) {
	rec := NewRedis(newStubRedis())

	_, err := rec.LoadResult(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = rec.LoadSnapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_SetError(t *testing.T) {
	client := newStubRedis()
	client.setErr = errors.New("connection refused")
	rec := NewRedis(client)

	err := rec.RecordProgress(context.Background(), "run-1", sampleSnapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDialRedis_EmptyAddress(t *testing.T) {
	_, _, err := DialRedis(context.Background(), "", "", 0)
	assert.Error(t, err)
}
