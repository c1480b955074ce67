//go:build integration

package worker

// Runs the job retry and dead letter paths against a real Redis.
// Run with: go test -tags integration ./internal/worker/... -v

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"clawpos/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()
	c, err := tcRedis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })
	url, err := c.ConnectionString(ctx)
	require.NoError(t, err)
	rdb, err := infra.NewRedis(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func encodedJob(t *testing.T, job Job) string {
	t.Helper()
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return string(b)
}

func failing(err error) Handlers {
	return Handlers{JobReceipt: func(context.Context, json.RawMessage) error { return err }}
}

func TestProcessJob_FailureSchedulesBackoff(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	before := time.Now()
	raw := encodedJob(t, Job{Type: JobReceipt, Payload: json.RawMessage(`{"sale_id":"x"}`), Attempts: 1})
	processJob(ctx, rdb, failing(errors.New("relay down")), QueueReceipt, raw)

	entries, err := rdb.ZRangeWithScores(ctx, RetrySetKey, 0, -1).Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	var job Job
	require.NoError(t, json.Unmarshal([]byte(entries[0].Member.(string)), &job))
	assert.Equal(t, 2, job.Attempts)
	// second attempt waits 60s
	due := time.Unix(int64(entries[0].Score), 0)
	assert.WithinDuration(t, before.Add(60*time.Second), due, 2*time.Second)

	n, err := DLQLength(ctx, rdb, QueueReceipt)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestProcessJob_LastAttemptGoesToDLQ(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	raw := encodedJob(t, Job{Type: JobReceipt, Payload: json.RawMessage(`{}`), Attempts: MaxJobAttempts - 1})
	processJob(ctx, rdb, failing(errors.New("mailbox full")), QueueReceipt, raw)

	n, err := rdb.ZCard(ctx, RetrySetKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	dead, err := NewDeadLetters(rdb).List(ctx, QueueReceipt, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, QueueReceipt, dead[0].Queue)
	assert.Equal(t, "mailbox full", dead[0].Error)
	assert.Equal(t, MaxJobAttempts, dead[0].Job.Attempts)
	assert.False(t, dead[0].FailedAt.IsZero())
}

func TestProcessJob_DropAndUnknownType(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	processJob(ctx, rdb, failing(ErrDropJob), QueueReceipt, encodedJob(t, Job{Type: JobReceipt}))
	processJob(ctx, rdb, Handlers{}, QueueStockAlert, encodedJob(t, Job{Type: "mystery"}))

	retries, err := rdb.ZCard(ctx, RetrySetKey).Result()
	require.NoError(t, err)
	assert.Zero(t, retries)

	n, err := DLQLength(ctx, rdb, QueueReceipt)
	require.NoError(t, err)
	assert.Zero(t, n, "dropped jobs are not dead-lettered")

	dead, err := NewDeadLetters(rdb).List(ctx, QueueStockAlert, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "no handler registered", dead[0].Error)
}

func TestPromoteDue_MovesOnlyDueJobs(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	now := time.Now()

	dueAlert := encodedJob(t, Job{Type: JobStockAlert, Payload: json.RawMessage(`{"n":1}`), Attempts: 1})
	dueReceipt := encodedJob(t, Job{Type: JobReceipt, Payload: json.RawMessage(`{"n":2}`), Attempts: 2})
	later := encodedJob(t, Job{Type: JobReceipt, Payload: json.RawMessage(`{"n":3}`), Attempts: 1})
	require.NoError(t, rdb.ZAdd(ctx, RetrySetKey,
		redis.Z{Score: float64(now.Add(-time.Minute).Unix()), Member: dueAlert},
		redis.Z{Score: float64(now.Unix()), Member: dueReceipt},
		redis.Z{Score: float64(now.Add(time.Hour).Unix()), Member: later},
	).Err())

	assert.Equal(t, 2, promoteDue(ctx, RetryCronConfig{RDB: rdb}, now))

	alerts, err := rdb.LRange(ctx, QueueStockAlert, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{dueAlert}, alerts)
	receipts, err := rdb.LRange(ctx, QueueReceipt, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{dueReceipt}, receipts)

	left, err := rdb.ZRange(ctx, RetrySetKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{later}, left)

	// a second tick finds nothing new
	assert.Zero(t, promoteDue(ctx, RetryCronConfig{RDB: rdb}, now))
}

func TestPromoteDue_OpenBreakerHoldsJobs(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	now := time.Now()

	raw := encodedJob(t, Job{Type: JobReceipt, Attempts: 1})
	require.NoError(t, rdb.ZAdd(ctx, RetrySetKey, redis.Z{Score: float64(now.Unix() - 10), Member: raw}).Err())

	cb := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{Name: "mail", FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Hour})
	_ = cb.Execute(func() error { return errors.New("relay down") })
	require.Equal(t, infra.CBOpen, cb.State())

	assert.Zero(t, promoteDue(ctx, RetryCronConfig{RDB: rdb, CB: cb}, now))
	n, err := rdb.ZCard(ctx, RetrySetKey).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPromoteDue_FailedPushKeepsJobScheduled(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()
	now := time.Now()

	raw := encodedJob(t, Job{Type: JobReceipt, Attempts: 1})
	require.NoError(t, rdb.ZAdd(ctx, RetrySetKey, redis.Z{Score: float64(now.Unix() - 10), Member: raw}).Err())
	// a non-list value under the queue key makes LPUSH fail with WRONGTYPE
	require.NoError(t, rdb.Set(ctx, QueueReceipt, "blocked", 0).Err())

	assert.Zero(t, promoteDue(ctx, RetryCronConfig{RDB: rdb}, now))
	left, err := rdb.ZRange(ctx, RetrySetKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{raw}, left)

	require.NoError(t, rdb.Del(ctx, QueueReceipt).Err())
	assert.Equal(t, 1, promoteDue(ctx, RetryCronConfig{RDB: rdb}, now))
}

func TestDeadLetters_ReplayResetsAttempts(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		job := Job{Type: JobReceipt, Payload: json.RawMessage(`{"n":` + strconv.Itoa(i) + `}`), Attempts: MaxJobAttempts}
		require.NoError(t, SendToDLQ(ctx, rdb, QueueReceipt, job, "relay down"))
	}
	n, err := DLQLength(ctx, rdb, QueueReceipt)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	dl := NewDeadLetters(rdb)
	moved, err := dl.Replay(ctx, QueueReceipt, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, moved)

	// oldest first, back on the queue with a fresh budget
	raw, err := rdb.RPop(ctx, QueueReceipt).Result()
	require.NoError(t, err)
	var job Job
	require.NoError(t, json.Unmarshal([]byte(raw), &job))
	assert.Zero(t, job.Attempts)
	assert.JSONEq(t, `{"n":0}`, string(job.Payload))

	n, err = DLQLength(ctx, rdb, QueueReceipt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = dl.Replay(ctx, "jobs:nope", 1)
	assert.ErrorIs(t, err, ErrUnknownQueue)
}
