package worker

// retry_cron.go
// Failed jobs wait in a sorted set scored by their next attempt time.
// A ticker moves due entries back onto their queue. While the mail relay
// breaker is open, nothing is promoted so a downed relay is not hammered.

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"clawpos/internal/infra"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	RetrySetKey       = "jobs:retry"
	retryTickInterval = 15 * time.Second
	retryBatchSize    = 20
)

// ScheduleRetry parks a failed job until its backoff elapses.
func ScheduleRetry(ctx context.Context, rdb *redis.Client, job Job) error {
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	due := time.Now().Add(computeRetryBackoff(job.Attempts))
	return rdb.ZAdd(ctx, RetrySetKey, redis.Z{Score: float64(due.Unix()), Member: encoded}).Err()
}

// computeRetryBackoff doubles from 30s, capped at 30min.
func computeRetryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := 30 * time.Second
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= 30*time.Minute {
			return 30 * time.Minute
		}
	}
	return d
}

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	RDB *redis.Client
	// CB is the mail relay breaker; may be nil.
	CB *infra.CircuitBreaker
}

// StartRetryCron launches the promotion loop. It stops with ctx.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				promoteDue(ctx, cfg, time.Now())
			}
		}
	}()
}

func promoteDue(ctx context.Context, cfg RetryCronConfig, now time.Time) int {
	if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("retry_cron: circuit breaker is open, skipping tick")
		return 0
	}

	due, err := cfg.RDB.ZRangeByScore(ctx, RetrySetKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: retryBatchSize,
	}).Result()
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query due jobs")
		return 0
	}

	promoted := 0
	for _, raw := range due {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			log.Error().Err(err).Msg("retry_cron: corrupt retry entry dropped")
			cfg.RDB.ZRem(ctx, RetrySetKey, raw)
			continue
		}
		removed, err := promoteOne(ctx, cfg.RDB, QueueFor(job.Type), raw)
		if err != nil {
			log.Error().Err(err).Str("type", job.Type).Msg("retry_cron: failed to re-enqueue")
			continue
		}
		if removed {
			promoted++
		}
	}
	if promoted > 0 {
		log.Info().Int("count", promoted).Msg("retry_cron: jobs re-enqueued")
	}
	return promoted
}

// promoteScript pushes a retry entry onto its queue and only then removes
// it from the set. A failed push aborts the script before the removal, and a
// member another promoter already took is skipped.
var promoteScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) == false then
	return 0
end
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

// promoteOne moves raw from the retry set to queue and reports whether this
// call did the move.
func promoteOne(ctx context.Context, rdb *redis.Client, queue, raw string) (bool, error) {
	n, err := promoteScript.Run(ctx, rdb, []string{RetrySetKey, queue}, raw).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
