package worker

// dlq.go
// A job that keeps failing (stock alert mail, receipt mail) ends in
// dlq:{queue} with the error that killed it. Managers list and replay them
// from /v1/jobs/dead once the mail relay is fixed.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const DLQPrefix = "dlq:"

// ErrUnknownQueue is returned for a queue name the pool does not consume.
var ErrUnknownQueue = errors.New("unknown job queue")

// DeadJob is one dead-lettered job. The full Job is kept so it can be put
// back on its queue unchanged apart from the attempt counter.
type DeadJob struct {
	Queue    string    `json:"queue"`
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

// Queues lists every queue the pool consumes.
func Queues() []string { return []string{QueueStockAlert, QueueReceipt} }

func knownQueue(queue string) bool {
	for _, q := range Queues() {
		if q == queue {
			return true
		}
	}
	return false
}

// SendToDLQ records job as dead on queue.
func SendToDLQ(ctx context.Context, rdb *redis.Client, queue string, job Job, cause string) error {
	data, err := json.Marshal(DeadJob{Queue: queue, Job: job, Error: cause, FailedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := rdb.LPush(ctx, DLQPrefix+queue, data).Err(); err != nil {
		return fmt.Errorf("dlq push %s: %w", queue, err)
	}
	log.Warn().
		Str("queue", queue).
		Str("type", job.Type).
		Int("attempts", job.Attempts).
		Str("error", cause).
		Msg("job moved to dead letter queue")
	return nil
}

// DLQLength returns the number of dead jobs of queue, reported by /health.
func DLQLength(ctx context.Context, rdb *redis.Client, queue string) (int64, error) {
	return rdb.LLen(ctx, DLQPrefix+queue).Result()
}

// DeadLetters reads and replays the dead letter queues.
type DeadLetters struct {
	rdb *redis.Client
}

func NewDeadLetters(rdb *redis.Client) *DeadLetters {
	return &DeadLetters{rdb: rdb}
}

// List returns up to limit dead jobs of queue, newest first. Entries that no
// longer decode are skipped.
func (d *DeadLetters) List(ctx context.Context, queue string, limit int) ([]DeadJob, error) {
	if !knownQueue(queue) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	if limit <= 0 {
		limit = 50
	}
	raws, err := d.rdb.LRange(ctx, DLQPrefix+queue, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadJob, 0, len(raws))
	for _, raw := range raws {
		var dj DeadJob
		if err := json.Unmarshal([]byte(raw), &dj); err != nil {
			log.Error().Err(err).Str("queue", queue).Msg("corrupt dead letter entry")
			continue
		}
		out = append(out, dj)
	}
	return out, nil
}

// Replay moves up to limit of the oldest dead jobs of queue back onto it with
// a fresh attempt budget and returns how many were moved.
func (d *DeadLetters) Replay(ctx context.Context, queue string, limit int) (int, error) {
	if !knownQueue(queue) {
		return 0, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	key := DLQPrefix + queue
	moved := 0
	for moved < limit {
		raw, err := d.rdb.RPop(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return moved, err
		}
		var dj DeadJob
		if err := json.Unmarshal([]byte(raw), &dj); err != nil {
			log.Error().Err(err).Str("queue", queue).Msg("corrupt dead letter entry dropped")
			continue
		}
		dj.Job.Attempts = 0
		encoded, err := json.Marshal(dj.Job)
		if err != nil {
			return moved, err
		}
		if err := d.rdb.LPush(ctx, queue, encoded).Err(); err != nil {
			// put it back where it was
			_ = d.rdb.RPush(ctx, key, raw).Err()
			return moved, err
		}
		moved++
	}
	if moved > 0 {
		log.Info().Str("queue", queue).Int("count", moved).Msg("dead jobs replayed")
	}
	return moved, nil
}
