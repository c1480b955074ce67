package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueStockAlert = "jobs:stock_alert"
	QueueReceipt    = "jobs:receipt_email"

	JobStockAlert = "stock_alert"
	JobReceipt    = "receipt_email"

	// MaxJobAttempts is how many times a job runs before it lands in the DLQ.
	MaxJobAttempts = 5
)

// ErrDropJob tells the pool the job can never succeed; it is discarded
// without retry.
var ErrDropJob = errors.New("worker: drop job")

// Job is the generic envelope for all async tasks.
type Job struct {
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	Attempts int             `json:"attempts"`
}

// Handler processes the payload of one job type.
type Handler func(ctx context.Context, payload json.RawMessage) error

// Handlers maps a job type to its handler.
type Handlers map[string]Handler

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueLowStockAlert pushes a stock alert job to Redis.
func (d *Dispatcher) EnqueueLowStockAlert(ctx context.Context, p LowStockAlertPayload) error {
	return d.enqueue(ctx, QueueStockAlert, JobStockAlert, p)
}

// EnqueueReceipt pushes a receipt email job to Redis.
func (d *Dispatcher) EnqueueReceipt(ctx context.Context, p ReceiptJobPayload) error {
	return d.enqueue(ctx, QueueReceipt, JobReceipt, p)
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(Job{Type: jobType, Payload: data})
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// QueueFor returns the list a job type is consumed from.
func QueueFor(jobType string) string {
	switch jobType {
	case JobStockAlert:
		return QueueStockAlert
	default:
		return QueueReceipt
	}
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP, so idle workers cost nothing.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers Handlers) {
	queues := Queues()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop; waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, rdb, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, rdb *redis.Client, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}
	h, ok := handlers[job.Type]
	if !ok {
		deadLetter(ctx, rdb, queue, job, "no handler registered")
		return
	}

	job.Attempts++
	err := h(ctx, job.Payload)
	switch {
	case err == nil:
		log.Debug().Str("type", job.Type).Int("attempts", job.Attempts).Msg("job done")
	case errors.Is(err, ErrDropJob):
		log.Warn().Str("type", job.Type).Err(err).Msg("job dropped")
	case job.Attempts >= MaxJobAttempts:
		deadLetter(ctx, rdb, queue, job, err.Error())
	default:
		if serr := ScheduleRetry(ctx, rdb, job); serr != nil {
			log.Error().Err(serr).Str("type", job.Type).Msg("failed to schedule retry")
			deadLetter(ctx, rdb, queue, job, err.Error())
			return
		}
		log.Warn().Str("type", job.Type).Int("attempts", job.Attempts).Err(err).Msg("job failed, retry scheduled")
	}
}

func deadLetter(ctx context.Context, rdb *redis.Client, queue string, job Job, cause string) {
	if err := SendToDLQ(ctx, rdb, queue, job, cause); err != nil {
		log.Error().Err(err).Str("type", job.Type).Msg("job lost: dead letter push failed")
	}
}
