package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/moritzWa/pickup-sub004/pkg/config"
)

const (
	EventSyncWithdrawalStatus = "sync_withdrawal_status"

	enqueueTimeout = 5 * time.Second
	popTimeout     = 5 * time.Second
)

// Job is one unit of deferred work. Delivery is at least once; handlers must
// be idempotent.
type Job struct {
	Event        string    `json:"event"`
	WithdrawalID string    `json:"withdrawal_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
}

type IJobDispatch interface {
	Enqueue(ctx context.Context, job Job) error
}

// RedisQueue pushes jobs onto a Redis list and hands them to consumers with
// a blocking pop.
type RedisQueue struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

func NewRedisQueue(cfg *config.RedisConfig, logger zerolog.Logger) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisQueue{
		client: client,
		key:    cfg.Queue,
		logger: logger.With().Str("component", "job_queue").Logger(),
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	if err := q.client.LPush(ctx, q.key, body).Err(); err != nil {
		q.logger.Err(err).Str("event", job.Event).Msg("Failed to enqueue job")
		return err
	}
	return nil
}

// Consume blocks on the queue and invokes handler for every job until ctx is
// cancelled. Handler errors are logged; the job is not redelivered by this
// process (the periodic pending scan is the safety net for lost work).
func (q *RedisQueue) Consume(ctx context.Context, handler func(ctx context.Context, job Job) error) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			q.logger.Err(err).Msg("Failed to pop job from queue")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if len(result) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			q.logger.Err(err).Str("payload", result[1]).Msg("Dropping malformed job")
			continue
		}

		if err := handler(ctx, job); err != nil {
			q.logger.Err(err).
				Str("event", job.Event).
				Str("withdrawal_id", job.WithdrawalID).
				Msg("Job handler failed")
		}
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}
