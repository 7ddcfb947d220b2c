package events

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/signalix/accounts/internal/logging"
)

const asynqQueue = "events"

// AsynqBus moves events through a Redis-backed asynq queue so any replica
// may consume them. asynq's own retries are disabled: redelivery is the
// consumer's decision.
type AsynqBus struct {
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewAsynqBus connects to the Redis at redisURL.
func NewAsynqBus(redisURL string, concurrency int) (*AsynqBus, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 5
	}

	return &AsynqBus{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency:  concurrency,
			Queues:       map[string]int{asynqQueue: 1},
			Logger:       logging.AsynqLogger{},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Error().Err(err).Str("topic", task.Type()).Msg("Event task failed")
			}),
		}),
		mux: asynq.NewServeMux(),
	}, nil
}

func (b *AsynqBus) Emit(ctx context.Context, topic string, payload any) error {
	body, err := encode(topic, payload)
	if err != nil {
		return err
	}
	info, err := b.client.EnqueueContext(ctx, asynq.NewTask(topic, body),
		asynq.Queue(asynqQueue),
		asynq.MaxRetry(0),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s event: %w", topic, err)
	}
	log.Debug().Str("topic", topic).Str("task_id", info.ID).Msg("Event enqueued")
	return nil
}

func (b *AsynqBus) Subscribe(topic string, h Handler) {
	b.mux.HandleFunc(topic, func(ctx context.Context, t *asynq.Task) error {
		return h(ctx, t.Payload())
	})
}

// Start begins consuming in the background.
func (b *AsynqBus) Start() error {
	if err := b.server.Start(b.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	return nil
}

func (b *AsynqBus) Close() error {
	b.server.Shutdown()
	return b.client.Close()
}
