package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, data EmailData) error
}

// DefaultRetryDelay is the wait before a failed email is emitted again.
const DefaultRetryDelay = 15 * time.Minute

// EmailConsumer handles TopicSendEmail. A failed delivery with retries left
// is re-emitted after a fixed delay with one retry fewer; at zero the email
// is dropped. Pending retries live in process timers and are lost on restart.
type EmailConsumer struct {
	mailer    Mailer
	emitter   Emitter
	delay     time.Duration
	afterFunc func(time.Duration, func())
	onResult  func(sent bool)
}

// ConsumerOption configures an EmailConsumer.
type ConsumerOption func(*EmailConsumer)

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) ConsumerOption {
	return func(c *EmailConsumer) {
		if d > 0 {
			c.delay = d
		}
	}
}

// WithScheduler replaces time.AfterFunc.
func WithScheduler(f func(time.Duration, func())) ConsumerOption {
	return func(c *EmailConsumer) { c.afterFunc = f }
}

// WithResultHook is called after every delivery attempt.
func WithResultHook(f func(sent bool)) ConsumerOption {
	return func(c *EmailConsumer) { c.onResult = f }
}

// NewEmailConsumer creates a consumer that re-emits through emitter.
func NewEmailConsumer(mailer Mailer, emitter Emitter, opts ...ConsumerOption) *EmailConsumer {
	c := &EmailConsumer{
		mailer:  mailer,
		emitter: emitter,
		delay:   DefaultRetryDelay,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register subscribes the consumer to bus.
func (c *EmailConsumer) Register(bus Bus) {
	bus.Subscribe(TopicSendEmail, c.Handle)
}

// Handle is the Handler for TopicSendEmail. It only fails on a payload it
// cannot decode; delivery failures are retried or dropped, never returned.
func (c *EmailConsumer) Handle(ctx context.Context, payload []byte) error {
	var ev SendEmail
	if err := json.Unmarshal(payload, &ev); err != nil {
		return fmt.Errorf("decode send-email event: %w", err)
	}
	c.Consume(ctx, ev)
	return nil
}

// Consume attempts one delivery of ev.
func (c *EmailConsumer) Consume(ctx context.Context, ev SendEmail) {
	logger := log.With().
		Str("topic", TopicSendEmail).
		Str("subject", ev.EmailData.Subject).
		Int("retry_count", ev.RetryCount).
		Logger()

	logger.Info().Msg("Sending email")
	err := c.send(ctx, ev.EmailData)
	if c.onResult != nil {
		c.onResult(err == nil)
	}
	if err == nil {
		return
	}

	if ev.RetryCount <= 0 {
		logger.Warn().Err(err).Msg("Failed to send email, giving up")
		return
	}

	logger.Warn().Err(err).Dur("delay", c.delay).Msg("Failed to send email, scheduling retry")
	next := SendEmail{EmailData: ev.EmailData, RetryCount: ev.RetryCount - 1}
	c.afterFunc(c.delay, func() {
		log.Info().Int("retry_count", next.RetryCount).Msg("Retrying email")
		if err := c.emitter.Emit(context.Background(), TopicSendEmail, next); err != nil {
			log.Error().Err(err).Msg("Failed to re-emit email event")
		}
	})
}

func (c *EmailConsumer) send(ctx context.Context, data EmailData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mailer panicked: %v", r)
		}
	}()
	return c.mailer.Send(ctx, data)
}
