package events

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrBusClosed is returned by Emit after Close.
var ErrBusClosed = errors.New("event bus closed")

// LocalBus delivers events to in-process subscribers on their own goroutine.
// Nothing survives a restart.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	closed   bool
	wg       sync.WaitGroup
}

// NewLocalBus creates an empty in-process bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[string][]Handler)}
}

func (b *LocalBus) Subscribe(topic string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], h)
}

// Start is a no-op; handlers run as soon as they are subscribed.
func (b *LocalBus) Start() error { return nil }

func (b *LocalBus) Emit(ctx context.Context, topic string, payload any) error {
	body, err := encode(topic, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrBusClosed
	}

	for _, h := range b.handlers[topic] {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("topic", topic).Msg("Event handler panicked")
				}
			}()
			// handlers outlive the request that emitted the event
			if err := h(context.WithoutCancel(ctx), body); err != nil {
				log.Error().Err(err).Str("topic", topic).Msg("Event handler failed")
			}
		}(h)
	}
	return nil
}

// Close rejects further events and waits for running handlers.
func (b *LocalBus) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}
