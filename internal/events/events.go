// Package events carries fire-and-forget domain events between the request
// path and background consumers. Two transports exist: an in-process bus and
// an asynq queue backed by Redis.
package events

import (
	"context"
	"encoding/json"
	"fmt"
)

// TopicSendEmail is the event that asks for an email to be delivered.
const TopicSendEmail = "send-email"

// DefaultRetryCount is the number of redeliveries a new send-email event gets.
const DefaultRetryCount = 5

// Recipient is a single email address.
type Recipient struct {
	Email string `json:"email"`
}

// EmailData describes one email. Either Template or HTML is set; HTML wins
// when both are.
type EmailData struct {
	To           []Recipient    `json:"to"`
	Subject      string         `json:"subject"`
	Template     string         `json:"template,omitempty"`
	HTML         string         `json:"html,omitempty"`
	FromEmail    string         `json:"fromEmail,omitempty"`
	FromName     string         `json:"fromName,omitempty"`
	TemplateData map[string]any `json:"template_data,omitempty"`
}

// SendEmail is the payload of TopicSendEmail.
type SendEmail struct {
	EmailData  EmailData `json:"emailData"`
	RetryCount int       `json:"retryCount"`
}

// Handler consumes the raw payload of one event.
type Handler func(ctx context.Context, payload []byte) error

// Emitter publishes events. Emit returns once the event is handed to the
// transport, not once it is consumed.
type Emitter interface {
	Emit(ctx context.Context, topic string, payload any) error
}

// Bus is an Emitter that can also deliver events to subscribers.
type Bus interface {
	Emitter
	Subscribe(topic string, h Handler)
	Start() error
	Close() error
}

func encode(topic string, payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", topic, err)
	}
	return b, nil
}
