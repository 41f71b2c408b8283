package domain

import (
	"context"
	"time"
)

// MessageBroker defines the interface for message broker operations
type MessageBroker interface {
	// Publish sends a message to a specific topic/channel with a routing key
	Publish(ctx context.Context, topic string, routingKey string, message []byte) error

	// Subscribe listens for messages on a specific topic/channel and routing key
	Subscribe(ctx context.Context, topic string, routingKey string) (<-chan Message, error)

	// Unsubscribe closes the channel returned by Subscribe
	Unsubscribe(topic string, routingKey string)

	// Close closes the message broker connection
	Close() error
}

// Message represents a message received from the broker
type Message struct {
	Topic      string
	RoutingKey string
	Payload    []byte
	Timestamp  time.Time
}

const SessionEventsTopic = "session.events"

type SessionEventType string

const (
	EventDocumentUploaded SessionEventType = "document.uploaded"
	EventSessionReset     SessionEventType = "session.reset"
	EventTurnCommitted    SessionEventType = "turn.committed"
	EventSessionDisposed  SessionEventType = "session.disposed"
)

// SessionEvent is published on SessionEventsTopic with the session id as
// routing key.
type SessionEvent struct {
	SessionID   string           `json:"session_id"`
	Type        SessionEventType `json:"type"`
	DocumentURI string           `json:"document_uri,omitempty"`
	Text        string           `json:"text,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}
