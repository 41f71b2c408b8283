package message_broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/pdfchat/domain"
	"github.com/satriahrh/cocoa-fruit/pdfchat/utils/log"
)

const topicBuffer = 100

var ErrBrokerClosed = errors.New("message broker is closed")

type subscriptionKey struct {
	topic      string
	routingKey string
}

func (k subscriptionKey) String() string { return k.topic + ":" + k.routingKey }

// Stats counts traffic since the broker was created.
type Stats struct {
	Subscriptions int
	Published     int
	Dropped       int
}

// ChannelMessageBroker is an in-process MessageBroker. Every topic and
// routing key pair has at most one buffered channel, shared by whoever
// subscribed to it. Messages nobody listens to are dropped.
type ChannelMessageBroker struct {
	mu        sync.RWMutex
	subs      map[subscriptionKey]chan domain.Message
	closed    bool
	published int
	dropped   int
}

func NewChannelMessageBroker() *ChannelMessageBroker {
	return &ChannelMessageBroker{
		subs: make(map[subscriptionKey]chan domain.Message),
	}
}

// Publish never blocks. It fails when the subscriber is too slow to drain
// its buffer.
func (b *ChannelMessageBroker) Publish(ctx context.Context, topic string, routingKey string, message []byte) error {
	key := subscriptionKey{topic, routingKey}

	// Write lock: the counters change and Unsubscribe must not close the
	// channel mid-send.
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBrokerClosed
	}

	channel, ok := b.subs[key]
	if !ok {
		b.dropped++
		log.WithCtx(ctx).Debug("No subscriber, message dropped", zap.Stringer("key", key))
		return nil
	}

	select {
	case channel <- domain.Message{Topic: topic, RoutingKey: routingKey, Payload: message, Timestamp: time.Now()}:
		b.published++
		log.WithCtx(ctx).Debug("Message published",
			zap.Stringer("key", key),
			zap.Int("payload_size", len(message)))
		return nil
	default:
		b.dropped++
		return fmt.Errorf("subscriber of %s is full", key)
	}
}

func (b *ChannelMessageBroker) Subscribe(ctx context.Context, topic string, routingKey string) (<-chan domain.Message, error) {
	key := subscriptionKey{topic, routingKey}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBrokerClosed
	}

	channel, ok := b.subs[key]
	if !ok {
		channel = make(chan domain.Message, topicBuffer)
		b.subs[key] = channel
	}

	log.WithCtx(ctx).Debug("Subscribed", zap.Stringer("key", key))
	return channel, nil
}

func (b *ChannelMessageBroker) Unsubscribe(topic string, routingKey string) {
	key := subscriptionKey{topic, routingKey}

	b.mu.Lock()
	defer b.mu.Unlock()

	if channel, ok := b.subs[key]; ok {
		close(channel)
		delete(b.subs, key)
	}
}

// Close ends every subscription. It is safe to call more than once.
func (b *ChannelMessageBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for key, channel := range b.subs {
		close(channel)
		delete(b.subs, key)
	}

	log.With().Info("Message broker closed",
		zap.Int("published", b.published),
		zap.Int("dropped", b.dropped))
	return nil
}

func (b *ChannelMessageBroker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Subscriptions: len(b.subs),
		Published:     b.published,
		Dropped:       b.dropped,
	}
}
