package queue

import (
	"context"
	"sync"

	"github.com/flowmatic/conductor/common/logger"
)

// Queue decouples HTTP submission from the engine run loop.
// The memory implementation suffices for a single process; a broker-backed
// implementation can replace it behind the same interface.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes messages
type MessageHandler func(ctx context.Context, key string, value []byte) error

// MemoryQueue is an in-memory topic queue
type MemoryQueue struct {
	topics map[string]chan *message
	mu     sync.RWMutex
	log    *logger.Logger
}

type message struct {
	key   string
	value []byte
}

// NewMemoryQueue creates a new in-memory queue
func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		topics: make(map[string]chan *message),
		log:    log,
	}
}

func (q *MemoryQueue) channel(topic string) chan *message {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch, exists := q.topics[topic]
	if !exists {
		ch = make(chan *message, 1024)
		q.topics[topic] = ch
	}
	return ch
}

// Publish enqueues a message; blocks only when the topic buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, value []byte) error {
	select {
	case q.channel(topic) <- &message{key: key, value: value}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe consumes a topic on a background goroutine until ctx ends.
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	ch := q.channel(topic)

	q.log.Info("subscribing to topic", "topic", topic)

	go func() {
		for {
			select {
			case <-ctx.Done():
				q.log.Info("subscription cancelled", "topic", topic)
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg.key, msg.value); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", msg.key, "error", err)
				}
			}
		}
	}()

	return nil
}

// Close closes all topic channels
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for topic, ch := range q.topics {
		close(ch)
		q.log.Info("closed topic", "topic", topic)
	}
	q.topics = make(map[string]chan *message)

	return nil
}
