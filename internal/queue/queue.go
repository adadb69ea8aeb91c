// Package queue carries attendance events from the API to whoever keeps
// derived data up to date.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"faceattend/internal/attendance"
)

// DefaultKey is the Redis list events are pushed to.
const DefaultKey = "attendance:events"

// Message represents work to be processed.
type Message struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

// Queue is the abstraction over different backends.
type Queue interface {
	Publish(ctx context.Context, msg Message) error
	Consume(ctx context.Context) (<-chan Message, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Message
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Message, size)}
}

// Publish enqueues a message.
func (q *InMemory) Publish(ctx context.Context, msg Message) error {
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a simple Redis list-backed queue.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = DefaultKey
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues a message.
func (q *RedisQueue) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, raw).Err()
}

// Consume streams messages using BRPOP.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Message, error) {
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if !errors.Is(err, redis.Nil) {
					slog.Warn("queue pop failed", slog.String("key", q.key), slog.Any("error", err))
					time.Sleep(time.Second)
				}
				continue
			}
			if len(res) != 2 {
				continue
			}
			var msg Message
			if err := json.Unmarshal([]byte(res[1]), &msg); err != nil {
				slog.Warn("dropping malformed message", slog.Any("error", err))
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Publisher adapts a Queue to attendance.Publisher.
type Publisher struct {
	Queue Queue
}

var _ attendance.Publisher = Publisher{}

// Publish encodes evt as a message of type evt.Type.
func (p Publisher) Publish(ctx context.Context, evt attendance.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Queue.Publish(ctx, Message{Type: evt.Type, Body: body})
}

// Decode extracts the event carried by msg.
func Decode(msg Message) (attendance.Event, error) {
	var evt attendance.Event
	if err := json.Unmarshal(msg.Body, &evt); err != nil {
		return attendance.Event{}, fmt.Errorf("decode %s event: %w", msg.Type, err)
	}
	return evt, nil
}

// Handler processes one event.
type Handler func(ctx context.Context, evt attendance.Event) error

// Run consumes q until ctx ends, passing every event to h. Handler errors
// are logged and the loop continues.
func Run(ctx context.Context, q Queue, h Handler) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	for msg := range messages {
		evt, err := Decode(msg)
		if err != nil {
			slog.Warn("skipping message", slog.String("type", msg.Type), slog.Any("error", err))
			continue
		}
		if err := h(ctx, evt); err != nil {
			slog.Error("event handler failed",
				slog.String("type", evt.Type),
				slog.String("user_id", evt.UserID),
				slog.Any("error", err))
		}
	}
	return nil
}
