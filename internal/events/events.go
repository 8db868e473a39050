// Package events publishes orchestrator telemetry to a Redis Stream so
// external collaborators (dashboards, swarm memory) can consume it. The core
// never depends on delivery; publishing is fire-and-forget.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swarmhub/swarmgate/internal/config"
)

// Event is one telemetry record.
type Event struct {
	EventType string                 `json:"event_type"`
	Payload   map[string]interface{} `json:"payload"`
	Timestamp string                 `json:"timestamp"`
	Source    string                 `json:"source,omitempty"`
}

// Stream publishes events to a Redis Stream via XADD.
type Stream struct {
	rdb    *redis.Client
	stream string
	logger *slog.Logger
}

// NewStream connects to Redis and validates the connection.
func NewStream(cfg config.EventsConfig, logger *slog.Logger) (*Stream, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Stream{rdb: rdb, stream: cfg.Stream, logger: logger}, nil
}

// Publish appends one event to the stream.
func (s *Stream) Publish(ctx context.Context, event Event) error {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if event.Source == "" {
		event.Source = "swarmgate"
	}

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"event_type": event.EventType,
			"payload":    string(payload),
			"timestamp":  event.Timestamp,
			"source":     event.Source,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd failed: %w", err)
	}
	return nil
}

// PublishAsync publishes without blocking the caller; failures are logged.
func (s *Stream) PublishAsync(event Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Publish(ctx, event); err != nil {
			s.logger.Warn("Event publish failed", "event_type", event.EventType, "error", err)
		}
	}()
}

// Close releases the Redis connection.
func (s *Stream) Close() error {
	return s.rdb.Close()
}

// RawClient exposes the underlying client, mainly for tests.
func (s *Stream) RawClient() *redis.Client {
	return s.rdb
}

// TaskCompleted builds a task completion event.
func TaskCompleted(taskType, backend string, duration time.Duration) Event {
	return Event{
		EventType: "task.completed",
		Payload: map[string]interface{}{
			"task_type":   taskType,
			"backend":     backend,
			"duration_ms": duration.Milliseconds(),
		},
	}
}

// TaskFailed builds a task failure event.
func TaskFailed(taskType, reason string) Event {
	return Event{
		EventType: "task.failed",
		Payload: map[string]interface{}{
			"task_type": taskType,
			"reason":    reason,
		},
	}
}

// HealthTransition builds a backend state change event.
func HealthTransition(backend, from, to string) Event {
	return Event{
		EventType: "backend.transition",
		Payload: map[string]interface{}{
			"backend": backend,
			"from":    from,
			"to":      to,
		},
	}
}
