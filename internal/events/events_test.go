package events

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmhub/swarmgate/internal/config"
)

// setupTestStream connects to a local Redis; tests are skipped when none is
// available.
func setupTestStream(t *testing.T) *Stream {
	t.Helper()
	cfg := config.EventsConfig{
		Enabled:   true,
		RedisAddr: "localhost:6379",
		Stream:    "swarmgate:test:" + t.Name(),
	}
	s, err := NewStream(cfg, slog.Default())
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return s
}

func TestStream_Publish(t *testing.T) {
	s := setupTestStream(t)
	defer s.Close()

	ctx := context.Background()
	defer s.RawClient().Del(ctx, s.stream)

	event := TaskCompleted("code", "fast", 420*time.Millisecond)
	err := s.Publish(ctx, event)
	require.NoError(t, err)

	entries, err := s.RawClient().XRange(ctx, s.stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "task.completed", entries[0].Values["event_type"])
	assert.Equal(t, "swarmgate", entries[0].Values["source"])
	assert.NotEmpty(t, entries[0].Values["timestamp"])
}

func TestStream_PublishHealthTransition(t *testing.T) {
	s := setupTestStream(t)
	defer s.Close()

	ctx := context.Background()
	defer s.RawClient().Del(ctx, s.stream)

	err := s.Publish(ctx, HealthTransition("fast", "up", "down"))
	require.NoError(t, err)

	entries, err := s.RawClient().XRange(ctx, s.stream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "backend.transition", entries[0].Values["event_type"])
	assert.Contains(t, entries[0].Values["payload"], `"backend":"fast"`)
}

func TestEventBuilders(t *testing.T) {
	failed := TaskFailed("code", "no candidate available")
	assert.Equal(t, "task.failed", failed.EventType)
	assert.Equal(t, "code", failed.Payload["task_type"])

	completed := TaskCompleted("general", "slow", time.Second)
	assert.Equal(t, int64(1000), completed.Payload["duration_ms"])
}
