// Package executor issues completion calls against router-selected backends,
// classifies every outcome, and walks the fallback chain on failure.
package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/swarmhub/swarmgate/internal/metrics"
	"github.com/swarmhub/swarmgate/internal/registry"
)

// Selector yields the next candidate backend for a task type.
type Selector interface {
	Select(taskType string, excluded map[string]bool) (*registry.Backend, error)
}

// Recorder receives every attempt outcome, success or failure.
type Recorder interface {
	Record(outcome RequestOutcome)
}

// Answer is a successful completion.
type Answer struct {
	Content  string        `json:"content"`
	Backend  string        `json:"backend"`
	Duration time.Duration `json:"duration"`
}

// Options configures the executor.
type Options struct {
	MaxAttempts    int
	RequestTimeout time.Duration
	Temperature    float64
}

// Executor runs the attempt loop: one candidate at a time, never the same
// backend twice within a call.
type Executor struct {
	router         Selector
	client         *Client
	recorder       Recorder
	maxAttempts    int
	defaultTimeout time.Duration
	logger         *slog.Logger
}

func New(router Selector, recorder Recorder, opts Options, logger *slog.Logger) *Executor {
	return &Executor{
		router:         router,
		client:         NewClient(opts.Temperature),
		recorder:       recorder,
		maxAttempts:    opts.MaxAttempts,
		defaultTimeout: opts.RequestTimeout,
		logger:         logger,
	}
}

// Execute routes the prompt to up to maxAttempts backends in policy order.
// The first success returns immediately. Per-attempt failures are recorded
// and recovered locally; only exhaustion or an empty candidate set surface.
func (e *Executor) Execute(ctx context.Context, prompt, taskType string) (*Answer, error) {
	excluded := make(map[string]bool, e.maxAttempts)
	var failures []AttemptFailure

	for attempt := 0; attempt < e.maxAttempts; attempt++ {
		b, err := e.router.Select(taskType, excluded)
		if err != nil {
			if len(failures) > 0 {
				// Candidates ran out mid-call: report what was tried.
				return nil, &ExhaustedRetriesError{TaskType: taskType, Attempts: failures}
			}
			return nil, err
		}

		timeout := b.RequestTimeout
		if timeout == 0 {
			timeout = e.defaultTimeout
		}

		content, outcome := e.client.Complete(ctx, b, prompt, timeout)
		e.recorder.Record(outcome)
		metrics.AttemptCount.WithLabelValues(b.Name, outcome.Kind.String()).Inc()
		metrics.CompletionLatency.WithLabelValues(b.Name).Observe(outcome.Duration.Seconds())

		if outcome.Kind == KindSuccess {
			return &Answer{Content: content, Backend: b.Name, Duration: outcome.Duration}, nil
		}

		e.logger.Warn("Attempt failed",
			"backend", b.Name, "task_type", taskType,
			"kind", outcome.Kind.String(), "status", outcome.Status,
			"duration", outcome.Duration)
		excluded[b.Name] = true
		failures = append(failures, AttemptFailure{Backend: b.Name, Kind: outcome.Kind, Status: outcome.Status})
	}

	return nil, &ExhaustedRetriesError{TaskType: taskType, Attempts: failures}
}
