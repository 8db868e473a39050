// Package orchestrator is the high-level entry point: it submits tasks through
// the executor and derives status snapshots through the reporter.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/swarmhub/swarmgate/internal/events"
	"github.com/swarmhub/swarmgate/internal/executor"
	"github.com/swarmhub/swarmgate/internal/metrics"
	"github.com/swarmhub/swarmgate/internal/report"
	"github.com/swarmhub/swarmgate/internal/routing"
)

// TaskRunner executes one task against the routed backend chain.
type TaskRunner interface {
	Execute(ctx context.Context, prompt, taskType string) (*executor.Answer, error)
}

// Publisher emits telemetry events. Nil-safe via the enabled flag.
type Publisher interface {
	PublishAsync(event events.Event)
}

// Orchestrator wires the executor, reporter and telemetry together.
type Orchestrator struct {
	runner    TaskRunner
	reporter  *report.Reporter
	publisher Publisher
	logger    *slog.Logger
}

func New(runner TaskRunner, reporter *report.Reporter, publisher Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		runner:    runner,
		reporter:  reporter,
		publisher: publisher,
		logger:    logger,
	}
}

// SubmitTask routes a prompt to the best-suited backend and returns its
// answer. Failures are always typed: a NoCandidateError means no backend is
// currently available; an ExhaustedRetriesError means every attempted backend
// failed and carries the per-attempt history.
func (o *Orchestrator) SubmitTask(ctx context.Context, prompt, taskType string) (*executor.Answer, error) {
	ans, err := o.runner.Execute(ctx, prompt, taskType)
	if err != nil {
		var nce *routing.NoCandidateError
		var exhausted *executor.ExhaustedRetriesError
		switch {
		case errors.As(err, &nce):
			metrics.TaskCount.WithLabelValues(taskType, "no_candidate").Inc()
			o.logger.Warn("No backend available", "task_type", taskType, "candidates", nce.Candidates)
		case errors.As(err, &exhausted):
			metrics.TaskCount.WithLabelValues(taskType, "exhausted").Inc()
			o.logger.Error("All attempted backends failed", "task_type", taskType, "attempts", len(exhausted.Attempts))
		default:
			metrics.TaskCount.WithLabelValues(taskType, "error").Inc()
			o.logger.Error("Task failed", "task_type", taskType, "error", err)
		}
		if o.publisher != nil {
			o.publisher.PublishAsync(events.TaskFailed(taskType, err.Error()))
		}
		return nil, err
	}

	metrics.TaskCount.WithLabelValues(taskType, "success").Inc()
	o.logger.Info("Task completed",
		"task_type", taskType, "backend", ans.Backend, "duration", ans.Duration)
	if o.publisher != nil {
		o.publisher.PublishAsync(events.TaskCompleted(taskType, ans.Backend, ans.Duration))
	}
	return ans, nil
}

// Status returns the current health and outcome snapshot.
func (o *Orchestrator) Status() report.StatusSnapshot {
	return o.reporter.Snapshot()
}
