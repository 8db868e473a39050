// Package routing selects a backend for a task type from an immutable,
// validated preference policy combined with the current health view.
package routing

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/swarmhub/swarmgate/internal/config"
	"github.com/swarmhub/swarmgate/internal/health"
	"github.com/swarmhub/swarmgate/internal/registry"
)

// Policy maps task types to ordered backend preference lists.
// First-listed is most preferred. Immutable after construction.
type Policy struct {
	tasks    map[string][]string
	fallback []string
}

// NewPolicy validates every listed name against the registry. An unknown name
// is a configuration error, not a runtime error.
func NewPolicy(cfg config.RoutingConfig, reg *registry.Registry) (*Policy, error) {
	p := &Policy{
		tasks:    make(map[string][]string, len(cfg.Tasks)),
		fallback: append([]string(nil), cfg.Default...),
	}
	for taskType, names := range cfg.Tasks {
		for _, name := range names {
			if _, err := reg.Get(name); err != nil {
				return nil, fmt.Errorf("policy for task type %s: %w", taskType, err)
			}
		}
		p.tasks[taskType] = append([]string(nil), names...)
	}
	for _, name := range p.fallback {
		if _, err := reg.Get(name); err != nil {
			return nil, fmt.Errorf("default policy: %w", err)
		}
	}
	if len(p.fallback) == 0 {
		return nil, fmt.Errorf("default policy must not be empty")
	}
	return p, nil
}

// Candidates returns the ordered preference list for a task type, falling back
// to the default list for unrecognized types.
func (p *Policy) Candidates(taskType string) []string {
	if names, ok := p.tasks[taskType]; ok {
		return names
	}
	return p.fallback
}

// NoCandidateError reports that every policy candidate for a task type was
// excluded or judged unreachable.
type NoCandidateError struct {
	TaskType   string
	Candidates []string
}

func (e *NoCandidateError) Error() string {
	return fmt.Sprintf("no candidate available for task type %q (candidates: %s)",
		e.TaskType, strings.Join(e.Candidates, ", "))
}

// HealthView is the non-blocking health read consumed by the router.
type HealthView interface {
	Current(name string) health.State
}

// Router picks the most preferred reachable backend for a task type.
type Router struct {
	registry *registry.Registry
	policy   *Policy
	health   HealthView
	logger   *slog.Logger
}

func NewRouter(reg *registry.Registry, policy *Policy, view HealthView, logger *slog.Logger) *Router {
	return &Router{
		registry: reg,
		policy:   policy,
		health:   view,
		logger:   logger,
	}
}

// Select returns the first candidate for taskType that is not excluded and is
// Up. If no candidate is Up, Unknown (never-yet-probed) candidates are tried
// optimistically in policy order. Down and excluded candidates never win.
func (r *Router) Select(taskType string, excluded map[string]bool) (*registry.Backend, error) {
	candidates := r.policy.Candidates(taskType)

	var firstUnknown *registry.Backend
	for _, name := range candidates {
		if excluded[name] {
			continue
		}
		b, err := r.registry.Get(name)
		if err != nil {
			// Validated at load time; unreachable in practice.
			continue
		}
		switch r.health.Current(name) {
		case health.StateUp:
			return b, nil
		case health.StateUnknown:
			if firstUnknown == nil {
				firstUnknown = b
			}
		}
	}

	if firstUnknown != nil {
		r.logger.Debug("No Up candidate, trying unprobed backend",
			"task_type", taskType, "backend", firstUnknown.Name)
		return firstUnknown, nil
	}

	return nil, &NoCandidateError{
		TaskType:   taskType,
		Candidates: append([]string(nil), candidates...),
	}
}
