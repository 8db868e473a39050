// Package report aggregates prober state and recent executor outcomes into
// read-only status snapshots.
package report

import (
	"sync"
	"time"

	"github.com/swarmhub/swarmgate/internal/executor"
	"github.com/swarmhub/swarmgate/internal/health"
	"github.com/swarmhub/swarmgate/internal/registry"
)

// History is a bounded ring of recent request outcomes, shared across all
// backends. Appends from the executor and reads from the reporter are safe
// under concurrent access.
type History struct {
	mu       sync.Mutex
	buf      []executor.RequestOutcome
	capacity int
	head     int
	size     int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		buf:      make([]executor.RequestOutcome, capacity),
		capacity: capacity,
	}
}

// Record appends an outcome, evicting the oldest when full.
func (h *History) Record(outcome executor.RequestOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf[(h.head+h.size)%h.capacity] = outcome
	if h.size < h.capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % h.capacity
	}
}

// Recent returns the retained outcomes, oldest first.
func (h *History) Recent() []executor.RequestOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]executor.RequestOutcome, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.head+i)%h.capacity])
	}
	return out
}

// BackendStatus combines one backend's identity, health record and recent
// outcome counts.
type BackendStatus struct {
	Name      string         `json:"name"`
	BaseURL   string         `json:"base_url"`
	Model     string         `json:"model"`
	TaskTypes []string       `json:"task_types"`
	State     string         `json:"state"`
	Health    health.Record  `json:"health"`
	Outcomes  map[string]int `json:"outcomes"`
}

// StatusSnapshot is the full orchestrator status at one point in time.
type StatusSnapshot struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Backends    []BackendStatus `json:"backends"`
}

// HealthSource is the prober read consumed by the reporter.
type HealthSource interface {
	Snapshot() map[string]health.Record
}

// Reporter derives status snapshots. It holds no mutable state of its own.
type Reporter struct {
	registry *registry.Registry
	health   HealthSource
	history  *History
}

func NewReporter(reg *registry.Registry, source HealthSource, history *History) *Reporter {
	return &Reporter{
		registry: reg,
		health:   source,
		history:  history,
	}
}

// Snapshot combines, per backend, the health record and counts of recent
// outcomes by kind. Backends appear in registration order.
func (r *Reporter) Snapshot() StatusSnapshot {
	records := r.health.Snapshot()
	recent := r.history.Recent()

	counts := make(map[string]map[string]int)
	for _, o := range recent {
		if counts[o.Backend] == nil {
			counts[o.Backend] = make(map[string]int)
		}
		counts[o.Backend][o.Kind.String()]++
	}

	snapshot := StatusSnapshot{GeneratedAt: time.Now()}
	for _, b := range r.registry.List() {
		rec := records[b.Name]
		outcomes := counts[b.Name]
		if outcomes == nil {
			outcomes = map[string]int{}
		}
		snapshot.Backends = append(snapshot.Backends, BackendStatus{
			Name:      b.Name,
			BaseURL:   b.BaseURL,
			Model:     b.Model,
			TaskTypes: b.TaskTypes,
			State:     rec.State.String(),
			Health:    rec,
			Outcomes:  outcomes,
		})
	}
	return snapshot
}
