// Package health maintains an eventually-consistent reachability view of all
// registered backends, refreshed by independent per-backend probe loops.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/swarmhub/swarmgate/internal/metrics"
	"github.com/swarmhub/swarmgate/internal/registry"
)

// State is the probed reachability of a backend.
type State int

const (
	StateUnknown State = iota // no probe has completed yet
	StateUp
	StateDown
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	default:
		return "unknown"
	}
}

// Record tracks the probe history of one backend. Written only by that
// backend's probe loop; read through Prober snapshots.
type Record struct {
	State               State     `json:"state"`
	LastProbe           time.Time `json:"last_probe"`
	LastTransition      time.Time `json:"last_transition"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// TransitionFunc is invoked after a backend changes state.
type TransitionFunc func(backend string, from, to State)

// Options configures the prober schedule.
type Options struct {
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold int
}

// Prober polls each backend's models endpoint on a fixed interval and keeps
// the last computed state for non-blocking reads.
type Prober struct {
	interval  time.Duration
	threshold int
	client    *http.Client
	backends  []*registry.Backend
	logger    *slog.Logger

	mu      sync.RWMutex
	records map[string]*Record

	onTransition TransitionFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProber(reg *registry.Registry, opts Options, logger *slog.Logger) *Prober {
	p := &Prober{
		interval:  opts.Interval,
		threshold: opts.FailureThreshold,
		client:    &http.Client{Timeout: opts.Timeout},
		backends:  reg.List(),
		logger:    logger,
		records:   make(map[string]*Record),
	}
	for _, b := range p.backends {
		p.records[b.Name] = &Record{State: StateUnknown}
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	return p
}

// OnTransition registers a state transition hook. Must be called before Start.
func (p *Prober) OnTransition(fn TransitionFunc) {
	p.onTransition = fn
}

// Start launches one probe loop per backend. A slow or dead backend never
// delays probing of the others.
func (p *Prober) Start() {
	for _, b := range p.backends {
		p.wg.Add(1)
		go p.probeLoop(b)
	}
}

// Stop cancels all probe loops and waits for them to exit.
func (p *Prober) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Prober) probeLoop(b *registry.Backend) {
	defer p.wg.Done()

	// First probe runs immediately so backends leave Unknown quickly.
	p.probe(b)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.probe(b)
		}
	}
}

func (p *Prober) probe(b *registry.Backend) {
	err := p.check(b)
	p.observe(b.Name, err)
}

// check issues a single GET to the backend's models listing endpoint.
// Only a 2xx response counts as reachable.
func (p *Prober) check(b *registry.Backend) error {
	req, err := http.NewRequestWithContext(p.ctx, http.MethodGet, b.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create probe request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("probe returned status %d", resp.StatusCode)
	}
	return nil
}

// observe applies one probe result to the backend's record. A single success
// marks Up immediately; failures mark Down only at the configured threshold.
func (p *Prober) observe(name string, probeErr error) {
	p.mu.Lock()
	rec, ok := p.records[name]
	if !ok {
		p.mu.Unlock()
		return
	}

	now := time.Now()
	rec.LastProbe = now
	prev := rec.State

	if probeErr == nil {
		rec.ConsecutiveFailures = 0
		rec.State = StateUp
	} else {
		rec.ConsecutiveFailures++
		// An Up backend below the threshold keeps its state (debounce).
		// A never-probed backend goes Down on its first failure: once a
		// probe completes, the state is always Up or Down.
		if rec.ConsecutiveFailures >= p.threshold || rec.State == StateUnknown {
			rec.State = StateDown
		}
	}

	transitioned := rec.State != prev
	if transitioned {
		rec.LastTransition = now
	}
	to := rec.State
	p.mu.Unlock()

	if probeErr != nil {
		p.logger.Debug("Probe failed", "backend", name, "error", probeErr)
	}
	if transitioned {
		p.logger.Info("Backend state changed", "backend", name, "from", prev.String(), "to", to.String())
		metrics.ProbeTransitions.WithLabelValues(name, to.String()).Inc()
		if p.onTransition != nil {
			p.onTransition(name, prev, to)
		}
	}
	if to == StateUp {
		metrics.BackendUp.WithLabelValues(name).Set(1)
	} else {
		metrics.BackendUp.WithLabelValues(name).Set(0)
	}
}

// Current returns the last computed state for a backend. Never blocks on
// network I/O; unregistered names read as Unknown.
func (p *Prober) Current(name string) State {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, ok := p.records[name]
	if !ok {
		return StateUnknown
	}
	return rec.State
}

// Snapshot returns a copy of every backend's record.
func (p *Prober) Snapshot() map[string]Record {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]Record, len(p.records))
	for name, rec := range p.records {
		out[name] = *rec
	}
	return out
}
