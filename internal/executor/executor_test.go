package executor

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/swarmhub/swarmgate/internal/registry"
	"github.com/swarmhub/swarmgate/internal/routing"
)

// orderedSelector returns backends in declared order, honoring the excluded set.
type orderedSelector struct {
	backends []*registry.Backend
}

func (s *orderedSelector) Select(taskType string, excluded map[string]bool) (*registry.Backend, error) {
	names := make([]string, 0, len(s.backends))
	for _, b := range s.backends {
		names = append(names, b.Name)
		if !excluded[b.Name] {
			return b, nil
		}
	}
	return nil, &routing.NoCandidateError{TaskType: taskType, Candidates: names}
}

// failingSelector always reports no candidate.
type failingSelector struct{}

func (failingSelector) Select(taskType string, excluded map[string]bool) (*registry.Backend, error) {
	return nil, &routing.NoCandidateError{TaskType: taskType}
}

type memoryRecorder struct {
	outcomes []RequestOutcome
}

func (r *memoryRecorder) Record(o RequestOutcome) {
	r.outcomes = append(r.outcomes, o)
}

func successServer(t *testing.T, content string, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","model":"coder-7b","choices":[{"index":0,"message":{"role":"assistant","content":"` + content + `"},"finish_reason":"stop"}]}`))
	}))
}

func testBackend(name, baseURL string) *registry.Backend {
	return &registry.Backend{Name: name, BaseURL: baseURL, Model: "coder-7b", TaskTypes: []string{"code"}}
}

func testOptions() Options {
	return Options{MaxAttempts: 3, RequestTimeout: time.Second, Temperature: 0.2}
}

func TestExecuteFirstAttemptSuccess(t *testing.T) {
	var fastHits, slowHits atomic.Int64
	fast := successServer(t, "fast answer", &fastHits)
	defer fast.Close()
	slow := successServer(t, "slow answer", &slowHits)
	defer slow.Close()

	sel := &orderedSelector{backends: []*registry.Backend{
		testBackend("fast", fast.URL),
		testBackend("slow", slow.URL),
	}}
	rec := &memoryRecorder{}
	e := New(sel, rec, testOptions(), slog.Default())

	ans, err := e.Execute(context.Background(), "write a loop", "code")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if ans.Content != "fast answer" || ans.Backend != "fast" {
		t.Errorf("Expected fast answer from fast, got %q from %s", ans.Content, ans.Backend)
	}
	if slowHits.Load() != 0 {
		t.Error("Second backend was consulted despite first-attempt success")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0].Kind != KindSuccess {
		t.Errorf("Expected one success outcome, got %v", rec.outcomes)
	}
}

func TestExecuteFallbackAfterTimeout(t *testing.T) {
	// Scenario: fast times out, slow succeeds, maxAttempts=2.
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer fast.Close()
	slow := successServer(t, "slow answer", nil)
	defer slow.Close()

	sel := &orderedSelector{backends: []*registry.Backend{
		testBackend("fast", fast.URL),
		testBackend("slow", slow.URL),
	}}
	rec := &memoryRecorder{}
	opts := Options{MaxAttempts: 2, RequestTimeout: 50 * time.Millisecond}
	e := New(sel, rec, opts, slog.Default())

	ans, err := e.Execute(context.Background(), "write a loop", "code")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if ans.Backend != "slow" || ans.Content != "slow answer" {
		t.Errorf("Expected slow answer, got %q from %s", ans.Content, ans.Backend)
	}
	if len(rec.outcomes) != 2 {
		t.Fatalf("Expected exactly 2 recorded outcomes, got %d", len(rec.outcomes))
	}
	if rec.outcomes[0].Backend != "fast" || rec.outcomes[0].Kind != KindTimeout {
		t.Errorf("Expected fast:timeout first, got %s:%s", rec.outcomes[0].Backend, rec.outcomes[0].Kind)
	}
	if rec.outcomes[1].Backend != "slow" || rec.outcomes[1].Kind != KindSuccess {
		t.Errorf("Expected slow:success second, got %s:%s", rec.outcomes[1].Backend, rec.outcomes[1].Kind)
	}
}

func TestExecuteExhaustedRetries(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer bad.Close()
	worse := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer worse.Close()

	sel := &orderedSelector{backends: []*registry.Backend{
		testBackend("bad", bad.URL),
		testBackend("worse", worse.URL),
	}}
	rec := &memoryRecorder{}
	e := New(sel, rec, testOptions(), slog.Default())

	_, err := e.Execute(context.Background(), "write a loop", "code")
	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedRetriesError, got %v", err)
	}
	if len(exhausted.Attempts) != 2 {
		t.Fatalf("Expected 2 attempt failures, got %d", len(exhausted.Attempts))
	}
	if exhausted.Attempts[0].Kind != KindBackendError || exhausted.Attempts[0].Status != http.StatusServiceUnavailable {
		t.Errorf("Expected backend_error(503) first, got %v", exhausted.Attempts[0])
	}
	if exhausted.Attempts[1].Kind != KindMalformedResponse {
		t.Errorf("Expected malformed_response second, got %v", exhausted.Attempts[1])
	}
}

func TestExecuteNeverRetriesSameBackend(t *testing.T) {
	var hits atomic.Int64
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer bad.Close()

	sel := &orderedSelector{backends: []*registry.Backend{testBackend("bad", bad.URL)}}
	rec := &memoryRecorder{}
	e := New(sel, rec, testOptions(), slog.Default())

	_, err := e.Execute(context.Background(), "write a loop", "code")
	var exhausted *ExhaustedRetriesError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Expected ExhaustedRetriesError, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected exactly one attempt against the lone backend, got %d", hits.Load())
	}
}

func TestExecuteNoCandidateNoNetworkCall(t *testing.T) {
	// Scenario: empty candidate set surfaces immediately, before any call.
	rec := &memoryRecorder{}
	e := New(failingSelector{}, rec, testOptions(), slog.Default())

	_, err := e.Execute(context.Background(), "write a loop", "code")
	var nce *routing.NoCandidateError
	if !errors.As(err, &nce) {
		t.Fatalf("Expected NoCandidateError, got %v", err)
	}
	if len(rec.outcomes) != 0 {
		t.Errorf("Expected no recorded outcomes, got %d", len(rec.outcomes))
	}
}

func TestCompleteConnectionError(t *testing.T) {
	c := NewClient(0)
	b := testBackend("dead", "http://127.0.0.1:1")
	_, outcome := c.Complete(context.Background(), b, "hello", time.Second)
	if outcome.Kind != KindConnectionError {
		t.Errorf("Expected connection_error, got %s", outcome.Kind)
	}
}

func TestCompleteEmptyChoicesIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c1","model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewClient(0)
	_, outcome := c.Complete(context.Background(), testBackend("b", srv.URL), "hello", time.Second)
	if outcome.Kind != KindMalformedResponse {
		t.Errorf("Expected malformed_response, got %s", outcome.Kind)
	}
}

func TestCompleteUsesBackendTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	b := testBackend("slowpoke", srv.URL)
	b.RequestTimeout = 20 * time.Millisecond

	sel := &orderedSelector{backends: []*registry.Backend{b}}
	rec := &memoryRecorder{}
	e := New(sel, rec, Options{MaxAttempts: 1, RequestTimeout: 5 * time.Second}, slog.Default())

	start := time.Now()
	_, err := e.Execute(context.Background(), "hello", "code")
	if err == nil {
		t.Fatal("Expected failure")
	}
	if time.Since(start) > time.Second {
		t.Error("Backend timeout override was not applied")
	}
	if rec.outcomes[0].Kind != KindTimeout {
		t.Errorf("Expected timeout, got %s", rec.outcomes[0].Kind)
	}
}
