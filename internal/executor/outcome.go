package executor

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// OutcomeKind classifies the result of one completion attempt.
type OutcomeKind int

const (
	KindSuccess OutcomeKind = iota
	KindTimeout
	KindConnectionError
	KindBackendError
	KindMalformedResponse
)

func (k OutcomeKind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindTimeout:
		return "timeout"
	case KindConnectionError:
		return "connection_error"
	case KindBackendError:
		return "backend_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

func (k OutcomeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// RequestOutcome records one completion attempt against a backend.
type RequestOutcome struct {
	Backend  string        `json:"backend"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Kind     OutcomeKind   `json:"kind"`

	// Status is the HTTP status code for backend errors, zero otherwise.
	Status int `json:"status,omitempty"`
}

// AttemptFailure is one failed attempt inside an exhausted call.
type AttemptFailure struct {
	Backend string      `json:"backend"`
	Kind    OutcomeKind `json:"kind"`
	Status  int         `json:"status,omitempty"`
}

func (a AttemptFailure) String() string {
	if a.Status != 0 {
		return fmt.Sprintf("%s:%s(%d)", a.Backend, a.Kind, a.Status)
	}
	return fmt.Sprintf("%s:%s", a.Backend, a.Kind)
}

// ExhaustedRetriesError is the terminal per-call failure. It carries the
// ordered per-attempt failures so diagnosis never sees a bare timeout.
type ExhaustedRetriesError struct {
	TaskType string
	Attempts []AttemptFailure
}

func (e *ExhaustedRetriesError) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("all attempted backends failed for task type %q: [%s]",
		e.TaskType, strings.Join(parts, ", "))
}
