package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/swarmhub/swarmgate/internal/registry"
)

// ChatRequest is the OpenAI-compatible completion payload.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// ChatMessage is one chat turn.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatResponse is the OpenAI-compatible completion response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
}

// ChatChoice is one completion choice.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// Client issues chat completion requests against OpenAI-compatible backends.
// All backends share one wire contract; per-call timeouts come from the
// backend override or the configured default.
type Client struct {
	httpClient  *http.Client
	temperature float64
}

func NewClient(temperature float64) *Client {
	return &Client{
		// Timeouts are enforced per request via context.
		httpClient:  &http.Client{},
		temperature: temperature,
	}
}

// Complete performs one completion attempt and classifies the result. The
// returned outcome always has Backend, Start, Duration and Kind populated;
// content is non-empty only for KindSuccess.
func (c *Client) Complete(ctx context.Context, b *registry.Backend, prompt string, timeout time.Duration) (string, RequestOutcome) {
	outcome := RequestOutcome{Backend: b.Name, Start: time.Now()}

	payload := ChatRequest{
		Model:       b.Model,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		outcome.Kind = KindConnectionError
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := fmt.Sprintf("%s/chat/completions", b.BaseURL)
	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		outcome.Kind = KindConnectionError
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome.Kind = classifyTransportError(err)
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome.Kind = KindBackendError
		outcome.Status = resp.StatusCode
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}

	var chatResp ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		outcome.Kind = KindMalformedResponse
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		outcome.Kind = KindMalformedResponse
		outcome.Duration = time.Since(outcome.Start)
		return "", outcome
	}

	outcome.Kind = KindSuccess
	outcome.Duration = time.Since(outcome.Start)
	return chatResp.Choices[0].Message.Content, outcome
}

func classifyTransportError(err error) OutcomeKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnectionError
}
