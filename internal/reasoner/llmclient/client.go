// Package llmclient implements a minimal OpenAI-compatible
// chat-completions HTTP client. No LLM SDK appears anywhere in this
// module's reference corpus, so this is deliberately built on
// net/http and encoding/json rather than a vendored third-party
// client; see DESIGN.md for the full justification. The Reasoner only
// ever depends on the Client interface below, so a fake implementation
// is a one-line substitution in tests.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Request is the structured classification request sent to the LLM.
type Request struct {
	Prompt string
	Schema string // JSON schema text describing the expected response shape
}

// Response is the raw decoded reply. The Reasoner is responsible for
// validating/clamping its fields; this package only guarantees valid
// JSON was returned.
type Response struct {
	Classification string   `json:"classification"`
	Confidence     float64  `json:"confidence"`
	Explanation    string   `json:"explanation"`
	Evidence       []string `json:"evidence"`
}

// Client is the narrow interface the Reasoner depends on. Treat the
// LLM as an external function f(context) -> response with well-defined
// failure modes — a fake implementation of Client must be substitutable
// in tests without touching the network.
type Client interface {
	Classify(ctx context.Context, req Request) (Response, error)
}

// Options configures an HTTPClient.
type Options struct {
	BaseURL string // e.g. "https://api.openai.com/v1"
	APIKey  string
	Model   string
	Timeout time.Duration // default 10s, per spec.md's llm_call_timeout_sec
}

// HTTPClient talks to an OpenAI-compatible /chat/completions endpoint.
type HTTPClient struct {
	opts Options
	http *http.Client
}

// New builds an HTTPClient. A zero Timeout is replaced with the
// documented 10s default.
func New(opts Options) *HTTPClient {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &HTTPClient{
		opts: opts,
		http: &http.Client{Timeout: opts.Timeout},
	}
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat responseFmt   `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatCompletion struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// ContentError wraps a failure to parse the model's own reply content
// as the expected JSON shape — distinct from a TransportError so the
// Reasoner can apply spec.md §4.4/§7's different dedup-state handling
// for each.
type ContentError struct{ Err error }

func (e *ContentError) Error() string { return "llm content: " + e.Err.Error() }
func (e *ContentError) Unwrap() error { return e.Err }

// TransportError wraps a network/timeout/non-2xx failure reaching the
// LLM endpoint at all.
type TransportError struct{ Err error }

func (e *TransportError) Error() string { return "llm transport: " + e.Err.Error() }
func (e *TransportError) Unwrap() error { return e.Err }

// Classify sends req as a chat-completion call and decodes the
// model's reply content as a Response. Callers are expected to apply
// their own context timeout in addition to the client's configured
// Timeout; Classify always bounds the call by whichever is shorter.
func (c *HTTPClient) Classify(ctx context.Context, req Request) (Response, error) {
	body := chatRequest{
		Model: c.opts.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a blockchain security classifier. Respond only with JSON matching the provided schema: " + req.Schema},
			{Role: "user", Content: req.Prompt},
		},
		ResponseFormat: responseFmt{Type: "json_object"},
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("encode llm request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return Response{}, fmt.Errorf("build llm request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.opts.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return Response{}, &TransportError{Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	var completion chatCompletion
	if err := json.Unmarshal(raw, &completion); err != nil {
		return Response{}, &TransportError{Err: fmt.Errorf("malformed envelope: %w", err)}
	}
	if len(completion.Choices) == 0 {
		return Response{}, &TransportError{Err: fmt.Errorf("no choices returned")}
	}

	var out Response
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &out); err != nil {
		return Response{}, &ContentError{Err: err}
	}
	return out, nil
}
