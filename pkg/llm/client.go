// Package llm talks to an OpenAI-compatible chat completions endpoint.
//
// Requests are shaped per model capability before sending: models without a
// system role get the system text folded into the user message, models that
// reject temperature get none, reasoning models get a reasoning_effort knob.
// A 429 surfaces immediately as a RateLimitedError so the caller can decide;
// other failures are retried with exponential backoff.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/prsentry/prsentry/pkg/errs"
	"github.com/prsentry/prsentry/pkg/tokens"
)

const (
	defaultAPIBase = "https://api.openai.com/v1"
	// maxRetries bounds the transient-error retry loop; rate limits are never
	// retried here.
	maxRetries = 2
)

// backoffUnit is the base for the exponential retry backoff. Overridden in
// tests.
var backoffUnit = time.Second

// Client issues chat completions against one endpoint.
type Client struct {
	apiBase         string
	apiKey          string
	httpClient      *http.Client
	seed            int
	reasoningEffort string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default endpoint (proxy, local
// server, or an OpenAI-compatible gateway).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = base
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithSeed sets a generation seed; negative means unset.
func WithSeed(seed int) Option {
	return func(c *Client) { c.seed = seed }
}

// WithReasoningEffort sets the effort knob sent to reasoning models.
func WithReasoningEffort(effort string) Option {
	return func(c *Client) { c.reasoningEffort = effort }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given API key.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiBase:    defaultAPIBase,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		seed:       -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatCompletion sends one shaped completion request, retrying transient
// failures. A 429 returns a RateLimitedError without retrying.
func (c *Client) ChatCompletion(ctx context.Context, req Request) (ChatResponse, error) {
	tracer := otel.Tracer("prsentry/llm")
	ctx, span := tracer.Start(ctx, "llm.chat_completion")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", req.Model))

	payload := c.shapeRequest(req)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt+1)) * backoffUnit
			slog.Warn("Retrying chat completion",
				"model", req.Model, "attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.send(ctx, payload)
		if err == nil {
			span.SetAttributes(attribute.String("llm.finish_reason", string(resp.FinishReason)))
			return resp, nil
		}
		if errs.KindOf(err) == errs.KindRateLimited {
			return ChatResponse{}, err
		}
		lastErr = err
	}
	return ChatResponse{}, errs.Wrap(errs.KindAIHandler,
		fmt.Sprintf("chat completion failed after %d retries", maxRetries), lastErr)
}

// shapeRequest applies the model's capability profile to the request.
func (c *Client) shapeRequest(req Request) chatRequest {
	caps := tokens.Capabilities(req.Model)

	out := chatRequest{Model: req.Model}

	userContent := any(req.User)
	if len(req.ImageURLs) > 0 && caps.SupportsImages {
		parts := []contentPart{{Type: "text", Text: req.User}}
		for _, u := range req.ImageURLs {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u}})
		}
		userContent = parts
	}

	if caps.SupportsSystemMessage {
		if req.System != "" {
			out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
		}
		out.Messages = append(out.Messages, chatMessage{Role: "user", Content: userContent})
	} else {
		combined := req.User
		if req.System != "" {
			combined = req.System + "\n\n" + req.User
		}
		out.Messages = []chatMessage{{Role: "user", Content: combined}}
	}

	if caps.SupportsTemperature {
		temp := req.Temperature
		out.Temperature = &temp
	}
	if caps.SupportsReasoningEffort && c.reasoningEffort != "" {
		out.ReasoningEffort = c.reasoningEffort
	}
	if c.seed >= 0 {
		seed := c.seed
		out.Seed = &seed
	}
	return out
}

func (c *Client) send(ctx context.Context, payload chatRequest) (ChatResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return ChatResponse{}, errs.Wrap(errs.KindJSON, "marshaling chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return ChatResponse{}, errs.Wrap(errs.KindHTTP, "building chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ChatResponse{}, errs.Wrap(errs.KindHTTP, "sending chat request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return ChatResponse{}, &errs.RateLimitedError{RetryAfter: retryAfter(resp)}
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ChatResponse{}, errs.Newf(errs.KindAIHandler,
			"chat completion returned status %d: %s", resp.StatusCode, string(raw))
	}

	var decoded chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ChatResponse{}, errs.Wrap(errs.KindJSON, "decoding chat response", err)
	}
	if decoded.Error != nil {
		return ChatResponse{}, errs.Newf(errs.KindAIHandler, "endpoint error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return ChatResponse{}, errs.New(errs.KindAIHandler, "no choices in chat response")
	}

	choice := decoded.Choices[0]
	return ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: parseFinishReason(choice.FinishReason),
		Usage:        decoded.Usage,
	}, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
