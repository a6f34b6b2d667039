package reply

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reviewpulse/reviewpulse/internal/review"
	"github.com/reviewpulse/reviewpulse/pkg/config"
	"github.com/reviewpulse/reviewpulse/pkg/resilience"
)

// Client calls an OpenAI-compatible chat-completions endpoint to draft
// reply text. Calls are retried with backoff and gated behind a circuit
// breaker so a degraded upstream cannot stall ingest-facing handlers.
type Client struct {
	cfg     config.ReplyConfig
	http    *http.Client
	breaker *resilience.CircuitBreaker
	retry   resilience.RetryConfig
}

// NewClient builds a Client from the reply configuration.
func NewClient(cfg config.ReplyConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("reply-api", resilience.CircuitBreakerConfig{
			FailureThreshold:    5,
			ResetTimeout:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		}),
		retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   200 * time.Millisecond,
			MaxDelay:       5 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.1,
		},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

const systemPrompt = "You are the owner of a restaurant responding to a customer review. " +
	"Write a short, sincere reply in the requested tone. Do not invent details " +
	"the review does not mention. Respond with the reply text only."

// Complete asks the upstream model for a reply in the given tone.
func (c *Client) Complete(ctx context.Context, r *review.Review, tone string) (string, error) {
	prompt := fmt.Sprintf(
		"Business: %s\nRating: %d/5\nReview: %s\n\nWrite a %s reply to this customer.",
		r.BusinessName, r.Rating, r.ReviewText, tone)

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling chat request: %w", err)
	}

	var reply string
	err = resilience.Retry(ctx, "reply-api", c.retry, func() error {
		return c.breaker.Execute(func() error {
			text, err := c.post(ctx, body)
			if err != nil {
				return err
			}
			reply = text
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("calling reply API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("reply API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding reply response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("reply API returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
