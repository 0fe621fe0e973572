// Package perplexity provides a client for the Perplexity search API,
// the search-augmented data provider. Every call waits on the shared
// rate limiter first; the search API is never called with unbounded
// concurrency.
package perplexity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.perplexity.ai"
	defaultModel   = "sonar"
)

// SearchOptions tune one search call. Zero values fall back to
// sensible defaults.
type SearchOptions struct {
	MaxTokens     int
	Timeout       time.Duration
	RecencyFilter string   // "hour", "day", "week", "month"
	DomainFilter  []string // Restrict sources to these domains
}

// SearchResult is the answer plus its source citations.
type SearchResult struct {
	Answer  string
	Sources []string
}

// Client is the Perplexity API client.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewClient creates a Perplexity client. The limiter is shared across
// every consumer of the search API and must not be nil.
func NewClient(apiKey string, limiter *rate.Limiter, log zerolog.Logger) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		model:   defaultModel,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: limiter,
		log:     log.With().Str("client", "perplexity").Logger(),
	}
}

type chatRequest struct {
	Model               string        `json:"model"`
	Messages            []chatMessage `json:"messages"`
	MaxTokens           int           `json:"max_tokens,omitempty"`
	SearchRecencyFilter string        `json:"search_recency_filter,omitempty"`
	SearchDomainFilter  []string      `json:"search_domain_filter,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Search runs a search-augmented completion. Blocks on the shared rate
// limiter before issuing the request; a cancelled context while queued
// returns without calling the API.
func (c *Client) Search(ctx context.Context, prompt string, opts SearchOptions) (*SearchResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: "Be precise and concise. Answer with current financial data."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:           opts.MaxTokens,
		SearchRecencyFilter: opts.RecencyFilter,
		SearchDomainFilter:  opts.DomainFilter,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return nil, fmt.Errorf("search returned no answer")
	}

	c.log.Debug().
		Int("sources", len(out.Citations)).
		Msg("Search completed")

	return &SearchResult{
		Answer:  out.Choices[0].Message.Content,
		Sources: out.Citations,
	}, nil
}
