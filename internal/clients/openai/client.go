// Package openai wraps the OpenAI chat API as the understanding and
// synthesis provider. Empty model output means "could not determine",
// never "determined to be empty"; callers branch on that.
package openai

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/utils"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Chat roles, re-exported so consumers do not import the SDK.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Client is the OpenAI chat client. The full model handles
// understanding and synthesis; the quick model handles routing verdicts
// and cheap answers.
type Client struct {
	api        *openai.Client
	model      string
	quickModel string
	maxRetries int
	backoff    time.Duration
	log        zerolog.Logger
}

// NewClient creates an OpenAI client.
func NewClient(apiKey, model, quickModel string, log zerolog.Logger) *Client {
	return &Client{
		api:        openai.NewClient(apiKey),
		model:      model,
		quickModel: quickModel,
		maxRetries: 2,
		backoff:    500 * time.Millisecond,
		log:        log.With().Str("client", "openai").Logger(),
	}
}

// Complete runs a chat completion against the full model.
func (c *Client) Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, domain.TokenUsage, error) {
	return c.chat(ctx, c.model, messages, temperature, maxTokens)
}

// CompletePrompt runs a single system+user exchange against the full
// model. The orchestrator's synthesis step uses this shape.
func (c *Client) CompletePrompt(ctx context.Context, system, user string, temperature float32, maxTokens int) (string, domain.TokenUsage, error) {
	return c.chat(ctx, c.model, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, temperature, maxTokens)
}

// QuickCompletion runs a single low-temperature system+user exchange
// against the quick model. Used for routing verdicts and cheap answers.
func (c *Client) QuickCompletion(ctx context.Context, system, user string, maxTokens int) (string, error) {
	content, _, err := c.chat(ctx, c.quickModel, []Message{
		{Role: RoleSystem, Content: system},
		{Role: RoleUser, Content: user},
	}, 0.1, maxTokens)
	return content, err
}

const classifySystemPrompt = `You classify financial queries. Respond with a single
short intent phrase such as "price lookup", "news digest", "comparison",
"buy/sell analysis" or "general question". Respond with the phrase only.`

// Classify extracts the intent of a query. Empty intent means the model
// could not determine one.
func (c *Client) Classify(ctx context.Context, query string, history []string) (string, error) {
	user := query
	if len(history) > 0 {
		user = "Previous queries: " + strings.Join(history, "; ") + "\nCurrent query: " + query
	}

	content, _, err := c.chat(ctx, c.quickModel, []Message{
		{Role: RoleSystem, Content: classifySystemPrompt},
		{Role: RoleUser, Content: user},
	}, 0, 20)
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(content)), nil
}

const extractSystemPrompt = `You extract US stock ticker symbols from financial queries.
Respond with a comma-separated list of uppercase tickers, or NONE if the
query names no listed company. Respond with the list only.`

// ExtractSymbols asks the quick model for the ticker symbols a query
// refers to. An empty slice means none could be determined.
func (c *Client) ExtractSymbols(ctx context.Context, query string, history []string) ([]string, error) {
	user := query
	if len(history) > 0 {
		user = "Previous queries: " + strings.Join(history, "; ") + "\nCurrent query: " + query
	}

	content, _, err := c.chat(ctx, c.quickModel, []Message{
		{Role: RoleSystem, Content: extractSystemPrompt},
		{Role: RoleUser, Content: user},
	}, 0, 50)
	if err != nil {
		return nil, err
	}
	return parseSymbolList(content), nil
}

// chat issues the completion with transient-error retries. Provider
// errors are retried with exponential backoff; context cancellation is
// not retried.
func (c *Client) chat(ctx context.Context, model string, messages []Message, temperature float32, maxTokens int) (string, domain.TokenUsage, error) {
	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<(attempt-1))
			c.log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying completion")
			select {
			case <-ctx.Done():
				return "", domain.TokenUsage{}, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return "", domain.TokenUsage{}, ctx.Err()
			}
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("completion returned no choices")
			continue
		}

		usage := domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
		return resp.Choices[0].Message.Content, usage, nil
	}
	return "", domain.TokenUsage{}, fmt.Errorf("completion failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

var tickerShape = regexp.MustCompile(`^[A-Z]{1,5}$`)

// parseSymbolList parses the model's comma-separated ticker response,
// dropping anything that is not ticker-shaped.
func parseSymbolList(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" || strings.EqualFold(content, "NONE") {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	for _, part := range utils.ParseCSV(content) {
		sym := strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(part), "$"))
		if tickerShape.MatchString(sym) && !seen[sym] {
			seen[sym] = true
			out = append(out, sym)
		}
	}
	return out
}
