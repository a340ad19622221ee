package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"mendan-go/internal/logger"
)

const (
	defaultClaudeModel  = "claude-sonnet-4-20250514"
	defaultMaxTokens    = 4096
	defaultHTTPTimeout  = 120 * time.Second
	defaultMaxRetryTime = 20 * time.Second
)

// KeyFunc resolves an API key, typically from secret storage.
type KeyFunc func(ctx context.Context) (string, error)

// Claude calls the Anthropic Messages API.
type Claude struct {
	baseURL   string
	model     string
	maxTokens int
	maxRetry  time.Duration
	keyFn     KeyFunc
	client    *http.Client
	log       *logrus.Entry

	mu  sync.Mutex
	api *anthropic.Client
}

// ClaudeOption configures a Claude client.
type ClaudeOption func(*Claude)

// WithBaseURL points the client at another API host.
func WithBaseURL(url string) ClaudeOption {
	return func(c *Claude) { c.baseURL = url }
}

// WithMaxTokens sets the response token budget. Default: 4096.
func WithMaxTokens(n int) ClaudeOption {
	return func(c *Claude) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithMaxRetryTime bounds the total time spent retrying 429 and 5xx replies.
// Zero disables retries.
func WithMaxRetryTime(d time.Duration) ClaudeOption {
	return func(c *Claude) { c.maxRetry = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) ClaudeOption {
	return func(c *Claude) { c.client = hc }
}

func NewClaude(model string, keyFn KeyFunc, log *logrus.Entry, opts ...ClaudeOption) *Claude {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultClaudeModel
	}
	c := &Claude{
		model:     model,
		maxTokens: defaultMaxTokens,
		maxRetry:  defaultMaxRetryTime,
		keyFn:     keyFn,
		client:    &http.Client{Timeout: defaultHTTPTimeout},
		log:       logger.OrDiscard(log).WithField("component", "claude"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Claude) Model() string { return c.model }

// Generate sends the prompt as a single user message and returns the
// concatenated text blocks of the reply.
func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	api, err := c.messages(ctx)
	if err != nil {
		return "", err
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	var msg *anthropic.Message
	op := func() error {
		m, err := api.Messages.New(ctx, params)
		if err == nil {
			msg = m
			return nil
		}
		var apiErr *anthropic.Error
		switch {
		case errors.As(err, &apiErr):
			if apiErr.StatusCode != http.StatusTooManyRequests && apiErr.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			c.log.WithField("http_status", apiErr.StatusCode).Warn("llm request will be retried")
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		default:
			c.log.WithError(err).Warn("llm request failed")
		}
		return err
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if c.maxRetry > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = c.maxRetry
		b = eb
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	c.log.WithFields(logrus.Fields{
		"stop_reason":   msg.StopReason,
		"output_tokens": msg.Usage.OutputTokens,
	}).Debug("llm response received")

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type != "" && block.Type != "text" {
			continue
		}
		sb.WriteString(block.Text)
	}
	if sb.Len() == 0 {
		return "", errors.New("llm returned empty response")
	}
	return sb.String(), nil
}

// messages builds the SDK client on first use, once the key is resolved.
// A failed key lookup is not cached.
func (c *Claude) messages(ctx context.Context) (*anthropic.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.api != nil {
		return c.api, nil
	}
	if c.keyFn == nil {
		return nil, errors.New("claude api key is not configured")
	}
	key, err := c.keyFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve claude api key: %w", err)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("claude api key is empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithHTTPClient(c.client),
		// retries go through backoff above
		option.WithMaxRetries(0),
	}
	if c.baseURL != "" {
		opts = append(opts, option.WithBaseURL(c.baseURL))
	}
	api := anthropic.NewClient(opts...)
	c.api = &api
	return c.api, nil
}
