package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/hrygo/reviewsense/ai/core/errs"
)

// OpenAIProvider calls any OpenAI-compatible chat completion endpoint.
type OpenAIProvider struct {
	client   *openai.Client
	provider string
	timeout  time.Duration
}

// NewOpenAIProvider creates a provider for an OpenAI-compatible endpoint.
func NewOpenAIProvider(provider, apiKey, baseURL string, timeout time.Duration) *OpenAIProvider {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = newHTTPClient(&retryAfterTransport{base: newTransport()})

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		provider: provider,
		timeout:  timeout,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string {
	return p.provider
}

// Generate implements Provider.
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	// Add timeout protection using configured timeout
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	slog.Debug("LLM: Chat request",
		"provider", p.provider,
		"model", req.Model,
		"max_tokens", req.MaxOutputTokens,
	)

	hint := &retryHint{}
	ctx = context.WithValue(ctx, retryHintKey{}, hint)

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxOutputTokens,
		Temperature: req.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
	})
	if err != nil {
		slog.Error("LLM: Chat request failed", "provider", p.provider, "error", err)
		return "", classifyOpenAIError(err, hint)
	}

	if len(resp.Choices) == 0 {
		slog.Warn("LLM: Empty response from LLM", "provider", p.provider)
		return "", fmt.Errorf("empty response from LLM")
	}

	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error, hint *retryHint) error {
	if openAIStatusCode(err) != http.StatusTooManyRequests {
		return fmt.Errorf("LLM chat failed: %w", err)
	}

	var info *errs.RetryInfo
	if raw, ok := hint.value(); ok {
		info = &errs.RetryInfo{Delay: parseRetryAfter(raw, time.Now())}
	}
	return errs.RateLimited("openai.generate", err, info)
}

func openAIStatusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// parseRetryAfter reads a Retry-After header in either delta-seconds or
// HTTP-date form. Unparseable values yield zero (delay omitted).
func parseRetryAfter(raw string, now time.Time) time.Duration {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(raw); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

type retryHintKey struct{}

// retryHint carries the Retry-After header of a 429 response from the
// transport back to Generate; go-openai does not expose headers on its
// error types.
type retryHint struct {
	mu     sync.Mutex
	header string
	seen   bool
}

func (h *retryHint) record(header string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.header = header
	h.seen = true
}

func (h *retryHint) value() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.header, h.seen
}

type retryAfterTransport struct {
	base http.RoundTripper
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		header := resp.Header.Get("Retry-After")
		if hint, ok := req.Context().Value(retryHintKey{}).(*retryHint); ok && header != "" {
			hint.record(header)
		}
	}
	return resp, nil
}
