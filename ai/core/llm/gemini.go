package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/hrygo/reviewsense/ai/core/errs"
)

const retryInfoType = "type.googleapis.com/google.rpc.RetryInfo"

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	client  *genai.Client
	timeout time.Duration
}

// NewGeminiProvider creates a Gemini provider. baseURL is optional.
func NewGeminiProvider(ctx context.Context, apiKey, baseURL string, timeout time.Duration) (*GeminiProvider, error) {
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient(nil),
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &GeminiProvider{client: client, timeout: timeout}, nil
}

// Name implements Provider.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate implements Provider.
func (p *GeminiProvider) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	slog.Debug("LLM: Gemini generate request",
		"model", req.Model,
		"prompt_length", len(req.Prompt),
		"max_output_tokens", req.MaxOutputTokens,
	)

	resp, err := p.client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Temperature),
		MaxOutputTokens: int32(req.MaxOutputTokens),
	})
	if err != nil {
		return "", classifyGeminiError(err)
	}

	return resp.Text(), nil
}

// classifyGeminiError turns a 429 into a rate-limit error, carrying the
// google.rpc.RetryInfo detail when the API sent one.
func classifyGeminiError(err error) error {
	apiErr, ok := asGeminiAPIError(err)
	if !ok || apiErr.Code != http.StatusTooManyRequests {
		return fmt.Errorf("gemini generate: %w", err)
	}

	return errs.RateLimited("gemini.generate", err, geminiRetryInfo(apiErr.Details))
}

func asGeminiAPIError(err error) (genai.APIError, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return *apiErrPtr, true
	}
	return genai.APIError{}, false
}

func geminiRetryInfo(details []map[string]any) *errs.RetryInfo {
	for _, detail := range details {
		typ, _ := detail["@type"].(string)
		if typ != retryInfoType {
			continue
		}

		info := &errs.RetryInfo{}
		if raw, ok := detail["retryDelay"].(string); ok {
			if d, err := time.ParseDuration(strings.TrimSpace(raw)); err == nil && d > 0 {
				info.Delay = d
			}
		}
		return info
	}
	return nil
}
