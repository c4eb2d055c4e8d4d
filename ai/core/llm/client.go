package llm

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hrygo/reviewsense/ai/core/errs"
)

const opGenerate = "llm.generate"

// Attempt outcomes reported to a Recorder.
const (
	OutcomeSuccess     = "success"
	OutcomeRateLimited = "rate_limited"
	OutcomeFailed      = "failed"
)

// RetryConfig is the rate-limit retry policy.
type RetryConfig struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int

	// DefaultRetryDelay is used when the provider sends retry info
	// without a delay.
	DefaultRetryDelay time.Duration
}

// DefaultRetryConfig returns {MaxAttempts: 3, DefaultRetryDelay: 1s}.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		DefaultRetryDelay: time.Second,
	}
}

// ClientConfig holds the defaults and policy of a Client.
type ClientConfig struct {
	Model           string
	// Temperature nil means DefaultTemperature; a pointer to 0 is kept.
	Temperature     *float32
	MaxOutputTokens int
	Retry           RetryConfig

	// RequestsPerSecond paces outbound attempts. Zero disables pacing.
	RequestsPerSecond float64
}

// DefaultClientConfig returns the documented defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Model:           DefaultModel,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Retry:           DefaultRetryConfig(),
	}
}

// Recorder observes generation attempts.
type Recorder interface {
	ObserveAttempt(provider, outcome string, latency time.Duration)
	ObserveRetryDelay(provider string, delay time.Duration)
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRecorder attaches an attempt recorder.
func WithRecorder(r Recorder) ClientOption {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithSleep replaces the delay function used between attempts.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ClientOption {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Client produces generated text for a prompt, retrying provider
// rate-limit responses that carry retry info. It holds no per-call state
// and is safe for concurrent use.
type Client struct {
	provider Provider
	cfg      ClientConfig
	limiter  *rate.Limiter
	recorder Recorder
	sleep    func(ctx context.Context, d time.Duration) error
	log      *slog.Logger
}

// NewClient creates a Client around provider. Empty Model, Temperature,
// MaxOutputTokens and Retry fields take their defaults.
func NewClient(provider Provider, cfg ClientConfig, opts ...ClientOption) *Client {
	defaults := DefaultClientConfig()
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Temperature == nil {
		temperature := DefaultTemperature
		cfg.Temperature = &temperature
	}
	if cfg.MaxOutputTokens <= 0 {
		cfg.MaxOutputTokens = defaults.MaxOutputTokens
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaults.Retry.MaxAttempts
	}
	if cfg.Retry.DefaultRetryDelay <= 0 {
		cfg.Retry.DefaultRetryDelay = defaults.Retry.DefaultRetryDelay
	}

	c := &Client{
		provider: provider,
		cfg:      cfg,
		sleep:    sleepContext,
		log:      slog.Default(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "llm", "provider", provider.Name())

	return c
}

// Generate returns the text generated for prompt.
//
// Failures: errs.KindInvalidInput for an empty prompt or bad parameters
// (no network call), errs.KindGenerationFailed for a terminal provider
// error or after MaxAttempts rate-limited attempts, wrapping the last
// provider error.
func (c *Client) Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errs.InvalidInput(opGenerate, "prompt is empty")
	}

	req := &GenerateRequest{
		Prompt:          prompt,
		Model:           c.cfg.Model,
		Temperature:     *c.cfg.Temperature,
		MaxOutputTokens: c.cfg.MaxOutputTokens,
	}
	for _, opt := range opts {
		opt(req)
	}
	if req.Temperature < 0 || req.Temperature > 1 {
		return "", errs.InvalidInput(opGenerate, "temperature must be in [0,1]")
	}
	if req.MaxOutputTokens <= 0 {
		return "", errs.InvalidInput(opGenerate, "max output tokens must be positive")
	}
	if req.MaxOutputTokens > math.MaxInt32 {
		return "", errs.InvalidInput(opGenerate, "max output tokens exceeds the int32 range providers accept")
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.Retry.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", errs.GenerationFailed(opGenerate, err)
			}
		}

		start := time.Now()
		text, err := c.provider.Generate(ctx, req)
		if err == nil {
			c.observeAttempt(OutcomeSuccess, time.Since(start))
			return text, nil
		}
		lastErr = err

		e, ok := errs.AsError(err)
		if !ok || !e.Retryable() {
			c.observeAttempt(OutcomeFailed, time.Since(start))
			return "", errs.GenerationFailed(opGenerate, err)
		}
		c.observeAttempt(OutcomeRateLimited, time.Since(start))

		if attempt == c.cfg.Retry.MaxAttempts-1 {
			break
		}

		delay := c.cfg.Retry.DefaultRetryDelay
		if d, ok := e.SuggestedDelay(); ok {
			delay = d
		}
		c.log.Warn("Rate limit hit, retrying",
			"attempt", attempt+1,
			"max_attempts", c.cfg.Retry.MaxAttempts,
			"delay", delay,
		)
		if c.recorder != nil {
			c.recorder.ObserveRetryDelay(c.provider.Name(), delay)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return "", errs.GenerationFailed(opGenerate, err)
		}
	}

	c.log.Error("LLM: rate limit retries exhausted",
		"attempts", c.cfg.Retry.MaxAttempts,
		"error", lastErr,
	)
	return "", errs.GenerationFailed(opGenerate, lastErr)
}

func (c *Client) observeAttempt(outcome string, latency time.Duration) {
	if c.recorder != nil {
		c.recorder.ObserveAttempt(c.provider.Name(), outcome, latency)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
