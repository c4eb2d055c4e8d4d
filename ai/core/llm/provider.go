package llm

import (
	"context"
)

const (
	// DefaultModel is used when neither the client config nor the call
	// names a model.
	DefaultModel = "gemini-2.5-flash-lite"

	// DefaultTemperature keeps summaries close to the source text.
	DefaultTemperature float32 = 0.2

	// DefaultMaxOutputTokens bounds the length of a generated summary.
	DefaultMaxOutputTokens = 300
)

// GenerateRequest is a single text-generation call. It is not retained
// after the call completes.
type GenerateRequest struct {
	Prompt          string
	Model           string
	Temperature     float32
	MaxOutputTokens int
}

// Provider is an external text-generation endpoint.
//
// Implementations report quota breaches as *errs.Error with
// RateLimited set, attaching RetryInfo when the provider sent retry
// guidance. Any other error is treated as terminal by Client.
type Provider interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Generate issues exactly one call and returns the generated text.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)
}

// GenerateOption overrides a generation parameter for one call.
type GenerateOption func(*GenerateRequest)

// WithModel selects the model for one call.
func WithModel(model string) GenerateOption {
	return func(r *GenerateRequest) {
		if model != "" {
			r.Model = model
		}
	}
}

// WithTemperature sets the sampling temperature, which must be in [0,1].
func WithTemperature(temperature float32) GenerateOption {
	return func(r *GenerateRequest) {
		r.Temperature = temperature
	}
}

// WithMaxOutputTokens caps the generated length; must be positive.
func WithMaxOutputTokens(n int) GenerateOption {
	return func(r *GenerateRequest) {
		r.MaxOutputTokens = n
	}
}
