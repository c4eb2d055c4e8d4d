package summary

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/hrygo/reviewsense/ai/configloader"
	"github.com/hrygo/reviewsense/ai/core/llm"
)

//go:embed prompts/summary.yaml
var embeddedPrompts embed.FS

const promptFile = "prompts/summary.yaml"

// PromptConfig holds the review summary prompt and its generation
// parameters.
type PromptConfig struct {
	Name            string `yaml:"name"`
	Version         string `yaml:"version"`
	ReviewsTemplate string `yaml:"reviews_template"`
	Params          struct {
		Model           string   `yaml:"model"`
		Temperature     *float32 `yaml:"temperature"`
		MaxOutputTokens int      `yaml:"max_output_tokens"`
	} `yaml:"params"`

	tmpl *template.Template
}

// ReviewsPromptData holds data for the reviews template.
type ReviewsPromptData struct {
	ProductID int64
	Count     int
	Reviews   string
}

// LoadPromptConfig loads prompts/summary.yaml from dir, falling back to
// the embedded copy when dir is empty or has no such file.
func LoadPromptConfig(dir string) (*PromptConfig, error) {
	loader := configloader.NewLoader(dir, configloader.WithFallbackFS(embeddedPrompts))

	var cfg PromptConfig
	if err := loader.Load(promptFile, &cfg); err != nil {
		return nil, fmt.Errorf("load summary prompts config: %w", err)
	}

	tmpl, err := template.New("reviews").Option("missingkey=error").Parse(cfg.ReviewsTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse reviews template: %w", err)
	}
	cfg.tmpl = tmpl

	return &cfg, nil
}

// BuildReviewsPrompt renders the reviews template.
func (c *PromptConfig) BuildReviewsPrompt(data *ReviewsPromptData) (string, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute reviews template: %w", err)
	}
	return buf.String(), nil
}

// GenerateOptions returns the generation overrides set in the params
// block. Unset params leave the client defaults in place.
func (c *PromptConfig) GenerateOptions() []llm.GenerateOption {
	var opts []llm.GenerateOption
	if c.Params.Model != "" {
		opts = append(opts, llm.WithModel(c.Params.Model))
	}
	if c.Params.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*c.Params.Temperature))
	}
	if c.Params.MaxOutputTokens > 0 {
		opts = append(opts, llm.WithMaxOutputTokens(c.Params.MaxOutputTokens))
	}
	return opts
}
