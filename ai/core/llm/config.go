package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config represents LLM provider configuration.
type Config struct {
	Provider string // gemini, openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama
	Model    string // gemini-2.5-flash-lite, deepseek-chat, gpt-4o
	APIKey   string
	BaseURL  string
	Timeout  int // Request timeout in seconds (default: 120)
}

// openAICompatibleBaseURLs holds the default endpoint of every
// OpenAI-compatible provider. Used when BaseURL is not set.
var openAICompatibleBaseURLs = map[string]string{
	// --- Domestic Providers (China) ---
	"deepseek":    "https://api.deepseek.com",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"zai":         "https://open.bigmodel.cn/api/paas/v4",
	"dashscope":   "https://dashscope.aliyuncs.com/compatible-mode/v1",

	// --- International Providers ---
	"openai":     "https://api.openai.com/v1",
	"openrouter": "https://openrouter.ai/api/v1",

	// --- Local Providers ---
	"ollama": "http://localhost:11434/v1",
}

// NewProvider creates the Provider selected by cfg.Provider.
func NewProvider(ctx context.Context, cfg *Config) (Provider, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 // Default 120 seconds
	}

	switch cfg.Provider {
	case "gemini", "":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.BaseURL, time.Duration(timeout)*time.Second)
	default:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			var ok bool
			baseURL, ok = openAICompatibleBaseURLs[cfg.Provider]
			if !ok {
				return nil, fmt.Errorf("unsupported LLM provider %q: base URL required", cfg.Provider)
			}
		} else if _, ok := openAICompatibleBaseURLs[cfg.Provider]; !ok {
			// Generic fallback for any other OpenAI-compatible provider
			slog.Info("Using generic OpenAI-compatible provider", "provider", cfg.Provider)
		}
		return NewOpenAIProvider(cfg.Provider, cfg.APIKey, baseURL, time.Duration(timeout)*time.Second), nil
	}
}

// newHTTPClient has no overall timeout; providers bound each call with
// their configured timeout instead.
func newHTTPClient(transport http.RoundTripper) *http.Client {
	if transport == nil {
		transport = newTransport()
	}
	return &http.Client{
		Transport: transport,
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
