package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Profile is configuration to start the review summarizer.
type Profile struct {
	// LLM configuration. gemini uses the Gemini API; every other provider
	// speaks the OpenAI-compatible protocol.
	LLMProvider          string  // gemini, openai, deepseek, siliconflow, zai, dashscope, openrouter, ollama
	LLMAPIKey            string  // API key for the provider
	LLMBaseURL           string  // Base URL (optional, has default per provider)
	LLMModel             string  // Model name
	LLMTimeout           int     // Per-request timeout in seconds (default: 120)
	LLMMaxAttempts       int     // Total attempts per generation, including the first (default: 3)
	LLMRetryDelaySeconds float64 // Delay when a rate limit omits one (default: 1)
	LLMRequestsPerSecond float64 // Client-side pacing, 0 disables

	// Summary cache configuration
	SummaryTTL   time.Duration // Lifetime of a generated summary (default: 7 days)
	RedisAddr    string        // When set, summaries are kept in Redis instead of the database
	RedisPrefix  string
	PromptDir    string // Directory holding prompts/summary.yaml (optional)
	SingleFlight bool   // De-duplicate concurrent misses for the same key

	// Other configurations
	Mode        string
	DSN         string
	Driver      string
	Version     string
	Data        string
	MetricsAddr string
}

// Provider default configurations for LLM.
// Used when REVIEWSENSE_AI_LLM_MODEL is not explicitly set.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"gemini": {
		Model: "gemini-2.5-flash-lite",
	},
	"zai": {
		BaseURL: "https://open.bigmodel.cn/api/paas/v4",
		Model:   "glm-4.7",
	},
	"deepseek": {
		BaseURL: "https://api.deepseek.com",
		Model:   "deepseek-chat",
	},
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"siliconflow": {
		BaseURL: "https://api.siliconflow.cn/v1",
		Model:   "Qwen/Qwen2.5-72B-Instruct",
	},
	"dashscope": {
		BaseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1",
		Model:   "qwen-max-latest",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "google/gemini-2.5-flash-lite",
	},
	"ollama": {
		BaseURL: "http://localhost:11434/v1",
		Model:   "llama3.1",
	},
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsAIEnabled returns true if an LLM API key is configured. Ollama runs
// locally and needs no key.
func (p *Profile) IsAIEnabled() bool {
	return p.LLMAPIKey != "" || p.LLMProvider == "ollama"
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvOrDefaultFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvOrDefaultDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables. Fields already
// set (for example from flags) are only overridden by non-empty variables.
func (p *Profile) FromEnv() {
	p.LLMProvider = getEnvOrDefault("REVIEWSENSE_AI_LLM_PROVIDER", orDefault(p.LLMProvider, "gemini"))
	p.LLMAPIKey = getEnvOrDefault("REVIEWSENSE_AI_LLM_API_KEY", p.LLMAPIKey)
	p.LLMBaseURL = getEnvOrDefault("REVIEWSENSE_AI_LLM_BASE_URL", p.LLMBaseURL)
	p.LLMModel = getEnvOrDefault("REVIEWSENSE_AI_LLM_MODEL", p.LLMModel)
	p.LLMTimeout = getEnvOrDefaultInt("REVIEWSENSE_AI_LLM_TIMEOUT_SECONDS", 120)
	p.LLMMaxAttempts = getEnvOrDefaultInt("REVIEWSENSE_AI_LLM_MAX_ATTEMPTS", 3)
	p.LLMRetryDelaySeconds = getEnvOrDefaultFloat("REVIEWSENSE_AI_LLM_RETRY_DELAY_SECONDS", 1)
	p.LLMRequestsPerSecond = getEnvOrDefaultFloat("REVIEWSENSE_AI_LLM_RPS", 0)

	p.SummaryTTL = getEnvOrDefaultDuration("REVIEWSENSE_SUMMARY_TTL", 7*24*time.Hour)
	p.RedisAddr = getEnvOrDefault("REVIEWSENSE_REDIS_ADDR", p.RedisAddr)
	p.RedisPrefix = getEnvOrDefault("REVIEWSENSE_REDIS_PREFIX", orDefault(p.RedisPrefix, "reviewsense"))

	// Unknown providers are usable only with an explicit base URL.
	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok && p.LLMBaseURL == "" {
		slog.Warn("Unknown LLM provider without base URL, using default: gemini", "provider", p.LLMProvider)
		p.LLMProvider = "gemini"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.LLMModel == "" {
			p.LLMModel = defaults.Model
		}
	}
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		absDir, err := filepath.Abs(dataDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Mode == "prod" && p.Data == "" {
		if runtime.GOOS == "windows" {
			p.Data = filepath.Join(os.Getenv("ProgramData"), "reviewsense")
		} else {
			p.Data = "/var/opt/reviewsense"
		}
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", slog.String("data", p.Data), slog.String("error", err.Error()))
				return err
			}
		}
	}
	if p.Data == "" {
		p.Data = "."
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
		return err
	}
	p.Data = dataDir

	switch p.Driver {
	case "", "sqlite":
		p.Driver = "sqlite"
		if p.DSN == "" {
			p.DSN = filepath.Join(dataDir, fmt.Sprintf("reviewsense_%s.db", p.Mode))
		}
	case "postgres":
		if p.DSN == "" {
			return errors.New("dsn required for postgres driver")
		}
	default:
		return errors.Errorf("unsupported driver %q", p.Driver)
	}

	if p.LLMMaxAttempts < 1 {
		return errors.Errorf("llm max attempts must be at least 1, got %d", p.LLMMaxAttempts)
	}
	if p.LLMRetryDelaySeconds <= 0 {
		return errors.Errorf("llm retry delay must be positive, got %v", p.LLMRetryDelaySeconds)
	}
	if p.LLMRequestsPerSecond < 0 {
		return errors.Errorf("llm requests per second must not be negative, got %v", p.LLMRequestsPerSecond)
	}
	if p.SummaryTTL <= 0 {
		return errors.Errorf("summary ttl must be positive, got %s", p.SummaryTTL)
	}

	return nil
}

// RetryDelay returns LLMRetryDelaySeconds as a duration.
func (p *Profile) RetryDelay() time.Duration {
	return time.Duration(p.LLMRetryDelaySeconds * float64(time.Second))
}
