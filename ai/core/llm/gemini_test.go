package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hrygo/reviewsense/ai/core/errs"
)

func newGeminiTestServer(t *testing.T, handler http.HandlerFunc) *GeminiProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := NewGeminiProvider(context.Background(), "test-key", srv.URL, 5*time.Second)
	require.NoError(t, err)
	return p
}

const geminiSuccessBody = `{"candidates": [{"content": {"role": "model", "parts": [{"text": "done"}]}, "finishReason": "STOP"}]}`

func TestGeminiProvider_Generate_Success(t *testing.T) {
	p := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(geminiSuccessBody))
	})

	text, err := p.Generate(context.Background(), &GenerateRequest{
		Prompt:          "summarize",
		Model:           "gemini-2.0-flash",
		Temperature:     0.2,
		MaxOutputTokens: 300,
	})

	require.NoError(t, err)
	assert.Equal(t, "done", text)
}

func TestGeminiProvider_WithClient_RetriesOnRetryInfo(t *testing.T) {
	calls := 0
	p := newGeminiTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.True(t, strings.HasSuffix(r.URL.Path, ":generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED",
				"details": [{"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "2s"}]}}`))
			return
		}
		_, _ = w.Write([]byte(geminiSuccessBody))
	})
	s := &sleepRecorder{}
	c := NewClient(p, DefaultClientConfig(), WithSleep(s.sleep))

	text, err := c.Generate(context.Background(), "summarize")

	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, s.delays)
}

func TestGeminiProvider_WithClient_PermissionDeniedIsTerminal(t *testing.T) {
	calls := 0
	p := newGeminiTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "bad key", "status": "PERMISSION_DENIED"}}`))
	})
	s := &sleepRecorder{}
	c := NewClient(p, DefaultClientConfig(), WithSleep(s.sleep))

	_, err := c.Generate(context.Background(), "summarize")

	require.Error(t, err)
	assert.Equal(t, errs.KindGenerationFailed, errs.KindOf(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, s.delays)
}

func TestClassifyGeminiError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRateLimit bool
		wantInfo      bool
		wantDelay     time.Duration
	}{
		{
			name: "429 with retry delay",
			err: genai.APIError{
				Code:   429,
				Status: "RESOURCE_EXHAUSTED",
				Details: []map[string]any{
					{"@type": "type.googleapis.com/google.rpc.QuotaFailure"},
					{"@type": retryInfoType, "retryDelay": "33s"},
				},
			},
			wantRateLimit: true,
			wantInfo:      true,
			wantDelay:     33 * time.Second,
		},
		{
			name: "429 with retry info but no delay",
			err: genai.APIError{
				Code:    429,
				Details: []map[string]any{{"@type": retryInfoType}},
			},
			wantRateLimit: true,
			wantInfo:      true,
		},
		{
			name:          "429 without retry info",
			err:           genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"},
			wantRateLimit: true,
		},
		{
			name: "wrapped pointer 429",
			err: fmt.Errorf("call: %w", &genai.APIError{
				Code:    429,
				Details: []map[string]any{{"@type": retryInfoType, "retryDelay": "1.5s"}},
			}),
			wantRateLimit: true,
			wantInfo:      true,
			wantDelay:     1500 * time.Millisecond,
		},
		{
			name: "permission denied",
			err:  genai.APIError{Code: 403, Status: "PERMISSION_DENIED"},
		},
		{
			name: "transport error",
			err:  errors.New("dial tcp: connection refused"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyGeminiError(tt.err)

			require.Error(t, got)
			if want, ok := asGeminiAPIError(tt.err); ok {
				kept, ok := asGeminiAPIError(got)
				require.True(t, ok, "API error lost in %v", got)
				assert.Equal(t, want.Code, kept.Code)
				assert.Equal(t, want.Status, kept.Status)
			} else {
				assert.ErrorIs(t, got, tt.err)
			}

			e, ok := errs.AsError(got)
			if !tt.wantRateLimit {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, errs.KindRateLimited, e.Kind)
			assert.Equal(t, tt.wantInfo, e.RetryInfo != nil)
			if tt.wantInfo {
				assert.Equal(t, tt.wantDelay, e.RetryInfo.Delay)
			}
		})
	}
}
