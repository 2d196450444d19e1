package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BackoffBase: time.Millisecond, BackoffMultiplier: 2, MaxBackoff: 5 * time.Millisecond}
}

func testOptions(t *testing.T, url string) Options {
	return Options{
		BaseURL: url,
		APIKey:  "secret",
		Model:   "test-model",
		Retry:   fastRetry(),
		Logger:  zaptest.NewLogger(t),
	}
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ProviderSubpathOpenAI, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "1", r.Header.Get("X-Extra"))

		body := decodeBody(t, r)
		assert.Equal(t, "test-model", body["model"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 2)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		parts := messages[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		imageURL := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
		assert.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"))

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"a mug"}}]}`))
	}))
	defer srv.Close()

	opts := testOptions(t, srv.URL)
	opts.Headers = map[string]string{"X-Extra": "1"}
	p := NewOpenAIProvider(opts)
	require.NoError(t, p.ValidateConfig())

	out, err := p.Complete(context.Background(), Request{
		System:    "identify",
		Prompt:    "what is this?",
		Image:     []byte{0x89, 'P', 'N', 'G'},
		ImageMIME: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, "a mug", out)
}

func TestMistralSendsImageAsString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		messages := body["messages"].([]any)
		require.Len(t, messages, 1)
		parts := messages[0].(map[string]any)["content"].([]any)
		_, isString := parts[1].(map[string]any)["image_url"].(string)
		assert.True(t, isString)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	p := NewMistralProvider(testOptions(t, srv.URL))
	out, err := p.Complete(context.Background(), Request{Prompt: "x", Image: []byte("img"), ImageMIME: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, ProviderTypeMistral, p.GetType())
}

func TestAnthropicComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ProviderSubpathAnthropic, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))

		body := decodeBody(t, r)
		assert.Equal(t, "sys", body["system"])
		assert.EqualValues(t, 64, body["max_tokens"])
		content := body["messages"].([]any)[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		source := content[0].(map[string]any)["source"].(map[string]any)
		assert.Equal(t, "image/webp", source["media_type"])
		assert.Equal(t, "aW1n", source["data"])

		w.Write([]byte(`{"role":"assistant","content":[{"type":"text","text":"{\"name\":"},{"type":"tool_use"},{"type":"text","text":"\"mug\"}"}]}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider(testOptions(t, srv.URL))
	out, err := p.Complete(context.Background(), Request{System: "sys", Prompt: "x", Image: []byte("img"), ImageMIME: "image/webp", MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"mug"}`, out)
}

func TestGeminiComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/models/test-model:generateContent"), r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(raw), "what is this?")
		assert.Contains(t, string(raw), "inlineData")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"a lamp"}]}}]}`))
	}))
	defer srv.Close()

	p, err := NewGeminiProvider(testOptions(t, srv.URL))
	require.NoError(t, err)
	out, err := p.Complete(context.Background(), Request{Prompt: "what is this?", Image: []byte("img"), ImageMIME: "image/png"})
	require.NoError(t, err)
	assert.Equal(t, "a lamp", out)
}

func TestGeminiWithoutKey(t *testing.T) {
	p, err := NewGeminiProvider(Options{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	assert.Error(t, p.ValidateConfig())
	_, err = p.Complete(context.Background(), Request{Prompt: "x"})
	assert.True(t, IsFatal(err))
}

func TestRetryOnTransientStatus(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
		wantFatal bool
	}{
		{"recovers after 429", []int{429, 200}, 2, false, false},
		{"recovers after 503", []int{503, 502, 200}, 3, false, false},
		{"gives up after max attempts", []int{500, 500, 500, 200}, 3, true, false},
		{"no retry on 401", []int{401, 200}, 1, true, true},
		{"no retry on 400", []int{400, 200}, 1, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[n-1]
				if status != http.StatusOK {
					http.Error(w, "nope", status)
					return
				}
				w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
			}))
			defer srv.Close()

			p := NewOpenAIProvider(testOptions(t, srv.URL))
			out, err := p.Complete(context.Background(), Request{Prompt: "x"})
			assert.Equal(t, tt.wantCalls, calls.Load())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "done", out)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantFatal, IsFatal(err))
			assert.Equal(t, !tt.wantFatal, IsTransient(err))
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 5, BackoffBase: time.Hour, BackoffMultiplier: 1, MaxBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := withRetry(ctx, cfg, zaptest.NewLogger(t), func(context.Context) (string, error) {
		calls++
		cancel()
		return "", NewTransientError(errors.New("busy"))
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestBackoffIsCapped(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 10, BackoffBase: time.Second, BackoffMultiplier: 10, MaxBackoff: 4 * time.Second}
	for attempt := 1; attempt < 6; attempt++ {
		d := cfg.backoff(attempt)
		assert.LessOrEqual(t, d, 5*time.Second)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
	}
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		p, err := New(name, Options{APIKey: "k"})
		require.NoError(t, err, name)
		assert.Equal(t, ProviderType(name), p.GetType())
		assert.NoError(t, p.ValidateConfig())
	}
	_, err := New("cohere", Options{})
	assert.Error(t, err)

	p, err := New("OpenAI", Options{})
	require.NoError(t, err)
	assert.ErrorContains(t, p.ValidateConfig(), "API key")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain", `{"a": 1}`, `{"a": 1}`},
		{"fenced", "Sure!\n```json\n{\"a\": 1}\n```\nHope that helps.", `{"a": 1}`},
		{"chatty", `The answer is {"a": 1} as requested.`, `{"a": 1}`},
		{"trailing comma", `{"a": [1, 2,], "b": 3,}`, `{"a": [1, 2], "b": 3}`},
		{"comment outside string", "{\n\"url\": \"http://x.y/z\", // link\n\"b\": 1\n}", "{\n\"url\": \"http://x.y/z\",\n\"b\": 1\n}"},
		{"none", "no json here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.input))
		})
	}
}
