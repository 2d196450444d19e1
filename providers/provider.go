// Package providers implements LLM clients used to identify items from
// text and photos.
package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ProviderType string

const maxResponseSize = 4 << 20

// Request is a single prompt, optionally with one image.
type Request struct {
	System    string
	Prompt    string
	Image     []byte
	ImageMIME string
	MaxTokens int
}

func (r Request) maxTokens() int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return 512
}

func (r Request) dataURL() string {
	return "data:" + r.ImageMIME + ";base64," + base64.StdEncoding.EncodeToString(r.Image)
}

// Provider defines the interface all LLM providers must implement
type Provider interface {
	GetType() ProviderType
	GetName() string

	// Complete sends the request and returns the text of the answer
	Complete(ctx context.Context, req Request) (string, error)

	// ValidateConfig checks if provider configuration is valid
	ValidateConfig() error
}

// Options configures a provider. Empty BaseURL and Model use the
// provider defaults.
type Options struct {
	BaseURL        string
	APIKey         string
	Model          string
	Headers        map[string]string
	Timeout        time.Duration
	RequestsPerSec float64 // 0 means unlimited
	Retry          RetryConfig
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

// base carries what every provider shares: HTTP client, headers,
// rate limiter and retry policy.
type base struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	headers map[string]string
	client  *http.Client
	limiter *rate.Limiter
	retry   RetryConfig
	logger  *zap.Logger
}

func newBase(name, defaultURL, defaultModel string, opts Options) base {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultURL
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	return base{
		name:    name,
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		model:   opts.Model,
		headers: opts.Headers,
		client:  opts.HTTPClient,
		limiter: rate.NewLimiter(limit, 1),
		retry:   opts.Retry,
		logger:  opts.Logger.Named(strings.ToLower(name)),
	}
}

func (b *base) validate() error {
	if b.baseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	if b.apiKey == "" {
		return fmt.Errorf("API key is required")
	}
	if b.model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// call waits for the rate limiter and runs fn with retries.
func (b *base) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	return withRetry(ctx, b.retry, b.logger, func(ctx context.Context) (string, error) {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit wait: %w", err)
		}
		return fn(ctx)
	})
}

// postJSON sends body to path and decodes the JSON answer into out.
func (b *base) postJSON(ctx context.Context, path string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return NewFatalError(fmt.Errorf("build request body: %w", err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	for k, v := range b.headers {
		req.Header.Set(k, v)
	}

	b.logger.Debug("sending request", zap.String("model", b.model), zap.String("path", path))
	resp, err := b.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return NewTransientError(fmt.Errorf("read response body: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(b.name, resp.StatusCode, respBody)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return NewFatalError(fmt.Errorf("decode %s response: %w", b.name, err))
	}
	return nil
}

// New builds the provider registered under name.
func New(name string, opts Options) (Provider, error) {
	switch ProviderType(strings.ToLower(name)) {
	case ProviderTypeOpenAI:
		return NewOpenAIProvider(opts), nil
	case ProviderTypeMistral:
		return NewMistralProvider(opts), nil
	case ProviderTypeAnthropic:
		return NewAnthropicProvider(opts), nil
	case ProviderTypeGemini:
		return NewGeminiProvider(opts)
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// Names lists the registered provider names.
func Names() []string {
	return []string{
		string(ProviderTypeOpenAI),
		string(ProviderTypeMistral),
		string(ProviderTypeAnthropic),
		string(ProviderTypeGemini),
	}
}
