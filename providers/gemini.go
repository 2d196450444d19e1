package providers

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

const (
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderBaseURLGemini string       = "https://generativelanguage.googleapis.com/"
	defaultModelGemini    string       = "gemini-2.0-flash"
)

// GeminiProvider uses the Google GenAI SDK against the Gemini API.
type GeminiProvider struct {
	base
	sdk *genai.Client
}

// NewGeminiProvider creates the SDK client. Without an API key the
// provider is still returned so ValidateConfig can report it.
func NewGeminiProvider(opts Options) (*GeminiProvider, error) {
	p := &GeminiProvider{base: newBase("Gemini", ProviderBaseURLGemini, defaultModelGemini, opts)}
	if p.apiKey == "" {
		return p, nil
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      p.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.base.client,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL + "/", Headers: p.httpHeaders()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	p.sdk = client
	return p, nil
}

func (p *GeminiProvider) httpHeaders() map[string][]string {
	if len(p.headers) == 0 {
		return nil
	}
	h := make(map[string][]string, len(p.headers))
	for k, v := range p.headers {
		h[k] = []string{v}
	}
	return h
}

func (p *GeminiProvider) GetName() string {
	return "Gemini"
}

func (p *GeminiProvider) GetType() ProviderType {
	return ProviderTypeGemini
}

func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	if p.sdk == nil {
		return "", NewFatalError(fmt.Errorf("gemini client is not configured"))
	}
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Image, req.ImageMIME))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	cfg := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.maxTokens())}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	return p.call(ctx, func(ctx context.Context) (string, error) {
		resp, err := p.sdk.Models.GenerateContent(ctx, p.model, contents, cfg)
		if err != nil {
			return "", classifyGenAIError(err)
		}
		text := resp.Text()
		if text == "" {
			return "", NewFatalError(fmt.Errorf("no text in gemini response"))
		}
		return text, nil
	})
}

func classifyGenAIError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus("Gemini", apiErr.Code, []byte(apiErr.Message))
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return NewTransientError(fmt.Errorf("gemini request failed: %w", err))
}

func (p *GeminiProvider) ValidateConfig() error {
	return p.validate()
}
