package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

const (
	ProviderTypeAnthropic    ProviderType = "anthropic"
	ProviderSubpathAnthropic string       = "/v1/messages"
	ProviderBaseURLAnthropic string       = "https://api.anthropic.com"
	defaultModelAnthropic    string       = "claude-3-5-haiku-latest"
	anthropicVersion         string       = "2023-06-01"
)

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string           `json:"role"`
	Content []map[string]any `json:"content"`
}

// Anthropic response format:
//
//	{"content": [{"type": "text", "text": "..."}], "role": "assistant"}
type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type AnthropicProvider struct {
	base
}

func NewAnthropicProvider(opts Options) *AnthropicProvider {
	return &AnthropicProvider{base: newBase("Anthropic", ProviderBaseURLAnthropic, defaultModelAnthropic, opts)}
}

func (p *AnthropicProvider) GetName() string {
	return "Anthropic"
}

func (p *AnthropicProvider) GetType() ProviderType {
	return ProviderTypeAnthropic
}

func buildAnthropicRequest(model string, req Request) anthropicRequest {
	var content []map[string]any
	if len(req.Image) > 0 {
		content = append(content, map[string]any{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": req.ImageMIME,
				"data":       base64.StdEncoding.EncodeToString(req.Image),
			},
		})
	}
	content = append(content, map[string]any{"type": "text", "text": req.Prompt})
	return anthropicRequest{
		Model:     model,
		MaxTokens: req.maxTokens(),
		System:    req.System,
		Messages:  []anthropicMessage{{Role: "user", Content: content}},
	}
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := buildAnthropicRequest(p.model, req)
	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
	return p.call(ctx, func(ctx context.Context) (string, error) {
		var resp anthropicResponse
		if err := p.postJSON(ctx, ProviderSubpathAnthropic, headers, body, &resp); err != nil {
			return "", err
		}
		var result strings.Builder
		for _, item := range resp.Content {
			if item.Type == "text" {
				result.WriteString(item.Text)
			}
		}
		if result.Len() == 0 {
			return "", NewFatalError(fmt.Errorf("no text content in response"))
		}
		return result.String(), nil
	})
}

func (p *AnthropicProvider) ValidateConfig() error {
	return p.validate()
}
