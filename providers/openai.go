package providers

import (
	"context"
	"fmt"
)

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderSubpathOpenAI string       = "/v1/chat/completions"
	ProviderBaseURLOpenAI string       = "https://api.openai.com"
	defaultModelOpenAI    string       = "gpt-4o-mini"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// buildChatRequest creates an OpenAI-style chat completion body. Images
// are sent as a data URL; imageURLObject selects OpenAI's
// {"url": ...} wrapper over Mistral's bare string.
func buildChatRequest(model string, req Request, imageURLObject bool) chatRequest {
	var messages []chatMessage
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	if len(req.Image) == 0 {
		messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})
	} else {
		var image any = req.dataURL()
		if imageURLObject {
			image = map[string]string{"url": req.dataURL()}
		}
		messages = append(messages, chatMessage{Role: "user", Content: []map[string]any{
			{"type": "text", "text": req.Prompt},
			{"type": "image_url", "image_url": image},
		}})
	}
	return chatRequest{Model: model, Messages: messages, MaxTokens: req.maxTokens()}
}

func (r *chatResponse) text() (string, error) {
	if len(r.Choices) == 0 {
		return "", NewFatalError(fmt.Errorf("no choices in response"))
	}
	return r.Choices[0].Message.Content, nil
}

type OpenAIProvider struct {
	base
}

func NewOpenAIProvider(opts Options) *OpenAIProvider {
	return &OpenAIProvider{base: newBase("OpenAI", ProviderBaseURLOpenAI, defaultModelOpenAI, opts)}
}

func (p *OpenAIProvider) GetName() string {
	return "OpenAI"
}

func (p *OpenAIProvider) GetType() ProviderType {
	return ProviderTypeOpenAI
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := buildChatRequest(p.model, req, true)
	return p.call(ctx, func(ctx context.Context) (string, error) {
		var resp chatResponse
		if err := p.postJSON(ctx, ProviderSubpathOpenAI, map[string]string{"Authorization": "Bearer " + p.apiKey}, body, &resp); err != nil {
			return "", err
		}
		return resp.text()
	})
}

func (p *OpenAIProvider) ValidateConfig() error {
	return p.validate()
}
