package providers

import "context"

const (
	ProviderTypeMistral    ProviderType = "mistral"
	ProviderSubpathMistral string       = "/v1/chat/completions"
	ProviderBaseURLMistral string       = "https://api.mistral.ai"
	defaultModelMistral    string       = "mistral-small-latest"
)

// MistralProvider talks to Mistral's OpenAI-compatible chat endpoint.
type MistralProvider struct {
	base
}

func NewMistralProvider(opts Options) *MistralProvider {
	return &MistralProvider{base: newBase("Mistral", ProviderBaseURLMistral, defaultModelMistral, opts)}
}

func (p *MistralProvider) GetName() string {
	return "Mistral"
}

func (p *MistralProvider) GetType() ProviderType {
	return ProviderTypeMistral
}

func (p *MistralProvider) Complete(ctx context.Context, req Request) (string, error) {
	body := buildChatRequest(p.model, req, false)
	return p.call(ctx, func(ctx context.Context) (string, error) {
		var resp chatResponse
		if err := p.postJSON(ctx, ProviderSubpathMistral, map[string]string{"Authorization": "Bearer " + p.apiKey}, body, &resp); err != nil {
			return "", err
		}
		return resp.text()
	})
}

func (p *MistralProvider) ValidateConfig() error {
	return p.validate()
}
