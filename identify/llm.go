package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hannes/gridfinity-cutout/providers"
)

const llmSystemPrompt = `You identify physical products so their exact dimensions can be looked up.
Answer with JSON only, no prose:
{"item": "<best product name>", "candidates": [{"name": "<full product name with brand and model>", "wikidata_id": "<Q-id if you are sure, else empty>", "confidence": <0..1>}]}
Give at most 3 candidates, best first.`

var wikidataIDPattern = regexp.MustCompile(`^Q\d+$`)

type llmAnswer struct {
	Item       string `json:"item"`
	Candidates []struct {
		Name       string  `json:"name"`
		WikidataID string  `json:"wikidata_id"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
}

// LLMIdentifier asks a chat model to name the item.
type LLMIdentifier struct {
	provider providers.Provider
	logger   *zap.Logger
}

func NewLLMIdentifier(provider providers.Provider, logger *zap.Logger) *LLMIdentifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMIdentifier{provider: provider, logger: logger}
}

func (l *LLMIdentifier) GetName() string {
	return BackendLLM + ":" + string(l.provider.GetType())
}

func (l *LLMIdentifier) IdentifyText(ctx context.Context, text string) (Response, error) {
	return l.ask(ctx, providers.Request{
		System: llmSystemPrompt,
		Prompt: "Identify this item: " + strings.TrimSpace(text),
	})
}

func (l *LLMIdentifier) IdentifyImage(ctx context.Context, data []byte, mime string) (Response, error) {
	return l.ask(ctx, providers.Request{
		System:    llmSystemPrompt,
		Prompt:    "Identify the main item in this photo.",
		Image:     data,
		ImageMIME: mime,
	})
}

func (l *LLMIdentifier) ask(ctx context.Context, req providers.Request) (Response, error) {
	out, err := l.provider.Complete(ctx, req)
	if err != nil {
		return Response{}, fmt.Errorf("%s completion: %w", l.provider.GetName(), err)
	}
	l.logger.Debug("llm answer", zap.String("provider", l.provider.GetName()), zap.Int("chars", len(out)))
	return parseLLMAnswer(out)
}

// parseLLMAnswer reads the model's JSON. Candidates without a valid
// Wikidata id get the deterministic slug id.
func parseLLMAnswer(out string) (Response, error) {
	raw := providers.ExtractJSON(out)
	if raw == "" {
		return Response{}, fmt.Errorf("no JSON object in answer")
	}
	var answer llmAnswer
	if err := json.Unmarshal([]byte(raw), &answer); err != nil {
		return Response{}, fmt.Errorf("decode answer: %w", err)
	}

	resp := Response{Item: strings.TrimSpace(answer.Item)}
	for _, c := range answer.Candidates {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		id := strings.TrimSpace(c.WikidataID)
		if !wikidataIDPattern.MatchString(id) {
			id = Slug(name)
		}
		resp.Candidates = append(resp.Candidates, Candidate{ID: id, Name: name, Confidence: clamp01(c.Confidence)})
	}
	if resp.Item == "" && len(resp.Candidates) > 0 {
		resp.Item = resp.Candidates[0].Name
	}
	return resp, nil
}

func (l *LLMIdentifier) Close() error {
	return nil
}
