package identify

import (
	"context"
	"strings"
)

const (
	heuristicConfidence = 0.75
	slugLength          = 16
)

// Slug builds the deterministic item id: "Q" followed by the lower-cased
// text with spaces as underscores, cut to 16 characters.
func Slug(text string) string {
	s := []rune(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(text)), " ", "_"))
	if len(s) > slugLength {
		s = s[:slugLength]
	}
	return "Q" + string(s)
}

// Heuristic identifies items without any model. Text is taken at face
// value; images are reported as unknown.
type Heuristic struct{}

func NewHeuristic() *Heuristic {
	return &Heuristic{}
}

func (h *Heuristic) GetName() string {
	return BackendHeuristic
}

func (h *Heuristic) IdentifyText(_ context.Context, text string) (Response, error) {
	name := strings.TrimSpace(text)
	return Response{
		Item:       name,
		Candidates: []Candidate{{ID: Slug(name), Name: name, Confidence: heuristicConfidence}},
	}, nil
}

func (h *Heuristic) IdentifyImage(context.Context, []byte, string) (Response, error) {
	return Response{
		Item:       "unknown",
		Candidates: []Candidate{{ID: "Qunknown", Name: "unknown item", Confidence: 0.2}},
	}, nil
}

func (h *Heuristic) Close() error {
	return nil
}
