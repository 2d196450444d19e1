// Package identify turns free text or a photo into item candidates that
// the dimension lookup can resolve.
package identify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hannes/gridfinity-cutout/providers"
)

const (
	BackendHeuristic = "heuristic"
	BackendLLM       = "llm"
	BackendONNX      = "onnx"
	BackendModel     = "model"
)

// ErrUnsupported is returned for inputs a backend cannot handle, such as
// images for a text-only model.
var ErrUnsupported = errors.New("unsupported input")

// Candidate is one possible identity of the item.
type Candidate struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Response is the identification result, best candidate first.
type Response struct {
	Item       string      `json:"item"`
	Candidates []Candidate `json:"candidates"`
}

type Identifier interface {
	GetName() string
	IdentifyText(ctx context.Context, text string) (Response, error)
	IdentifyImage(ctx context.Context, data []byte, mime string) (Response, error)
	Close() error
}

// Config carries what the backends may need. Each backend reads only
// its own fields.
type Config struct {
	Provider   providers.Provider // llm
	ModelDir   string             // onnx
	Watch      bool               // onnx: reload when model files change
	BaseURL    string             // model
	HTTPClient *http.Client       // model
	Logger     *zap.Logger
}

type NewIdentifierFunc func(cfg Config) (Identifier, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]NewIdentifierFunc)
)

func RegisterFactory(name string, factory NewIdentifierFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// Backends lists the registered backend names.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the named backend. Every backend except the heuristic one
// is wrapped so failures fall back to the heuristic.
func New(name string, cfg Config) (Identifier, error) {
	factoriesMu.RLock()
	factory, ok := factories[name]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("identifier factory not found for name: %s", name)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	id, err := factory(cfg)
	if err != nil {
		return nil, err
	}
	if name == BackendHeuristic {
		return id, nil
	}
	return NewFallback(id, NewHeuristic(), cfg.Logger), nil
}

func init() {
	RegisterFactory(BackendHeuristic, func(Config) (Identifier, error) {
		return NewHeuristic(), nil
	})

	RegisterFactory(BackendLLM, func(cfg Config) (Identifier, error) {
		if cfg.Provider == nil {
			return nil, fmt.Errorf("provider is required for llm identifier")
		}
		return NewLLMIdentifier(cfg.Provider, cfg.Logger), nil
	})

	RegisterFactory(BackendModel, func(cfg Config) (Identifier, error) {
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("base_url is required for model identifier")
		}
		return NewModelIdentifier(cfg.BaseURL, cfg.HTTPClient), nil
	})

	RegisterFactory(BackendONNX, func(cfg Config) (Identifier, error) {
		if cfg.ModelDir == "" {
			return nil, fmt.Errorf("model_dir is required for ONNX identifier")
		}
		mm := NewModelManager(cfg.ModelDir, LoadONNXIdentifier, cfg.Logger)
		if cfg.Watch {
			if err := mm.Watch(); err != nil {
				cfg.Logger.Warn("model watch disabled", zap.Error(err))
			}
		}
		return mm, nil
	})
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
