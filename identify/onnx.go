package identify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	onnxruntime "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

const (
	maxSeqLen          = 128
	minTokenConfidence = 0.5
)

// Entity labels produced by the item NER model.
const (
	LabelBrand   = "BRAND"
	LabelProduct = "PRODUCT"
	LabelModel   = "MODEL"
)

// Span is a labelled run of tokens in the input text.
type Span struct {
	Text       string
	Label      string
	Start, End int
	Confidence float64
}

type labelMappings struct {
	ID2Label map[string]string `json:"id2label"`
}

// loadLabelMappings reads id2label and returns it with the label count.
func loadLabelMappings(path string) (map[string]string, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read label mappings: %w", err)
	}
	var m labelMappings
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, 0, fmt.Errorf("failed to parse label mappings: %w", err)
	}
	numLabels := 0
	for idStr := range m.ID2Label {
		id, err := strconv.Atoi(idStr)
		if err != nil || id < 0 {
			continue
		}
		numLabels = max(numLabels, id+1)
	}
	if numLabels == 0 {
		return nil, 0, fmt.Errorf("label mappings contain no labels")
	}
	return m.ID2Label, numLabels, nil
}

// safeUintToInt safely converts a uint to int with bounds checking
func safeUintToInt(val uint) int {
	const maxInt = int(^uint(0) >> 1)
	if val <= uint(maxInt) {
		// #nosec G115 - Safe conversion with bounds checking
		return int(val)
	}
	return maxInt
}

// decodeEntities turns per-token logits into labelled spans using the
// B-/I- scheme. Tokens below minTokenConfidence count as "O"; special
// tokens (empty offsets) are skipped.
func decodeEntities(text string, logits []float32, numLabels int, offsets [][2]int, id2label map[string]string) []Span {
	var spans []Span
	var current *Span
	tokens := 0

	flush := func() {
		if current != nil {
			current.Text = text[current.Start:current.End]
			current.Confidence /= float64(tokens)
			spans = append(spans, *current)
			current = nil
		}
	}

	for i, off := range offsets {
		end := (i + 1) * numLabels
		if end > len(logits) {
			break
		}
		if off[0] >= off[1] || off[1] > len(text) {
			continue
		}
		tokenLogits := logits[i*numLabels : end]

		best := 0
		for j, l := range tokenLogits {
			if l > tokenLogits[best] {
				best = j
			}
		}
		var sum float64
		for _, l := range tokenLogits {
			sum += math.Exp(float64(l - tokenLogits[best]))
		}
		confidence := 1 / sum

		label, ok := id2label[strconv.Itoa(best)]
		if !ok || confidence < minTokenConfidence {
			label = "O"
		}
		isInside := strings.HasPrefix(label, "I-")
		base := strings.TrimPrefix(strings.TrimPrefix(label, "B-"), "I-")

		switch {
		case label == "O":
			flush()
		case isInside && current != nil && current.Label == base:
			current.End = off[1]
			current.Confidence += confidence
			tokens++
		default:
			flush()
			current = &Span{Label: base, Start: off[0], End: off[1], Confidence: confidence}
			tokens = 1
		}
	}
	flush()
	return spans
}

// responseFromSpans joins brand, product and model spans into one item
// name, in text order.
func responseFromSpans(spans []Span) Response {
	var parts []string
	var conf float64
	n := 0
	seen := map[string]bool{}
	for _, s := range spans {
		switch s.Label {
		case LabelBrand, LabelProduct, LabelModel:
		default:
			continue
		}
		key := strings.ToLower(s.Text)
		if seen[key] {
			continue
		}
		seen[key] = true
		parts = append(parts, s.Text)
		conf += s.Confidence
		n++
	}
	if n == 0 {
		return Response{}
	}
	name := strings.Join(parts, " ")
	return Response{
		Item:       name,
		Candidates: []Candidate{{ID: Slug(name), Name: name, Confidence: clamp01(conf / float64(n))}},
	}
}

// ModelFiles holds paths to required model files
type ModelFiles struct {
	ModelPath     string
	TokenizerPath string
	LabelMapPath  string
}

// ONNXIdentifier runs an item NER model locally.
type ONNXIdentifier struct {
	mu           sync.Mutex
	tokenizer    *tokenizers.Tokenizer
	session      *onnxruntime.AdvancedSession
	inputTensor  *onnxruntime.Tensor[int64]
	maskTensor   *onnxruntime.Tensor[int64]
	outputTensor *onnxruntime.Tensor[float32]
	id2label     map[string]string
	numLabels    int
	modelPath    string
	logger       *zap.Logger
}

func sharedLibraryPath(modelDir string) string {
	if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"libonnxruntime.so", "libonnxruntime.dylib", "onnxruntime.dll"} {
		p := filepath.Join(modelDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadONNXIdentifier creates the tokenizer and ONNX session for files.
func LoadONNXIdentifier(files ModelFiles, logger *zap.Logger) (Identifier, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !onnxruntime.IsInitialized() {
		if lib := sharedLibraryPath(filepath.Dir(files.ModelPath)); lib != "" {
			onnxruntime.SetSharedLibraryPath(lib)
		}
		if err := onnxruntime.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX Runtime environment: %w", err)
		}
	}

	id2label, numLabels, err := loadLabelMappings(files.LabelMapPath)
	if err != nil {
		return nil, err
	}
	tk, err := tokenizers.FromFile(files.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer: %w", err)
	}

	d := &ONNXIdentifier{
		tokenizer: tk,
		id2label:  id2label,
		numLabels: numLabels,
		modelPath: files.ModelPath,
		logger:    logger,
	}
	if err := d.initializeSession(); err != nil {
		_ = tk.Close()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	logger.Info("onnx model loaded", zap.String("model", files.ModelPath), zap.Int("labels", numLabels))
	return d, nil
}

func (d *ONNXIdentifier) initializeSession() error {
	inputShape := onnxruntime.NewShape(1, maxSeqLen)
	inputTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	maskTensor, err := onnxruntime.NewTensor(inputShape, make([]int64, maxSeqLen))
	if err != nil {
		_ = inputTensor.Destroy()
		return fmt.Errorf("failed to create mask tensor: %w", err)
	}
	outputTensor, err := onnxruntime.NewEmptyTensor[float32](onnxruntime.NewShape(1, maxSeqLen, int64(d.numLabels)))
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	session, err := onnxruntime.NewAdvancedSession(d.modelPath,
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		[]onnxruntime.Value{inputTensor, maskTensor},
		[]onnxruntime.Value{outputTensor},
		nil)
	if err != nil {
		_ = inputTensor.Destroy()
		_ = maskTensor.Destroy()
		_ = outputTensor.Destroy()
		return fmt.Errorf("failed to create session: %w", err)
	}
	d.session = session
	d.inputTensor = inputTensor
	d.maskTensor = maskTensor
	d.outputTensor = outputTensor
	return nil
}

func (d *ONNXIdentifier) GetName() string {
	return BackendONNX
}

func (d *ONNXIdentifier) IdentifyText(_ context.Context, text string) (Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return Response{}, fmt.Errorf("onnx identifier is closed")
	}

	encoding := d.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnOffsets())
	n := min(len(encoding.IDs), len(encoding.Offsets), maxSeqLen)

	inputData := d.inputTensor.GetData()
	maskData := d.maskTensor.GetData()
	clear(inputData)
	clear(maskData)
	offsets := make([][2]int, n)
	for i := 0; i < n; i++ {
		inputData[i] = int64(encoding.IDs[i])
		maskData[i] = 1
		offsets[i] = [2]int{safeUintToInt(encoding.Offsets[i][0]), safeUintToInt(encoding.Offsets[i][1])}
	}

	if err := d.session.Run(); err != nil {
		return Response{}, fmt.Errorf("failed to run inference: %w", err)
	}
	spans := decodeEntities(text, d.outputTensor.GetData(), d.numLabels, offsets, d.id2label)
	d.logger.Debug("onnx spans", zap.Int("tokens", n), zap.Int("spans", len(spans)))
	return responseFromSpans(spans), nil
}

func (d *ONNXIdentifier) IdentifyImage(context.Context, []byte, string) (Response, error) {
	return Response{}, fmt.Errorf("%w: onnx model reads text only", ErrUnsupported)
}

// Close releases the session, tensors and tokenizer. The ONNX runtime
// environment stays up so a reloaded model can reuse it.
func (d *ONNXIdentifier) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy session: %w", err))
		}
		d.session = nil
	}
	destroy := func(name string, t interface{ Destroy() error }) {
		if err := t.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy %s tensor: %w", name, err))
		}
	}
	if d.inputTensor != nil {
		destroy("input", d.inputTensor)
		d.inputTensor = nil
	}
	if d.maskTensor != nil {
		destroy("mask", d.maskTensor)
		d.maskTensor = nil
	}
	if d.outputTensor != nil {
		destroy("output", d.outputTensor)
		d.outputTensor = nil
	}
	if d.tokenizer != nil {
		if err := d.tokenizer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close tokenizer: %w", err))
		}
		d.tokenizer = nil
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
