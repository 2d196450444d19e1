package identify

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	modelFile     = "model_quantized.onnx"
	tokenizerFile = "tokenizer.json"
	labelMapFile  = "label_mappings.json"

	validationText = "Nintendo Switch Pro Controller"
)

var requiredModelFiles = []string{modelFile, tokenizerFile, labelMapFile}

// LoadFunc builds an identifier from validated model files.
type LoadFunc func(files ModelFiles, logger *zap.Logger) (Identifier, error)

// ModelManager owns a locally loaded model and swaps it atomically on
// reload. While no healthy model is loaded, calls return an error so a
// Fallback can take over.
type ModelManager struct {
	mu             sync.RWMutex
	current        Identifier
	modelDirectory string
	isHealthy      bool
	lastError      error
	loadedAt       time.Time

	load   LoadFunc
	logger *zap.Logger

	watchMu     sync.Mutex
	watcher     *fsnotify.Watcher
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewModelManager creates a manager and performs the initial load. A
// failed load leaves the manager unhealthy but usable.
func NewModelManager(directory string, load LoadFunc, logger *zap.Logger) *ModelManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	mm := &ModelManager{
		modelDirectory: directory,
		load:           load,
		logger:         logger.Named("model_manager"),
		debounceDur:    500 * time.Millisecond,
	}
	if err := mm.ReloadModel(directory); err != nil {
		mm.logger.Warn("initial model load failed, manager is unhealthy", zap.Error(err))
	}
	return mm
}

func (mm *ModelManager) get() (Identifier, error) {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	if !mm.isHealthy {
		return nil, fmt.Errorf("model is unhealthy: %w", mm.lastError)
	}
	if mm.current == nil {
		return nil, errors.New("no model loaded")
	}
	return mm.current, nil
}

func (mm *ModelManager) GetName() string {
	return BackendONNX
}

func (mm *ModelManager) IdentifyText(ctx context.Context, text string) (Response, error) {
	id, err := mm.get()
	if err != nil {
		return Response{}, err
	}
	return id.IdentifyText(ctx, text)
}

func (mm *ModelManager) IdentifyImage(ctx context.Context, data []byte, mime string) (Response, error) {
	id, err := mm.get()
	if err != nil {
		return Response{}, err
	}
	return id.IdentifyImage(ctx, data, mime)
}

func (mm *ModelManager) fail(err error) {
	mm.mu.Lock()
	mm.isHealthy = false
	mm.lastError = err
	mm.mu.Unlock()
}

// ReloadModel validates newDirectory, loads it, runs a validation
// inference and only then replaces the current model.
func (mm *ModelManager) ReloadModel(newDirectory string) error {
	mm.logger.Info("reloading model", zap.String("directory", newDirectory))

	files, err := validateDirectory(newDirectory)
	if err != nil {
		mm.fail(err)
		return fmt.Errorf("validation failed: %w", err)
	}

	next, err := mm.load(files, mm.logger)
	if err != nil {
		mm.fail(err)
		return fmt.Errorf("failed to load model: %w", err)
	}

	if _, err := next.IdentifyText(context.Background(), validationText); err != nil {
		if closeErr := next.Close(); closeErr != nil {
			mm.logger.Warn("failed to close rejected model", zap.Error(closeErr))
		}
		mm.fail(err)
		return fmt.Errorf("model validation failed: %w", err)
	}

	mm.mu.Lock()
	old := mm.current
	mm.current = next
	mm.modelDirectory = newDirectory
	mm.isHealthy = true
	mm.lastError = nil
	mm.loadedAt = time.Now()
	mm.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			mm.logger.Warn("failed to close old model", zap.Error(err))
		}
	}
	mm.logger.Info("model reload complete", zap.String("directory", newDirectory))
	return nil
}

// IsHealthy returns whether the current model is healthy
func (mm *ModelManager) IsHealthy() bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.isHealthy
}

// GetLastError returns the last error encountered (if any)
func (mm *ModelManager) GetLastError() error {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.lastError
}

// GetInfo returns information about the current model state
func (mm *ModelManager) GetInfo() map[string]any {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	info := map[string]any{
		"directory": mm.modelDirectory,
		"healthy":   mm.isHealthy,
		"error":     nil,
	}
	if mm.lastError != nil {
		info["error"] = mm.lastError.Error()
	}
	if !mm.loadedAt.IsZero() {
		info["loaded_at"] = mm.loadedAt.UTC().Format(time.RFC3339)
	}
	return info
}

// validateDirectory checks that dir exists and holds every model file.
func validateDirectory(dir string) (ModelFiles, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return ModelFiles{}, fmt.Errorf("directory does not exist: %s", dir)
		}
		return ModelFiles{}, fmt.Errorf("failed to access directory: %w", err)
	}
	if !info.IsDir() {
		return ModelFiles{}, fmt.Errorf("path is not a directory: %s", dir)
	}

	var missing []string
	for _, name := range requiredModelFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return ModelFiles{}, fmt.Errorf("missing required files in directory: %v", missing)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}
	return ModelFiles{
		ModelPath:     filepath.Join(absDir, modelFile),
		TokenizerPath: filepath.Join(absDir, tokenizerFile),
		LabelMapPath:  filepath.Join(absDir, labelMapFile),
	}, nil
}

// Watch reloads the model when one of its files is written or replaced.
// Bursts of events are collapsed into one reload.
func (mm *ModelManager) Watch() error {
	mm.watchMu.Lock()
	defer mm.watchMu.Unlock()
	if mm.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	mm.mu.RLock()
	dir := mm.modelDirectory
	mm.mu.RUnlock()
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	mm.watcher = w
	mm.stopCh = make(chan struct{})
	mm.doneCh = make(chan struct{})
	go mm.run(w, dir, mm.stopCh, mm.doneCh)
	mm.logger.Info("watching model directory", zap.String("directory", dir))
	return nil
}

func (mm *ModelManager) run(w *fsnotify.Watcher, dir string, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(mm.debounceDur / 5)
	defer ticker.Stop()
	var pending time.Time

	for {
		select {
		case <-stopCh:
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if !slices.Contains(requiredModelFiles, filepath.Base(event.Name)) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			mm.logger.Debug("model file changed", zap.String("file", event.Name), zap.String("op", event.Op.String()))
			pending = time.Now()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			mm.logger.Error("model watcher error", zap.Error(err))

		case <-ticker.C:
			if pending.IsZero() || time.Since(pending) < mm.debounceDur {
				continue
			}
			pending = time.Time{}
			if err := mm.ReloadModel(dir); err != nil {
				mm.logger.Error("model hot reload failed", zap.Error(err))
			}
		}
	}
}

func (mm *ModelManager) stopWatch() {
	mm.watchMu.Lock()
	defer mm.watchMu.Unlock()
	if mm.watcher == nil {
		return
	}
	close(mm.stopCh)
	<-mm.doneCh
	if err := mm.watcher.Close(); err != nil {
		mm.logger.Warn("error closing model watcher", zap.Error(err))
	}
	mm.watcher = nil
}

// Close stops watching and releases the current model.
func (mm *ModelManager) Close() error {
	mm.stopWatch()

	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.isHealthy = false
	if mm.current == nil {
		return nil
	}
	err := mm.current.Close()
	mm.current = nil
	if err != nil {
		return fmt.Errorf("failed to close model: %w", err)
	}
	return nil
}
