// Package ml provides the model handle used by the fraud detector.
// A handle is loaded once from a trained artifact and is read-only afterwards;
// it can be shared by any number of concurrent requests.
//
// Two artifact formats are supported: a JSON export of a fitted random forest,
// evaluated natively, and a joblib pickle, evaluated by a long-lived Python
// worker process.
package ml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fraud-detector/internal/common"
)

// Classifier is a fitted model. Predict takes a batch of rows and returns one
// class label per row.
type Classifier interface {
	Predict(ctx context.Context, rows [][]float64) ([]int, error)

	// NumFeatures is the input width the model was fitted on, or 0 when the
	// artifact does not declare it.
	NumFeatures() int

	Close() error
}

// MetricsInterface defines metrics methods needed by the model handle
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLTimeoutsInc()
	MLLatencyObserve(float64)
	MLFraudInc()
	MLModelAgeSet(float64)
	MLWorkerStartInc()
}

// Options control how an artifact is loaded.
type Options struct {
	PythonPath string
	PythonArgs []string // interpreter arguments placed before the script
	ScriptPath string
	Timeout    time.Duration
	Metrics    MetricsInterface
}

// Loader builds a Classifier from an artifact on disk.
type Loader func(path string, opts Options) (Classifier, error)

// Loaders maps an artifact file extension to its loader.
var Loaders = map[string]Loader{
	".json":   loadForest,
	".pkl":    loadPython,
	".joblib": loadPython,
}

func loadForest(path string, _ Options) (Classifier, error) {
	te, err := LoadTreeEnsemble(path)
	if err != nil {
		return nil, err
	}
	return te, nil
}

func loadPython(path string, opts Options) (Classifier, error) {
	pm, err := NewPythonModel(path, opts)
	if err != nil {
		return nil, err
	}
	return pm, nil
}

var ErrUnknownFormat = errors.New("unknown model artifact format")

// Load opens the artifact at path with the loader registered for its extension.
func Load(path string, opts Options) (Classifier, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	loader, ok := Loaders[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownFormat, ext, strings.Join(supportedExtensions(), ", "))
	}

	c, err := loader(path, opts)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", path, err)
	}
	return c, nil
}

func supportedExtensions() []string {
	exts := make([]string, 0, len(Loaders))
	for ext := range Loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ResolveWidth reconciles the configured feature count with the width the
// artifact declares. A zero value on either side means "unknown".
func ResolveWidth(configured, declared int) (int, error) {
	switch {
	case configured == 0 && declared == 0:
		return common.DefaultFeatureCount, nil
	case configured == 0:
		return declared, nil
	case declared == 0:
		return configured, nil
	case configured != declared:
		return 0, fmt.Errorf("configured feature count %d does not match model width %d", configured, declared)
	default:
		return configured, nil
	}
}
