// Command modelcheck loads a model artifact, reports the input width it was
// fitted on and scores a few vectors with it.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fraud-detector/internal/common"
	"fraud-detector/internal/desk"
	"fraud-detector/internal/ml"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		modelPath    = flag.String("model", common.DefaultModelPath, "Path to the model artifact (.pkl, .joblib or .json)")
		pythonPath   = flag.String("python", "", "Python interpreter for pickle artifacts (default: probe PATH)")
		featureCount = flag.Int("features", 0, "Expected feature count (0: take it from the artifact)")
		vector       = flag.String("vector", "", "Comma-separated feature vector to score in addition to the zero vector")
		timeout      = flag.Duration("timeout", common.DefaultPredictSeconds*time.Second, "Prediction timeout")
		logLevel     = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(*modelPath, *pythonPath, *featureCount, *vector, *timeout); err != nil {
		log.Error().Err(err).Msg("model check failed")
		os.Exit(1)
	}
}

func run(modelPath, pythonPath string, featureCount int, vector string, timeout time.Duration) error {
	absPath, err := filepath.Abs(modelPath)
	if err != nil {
		return fmt.Errorf("resolve model path: %w", err)
	}

	md, err := ml.LoadMetadata(absPath)
	if err != nil {
		return err
	}

	start := time.Now()
	model, err := ml.Load(absPath, ml.Options{PythonPath: pythonPath, Timeout: timeout})
	if err != nil {
		return err
	}
	defer model.Close()

	fmt.Println("=== Model Check ===")
	fmt.Printf("Model path:      %s\n", absPath)
	fmt.Printf("Load time:       %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("Version:         %s\n", md.Version)
	fmt.Printf("Model width:     %d\n", model.NumFeatures())
	fmt.Printf("Metadata width:  %d\n", md.DeclaredWidth())

	declared := model.NumFeatures()
	if declared == 0 {
		declared = md.DeclaredWidth()
	}
	width, err := ml.ResolveWidth(featureCount, declared)
	if err != nil {
		return err
	}
	fmt.Printf("Serving width:   %d\n", width)

	rows := [][]float64{make([]float64, width)}
	names := []string{"zero vector"}
	if vector != "" {
		v, err := desk.ParseFeatureList(vector)
		if err != nil {
			return fmt.Errorf("parse -vector: %w", err)
		}
		if len(v) != width {
			return fmt.Errorf("-vector has %d values, model expects %d", len(v), width)
		}
		rows = append(rows, v)
		names = append(names, "given vector")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start = time.Now()
	labels, err := model.Predict(ctx, rows)
	if err != nil {
		return fmt.Errorf("predict: %w", err)
	}
	fmt.Printf("Predict time:    %v\n", time.Since(start).Round(time.Microsecond))

	for i, label := range labels {
		fmt.Printf("  %-13s label=%d fraud=%t\n", names[i], label, label != 0)
	}
	return nil
}
